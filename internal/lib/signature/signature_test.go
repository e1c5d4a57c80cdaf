package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	body := []byte(`{"id":"evt-1","type":"payment"}`)
	secret := "webhook_secret"

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		want      bool
	}{
		{
			name:      "valid signature",
			body:      body,
			signature: Sign(body, secret),
			secret:    secret,
			want:      true,
		},
		{
			name:      "wrong secret",
			body:      body,
			signature: Sign(body, "other_secret"),
			secret:    secret,
			want:      false,
		},
		{
			name:      "tampered body",
			body:      []byte(`{"id":"evt-2","type":"payment"}`),
			signature: Sign(body, secret),
			secret:    secret,
			want:      false,
		},
		{
			name:      "empty signature header",
			body:      body,
			signature: "",
			secret:    secret,
			want:      false,
		},
		{
			name:      "garbage signature",
			body:      body,
			signature: "not-a-signature",
			secret:    secret,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.body, tt.signature, tt.secret))
		})
	}
}
