package plancatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

func TestDurationOf(t *testing.T) {
	tests := []struct {
		name     string
		category models.PlanCategory
		want     int
	}{
		{name: "seven days", category: models.CategorySevenDays, want: 7},
		{name: "fifteen days", category: models.CategoryFifteenDays, want: 15},
		{name: "thirty days", category: models.CategoryThirtyDays, want: 30},
		{name: "sixty days", category: models.CategorySixtyDays, want: 60},
		{name: "ninety days", category: models.CategoryNinetyDays, want: 90},
		{name: "partner is unbounded", category: models.CategoryPartner, want: Unbounded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DurationOf(tt.category))
		})
	}
}

func TestDurationOf_UnknownCategoryPanics(t *testing.T) {
	assert.Panics(t, func() {
		DurationOf(models.PlanCategory("TWO_HUNDRED_DAYS"))
	})
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, models.CategoryThirtyDays, CategoryOf(30))
	assert.Equal(t, models.CategoryPartner, CategoryOf(Unbounded))
	assert.Panics(t, func() { CategoryOf(42) })
}

func TestIsKnown(t *testing.T) {
	assert.True(t, IsKnown(models.CategorySevenDays))
	assert.False(t, IsKnown(models.PlanCategory("UNKNOWN")))
}
