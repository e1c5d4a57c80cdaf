// Package paymentgateway реализует клиент внешнего платёжного шлюза.
// Подсистема планов использует единственную операцию — создание платёжного
// намерения; подтверждение оплаты приходит асинхронно вебхуком.
package paymentgateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-engine/internal/config"
)

// ErrGatewayUnavailable возвращается при сетевой ошибке или таймауте шлюза.
// Вызывающая сторона повторяет запрос либо отдаёт клиенту 503.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Client инкапсулирует доступ к HTTP API платёжного шлюза.
type Client struct {
	shopID     string
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт клиент шлюза с ограниченным временем вызова.
func NewClient(cfg config.PaymentGateway) *Client {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		shopID:     cfg.ShopID,
		secretKey:  cfg.SecretKey,
		apiURL:     cfg.APIURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.shopID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CreateCheckout отправляет запрос на создание платёжного намерения
// и возвращает артефакт продолжения (ссылку на оплату или код PIX).
func (c *Client) CreateCheckout(ctx context.Context, reqParams CreateCheckoutRequest) (*CreateCheckoutResponse, error) {
	const op = "paymentgateway.CreateCheckout"

	req, err := c.newRequest(ctx, http.MethodPost, "/checkouts", reqParams)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	key := reqParams.IdempotenceKey
	if key == "" {
		key = uuid.NewString()
	}
	req.Header.Set("Idempotence-Key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%s: %w: status %s", op, ErrGatewayUnavailable, resp.Status)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}

	var checkoutResp CreateCheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&checkoutResp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &checkoutResp, nil
}
