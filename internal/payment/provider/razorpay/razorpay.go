package razorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/applygate/applygate/internal/config"
	paymentdomain "github.com/applygate/applygate/internal/payment/domain"
)

// Client reads order state from the Razorpay Orders API using basic auth.
type Client struct {
	baseURL string
	keyID   string
	secret  string
	http    *http.Client
}

func New(cfg config.Config) paymentdomain.ProviderClient {
	return &Client{
		baseURL: strings.TrimRight(cfg.Payment.BaseURL, "/"),
		keyID:   cfg.Payment.KeyID,
		secret:  cfg.Payment.KeySecret,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type orderResponse struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (paymentdomain.ProviderOrder, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return paymentdomain.ProviderOrder{}, paymentdomain.ErrInvalidOrder
	}

	url := fmt.Sprintf("%s/orders/%s", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return paymentdomain.ProviderOrder{}, err
	}
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return paymentdomain.ProviderOrder{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return paymentdomain.ProviderOrder{}, paymentdomain.ErrOrderNotFound
	default:
		return paymentdomain.ProviderOrder{}, fmt.Errorf("provider order fetch failed: %s", resp.Status)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return paymentdomain.ProviderOrder{}, err
	}

	return paymentdomain.ProviderOrder{
		OrderID:          order.ID,
		Status:           strings.ToLower(order.Status),
		AmountMinorUnits: order.Amount,
		Currency:         order.Currency,
	}, nil
}
