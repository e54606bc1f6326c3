package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/streamsense/observability/internal/models"
)

// Notifier delivers alert events to an external webhook (paging or chat
// integration). Delivery semantics beyond the POST are the webhook's
// responsibility.
type Notifier struct {
	client *resty.Client
}

// NewNotifier creates a Notifier using the given REST client.
func NewNotifier(client *resty.Client) *Notifier {
	return &Notifier{client: client}
}

// Notify posts one alert event as JSON to the "/alerts" endpoint.
func (n *Notifier) Notify(ctx context.Context, event models.AlertEvent) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post("/alerts")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook rejected alert: %s", resp.Status())
	}
	return nil
}
