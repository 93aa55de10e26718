package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Webhook POSTs events to an external notification service. Delivery is
// fire-and-forget: a down receiver never fails the core operation.
type Webhook struct {
	client *resty.Client
	log    *zap.Logger
}

func NewWebhook(url string, log *zap.Logger) *Webhook {
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(2 * time.Second).
		SetRetryCount(1)

	return &Webhook{client: client, log: log}
}

type webhookBody struct {
	Type     string         `json:"type"`
	EntityID string         `json:"entity_id"`
	Payload  map[string]any `json:"payload,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

func (w *Webhook) Publish(ctx context.Context, ev Event) {
	body := webhookBody{
		Type:     ev.Type,
		EntityID: ev.EntityID.String(),
		Payload:  ev.Payload,
		SentAt:   time.Now().UTC(),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("")
	if err != nil {
		w.log.Warn("webhook publish", zap.String("event", ev.Type), zap.Error(err))
		return
	}
	if resp.IsError() {
		w.log.Warn("webhook rejected event",
			zap.String("event", ev.Type),
			zap.Int("status", resp.StatusCode()))
	}
}
