package notify

import (
	"context"

	"github.com/slack-go/slack"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/ports"
)

// SlackChannel is a concrete ports.NotificationChannel over the Slack Web
// API; channelID is the Slack channel ID to post into.
type SlackChannel struct {
	client *slack.Client
}

func NewSlackChannel(token string) *SlackChannel {
	return &SlackChannel{client: slack.New(token)}
}

func (c *SlackChannel) Notify(ctx context.Context, channelID string, payload []byte) (ports.DeliveryStatus, error) {
	_, _, err := c.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(string(payload), false))
	if err != nil {
		return ports.DeliveryStatus{Delivered: false, Detail: err.Error()},
			apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "slack delivery failed")
	}
	return ports.DeliveryStatus{Delivered: true}, nil
}
