package notify

import (
	"context"

	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/ports"
)

// Notifier is the Communication agent's outbound path: format, dedup,
// deliver (spec §4.5).
type Notifier struct {
	Channel   ports.NotificationChannel
	Dedup     *Deduper
	ChannelID string
}

func NewNotifier(channel ports.NotificationChannel, channelID string) *Notifier {
	return &Notifier{Channel: channel, Dedup: NewDeduper(), ChannelID: channelID}
}

// NotifyDecisionCommitted delivers a DECISION_COMMITTED notification unless
// this incident+stage has already been notified.
func (n *Notifier) NotifyDecisionCommitted(ctx context.Context, decision domain.CommittedDecision) (ports.DeliveryStatus, bool, error) {
	if !n.Dedup.ShouldSend(decision.IncidentID, StageDecisionCommitted) {
		return ports.DeliveryStatus{}, false, nil
	}
	status, err := n.Channel.Notify(ctx, n.ChannelID, FormatDecisionCommitted(decision))
	return status, true, err
}

// NotifyResolved delivers a RESOLVED notification unless this incident+stage
// has already been notified.
func (n *Notifier) NotifyResolved(ctx context.Context, incident domain.Incident) (ports.DeliveryStatus, bool, error) {
	if !n.Dedup.ShouldSend(incident.ID, StageResolved) {
		return ports.DeliveryStatus{}, false, nil
	}
	status, err := n.Channel.Notify(ctx, n.ChannelID, FormatResolved(incident))
	return status, true, err
}
