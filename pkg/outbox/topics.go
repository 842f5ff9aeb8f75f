package outbox

import (
	"fmt"

	"github.com/playpasshq/playpass-backend/pkg/config"
	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// TopicRouter maps event types to their configured Pub/Sub topics.
// Fraud-relevant events get a dedicated stream so alerting can subscribe
// narrowly.
type TopicRouter struct {
	byEventType map[enums.OutboxEventType]string
}

// NewTopicRouter builds the routing table from config.
func NewTopicRouter(cfg config.PubSubConfig) *TopicRouter {
	return &TopicRouter{byEventType: map[enums.OutboxEventType]string{
		enums.EventTicketIssued:        cfg.TicketTopic,
		enums.EventTicketCancelled:     cfg.TicketTopic,
		enums.EventTicketRefunded:      cfg.TicketTopic,
		enums.EventRedemptionRecorded:  cfg.RedemptionTopic,
		enums.EventRedemptionFlagged:   cfg.FraudTopic,
		enums.EventSaleRecorded:        cfg.SaleTopic,
		enums.EventShiftOpened:         cfg.ShiftTopic,
		enums.EventShiftClosed:         cfg.ShiftTopic,
		enums.EventShiftCashMismatched: cfg.FraudTopic,
	}}
}

// TopicFor returns the Pub/Sub topic an event type publishes to.
func (r *TopicRouter) TopicFor(eventType enums.OutboxEventType) (string, error) {
	topic, ok := r.byEventType[eventType]
	if !ok || topic == "" {
		return "", fmt.Errorf("no topic registered for event type %q", eventType)
	}
	return topic, nil
}

// Topics returns the distinct set of topics the publisher must own.
func (r *TopicRouter) Topics() []string {
	seen := make(map[string]struct{}, len(r.byEventType))
	out := make([]string, 0, len(r.byEventType))
	for _, topic := range r.byEventType {
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	return out
}
