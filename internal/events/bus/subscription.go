package bus

import "github.com/nats-io/nats.go"

// natsSubscription adapts a nats.Subscription to the Subscription
// interface used by crewmesh side-channel consumers. A nil inner
// subscription behaves as already unsubscribed.
type natsSubscription struct {
	sub *nats.Subscription
}

// Unsubscribe detaches the consumer from its subject.
func (s *natsSubscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// IsValid reports whether the subscription still delivers events.
func (s *natsSubscription) IsValid() bool {
	return s.sub != nil && s.sub.IsValid()
}
