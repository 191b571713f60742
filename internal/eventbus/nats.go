package eventbus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/baton-gateway/baton/internal/logging"
)

// subjectPrefix groups every gateway event under one NATS subject
// hierarchy: baton.events.<kind>.
const subjectPrefix = "baton.events."

// NATSBus fans the same two events LocalBus carries out to every gateway
// process sharing a NATS server, so adapters do not need to live in the
// same binary as the Session Manager that raised the event.
type NATSBus struct {
	conn   *nats.Conn
	local  *LocalBus
	logger *logging.Logger
}

// NewNATSBus connects to url and wires inbound NATS deliveries back into a
// LocalBus, so callers use the same Subscribe API regardless of transport.
func NewNATSBus(url string, logger *logging.Logger) (*NATSBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	b := &NATSBus{conn: conn, local: NewLocalBus(), logger: logger}

	if _, err := conn.Subscribe(subjectPrefix+"*", func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			b.logger.WithError(err).Warn("eventbus: dropping malformed NATS event")
			return
		}
		b.local.Publish(e)
	}); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *NATSBus) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.WithError(err).Warn("eventbus: failed to marshal event")
		return
	}
	if err := b.conn.Publish(subjectPrefix+string(e.Kind), data); err != nil {
		b.logger.WithError(err).Warn("eventbus: failed to publish event")
	}
}

func (b *NATSBus) Subscribe(l Listener) func() {
	return b.local.Subscribe(l)
}

func (b *NATSBus) Close() {
	b.conn.Close()
}
