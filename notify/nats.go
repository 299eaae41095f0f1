package notify

import (
	"context"

	"github.com/nats-io/nats.go"
)

// natsPublisher is the part of *nats.Conn the sink needs.
type natsPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes reports on a NATS subject.
type NATSSink struct {
	conn    natsPublisher
	subject string
}

// NewNATSSink returns a sink publishing on subject through conn.
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats:" + s.subject }

// Send implements Sink.
func (s *NATSSink) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(s.subject)
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = payload
	return s.conn.PublishMsg(msg)
}
