package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/jacobweinstock/vmedia"
)

// publisher is the part of nats.JetStreamContext used here.
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATS publishes notifications to a JetStream subject.
type NATS struct {
	Subject string

	conn *nats.Conn
	js   publisher
}

// NewNATS connects to url. The subject must be bound to a stream on the server.
func NewNATS(url, subject string, opts ...nats.Option) (*NATS, error) {
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &NATS{Subject: subject, conn: nc, js: js}, nil
}

// Notify publishes n as JSON and waits for the stream acknowledgement.
func (p *NATS) Notify(ctx context.Context, n vmedia.Notification) error {
	if p == nil || p.js == nil {
		return errors.New("nats notifier is not connected")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(p.Subject, data, nats.Context(ctx))
	return err
}

// Close drains the connection.
func (p *NATS) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
