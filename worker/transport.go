package worker

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Transport is the slice of the messaging connection the worker uses.
// Loop tests substitute an in-process fake.
type Transport interface {
	Request(subject string, data []byte, timeout time.Duration) ([]byte, error)
}

type natsTransport struct {
	nc *nats.Conn
}

// NewNATSTransport wraps a NATS connection.
func NewNATSTransport(nc *nats.Conn) Transport {
	return &natsTransport{nc: nc}
}

func (t *natsTransport) Request(subject string, data []byte, timeout time.Duration) ([]byte, error) {
	msg, err := t.nc.Request(subject, data, timeout)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}
