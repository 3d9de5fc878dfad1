package main

import "github.com/nats-io/nats.go"

// Publisher forwards every new reading to a message bus.
type Publisher interface {
	Publish(msg []byte) error
	Close() error
}

type NATSPublisher struct {
	nc   *nats.Conn
	subj string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("bme280d"))
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, subj: subject}, nil
}

func (n *NATSPublisher) Publish(msg []byte) error {
	return n.nc.Publish(n.subj, msg)
}

func (n *NATSPublisher) Close() error {
	err := n.nc.Flush()
	n.nc.Close()
	return err
}
