package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectedPublisherDropsEvents(t *testing.T) {
	p, err := Connect("")
	require.NoError(t, err)

	assert.NoError(t, p.Publish(SubjectOrderConfirmed, Event{TxnRef: "t1"}))

	_, err = p.Subscribe(SubjectOrderConfirmed, func(Event) {})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)

	p.Close()

	var nilPub *Publisher
	assert.NoError(t, nilPub.Publish(SubjectOrderConfirmed, Event{}))
}
