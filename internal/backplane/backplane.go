// Package backplane provides the cross-process publish/subscribe transport
// that lets multiple gateway processes behave as one logical chat server.
// One channel carries exactly one room's message payloads.
package backplane

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing or subscribing on a closed backplane.
var ErrClosed = errors.New("backplane closed")

// Subscription is one live attachment to a backplane channel.
type Subscription interface {
	// Messages yields payloads published on the channel, in delivery order.
	// The channel is not closed on unsubscribe; consumers supervise their
	// own shutdown.
	Messages() <-chan []byte
	// Unsubscribe detaches from the channel and releases the resource.
	// It is idempotent.
	Unsubscribe() error
}

// Backplane is a publish/subscribe transport keyed by channel name.
type Backplane interface {
	// Publish sends payload to every current subscriber of channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe attaches to channel and starts receiving payloads.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	// Close releases the transport. Pending deliveries are drained.
	Close() error
}
