// Package channel implements the process-wide publish/subscribe transport
// used for notification fan-out. All socket connections in a process share
// one publish connection and one subscribe connection; per-channel interest
// is reference counted so one connection leaving a channel does not tear
// down delivery for the others.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/kiosk-backend/pkg/config"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

// Message is one payload received on a subscribed channel.
type Message struct {
	Channel string
	Payload []byte
}

// ListenerFunc receives every inbound message on any subscribed channel.
// Listeners filter by their own subscription set.
type ListenerFunc func(Message)

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type pubsubConn interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Client is the shared transport. Construct exactly one per process and
// inject it into every consumer; it must not be rebuilt per connection.
type Client struct {
	pub     publisher
	newConn func(ctx context.Context) pubsubConn
	cfg     config.ChannelConfig
	logg    *logger.Logger

	mu        sync.Mutex
	conn      pubsubConn
	interest  map[string]int
	listeners map[int64]ListenerFunc
	nextID    int64
	closed    bool

	cancel context.CancelFunc
	done   chan struct{}
}

var errClosed = errors.New("channel transport closed")

// New wires the transport onto the shared redis client and starts the
// receive loop.
func New(ctx context.Context, raw *redis.Client, cfg config.ChannelConfig, logg *logger.Logger) (*Client, error) {
	if raw == nil {
		return nil, errors.New("redis client is required")
	}
	c := newClient(raw, func(ctx context.Context) pubsubConn {
		return raw.Subscribe(ctx)
	}, cfg, logg)
	c.start(ctx)
	return c, nil
}

func newClient(pub publisher, newConn func(ctx context.Context) pubsubConn, cfg config.ChannelConfig, logg *logger.Logger) *Client {
	return &Client{
		pub:       pub,
		newConn:   newConn,
		cfg:       cfg,
		logg:      logg,
		interest:  make(map[string]int),
		listeners: make(map[int64]ListenerFunc),
		done:      make(chan struct{}),
	}
}

func (c *Client) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.mu.Lock()
	c.conn = c.newConn(runCtx)
	c.mu.Unlock()

	go c.run(runCtx)
}

// Publish sends the payload to the channel's subscribers. Fire and forget:
// there is no delivery guarantee if nobody is listening at publish time.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errClosed
	}
	return c.pub.Publish(ctx, channel, payload).Err()
}

// Subscribe establishes process-wide interest in the channel. Idempotent:
// repeated calls only bump the refcount.
func (c *Client) Subscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.interest[channel]++
	if c.interest[channel] > 1 {
		return nil
	}
	if err := c.conn.Subscribe(ctx, channel); err != nil {
		delete(c.interest, channel)
		return err
	}
	return nil
}

// Unsubscribe releases one reference. The transport-level unsubscribe is
// only issued when no local consumer still needs the channel. Safe to call
// when not subscribed.
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	count, ok := c.interest[channel]
	if !ok {
		return nil
	}
	if count > 1 {
		c.interest[channel] = count - 1
		return nil
	}
	delete(c.interest, channel)
	return c.conn.Unsubscribe(ctx, channel)
}

// Subscribed reports whether the process currently holds interest in the
// channel.
func (c *Client) Subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interest[channel] > 0
}

// Listen registers a listener for every inbound message. The returned
// function removes the registration; call it on connection teardown to
// avoid leaks.
func (c *Client) Listen(fn ListenerFunc) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Close releases both underlying connections. Terminal: the client must not
// be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	var errs error
	if conn != nil {
		errs = multierr.Append(errs, conn.Close())
	}
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	return errs
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		for msg := range conn.Channel() {
			c.dispatch(Message{Channel: msg.Channel, Payload: []byte(msg.Payload)})
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}

		if err := c.reconnect(ctx); err != nil {
			if c.logg != nil {
				c.logg.Error(ctx, "channel transport reconnect failed", err)
			}
			return
		}
	}
}

// reconnect rebuilds the subscribe connection with exponential backoff and
// replays the refcounted interest set so process-wide subscriptions survive
// a dropped connection.
func (c *Client) reconnect(ctx context.Context) error {
	backoff := retry.WithCappedDuration(c.cfg.ReconnectMaxWait, retry.NewExponential(c.cfg.ReconnectMinWait))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn := c.newConn(ctx)

		c.mu.Lock()
		channels := make([]string, 0, len(c.interest))
		for name := range c.interest {
			channels = append(channels, name)
		}
		c.mu.Unlock()

		if len(channels) > 0 {
			if err := conn.Subscribe(ctx, channels...); err != nil {
				_ = conn.Close()
				return retry.RetryableError(err)
			}
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()

		if c.logg != nil {
			c.logg.Warn(ctx, "channel transport resubscribed after reconnect")
		}
		return nil
	})
}

func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	fns := make([]ListenerFunc, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}
