// Package feed maintains a websocket subscription to a quote stream and
// republishes ticks as broker quotes. The connection is owned by Run, which
// redials with doubling backoff and replays the subscription set after every
// reconnect.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"rotor-api/pkg/broker"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 20 * time.Second
	reconnectMin        = time.Second
	reconnectMax        = 30 * time.Second
)

type subscribeMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type tickMsg struct {
	Type    string  `json:"type"`
	Symbol  string  `json:"symbol"`
	Price   float64 `json:"price"`
	LotSize int64   `json:"lotSize"`
	TsMilli int64   `json:"ts"`
}

// Client subscribes to instrument quotes over a websocket feed.
type Client struct {
	url    string
	dialer *websocket.Dialer

	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration

	mu      sync.Mutex
	symbols map[string]struct{}
	conn    *websocket.Conn

	quotes chan broker.Quote
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeouts overrides the read, write and ping intervals.
func WithTimeouts(read, write, ping time.Duration) Option {
	return func(c *Client) {
		if read > 0 {
			c.readTimeout = read
		}
		if write > 0 {
			c.writeTimeout = write
		}
		if ping > 0 {
			c.pingInterval = ping
		}
	}
}

// New constructs a feed client for url. Run must be called to connect.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		dialer:       websocket.DefaultDialer,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		symbols:      make(map[string]struct{}),
		quotes:       make(chan broker.Quote, 1024),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quotes exposes the tick stream. The channel is never closed; consumers
// stop via their own context.
func (c *Client) Quotes() <-chan broker.Quote { return c.quotes }

// Subscribe adds symbols to the subscription set and, when connected, sends
// the delta immediately. Unknown symbols are accepted; the feed decides what
// it can serve.
func (c *Client) Subscribe(symbols ...string) error {
	c.mu.Lock()
	added := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := c.symbols[s]; !ok {
			c.symbols[s] = struct{}{}
			added = append(added, s)
		}
	}
	conn := c.conn
	c.mu.Unlock()
	if len(added) == 0 || conn == nil {
		return nil
	}
	return c.sendSubscribe(conn, added)
}

// Unsubscribe drops symbols from the set. The feed keeps streaming them
// until the next reconnect; stale ticks are harmless to consumers.
func (c *Client) Unsubscribe(symbols ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		delete(c.symbols, s)
	}
}

func (c *Client) sendSubscribe(conn *websocket.Conn, symbols []string) error {
	sort.Strings(symbols)
	payload, err := json.Marshal(subscribeMsg{Type: "subscribe", Symbols: symbols})
	if err != nil {
		return fmt.Errorf("feed: encode subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("feed: send subscribe: %w", err)
	}
	return nil
}

// Run dials the feed and pumps ticks until ctx is cancelled. Connection
// failures redial with doubling backoff; the subscription set is replayed
// after every successful dial.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.runConn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logx.Errorf("feed: connection to %s lost: %v, redialing in %s", c.url, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Client) runConn(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", c.url, err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	current := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		current = append(current, s)
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	if len(current) > 0 {
		if err := c.sendSubscribe(conn, current); err != nil {
			return err
		}
	}

	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		return nil
	})

	pings := time.NewTicker(c.pingInterval)
	defer pings.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-pings.C:
				conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		c.dispatch(message)
	}
}

func (c *Client) dispatch(message []byte) {
	var tick tickMsg
	if err := json.Unmarshal(message, &tick); err != nil {
		logx.Errorf("feed: dropping undecodable message: %v", err)
		return
	}
	if tick.Type != "quote" || tick.Symbol == "" {
		return
	}
	q := broker.Quote{
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		LotSize:   tick.LotSize,
		UpdatedAt: time.UnixMilli(tick.TsMilli),
	}
	select {
	case c.quotes <- q:
	default:
		logx.Errorf("feed: quote buffer full, dropping tick for %s", tick.Symbol)
	}
}
