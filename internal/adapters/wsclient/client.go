// Package wsclient is the client side of the signaling websocket. It keeps a
// connection to the relay, redialing with exponential backoff.
package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// URL is the websocket endpoint, e.g. ws://host:8080/api/ws/signal.
	URL         string
	UserID      domain.UserID
	DisplayName string

	// MaxElapsed bounds one redial sequence. Zero retries until ctx is done.
	MaxElapsed time.Duration
	SendBuffer int
	PingPeriod time.Duration
	WriteWait  time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 25 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	return o
}

// Client implements core.Signaler over a websocket.
type Client struct {
	opts   Options
	log    zerolog.Logger
	http   *http.Client
	dialer *websocket.Dialer

	out  chan core.Frame
	done chan struct{}

	subMu  sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool

	connected chan struct{}
	connOnce  sync.Once
}

var _ core.Signaler = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if opts.UserID == "" {
		return nil, domain.ErrUserIDEmpty
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &Client{
		opts:      opts,
		log:       log.With().Str("module", "wsclient").Str("user", string(opts.UserID)).Logger(),
		http:      &http.Client{Jar: jar, Timeout: 10 * time.Second},
		dialer:    &websocket.Dialer{Jar: jar, HandshakeTimeout: 10 * time.Second},
		out:       make(chan core.Frame, opts.SendBuffer),
		done:      make(chan struct{}),
		subs:      make(map[int]*subscriber),
		connected: make(chan struct{}),
	}, nil
}

// Send queues env for the relay. It does not wait for the socket, so
// envelopes sent while redialing go out after reconnect.
func (c *Client) Send(ctx context.Context, env domain.Envelope) error {
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return domain.ErrBackpressure
	}
}

type subscriber struct {
	ch   chan domain.Envelope
	quit chan struct{}
}

// Subscribe returns inbound envelopes in arrival order. The socket waits for
// a subscriber that falls behind, so nothing is lost to a busy consumer.
func (c *Client) Subscribe() (<-chan domain.Envelope, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	sub := &subscriber{ch: make(chan domain.Envelope, 64), quit: make(chan struct{})}
	if c.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = sub
	return sub.ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub.quit)
		}
	}
}

func (c *Client) publish(ctx context.Context, env domain.Envelope) {
	c.subMu.Lock()
	subs := make([]*subscriber, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subMu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- env:
			continue
		default:
		}
		c.log.Debug().Str("type", string(env.Type)).Msg("subscriber behind, waiting")
		select {
		case sub.ch <- env:
		case <-sub.quit:
		case <-ctx.Done():
			return
		}
	}
}

// closeSubs runs once no read loop is left to publish.
func (c *Client) closeSubs() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.closed = true
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub.ch)
	}
}

// Run keeps the connection up until ctx is done or a redial sequence gives up.
// Subscriptions are closed when Run returns.
func (c *Client) Run(ctx context.Context) error {
	defer c.closeSubs()
	defer close(c.done)

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", domain.ErrTargetUnreachable, err)
		}
		c.connOnce.Do(func() { close(c.connected) })
		c.log.Info().Str("url", c.opts.URL).Msg("connected")

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Msg("connection lost, redialing")
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = c.opts.MaxElapsed

	var conn *websocket.Conn
	op := func() error {
		if err := c.login(ctx); err != nil {
			return err
		}
		ws, resp, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = ws
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Debug().Err(err).Dur("retry_in", wait).Msg("dial failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// login establishes the cookie session the relay reads the user from.
func (c *Client) login(ctx context.Context) error {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return backoff.Permanent(err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = "/api/session"
	u.RawQuery = ""

	body, err := json.Marshal(map[string]string{
		"user_id":      string(c.opts.UserID),
		"display_name": c.opts.DisplayName,
	})
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("login: %s", resp.Status))
	default:
		return fmt.Errorf("login: %s", resp.Status)
	}
}

// serve pumps one connection until it breaks or ctx is done. It returns only
// after the read loop has stopped.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	readErr := make(chan error, 1)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readErr <- c.readLoop(ctx, conn)
		cancel()
	}()
	defer func() {
		cancel()
		_ = conn.Close()
		<-readDone
	}()

	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	ping, _ := json.Marshal(domain.ControlFrame{Type: domain.ControlPing})

	for {
		var frame []byte
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			select {
			case err := <-readErr:
				return err
			default:
				return ctx.Err()
			}
		case <-ticker.C:
			frame = ping
		case frame = <-c.out:
		}
		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Warn().Err(err).Msg("write failed, frame lost")
			return err
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var head domain.ControlFrame
		if err := json.Unmarshal(data, &head); err != nil {
			c.log.Warn().Err(err).Msg("bad frame")
			continue
		}
		switch head.Type {
		case domain.ControlPong, domain.ControlPing:
			continue
		case domain.ControlError:
			c.log.Warn().Str("error", head.Error).Str("ref", head.Ref).Msg("server rejected frame")
			continue
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn().Err(err).Msg("bad envelope")
			continue
		}
		if !env.Type.Valid() {
			c.log.Warn().Str("type", string(env.Type)).Msg("unknown envelope type")
			continue
		}
		c.publish(ctx, env)
	}
}

// ErrStopped is returned by WaitConnected when Run has exited.
var ErrStopped = errors.New("signaling client stopped")

// WaitConnected blocks until the first dial succeeds.
func (c *Client) WaitConnected(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
