// Package client is the connection-manager half that lives with the user: one
// persistent WebSocket per identity, ordered send/receive, reconnection with
// backoff, and the REST collaborators the realtime layer depends on
// (chat-history backfill, notification fetch/ack).
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mfglink/realtime/internal/auth"
	"mfglink/realtime/internal/domain"
	"mfglink/realtime/internal/frame"
)

// ConnState mirrors the transport lifecycle.
type ConnState int

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Options tunes the manager. Zero values fall back to sane defaults.
type Options struct {
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	WriteTimeout time.Duration
}

func (o *Options) fill() {
	if o.ReconnectMin == 0 {
		o.ReconnectMin = 500 * time.Millisecond
	}
	if o.ReconnectMax == 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// Manager owns one transport bound to one identity for its lifetime. Frames
// are delivered to the OnFrame handler in arrival order, exactly once; sends
// while not open are dropped with a logged warning (no client-side buffering —
// signaling loss surfaces through the caller's timeout, chat through reload).
type Manager struct {
	url    string
	opts   Options
	dialer *websocket.Dialer

	onFrame         func(frame.Frame)
	onTransportLost func()
	onReconnect     func()

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       *websocket.Conn
	state      ConnState
	identity   domain.UserID
	credential string
	rooms      map[domain.RoomID]struct{}
	loggedOut  bool
	cancel     context.CancelFunc
}

// New builds a manager for the given WebSocket URL (e.g. ws://host:8080/ws).
func New(url string, opts Options) *Manager {
	opts.fill()
	return &Manager{
		url:    url,
		opts:   opts,
		dialer: websocket.DefaultDialer,
		rooms:  make(map[domain.RoomID]struct{}),
	}
}

// OnFrame registers the inbound sink. Must be set before Connect.
func (m *Manager) OnFrame(fn func(frame.Frame)) {
	m.mu.Lock()
	m.onFrame = fn
	m.mu.Unlock()
}

// OnTransportLost fires when the connection drops unexpectedly, before any
// reconnect attempt. An active call must be torn down here.
func (m *Manager) OnTransportLost(fn func()) {
	m.mu.Lock()
	m.onTransportLost = fn
	m.mu.Unlock()
}

// OnReconnect fires after a successful reconnect, once room membership has
// been re-issued.
func (m *Manager) OnReconnect(fn func()) {
	m.mu.Lock()
	m.onReconnect = fn
	m.mu.Unlock()
}

// State reports the transport state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity reports the identity decoded from the credential.
func (m *Manager) Identity() domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Connect decodes the identity from the credential and opens the transport.
// A missing or expired credential fails before any dial with an auth error.
func (m *Manager) Connect(ctx context.Context, credential string) error {
	claims, err := auth.Peek(credential)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateClosed {
		m.mu.Unlock()
		return fmt.Errorf("client: already connected (%s)", m.state)
	}
	m.identity = claims.UserID
	m.credential = credential
	m.loggedOut = false
	m.state = StateConnecting
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateClosed
		m.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.conn = conn
	m.state = StateOpen
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx)
	log.Info().Str("module", "client").Int64("user", int64(claims.UserID)).Msg("connected")
	return nil
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	m.mu.Lock()
	url := m.url + "?token=" + m.credential
	m.mu.Unlock()
	conn, _, err := m.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}
	return conn, nil
}

// Send puts one frame on the wire. JOIN and LEAVE also update the local room
// set so membership survives a reconnect (the server keeps none).
func (m *Manager) Send(f frame.Frame) error {
	m.mu.Lock()
	switch f := f.(type) {
	case frame.Join:
		m.rooms[f.Room] = struct{}{}
	case frame.Leave:
		delete(m.rooms, f.Room)
	}
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		log.Warn().Str("module", "client").Str("tag", frame.Tag(f)).Msg("not open, dropping outbound frame")
		return fmt.Errorf("client: not connected")
	}
	return m.write(conn, f.Encode())
}

func (m *Manager) write(conn *websocket.Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Disconnect is logout: close the transport, drop subscriptions, and never
// auto-reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.loggedOut = true
	m.state = StateClosing
	conn := m.conn
	cancel := m.cancel
	m.rooms = make(map[domain.RoomID]struct{})
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	m.mu.Lock()
	m.state = StateClosed
	m.conn = nil
	m.mu.Unlock()
	log.Info().Str("module", "client").Msg("disconnected")
}

// run reads until the connection drops, then reconnects with backoff for as
// long as the identity stays authenticated.
func (m *Manager) run(ctx context.Context) {
	for {
		m.readLoop()

		m.mu.Lock()
		done := m.loggedOut
		lost := m.onTransportLost
		m.mu.Unlock()
		if done || ctx.Err() != nil {
			return
		}

		log.Warn().Str("module", "client").Msg("transport lost, reconnecting")
		if lost != nil {
			lost()
		}

		if err := m.reconnect(ctx); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("reconnect abandoned")
			m.mu.Lock()
			m.state = StateClosed
			m.conn = nil
			m.mu.Unlock()
			return
		}
	}
}

func (m *Manager) readLoop() {
	m.mu.Lock()
	conn := m.conn
	handler := m.onFrame
	m.mu.Unlock()
	if conn == nil {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := frame.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("dropping malformed inbound frame")
			continue
		}
		if handler != nil {
			handler(f)
		}
	}
}

// reconnect dials with exponential backoff, then re-issues JOIN for every
// room the client still considers itself a member of.
func (m *Manager) reconnect(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateConnecting
	m.conn = nil
	m.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.ReconnectMin
	bo.MaxInterval = m.opts.ReconnectMax
	bo.MaxElapsedTime = 0

	var conn *websocket.Conn
	operation := func() error {
		m.mu.Lock()
		done := m.loggedOut
		m.mu.Unlock()
		if done {
			return backoff.Permanent(fmt.Errorf("client: logged out"))
		}
		c, err := m.dial(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateOpen
	rooms := make([]domain.RoomID, 0, len(m.rooms))
	for r := range m.rooms {
		rooms = append(rooms, r)
	}
	cb := m.onReconnect
	m.mu.Unlock()

	for _, r := range rooms {
		if err := m.write(conn, frame.Join{Room: r}.Encode()); err != nil {
			log.Warn().Err(err).Str("module", "client").Int64("room", int64(r)).Msg("re-join failed")
		}
	}
	log.Info().Str("module", "client").Int("rooms", len(rooms)).Msg("reconnected")
	if cb != nil {
		cb()
	}
	return nil
}
