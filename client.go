package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrPaused is returned by connection attempts made while subscriptions are
// paused; no attempts are scheduled or made until resume.
var ErrPaused = errors.New("client is paused")

// connectAttempt is the shared outcome of one in-flight connection attempt.
// Concurrent callers of ForceConnect wait on the same attempt instead of
// opening a second socket.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Client owns a single WebSocket connection to a vehicle-data server: it
// decodes inbound frames, fans them out to subscribers, keeps the connection
// alive and self-healing across drops, and supports application-driven
// pause/resume without losing subscriber registrations.
type Client struct {
	cfg      Config
	set      settings
	tp       transport
	registry *subscriptionRegistry
	ka       *keepalive
	onError  ErrorHandler

	schema atomic.Pointer[schemaDecoder]
	cancel context.CancelFunc // stops the background schema loader

	mu             sync.Mutex
	state          ConnState
	conn           wireConn
	connGen        int // invalidates callbacks from replaced connections
	paused         bool
	destroyed      bool
	backoff        *backoff
	reconnectTimer *clock.Timer
	pending        *connectAttempt
	lastFrame      time.Time

	stateListeners  map[string]*stateListener
	resumeListeners map[string]func()
}

// stateListener pairs a connection-state callback with the gate for its
// deferred initial notice. Transition notices wait on the gate, so a listener
// can never observe the initial notice after a later transition.
type stateListener struct {
	fn      func(connected bool)
	initial chan struct{} // closed once the initial notice has resolved
}

// NewClient creates a telemetry client for the given configuration. The
// onError handler receives client-level errors that cannot be returned to a
// direct caller (frame decode drops, schema-load exhaustion, removed
// callbacks) and must not be nil. The client does not connect until
// ForceConnect is called.
func NewClient(cfg Config, onError ErrorHandler, opts ...Option) (*Client, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	if onError == nil {
		return nil, errors.New("ErrorHandler must not be nil")
	}

	set := defaultSettings()
	for _, opt := range opts {
		opt(&set)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:             resolved,
		set:             set,
		tp:              newWSTransport(resolved.URL, set.connectTimeout),
		registry:        newSubscriptionRegistry(),
		ka:              newKeepalive(set.clock, set.pingInterval),
		onError:         onError,
		cancel:          cancel,
		backoff:         newBackoff(set.reconnectBase, set.reconnectMax),
		stateListeners:  make(map[string]*stateListener),
		resumeListeners: make(map[string]func()),
	}
	go c.loadSchema(ctx)
	return c, nil
}

// Subscribe registers fn for the given message type, or for TypeAll to match
// any type without a more specific subscriber. It returns the unsubscribe
// function; invalid input yields a no-op unsubscribe. Subscriptions survive
// disconnects and pause/resume cycles.
func (c *Client) Subscribe(msgType string, fn MessageHandler) func() {
	return c.registry.subscribe(msgType, fn)
}

// ForceConnect opens the connection, cancelling any pending scheduled
// reconnect. It is idempotent: while an attempt is already in flight the call
// waits for that attempt's outcome instead of opening a second socket.
func (c *Client) ForceConnect(ctx context.Context) error {
	return c.connect(ctx)
}

// IsConnected reports whether the connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnConnectionChange registers a listener for connection-state transitions
// and returns its unregister function. The listener is called with true when
// the connection opens and false on every other transition. The initial
// current-state notice is delivered asynchronously to avoid re-entrant
// registration issues; subsequent notices are delivered at the transition.
func (c *Client) OnConnectionChange(fn func(connected bool)) func() {
	if fn == nil {
		return func() {}
	}
	id := uuid.New().String()
	l := &stateListener{fn: fn, initial: make(chan struct{})}

	c.mu.Lock()
	c.stateListeners[id] = l
	c.mu.Unlock()

	// The initial notice reads the state when it runs, not at registration,
	// so a transition landing in between cannot leave the listener holding a
	// stale value. The gate keeps transition notices behind it.
	go func() {
		c.mu.Lock()
		_, still := c.stateListeners[id]
		connected := c.state == StateConnected
		c.mu.Unlock()
		if still {
			c.invokeStateListener(id, fn, connected)
		}
		close(l.initial)
	}()

	return func() {
		c.mu.Lock()
		delete(c.stateListeners, id)
		c.mu.Unlock()
	}
}

// OnResume registers a listener invoked after ResumeSubscriptions has
// restored the connection. Consumers use it to re-request upstream replay.
// Returns the unregister function.
func (c *Client) OnResume(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	id := uuid.New().String()

	c.mu.Lock()
	c.resumeListeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.resumeListeners, id)
		c.mu.Unlock()
	}
}

// PauseSubscriptions suspends live delivery and the keepalive and reconnect
// timers without closing the socket or dropping registrations. Idempotent.
func (c *Client) PauseSubscriptions() {
	c.mu.Lock()
	if c.paused || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.paused = true
	c.cancelReconnectLocked()
	c.mu.Unlock()

	c.ka.stop()
}

// ResumeSubscriptions clears the pause flag. If the socket is not open it
// initiates a connection attempt and waits for its outcome; on success the
// keepalive schedule restarts and the resume listeners are notified.
// Idempotent: resuming an unpaused client is a no-op.
func (c *Client) ResumeSubscriptions(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrClientDestroyed
	}
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	c.paused = false
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected {
		c.ka.start(c.sendProbe)
	} else if err := c.connect(ctx); err != nil {
		return err
	}

	c.notifyResume()
	return nil
}

// Destroy tears down all timers and the socket. The client cannot be used
// afterwards; this is the only terminal transition.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.cancelReconnectLocked()
	conn := c.conn
	c.conn = nil
	c.connGen++
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.ka.stop()
	c.cancel()
	if conn != nil {
		conn.close()
	}
	if notify {
		c.notifyConnectionChange(false)
	}
}

// connect performs one connection attempt, sharing its outcome with
// concurrent callers.
func (c *Client) connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrClientDestroyed
	}
	if c.paused {
		c.mu.Unlock()
		return ErrPaused
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if a := c.pending; a != nil {
		c.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.cancelReconnectLocked()
	a := &connectAttempt{done: make(chan struct{})}
	c.pending = a
	notify := false
	if c.state != StateReconnecting {
		notify = c.setStateLocked(StateConnecting)
	}
	c.mu.Unlock()
	if notify {
		c.notifyConnectionChange(false)
	}

	dctx, cancel := c.set.clock.WithTimeout(ctx, c.set.connectTimeout)
	conn, err := c.tp.dial(dctx)
	cancel()
	if err != nil && dctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %v", ErrConnectTimeout, c.set.connectTimeout, err)
	}

	c.mu.Lock()
	c.pending = nil
	if c.destroyed {
		a.err = ErrClientDestroyed
		c.mu.Unlock()
		close(a.done)
		if conn != nil {
			conn.close()
		}
		return ErrClientDestroyed
	}
	if err != nil {
		a.err = err
		notify = c.setStateLocked(StateError)
		paused := c.paused
		c.mu.Unlock()
		close(a.done)
		if notify {
			c.notifyConnectionChange(false)
		}
		if !paused {
			c.scheduleReconnect()
		}
		return err
	}

	c.conn = conn
	c.connGen++
	gen := c.connGen
	c.backoff.reset()
	c.lastFrame = c.set.clock.Now()
	paused := c.paused // pause during the dial keeps keepalive suspended
	notify = c.setStateLocked(StateConnected)
	c.mu.Unlock()
	close(a.done)
	if notify {
		c.notifyConnectionChange(true)
	}

	go c.readLoop(conn, gen)
	if !paused {
		c.ka.start(c.sendProbe)
	}
	return nil
}

// scheduleReconnect arms the backoff timer for the next attempt. No-op when
// destroyed, paused, already connected, already scheduled, or mid-attempt.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.destroyed || c.paused || c.reconnectTimer != nil ||
		c.state == StateConnected || c.pending != nil {
		c.mu.Unlock()
		return
	}
	delay := c.backoff.next()
	notify := c.setStateLocked(StateReconnecting)
	c.reconnectTimer = c.set.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		skip := c.destroyed || c.paused
		c.mu.Unlock()
		if !skip {
			c.connect(context.Background())
		}
	})
	c.mu.Unlock()
	if notify {
		c.notifyConnectionChange(false)
	}
}

func (c *Client) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// readLoop pulls frames off one connection until it dies. Decode, normalize
// and dispatch all run here, so subscribers see messages in wire order.
func (c *Client) readLoop(conn wireConn, gen int) {
	for {
		data, binary, err := conn.readFrame()
		if err != nil {
			c.handleDisconnect(conn, gen, err)
			return
		}
		c.handleFrame(data, binary)
	}
}

func (c *Client) handleFrame(data []byte, binary bool) {
	now := c.set.clock.Now()

	c.mu.Lock()
	c.lastFrame = now
	paused := c.paused
	c.mu.Unlock()

	// Frames arriving during pause are discarded: at-most-once delivery,
	// no buffering, no replay on resume.
	if paused {
		return
	}

	raw, err := decodeFrame(data, binary, c.schema.Load())
	if err != nil {
		c.onError(ClientError{
			Kind:      ErrDecodeFailure,
			Cause:     err,
			Raw:       data,
			Timestamp: now,
		})
		return
	}

	msg := normalize(raw, "", now)
	if isPong(msg) {
		return
	}
	c.registry.dispatch(msg, c.onError)
}

func (c *Client) handleDisconnect(conn wireConn, gen int, err error) {
	c.mu.Lock()
	if c.destroyed || gen != c.connGen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	var notify bool
	if isCleanClose(err) {
		notify = c.setStateLocked(StateDisconnected)
	} else {
		notify = c.setStateLocked(StateError)
	}
	paused := c.paused
	c.mu.Unlock()

	c.ka.stop()
	conn.close()
	if notify {
		c.notifyConnectionChange(false)
	}
	if !paused {
		c.scheduleReconnect()
	}
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// sendProbe is driven by the keepalive schedule. It checks for a stale
// connection before probing; a connection that has been silent past the
// inactivity window is forced closed so the reconnect path recovers it.
// Probing is a no-op while paused or while the socket is not open, and never
// propagates a failure.
func (c *Client) sendProbe(pingID int, sentAt int64) {
	c.mu.Lock()
	conn := c.conn
	paused := c.paused
	connected := c.state == StateConnected
	last := c.lastFrame
	c.mu.Unlock()

	if paused || !connected || conn == nil {
		return
	}

	if c.set.clock.Now().Sub(last) > c.set.inactivityTimeout {
		conn.close()
		return
	}

	data, err := json.Marshal(pingProbe{Type: typePing, PingID: pingID, Timestamp: sentAt})
	if err != nil {
		return
	}
	if err := conn.writeText(data); err != nil {
		c.onError(ClientError{
			Kind:      ErrTransportWrite,
			Cause:     err,
			Timestamp: c.set.clock.Now(),
		})
		if c.set.clock.Now().Sub(last) > c.set.inactivityTimeout {
			conn.close()
		}
	}
}

// setStateLocked records a transition and reports whether listeners must be
// notified once the lock is released.
func (c *Client) setStateLocked(s ConnState) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Client) notifyConnectionChange(connected bool) {
	c.mu.Lock()
	entries := make(map[string]*stateListener, len(c.stateListeners))
	for id, l := range c.stateListeners {
		entries[id] = l
	}
	c.mu.Unlock()

	for id, l := range entries {
		<-l.initial
		c.invokeStateListener(id, l.fn, connected)
	}
}

// invokeStateListener isolates listener panics: the offender is unregistered
// and the remaining listeners are still notified.
func (c *Client) invokeStateListener(id string, fn func(bool), connected bool) {
	defer func() {
		if rec := recover(); rec != nil {
			c.mu.Lock()
			delete(c.stateListeners, id)
			c.mu.Unlock()
			c.onError(ClientError{
				Kind:      ErrListenerPanic,
				Cause:     fmt.Errorf("connection listener panic: %v", rec),
				Timestamp: c.set.clock.Now(),
			})
		}
	}()
	fn(connected)
}

func (c *Client) notifyResume() {
	c.mu.Lock()
	entries := make(map[string]func(), len(c.resumeListeners))
	for id, fn := range c.resumeListeners {
		entries[id] = fn
	}
	c.mu.Unlock()

	for id, fn := range entries {
		c.invokeResumeListener(id, fn)
	}
}

func (c *Client) invokeResumeListener(id string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.mu.Lock()
			delete(c.resumeListeners, id)
			c.mu.Unlock()
			c.onError(ClientError{
				Kind:      ErrListenerPanic,
				Cause:     fmt.Errorf("resume listener panic: %v", rec),
				Timestamp: c.set.clock.Now(),
			})
		}
	}()
	fn()
}

// loadSchema fetches and compiles the binary-frame schema in the background.
// After the retry budget is exhausted the client stays in JSON-only mode and
// the failure is reported once through the ErrorHandler.
func (c *Client) loadSchema(ctx context.Context) {
	loader := &schemaLoader{
		url:     c.cfg.SchemaURL,
		retries: c.set.schemaRetries,
		delay:   c.set.schemaRetryDelay,
		clk:     c.set.clock,
		httpc:   http.DefaultClient,
	}
	dec, err := loader.load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.onError(ClientError{
				Kind:      ErrSchemaLoad,
				Cause:     err,
				Timestamp: c.set.clock.Now(),
			})
		}
		return
	}
	c.schema.Store(dec)
}
