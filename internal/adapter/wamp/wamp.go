// Package wamp implements the message-RPC protocol adapter: a persistent
// WAMP connection over websocket with challenge-response authentication,
// reconnect/backoff, and pending-call queueing while the connection opens.
package wamp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/adapter"
	"github.com/dataway-dev/dataway/internal/bus"
	"github.com/dataway-dev/dataway/internal/logging"
	"github.com/dataway-dev/dataway/internal/routes"
)

const (
	dialTimeout      = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	queueCapacity    = 64
)

var errReconfigured = errors.New("connection reconfigured")

// AuthError reports that the router rejected the presented credentials.
type AuthError struct {
	Reason  string
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication rejected: %s (%s)", e.Message, e.Reason)
	}
	return fmt.Sprintf("authentication rejected: %s", e.Reason)
}

// CallError reports a remote call failure from the router.
type CallError struct {
	URI     string
	Message string
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.URI, e.Message)
	}
	return e.URI
}

// Config holds the adapter's endpoint and retry settings.
type Config struct {
	URL        string
	Realm      string
	RetryMax   int // 0 = single attempt, negative = unbounded
	RetryDelay time.Duration
}

// Adapter owns the persistent message-RPC connection. The connection is
// destroyed and recreated whenever Configure is called with new parameters
// and whenever the transport reports a fatal disconnect.
type Adapter struct {
	cfg        Config
	notifier   *bus.Bus
	logger     *zap.Logger
	dialer     *websocket.Dialer
	instanceID string

	mu     sync.Mutex
	conn   *connection
	closed bool
}

// New constructs the adapter. No connection is opened until Configure is
// called. An empty URL leaves the adapter unconfigured.
func New(cfg Config, notifier *bus.Bus, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
			Subprotocols:     []string{subprotocol},
		},
		instanceID: uuid.NewString(),
	}
}

// Configure tears down any existing connection and opens a new one with
// the given parameters.
func (a *Adapter) Configure(params adapter.ConnectionParams) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.conn != nil {
		a.conn.shutdown(errReconfigured)
		a.conn = nil
	}
	if a.cfg.URL == "" {
		return
	}

	conn := newConnection(a, params)
	a.conn = conn
	go conn.run()
}

// Execute issues the route's remote call, passing positional arguments in
// descriptor order and keyword arguments by name. Calls made while the
// connection is opening are queued (bounded) and settle once the
// connection settles or exhausts its retries.
func (a *Adapter) Execute(ctx context.Context, entry *routes.Entry, args map[string]any) (any, error) {
	desc := entry.WAMP
	if desc == nil {
		return nil, fmt.Errorf("route %q has no wamp descriptor", entry.Name)
	}

	a.mu.Lock()
	conn, closed := a.conn, a.closed
	a.mu.Unlock()

	if closed {
		return nil, adapter.ErrClosed
	}
	if conn == nil {
		return nil, adapter.ErrNotConfigured
	}
	return conn.call(ctx, desc, args)
}

// Close shuts the adapter down permanently.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.conn != nil {
		a.conn.shutdown(adapter.ErrClosed)
		a.conn = nil
	}
	return nil
}

// State reports the adapter's connection state for diagnostics.
func (a *Adapter) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "closed"
	}
	if a.conn == nil {
		return "unconfigured"
	}
	return a.conn.stateName()
}

// Attempts reports the current connection's reconnect attempt counter. It
// increases with every dial attempt and resets to zero on a successful
// open.
func (a *Adapter) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return 0
	}
	return a.conn.attemptCount()
}

// ChallengeResponder derives the challenge handler for a parameter set:
// WAMP-CRA signs the server nonce with the shared secret, ticket presents
// the secret directly.
func ChallengeResponder(params adapter.ConnectionParams) adapter.ChallengeFunc {
	return func(method string, extra map[string]any) (string, error) {
		switch adapter.AuthMethod(method) {
		case adapter.AuthCRA:
			challenge := asString(extra["challenge"])
			if challenge == "" {
				return "", errors.New("challenge extra carries no nonce")
			}
			return craSignature(params.Secret, challenge), nil
		case adapter.AuthTicket:
			return params.Secret, nil
		}
		return "", fmt.Errorf("unsupported auth method %q", method)
	}
}

type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateUnavailable
	stateClosed
)

type callResult struct {
	value any
	err   error
}

type queuedCall struct {
	desc   *routes.WAMPDescriptor
	args   map[string]any
	result chan callResult
}

type connection struct {
	parent *Adapter
	params adapter.ConnectionParams
	logger *zap.Logger

	mu          sync.Mutex
	state       connState
	ws          *websocket.Conn
	queue       []queuedCall
	pending     map[int64]chan callResult
	attempts    int
	nextRequest int64
	failure     error

	writeMu sync.Mutex
	done    chan struct{}
}

func newConnection(parent *Adapter, params adapter.ConnectionParams) *connection {
	return &connection{
		parent:  parent,
		params:  params,
		logger:  parent.logger,
		pending: make(map[int64]chan callResult),
		done:    make(chan struct{}),
	}
}

func (c *connection) run() {
	attempt := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		attempt++
		c.mu.Lock()
		c.attempts = attempt
		c.mu.Unlock()

		ws, err := c.dialAndAuthenticate()
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				c.logger.Warn("transport authentication failure",
					logging.URL(c.parent.cfg.URL), zap.Error(authErr))
				c.parent.notifier.Publish(bus.ChannelData, bus.EventAuthFailed, map[string]any{
					"reason":  authErr.Reason,
					"message": authErr.Message,
				})
				c.fail(authErr)
				return
			}

			c.logger.Warn("connection attempt failed",
				logging.URL(c.parent.cfg.URL), logging.Attempt(attempt), zap.Error(err))

			if c.parent.cfg.RetryMax >= 0 && attempt > c.parent.cfg.RetryMax {
				c.logger.Error("connection retries exhausted",
					logging.URL(c.parent.cfg.URL), logging.Attempt(attempt))
				c.parent.notifier.Publish(bus.ChannelData, bus.EventUnavailable, nil)
				c.fail(adapter.ErrUnavailable)
				return
			}

			select {
			case <-c.done:
				return
			case <-time.After(c.parent.cfg.RetryDelay):
			}
			continue
		}

		c.mu.Lock()
		select {
		case <-c.done:
			c.mu.Unlock()
			ws.Close()
			return
		default:
		}
		c.ws = ws
		c.state = stateOpen
		c.attempts = 0
		attempt = 0
		queued := c.queue
		c.queue = nil
		c.mu.Unlock()

		method := c.authMethod()
		c.parent.notifier.Publish(bus.ChannelData, bus.EventConnected, map[string]any{
			"authmethod": string(method),
		})

		for _, qc := range queued {
			go c.dispatchQueued(qc)
		}

		err = c.readLoop(ws)

		select {
		case <-c.done:
			return
		default:
		}

		c.mu.Lock()
		c.state = stateConnecting
		c.ws = nil
		c.failPendingLocked(fmt.Errorf("connection lost: %w", err))
		c.mu.Unlock()

		c.logger.Warn("connection lost", logging.URL(c.parent.cfg.URL), zap.Error(err))
		c.parent.notifier.Publish(bus.ChannelData, bus.EventDisconnected, nil)
	}
}

func (c *connection) authMethod() adapter.AuthMethod {
	if c.params.Anonymous || c.params.Principal == "" {
		return "anonymous"
	}
	if c.params.Method == "" {
		return adapter.AuthCRA
	}
	return c.params.Method
}

func (c *connection) dialAndAuthenticate() (*websocket.Conn, error) {
	ws, resp, err := c.parent.dialer.Dial(c.parent.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dial %s: %w", c.parent.cfg.URL, err)
	}
	if err := c.handshake(ws); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

// handshake establishes the session: HELLO, optional CHALLENGE /
// AUTHENTICATE exchange, then WELCOME or ABORT.
func (c *connection) handshake(ws *websocket.Conn) error {
	method := c.authMethod()
	details := map[string]any{
		"agent":       "dataway/" + c.parent.instanceID,
		"authmethods": []string{string(method)},
		"roles":       map[string]any{"caller": map[string]any{}},
	}
	if method != "anonymous" {
		details["authid"] = c.params.Principal
	}

	if err := c.write(ws, msgHello, c.parent.cfg.Realm, details); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	code, elements, err := c.readHandshake(ws)
	if err != nil {
		return err
	}

	if code == msgChallenge {
		if len(elements) < 1 {
			return errors.New("malformed challenge")
		}
		signature, err := c.answer(asString(elements[0]), challengeExtra(elements))
		if err != nil {
			return fmt.Errorf("answer challenge: %w", err)
		}
		if err := c.write(ws, msgAuthenticate, signature, map[string]any{}); err != nil {
			return fmt.Errorf("send authenticate: %w", err)
		}
		code, elements, err = c.readHandshake(ws)
		if err != nil {
			return err
		}
	}

	switch code {
	case msgWelcome:
		var session int64
		if len(elements) > 0 {
			session, _ = asInt64(elements[0])
		}
		c.logger.Info("session established",
			logging.Realm(c.parent.cfg.Realm),
			logging.AuthMethod(string(method)),
			zap.Int64("session", session))
		return nil
	case msgAbort:
		return abortError(elements)
	}
	return fmt.Errorf("unexpected handshake message code %d", code)
}

func challengeExtra(elements []any) map[string]any {
	if len(elements) > 1 {
		return asMap(elements[1])
	}
	return nil
}

// abortError maps an ABORT message to an error, distinguishing credential
// rejection from other failures.
func abortError(elements []any) error {
	var message, reason string
	if len(elements) > 0 {
		if details := asMap(elements[0]); details != nil {
			message = asString(details["message"])
		}
	}
	if len(elements) > 1 {
		reason = asString(elements[1])
	}
	if reason == uriNotAuthorized || reason == uriAuthFailed {
		return &AuthError{Reason: reason, Message: message}
	}
	return fmt.Errorf("session aborted: %s %s", reason, message)
}

func (c *connection) answer(method string, extra map[string]any) (string, error) {
	if c.params.Challenge != nil {
		return c.params.Challenge(method, extra)
	}
	return ChallengeResponder(c.params)(method, extra)
}

func (c *connection) readHandshake(ws *websocket.Conn) (int64, []any, error) {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	_, data, err := ws.ReadMessage()
	if err != nil {
		return 0, nil, fmt.Errorf("read handshake: %w", err)
	}
	return decodeMessage(data)
}

func (c *connection) write(ws *websocket.Conn, elements ...any) error {
	data, err := encodeMessage(elements...)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *connection) call(ctx context.Context, desc *routes.WAMPDescriptor, args map[string]any) (any, error) {
	c.mu.Lock()
	switch c.state {
	case stateOpen:
		ws := c.ws
		c.mu.Unlock()
		return c.roundTrip(ctx, ws, desc, args)
	case stateConnecting:
		if len(c.queue) >= queueCapacity {
			c.mu.Unlock()
			return nil, adapter.ErrQueueFull
		}
		qc := queuedCall{desc: desc, args: args, result: make(chan callResult, 1)}
		c.queue = append(c.queue, qc)
		c.mu.Unlock()

		select {
		case res := <-qc.result:
			return res.value, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, c.terminalError()
		}
	default:
		err := c.failure
		c.mu.Unlock()
		if err == nil {
			err = adapter.ErrUnavailable
		}
		return nil, err
	}
}

func (c *connection) roundTrip(ctx context.Context, ws *websocket.Conn, desc *routes.WAMPDescriptor, args map[string]any) (any, error) {
	positional := make([]any, len(desc.Args))
	for i, field := range desc.Args {
		positional[i] = args[field]
	}
	kwargs := make(map[string]any, len(desc.KwArgs))
	for _, field := range desc.KwArgs {
		if value, ok := args[field]; ok {
			kwargs[field] = value
		}
	}

	ch := make(chan callResult, 1)

	c.mu.Lock()
	c.nextRequest++
	requestID := c.nextRequest
	c.pending[requestID] = ch
	c.mu.Unlock()

	c.logger.Debug("executing rpc call",
		logging.Endpoint(desc.RPC), zap.Int64("request", requestID))

	if err := c.write(ws, msgCall, requestID, map[string]any{}, desc.RPC, positional, kwargs); err != nil {
		c.removePending(requestID)
		return nil, fmt.Errorf("send call %s: %w", desc.RPC, err)
	}

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		c.removePending(requestID)
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.terminalError()
	}
}

func (c *connection) dispatchQueued(qc queuedCall) {
	c.mu.Lock()
	ws := c.ws
	open := c.state == stateOpen
	c.mu.Unlock()
	if !open || ws == nil {
		qc.result <- callResult{err: c.terminalError()}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	value, err := c.roundTrip(ctx, ws, qc.desc, qc.args)
	qc.result <- callResult{value: value, err: err}
}

func (c *connection) readLoop(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		code, elements, err := decodeMessage(data)
		if err != nil {
			c.logger.Warn("discarding malformed message", zap.Error(err))
			continue
		}

		switch code {
		case msgResult:
			c.handleResult(elements)
		case msgError:
			c.handleError(elements)
		case msgGoodbye, msgAbort:
			return c.handleSessionEnd(code, elements, ws)
		}
	}
}

// handleResult settles the pending call for RESULT [request, details,
// args?, kwargs?].
func (c *connection) handleResult(elements []any) {
	if len(elements) < 1 {
		return
	}
	requestID, ok := asInt64(elements[0])
	if !ok {
		return
	}
	ch := c.takePending(requestID)
	if ch == nil {
		return
	}
	ch <- callResult{value: resultValue(elements)}
}

// resultValue unwraps a RESULT payload: a single positional result is
// returned bare, multiple results as a slice, keyword-only results as a
// map.
func resultValue(elements []any) any {
	var args []any
	var kwargs map[string]any
	if len(elements) > 2 {
		args = asSlice(elements[2])
	}
	if len(elements) > 3 {
		kwargs = asMap(elements[3])
	}

	switch {
	case len(args) == 1 && len(kwargs) == 0:
		return args[0]
	case len(args) > 0:
		return args
	case len(kwargs) > 0:
		return kwargs
	}
	return nil
}

// handleError settles the pending call for ERROR [request_type, request,
// details, error, args?].
func (c *connection) handleError(elements []any) {
	if len(elements) < 4 {
		return
	}
	requestID, ok := asInt64(elements[1])
	if !ok {
		return
	}
	ch := c.takePending(requestID)
	if ch == nil {
		return
	}

	callErr := &CallError{URI: asString(elements[3])}
	if len(elements) > 4 {
		if args := asSlice(elements[4]); len(args) > 0 {
			callErr.Message = asString(args[0])
		}
	}
	ch <- callResult{err: callErr}
}

// handleSessionEnd reacts to a router-initiated GOODBYE or ABORT. An
// authorization reason means the session was force-logged-out; the
// authentication state machine decides the recovery.
func (c *connection) handleSessionEnd(code int64, elements []any, ws *websocket.Conn) error {
	var reason string
	if len(elements) > 1 {
		reason = asString(elements[1])
	}

	if reason == uriNotAuthorized || reason == uriAuthFailed {
		c.logger.Warn("session terminated by router", zap.String("reason", reason))
		c.parent.notifier.Publish(bus.ChannelData, bus.EventAuthFailed, map[string]any{
			"reason": reason,
			"forced": true,
		})
	}

	if code == msgGoodbye {
		// Acknowledge so the router can close cleanly.
		_ = c.write(ws, msgGoodbye, map[string]any{}, "wamp.close.goodbye_and_out")
	}
	return fmt.Errorf("session ended: %s", reason)
}

func (c *connection) takePending(requestID int64) chan callResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.pending[requestID]
	delete(c.pending, requestID)
	return ch
}

func (c *connection) removePending(requestID int64) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// fail moves the connection into a terminal unavailable state, settling
// all queued and pending calls.
func (c *connection) fail(err error) {
	c.mu.Lock()
	c.state = stateUnavailable
	c.failure = err
	c.failPendingLocked(err)
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, qc := range queue {
		qc.result <- callResult{err: err}
	}
}

// shutdown permanently closes the connection, settling queued and pending
// calls with err.
func (c *connection) shutdown(err error) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	c.failure = err
	close(c.done)
	ws := c.ws
	c.ws = nil
	c.failPendingLocked(err)
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	for _, qc := range queue {
		qc.result <- callResult{err: err}
	}
}

func (c *connection) failPendingLocked(err error) {
	for requestID, ch := range c.pending {
		ch <- callResult{err: err}
		delete(c.pending, requestID)
	}
}

func (c *connection) terminalError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return c.failure
	}
	return adapter.ErrUnavailable
}

func (c *connection) stateName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateUnavailable:
		return "unavailable"
	}
	return "closed"
}

func (c *connection) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}
