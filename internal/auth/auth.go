// Package auth implements the authentication state machine: credential
// acquisition and storage, connection reconfiguration on credential
// change, and recovery from transport-reported authentication failures.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/adapter"
	"github.com/dataway-dev/dataway/internal/adapter/wamp"
	"github.com/dataway-dev/dataway/internal/bus"
	"github.com/dataway-dev/dataway/internal/config"
	"github.com/dataway-dev/dataway/internal/credstore"
	"github.com/dataway-dev/dataway/internal/logging"
)

// State is the machine's authentication state.
type State string

// Machine states. Unavailable is entered from any state when the
// transport reports the authentication endpoint itself unreachable,
// distinct from credentials being rejected.
const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateUnavailable     State = "unavailable"
)

var (
	// ErrNoCredentials is returned by HasCredentials when no usable
	// principal/secret pair is available.
	ErrNoCredentials = errors.New("no usable credentials")

	// ErrUnavailable reports that the authentication service is
	// unreachable, as opposed to credentials being rejected.
	ErrUnavailable = errors.New("authentication service unavailable")
)

const (
	// logoutGrace bounds how long Logout waits on the remote call.
	// Logout must never hang on the network.
	logoutGrace = 3 * time.Second

	// RevalidateInterval is the default cadence of the background
	// credential re-check.
	RevalidateInterval = 2 * time.Second
)

// Invoker issues a named logical call. Satisfied by the call dispatcher.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// Options wires the machine's collaborators, assembled explicitly at
// process start.
type Options struct {
	Config      config.Auth
	Invoker     Invoker
	Store       credstore.Store
	Notifier    *bus.Bus
	Reconfigure func(adapter.ConnectionParams)
	// Restart is the documented terminal recovery action: the host
	// restarts the client to guarantee a clean session state.
	Restart func()
	Logger  *zap.Logger
}

// Machine is the authentication state machine. All state mutation happens
// under one mutex; collaborators read the flags through accessors.
type Machine struct {
	cfg         config.Auth
	invoker     Invoker
	store       credstore.Store
	notifier    *bus.Bus
	reconfigure func(adapter.ConnectionParams)
	restart     func()
	logger      *zap.Logger

	mu            sync.Mutex
	state         State
	authenticated bool
	principal     string
	secret        string
	preconfigured bool

	subs []*bus.Subscription
}

// New constructs the machine in the Unauthenticated state.
func New(opts Options) *Machine {
	reconfigure := opts.Reconfigure
	if reconfigure == nil {
		reconfigure = func(adapter.ConnectionParams) {}
	}
	return &Machine{
		cfg:         opts.Config,
		invoker:     opts.Invoker,
		store:       opts.Store,
		notifier:    opts.Notifier,
		reconfigure: reconfigure,
		restart:     opts.Restart,
		logger:      opts.Logger,
		state:       StateUnauthenticated,
	}
}

// State reports the current machine state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Authenticated reports the synchronous authentication flag.
func (m *Machine) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// Principal reports the current principal id, empty when anonymous.
func (m *Machine) Principal() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principal
}

// Activate runs once at startup: loads preconfigured credentials,
// subscribes to transport and command notifications, performs the initial
// credential check, and configures the connection. It never fails the
// startup sequence.
func (m *Machine) Activate(ctx context.Context) {
	m.mu.Lock()
	if m.cfg.Preconfigured() {
		m.principal = m.cfg.Key
		m.secret = m.cfg.Secret
		m.preconfigured = true
	}
	m.mu.Unlock()

	authSub := m.notifier.Subscribe(bus.ChannelAuth, bus.WithName("auth-machine"))
	dataSub := m.notifier.Subscribe(bus.ChannelData, bus.WithName("auth-machine"))
	m.mu.Lock()
	m.subs = append(m.subs, authSub, dataSub)
	m.mu.Unlock()
	go m.watchCommands(authSub)
	go m.watchTransport(dataSub)

	usable, _ := m.reconcile()
	if !usable {
		m.logger.Info("starting unauthenticated")
	}
	m.reconfigure(m.connectionParams())
}

// Close unsubscribes from the notification bus, stopping further state
// reactions.
func (m *Machine) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// Login authenticates the principal. For ticket configurations the
// authentication endpoint is called through the dispatcher and the
// returned ticket persisted. For challenge-response configurations the
// candidate pair is held in memory and a reconnect triggered; the outcome
// arrives asynchronously through the challenge during the connection
// attempt.
func (m *Machine) Login(ctx context.Context, principal, secret string) error {
	method := m.method()

	m.mu.Lock()
	m.state = StateAuthenticating
	m.mu.Unlock()

	if method == adapter.AuthCRA {
		m.mu.Lock()
		m.principal = principal
		m.secret = secret
		m.preconfigured = false
		m.mu.Unlock()
		m.logger.Info("challenge-response login, reconnecting",
			logging.Principal(principal))
		m.reconfigure(m.connectionParams())
		return nil
	}

	result, err := m.invoker.Invoke(ctx, m.loginRoute(), map[string]any{
		"username": principal,
		"password": secret,
	})
	if err != nil {
		m.mu.Lock()
		m.state = StateUnauthenticated
		m.authenticated = false
		m.mu.Unlock()
		m.notifier.Publish(bus.ChannelAuth, bus.EventLoginFailed, map[string]any{
			"error": err.Error(),
		})
		return err
	}

	ticket := extractTicket(result, secret)

	m.mu.Lock()
	m.principal = principal
	m.secret = ticket
	m.preconfigured = false
	m.authenticated = true
	m.state = StateAuthenticated
	m.mu.Unlock()

	if err := m.store.Put(m.cfg.StorageKey, credstore.NewRecord(principal, ticket)); err != nil {
		m.logger.Warn("storing credential record failed", zap.Error(err))
	}

	m.logger.Info("login succeeded", logging.Principal(principal))
	m.notifier.Publish(bus.ChannelAuth, bus.EventAuthenticated, map[string]any{
		"authenticated": true,
		"principal":     principal,
	})
	m.reconfigure(m.connectionParams())
	return nil
}

// Logout flips the authenticated flag immediately, removes the stored
// credential record, clears the in-memory pair, and reconfigures the
// connection anonymous. The remote logout call is bounded by the grace
// timer; Logout returns once it settles or the timer fires, whichever is
// first.
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.authenticated = false
	m.state = StateUnauthenticated
	m.principal = ""
	m.secret = ""
	m.preconfigured = false
	m.mu.Unlock()

	if err := m.store.Delete(m.cfg.StorageKey); err != nil {
		m.logger.Warn("removing credential record failed", zap.Error(err))
	}

	m.reconfigure(adapter.Anonymous())

	done := make(chan struct{})
	go func() {
		defer close(done)
		callCtx, cancel := context.WithTimeout(context.Background(), logoutGrace)
		defer cancel()
		if _, err := m.invoker.Invoke(callCtx, m.logoutRoute(), nil); err != nil {
			m.logger.Debug("remote logout call failed", zap.Error(err))
		}
	}()

	select {
	case <-done:
	case <-time.After(logoutGrace):
	case <-ctx.Done():
	}

	m.notifier.Publish(bus.ChannelAuth, bus.EventAuthenticated, map[string]any{
		"authenticated": false,
	})
	return nil
}

// HasCredentials reports whether a usable principal/secret pair is
// available from memory, the credential store, or static configuration.
// As a side effect it reconciles the authenticated flag with the outcome
// and triggers a reconnect when the flag changed.
func (m *Machine) HasCredentials(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateUnavailable {
		m.mu.Unlock()
		return ErrUnavailable
	}
	m.mu.Unlock()

	usable, changed := m.reconcile()
	if changed {
		m.reconfigure(m.connectionParams())
		m.notifier.Publish(bus.ChannelAuth, bus.EventAuthenticated, map[string]any{
			"authenticated": usable,
		})
	}
	if !usable {
		return ErrNoCredentials
	}
	return nil
}

// StartRevalidation re-checks credentials on a fixed interval until the
// context is cancelled.
func (m *Machine) StartRevalidation(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = RevalidateInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = m.HasCredentials(ctx)
			}
		}
	}()
}

// reconcile resolves the best available credential pair and aligns the
// authenticated flag with it. It reports whether a pair is usable and
// whether the flag changed.
func (m *Machine) reconcile() (usable, changed bool) {
	m.mu.Lock()
	principal, secret := m.principal, m.secret
	wasAuthenticated := m.authenticated
	m.mu.Unlock()

	usable = principal != "" && secret != ""
	preconfigured := false

	if !usable {
		if record, err := m.store.Get(m.cfg.StorageKey); err == nil {
			if record.Principal != "" && record.Secret != "" {
				principal, secret = record.Principal, record.Secret
				usable = true
			}
		}
	}
	if !usable && m.cfg.Preconfigured() {
		principal, secret = m.cfg.Key, m.cfg.Secret
		usable = true
		preconfigured = true
	}

	m.mu.Lock()
	m.authenticated = usable
	if usable {
		m.principal = principal
		m.secret = secret
		if preconfigured {
			m.preconfigured = true
		}
		m.state = StateAuthenticated
	} else {
		m.state = StateUnauthenticated
	}
	changed = usable != wasAuthenticated
	m.mu.Unlock()
	return usable, changed
}

// watchCommands reacts to inbound commands on the auth channel.
func (m *Machine) watchCommands(sub *bus.Subscription) {
	for event := range sub.C() {
		switch event.Type {
		case bus.EventEvaluate:
			_ = m.HasCredentials(context.Background())
		case bus.EventLogout:
			_ = m.Logout(context.Background())
		}
	}
}

// watchTransport reacts to transport lifecycle notifications.
func (m *Machine) watchTransport(sub *bus.Subscription) {
	for event := range sub.C() {
		switch event.Type {
		case bus.EventAuthFailed:
			m.handleAuthFailed(event)
		case bus.EventUnavailable:
			m.mu.Lock()
			m.state = StateUnavailable
			m.authenticated = false
			m.mu.Unlock()
			m.logger.Warn("authentication service unavailable")
			m.notifier.Publish(bus.ChannelAuth, bus.EventUnavailable, nil)
		case bus.EventConnected:
			m.handleConnected(event)
		}
	}
}

// handleConnected completes asynchronous challenge-response logins: an
// authenticated session established after a reconnect means the candidate
// credentials were accepted, without any call to the login endpoint.
func (m *Machine) handleConnected(event bus.Event) {
	method := ""
	if event.Data != nil {
		method, _ = event.Data["authmethod"].(string)
	}

	m.mu.Lock()
	if m.state == StateUnavailable {
		m.state = StateUnauthenticated
	}
	if method == "" || method == "anonymous" {
		m.mu.Unlock()
		return
	}
	principal, secret := m.principal, m.secret
	preconfigured := m.preconfigured
	wasAuthenticated := m.authenticated
	m.authenticated = true
	m.state = StateAuthenticated
	m.mu.Unlock()

	if !preconfigured && principal != "" {
		if err := m.store.Put(m.cfg.StorageKey, credstore.NewRecord(principal, secret)); err != nil {
			m.logger.Warn("storing credential record failed", zap.Error(err))
		}
	}
	if !wasAuthenticated {
		m.logger.Info("authenticated via connection challenge",
			logging.Principal(principal), logging.AuthMethod(method))
		m.notifier.Publish(bus.ChannelAuth, bus.EventAuthenticated, map[string]any{
			"authenticated": true,
			"principal":     principal,
		})
	}
}

// handleAuthFailed recovers from a transport authentication failure. A
// forced logout of an interactively established session is unrecoverable:
// session state may be inconsistent with the server, so the store is
// cleared and the host asked to restart the client. Everything else
// returns to Unauthenticated for the UI to retry.
func (m *Machine) handleAuthFailed(event bus.Event) {
	m.mu.Lock()
	wasAuthenticated := m.authenticated
	preconfigured := m.preconfigured
	m.authenticated = false
	m.state = StateUnauthenticated
	if !preconfigured {
		m.principal = ""
		m.secret = ""
	}
	m.mu.Unlock()

	if wasAuthenticated && !preconfigured {
		if err := m.store.Delete(m.cfg.StorageKey); err != nil {
			m.logger.Warn("removing credential record failed", zap.Error(err))
		}
		m.logger.Error("forced logout from transport, requesting client restart")
		if m.restart != nil {
			m.restart()
		}
		return
	}

	m.logger.Warn("authentication rejected by transport")
	m.notifier.Publish(bus.ChannelAuth, bus.EventLoginFailed, event.Data)
}

// method resolves the configured challenge method, defaulting to
// challenge-response when a static principal/secret pair is known and to
// ticket otherwise.
func (m *Machine) method() adapter.AuthMethod {
	if m.cfg.WAMPAuthMethod != "" {
		return adapter.AuthMethod(m.cfg.WAMPAuthMethod)
	}
	if m.cfg.Preconfigured() {
		return adapter.AuthCRA
	}
	return adapter.AuthTicket
}

// connectionParams builds the parameters pushed into the active adapter,
// with the challenge handler supplied as a typed function value.
func (m *Machine) connectionParams() adapter.ConnectionParams {
	m.mu.Lock()
	principal, secret := m.principal, m.secret
	m.mu.Unlock()

	if principal == "" || secret == "" {
		return adapter.Anonymous()
	}
	params := adapter.ConnectionParams{
		Principal: principal,
		Secret:    secret,
		Method:    m.method(),
	}
	params.Challenge = wamp.ChallengeResponder(params)
	return params
}

func (m *Machine) loginRoute() string {
	return m.serviceName() + ".login"
}

func (m *Machine) logoutRoute() string {
	return m.serviceName() + ".logout"
}

func (m *Machine) serviceName() string {
	if m.cfg.Service != "" {
		return m.cfg.Service
	}
	return "auth"
}

// extractTicket pulls the ticket value from a login result, falling back
// to the submitted secret when the server returns none.
func extractTicket(result any, fallback string) string {
	switch v := result.(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		for _, key := range []string{"ticket", "secret", "token"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}
