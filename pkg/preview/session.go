package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prroha/fullstack-starter-sub010/pkg/diag"
)

// SchemaStatus tracks a session's schema through its lifecycle. Transitions
// only move forward except invalidated, which is terminal.
type SchemaStatus string

const (
	StatusPending      SchemaStatus = "pending"
	StatusProvisioning SchemaStatus = "provisioning"
	StatusReady        SchemaStatus = "ready"
	StatusFailed       SchemaStatus = "failed"
	StatusInvalidated  SchemaStatus = "invalidated"
)

// Session is one preview session and the schema provisioned for it.
type Session struct {
	Token        string       `json:"sessionToken"`
	SchemaName   string       `json:"schemaName,omitempty"`
	SchemaStatus SchemaStatus `json:"schemaStatus"`
	CreatedAt    time.Time    `json:"createdAt"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

var (
	ErrSessionNotFound = errors.New("preview: session not found")

	// ErrProvisionInFlight is returned when Provision is called while an
	// earlier provision for the same session has not yet resolved.
	ErrProvisionInFlight = errors.New("preview: provision already in flight")

	ErrSessionInvalidated = errors.New("preview: session invalidated")
)

// Store persists preview sessions. Get returns (nil, nil) when the token
// is unknown.
type Store interface {
	Get(ctx context.Context, token string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, token string) error
}

// Backend is the slice of the preview backend the manager drives.
// *Client implements it.
type Backend interface {
	Provision(ctx context.Context, sessionToken string, features []string, tier string) (string, error)
	Invalidate(ctx context.Context, sessionToken string) error
	DropSchema(ctx context.Context, schemaName string) error
}

// DefaultSessionTTL is how long a new session stays usable.
const DefaultSessionTTL = 30 * time.Minute

// NewSessionToken mints a fresh opaque session token.
func NewSessionToken() string {
	return uuid.NewString()
}

// Manager enforces the provisioning state machine over a Store and Backend.
type Manager struct {
	store   Store
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// ManagerOption adjusts a Manager at construction.
type ManagerOption func(*Manager)

// WithSessionTTL overrides the expiry horizon for newly created sessions.
func WithSessionTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = d }
}

// WithManagerClock injects the time source. Used by tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithManagerLogger overrides the logger for best-effort failure reporting.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

func NewManager(store Store, backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		backend: backend,
		ttl:     DefaultSessionTTL,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provision moves the session pending -> provisioning -> ready. A transport
// or HTTP failure moves it to failed and the error is returned to the
// caller. Retrying after failed restarts from pending. Calling while a
// provision is in flight returns ErrProvisionInFlight. A session that is
// already ready is returned as is without touching the backend.
func (m *Manager) Provision(ctx context.Context, token string, features []string, tier string) (*Session, error) {
	sess, err := m.load(ctx, token)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if sess == nil {
		sess = &Session{
			Token:        token,
			SchemaStatus: StatusPending,
			CreatedAt:    now,
			ExpiresAt:    now.Add(m.ttl),
		}
	}

	switch sess.SchemaStatus {
	case StatusProvisioning:
		return nil, ErrProvisionInFlight
	case StatusReady:
		return sess, nil
	case StatusInvalidated:
		return nil, ErrSessionInvalidated
	case StatusFailed:
		sess.SchemaStatus = StatusPending
		sess.SchemaName = ""
	}

	sess.SchemaStatus = StatusProvisioning
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("preview: persist provisioning state: %w", err)
	}

	schemaName, provErr := m.backend.Provision(ctx, token, features, tier)
	if provErr != nil {
		sess.SchemaStatus = StatusFailed
		if err := m.store.Put(ctx, sess); err != nil {
			m.log.Error("preview: persist failed state", "session", token, "error", err)
		}
		return nil, provErr
	}

	sess.SchemaName = schemaName
	sess.SchemaStatus = StatusReady
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("preview: persist ready state: %w", err)
	}
	return sess, nil
}

// Invalidate marks the session invalidated and tells the backend. The
// local state moves to invalidated even when the backend call fails; the
// failure is still returned so API callers can see it. Invalidating an
// already invalidated session is a no-op.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	sess, err := m.load(ctx, token)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if sess.SchemaStatus == StatusInvalidated {
		return nil
	}

	callErr := m.backend.Invalidate(ctx, token)

	sess.SchemaStatus = StatusInvalidated
	if err := m.store.Put(ctx, sess); err != nil {
		m.log.Error("preview: persist invalidated state", "session", token, "error", err)
		if callErr == nil {
			callErr = fmt.Errorf("preview: persist invalidated state: %w", err)
		}
	}
	return callErr
}

// Drop removes the backend schema. An empty name is the aftermath of a
// failed provision and is logged as a no-op.
func (m *Manager) Drop(ctx context.Context, schemaName string) error {
	if schemaName == "" {
		m.log.Info("preview: drop skipped, no schema provisioned")
		return nil
	}
	return m.backend.DropSchema(ctx, schemaName)
}

// Lookup returns the session for token, applying lazy expiry first.
func (m *Manager) Lookup(ctx context.Context, token string) (*Session, error) {
	sess, err := m.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Release invalidates the session and drops its schema without letting
// failures escape. Each failure becomes a warning and a log line. Intended
// for generation-path callers where preview cleanup is a side effect.
func (m *Manager) Release(ctx context.Context, token string) []diag.Warning {
	var warnings []diag.Warning

	sess, err := m.load(ctx, token)
	if err != nil {
		m.log.Warn("preview: release lookup failed", "session", token, "error", err)
		return append(warnings, diag.Warningf(diag.CodePreviewBestEffort, token, "session lookup failed: %v", err))
	}
	if sess == nil {
		return nil
	}
	schemaName := sess.SchemaName

	if err := m.Invalidate(ctx, token); err != nil {
		m.log.Warn("preview: best-effort invalidate failed", "session", token, "error", err)
		warnings = append(warnings, diag.Warningf(diag.CodePreviewBestEffort, token, "invalidate failed: %v", err))
	}
	if err := m.Drop(ctx, schemaName); err != nil {
		m.log.Warn("preview: best-effort drop failed", "session", token, "schema", schemaName, "error", err)
		warnings = append(warnings, diag.Warningf(diag.CodePreviewBestEffort, token, "drop schema %s failed: %v", schemaName, err))
	}
	return warnings
}

// load fetches the session and applies lazy expiry. A session past its
// expiresAt moves to invalidated and the flip is persisted.
func (m *Manager) load(ctx context.Context, token string) (*Session, error) {
	sess, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("preview: load session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if sess.SchemaStatus != StatusInvalidated && sess.Expired(m.now().UTC()) {
		sess.SchemaStatus = StatusInvalidated
		if err := m.store.Put(ctx, sess); err != nil {
			m.log.Warn("preview: persist expiry", "session", token, "error", err)
		}
	}
	return sess, nil
}
