package preview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prroha/fullstack-starter-sub010/pkg/diag"
)

var managerClock = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }

// fakeControlPlane records calls and fails on demand.
type fakeControlPlane struct {
	mu sync.Mutex

	schemaName    string
	provisionErr  error
	invalidateErr error
	dropErr       error

	provisionCalls  int
	invalidateCalls int
	dropped         []string
}

func (f *fakeControlPlane) Provision(_ context.Context, _ string, _ []string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisionCalls++
	if f.provisionErr != nil {
		return "", f.provisionErr
	}
	return f.schemaName, nil
}

func (f *fakeControlPlane) Invalidate(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidateCalls++
	return f.invalidateErr
}

func (f *fakeControlPlane) DropSchema(_ context.Context, schemaName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, schemaName)
	return f.dropErr
}

func newTestManager(backend Backend) (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	m := NewManager(store, backend,
		WithManagerClock(managerClock),
		WithManagerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return m, store
}

func TestManagerProvisionLifecycle(t *testing.T) {
	backend := &fakeControlPlane{schemaName: "preview_fa3b"}
	m, store := newTestManager(backend)
	ctx := context.Background()

	sess, err := m.Provision(ctx, "tok-123", []string{"auth"}, "basic")
	require.NoError(t, err)

	assert.Equal(t, StatusReady, sess.SchemaStatus)
	assert.Equal(t, "preview_fa3b", sess.SchemaName)
	assert.Equal(t, managerClock().UTC(), sess.CreatedAt)
	assert.Equal(t, managerClock().UTC().Add(DefaultSessionTTL), sess.ExpiresAt)

	stored, err := store.Get(ctx, "tok-123")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, StatusReady, stored.SchemaStatus)
	assert.Equal(t, 1, backend.provisionCalls)
}

func TestManagerProvisionWhileInFlight(t *testing.T) {
	backend := &fakeControlPlane{schemaName: "preview_fa3b"}
	m, store := newTestManager(backend)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Session{
		Token:        "tok-123",
		SchemaStatus: StatusProvisioning,
		CreatedAt:    managerClock(),
		ExpiresAt:    managerClock().Add(time.Hour),
	}))

	_, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.ErrorIs(t, err, ErrProvisionInFlight)
	assert.Equal(t, 0, backend.provisionCalls)
}

func TestManagerProvisionFailureMarksFailed(t *testing.T) {
	backendErr := &TransportError{Op: "provision", Status: 502, Err: errors.New("HTTP 502")}
	backend := &fakeControlPlane{provisionErr: backendErr}
	m, store := newTestManager(backend)
	ctx := context.Background()

	_, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 502, terr.Status)

	stored, err := store.Get(ctx, "tok-123")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, StatusFailed, stored.SchemaStatus)
	assert.Empty(t, stored.SchemaName)
}

func TestManagerProvisionRetryAfterFailed(t *testing.T) {
	backend := &fakeControlPlane{provisionErr: errors.New("connection refused")}
	m, _ := newTestManager(backend)
	ctx := context.Background()

	_, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.Error(t, err)

	backend.mu.Lock()
	backend.provisionErr = nil
	backend.schemaName = "preview_retry"
	backend.mu.Unlock()

	sess, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, sess.SchemaStatus)
	assert.Equal(t, "preview_retry", sess.SchemaName)
	assert.Equal(t, 2, backend.provisionCalls)
}

func TestManagerProvisionReadyReturnsExisting(t *testing.T) {
	backend := &fakeControlPlane{schemaName: "preview_fa3b"}
	m, _ := newTestManager(backend)
	ctx := context.Background()

	first, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.NoError(t, err)

	second, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.NoError(t, err)
	assert.Equal(t, first.SchemaName, second.SchemaName)
	assert.Equal(t, 1, backend.provisionCalls, "ready sessions skip the backend")
}

func TestManagerProvisionInvalidatedSession(t *testing.T) {
	backend := &fakeControlPlane{}
	m, store := newTestManager(backend)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Session{
		Token:        "tok-123",
		SchemaStatus: StatusInvalidated,
		CreatedAt:    managerClock(),
		ExpiresAt:    managerClock().Add(time.Hour),
	}))

	_, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.ErrorIs(t, err, ErrSessionInvalidated)
	assert.Equal(t, 0, backend.provisionCalls)
}

func TestManagerLazyExpiry(t *testing.T) {
	backend := &fakeControlPlane{}
	m, store := newTestManager(backend)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Session{
		Token:        "tok-123",
		SchemaName:   "preview_fa3b",
		SchemaStatus: StatusReady,
		CreatedAt:    managerClock().Add(-2 * time.Hour),
		ExpiresAt:    managerClock().Add(-time.Hour),
	}))

	sess, err := m.Lookup(ctx, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidated, sess.SchemaStatus)

	stored, err := store.Get(ctx, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidated, stored.SchemaStatus, "expiry flip is persisted")
}

func TestManagerLookupUnknown(t *testing.T) {
	m, _ := newTestManager(&fakeControlPlane{})

	_, err := m.Lookup(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerInvalidate(t *testing.T) {
	backend := &fakeControlPlane{schemaName: "preview_fa3b"}
	m, store := newTestManager(backend)
	ctx := context.Background()

	_, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.NoError(t, err)

	require.NoError(t, m.Invalidate(ctx, "tok-123"))

	stored, err := store.Get(ctx, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidated, stored.SchemaStatus)
	assert.Equal(t, 1, backend.invalidateCalls)

	// Terminal state: a second invalidate is a no-op.
	require.NoError(t, m.Invalidate(ctx, "tok-123"))
	assert.Equal(t, 1, backend.invalidateCalls)
}

func TestManagerInvalidateBackendFailure(t *testing.T) {
	backend := &fakeControlPlane{
		schemaName:    "preview_fa3b",
		invalidateErr: errors.New("connection reset"),
	}
	m, store := newTestManager(backend)
	ctx := context.Background()

	_, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.NoError(t, err)

	err = m.Invalidate(ctx, "tok-123")
	require.Error(t, err)

	stored, err := store.Get(ctx, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidated, stored.SchemaStatus, "local state still moves forward")
}

func TestManagerInvalidateUnknown(t *testing.T) {
	m, _ := newTestManager(&fakeControlPlane{})

	err := m.Invalidate(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerDropEmptySchemaIsNoop(t *testing.T) {
	backend := &fakeControlPlane{}
	m, _ := newTestManager(backend)

	require.NoError(t, m.Drop(context.Background(), ""))
	assert.Empty(t, backend.dropped)
}

func TestManagerDrop(t *testing.T) {
	backend := &fakeControlPlane{}
	m, _ := newTestManager(backend)

	require.NoError(t, m.Drop(context.Background(), "preview_fa3b"))
	assert.Equal(t, []string{"preview_fa3b"}, backend.dropped)
}

func TestManagerReleaseSwallowsFailures(t *testing.T) {
	backend := &fakeControlPlane{
		schemaName:    "preview_fa3b",
		invalidateErr: errors.New("invalidate down"),
		dropErr:       errors.New("drop down"),
	}
	m, store := newTestManager(backend)
	ctx := context.Background()

	_, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.NoError(t, err)

	warnings := m.Release(ctx, "tok-123")
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		assert.Equal(t, diag.CodePreviewBestEffort, w.Code)
		assert.Equal(t, "tok-123", w.Path)
	}

	stored, err := store.Get(ctx, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidated, stored.SchemaStatus)
}

func TestManagerReleaseHappyPath(t *testing.T) {
	backend := &fakeControlPlane{schemaName: "preview_fa3b"}
	m, _ := newTestManager(backend)
	ctx := context.Background()

	_, err := m.Provision(ctx, "tok-123", nil, "basic")
	require.NoError(t, err)

	warnings := m.Release(ctx, "tok-123")
	assert.Empty(t, warnings)
	assert.Equal(t, 1, backend.invalidateCalls)
	assert.Equal(t, []string{"preview_fa3b"}, backend.dropped)
}

func TestManagerReleaseUnknownSession(t *testing.T) {
	backend := &fakeControlPlane{}
	m, _ := newTestManager(backend)

	warnings := m.Release(context.Background(), "missing")
	assert.Empty(t, warnings)
	assert.Equal(t, 0, backend.invalidateCalls)
	assert.Empty(t, backend.dropped)
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := &Session{Token: "tok-123", SchemaStatus: StatusPending}
	require.NoError(t, store.Put(ctx, sess))

	sess.SchemaStatus = StatusReady

	stored, err := store.Get(ctx, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.SchemaStatus, "store keeps its own copy")

	require.NoError(t, store.Delete(ctx, "tok-123"))
	gone, err := store.Get(ctx, "tok-123")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
