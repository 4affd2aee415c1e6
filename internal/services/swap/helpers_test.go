package swap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rajivgeraev/flippy-swap/internal/db/sqlite"
	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/notify"
)

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Emit(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) forUser(userID uuid.UUID) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []notify.Notification
	for _, n := range r.got {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type testEnv struct {
	t     *testing.T
	ctx   context.Context
	svc   *Service
	store *sqlite.Store
	notes *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := sqlite.NewTestStore(t)
	notes := &recordingNotifier{}
	svc := NewService(Dependencies{
		Store:    store,
		Notifier: notes,
		Logger:   zaptest.NewLogger(t),
		Config:   Config{TxTimeout: 10 * time.Second, MaxMessageLength: 20},
	})

	// монотонные часы: каждое обращение на секунду позже предыдущего
	var mu sync.Mutex
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	return &testEnv{t: t, ctx: context.Background(), svc: svc, store: store, notes: notes}
}

func (e *testEnv) item(owner uuid.UUID) models.Item {
	e.t.Helper()
	item := models.Item{
		ID:        uuid.New(),
		OwnerID:   owner,
		Title:     "item",
		Available: true,
		CreatedAt: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(e.t, e.store.InsertItem(e.ctx, item))
	return item
}

func (e *testEnv) getItem(id uuid.UUID) models.Item {
	e.t.Helper()
	item, err := e.store.GetItem(e.ctx, id)
	require.NoError(e.t, err)
	return item
}

func (e *testEnv) getSwap(id uuid.UUID) models.SwapRequest {
	e.t.Helper()
	swap, err := e.store.GetSwap(e.ctx, id)
	require.NoError(e.t, err)
	return swap
}

func (e *testEnv) create(requester uuid.UUID, requested, offered models.Item) models.SwapRequest {
	e.t.Helper()
	swap, err := e.svc.CreateSwap(e.ctx, requester, requested.ID, offered.ID, "меняемся?")
	require.NoError(e.t, err)
	return swap
}

func (e *testEnv) accept(swap models.SwapRequest) models.SwapRequest {
	e.t.Helper()
	accepted, err := e.svc.AcceptSwap(e.ctx, swap.ID, swap.OwnerID)
	require.NoError(e.t, err)
	return accepted
}

// pair создает двух пользователей с предметом у каждого и предложение обмена между ними
type pair struct {
	owner, requester   uuid.UUID
	requested, offered models.Item
}

func (e *testEnv) pair() pair {
	e.t.Helper()
	owner, requester := uuid.New(), uuid.New()
	return pair{
		owner:     owner,
		requester: requester,
		requested: e.item(owner),
		offered:   e.item(requester),
	}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var swapErr *Error
	require.ErrorAs(t, err, &swapErr)
	require.Equal(t, kind, swapErr.Kind, "error: %v", err)
	return swapErr
}
