package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

func seedItem(t *testing.T, s *Store, owner uuid.UUID) models.Item {
	t.Helper()
	item := models.Item{
		ID:        uuid.New(),
		OwnerID:   owner,
		Title:     "item",
		Available: true,
	}
	require.NoError(t, s.InsertItem(context.Background(), item))
	return item
}

func newSwap(requester, owner, requested, offered uuid.UUID, at time.Time) models.SwapRequest {
	return models.SwapRequest{
		ID:              uuid.New(),
		RequesterID:     requester,
		OwnerID:         owner,
		RequestedItemID: requested,
		OfferedItemID:   offered,
		Message:         "hi",
		Status:          models.SwapPending,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func insertSwap(t *testing.T, s *Store, swap models.SwapRequest) {
	t.Helper()
	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertSwap(ctx, swap)
	})
	require.NoError(t, err)
}

func TestInsertAndGetSwap(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	x := seedItem(t, s, alice)
	y := seedItem(t, s, bob)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	swap := newSwap(bob, alice, x.ID, y.ID, at)
	insertSwap(t, s, swap)

	got, err := s.GetSwap(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, swap.ID, got.ID)
	assert.Equal(t, bob, got.RequesterID)
	assert.Equal(t, alice, got.OwnerID)
	assert.Equal(t, models.SwapPending, got.Status)
	assert.Equal(t, "hi", got.Message)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestGetSwapNotFound(t *testing.T) {
	s := NewTestStore(t)

	_, err := s.GetSwap(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrSwapNotFound)
}

func TestGetItemNotFound(t *testing.T) {
	s := NewTestStore(t)

	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetItem(ctx, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
}

func TestDuplicatePendingRejected(t *testing.T) {
	s := NewTestStore(t)
	alice, bob := uuid.New(), uuid.New()
	x := seedItem(t, s, alice)
	y := seedItem(t, s, bob)
	z := seedItem(t, s, bob)

	insertSwap(t, s, newSwap(bob, alice, x.ID, y.ID, time.Now()))

	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertSwap(ctx, newSwap(bob, alice, x.ID, z.ID, time.Now()))
	})
	assert.ErrorIs(t, err, storage.ErrDuplicatePending)
}

func TestDuplicateAllowedAfterResolution(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	x := seedItem(t, s, alice)
	y := seedItem(t, s, bob)

	first := newSwap(bob, alice, x.ID, y.ID, time.Now())
	insertSwap(t, s, first)

	ok, err := s.CompareAndSetStatus(ctx, first.ID, models.SwapPending, models.SwapRejected, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	insertSwap(t, s, newSwap(bob, alice, x.ID, y.ID, time.Now()))
}

func TestCompareAndSetStatus(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	x := seedItem(t, s, alice)
	y := seedItem(t, s, bob)

	swap := newSwap(bob, alice, x.ID, y.ID, time.Now())
	insertSwap(t, s, swap)

	ok, err := s.CompareAndSetStatus(ctx, swap.ID, models.SwapPending, models.SwapRejected, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSetStatus(ctx, swap.ID, models.SwapPending, models.SwapCancelled, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "статус уже изменён")

	got, err := s.GetSwap(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapRejected, got.Status)
}

func TestCancelPendingForItem(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	x := seedItem(t, s, alice)
	y := seedItem(t, s, bob)
	z := seedItem(t, s, carol)

	winner := newSwap(bob, alice, x.ID, y.ID, time.Now())
	loser := newSwap(carol, alice, x.ID, z.ID, time.Now())
	insertSwap(t, s, winner)
	insertSwap(t, s, loser)

	var cancelled []models.SwapRequest
	err := s.WithTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		cancelled, err = tx.CancelPendingForItem(ctx, x.ID, winner.ID, models.SwapPending, models.SwapCancelled, time.Now())
		return err
	})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, loser.ID, cancelled[0].ID)
	assert.Equal(t, models.SwapCancelled, cancelled[0].Status)

	got, err := s.GetSwap(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapPending, got.Status)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	x := seedItem(t, s, alice)

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.SetOwnerAndAvailability(ctx, x.ID, bob, false))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetItem(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, got.OwnerID)
	assert.True(t, got.Available)
}

func TestWithTransactionRollsBackOnPanic(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	x := seedItem(t, s, alice)

	assert.Panics(t, func() {
		_ = s.WithTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
			_ = tx.SetOwnerAndAvailability(ctx, x.ID, bob, false)
			panic("boom")
		})
	})

	got, err := s.GetItem(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, got.OwnerID)
}

func TestListSwapsFilters(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	x := seedItem(t, s, alice)
	y := seedItem(t, s, bob)
	z := seedItem(t, s, carol)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := newSwap(bob, alice, x.ID, y.ID, base)
	newer := newSwap(carol, alice, x.ID, z.ID, base.Add(time.Minute))
	outgoing := newSwap(alice, carol, z.ID, x.ID, base.Add(2*time.Minute))
	insertSwap(t, s, older)
	insertSwap(t, s, newer)
	insertSwap(t, s, outgoing)

	ok, err := s.CompareAndSetStatus(ctx, older.ID, models.SwapPending, models.SwapRejected, base.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	incoming, err := s.ListSwaps(ctx, storage.SwapFilter{OwnerID: alice})
	require.NoError(t, err)
	require.Len(t, incoming, 2)
	assert.Equal(t, newer.ID, incoming[0].ID, "новые первыми")
	assert.Equal(t, older.ID, incoming[1].ID)

	pending, err := s.ListSwaps(ctx, storage.SwapFilter{OwnerID: alice, Statuses: []models.SwapStatus{models.SwapPending}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, newer.ID, pending[0].ID)

	mine, err := s.ListSwaps(ctx, storage.SwapFilter{RequesterID: alice})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, outgoing.ID, mine[0].ID)

	all, err := s.ListSwaps(ctx, storage.SwapFilter{ParticipantID: alice, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := s.ListSwaps(ctx, storage.SwapFilter{OwnerID: uuid.New()})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestEnsureTelegramUser(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureTelegramUser(ctx, storage.TelegramProfile{TelegramID: 42, Username: "alice"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, "alice", first.Username)

	again, err := s.EnsureTelegramUser(ctx, storage.TelegramProfile{TelegramID: 42, Username: "alice2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "один Telegram ID соответствует одному пользователю")

	_, err = s.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestInsertUser(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	user := models.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com", Verified: true}
	require.NoError(t, s.InsertUser(ctx, user))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestCancelPendingForItemUsesGivenStatuses(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	x := seedItem(t, s, alice)
	y := seedItem(t, s, bob)
	z := seedItem(t, s, carol)

	winner := newSwap(bob, alice, x.ID, y.ID, time.Now())
	accepted := newSwap(carol, alice, x.ID, z.ID, time.Now())
	insertSwap(t, s, winner)
	insertSwap(t, s, accepted)
	ok, err := s.CompareAndSetStatus(ctx, accepted.ID, models.SwapPending, models.SwapAccepted, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	var cancelled []models.SwapRequest
	err = s.WithTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		cancelled, err = tx.CancelPendingForItem(ctx, x.ID, winner.ID, models.SwapAccepted, models.SwapRejected, time.Now())
		return err
	})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, accepted.ID, cancelled[0].ID)
	assert.Equal(t, models.SwapRejected, cancelled[0].Status)

	got, err := s.GetSwap(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapPending, got.Status, "предложения в другом статусе не затрагиваются")
}

func TestExpiredContextIsUnavailable(t *testing.T) {
	s := NewTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	err := s.WithTransaction(ctx, func(context.Context, storage.Tx) error { return nil })
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.GetSwap(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestMarkTransient(t *testing.T) {
	assert.NoError(t, markTransient(nil))
	assert.ErrorIs(t, markTransient(context.DeadlineExceeded), storage.ErrUnavailable)
	assert.NotErrorIs(t, markTransient(errors.New("неизвестный статус")), storage.ErrUnavailable)
	assert.ErrorIs(t, markTransient(storage.ErrItemNotFound), storage.ErrItemNotFound)
	assert.NotErrorIs(t, markTransient(storage.ErrItemNotFound), storage.ErrUnavailable)
}
