package queue

import (
	"context"
	"testing"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testScope = domain.NewScope(3, 30)

func admitN(t *testing.T, store *repository.MemoryStore, q *Queue, n int) []*domain.QueueEntry {
	t.Helper()
	ctx := context.Background()
	entries := make([]*domain.QueueEntry, 0, n)
	for i := 0; i < n; i++ {
		require.NoError(t, store.InScope(ctx, testScope, func(tx repository.ScopeTx) error {
			e, err := q.Admit(ctx, tx, int64(100+i), int64(i+1))
			if err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		}))
	}
	return entries
}

func activePositions(t *testing.T, store *repository.MemoryStore, kind domain.QueueKind) []int {
	t.Helper()
	list, err := store.ListQueue(context.Background(), testScope, kind)
	require.NoError(t, err)
	var positions []int
	for _, e := range list {
		if e.Status == domain.QueueEntryActive {
			positions = append(positions, e.Position)
		}
	}
	return positions
}

func TestNewRAC(t *testing.T) {
	assert.Equal(t, DefaultRACCapacity, NewRAC(0).Capacity())
	assert.Equal(t, 4, NewRAC(4).Capacity())
	assert.True(t, NewRAC(4).Bounded())
	assert.False(t, NewWaitlist().Bounded())
	assert.Equal(t, domain.QueueWaitlist, NewWaitlist().Kind())
}

func TestAdmitAssignsSequentialPositions(t *testing.T) {
	store := repository.NewMemoryStore()
	entries := admitN(t, store, NewRAC(10), 3)

	for i, e := range entries {
		assert.Equal(t, i+1, e.Position)
		assert.Equal(t, domain.QueueRAC, e.Kind)
		assert.Equal(t, domain.QueueEntryActive, e.Status)
		assert.Equal(t, testScope, e.Scope())
	}
}

func TestAdmitRejectsWhenFull(t *testing.T) {
	store := repository.NewMemoryStore()
	rac := NewRAC(2)
	admitN(t, store, rac, 2)

	err := store.InScope(context.Background(), testScope, func(tx repository.ScopeTx) error {
		_, err := rac.Admit(context.Background(), tx, 999, 9)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Equal(t, []int{1, 2}, activePositions(t, store, domain.QueueRAC))
}

func TestWaitlistIsUnbounded(t *testing.T) {
	store := repository.NewMemoryStore()
	admitN(t, store, NewWaitlist(), 25)
	assert.Len(t, activePositions(t, store, domain.QueueWaitlist), 25)
}

func TestPromoteHeadRenumbers(t *testing.T) {
	store := repository.NewMemoryStore()
	rac := NewRAC(10)
	entries := admitN(t, store, rac, 5)
	ctx := context.Background()

	var promoted *domain.QueueEntry
	require.NoError(t, store.InScope(ctx, testScope, func(tx repository.ScopeTx) error {
		var err error
		promoted, err = rac.PromoteHead(ctx, tx)
		return err
	}))

	require.NotNil(t, promoted)
	assert.Equal(t, entries[0].ID, promoted.ID)
	assert.Equal(t, domain.QueueEntryPromoted, promoted.Status)
	assert.Equal(t, []int{1, 2, 3, 4}, activePositions(t, store, domain.QueueRAC))

	list, err := store.ListQueue(ctx, testScope, domain.QueueRAC)
	require.NoError(t, err)
	assert.Equal(t, entries[1].ID, list[0].ID)
	assert.Equal(t, domain.QueueEntryPromoted, list[4].Status)
}

func TestPromoteHeadOnEmptyQueue(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.InScope(ctx, testScope, func(tx repository.ScopeTx) error {
		promoted, err := NewWaitlist().PromoteHead(ctx, tx)
		assert.Nil(t, promoted)
		return err
	}))
}

func TestWithdrawClosesGap(t *testing.T) {
	store := repository.NewMemoryStore()
	wl := NewWaitlist()
	admitN(t, store, wl, 4)
	ctx := context.Background()

	require.NoError(t, store.InScope(ctx, testScope, func(tx repository.ScopeTx) error {
		e, err := wl.Withdraw(ctx, tx, 102)
		if err != nil {
			return err
		}
		assert.Equal(t, 3, e.Position)
		assert.Equal(t, domain.QueueEntryWithdrawn, e.Status)
		return nil
	}))
	assert.Equal(t, []int{1, 2, 3}, activePositions(t, store, domain.QueueWaitlist))

	err := store.InScope(ctx, testScope, func(tx repository.ScopeTx) error {
		_, err := wl.Withdraw(ctx, tx, 102)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAudit(t *testing.T) {
	rac := NewRAC(2)
	entry := func(id int64, pos int, status domain.QueueEntryStatus) domain.QueueEntry {
		return domain.QueueEntry{ID: id, Kind: domain.QueueRAC, Position: pos, Status: status}
	}

	assert.Empty(t, rac.Audit(testScope, []domain.QueueEntry{
		entry(1, 1, domain.QueueEntryActive),
		entry(2, 2, domain.QueueEntryActive),
		entry(3, 1, domain.QueueEntryPromoted),
	}))

	gap := rac.Audit(testScope, []domain.QueueEntry{
		entry(1, 1, domain.QueueEntryActive),
		entry(2, 3, domain.QueueEntryActive),
	})
	require.Len(t, gap, 1)
	assert.Contains(t, gap[0].Message, "position 2 missing")

	over := rac.Audit(testScope, []domain.QueueEntry{
		entry(1, 1, domain.QueueEntryActive),
		entry(2, 2, domain.QueueEntryActive),
		entry(3, 3, domain.QueueEntryActive),
	})
	require.Len(t, over, 1)
	assert.Contains(t, over[0].Message, "exceed capacity")

	dup := NewWaitlist().Audit(testScope, []domain.QueueEntry{
		{ID: 1, Kind: domain.QueueWaitlist, Position: 1, Status: domain.QueueEntryActive},
		{ID: 2, Kind: domain.QueueWaitlist, Position: 1, Status: domain.QueueEntryActive},
	})
	require.NotEmpty(t, dup)
	assert.Contains(t, dup[0].Message, "share position 1")
}
