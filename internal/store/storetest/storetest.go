// Package storetest holds the behavioural contract every store.Store
// implementation must satisfy. Backend packages call Run from their tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/turbinix-be/internal/models"
	"github.com/isdelr/turbinix-be/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the full contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("codes", func(t *testing.T) { testCodes(t, newStore) })
	t.Run("entries", func(t *testing.T) { testEntries(t, newStore) })
	t.Run("events", func(t *testing.T) { testEvents(t, newStore) })
}

func alice() models.User {
	return models.User{Username: "alice", Email: "a@x.com", PasswordDigest: "d1", FirstName: "A", LastName: "L"}
}

func testUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		users := newStore(t).Users()
		require.NoError(t, users.Create(ctx, alice()))

		got, err := users.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice(), got)

		got, err = users.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)

		_, err = users.FindByUsername(ctx, "Alice")
		assert.ErrorIs(t, err, store.ErrNotFound, "usernames are case-sensitive")
	})

	t.Run("username conflict is reported before email conflict", func(t *testing.T) {
		users := newStore(t).Users()
		require.NoError(t, users.Create(ctx, alice()))

		dup := alice()
		assert.ErrorIs(t, users.Create(ctx, dup), store.ErrUsernameTaken)

		dup.Username = "bob"
		assert.ErrorIs(t, users.Create(ctx, dup), store.ErrEmailTaken)
	})

	t.Run("identifier lookup puts username matches first", func(t *testing.T) {
		users := newStore(t).Users()
		require.NoError(t, users.Create(ctx, models.User{Username: "carol", Email: "shared@x.com", PasswordDigest: "d"}))
		require.NoError(t, users.Create(ctx, models.User{Username: "shared@x.com", Email: "other@x.com", PasswordDigest: "d"}))

		got, err := users.FindByIdentifier(ctx, "shared@x.com")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "shared@x.com", got[0].Username)
		assert.Equal(t, "carol", got[1].Username)

		got, err = users.FindByIdentifier(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("update password", func(t *testing.T) {
		users := newStore(t).Users()
		require.NoError(t, users.Create(ctx, alice()))

		require.NoError(t, users.UpdatePassword(ctx, "a@x.com", "d2"))
		got, err := users.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "d2", got.PasswordDigest)

		assert.ErrorIs(t, users.UpdatePassword(ctx, "missing@x.com", "d3"), store.ErrNotFound)
	})

	t.Run("concurrent creates keep usernames unique", func(t *testing.T) {
		users := newStore(t).Users()

		const n = 16
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = users.Create(ctx, models.User{
					Username:       "racer",
					Email:          fmt.Sprintf("racer%d@x.com", i),
					PasswordDigest: "d",
				})
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, store.ErrUsernameTaken)
		}
		assert.Equal(t, 1, succeeded)
	})
}

func testCodes(t *testing.T, newStore Factory) {
	ctx := context.Background()
	issued := time.Unix(1_700_000_000, 0)

	t.Run("put replaces the previous code", func(t *testing.T) {
		codes := newStore(t).Codes()
		require.NoError(t, codes.Put(ctx, models.VerificationCode{Address: "a@x.com", Code: "111111", IssuedAt: issued}))
		require.NoError(t, codes.Put(ctx, models.VerificationCode{Address: "a@x.com", Code: "222222", IssuedAt: issued.Add(time.Minute)}))

		got, err := codes.Get(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "222222", got.Code)
		assert.True(t, got.IssuedAt.Equal(issued.Add(time.Minute)))
	})

	t.Run("delete", func(t *testing.T) {
		codes := newStore(t).Codes()
		require.NoError(t, codes.Put(ctx, models.VerificationCode{Address: "a@x.com", Code: "111111", IssuedAt: issued}))
		require.NoError(t, codes.Delete(ctx, "a@x.com"))

		_, err := codes.Get(ctx, "a@x.com")
		assert.ErrorIs(t, err, store.ErrNotFound)

		assert.NoError(t, codes.Delete(ctx, "a@x.com"), "deleting a missing code is not an error")
	})
}

func testEntries(t *testing.T, newStore Factory) {
	ctx := context.Background()

	seed := func(t *testing.T, entries store.EntryRepository) []string {
		t.Helper()
		var ids []string
		for i, owner := range []string{"alice", "bob", "alice", "alice"} {
			id := uuid.NewString()
			ids = append(ids, id)
			require.NoError(t, entries.Append(ctx, models.Entry{
				ID:     id,
				User:   owner,
				Fields: map[string]any{"n": float64(i)},
			}))
		}
		return ids
	}

	t.Run("list filters by owner in insertion order", func(t *testing.T) {
		entries := newStore(t).Entries()
		ids := seed(t, entries)

		got, err := entries.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{ids[0], ids[2], ids[3]}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(t, float64(2), got[1].Fields["n"])

		got, err = entries.ListByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("replace by index and by id keeps the id", func(t *testing.T) {
		entries := newStore(t).Entries()
		ids := seed(t, entries)

		updated, err := entries.Replace(ctx, "alice", store.EntryRef{Index: 1}, map[string]any{"n": "x"})
		require.NoError(t, err)
		assert.Equal(t, ids[2], updated.ID)
		assert.Equal(t, "alice", updated.User)

		updated, err = entries.Replace(ctx, "alice", store.EntryRef{ID: ids[3]}, map[string]any{"n": "y"})
		require.NoError(t, err)
		assert.Equal(t, ids[3], updated.ID)

		got, err := entries.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "x", got[1].Fields["n"])
		assert.Equal(t, "y", got[2].Fields["n"])
	})

	t.Run("references are scoped to the owner", func(t *testing.T) {
		entries := newStore(t).Entries()
		ids := seed(t, entries)

		_, err := entries.Replace(ctx, "alice", store.EntryRef{ID: ids[1]}, map[string]any{})
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = entries.Replace(ctx, "bob", store.EntryRef{Index: 1}, map[string]any{})
		assert.ErrorIs(t, err, store.ErrIndexOutOfRange)

		assert.ErrorIs(t, entries.Remove(ctx, "alice", store.EntryRef{Index: -1}), store.ErrIndexOutOfRange)
	})

	t.Run("remove", func(t *testing.T) {
		entries := newStore(t).Entries()
		ids := seed(t, entries)

		require.NoError(t, entries.Remove(ctx, "alice", store.EntryRef{Index: 0}))
		require.NoError(t, entries.Remove(ctx, "alice", store.EntryRef{ID: ids[3]}))

		got, err := entries.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ids[2], got[0].ID)

		bobs, err := entries.ListByOwner(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, bobs, 1)
	})
}

func testEvents(t *testing.T, newStore Factory) {
	ctx := context.Background()
	events := newStore(t).Events()

	base := time.Unix(1_700_000_000, 0)
	for i := range 5 {
		require.NoError(t, events.Append(ctx, models.Event{
			ID:        uuid.NewString(),
			Type:      "test.event",
			Level:     "info",
			Message:   fmt.Sprintf("event %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := events.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "event 4", got[0].Message)
	assert.Equal(t, "event 2", got[2].Message)

	got, err = events.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
