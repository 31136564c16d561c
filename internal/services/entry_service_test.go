package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/turbinix-be/internal/store"
)

func TestParseEntryRef(t *testing.T) {
	id := uuid.NewString()

	ref, err := ParseEntryRef("2")
	require.NoError(t, err)
	assert.Equal(t, store.EntryRef{Index: 2}, ref)

	ref, err = ParseEntryRef(id)
	require.NoError(t, err)
	assert.Equal(t, store.EntryRef{ID: id}, ref)

	for _, bad := range []string{"-1", "abc", "", "1.5"} {
		_, err := ParseEntryRef(bad)
		assert.ErrorIs(t, err, ErrInvalidIndex, bad)
	}
}

func TestEntryService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewEntryService(newTestStore(t).Entries())

	first, err := svc.Create(ctx, "alice", map[string]any{"title": "one", "user": "mallory", "id": "forged"})
	require.NoError(t, err)
	assert.Equal(t, "alice", first.User)
	assert.NotEqual(t, "forged", first.ID)
	assert.NotContains(t, first.Fields, "user")

	second, err := svc.Create(ctx, "alice", map[string]any{"title": "two"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", map[string]any{"title": "bob's"})
	require.NoError(t, err)

	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "one", list[0].Fields["title"])

	updated, err := svc.Update(ctx, "alice", "1", map[string]any{"title": "two!"})
	require.NoError(t, err)
	assert.Equal(t, second.ID, updated.ID)

	updated, err = svc.Update(ctx, "alice", first.ID, map[string]any{"title": "one!", "user": "bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.User)

	require.NoError(t, svc.Delete(ctx, "alice", "0"))
	list, err = svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "two!", list[0].Fields["title"])
}

func TestEntryService_Errors(t *testing.T) {
	ctx := context.Background()
	svc := NewEntryService(newTestStore(t).Entries())
	_, err := svc.Create(ctx, "alice", map[string]any{"title": "one"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "alice", "5", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidIndex)

	_, err = svc.Update(ctx, "alice", "-1", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidIndex)

	assert.ErrorIs(t, svc.Delete(ctx, "alice", uuid.NewString()), ErrEntryNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "bob", "0"), ErrInvalidIndex)

	_, err = svc.Create(ctx, " ", map[string]any{})
	assert.ErrorIs(t, err, ErrValidation)
}
