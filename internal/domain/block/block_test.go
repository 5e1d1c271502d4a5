package block_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/domain/block"
)

type mapRepo map[string]*block.Entry

func (m mapRepo) Get(_ context.Context, a, b string) (*block.Entry, error) {
	return m[block.Key(a, b)], nil
}

func (m mapRepo) ListByActor(context.Context, string) ([]*block.Entry, error) { return nil, nil }

func (m mapRepo) Save(_ context.Context, e *block.Entry) error {
	m[block.Key(e.ActorID, e.TargetID)] = e
	return nil
}

func TestNewEntryRejectsSelfBlock(t *testing.T) {
	_, err := block.NewEntry("a", "a", time.Now())
	require.ErrorIs(t, err, block.ErrSelfBlock)
}

func TestSetIsIdempotent(t *testing.T) {
	e, err := block.NewEntry("a", "b", time.Now())
	require.NoError(t, err)
	assert.True(t, e.Set(true, time.Now()))
	assert.False(t, e.Set(true, time.Now()))
	assert.Len(t, e.PullEvents(), 1)
	assert.True(t, e.Set(false, time.Now()))
	assert.Equal(t, "user.unblocked", e.PullEvents()[0].EventName())
}

func TestCheckPairCoversBothDirections(t *testing.T) {
	ctx := context.Background()
	repo := mapRepo{}
	require.NoError(t, block.CheckPair(ctx, repo, "a", "b"))

	e, err := block.NewEntry("b", "a", time.Now())
	require.NoError(t, err)
	e.Set(true, time.Now())
	require.NoError(t, repo.Save(ctx, e))

	require.ErrorIs(t, block.CheckPair(ctx, repo, "a", "b"), block.ErrBlocked)
	require.ErrorIs(t, block.CheckPair(ctx, repo, "b", "a"), block.ErrBlocked)

	blocked, err := block.IsBlocked(ctx, repo, "a", "b")
	require.NoError(t, err)
	assert.False(t, blocked)
}
