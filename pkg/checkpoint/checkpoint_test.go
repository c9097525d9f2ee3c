package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// runStoreContract checks the behavior every Store must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	st := state.New()
	st.Title = "Solar"
	st.AppendMessage(state.UserMessage("research solar"))
	st.Proposal = &state.Proposal{Sections: map[string]state.ProposalSection{"s1": {Title: "A"}}}

	require.NoError(t, store.Save(ctx, &Checkpoint{SessionID: "s-1", Node: "feedback", State: st}))

	st.Title = "mutated after save"

	cp, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", cp.SessionID)
	assert.Equal(t, "feedback", cp.Node)
	assert.Equal(t, "Solar", cp.State.Title)
	assert.Equal(t, "A", cp.State.Proposal.Sections["s1"].Title)
	assert.NotNil(t, cp.State.Outline)
	assert.False(t, cp.UpdatedAt.IsZero())

	require.NoError(t, store.Save(ctx, &Checkpoint{SessionID: "s-2", Node: "decision", State: state.New()}))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, ids)

	require.NoError(t, store.Delete(ctx, "s-1"))
	_, err = store.Load(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestRedisStore_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	runStoreContract(t, NewRedisStoreFromClient(client))
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, WithTTL(time.Hour), WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Checkpoint{SessionID: "s", Node: "feedback", State: state.New()}))
	assert.True(t, mr.Exists("test:s"))
	assert.Equal(t, time.Hour, mr.TTL("test:s"))

	mr.FastForward(2 * time.Hour)

	_, err := store.Load(ctx, "s")
	assert.ErrorIs(t, err, ErrNotFound)
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
