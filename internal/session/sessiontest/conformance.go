// Package sessiontest provides a behavioral test suite shared by every
// session.Store backing.
package sessiontest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/irdrive/internal/session"
)

// RunStoreTests exercises the session.Store contract against the store
// returned by newStore. Each subtest gets a fresh store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("session round trip", func(t *testing.T) {
		store := newStore(t)

		in := &session.Session{
			ID:            "s-1",
			Scopes:        []string{"User.Read", "Sites.ReadWrite.All"},
			Token:         &session.Token{AccessToken: "at", ExpiresAt: now.Add(time.Hour), Scopes: []string{"User.Read"}},
			AccountID:     "oid.tid",
			ProviderCache: []byte(`{"token":{}}`),
			CreatedAt:     now,
			UpdatedAt:     now,
			ExpiresAt:     now.Add(12 * time.Hour),
		}
		require.NoError(t, store.PutSession(ctx, in))

		out, err := store.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, in.Scopes, out.Scopes)
		assert.Equal(t, "at", out.Token.AccessToken)
		assert.True(t, in.Token.ExpiresAt.Equal(out.Token.ExpiresAt))
		assert.Equal(t, "oid.tid", out.AccountID)
		assert.Equal(t, in.ProviderCache, out.ProviderCache)
		assert.Equal(t, session.Authenticated, out.State())
	})

	t.Run("session missing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetSession(ctx, "nope")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("session delete", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.PutSession(ctx, &session.Session{ID: "s-del", ExpiresAt: now.Add(time.Hour)}))
		require.NoError(t, store.DeleteSession(ctx, "s-del"))
		require.NoError(t, store.DeleteSession(ctx, "s-del"))

		_, err := store.GetSession(ctx, "s-del")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("flow is taken once", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.PutFlow(ctx, testFlow("st-1", now)))

		got, err := store.TakeFlow(ctx, "st-1", now)
		require.NoError(t, err)
		assert.Equal(t, "s-1", got.SessionID)
		assert.Equal(t, "verifier", got.CodeVerifier)
		assert.Equal(t, []string{"User.Read"}, got.Scopes)

		_, err = store.TakeFlow(ctx, "st-1", now)
		assert.ErrorIs(t, err, session.ErrFlowNotFound)
	})

	t.Run("flow state collision", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.PutFlow(ctx, testFlow("st-dup", now)))
		assert.ErrorIs(t, store.PutFlow(ctx, testFlow("st-dup", now)), session.ErrStateCollision)
	})

	t.Run("expired flow is not redeemable", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.PutFlow(ctx, testFlow("st-old", now)))

		_, err := store.TakeFlow(ctx, "st-old", now.Add(time.Hour))
		require.Error(t, err)
		assert.True(t, isFlowGone(err), "unexpected error: %v", err)

		_, err = store.TakeFlow(ctx, "st-old", now)
		assert.ErrorIs(t, err, session.ErrFlowNotFound)
	})

	t.Run("delete flow", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.PutFlow(ctx, testFlow("st-del", now)))
		require.NoError(t, store.DeleteFlow(ctx, "st-del"))

		_, err := store.TakeFlow(ctx, "st-del", now)
		assert.ErrorIs(t, err, session.ErrFlowNotFound)
	})

	t.Run("concurrent take has one winner", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.PutFlow(ctx, testFlow("st-race", now)))

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)

		for range 16 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				if _, err := store.TakeFlow(ctx, "st-race", now); err == nil {
					wins.Add(1)
				}
			}()
		}

		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func testFlow(state string, now time.Time) *session.Flow {
	return &session.Flow{
		State:        state,
		SessionID:    "s-1",
		CodeVerifier: "verifier",
		Scopes:       []string{"User.Read"},
		RedirectURL:  "http://localhost/auth/callback",
		CreatedAt:    now,
		ExpiresAt:    now.Add(10 * time.Minute),
	}
}

func isFlowGone(err error) bool {
	return errors.Is(err, session.ErrFlowExpired) || errors.Is(err, session.ErrFlowNotFound)
}
