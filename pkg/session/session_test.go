package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/pkg/database"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	s, err := Load(ctx, store)
	require.NoError(t, err)
	assert.False(t, s.Authenticated())

	require.NoError(t, s.Login(ctx, "tok", "u1"))
	require.NoError(t, store.SetState(ctx, database.KeyPendingCallback, `{"vnp_TxnRef":"1"}`))

	restored, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "tok", restored.Token())
	assert.Equal(t, "u1", restored.UserID())

	require.NoError(t, restored.Logout(ctx))
	assert.False(t, restored.Authenticated())
	for _, key := range []string{database.KeyToken, database.KeyUser, database.KeyPendingCallback} {
		_, ok, err := store.GetState(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}
