package binding

import (
	"context"
	"testing"

	"github.com/brizzai/oidc-sample/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aliceClaims() map[string]interface{} {
	return map[string]interface{}{
		"oid":                "oid-alice",
		"name":               "Alice",
		"preferred_username": "alice@example.com",
	}
}

func TestBinder_VerifyRegistersUnseenSubject(t *testing.T) {
	store := identity.NewMemoryStore()
	b := NewBinder(store, "")

	p, err := b.Verify(context.Background(), "https://idp", "sub-alice", aliceClaims(), "at-1", "rt-1")
	require.NoError(t, err)

	assert.Equal(t, "oid-alice", p.Subject)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, "at-1", p.AccessToken)
	assert.Equal(t, "rt-1", p.RefreshToken)
	assert.Equal(t, 1, store.Len())
}

func TestBinder_VerifyKnownSubjectUnchanged(t *testing.T) {
	store := identity.NewMemoryStore()
	b := NewBinder(store, "oid")
	ctx := context.Background()

	first, err := b.Verify(ctx, "https://idp", "sub-alice", aliceClaims(), "at-1", "rt-1")
	require.NoError(t, err)

	again, err := b.Verify(ctx, "https://idp", "sub-alice", aliceClaims(), "at-2", "rt-2")
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, "at-1", again.AccessToken)
	assert.Equal(t, 1, store.Len())
}

func TestBinder_VerifyMissingSubject(t *testing.T) {
	store := identity.NewMemoryStore()
	b := NewBinder(store, "oid")

	p, err := b.Verify(context.Background(), "https://idp", "sub-alice", map[string]interface{}{"name": "Alice"}, "at", "rt")
	assert.ErrorIs(t, err, ErrNoSubject)
	assert.Nil(t, p)
	assert.Equal(t, 0, store.Len(), "registry must stay untouched")
}

func TestBinder_SubClaim(t *testing.T) {
	store := identity.NewMemoryStore()
	b := NewBinder(store, "sub")

	p, err := b.Verify(context.Background(), "https://idp", "sub-alice", map[string]interface{}{}, "at", "")
	require.NoError(t, err)
	assert.Equal(t, "sub-alice", p.Subject)

	_, err = b.Verify(context.Background(), "https://idp", "", map[string]interface{}{}, "at", "")
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestBinder_SerializeRoundTrip(t *testing.T) {
	store := identity.NewMemoryStore()
	b := NewBinder(store, "oid")
	ctx := context.Background()

	p, err := b.Verify(ctx, "https://idp", "", aliceClaims(), "at", "rt")
	require.NoError(t, err)

	got, err := b.Deserialize(ctx, b.Serialize(p))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestBinder_DeserializeMiss(t *testing.T) {
	b := NewBinder(identity.NewMemoryStore(), "oid")

	for _, subject := range []string{"", "unknown"} {
		p, err := b.Deserialize(context.Background(), subject)
		assert.NoError(t, err)
		assert.Nil(t, p)
	}
}
