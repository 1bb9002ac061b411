package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/syncorch/syncd/internal/credentials/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CheckAbsent(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	result := store.Check(context.Background(), "alice", domain.ProviderGoogle)
	assert.Equal(t, domain.StateAbsent, result.State)
	assert.False(t, result.Authenticated)
}

func TestStore_SaveThenCheckValid(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	cred := domain.Credential{
		UserID: "alice", Provider: domain.ProviderGoogle,
		AccessToken: "tok", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Save(cred))

	result := store.Check(context.Background(), "alice", domain.ProviderGoogle)
	assert.True(t, result.Authenticated)
	assert.True(t, result.Valid)
	assert.Equal(t, domain.StateValid, result.State)
}

func TestStore_ExpiredWithoutRefresherIsInvalid(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	cred := domain.Credential{
		UserID: "alice", Provider: domain.ProviderMicrosoft,
		AccessToken: "tok", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Save(cred))

	result := store.Check(context.Background(), "alice", domain.ProviderMicrosoft)
	assert.True(t, result.Authenticated)
	assert.False(t, result.Valid)
	assert.True(t, result.Expired)
	assert.False(t, result.Refreshable)
}

type fakeRefresher struct {
	refreshed domain.Credential
	err       error
}

func (f *fakeRefresher) Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	return f.refreshed, f.err
}

func TestStore_ExpiredWithRefresherRefreshesAndPersists(t *testing.T) {
	dataRoot := t.TempDir()
	refreshed := domain.Credential{
		UserID: "alice", Provider: domain.ProviderGoogle,
		AccessToken: "new-tok", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour),
	}
	store := NewStore(dataRoot, map[domain.Provider]Refresher{
		domain.ProviderGoogle: &fakeRefresher{refreshed: refreshed},
	})
	require.NoError(t, store.Save(domain.Credential{
		UserID: "alice", Provider: domain.ProviderGoogle,
		AccessToken: "old-tok", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Minute),
	}))

	result := store.Check(context.Background(), "alice", domain.ProviderGoogle)
	assert.True(t, result.Valid)

	cred, found, err := store.Load("alice", domain.ProviderGoogle)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new-tok", cred.AccessToken)
}

func TestStore_ListUsersWithCredential(t *testing.T) {
	dataRoot := t.TempDir()
	store := NewStore(dataRoot, nil)
	require.NoError(t, store.Save(domain.Credential{UserID: "alice", Provider: domain.ProviderGoogle, Expiry: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Save(domain.Credential{UserID: "bob", Provider: domain.ProviderGoogle, Expiry: time.Now().Add(time.Hour)}))

	users, err := store.ListUsersWithCredential(domain.ProviderGoogle)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)
}

func TestStore_ListUsersWithCredentialMissingDirIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	users, err := store.ListUsersWithCredential(domain.ProviderMicrosoft)
	require.NoError(t, err)
	assert.Empty(t, users)
}
