package usecase

import (
	"testing"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"

	"github.com/stretchr/testify/assert"
)

func newTestManager() *Manager {
	return New(nil, nil, nil, nil, nil)
}

func TestRegisterEmailAdapter_TracksCredentialProvider(t *testing.T) {
	m := newTestManager()
	m.RegisterEmailAdapter(provdomain.TagGoogleEmail, creddomain.ProviderGoogle, func(userID string) provdomain.EmailAdapter { return nil })

	assert.Contains(t, m.emailFactories, provdomain.TagGoogleEmail)
	assert.Equal(t, creddomain.ProviderGoogle, m.credForTag[provdomain.TagGoogleEmail])
}

func TestRegisterLocalAdapter_NeverEntersDiscovery(t *testing.T) {
	m := newTestManager()
	m.RegisterLocalAdapter(provdomain.TagLocalFS, func(userID string) provdomain.EmailAdapter { return nil })

	assert.Contains(t, m.emailFactories, provdomain.TagLocalFS)
	_, tracked := m.credForTag[provdomain.TagLocalFS]
	assert.False(t, tracked, "LocalFS must not be discoverable via credForTag")
}

func TestRegisterDriveAdapter_TracksCredentialProviderAndDispatch(t *testing.T) {
	m := newTestManager()
	m.RegisterDriveAdapter(provdomain.TagGoogleDrive, creddomain.ProviderGoogle, func(userID string) provdomain.DriveAdapter { return nil })

	assert.Contains(t, m.driveFactories, provdomain.TagGoogleDrive)
	assert.Equal(t, creddomain.ProviderGoogle, m.credForTag[provdomain.TagGoogleDrive])
	// A drive tag must never also land in emailFactories — PullOne
	// branches on driveFactories first to route to pullOneFile.
	_, isEmailFactory := m.emailFactories[provdomain.TagGoogleDrive]
	assert.False(t, isEmailFactory)
}

func TestAdapterFor_UnregisteredTagReturnsNil(t *testing.T) {
	m := newTestManager()
	assert.Nil(t, m.AdapterFor("alice", provdomain.TagGoogleEmail))
}

func TestAdapterFor_BuildsFreshInstanceEachCall(t *testing.T) {
	m := newTestManager()
	calls := 0
	m.RegisterEmailAdapter(provdomain.TagGoogleEmail, creddomain.ProviderGoogle, func(userID string) provdomain.EmailAdapter {
		calls++
		return nil
	})

	m.AdapterFor("alice", provdomain.TagGoogleEmail)
	m.AdapterFor("alice", provdomain.TagGoogleEmail)
	assert.Equal(t, 2, calls)
}

func TestLockFor_SameKeyReturnsSameMutex(t *testing.T) {
	m := newTestManager()
	l1 := m.lockFor("alice", provdomain.TagGoogleEmail)
	l2 := m.lockFor("alice", provdomain.TagGoogleEmail)
	assert.Same(t, l1, l2)
}

func TestLockFor_DifferentUserOrTagIsDistinct(t *testing.T) {
	m := newTestManager()
	l1 := m.lockFor("alice", provdomain.TagGoogleEmail)
	l2 := m.lockFor("bob", provdomain.TagGoogleEmail)
	l3 := m.lockFor("alice", provdomain.TagMicrosoftEmail)
	assert.NotSame(t, l1, l2)
	assert.NotSame(t, l1, l3)
}

func TestLockFor_TryLockSkipsConcurrentPull(t *testing.T) {
	m := newTestManager()
	lock := m.lockFor("alice", provdomain.TagGoogleEmail)

	acquired := lock.TryLock()
	assert.True(t, acquired)
	defer lock.Unlock()

	second := m.lockFor("alice", provdomain.TagGoogleEmail)
	assert.False(t, second.TryLock(), "a second TryLock on the same (user, tag) must fail while the first holds it")
}

func TestErrMessage(t *testing.T) {
	assert.Equal(t, "authentication did not succeed", errMessage(nil))
}
