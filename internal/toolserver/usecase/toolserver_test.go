package usecase

import (
	"context"
	"io"
	"testing"
	"time"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToolServer(t *testing.T) (*ToolServer, *credusecase.Store) {
	t.Helper()
	store := credusecase.NewStore(t.TempDir(), nil)
	return New(nil, nil, store), store
}

func TestPreferredProvider_NoCredentialIsFalse(t *testing.T) {
	ts, _ := newTestToolServer(t)
	_, ok := ts.preferredProvider(context.Background(), "alice")
	assert.False(t, ok)
}

func TestPreferredProvider_GoogleTakesPriorityOverMicrosoft(t *testing.T) {
	ts, store := newTestToolServer(t)
	require.NoError(t, store.Save(creddomain.Credential{
		UserID: "alice", Provider: creddomain.ProviderMicrosoft, Expiry: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.Save(creddomain.Credential{
		UserID: "alice", Provider: creddomain.ProviderGoogle, Expiry: time.Now().Add(time.Hour),
	}))

	provider, ok := ts.preferredProvider(context.Background(), "alice")
	require.True(t, ok)
	assert.Equal(t, creddomain.ProviderGoogle, provider)
}

func TestPreferredProvider_FallsBackToMicrosoftWhenGoogleAbsent(t *testing.T) {
	ts, store := newTestToolServer(t)
	require.NoError(t, store.Save(creddomain.Credential{
		UserID: "alice", Provider: creddomain.ProviderMicrosoft, Expiry: time.Now().Add(time.Hour),
	}))

	provider, ok := ts.preferredProvider(context.Background(), "alice")
	require.True(t, ok)
	assert.Equal(t, creddomain.ProviderMicrosoft, provider)
}

func TestTagsFor_EachCapabilityByProvider(t *testing.T) {
	assert.Equal(t, provdomain.TagGoogleEmail, tagsFor(CapabilityEmail, creddomain.ProviderGoogle))
	assert.Equal(t, provdomain.TagMicrosoftEmail, tagsFor(CapabilityEmail, creddomain.ProviderMicrosoft))
	assert.Equal(t, provdomain.TagGoogleDrive, tagsFor(CapabilityCloudStorage, creddomain.ProviderGoogle))
	assert.Equal(t, provdomain.TagOneDrive, tagsFor(CapabilityCloudStorage, creddomain.ProviderMicrosoft))
	assert.Equal(t, provdomain.TagGoogleCalendar, tagsFor(CapabilityCalendar, creddomain.ProviderGoogle))
	assert.Equal(t, provdomain.TagOutlookCalendar, tagsFor(CapabilityCalendar, creddomain.ProviderMicrosoft))
}

func TestResolveEmailAdapter_NoCredentialFails(t *testing.T) {
	ts, _ := newTestToolServer(t)
	_, err := ts.ResolveEmailAdapter(context.Background(), "alice")
	assert.Error(t, err)
}

func TestResolveEmailAdapter_NoFactoryRegisteredFails(t *testing.T) {
	ts, store := newTestToolServer(t)
	require.NoError(t, store.Save(creddomain.Credential{
		UserID: "alice", Provider: creddomain.ProviderGoogle, Expiry: time.Now().Add(time.Hour),
	}))

	_, err := ts.ResolveEmailAdapter(context.Background(), "alice")
	assert.Error(t, err)
}

func TestResolveEmailAdapter_UsesFactoryForPreferredProvider(t *testing.T) {
	ts, store := newTestToolServer(t)
	require.NoError(t, store.Save(creddomain.Credential{
		UserID: "alice", Provider: creddomain.ProviderGoogle, Expiry: time.Now().Add(time.Hour),
	}))

	var gotUserID string
	ts.RegisterEmailAdapter(provdomain.TagGoogleEmail, func(userID string) provdomain.EmailAdapter {
		gotUserID = userID
		return nil
	})

	_, err := ts.ResolveEmailAdapter(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", gotUserID)
}

type fixedEmailIterator struct {
	emails []provdomain.Email
	i      int
}

func (it *fixedEmailIterator) Next(ctx context.Context) (provdomain.Email, error) {
	if it.i >= len(it.emails) {
		return provdomain.Email{}, io.EOF
	}
	e := it.emails[it.i]
	it.i++
	return e, nil
}

// fakeEmailAdapter is a minimal provdomain.EmailAdapter stub exercising
// Invoke's dispatch table without a live provider.
type fakeEmailAdapter struct {
	emails    []provdomain.Email
	sent      SendResultCapture
	moveCalls []provdomain.WellKnownFolder
}

// SendResultCapture records the last SendEmail call's arguments.
type SendResultCapture struct {
	Subject, Body string
	To            []string
}

func (f *fakeEmailAdapter) Tag() provdomain.Tag                             { return provdomain.TagGoogleEmail }
func (f *fakeEmailAdapter) Authenticate(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeEmailAdapter) FetchEmails(ctx context.Context, opts provdomain.FetchOptions) (provdomain.EmailIterator, int, error) {
	return &fixedEmailIterator{emails: f.emails}, len(f.emails), nil
}
func (f *fakeEmailAdapter) SendEmail(ctx context.Context, subject, body string, to, cc, bcc []string, htmlBody string) (provdomain.SendResult, error) {
	f.sent = SendResultCapture{Subject: subject, Body: body, To: to}
	return provdomain.SendResult{MessageID: "m1"}, nil
}
func (f *fakeEmailAdapter) ReplyToEmail(ctx context.Context, emailID, body string, cc []string, includeOriginal bool) (provdomain.SendResult, error) {
	return provdomain.SendResult{MessageID: "reply1"}, nil
}
func (f *fakeEmailAdapter) ForwardEmail(ctx context.Context, emailID string, recipients []string, comment string) (provdomain.SendResult, error) {
	return provdomain.SendResult{MessageID: "fwd1"}, nil
}
func (f *fakeEmailAdapter) FlagEmail(ctx context.Context, emailID string, markImportant, markRead *bool) error {
	return nil
}
func (f *fakeEmailAdapter) MoveEmail(ctx context.Context, emailID string, destination provdomain.WellKnownFolder) error {
	f.moveCalls = append(f.moveCalls, destination)
	return nil
}

func registerFakeEmail(t *testing.T, ts *ToolServer, store *credusecase.Store, adapter *fakeEmailAdapter) {
	t.Helper()
	require.NoError(t, store.Save(creddomain.Credential{
		UserID: "alice", Provider: creddomain.ProviderGoogle, Expiry: time.Now().Add(time.Hour),
	}))
	ts.RegisterEmailAdapter(provdomain.TagGoogleEmail, func(userID string) provdomain.EmailAdapter { return adapter })
}

func TestInvoke_UnknownToolReturnsError(t *testing.T) {
	ts, _ := newTestToolServer(t)
	result := ts.Invoke(context.Background(), "alice", "not_a_real_tool", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestInvoke_NoCredentialReturnsErrorNotPanic(t *testing.T) {
	ts, _ := newTestToolServer(t)
	result := ts.Invoke(context.Background(), "alice", "list_emails", nil)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestInvoke_ListEmailsDispatchesToPreferredAdapter(t *testing.T) {
	ts, store := newTestToolServer(t)
	adapter := &fakeEmailAdapter{emails: []provdomain.Email{{MessageID: "e1"}, {MessageID: "e2"}}}
	registerFakeEmail(t, ts, store, adapter)

	result := ts.Invoke(context.Background(), "alice", "list_emails", map[string]interface{}{"limit": float64(10)})
	require.True(t, result.Success)
	data := result.Data.(map[string]interface{})
	assert.Equal(t, 2, data["total"])
}

func TestInvoke_SendEmailPassesParameters(t *testing.T) {
	ts, store := newTestToolServer(t)
	adapter := &fakeEmailAdapter{}
	registerFakeEmail(t, ts, store, adapter)

	result := ts.Invoke(context.Background(), "alice", "send_email", map[string]interface{}{
		"subject": "hi", "body": "hello there", "to": []interface{}{"bob@example.com"},
	})
	require.True(t, result.Success)
	assert.Equal(t, "hi", adapter.sent.Subject)
	assert.Equal(t, []string{"bob@example.com"}, adapter.sent.To)
}

func TestInvoke_MoveEmailResolvesDestinationFolder(t *testing.T) {
	ts, store := newTestToolServer(t)
	adapter := &fakeEmailAdapter{}
	registerFakeEmail(t, ts, store, adapter)

	result := ts.Invoke(context.Background(), "alice", "move_email", map[string]interface{}{
		"email_id": "e1", "destination": "archive",
	})
	require.True(t, result.Success)
	require.Len(t, adapter.moveCalls, 1)
	assert.Equal(t, provdomain.FolderArchive, adapter.moveCalls[0])
}

func TestStringsParam_FiltersNonStringElements(t *testing.T) {
	out := stringsParam(map[string]interface{}{"xs": []interface{}{"a", 1, "b"}}, "xs")
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestIntParam_FallsBackWhenMissingOrWrongType(t *testing.T) {
	assert.Equal(t, 25, intParam(map[string]interface{}{}, "limit", 25))
	assert.Equal(t, 25, intParam(map[string]interface{}{"limit": "not a number"}, "limit", 25))
	assert.Equal(t, 10, intParam(map[string]interface{}{"limit": float64(10)}, "limit", 25))
}
