package usecase

import (
	"context"
	"testing"

	"github.com/syncorch/syncd/pkg/logging"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
)

// newTestWatcher builds a Watcher without dialing Pub/Sub, since
// NewWatcher requires live credentials. PullOne against an unregistered
// tag is a safe no-op (internal/syncmanager/usecase/manager.go returns
// errs.InvalidArgument before touching cfg or syncRepo), so handle's
// dedup logic can be exercised against a real, empty Manager.
func newTestWatcher() *Watcher {
	return &Watcher{manager: newTestManager(), log: logging.New("GmailWatchTest"), lastHistoryID: make(map[string]uint64)}
}

func pushMessage(t *testing.T, body string) *pubsub.Message {
	t.Helper()
	return &pubsub.Message{Data: []byte(body)}
}

func TestHandle_FirstNotificationForUserIsRecorded(t *testing.T) {
	w := newTestWatcher()
	w.handle(context.Background(), pushMessage(t, `{"emailAddress":"alice@example.com","historyId":10}`))

	assert.Equal(t, uint64(10), w.lastHistoryID["alice@example.com"])
}

func TestHandle_StaleOrEqualHistoryIDIsIgnored(t *testing.T) {
	w := newTestWatcher()
	w.handle(context.Background(), pushMessage(t, `{"emailAddress":"alice@example.com","historyId":10}`))
	w.handle(context.Background(), pushMessage(t, `{"emailAddress":"alice@example.com","historyId":10}`))
	w.handle(context.Background(), pushMessage(t, `{"emailAddress":"alice@example.com","historyId":5}`))

	assert.Equal(t, uint64(10), w.lastHistoryID["alice@example.com"])
}

func TestHandle_NewerHistoryIDAdvancesWatermark(t *testing.T) {
	w := newTestWatcher()
	w.handle(context.Background(), pushMessage(t, `{"emailAddress":"alice@example.com","historyId":10}`))
	w.handle(context.Background(), pushMessage(t, `{"emailAddress":"alice@example.com","historyId":11}`))

	assert.Equal(t, uint64(11), w.lastHistoryID["alice@example.com"])
}

func TestHandle_MissingEmailAddressIsIgnored(t *testing.T) {
	w := newTestWatcher()
	w.handle(context.Background(), pushMessage(t, `{"historyId":10}`))

	assert.Empty(t, w.lastHistoryID)
}

func TestHandle_MalformedPayloadIsIgnored(t *testing.T) {
	w := newTestWatcher()
	w.handle(context.Background(), pushMessage(t, `not json`))

	assert.Empty(t, w.lastHistoryID)
}

func TestHandle_DistinctUsersTrackedIndependently(t *testing.T) {
	w := newTestWatcher()
	w.handle(context.Background(), pushMessage(t, `{"emailAddress":"alice@example.com","historyId":10}`))
	w.handle(context.Background(), pushMessage(t, `{"emailAddress":"bob@example.com","historyId":3}`))

	assert.Equal(t, uint64(10), w.lastHistoryID["alice@example.com"])
	assert.Equal(t, uint64(3), w.lastHistoryID["bob@example.com"])
}
