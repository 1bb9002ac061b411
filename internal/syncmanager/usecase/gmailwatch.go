// Watcher supplements the ticker-only schedule with an immediate re-tick
// triggered by a Gmail watch() push notification, adapted from the
// teacher's internal/notification/service.go (subscription
// ensure-or-create, sub.Receive loop, per-user historyId dedup) — generalized
// from "notify the SPA over SSE" to "pull this user's Google mail now".
package usecase

import (
	"context"
	"encoding/json"
	"time"

	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/pkg/logging"

	"cloud.google.com/go/pubsub"
)

// gmailPushNotification is the payload Gmail's watch() API delivers to
// the Pub/Sub topic on every mailbox change.
type gmailPushNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Watcher listens on a Gmail watch() Pub/Sub subscription and triggers
// an out-of-band PullOne for the notified user, rather than waiting for
// the next ticker tick.
type Watcher struct {
	client    *pubsub.Client
	topicName string
	subName   string
	manager   *Manager
	log       *logging.Logger

	lastHistoryID map[string]uint64
}

// NewWatcher dials Pub/Sub with projectID. The caller is expected to
// treat the emailAddress on each notification as the userID: this
// module's user identity is the mailbox address, the same identity the
// Token Store directory is keyed on for Google accounts.
func NewWatcher(ctx context.Context, projectID, topicName string, manager *Manager) (*Watcher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		client: client, topicName: topicName, subName: topicName + "-sub",
		manager: manager, log: logging.New("GmailWatch"),
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start ensures the topic-s subscription exists and blocks receiving
// notifications until ctx is cancelled. Run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) {
	sub := w.client.Subscription(w.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		w.log.Printf("check subscription %s: %v", w.subName, err)
		return
	}
	if !exists {
		topic := w.client.Topic(w.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil || !topicExists {
			w.log.Printf("topic %s not usable (exists=%v, err=%v); watcher disabled", w.topicName, topicExists, err)
			return
		}
		sub, err = w.client.CreateSubscription(ctx, w.subName, pubsub.SubscriptionConfig{
			Topic: topic, AckDeadline: 10 * time.Second,
		})
		if err != nil {
			w.log.Printf("create subscription %s: %v", w.subName, err)
			return
		}
	}

	w.log.Printf("listening on subscription %s", w.subName)
	if err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		w.handle(ctx, msg)
		msg.Ack()
	}); err != nil {
		w.log.Printf("receive loop stopped: %v", err)
	}
}

func (w *Watcher) handle(ctx context.Context, msg *pubsub.Message) {
	var notification gmailPushNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		w.log.Printf("decode push payload: %v", err)
		return
	}
	if notification.EmailAddress == "" {
		return
	}

	if last, ok := w.lastHistoryID[notification.EmailAddress]; ok && notification.HistoryID <= last {
		return
	}
	w.lastHistoryID[notification.EmailAddress] = notification.HistoryID

	w.log.Printf("push notification for %s (historyId %d): triggering immediate pull", notification.EmailAddress, notification.HistoryID)
	if err := w.manager.PullOne(ctx, notification.EmailAddress, provdomain.TagGoogleEmail); err != nil {
		w.log.Printf("triggered pull for %s: %v", notification.EmailAddress, err)
	}
}

func (w *Watcher) Close() error {
	return w.client.Close()
}
