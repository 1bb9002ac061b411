// Package usecase sends push notifications over the teacher's
// pkg/fcm.Client. The only trigger wired in this module is the "drafts
// ready for review" notice that cmd/syncd's classifier pass sends after
// a sync batch classifies at least one email as a draft action
// (reply/forward/new_email).
package usecase

import (
	"context"
	"fmt"

	notifrepo "github.com/syncorch/syncd/internal/notification/repository"
	"github.com/syncorch/syncd/pkg/fcm"
	"github.com/syncorch/syncd/pkg/logging"
)

var log = logging.New("Notifier")

// Notifier fans a notification out to every device token registered
// for a user, the way the teacher's notification.Service does via
// fcmClient.SendToDevices, pruning tokens FCM reports as dead.
type Notifier struct {
	tokens *notifrepo.DeviceTokenRepository
	fcm    *fcm.Client
}

func New(tokens *notifrepo.DeviceTokenRepository, fcmClient *fcm.Client) *Notifier {
	return &Notifier{tokens: tokens, fcm: fcmClient}
}

// NotifyDraftsReady tells userID's devices that draftCount drafts are
// waiting for review. A nil Notifier or unconfigured fcm.Client is a
// silent no-op: push notifications are an enrichment, not a precondition
// for sync or classification to proceed.
func (n *Notifier) NotifyDraftsReady(ctx context.Context, userID string, draftCount int) {
	if n == nil || n.fcm == nil || draftCount == 0 {
		return
	}
	devices, err := n.tokens.TokensForUser(userID)
	if err != nil || len(devices) == 0 {
		return
	}
	deviceTokens := make([]string, len(devices))
	for i, d := range devices {
		deviceTokens[i] = d.Token
	}

	notification := fcm.NotificationData{
		Title: "Drafts ready for review",
		Body:  fmt.Sprintf("%d email draft(s) are ready for your review.", draftCount),
		Data:  map[string]string{"kind": "drafts_ready"},
	}
	failed, err := n.fcm.SendToDevices(ctx, deviceTokens, notification)
	if err != nil {
		log.Printf("send drafts-ready notification for %s: %v", userID, err)
		return
	}
	for _, token := range failed {
		if revokeErr := n.tokens.Revoke(token); revokeErr != nil {
			log.Printf("revoke dead token for %s: %v", userID, revokeErr)
		}
	}
}
