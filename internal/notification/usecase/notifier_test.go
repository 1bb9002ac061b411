package usecase

import (
	"context"
	"testing"
)

// NotifyDraftsReady's guard clause must short-circuit before touching
// the token repository or fcm client, so these are safe to call on a
// zero-value or nil Notifier without a database.

func TestNotifyDraftsReady_NilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	n.NotifyDraftsReady(context.Background(), "alice", 3)
}

func TestNotifyDraftsReady_UnconfiguredFCMIsNoop(t *testing.T) {
	n := New(nil, nil)
	n.NotifyDraftsReady(context.Background(), "alice", 3)
}

func TestNotifyDraftsReady_ZeroDraftCountIsNoop(t *testing.T) {
	n := New(nil, nil)
	n.NotifyDraftsReady(context.Background(), "alice", 0)
}
