// Package usecase implements the Action Executor (C8): translates one
// Classification into a provider-side side effect via the originating
// provider's EmailAdapter. Replies and new emails are created as
// drafts and never sent; a forward is a draft on Google but goes out
// through Graph's native forward endpoint on Microsoft.
package usecase

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	classifierdomain "github.com/syncorch/syncd/internal/classifier/domain"
	contentdomain "github.com/syncorch/syncd/internal/content/domain"
	"github.com/syncorch/syncd/internal/content/repository"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/pkg/errs"
)

const maxDerivedSubjectLength = 100

var emailAddressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Executor dispatches classifications to adapters and logs every
// executed action.
type Executor struct {
	changes *repository.ProviderChangesRepository
}

func New(changes *repository.ProviderChangesRepository) *Executor {
	return &Executor{changes: changes}
}

// Execute dispatches one classification for one email. Each action is
// attempted once; failures are reported but never retried here.
// Execute does not touch is_classified; runClassifierPass marks the
// email classified before dispatching, so a later pass does not pick it
// up again.
func (e *Executor) Execute(ctx context.Context, adapter provdomain.EmailAdapter, userID string, email contentdomain.Email, c classifierdomain.Classification) error {
	var err error

	switch c.Action {
	case classifierdomain.ActionReply:
		body := c.SuggestedResponse
		if body == "" {
			body = "Thanks for your email — I'll follow up shortly."
		}
		_, err = adapter.ReplyToEmail(ctx, email.EmailID, body, nil, true)

	case classifierdomain.ActionForward:
		recipients := extractEmails(c.SuggestedResponse)
		if len(recipients) == 0 {
			err = errs.New(errs.InvalidArgument, "forward action has no recipient in suggested response", nil)
			break
		}
		_, err = adapter.ForwardEmail(ctx, email.EmailID, recipients, "")

	case classifierdomain.ActionNewEmail:
		recipients := extractEmails(c.SuggestedResponse)
		if len(recipients) == 0 {
			err = errs.New(errs.InvalidArgument, "new_email action has no recipient in suggested response", nil)
			break
		}
		subject := derivedSubject(c.SuggestedResponse, subjectOf(email))
		_, err = adapter.SendEmail(ctx, subject, c.SuggestedResponse, recipients, nil, nil, "")

	case classifierdomain.ActionFlagImportant:
		important := true
		err = adapter.FlagEmail(ctx, email.EmailID, &important, nil)

	case classifierdomain.ActionArchive:
		err = adapter.MoveEmail(ctx, email.EmailID, provdomain.FolderArchive)

	case classifierdomain.ActionDelete:
		err = adapter.MoveEmail(ctx, email.EmailID, provdomain.FolderTrash)

	case classifierdomain.ActionNoAction:
		// succeed without side effects

	default:
		err = errs.New(errs.InvalidArgument, "unknown action", nil)
	}

	if c.Action == classifierdomain.ActionNoAction {
		return err
	}

	detail := map[string]string{"reasoning": c.Reasoning}
	if err != nil {
		detail["error"] = err.Error()
	}
	details, _ := json.Marshal(detail)
	e.changes.Log(contentdomain.ProviderChange{
		UserID: userID, Provider: email.SourceType, ChangeType: changeTypeFor(c.Action),
		ItemID: email.EmailID, Details: string(details),
	})

	return err
}

// changeTypeFor maps a classifier Action onto spec §3's ProviderChange
// enum ({add, modify, remove, create}), per testable Scenario S3 (a
// forward's draft creation is logged as change_type="add").
func changeTypeFor(action classifierdomain.Action) string {
	switch action {
	case classifierdomain.ActionReply, classifierdomain.ActionForward, classifierdomain.ActionNewEmail:
		return "add"
	case classifierdomain.ActionFlagImportant, classifierdomain.ActionArchive:
		return "modify"
	case classifierdomain.ActionDelete:
		return "remove"
	default:
		return "modify"
	}
}

func subjectOf(email contentdomain.Email) string {
	if email.Subject == nil {
		return ""
	}
	return *email.Subject
}

// derivedSubject follows spec §4.8: the first ':'-separated prefix of
// the suggested response if it is ≤100 chars, else a generic
// follow-up subject derived from the original.
func derivedSubject(suggestedResponse, originalSubject string) string {
	if idx := strings.Index(suggestedResponse, ":"); idx >= 0 {
		prefix := strings.TrimSpace(suggestedResponse[:idx])
		if prefix != "" && len(prefix) <= maxDerivedSubjectLength {
			return prefix
		}
	}
	return "Follow-up: " + originalSubject
}

func extractEmails(s string) []string {
	return emailAddressPattern.FindAllString(s, -1)
}
