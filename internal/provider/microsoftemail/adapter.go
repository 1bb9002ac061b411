// Package microsoftemail implements the EmailAdapter capability set (C2)
// for Outlook via Microsoft Graph. Grounded on
// github.com/microsoftgraph/msgraph-sdk-go as adopted directly by
// other_examples/manifests/Martian-dev-ai-brain-infra and
// other_examples/manifests/edaniel30-mailbridge-go (neither is the
// teacher, but both use the SDK as a direct, non-indirect dependency).
//
// Per spec §4.2, ForwardEmail forwards via Graph's native
// /forward endpoint (not a draft) for Microsoft, unlike the Google
// adapter's forward-as-draft; reply/send still go through Graph's
// createReply/message-create-then-send-draft paths and never auto-send.
package microsoftemail

import (
	"context"
	"io"
	"strings"
	"time"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/internal/provider/msgraphauth"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/retry"

	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	graphusers "github.com/microsoftgraph/msgraph-sdk-go/users"
)

type Adapter struct {
	userID      string
	store       *credusecase.Store
	retryPolicy retry.Policy

	authenticated bool
	client        *msgraphsdk.GraphServiceClient
}

func New(userID string, store *credusecase.Store, retryPolicy retry.Policy) *Adapter {
	return &Adapter{userID: userID, store: store, retryPolicy: retryPolicy}
}

func (a *Adapter) Tag() provdomain.Tag { return provdomain.TagMicrosoftEmail }

func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	result := a.store.Check(ctx, a.userID, creddomain.ProviderMicrosoft)
	if !result.Authenticated || !result.Valid {
		return false, result.Err
	}

	client, err := msgraphauth.NewGraphClient(ctx, a.userID, a.store)
	if err != nil {
		return false, errs.New(errs.AuthFailed, "unable to create Graph client", err)
	}
	a.client = client
	a.authenticated = true
	return true, nil
}

func classifyGraphErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return errs.New(errs.RateLimited, msg, err)
	case strings.Contains(msg, "404"):
		return errs.New(errs.NotFound, msg, err)
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return errs.New(errs.AuthFailed, msg, err)
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return errs.New(errs.TransientUpstream, msg, err)
	default:
		return errs.New(errs.TransientUpstream, msg, err)
	}
}

// graphIterator pages through /me/messages via Graph's $skip/$top paging,
// lazy and non-restartable.
type graphIterator struct {
	a         *Adapter
	filter    string
	top       int32
	skip      int32
	buf       []graphmodels.Messageable
	bufIdx    int
	exhausted bool
	remaining int
}

func (it *graphIterator) fetchPage(ctx context.Context) error {
	var page []graphmodels.Messageable
	err := it.a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		top, skip := it.top, it.skip
		query := &graphusers.ItemMessagesRequestBuilderGetQueryParameters{Top: &top, Skip: &skip}
		if it.filter != "" {
			query.Filter = &it.filter
		}
		messages, callErr := it.a.client.Me().Messages().Get(ctx, &graphusers.ItemMessagesRequestBuilderGetRequestConfiguration{QueryParameters: query})
		if callErr != nil {
			return classifyGraphErr(callErr)
		}
		page = messages.GetValue()
		return nil
	})
	if err != nil {
		return err
	}
	it.buf = page
	it.bufIdx = 0
	it.skip += it.top
	if len(page) == 0 {
		it.exhausted = true
	}
	return nil
}

func (it *graphIterator) Next(ctx context.Context) (provdomain.Email, error) {
	if it.remaining == 0 {
		return provdomain.Email{}, io.EOF
	}
	for it.bufIdx >= len(it.buf) {
		if it.exhausted {
			return provdomain.Email{}, io.EOF
		}
		if err := it.fetchPage(ctx); err != nil {
			return provdomain.Email{}, err
		}
		if len(it.buf) == 0 {
			return provdomain.Email{}, io.EOF
		}
	}
	msg := it.buf[it.bufIdx]
	it.bufIdx++
	if it.remaining > 0 {
		it.remaining--
	}
	return convertMessage(msg), nil
}

// FetchEmails returns the iteration limit (opts.Limit, or 1000) as its
// total; it does not ask Graph for a message count.
func (a *Adapter) FetchEmails(ctx context.Context, opts provdomain.FetchOptions) (provdomain.EmailIterator, int, error) {
	if !a.authenticated {
		return nil, 0, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	var filterParts []string
	if !opts.MinDate.IsZero() {
		filterParts = append(filterParts, "receivedDateTime ge "+opts.MinDate.UTC().Format(time.RFC3339))
	}
	filter := strings.Join(filterParts, " and ")

	limit := 1000
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	return &graphIterator{a: a, filter: filter, top: 50, remaining: limit}, limit, nil
}

func convertMessage(msg graphmodels.Messageable) provdomain.Email {
	var subject, sender, bodyText, bodyHTML, conversationID string
	if msg.GetSubject() != nil {
		subject = *msg.GetSubject()
	}
	if from := msg.GetFrom(); from != nil && from.GetEmailAddress() != nil && from.GetEmailAddress().GetAddress() != nil {
		sender = *from.GetEmailAddress().GetAddress()
	}
	if body := msg.GetBody(); body != nil && body.GetContent() != nil {
		content := *body.GetContent()
		if body.GetContentType() != nil && *body.GetContentType() == graphmodels.HTML_BODYTYPE {
			bodyHTML = content
		} else {
			bodyText = content
		}
	}
	if msg.GetConversationId() != nil {
		conversationID = *msg.GetConversationId()
	}
	var recipients []string
	for _, r := range msg.GetToRecipients() {
		if r.GetEmailAddress() != nil && r.GetEmailAddress().GetAddress() != nil {
			recipients = append(recipients, *r.GetEmailAddress().GetAddress())
		}
	}
	var sentDate time.Time
	if msg.GetSentDateTime() != nil {
		sentDate = *msg.GetSentDateTime()
	}
	id := ""
	if msg.GetId() != nil {
		id = *msg.GetId()
	}
	hasAttachments := false
	if msg.GetHasAttachments() != nil {
		hasAttachments = *msg.GetHasAttachments()
	}
	return provdomain.Email{
		MessageID: id, ProviderID: id, Subject: subject, Sender: sender,
		Recipients: recipients, SentDate: sentDate, ConversationID: conversationID,
		BodyText: bodyText, BodyHTML: bodyHTML, HasAttachments: hasAttachments,
	}
}

func newMessage(subject, body, htmlBody string, to, cc, bcc []string) *graphmodels.Message {
	message := graphmodels.NewMessage()
	message.SetSubject(&subject)

	contentType := graphmodels.TEXT_BODYTYPE
	content := body
	if htmlBody != "" {
		contentType = graphmodels.HTML_BODYTYPE
		content = htmlBody
	}
	itemBody := graphmodels.NewItemBody()
	itemBody.SetContentType(&contentType)
	itemBody.SetContent(&content)
	message.SetBody(itemBody)

	message.SetToRecipients(toRecipients(to))
	message.SetCcRecipients(toRecipients(cc))
	message.SetBccRecipients(toRecipients(bcc))
	return message
}

func toRecipients(addrs []string) []graphmodels.Recipientable {
	var out []graphmodels.Recipientable
	for _, addr := range addrs {
		a := addr
		r := graphmodels.NewRecipient()
		email := graphmodels.NewEmailAddress()
		email.SetAddress(&a)
		r.SetEmailAddress(email)
		out = append(out, r)
	}
	return out
}

// SendEmail creates a draft message under /me/messages (never calls
// /me/sendMail) per the drafts-only invariant.
func (a *Adapter) SendEmail(ctx context.Context, subject, body string, to, cc, bcc []string, htmlBody string) (provdomain.SendResult, error) {
	if !a.authenticated {
		return provdomain.SendResult{}, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	message := newMessage(subject, body, htmlBody, to, cc, bcc)
	var created graphmodels.Messageable
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		m, callErr := a.client.Me().Messages().Post(ctx, message, nil)
		if callErr != nil {
			return classifyGraphErr(callErr)
		}
		created = m
		return nil
	})
	if err != nil {
		return provdomain.SendResult{}, err
	}
	id := ""
	if created.GetId() != nil {
		id = *created.GetId()
	}
	conv := ""
	if created.GetConversationId() != nil {
		conv = *created.GetConversationId()
	}
	return provdomain.SendResult{MessageID: id, DraftID: id, ThreadID: conv}, nil
}

// ReplyToEmail uses Graph's createReply action, which itself produces a
// draft message attached to the original conversation.
func (a *Adapter) ReplyToEmail(ctx context.Context, emailID, body string, cc []string, includeOriginal bool) (provdomain.SendResult, error) {
	if !a.authenticated {
		return provdomain.SendResult{}, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	requestBody := graphmodels.NewMessagesItemCreateReplyPostRequestBody()
	requestBody.SetComment(&body)

	var draft graphmodels.Messageable
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		m, callErr := a.client.Me().Messages().ByMessageId(emailID).CreateReply().Post(ctx, requestBody, nil)
		if callErr != nil {
			return classifyGraphErr(callErr)
		}
		draft = m
		return nil
	})
	if err != nil {
		return provdomain.SendResult{}, err
	}
	id := ""
	if draft != nil && draft.GetId() != nil {
		id = *draft.GetId()
	}
	return provdomain.SendResult{MessageID: id, DraftID: id}, nil
}

// ForwardEmail calls Graph's native /forward action for Microsoft, which
// dispatches immediately rather than via a draft — this is the one
// provider-specific exception spec §4.2 calls out explicitly.
func (a *Adapter) ForwardEmail(ctx context.Context, emailID string, recipients []string, comment string) (provdomain.SendResult, error) {
	if !a.authenticated {
		return provdomain.SendResult{}, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	requestBody := graphmodels.NewMessagesItemForwardPostRequestBody()
	requestBody.SetComment(&comment)
	requestBody.SetToRecipients(toRecipients(recipients))

	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		callErr := a.client.Me().Messages().ByMessageId(emailID).Forward().Post(ctx, requestBody, nil)
		return classifyGraphErr(callErr)
	})
	if err != nil {
		return provdomain.SendResult{}, err
	}
	return provdomain.SendResult{MessageID: emailID}, nil
}

func (a *Adapter) FlagEmail(ctx context.Context, emailID string, markImportant, markRead *bool) error {
	if !a.authenticated {
		return errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	patch := graphmodels.NewMessage()
	if markImportant != nil {
		importance := graphmodels.NORMAL_IMPORTANCE
		if *markImportant {
			importance = graphmodels.HIGH_IMPORTANCE
		}
		patch.SetImportance(&importance)
	}
	if markRead != nil {
		patch.SetIsRead(markRead)
	}
	return a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		_, callErr := a.client.Me().Messages().ByMessageId(emailID).Patch(ctx, patch, nil)
		return classifyGraphErr(callErr)
	})
}

var wellKnownGraphFolders = map[provdomain.WellKnownFolder]string{
	provdomain.FolderInbox:   "inbox",
	provdomain.FolderSent:    "sentitems",
	provdomain.FolderDrafts:  "drafts",
	provdomain.FolderArchive: "archive",
	provdomain.FolderTrash:   "deleteditems",
	provdomain.FolderJunk:    "junkemail",
}

func (a *Adapter) MoveEmail(ctx context.Context, emailID string, destination provdomain.WellKnownFolder) error {
	if !a.authenticated {
		return errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	folderID, ok := wellKnownGraphFolders[destination]
	if !ok {
		// Custom folder: created on first use by name.
		id, err := a.ensureFolder(ctx, string(destination))
		if err != nil {
			return err
		}
		folderID = id
	}
	body := graphmodels.NewMessagesItemMovePostRequestBody()
	body.SetDestinationId(&folderID)
	return a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		_, callErr := a.client.Me().Messages().ByMessageId(emailID).Move().Post(ctx, body, nil)
		return classifyGraphErr(callErr)
	})
}

func (a *Adapter) ensureFolder(ctx context.Context, name string) (string, error) {
	var folders graphmodels.MailFolderCollectionResponseable
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		f, callErr := a.client.Me().MailFolders().Get(ctx, nil)
		if callErr != nil {
			return classifyGraphErr(callErr)
		}
		folders = f
		return nil
	})
	if err != nil {
		return "", err
	}
	for _, f := range folders.GetValue() {
		if f.GetDisplayName() != nil && strings.EqualFold(*f.GetDisplayName(), name) {
			return *f.GetId(), nil
		}
	}
	newFolder := graphmodels.NewMailFolder()
	newFolder.SetDisplayName(&name)
	var created graphmodels.MailFolderable
	err = a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		f, callErr := a.client.Me().MailFolders().Post(ctx, newFolder, nil)
		if callErr != nil {
			return classifyGraphErr(callErr)
		}
		created = f
		return nil
	})
	if err != nil {
		return "", err
	}
	return *created.GetId(), nil
}

var _ provdomain.EmailAdapter = (*Adapter)(nil)
