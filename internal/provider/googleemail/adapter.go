// Package googleemail implements the EmailAdapter capability set (C2) for
// Gmail. Grounded on the teacher's pkg/gmail/service.go: the OAuth2
// notifyTokenSource wrapper, the parallel Messages.Get fan-out in
// GetEmails, and the header/body/attachment extraction helpers. Unlike
// the teacher (a mail client whose SendEmail actually sends), every
// outbound operation here creates a Gmail draft per the drafts-only
// invariant (spec §4.2, §4.8).
package googleemail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/logging"
	"github.com/syncorch/syncd/pkg/retry"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var log = logging.New("GoogleEmail")

// notifyTokenSource wraps an oauth2.TokenSource, persisting the refreshed
// token via the Token Store whenever the access token changes underneath
// it. Identical in shape to the teacher's notifyTokenSource.
type notifyTokenSource struct {
	src     oauth2.TokenSource
	current string
	onRefresh func(*oauth2.Token) error
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.current != t.AccessToken {
		s.current = t.AccessToken
		if s.onRefresh != nil {
			if cbErr := s.onRefresh(t); cbErr != nil {
				log.Printf("token refresh callback failed: %v", cbErr)
			}
		}
	}
	return t, nil
}

// Adapter is the Gmail EmailAdapter for one user.
type Adapter struct {
	userID       string
	clientID     string
	clientSecret string
	store        *credusecase.Store
	retryPolicy  retry.Policy
	attachmentCap int64 // per-attachment byte cap (spec §4.2 "eagerly realized... up to a configured cap")

	authenticated bool
	svc           *gmailapi.Service
}

func New(userID, clientID, clientSecret string, store *credusecase.Store, retryPolicy retry.Policy, attachmentCap int64) *Adapter {
	return &Adapter{
		userID:        userID,
		clientID:      clientID,
		clientSecret:  clientSecret,
		store:         store,
		retryPolicy:   retryPolicy,
		attachmentCap: attachmentCap,
	}
}

func (a *Adapter) Tag() provdomain.Tag { return provdomain.TagGoogleEmail }

func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	result := a.store.Check(ctx, a.userID, creddomain.ProviderGoogle)
	if !result.Authenticated || !result.Valid {
		return false, result.Err
	}

	cred, _, err := a.store.Load(a.userID, creddomain.ProviderGoogle)
	if err != nil {
		return false, err
	}

	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
		TokenType:    "Bearer",
	}
	oauthCfg := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint:     google.Endpoint,
	}
	wrapped := &notifyTokenSource{
		src:     oauthCfg.TokenSource(ctx, token),
		current: token.AccessToken,
		onRefresh: func(t *oauth2.Token) error {
			cred.AccessToken = t.AccessToken
			cred.RefreshToken = t.RefreshToken
			cred.Expiry = t.Expiry
			return a.store.Save(cred)
		},
	}
	client := oauth2.NewClient(ctx, wrapped)

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return false, errs.New(errs.AuthFailed, "unable to create Gmail service", err)
	}
	a.svc = svc
	a.authenticated = true
	return true, nil
}

func (a *Adapter) requireAuth() error {
	if !a.authenticated || a.svc == nil {
		return errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	return nil
}

// classifyGmailErr maps a googleapi error to this system's error taxonomy
// (spec §4.2's "Error taxonomy surfaced by adapters").
func classifyGmailErr(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if ok := asGoogleAPIError(err, &gerr); ok {
		switch {
		case gerr.Code == 429:
			return errs.New(errs.RateLimited, gerr.Message, err)
		case gerr.Code >= 500:
			return errs.New(errs.TransientUpstream, gerr.Message, err)
		case gerr.Code == 404:
			return errs.New(errs.NotFound, gerr.Message, err)
		case gerr.Code == 401 || gerr.Code == 403:
			return errs.New(errs.AuthFailed, gerr.Message, err)
		case gerr.Code >= 400:
			return errs.New(errs.PermanentUpstream, gerr.Message, err)
		}
	}
	return errs.New(errs.TransientUpstream, "network error", err)
}

func asGoogleAPIError(err error, target **googleapi.Error) bool {
	if gerr, ok := err.(*googleapi.Error); ok {
		*target = gerr
		return true
	}
	return false
}

// gmailIterator lazily pages through Messages.List, fetching full message
// bodies a page at a time. Finite and non-restartable per the
// EmailIterator contract.
type gmailIterator struct {
	a          *Adapter
	query      string
	pageToken  string
	buf        []*gmailapi.Message
	bufIdx     int
	exhausted  bool
	remaining  int // -1 means unbounded (limit <= 0)
}

func (it *gmailIterator) fetchPage(ctx context.Context) error {
	call := it.a.svc.Users.Messages.List("me").Context(ctx)
	if it.query != "" {
		call = call.Q(it.query)
	}
	pageSize := int64(100)
	if it.remaining > 0 && int64(it.remaining) < pageSize {
		pageSize = int64(it.remaining)
	}
	call = call.MaxResults(pageSize)
	if it.pageToken != "" {
		call = call.PageToken(it.pageToken)
	}

	var resp *gmailapi.ListMessagesResponse
	err := it.a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		r, callErr := call.Do()
		if callErr != nil {
			return classifyGmailErr(callErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		return err
	}

	it.buf = resp.Messages
	it.bufIdx = 0
	it.pageToken = resp.NextPageToken
	if it.pageToken == "" || len(resp.Messages) == 0 {
		it.exhausted = true
	}
	return nil
}

func (it *gmailIterator) Next(ctx context.Context) (provdomain.Email, error) {
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

	msgRef := it.buf[it.bufIdx]
	it.bufIdx++
	if it.remaining > 0 {
		it.remaining--
	}

	var full *gmailapi.Message
	err := it.a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		m, callErr := it.a.svc.Users.Messages.Get("me", msgRef.Id).Format("full").Context(ctx).Do()
		if callErr != nil {
			return classifyGmailErr(callErr)
		}
		full = m
		return nil
	})
	if err != nil {
		return provdomain.Email{}, err
	}

	return convertMessage(full, it.a.attachmentCap), nil
}

func (a *Adapter) FetchEmails(ctx context.Context, opts provdomain.FetchOptions) (provdomain.EmailIterator, int, error) {
	if err := a.requireAuth(); err != nil {
		return nil, 0, err
	}

	q := buildQuery(opts)

	var countResp *gmailapi.ListMessagesResponse
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		call := a.svc.Users.Messages.List("me").Context(ctx).MaxResults(1)
		if q != "" {
			call = call.Q(q)
		}
		r, callErr := call.Do()
		if callErr != nil {
			return classifyGmailErr(callErr)
		}
		countResp = r
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	return &gmailIterator{a: a, query: q, remaining: limit}, int(countResp.ResultSizeEstimate), nil
}

func buildQuery(opts provdomain.FetchOptions) string {
	var parts []string
	for _, f := range opts.FoldersOrLabels {
		parts = append(parts, "label:"+f)
	}
	if opts.Query != "" {
		parts = append(parts, opts.Query)
	}
	if !opts.MinDate.IsZero() {
		parts = append(parts, "after:"+opts.MinDate.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

func convertMessage(msg *gmailapi.Message, attachmentCap int64) provdomain.Email {
	from := getHeader(msg.Payload.Headers, "From")
	to := splitAddressList(getHeader(msg.Payload.Headers, "To"))
	cc := splitAddressList(getHeader(msg.Payload.Headers, "Cc"))
	bcc := splitAddressList(getHeader(msg.Payload.Headers, "Bcc"))

	bodyHTML, bodyText := getBodies(msg.Payload)
	if bodyText == "" && bodyHTML != "" {
		bodyText = htmlToText(bodyHTML)
	}

	attachments := getAttachments(msg.Payload, attachmentCap)

	return provdomain.Email{
		MessageID:      msg.Id,
		ProviderID:     msg.Id,
		Subject:        getHeader(msg.Payload.Headers, "Subject"),
		Sender:         from,
		Recipients:     to,
		CC:             cc,
		BCC:            bcc,
		SentDate:       time.UnixMilli(msg.InternalDate),
		ConversationID: msg.ThreadId,
		Folder:         mailboxFromLabels(msg.LabelIds),
		BodyText:       bodyText,
		BodyHTML:       bodyHTML,
		Attachments:    attachments,
		HasAttachments: len(attachments) > 0,
	}
}

func getHeader(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h.Name == name {
			dec := new(mime.WordDecoder)
			if decoded, err := dec.DecodeHeader(h.Value); err == nil {
				return decoded
			}
			return h.Value
		}
	}
	return ""
}

func splitAddressList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getBodies(payload *gmailapi.MessagePart) (html, text string) {
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			if payload.MimeType == "text/html" {
				return string(data), ""
			}
			return "", string(data)
		}
	}

	var walk func(parts []*gmailapi.MessagePart)
	walk = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			switch part.MimeType {
			case "text/html":
				if part.Body != nil && part.Body.Data != "" {
					if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
						html = string(data)
					}
				}
			case "text/plain":
				if part.Body != nil && part.Body.Data != "" {
					if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
						text = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)
	return html, text
}

// htmlToText is a best-effort plain-text rendering per spec §4.2: strip
// tags, collapse whitespace runs, preserve paragraph breaks.
func htmlToText(html string) string {
	reStyle := regexp.MustCompile(`(?i)<style[^>]*>[\s\S]*?</style>`)
	html = reStyle.ReplaceAllString(html, " ")
	reScript := regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	html = reScript.ReplaceAllString(html, " ")
	reBreak := regexp.MustCompile(`(?i)</p>|<br\s*/?>`)
	html = reBreak.ReplaceAllString(html, "\n\n")
	reTag := regexp.MustCompile(`<[^>]*>`)
	text := reTag.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")

	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		collapsed := strings.Join(strings.Fields(line), " ")
		out = append(out, collapsed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func getAttachments(payload *gmailapi.MessagePart, cap int64) []provdomain.Attachment {
	var out []provdomain.Attachment
	var walk func(parts []*gmailapi.MessagePart)
	walk = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.Size > 0 {
				if cap > 0 && int64(part.Body.Size) > cap {
					// Dropped: over the configured per-attachment cap
					// (spec §4.2, invariant 11 — parent email still ingested).
				} else {
					out = append(out, provdomain.Attachment{
						Filename:    part.Filename,
						ContentType: part.MimeType,
					})
				}
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)
	return out
}

func mailboxFromLabels(labels []string) string {
	for _, l := range labels {
		switch l {
		case "INBOX":
			return "inbox"
		case "SENT":
			return "sent"
		case "DRAFT":
			return "drafts"
		}
	}
	return "other"
}

// --- outbound (drafts-only) ---

func encodeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}

func buildRawMessage(to, cc, bcc []string, subject, body, htmlBody string, inReplyTo, references string) string {
	var buf bytes.Buffer
	if len(to) > 0 {
		buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	}
	if len(cc) > 0 {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(cc, ", ")))
	}
	if len(bcc) > 0 {
		buf.WriteString(fmt.Sprintf("Bcc: %s\r\n", strings.Join(bcc, ", ")))
	}
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeHeader(subject)))
	if inReplyTo != "" {
		buf.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", inReplyTo))
		buf.WriteString(fmt.Sprintf("References: %s\r\n", references))
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	contentType := "text/plain"
	content := body
	if htmlBody != "" {
		contentType = "text/html"
		content = htmlBody
	}
	buf.WriteString(fmt.Sprintf("Content-Type: %s; charset=\"UTF-8\"\r\n", contentType))
	buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		buf.WriteString(encoded[i:end] + "\r\n")
	}
	return buf.String()
}

func (a *Adapter) createDraft(ctx context.Context, raw string, threadID string) (provdomain.SendResult, error) {
	msg := &gmailapi.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}
	if threadID != "" {
		msg.ThreadId = threadID
	}
	draft := &gmailapi.Draft{Message: msg}

	var created *gmailapi.Draft
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		d, callErr := a.svc.Users.Drafts.Create("me", draft).Context(ctx).Do()
		if callErr != nil {
			return classifyGmailErr(callErr)
		}
		created = d
		return nil
	})
	if err != nil {
		return provdomain.SendResult{}, err
	}
	return provdomain.SendResult{
		DraftID:   created.Id,
		MessageID: created.Message.Id,
		ThreadID:  created.Message.ThreadId,
	}, nil
}

// SendEmail creates a draft (never sends) per the drafts-only invariant.
func (a *Adapter) SendEmail(ctx context.Context, subject, body string, to, cc, bcc []string, htmlBody string) (provdomain.SendResult, error) {
	if err := a.requireAuth(); err != nil {
		return provdomain.SendResult{}, err
	}
	raw := buildRawMessage(to, cc, bcc, subject, body, htmlBody, "", "")
	return a.createDraft(ctx, raw, "")
}

// ReplyToEmail creates a draft reply attached to the original thread.
func (a *Adapter) ReplyToEmail(ctx context.Context, emailID, body string, cc []string, includeOriginal bool) (provdomain.SendResult, error) {
	if err := a.requireAuth(); err != nil {
		return provdomain.SendResult{}, err
	}
	var original *gmailapi.Message
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		m, callErr := a.svc.Users.Messages.Get("me", emailID).Format("metadata").
			MetadataHeaders("Subject", "From", "Message-ID", "References").Context(ctx).Do()
		if callErr != nil {
			return classifyGmailErr(callErr)
		}
		original = m
		return nil
	})
	if err != nil {
		return provdomain.SendResult{}, err
	}

	subject := getHeader(original.Payload.Headers, "Subject")
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	to := []string{getHeader(original.Payload.Headers, "From")}
	messageID := getHeader(original.Payload.Headers, "Message-ID")
	references := getHeader(original.Payload.Headers, "References")
	if references == "" {
		references = messageID
	} else {
		references = references + " " + messageID
	}

	replyBody := body
	if includeOriginal {
		replyBody = body + "\r\n\r\n-- Original message --\r\n" + original.Snippet
	}

	raw := buildRawMessage(to, cc, nil, subject, replyBody, "", messageID, references)
	return a.createDraft(ctx, raw, original.ThreadId)
}

// ForwardEmail creates a forward draft for Gmail (Microsoft forwards
// natively instead — see the microsoftemail adapter's doc comment).
func (a *Adapter) ForwardEmail(ctx context.Context, emailID string, recipients []string, comment string) (provdomain.SendResult, error) {
	if err := a.requireAuth(); err != nil {
		return provdomain.SendResult{}, err
	}
	var original *gmailapi.Message
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		m, callErr := a.svc.Users.Messages.Get("me", emailID).Format("full").Context(ctx).Do()
		if callErr != nil {
			return classifyGmailErr(callErr)
		}
		original = m
		return nil
	})
	if err != nil {
		return provdomain.SendResult{}, err
	}

	subject := getHeader(original.Payload.Headers, "Subject")
	if !strings.HasPrefix(strings.ToLower(subject), "fwd:") {
		subject = "Fwd: " + subject
	}
	_, bodyText := getBodies(original.Payload)
	forwardBody := comment
	if forwardBody != "" {
		forwardBody += "\r\n\r\n"
	}
	forwardBody += "---------- Forwarded message ----------\r\n" + bodyText

	raw := buildRawMessage(recipients, nil, nil, subject, forwardBody, "", "", "")
	return a.createDraft(ctx, raw, "")
}

func (a *Adapter) FlagEmail(ctx context.Context, emailID string, markImportant, markRead *bool) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	req := &gmailapi.ModifyMessageRequest{}
	if markImportant != nil {
		if *markImportant {
			req.AddLabelIds = append(req.AddLabelIds, "IMPORTANT")
		} else {
			req.RemoveLabelIds = append(req.RemoveLabelIds, "IMPORTANT")
		}
	}
	if markRead != nil {
		if *markRead {
			req.RemoveLabelIds = append(req.RemoveLabelIds, "UNREAD")
		} else {
			req.AddLabelIds = append(req.AddLabelIds, "UNREAD")
		}
	}
	return a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		_, callErr := a.svc.Users.Messages.Modify("me", emailID, req).Context(ctx).Do()
		return classifyGmailErr(callErr)
	})
}

var wellKnownGmailLabels = map[provdomain.WellKnownFolder]string{
	provdomain.FolderInbox:   "INBOX",
	provdomain.FolderSent:    "SENT",
	provdomain.FolderDrafts:  "DRAFT",
	provdomain.FolderArchive: "", // archiving = removing INBOX, no target label
	provdomain.FolderTrash:   "TRASH",
	provdomain.FolderJunk:    "SPAM",
}

// MoveEmail resolves a well-known folder (creating a custom Gmail label on
// first use for anything else). It does not record a ProviderChange.
func (a *Adapter) MoveEmail(ctx context.Context, emailID string, destination provdomain.WellKnownFolder) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	label, known := wellKnownGmailLabels[destination]
	if destination == provdomain.FolderArchive {
		return a.retryPolicy.Do(ctx, func(ctx context.Context) error {
			_, callErr := a.svc.Users.Messages.Modify("me", emailID, &gmailapi.ModifyMessageRequest{
				RemoveLabelIds: []string{"INBOX"},
			}).Context(ctx).Do()
			return classifyGmailErr(callErr)
		})
	}
	if !known {
		labelID, err := a.ensureLabel(ctx, string(destination))
		if err != nil {
			return err
		}
		label = labelID
	}
	return a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		_, callErr := a.svc.Users.Messages.Modify("me", emailID, &gmailapi.ModifyMessageRequest{
			AddLabelIds:    []string{label},
			RemoveLabelIds: []string{"INBOX"},
		}).Context(ctx).Do()
		return classifyGmailErr(callErr)
	})
}

func (a *Adapter) ensureLabel(ctx context.Context, name string) (string, error) {
	var labels *gmailapi.ListLabelsResponse
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		l, callErr := a.svc.Users.Labels.List("me").Context(ctx).Do()
		if callErr != nil {
			return classifyGmailErr(callErr)
		}
		labels = l
		return nil
	})
	if err != nil {
		return "", err
	}
	for _, l := range labels.Labels {
		if strings.EqualFold(l.Name, name) {
			return l.Id, nil
		}
	}
	var created *gmailapi.Label
	err = a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		l, callErr := a.svc.Users.Labels.Create("me", &gmailapi.Label{Name: name}).Context(ctx).Do()
		if callErr != nil {
			return classifyGmailErr(callErr)
		}
		created = l
		return nil
	})
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

var _ provdomain.EmailAdapter = (*Adapter)(nil)
