// Package localfs implements the EmailAdapter capability set (C2) for
// local MBOX files. Grounded on
// _examples/original_source/backend/src/services/ingestion/services/ingest_mbox.py:
// sender avoid-list filtering, the 100-character minimum body length
// (spam filter), and MIME header decoding all mirror that script's
// parse_mbox_message, reimplemented on top of emersion/go-message/mail
// instead of Python's email/mailbox modules.
//
// LocalFS has no outbound or authenticate semantics beyond checking the
// file is reachable: Send/Reply/Forward/Flag/Move return InvalidArgument
// since mbox is a read-only ingestion source.
package localfs

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/pkg/errs"

	emmail "github.com/emersion/go-message/mail"
)

// minBodyLength is the spam-filter threshold from spec §4.2: mbox bodies
// shorter than this are dropped entirely.
const minBodyLength = 100

type Adapter struct {
	userID        string
	mboxPath      string
	senderAvoid   map[string]struct{}
	authenticated bool
}

func New(userID, mboxPath string, senderAvoidList []string) *Adapter {
	avoid := make(map[string]struct{}, len(senderAvoidList))
	for _, s := range senderAvoidList {
		avoid[s] = struct{}{}
	}
	return &Adapter{userID: userID, mboxPath: mboxPath, senderAvoid: avoid}
}

func (a *Adapter) Tag() provdomain.Tag { return provdomain.TagLocalFS }

// Authenticate has nothing to check beyond the file being reachable: the
// mbox is read directly off disk, with no token or handshake involved.
func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	if _, err := os.Stat(a.mboxPath); err != nil {
		return false, errs.New(errs.NotFound, "mbox file not found", err)
	}
	a.authenticated = true
	return true, nil
}

var mboxFromLine = regexp.MustCompile(`^From \S`)

// splitMboxMessages scans the mbox into raw RFC822 byte blocks, split on
// "From " envelope lines at the start of a line, matching the delimiter
// convention Python's mailbox.mbox relies on.
func splitMboxMessages(f *os.File) ([][]byte, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var messages [][]byte
	var current bytes.Buffer
	started := false
	for scanner.Scan() {
		line := scanner.Text()
		if mboxFromLine.MatchString(line) {
			if started {
				messages = append(messages, append([]byte(nil), current.Bytes()...))
				current.Reset()
			}
			started = true
			continue // the envelope line itself is not part of the RFC822 message
		}
		if !started {
			continue // ignore any preamble before the first envelope line
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.New(errs.ParseError, "mbox scan error", err)
	}
	if started {
		messages = append(messages, append([]byte(nil), current.Bytes()...))
	}
	return messages, nil
}

// mboxIterator parses one raw message at a time out of a pre-split mbox;
// lazy in the sense that parsing (MIME decode, filtering) is deferred to
// Next, non-restartable once exhausted.
type mboxIterator struct {
	a         *Adapter
	raw       [][]byte
	idx       int
	remaining int
}

func (it *mboxIterator) Next(ctx context.Context) (provdomain.Email, error) {
	for {
		if it.remaining == 0 || it.idx >= len(it.raw) {
			return provdomain.Email{}, io.EOF
		}
		msgID := "mbox_" + it.a.userID + "_" + strconv.Itoa(it.idx)
		raw := it.raw[it.idx]
		it.idx++

		email, ok := parseMboxMessage(raw, msgID, it.a.senderAvoid)
		if !ok {
			continue
		}
		if it.remaining > 0 {
			it.remaining--
		}
		return email, nil
	}
}

func (a *Adapter) FetchEmails(ctx context.Context, opts provdomain.FetchOptions) (provdomain.EmailIterator, int, error) {
	if !a.authenticated {
		return nil, 0, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	f, err := os.Open(a.mboxPath)
	if err != nil {
		return nil, 0, errs.New(errs.NotFound, "cannot open mbox file", err)
	}
	defer f.Close()

	raw, err := splitMboxMessages(f)
	if err != nil {
		return nil, 0, err
	}

	limit := -1
	if opts.Limit > 0 && opts.Limit < len(raw) {
		limit = opts.Limit
		raw = raw[:opts.Limit]
	}
	return &mboxIterator{a: a, raw: raw, remaining: limit}, len(raw), nil
}

// parseMboxMessage decodes a single RFC822 message extracted from the
// mbox into a normalized Email, applying the avoid-list and minimum-body
// filters. Returns ok=false when the message should be dropped.
func parseMboxMessage(raw []byte, msgID string, senderAvoid map[string]struct{}) (provdomain.Email, bool) {
	reader, err := emmail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return provdomain.Email{}, false
	}
	defer reader.Close()

	header := reader.Header
	subject, _ := header.Subject()
	fromAddrs, _ := header.AddressList("From")
	sender := ""
	if len(fromAddrs) > 0 {
		sender = fromAddrs[0].String()
	}
	if sender == "" {
		return provdomain.Email{}, false
	}
	if _, avoided := senderAvoid[sender]; avoided {
		return provdomain.Email{}, false
	}

	to := addressStrings(header, "To")
	cc := addressStrings(header, "Cc")
	bcc := addressStrings(header, "Bcc")
	sentDate, _ := header.Date()

	internetMessageID := strings.TrimSpace(header.Get("Message-Id"))
	if internetMessageID == "" {
		internetMessageID = msgID
	}
	conversationID := md5Hex(internetMessageID)

	var bodyText, bodyHTML string
	var attachments []provdomain.Attachment
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch h := part.Header.(type) {
		case *emmail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, _ := io.ReadAll(part.Body)
			switch contentType {
			case "text/plain":
				if bodyText == "" {
					bodyText = string(body)
				}
			case "text/html":
				bodyHTML = string(body)
			}
		case *emmail.AttachmentHeader:
			filename, _ := h.Filename()
			body, _ := io.ReadAll(part.Body)
			if filename == "" || len(body) == 0 {
				continue // dropped per spec §4.2: no filename or zero-byte body
			}
			contentType, _, _ := h.ContentType()
			attachments = append(attachments, provdomain.Attachment{
				Filename: filename, ContentType: contentType, Bytes: body,
			})
		}
	}

	if bodyText == "" && bodyHTML != "" {
		bodyText = htmlToText(bodyHTML)
	}
	bodyText = cleanBodyText(bodyText)
	if len(bodyText) < minBodyLength {
		return provdomain.Email{}, false // spam filter, per spec §4.2
	}

	return provdomain.Email{
		MessageID: internetMessageID, ProviderID: msgID, Subject: subject,
		Sender: sender, Recipients: to, CC: cc, BCC: bcc, SentDate: sentDate,
		ConversationID: conversationID, Folder: "mbox", BodyText: bodyText,
		BodyHTML: bodyHTML, Attachments: attachments, HasAttachments: len(attachments) > 0,
	}, true
}

func addressStrings(header emmail.Header, field string) []string {
	addrs, _ := header.AddressList(field)
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// cleanBodyText collapses runs of whitespace while preserving paragraph
// breaks, grounded on clean_body_text in the original ingestion script.
var whitespaceRun = regexp.MustCompile(`[ \t]+`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)

func cleanBodyText(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var anyTagPattern = regexp.MustCompile(`(?is)<[^>]+>`)
var blockBreakPattern = regexp.MustCompile(`(?is)</(p|div|br)\s*/?>`)

// htmlToText is a best-effort renderer: strip script/style blocks, turn
// block-level closers into blank lines, strip remaining tags, unescape
// basic entities, collapse whitespace. Mirrors the Google adapters'
// htmlToText so both ingestion paths satisfy the same edge-case policy.
func htmlToText(html string) string {
	s := stripTagBlock(html, "script")
	s = stripTagBlock(s, "style")
	s = blockBreakPattern.ReplaceAllString(s, "\n\n")
	s = anyTagPattern.ReplaceAllString(s, "")
	s = unescapeBasicEntities(s)
	return cleanBodyText(s)
}

func stripTagBlock(s, tag string) string {
	re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(s, "")
}

func unescapeBasicEntities(s string) string {
	replacer := strings.NewReplacer(
		"&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'",
	)
	return replacer.Replace(s)
}

func (a *Adapter) SendEmail(ctx context.Context, subject, body string, to, cc, bcc []string, htmlBody string) (provdomain.SendResult, error) {
	return provdomain.SendResult{}, errs.New(errs.InvalidArgument, "local filesystem source is read-only", nil)
}

func (a *Adapter) ReplyToEmail(ctx context.Context, emailID, body string, cc []string, includeOriginal bool) (provdomain.SendResult, error) {
	return provdomain.SendResult{}, errs.New(errs.InvalidArgument, "local filesystem source is read-only", nil)
}

func (a *Adapter) ForwardEmail(ctx context.Context, emailID string, recipients []string, comment string) (provdomain.SendResult, error) {
	return provdomain.SendResult{}, errs.New(errs.InvalidArgument, "local filesystem source is read-only", nil)
}

func (a *Adapter) FlagEmail(ctx context.Context, emailID string, markImportant, markRead *bool) error {
	return errs.New(errs.InvalidArgument, "local filesystem source is read-only", nil)
}

func (a *Adapter) MoveEmail(ctx context.Context, emailID string, destination provdomain.WellKnownFolder) error {
	return errs.New(errs.InvalidArgument, "local filesystem source is read-only", nil)
}

var _ provdomain.EmailAdapter = (*Adapter)(nil)
