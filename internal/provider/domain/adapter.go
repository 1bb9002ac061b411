// Package domain defines the uniform Provider Adapter Contract (C2): the
// capability sets every {GoogleEmail, MicrosoftEmail, GoogleDrive,
// OneDrive, GoogleCalendar, OutlookCalendar, LocalFS} adapter implements,
// and the normalized types that flow out of FetchEmails/ListFiles.
//
// Per spec §9's design note, dispatch on provider is a tagged Capability
// type rather than string branching: the Sync Manager holds a
// map[Tag]EmailAdapter (etc.) populated once at startup instead of an
// in-memory user_adapters cache keyed by provider name.
package domain

import (
	"context"
	"io"
	"time"
)

// Tag identifies one adapter variant.
type Tag string

const (
	TagGoogleEmail      Tag = "google_email"
	TagMicrosoftEmail   Tag = "microsoft_email"
	TagGoogleDrive      Tag = "google_drive"
	TagOneDrive         Tag = "onedrive"
	TagGoogleCalendar   Tag = "google_calendar"
	TagOutlookCalendar  Tag = "outlook_calendar"
	TagLocalFS          Tag = "local"
)

// WellKnownFolder is one of the provider-agnostic folder aliases from
// spec §6. Adapters resolve these to the provider's native label/folder
// id and create the folder on first use if it does not already exist.
type WellKnownFolder string

const (
	FolderInbox   WellKnownFolder = "inbox"
	FolderSent    WellKnownFolder = "sent"
	FolderDrafts  WellKnownFolder = "drafts"
	FolderArchive WellKnownFolder = "archive"
	FolderTrash   WellKnownFolder = "trash"
	FolderJunk    WellKnownFolder = "junk"
)

// Attachment is a normalized, in-memory-realized email attachment.
type Attachment struct {
	Filename      string
	ContentType   string
	Bytes         []byte
	ParentEmailID string
}

// Email is the uniform normalized record FetchEmails yields, per spec
// §4.2's exact field list.
type Email struct {
	MessageID      string
	ProviderID     string
	Subject        string // empty string, not "sans_sujet" — the placeholder is a filename convention only
	Sender         string
	Recipients     []string
	CC             []string
	BCC            []string
	SentDate       time.Time
	ConversationID string
	Folder         string
	BodyText       string
	BodyHTML       string
	Attachments    []Attachment
	HasAttachments bool
}

// FetchOptions bounds a FetchEmails call.
type FetchOptions struct {
	FoldersOrLabels []string
	Query           string
	Limit           int
	MinDate         time.Time
}

// EmailIterator yields normalized emails lazily. It is finite and
// non-restartable: Next returns io.EOF once exhausted, and the iterator
// may not be reused afterwards.
type EmailIterator interface {
	// Next returns the next email, or io.EOF when exhausted.
	Next(ctx context.Context) (Email, error)
}

// SendResult is returned by SendEmail/ReplyToEmail.
type SendResult struct {
	MessageID string
	ThreadID  string
	DraftID   string
}

// EmailAdapter is the capability set shared by GoogleEmail, MicrosoftEmail
// and LocalFS (spec §4.2). Send and reply create drafts and never send;
// ForwardEmail creates a draft on Google but uses the native forward
// endpoint on Microsoft, which sends the message.
type EmailAdapter interface {
	Tag() Tag

	// Authenticate may refresh tokens; sets an internal authenticated
	// flag read by subsequent calls. Returns false (not an error) when
	// the stored credential cannot be made valid.
	Authenticate(ctx context.Context) (bool, error)

	// FetchEmails returns a lazy, finite, non-restartable iterator plus
	// the total count the provider reports matching opts (independent of
	// how much of the iterator is actually consumed).
	FetchEmails(ctx context.Context, opts FetchOptions) (EmailIterator, int, error)

	// SendEmail always creates a draft; it never sends.
	SendEmail(ctx context.Context, subject, body string, to, cc, bcc []string, htmlBody string) (SendResult, error)

	// ReplyToEmail creates a draft reply attached to the original thread.
	ReplyToEmail(ctx context.Context, emailID, body string, cc []string, includeOriginal bool) (SendResult, error)

	// ForwardEmail forwards via the provider's native forward endpoint
	// (Microsoft) or a forward draft (Google) — see each adapter's
	// doc comment for which.
	ForwardEmail(ctx context.Context, emailID string, recipients []string, comment string) (SendResult, error)

	// FlagEmail idempotently toggles importance/read state.
	FlagEmail(ctx context.Context, emailID string, markImportant, markRead *bool) error

	// MoveEmail resolves a well-known folder or creates a custom one on
	// first use. It does not record a ProviderChange; only the Action
	// Executor logs the archive/delete moves it dispatches.
	MoveEmail(ctx context.Context, emailID string, destination WellKnownFolder) error
}

// DriveFile is the normalized metadata for one Drive/OneDrive item.
type DriveFile struct {
	FileID      string
	Name        string
	MimeType    string
	Size        int64
	ModifiedAt  time.Time
	FolderID    string
	IsNative    bool // Google Docs/Sheets/Slides or OneNote/Office-online-native
}

// ListFilesOptions bounds a ListFiles call.
type ListFilesOptions struct {
	FolderID string
	Query    string
	Limit    int
}

// DriveAdapter is the capability set shared by GoogleDrive and OneDrive.
type DriveAdapter interface {
	Tag() Tag
	Authenticate(ctx context.Context) (bool, error)
	ListFiles(ctx context.Context, opts ListFilesOptions) ([]DriveFile, error)
	ListFolders(ctx context.Context, parentFolderID string) ([]DriveFile, error)
	// GetFileContent exports native-format documents to a neutral format
	// (PDF by default; an image or plain text where a PDF export is not
	// meaningful)
	// and reports the exported MIME type.
	GetFileContent(ctx context.Context, fileID string) (content io.ReadCloser, mimeType, extension string, err error)
}

// CalendarEvent is the normalized event shape exposed write-through by
// the Tool-Server multiplexer. Per spec §9's Open Question, calendar
// events are never persisted to the Content Store or Vector Store.
type CalendarEvent struct {
	EventID     string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	Location    string
}

// CalendarAdapter is the capability set shared by GoogleCalendar and
// OutlookCalendar.
type CalendarAdapter interface {
	Tag() Tag
	Authenticate(ctx context.Context) (bool, error)
	ListEvents(ctx context.Context, from, to time.Time) ([]CalendarEvent, error)
	CreateEvent(ctx context.Context, event CalendarEvent) (CalendarEvent, error)
	UpdateEvent(ctx context.Context, event CalendarEvent) (CalendarEvent, error)
}
