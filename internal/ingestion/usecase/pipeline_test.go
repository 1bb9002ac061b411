package usecase

import (
	"testing"
	"time"

	provdomain "github.com/syncorch/syncd/internal/provider/domain"

	"github.com/stretchr/testify/assert"
)

func sampleEmail() provdomain.Email {
	return provdomain.Email{
		MessageID: "rfc-msg-id@mail.example.com", ProviderID: "provider-123",
		Subject: "Quarterly report", Sender: "alice@example.com",
		ConversationID: "conv-1", SentDate: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
		BodyText: "Please find the report attached.",
	}
}

func TestEmailDocID_Deterministic(t *testing.T) {
	email := sampleEmail()
	id1 := emailDocID("google_email", email)
	id2 := emailDocID("google_email", email)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32) // 16 bytes hex-encoded
}

func TestEmailDocID_DiffersBySubject(t *testing.T) {
	email := sampleEmail()
	id1 := emailDocID("google_email", email)
	email.Subject = "Different subject"
	id2 := emailDocID("google_email", email)
	assert.NotEqual(t, id1, id2)
}

func TestEmailDocID_MboxFoldsInMessageID(t *testing.T) {
	email := sampleEmail()
	nonMbox := emailDocID("google_email", email)
	mbox := emailDocID("mbox", email)
	assert.NotEqual(t, nonMbox, mbox, "mbox docID must fold in MessageID")

	email.MessageID = "a-different-message-id@mail.example.com"
	mboxOther := emailDocID("mbox", email)
	assert.NotEqual(t, mbox, mboxOther)
}

func TestEmailDocID_TruncatesBodyHeadTo1KB(t *testing.T) {
	short := sampleEmail()
	short.BodyText = "x"

	long := sampleEmail()
	padding := make([]byte, 2048)
	for i := range padding {
		padding[i] = 'x'
	}
	long.BodyText = string(padding)

	// Both bodies agree on the first 1KB (all 'x'), so the docID should
	// be identical once truncated — proving the 1KB head truncation,
	// not the whole body, feeds the hash.
	short.BodyText = string(padding[:1024])
	assert.Equal(t, emailDocID("google_email", short), emailDocID("google_email", long))
}

func TestEmailSourcePath_PerSourceTypeTemplates(t *testing.T) {
	email := sampleEmail()
	docID := "abc123"

	assert.Equal(t, "/google_email/alice/conv-1/abc123", emailSourcePath("google_email", "alice", email, docID))
	assert.Equal(t, "/microsoft_email/alice/conv-1/abc123", emailSourcePath("microsoft_email", "alice", email, docID))
	assert.Equal(t, "/mbox/alice/conv-1/abc123", emailSourcePath("mbox", "alice", email, docID))
	assert.Equal(t, "/google_drive/alice/conv-1/abc123", emailSourcePath("google_drive", "alice", email, docID))
}

func TestProgressOf(t *testing.T) {
	assert.Equal(t, 0.5, progressOf(5, 10))
	assert.Equal(t, float64(0), progressOf(5, 0))
}

func TestAttachmentDocID_Deterministic(t *testing.T) {
	id1 := attachmentDocID("parent-doc-1", "invoice.pdf", 0)
	id2 := attachmentDocID("parent-doc-1", "invoice.pdf", 0)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32)
}

func TestAttachmentDocID_DiffersByIndex(t *testing.T) {
	id1 := attachmentDocID("parent-doc-1", "invoice.pdf", 0)
	id2 := attachmentDocID("parent-doc-1", "invoice.pdf", 1)
	assert.NotEqual(t, id1, id2)
}

func TestAttachmentSourcePath(t *testing.T) {
	email := sampleEmail()
	path := attachmentSourcePath("google_email", "alice", email, "invoice.pdf")
	assert.Equal(t, "/google_email/alice/conv-1/attachments/invoice.pdf", path)
}

func TestFileDocID_Deterministic(t *testing.T) {
	mtime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	content := []byte("file body content")
	id1 := fileDocID("file-123", "report.pdf", mtime, "application/pdf", content)
	id2 := fileDocID("file-123", "report.pdf", mtime, "application/pdf", content)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32)
}

func TestFileDocID_DiffersByContent(t *testing.T) {
	mtime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	id1 := fileDocID("file-123", "report.pdf", mtime, "application/pdf", []byte("version one"))
	id2 := fileDocID("file-123", "report.pdf", mtime, "application/pdf", []byte("version two"))
	assert.NotEqual(t, id1, id2)
}

func TestFileDocID_OnlyHashesFirst10KB(t *testing.T) {
	mtime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	head := make([]byte, 10240)
	for i := range head {
		head[i] = 'a'
	}
	short := append([]byte{}, head...)
	long := append(append([]byte{}, head...), []byte("this tail is beyond the first 10KB and must be ignored")...)
	assert.Equal(t, fileDocID("file-123", "report.pdf", mtime, "application/pdf", short),
		fileDocID("file-123", "report.pdf", mtime, "application/pdf", long))
}

func TestDriveSourcePath_PerSourceTypeTemplates(t *testing.T) {
	assert.Equal(t, "/google_storage/alice/file-1/report.pdf", driveSourcePath("google_drive", "alice", "file-1", "report.pdf"))
	assert.Equal(t, "/microsoft_storage/alice/file-1/report.pdf", driveSourcePath("onedrive", "alice", "file-1", "report.pdf"))
}
