// Package usecase implements the Ingestion Pipeline (C5): fetch via an
// adapter, dedupe against the File Registry, persist to the Content
// Store, and flush accumulated items into the Vector Store in batches.
// Grounded on
// _examples/original_source/backend/src/services/ingestion/services/ingest_mbox.py's
// ingest_mbox_to_qdrant (batch accumulation, flush_batch, result
// dict shape) and on the teacher's gorm-backed repositories for
// persistence.
package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	contentdomain "github.com/syncorch/syncd/internal/content/domain"
	"github.com/syncorch/syncd/internal/content/repository"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	regusecase "github.com/syncorch/syncd/internal/registry/usecase"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/logging"
	"github.com/syncorch/syncd/pkg/vectorstore"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultBatchSize = 20
	chunkSize        = 300
	chunkOverlap     = 50
)

// Result is the record returned to the Sync Manager after one pull,
// per spec §4.5.
type Result struct {
	Success         bool
	TotalItemsFound int
	ItemsIngested   int
	ItemsSkipped    int
	Batches         int
	Errors          []string
	Duration        time.Duration
}

// Pipeline wires one (user, provider) pull to its persistence targets.
type Pipeline struct {
	Emails    *repository.EmailRepository
	SyncRepo  *repository.SyncStatusRepository
	Vector    *vectorstore.Store
	log       *logging.Logger
	tempDir   string
}

func New(emails *repository.EmailRepository, syncRepo *repository.SyncStatusRepository, vector *vectorstore.Store, tempDir string) *Pipeline {
	return &Pipeline{Emails: emails, SyncRepo: syncRepo, Vector: vector, log: logging.New("Ingestion"), tempDir: tempDir}
}

// PullOptions bounds a single (user, provider) pull.
type PullOptions struct {
	UserID          string
	SourceType      string // google_email | microsoft_email | mbox | google_drive | onedrive
	Fetch           provdomain.FetchOptions
	ForceReingest   bool
	SaveAttachments bool
	BatchSize       int
}

type batchItem struct {
	path     string
	docID    string
	metadata map[string]interface{}
	email    provdomain.Email
	bodyPath string
}

// attachmentDocID mirrors ingest_microsoft_emails.py's
// `hashlib.md5(f"{email_id}_{attachment_name}_{idx}")` shape, generalized
// to sha256/128-bit to stay consistent with emailDocID's hash choice.
func attachmentDocID(parentDocID, filename string, idx int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", parentDocID, filename, idx)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// attachmentSourcePath computes the canonical attachments/ registry key
// per spec §6 (e.g. "/google_email/<user>/<conv>/attachments/<filename>").
func attachmentSourcePath(sourceType, userID string, email provdomain.Email, filename string) string {
	return fmt.Sprintf("/%s/%s/%s/attachments/%s", sourceType, userID, email.ConversationID, filename)
}

// PullEmails runs C5's per-pull contract against an EmailAdapter.
func (p *Pipeline) PullEmails(ctx context.Context, adapter provdomain.EmailAdapter, registry *regusecase.Registry, opts PullOptions) (Result, error) {
	start := time.Now()
	result := Result{}

	iter, totalFound, err := adapter.FetchEmails(ctx, opts.Fetch)
	if err != nil {
		return result, err
	}
	if totalFound > 0 {
		result.TotalItemsFound = totalFound
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	runDir, err := os.MkdirTemp(p.tempDir, "sync-*")
	if err != nil {
		return result, errs.New(errs.StorageError, "failed to create temp run directory", err)
	}
	defer os.RemoveAll(runDir)

	var batch []batchItem
	itemsProcessed := 0

	for {
		select {
		case <-ctx.Done():
			p.flushBatch(ctx, registry, batch, &result)
			result.Errors = append(result.Errors, "cancelled")
			result.Duration = time.Since(start)
			return result, errs.New(errs.Cancelled, "pull cancelled", ctx.Err())
		default:
		}

		email, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		if totalFound <= 0 {
			result.TotalItemsFound++
		}

		docID := emailDocID(opts.SourceType, email)
		path := emailSourcePath(opts.SourceType, opts.UserID, email, docID)

		if registry.FileExists(path) && !opts.ForceReingest {
			result.ItemsSkipped++
			continue
		}

		bodyPath := filepath.Join(runDir, docID+".eml")
		body := email.BodyText
		if body == "" {
			body = email.BodyHTML
		}
		if err := os.WriteFile(bodyPath, []byte(body), 0o600); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("write temp file for %s: %v", docID, err))
			continue
		}

		subject := (*string)(nil)
		if email.Subject != "" {
			s := email.Subject
			subject = &s
		}
		contentEmail := contentdomain.Email{
			UserID: opts.UserID, EmailID: email.MessageID, SourceType: opts.SourceType,
			ConversationID: email.ConversationID, Sender: email.Sender,
			Recipients: contentdomain.StringArray(email.Recipients), Subject: subject,
			BodyText: email.BodyText, SentDate: email.SentDate, Folder: email.Folder,
		}
		if err := p.Emails.Save(contentEmail); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("save email %s: %v", docID, err))
			continue
		}

		metadata := map[string]interface{}{
			"doc_id": docID, "path": path, "user_id": opts.UserID, "email_id": email.MessageID,
			"subject": email.Subject, "sender": email.Sender, "conversation_id": email.ConversationID,
			"source_type": opts.SourceType, "folder": email.Folder,
		}
		batch = append(batch, batchItem{path: path, docID: docID, metadata: metadata, email: email, bodyPath: bodyPath})
		itemsProcessed++

		if opts.SaveAttachments && email.HasAttachments {
			for i, att := range email.Attachments {
				// Dropped per spec §4.2 edge case: no filename or zero-byte body.
				if att.Filename == "" || len(att.Bytes) == 0 {
					continue
				}
				attDocID := attachmentDocID(docID, att.Filename, i)
				attPath := attachmentSourcePath(opts.SourceType, opts.UserID, email, att.Filename)
				if registry.FileExists(attPath) && !opts.ForceReingest {
					result.ItemsSkipped++
					continue
				}
				attBodyPath := filepath.Join(runDir, attDocID+".bin")
				if err := os.WriteFile(attBodyPath, att.Bytes, 0o600); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("write attachment temp file for %s: %v", attDocID, err))
					continue
				}
				attMetadata := map[string]interface{}{
					"doc_id": attDocID, "path": attPath, "user_id": opts.UserID,
					"parent_email_id": email.MessageID, "filename": att.Filename,
					"content_type": "attachment", "mime_type": att.ContentType,
					"conversation_id": email.ConversationID, "source_type": opts.SourceType,
				}
				batch = append(batch, batchItem{path: attPath, docID: attDocID, metadata: attMetadata, email: email, bodyPath: attBodyPath})
			}
		}

		if len(batch) >= batchSize {
			p.flushBatch(ctx, registry, batch, &result)
			result.Batches++
			batch = nil
			if err := p.SyncRepo.Upsert(opts.UserID, opts.SourceType, "in_progress", progressOf(itemsProcessed, result.TotalItemsFound), "", repository.SyncCounters{
				ItemsProcessed: itemsProcessed, ItemsSucceeded: result.ItemsIngested,
				ItemsFailed: len(result.Errors), TotalDocuments: result.TotalItemsFound,
			}); err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
		}
	}

	if len(batch) > 0 {
		p.flushBatch(ctx, registry, batch, &result)
		result.Batches++
	}

	result.Success = result.ItemsIngested > 0 || result.TotalItemsFound == 0
	result.Duration = time.Since(start)
	p.log.Printf("pull for %s/%s: %d found, %d ingested, %d skipped, %d batches", opts.UserID, opts.SourceType, result.TotalItemsFound, result.ItemsIngested, result.ItemsSkipped, result.Batches)
	return result, nil
}

// flushBatch chunks, upserts to the vector store, and registers each
// item, then flushes the registry to disk before returning — per spec
// §4.3, writes are buffered and flushed at the end of each batch, not
// just once at the end of the whole pull, so a crash or cancellation
// between batches never loses already-ingested registry state. Partial
// failures leave successfully-upserted items registered; the failing
// ones are retried once before being reported as errors, per spec §4.5.
func (p *Pipeline) flushBatch(ctx context.Context, registry *regusecase.Registry, batch []batchItem, result *Result) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	for _, item := range batch {
		raw, err := os.ReadFile(item.bodyPath)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("read temp file for %s: %v", item.docID, err))
			continue
		}
		texts, err := splitter.SplitText(string(raw))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("chunk %s: %v", item.docID, err))
			continue
		}

		chunks := make([]vectorstore.Chunk, 0, len(texts))
		for i, t := range texts {
			chunks = append(chunks, vectorstore.Chunk{
				ID: fmt.Sprintf("%s_%d", item.docID, i), Text: t, Metadata: item.metadata,
			})
		}

		upsertErr := p.Vector.Upsert(ctx, item.metadata["user_id"].(string), chunks)
		if upsertErr != nil {
			// Retry once before giving up on this item.
			upsertErr = p.Vector.Upsert(ctx, item.metadata["user_id"].(string), chunks)
		}
		if upsertErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert %s: %v", item.docID, upsertErr))
			continue
		}

		registry.Register(item.path, item.docID, item.metadata)
		result.ItemsIngested++
		os.Remove(item.bodyPath)
	}

	if err := registry.Flush(); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
}

func progressOf(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// PullFilesOptions bounds a single (user, provider) Drive/OneDrive
// file pull.
type PullFilesOptions struct {
	UserID        string
	SourceType    string // google_drive | onedrive
	List          provdomain.ListFilesOptions
	ForceReingest bool
	BatchSize     int
}

// PullFiles runs C5's per-pull contract against a DriveAdapter: list
// files, download each one's content, dedupe against the File Registry
// by the Drive/OneDrive docId formula, and flush into the Vector Store
// through the same batching as PullEmails. Files have no Content Store
// row of their own — like attachments, only the registry entry and the
// vector chunks are persisted. Grounded on
// ingest_gdrive_documents.py's compute_drive_file_hash/download_drive_file
// (metadata + first-10KB content hash, temp-file download before chunking).
func (p *Pipeline) PullFiles(ctx context.Context, adapter provdomain.DriveAdapter, registry *regusecase.Registry, opts PullFilesOptions) (Result, error) {
	start := time.Now()
	result := Result{}

	files, err := adapter.ListFiles(ctx, opts.List)
	if err != nil {
		return result, err
	}
	result.TotalItemsFound = len(files)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	runDir, err := os.MkdirTemp(p.tempDir, "sync-files-*")
	if err != nil {
		return result, errs.New(errs.StorageError, "failed to create temp run directory", err)
	}
	defer os.RemoveAll(runDir)

	var batch []batchItem
	itemsProcessed := 0

	for _, file := range files {
		select {
		case <-ctx.Done():
			p.flushBatch(ctx, registry, batch, &result)
			result.Errors = append(result.Errors, "cancelled")
			result.Duration = time.Since(start)
			return result, errs.New(errs.Cancelled, "pull cancelled", ctx.Err())
		default:
		}

		content, mimeType, extension, err := adapter.GetFileContent(ctx, file.FileID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("fetch content for %s: %v", file.FileID, err))
			continue
		}
		raw, readErr := io.ReadAll(content)
		content.Close()
		if readErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("read content for %s: %v", file.FileID, readErr))
			continue
		}

		docID := fileDocID(file.FileID, file.Name, file.ModifiedAt, mimeType, raw)
		path := driveSourcePath(opts.SourceType, opts.UserID, file.FileID, file.Name)

		if registry.FileExists(path) && !opts.ForceReingest {
			result.ItemsSkipped++
			continue
		}

		bodyPath := filepath.Join(runDir, docID+extension)
		if err := os.WriteFile(bodyPath, raw, 0o600); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("write temp file for %s: %v", docID, err))
			continue
		}

		metadata := map[string]interface{}{
			"doc_id": docID, "path": path, "user_id": opts.UserID, "file_id": file.FileID,
			"name": file.Name, "mime_type": mimeType, "folder_id": file.FolderID,
			"source_type": opts.SourceType, "content_type": "file",
		}
		batch = append(batch, batchItem{path: path, docID: docID, metadata: metadata, bodyPath: bodyPath})
		itemsProcessed++

		if len(batch) >= batchSize {
			p.flushBatch(ctx, registry, batch, &result)
			result.Batches++
			batch = nil
			if err := p.SyncRepo.Upsert(opts.UserID, opts.SourceType, "in_progress", progressOf(itemsProcessed, result.TotalItemsFound), "", repository.SyncCounters{
				ItemsProcessed: itemsProcessed, ItemsSucceeded: result.ItemsIngested,
				ItemsFailed: len(result.Errors), TotalDocuments: result.TotalItemsFound,
			}); err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
		}
	}

	if len(batch) > 0 {
		p.flushBatch(ctx, registry, batch, &result)
		result.Batches++
	}

	result.Success = result.ItemsIngested > 0 || result.TotalItemsFound == 0
	result.Duration = time.Since(start)
	p.log.Printf("file pull for %s/%s: %d found, %d ingested, %d skipped, %d batches", opts.UserID, opts.SourceType, result.TotalItemsFound, result.ItemsIngested, result.ItemsSkipped, result.Batches)
	return result, nil
}

// fileDocID computes the stable, deterministic per-file document id
// per spec §4.5: SHA-256 of providerId∥name∥mtime∥mime∥first10KB,
// truncated to a 128-bit hex string — the Drive/OneDrive counterpart
// of emailDocID.
func fileDocID(providerID, name string, modifiedAt time.Time, mimeType string, content []byte) string {
	head := content
	if len(head) > 10240 {
		head = head[:10240]
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", providerID, name, modifiedAt.Format(time.RFC3339), mimeType)
	h.Write(head)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// driveSourcePath computes the canonical registry key per spec §6 for
// Drive/OneDrive files.
func driveSourcePath(sourceType, userID, fileID, filename string) string {
	switch sourceType {
	case "google_drive":
		return fmt.Sprintf("/google_storage/%s/%s/%s", userID, fileID, filename)
	case "onedrive":
		return fmt.Sprintf("/microsoft_storage/%s/%s/%s", userID, fileID, filename)
	default:
		return fmt.Sprintf("/%s/%s/%s/%s", sourceType, userID, fileID, filename)
	}
}

// emailDocID computes the stable, deterministic per-email document id
// per spec §4.5: SHA-256 of providerId∥subject∥date∥sender∥bodyHead1KB,
// truncated to a 128-bit hex string. MBOX emails additionally fold in
// the hash of internetMessageId (email.MessageID differs from
// ProviderID only for mbox, where MessageID carries the RFC822
// Message-ID header).
func emailDocID(sourceType string, email provdomain.Email) string {
	bodyHead := email.BodyText
	if len(bodyHead) > 1024 {
		bodyHead = bodyHead[:1024]
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", email.ProviderID, email.Subject, email.SentDate.Format(time.RFC3339), email.Sender, bodyHead)
	if sourceType == "mbox" {
		fmt.Fprintf(h, "|%s", email.MessageID)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// emailSourcePath computes the canonical registry key per spec §6.
func emailSourcePath(sourceType, userID string, email provdomain.Email, docID string) string {
	switch sourceType {
	case "google_email":
		return fmt.Sprintf("/google_email/%s/%s/%s", userID, email.ConversationID, docID)
	case "microsoft_email":
		return fmt.Sprintf("/microsoft_email/%s/%s/%s", userID, email.ConversationID, docID)
	case "mbox":
		return fmt.Sprintf("/mbox/%s/%s/%s", userID, email.ConversationID, docID)
	default:
		return fmt.Sprintf("/%s/%s/%s/%s", sourceType, userID, email.ConversationID, docID)
	}
}
