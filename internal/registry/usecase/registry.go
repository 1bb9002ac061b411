// Package usecase implements the File Registry (C3): a per-user,
// on-disk ledger of path → {docId, metadata}, loaded into memory for
// the duration of one sync run and flushed via temp-file + atomic
// rename, mirroring the write-then-rename idiom the Token Store
// (internal/credentials/usecase) already uses for its own on-disk state.
package usecase

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	regdomain "github.com/syncorch/syncd/internal/registry/domain"
	"github.com/syncorch/syncd/pkg/errs"
)

// Registry is single-writer per user: the per-user lock the Sync
// Manager takes in PullOne guarantees at most one in-flight pull touches
// a given user's file at a time.
type Registry struct {
	userID   string
	path     string
	mu       sync.Mutex
	entries  map[string]regdomain.Entry
	dirty    bool
}

func registryPath(dataRoot, userID string) string {
	return filepath.Join(dataRoot, "registry", userID+".json")
}

// Load reads userID's registry file into memory, or starts an empty one
// if it does not yet exist.
func Load(dataRoot, userID string) (*Registry, error) {
	r := &Registry{userID: userID, path: registryPath(dataRoot, userID), entries: make(map[string]regdomain.Entry)}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, errs.New(errs.StorageError, "failed to read file registry", err)
	}
	var entries []regdomain.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errs.New(errs.StorageError, "corrupt file registry", err)
	}
	for _, e := range entries {
		r.entries[e.Path] = e
	}
	return r, nil
}

// FileExists reports whether path has a registry entry.
func (r *Registry) FileExists(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[path]
	return ok
}

// Lookup returns the entry for path, if any.
func (r *Registry) Lookup(path string) (regdomain.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	return e, ok
}

// Register upserts path's entry, overwriting any prior docId/metadata.
func (r *Registry) Register(path, docID string, metadata map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[path] = regdomain.Entry{Path: path, DocID: docID, Metadata: metadata}
	r.dirty = true
}

// UpdateEmailClassification updates the classified_action metadata key
// on every entry whose metadata.email_id matches emailID.
func (r *Registry) UpdateEmailClassification(emailID, classifiedAction string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, e := range r.entries {
		if id, ok := e.Metadata["email_id"]; ok {
			if s, ok := id.(string); ok && s == emailID {
				if e.Metadata == nil {
					e.Metadata = make(map[string]interface{})
				}
				e.Metadata["classified_action"] = classifiedAction
				r.entries[path] = e
				r.dirty = true
			}
		}
	}
}

// ListByPrefix returns every entry whose path starts with prefix,
// supporting the "recent emails" read path.
func (r *Registry) ListByPrefix(prefix string) []regdomain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []regdomain.Entry
	for path, e := range r.entries {
		if strings.HasPrefix(path, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Flush persists the in-memory registry if it has unwritten changes,
// via temp-file + atomic rename.
func (r *Registry) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return nil
	}

	entries := make([]regdomain.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errs.New(errs.StorageError, "failed to marshal file registry", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errs.New(errs.StorageError, "failed to create registry directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "registry-*.tmp")
	if err != nil {
		return errs.New(errs.StorageError, "failed to create temp registry file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.New(errs.StorageError, "failed to write temp registry file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.New(errs.StorageError, "failed to close temp registry file", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return errs.New(errs.StorageError, "failed to rename temp registry file", err)
	}
	r.dirty = false
	return nil
}
