package usecase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileStartsEmpty(t *testing.T) {
	r, err := Load(t.TempDir(), "alice")
	require.NoError(t, err)
	assert.False(t, r.FileExists("/google_email/alice/conv-1/abc"))
}

func TestRegisterThenFileExistsAndLookup(t *testing.T) {
	r, err := Load(t.TempDir(), "alice")
	require.NoError(t, err)

	r.Register("/google_email/alice/conv-1/abc", "abc", map[string]interface{}{"email_id": "e1"})
	assert.True(t, r.FileExists("/google_email/alice/conv-1/abc"))

	entry, ok := r.Lookup("/google_email/alice/conv-1/abc")
	require.True(t, ok)
	assert.Equal(t, "abc", entry.DocID)
	assert.Equal(t, "e1", entry.Metadata["email_id"])
}

func TestRegister_OverwritesPriorDocID(t *testing.T) {
	r, err := Load(t.TempDir(), "alice")
	require.NoError(t, err)

	r.Register("/p", "old", nil)
	r.Register("/p", "new", nil)

	entry, ok := r.Lookup("/p")
	require.True(t, ok)
	assert.Equal(t, "new", entry.DocID)
}

func TestUpdateEmailClassification_MatchesByEmailID(t *testing.T) {
	r, err := Load(t.TempDir(), "alice")
	require.NoError(t, err)

	r.Register("/a", "docA", map[string]interface{}{"email_id": "e1"})
	r.Register("/b", "docB", map[string]interface{}{"email_id": "e2"})

	r.UpdateEmailClassification("e1", "reply")

	entryA, _ := r.Lookup("/a")
	entryB, _ := r.Lookup("/b")
	assert.Equal(t, "reply", entryA.Metadata["classified_action"])
	_, hasClassification := entryB.Metadata["classified_action"]
	assert.False(t, hasClassification)
}

func TestListByPrefix_FiltersByPathPrefix(t *testing.T) {
	r, err := Load(t.TempDir(), "alice")
	require.NoError(t, err)

	r.Register("/google_email/alice/conv-1/a", "a", nil)
	r.Register("/google_email/alice/conv-2/b", "b", nil)
	r.Register("/mbox/alice/conv-1/c", "c", nil)

	matches := r.ListByPrefix("/google_email/alice/")
	assert.Len(t, matches, 2)
}

func TestFlush_PersistsAndReloadsAcrossInstances(t *testing.T) {
	dataRoot := t.TempDir()

	r1, err := Load(dataRoot, "alice")
	require.NoError(t, err)
	r1.Register("/p", "docid-1", map[string]interface{}{"email_id": "e1"})
	require.NoError(t, r1.Flush())

	r2, err := Load(dataRoot, "alice")
	require.NoError(t, err)
	entry, ok := r2.Lookup("/p")
	require.True(t, ok)
	assert.Equal(t, "docid-1", entry.DocID)
}

func TestFlush_NoopWhenNotDirty(t *testing.T) {
	dataRoot := t.TempDir()
	r, err := Load(dataRoot, "alice")
	require.NoError(t, err)

	require.NoError(t, r.Flush())
	_, statErr := os.Stat(filepath.Join(dataRoot, "registry", "alice.json"))
	assert.True(t, os.IsNotExist(statErr), "Flush must not write a file when nothing changed")
}
