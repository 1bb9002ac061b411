// Package usecase implements C1: the Token Store & Credential Checker.
// Grounded on original_source's sync_manager.py get_authenticated_users()
// (directory globbing for user discovery) and the teacher's
// notifyTokenSource pattern (pkg/gmail/service.go) for detecting and
// persisting refreshed tokens.
package usecase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/syncorch/syncd/internal/credentials/domain"
	"github.com/syncorch/syncd/pkg/logging"
)

var log = logging.New("TokenStore")

// Refresher attempts to exchange a stored (possibly expired) credential for
// a fresh one. Implementations are registered per provider through
// NewStore; this module contains none, and both cmd/syncd and
// cmd/toolserver pass an empty map. The Token Store itself never talks
// to a provider directly.
type Refresher interface {
	Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error)
}

// Store is the file-based Token Store described in spec §6: Google
// credentials live under data/auth/google_user_token/<user_id>.pickle,
// Microsoft under data/auth/microsoft_user_token/<user_id>.json. Both
// files are opaque blobs to this system except for the JSON envelope
// this store itself writes (AccessToken/RefreshToken/Expiry are
// extracted for the Check/refresh path; Raw is preserved verbatim for
// provider SDKs that expect their own on-disk format).
type Store struct {
	dataRoot   string
	refreshers map[domain.Provider]Refresher
}

func NewStore(dataRoot string, refreshers map[domain.Provider]Refresher) *Store {
	return &Store{dataRoot: dataRoot, refreshers: refreshers}
}

func (s *Store) dir(p domain.Provider) string {
	switch p {
	case domain.ProviderGoogle:
		return filepath.Join(s.dataRoot, "auth", "google_user_token")
	case domain.ProviderMicrosoft:
		return filepath.Join(s.dataRoot, "auth", "microsoft_user_token")
	default:
		return filepath.Join(s.dataRoot, "auth", string(p)+"_user_token")
	}
}

func (s *Store) ext(p domain.Provider) string {
	if p == domain.ProviderGoogle {
		return ".pickle"
	}
	return ".json"
}

func (s *Store) path(userID string, p domain.Provider) string {
	return filepath.Join(s.dir(p), userID+s.ext(p))
}

// envelope is the on-disk JSON record this store owns. For Google the
// teacher's original format was an opaque pickle; this reimplementation
// uses a JSON envelope by convention (per spec §9's migration note — a
// read-only pickle decoder is out of scope for the core, so existing
// pickle files are treated as present-but-unparseable: not authenticated
// until re-issued).
type envelope struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Load reads the on-disk token file for (user_id, provider). Missing
// files are reported as not found and malformed files as found with no
// tokens; Check reports both as authenticated=false (spec §4.1).
func (s *Store) Load(userID string, p domain.Provider) (domain.Credential, bool, error) {
	raw, err := os.ReadFile(s.path(userID, p))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Credential{}, false, nil
		}
		return domain.Credential{}, false, err
	}
	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		// Malformed (or a pre-existing opaque pickle blob): present on
		// disk, but not decodable — surfaced as found with no tokens so
		// Check() reports invalid rather than absent.
		return domain.Credential{UserID: userID, Provider: p, Raw: raw}, true, nil
	}
	return domain.Credential{
		UserID:       userID,
		Provider:     p,
		AccessToken:  env.AccessToken,
		RefreshToken: env.RefreshToken,
		Expiry:       env.Expiry,
		Raw:          raw,
	}, true, nil
}

// Save atomically (temp file + rename) writes the credential.
func (s *Store) Save(cred domain.Credential) error {
	dir := s.dir(cred.Provider)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	env := envelope{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	dest := s.path(cred.UserID, cred.Provider)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

// Check is a pure function of the stored credential plus a refresh
// attempt when expired && refreshable (spec §4.1). It never mutates a
// credential it cannot refresh.
func (s *Store) Check(ctx context.Context, userID string, p domain.Provider) domain.CheckResult {
	cred, found, err := s.Load(userID, p)
	if err != nil {
		return domain.CheckResult{Authenticated: false, State: domain.StateInvalid, Err: err}
	}
	if !found {
		return domain.CheckResult{Authenticated: false, State: domain.StateAbsent}
	}
	if !json.Valid(cred.Raw) {
		// Present on disk but undecodable (opaque legacy blob).
		return domain.CheckResult{Authenticated: false, Valid: false, State: domain.StateInvalid}
	}
	if cred.Expiry.IsZero() || time.Now().Before(cred.Expiry) {
		return domain.CheckResult{Authenticated: true, Valid: true, State: domain.StateValid}
	}

	refresher, ok := s.refreshers[p]
	if !ok || cred.RefreshToken == "" {
		return domain.CheckResult{Authenticated: true, Valid: false, Expired: true, Refreshable: false, State: domain.StateInvalid}
	}

	refreshed, refreshErr := refresher.Refresh(ctx, cred)
	if refreshErr != nil {
		log.Printf("refresh failed for user=%s provider=%s: %v", userID, p, refreshErr)
		return domain.CheckResult{Authenticated: true, Valid: false, Expired: true, Refreshable: true, State: domain.StateExpiredRefreshable, Err: refreshErr}
	}
	if saveErr := s.Save(refreshed); saveErr != nil {
		log.Printf("failed to persist refreshed credential for user=%s provider=%s: %v", userID, p, saveErr)
		return domain.CheckResult{Authenticated: true, Valid: false, Expired: true, Refreshable: true, State: domain.StateExpiredRefreshable, Err: saveErr}
	}
	return domain.CheckResult{Authenticated: true, Valid: true, State: domain.StateValid}
}

// ListUsersWithCredential enumerates the on-disk token directory for a
// provider, grounded directly on sync_manager.py's
// get_authenticated_users() glob over *.pickle / *.json.
func (s *Store) ListUsersWithCredential(p domain.Provider) ([]string, error) {
	entries, err := os.ReadDir(s.dir(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ext := s.ext(p)
	var users []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ext) {
			users = append(users, strings.TrimSuffix(name, ext))
		}
	}
	return users, nil
}
