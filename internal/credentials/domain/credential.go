package domain

import "time"

// Provider tags the three credential families this system authenticates
// against. A tagged-variant type per spec §9's design note, replacing
// string branching on provider names.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderLocal     Provider = "local"
)

// Credential is the per-(user, provider) OAuth2 credential record.
// Mutated only by the Token Store whenever a refresh occurs.
type Credential struct {
	UserID       string
	Provider     Provider
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	// Raw holds the provider-native opaque blob (pickle for Google,
	// MSAL JSON cache for Microsoft) for round-tripping through
	// read-only decoders per spec §9's pickle-format design note.
	Raw []byte
}

// State is the result of usecase.Store.Check: a pure report of credential
// health, never itself mutating a credential it cannot refresh.
type State string

const (
	StateAbsent              State = "absent"
	StateValid               State = "valid"
	StateExpiredRefreshable  State = "expired_refreshable"
	StateInvalid             State = "invalid"
)

// CheckResult is returned by usecase.Store.Check.
type CheckResult struct {
	Authenticated bool
	Valid         bool
	Expired       bool
	Refreshable   bool
	State         State
	Err           error
}
