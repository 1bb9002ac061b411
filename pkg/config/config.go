package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ProviderSyncConfig holds the per-provider knobs from spec §6:
// sync.<provider>.limit_per_folder/force_reingest/save_attachments/days_filter.
type ProviderSyncConfig struct {
	LimitPerFolder  int
	ForceReingest   bool
	SaveAttachments bool
	DaysFilter      int
}

// EmailProcessingConfig holds sync.email_processing.*.
type EmailProcessingConfig struct {
	LimitPerSync int
	AutoActions  bool
}

// MCPConfig holds mcp.* — the tool server's fixed, caller-unconfigurable
// retrieval parameters (spec §4.9, scenario S6).
type MCPConfig struct {
	DefaultTopK int
	MinScore    float64
	SplitPrompt bool
	UseHyDE     bool
	Rerank      bool
}

// RetryConfig holds pkg/retry.Policy's knobs as read from the
// environment. Neither command applies them: cmd/syncd and
// cmd/toolserver both build their policy with retry.Default().
type RetryConfig struct {
	BaseDelay  time.Duration
	Factor     float64
	MaxRetries int
}

type Config struct {
	// Data roots (§6 on-disk layout).
	DataRoot string // parent of auth/ and storage/

	// Google OAuth2.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleProjectID    string
	GooglePubSubTopic  string

	// Microsoft OAuth2 / Graph.
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenantID     string
	MicrosoftRedirectURI  string

	// Relational store.
	DatabaseDSN string

	// Vector store (Chroma + Gemini embeddings).
	ChromaURL      string
	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string
	GeminiAPIKey   string

	// LLM gateway used by the classifier.
	ClassifierModel       string
	ClassifierTemperature float64
	ClassifierTimeout     time.Duration

	// FCM (ambient notification enrichment, §2 domain stack table).
	FirebaseCredentialsFile string

	// Per-provider sync knobs, keyed the same way as spec.md's dotted
	// config names (google_email, microsoft_email, google_drive,
	// onedrive, local).
	ProviderSync map[string]ProviderSyncConfig

	EmailProcessing EmailProcessingConfig
	MCP             MCPConfig
	Retry           RetryConfig

	WorkerPoolSize int
	TickInterval   time.Duration
	RequestTimeout time.Duration

	SenderAvoidList []string
}

func Load() *Config {
	_ = godotenv.Load()

	defaultProviderSync := ProviderSyncConfig{
		LimitPerFolder:  getEnvInt("SYNC_LIMIT_PER_FOLDER", 50),
		ForceReingest:   getEnvBool("SYNC_FORCE_REINGEST", false),
		SaveAttachments: getEnvBool("SYNC_SAVE_ATTACHMENTS", true),
		DaysFilter:      getEnvInt("SYNC_DAYS_FILTER", 2),
	}

	return &Config{
		DataRoot: getEnv("DATA_ROOT", "./data"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/oauth2/google/callback"),
		GoogleProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:  getEnv("GOOGLE_PUBSUB_TOPIC", ""),

		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftTenantID:     getEnv("MICROSOFT_TENANT_ID", "common"),
		MicrosoftRedirectURI:  getEnv("MICROSOFT_REDIRECT_URI", "http://localhost:8080/oauth2/microsoft/callback"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		ChromaURL:      getEnv("CHROMA_URL", "http://localhost:8000"),
		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", "default_tenant"),
		ChromaDatabase: getEnv("CHROMA_DATABASE", "default_database"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),

		ClassifierModel:       getEnv("CLASSIFIER_MODEL", "gemini-1.5-flash"),
		ClassifierTemperature: getEnvFloat("CLASSIFIER_TEMPERATURE", 0.2),
		ClassifierTimeout:     getEnvDuration("CLASSIFIER_TIMEOUT", 30*time.Second),

		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),

		ProviderSync: map[string]ProviderSyncConfig{
			"google_email":    defaultProviderSync,
			"microsoft_email": defaultProviderSync,
			"google_drive":    defaultProviderSync,
			"onedrive":        defaultProviderSync,
			"local":           defaultProviderSync,
		},

		EmailProcessing: EmailProcessingConfig{
			LimitPerSync: getEnvInt("SYNC_EMAIL_PROCESSING_LIMIT_PER_SYNC", 500),
			AutoActions:  getEnvBool("SYNC_EMAIL_PROCESSING_AUTO_ACTIONS", false),
		},

		MCP: MCPConfig{
			DefaultTopK: getEnvInt("MCP_DEFAULT_TOP_K", 50),
			MinScore:    getEnvFloat("MCP_MIN_SCORE", 0.2),
			SplitPrompt: getEnvBool("MCP_SPLIT_PROMPT", false),
			UseHyDE:     getEnvBool("MCP_USE_HYDE", false),
			Rerank:      getEnvBool("MCP_RERANK", false),
		},

		Retry: RetryConfig{
			BaseDelay:  getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
			Factor:     getEnvFloat("RETRY_FACTOR", 2),
			MaxRetries: getEnvInt("RETRY_MAX_RETRIES", 3),
		},

		WorkerPoolSize: getEnvInt("WORKER_POOL_SIZE", 10),
		TickInterval:   getEnvDuration("TICK_INTERVAL", 5*time.Minute),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		SenderAvoidList: splitCSV(getEnv("SENDER_AVOID_LIST", "")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
