package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/agentpay/service/directory"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// KYC sources selectable with KYC_MODE.
const (
	KYCModeDirectory = "directory" // directory entries carry the flag
	KYCModeToken     = "token"     // the token has a KYC key on the ledger
	KYCModeFile      = "file"      // JSON file maintained with the CLI
	KYCModeAllow     = "allow"     // every account passes
)

// Defaults used when SIMULATE_TRANSFERS=true and no accounts are configured.
const (
	SimulatedSenderAccountID    = "0.0.1001"
	SimulatedTokenID            = "0.0.3003"
	SimulatedRecipientAccountID = "0.0.4004"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Ledger configuration
	LedgerNetwork       string
	SenderAccountID     string
	SenderPrivateKey    string
	RecipientAccountID  string
	TokenID             string
	TokenSymbol         string
	TokenDecimals       int32
	ExplorerURLTemplate string
	SimulateTransfers   bool
	SimulatedBalance    int64 // minor units credited to the sender in simulate mode

	// Recipient directory: file wins over database, database over defaults
	RecipientsFile string
	DatabaseURL    string

	// NATS configuration (empty disables event publishing)
	NATSURL string

	// Temporal configuration (empty host disables async transfers)
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Language model configuration
	LLMProvider string
	LLMAPIKey   string
	LLMModel    string
	LLMBaseURL  string
	LLMTimeout  time.Duration

	// Compliance configuration
	ScreeningThreshold decimal.Decimal
	AMLThreshold       decimal.Decimal
	KYCMode            string
	KYCFile            string
	SanctionedAccounts []string

	// Currency configuration
	RateCacheTTL time.Duration
}

// LoadDotEnv loads variables from an env file without overriding ones that
// are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Ledger configuration
	simulate, err := parseBool("SIMULATE_TRANSFERS", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SimulateTransfers = simulate
	cfg.LedgerNetwork = getEnvOrDefault("LEDGER_NETWORK", "testnet")
	cfg.SenderAccountID = os.Getenv("SENDER_ACCOUNT_ID")
	cfg.SenderPrivateKey = os.Getenv("SENDER_PRIVATE_KEY")
	cfg.TokenID = os.Getenv("TOKEN_ID")
	cfg.RecipientAccountID = os.Getenv("RECIPIENT_ACCOUNT_ID")
	cfg.TokenSymbol = getEnvOrDefault("TOKEN_SYMBOL", "TPYUSD")
	cfg.ExplorerURLTemplate = getEnvOrDefault("EXPLORER_URL_TEMPLATE", "https://hashscan.io/{network}/transaction/{id}")

	if cfg.SimulateTransfers {
		cfg.SenderAccountID = orDefault(cfg.SenderAccountID, SimulatedSenderAccountID)
		cfg.TokenID = orDefault(cfg.TokenID, SimulatedTokenID)
		cfg.RecipientAccountID = orDefault(cfg.RecipientAccountID, SimulatedRecipientAccountID)
	} else {
		if cfg.SenderAccountID == "" {
			errs = append(errs, fmt.Errorf("SENDER_ACCOUNT_ID is required"))
		}
		if cfg.SenderPrivateKey == "" {
			errs = append(errs, fmt.Errorf("SENDER_PRIVATE_KEY is required"))
		}
		if cfg.TokenID == "" {
			errs = append(errs, fmt.Errorf("TOKEN_ID is required"))
		}
	}

	for key, value := range map[string]string{
		"SENDER_ACCOUNT_ID":    cfg.SenderAccountID,
		"TOKEN_ID":             cfg.TokenID,
		"RECIPIENT_ACCOUNT_ID": cfg.RecipientAccountID,
	} {
		if value != "" && !directory.IsAccountID(value) {
			errs = append(errs, fmt.Errorf("%s: invalid account id %q", key, value))
		}
	}

	decimals, err := parseInt("TOKEN_DECIMALS", 2)
	if err != nil {
		errs = append(errs, err)
	} else if decimals < 0 || decimals > 18 {
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS must be between 0 and 18, got %d", decimals))
	} else {
		cfg.TokenDecimals = int32(decimals)
	}

	balance, err := parseInt("SIMULATED_BALANCE", 1_000_000_00)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SimulatedBalance = int64(balance)
	}

	// Recipient directory
	cfg.RecipientsFile = os.Getenv("RECIPIENTS_FILE")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = os.Getenv("TEMPORAL_HOST")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "agentpay-transfers")

	// Language model configuration. GOOGLE_API_KEY alone selects Gemini.
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	cfg.LLMProvider = os.Getenv("LLM_PROVIDER")
	if google := os.Getenv("GOOGLE_API_KEY"); cfg.LLMAPIKey == "" && google != "" {
		cfg.LLMAPIKey = google
		cfg.LLMProvider = orDefault(cfg.LLMProvider, "googleai")
	}
	cfg.LLMProvider = strings.ToLower(orDefault(cfg.LLMProvider, "none"))
	switch cfg.LLMProvider {
	case "none", "googleai", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER: unknown provider %q", cfg.LLMProvider))
	}
	cfg.LLMModel = os.Getenv("LLM_MODEL")
	cfg.LLMBaseURL = os.Getenv("LLM_BASE_URL")
	timeout, err := parseDuration("LLM_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LLMTimeout = timeout
	}

	// Compliance configuration
	screening, err := parseDecimal("SCREENING_THRESHOLD", "3000")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ScreeningThreshold = screening
	}
	aml, err := parseDecimal("AML_THRESHOLD", "10000")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AMLThreshold = aml
	}

	cfg.KYCMode = strings.ToLower(getEnvOrDefault("KYC_MODE", KYCModeDirectory))
	switch cfg.KYCMode {
	case KYCModeDirectory, KYCModeToken, KYCModeFile, KYCModeAllow:
	default:
		errs = append(errs, fmt.Errorf("KYC_MODE: unknown mode %q", cfg.KYCMode))
	}
	cfg.KYCFile = getEnvOrDefault("KYC_FILE", "kyc.json")
	cfg.SanctionedAccounts = splitList(os.Getenv("SANCTIONED_ACCOUNTS"))

	// Currency configuration
	ttl, err := parseDuration("RATE_CACHE_TTL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RateCacheTTL = ttl
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SenderAccountID == "" {
		errs = append(errs, fmt.Errorf("SenderAccountID is required"))
	}

	if c.TokenID == "" {
		errs = append(errs, fmt.Errorf("TokenID is required"))
	}

	if !c.SimulateTransfers && c.SenderPrivateKey == "" {
		errs = append(errs, fmt.Errorf("SenderPrivateKey is required"))
	}

	if c.TokenDecimals < 0 {
		errs = append(errs, fmt.Errorf("TokenDecimals cannot be negative"))
	}

	if c.AMLThreshold.IsNegative() || c.ScreeningThreshold.IsNegative() {
		errs = append(errs, fmt.Errorf("thresholds cannot be negative"))
	}

	if c.TemporalHost != "" && c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.RateCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("RateCacheTTL cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// AsyncTransfersEnabled reports whether a Temporal host is configured.
func (c *Config) AsyncTransfersEnabled() bool {
	return c.TemporalHost != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

func parseDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := getEnvOrDefault(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s: must not be negative, got %s", key, value)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
