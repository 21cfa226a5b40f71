package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken     string
	AdminUserIDs map[int64]bool

	// Chain
	RPCURL          string
	ChainID         int64
	MainPrivateKey  string
	TokenAddress    string
	TokenDecimals   int
	TokenSymbol     string
	NativeSymbol    string
	MintAmount      string
	ReceiptTimeout  time.Duration
	LowBalanceAlert string

	// Storage
	WalletEncryptionKey string
	WalletsFile         string
	ArchiveFile         string
	ClaimsFile          string
	DBPath              string
	LockRetries         int
	LockBackoff         time.Duration

	// Batches
	MaxWalletsPerBatch      int
	GasSafetyMargin         string
	StandardGasLimit        int
	FundAmount              string
	MinGasSweep             string
	GasSweepBuffer          string
	RewardPercent           int
	RewardRecipient         string
	TxDelay                 time.Duration
	MaxConcurrentOperations int
	ProgressInterval        time.Duration

	// Faucet / check-in
	ClaimAmount    string
	CheckinBaseURL string

	// Monitoring
	HealthPort           int
	BalanceCheckInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken: getEnv("BOT_TOKEN", ""),

		// Chain
		RPCURL:          getEnv("RPC_URL", ""),
		ChainID:         int64(getEnvInt("CHAIN_ID", 0)),
		MainPrivateKey:  getEnv("MAIN_PRIVATE_KEY", ""),
		TokenAddress:    getEnv("TOKEN_ADDRESS", ""),
		TokenDecimals:   getEnvInt("TOKEN_DECIMALS", 8),
		TokenSymbol:     getEnv("TOKEN_SYMBOL", "SOVA"),
		NativeSymbol:    getEnv("NATIVE_SYMBOL", "ETH"),
		MintAmount:      getEnv("MINT_AMOUNT", "1"),
		ReceiptTimeout:  getEnvDuration("RECEIPT_TIMEOUT", 2*time.Minute),
		LowBalanceAlert: getEnv("LOW_BALANCE_ALERT", "0.01"),

		// Storage
		WalletEncryptionKey: getEnv("WALLET_ENCRYPTION_KEY", ""),
		WalletsFile:         getEnv("WALLETS_FILE", "./data/wallets.json"),
		ArchiveFile:         getEnv("ARCHIVE_FILE", "./data/wallets_archive.json"),
		ClaimsFile:          getEnv("CLAIMS_FILE", "./data/claims.json"),
		DBPath:              getEnv("DB_PATH", "./data/journal.db"),
		LockRetries:         getEnvInt("LOCK_RETRIES", 5),
		LockBackoff:         time.Duration(getEnvInt("LOCK_BACKOFF_MS", 100)) * time.Millisecond,

		// Batches
		MaxWalletsPerBatch:      getEnvInt("MAX_WALLETS_PER_BATCH", 100),
		GasSafetyMargin:         getEnv("GAS_SAFETY_MARGIN", "1.2"),
		StandardGasLimit:        getEnvInt("STANDARD_GAS_LIMIT", 21000),
		FundAmount:              getEnv("FUND_AMOUNT", "0.001"),
		MinGasSweep:             getEnv("MIN_GAS_SWEEP", "0.0005"),
		GasSweepBuffer:          getEnv("GAS_SWEEP_BUFFER", "2.5"),
		RewardPercent:           getEnvInt("REWARD_PERCENT", 5),
		RewardRecipient:         getEnv("REWARD_RECIPIENT", ""),
		TxDelay:                 time.Duration(getEnvInt("TX_DELAY_MS", 100)) * time.Millisecond,
		MaxConcurrentOperations: getEnvInt("MAX_CONCURRENT_OPERATIONS", 5),
		ProgressInterval:        getEnvDuration("PROGRESS_INTERVAL", 2*time.Second),

		// Faucet / check-in
		ClaimAmount:    getEnv("CLAIM_AMOUNT", "0.001"),
		CheckinBaseURL: strings.TrimSuffix(getEnv("CHECKIN_BASE_URL", ""), "/"),

		// Monitoring
		HealthPort:           getEnvInt("HEALTH_PORT", 0),
		BalanceCheckInterval: getEnvDuration("BALANCE_CHECK_INTERVAL", 5*time.Minute),
	}

	// Parse admin user IDs
	cfg.AdminUserIDs = make(map[int64]bool)
	adminIDs := getEnv("ADMIN_USER_IDS", "")
	for _, idStr := range strings.Split(adminIDs, ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			cfg.AdminUserIDs[id] = true
		}
	}

	return cfg
}

// Validate reports every missing or out-of-range required setting.
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ key, val string }{
		{"BOT_TOKEN", c.BotToken},
		{"RPC_URL", c.RPCURL},
		{"MAIN_PRIVATE_KEY", c.MainPrivateKey},
		{"TOKEN_ADDRESS", c.TokenAddress},
		{"WALLET_ENCRYPTION_KEY", c.WalletEncryptionKey},
		{"REWARD_RECIPIENT", c.RewardRecipient},
	}
	for _, r := range required {
		if r.val == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if c.ChainID < 0 {
		errs = append(errs, errors.New("CHAIN_ID must not be negative"))
	}
	if c.MaxWalletsPerBatch < 1 {
		errs = append(errs, errors.New("MAX_WALLETS_PER_BATCH must be at least 1"))
	}
	if c.RewardPercent < 0 || c.RewardPercent > 100 {
		errs = append(errs, errors.New("REWARD_PERCENT must be between 0 and 100"))
	}
	return errors.Join(errs...)
}

// IsAdmin reports whether userID may run batch commands
func (c *Config) IsAdmin(userID int64) bool {
	return c.AdminUserIDs[userID]
}

// AdminIDs returns the admin user IDs
func (c *Config) AdminIDs() []int64 {
	ids := make([]int64, 0, len(c.AdminUserIDs))
	for id := range c.AdminUserIDs {
		ids = append(ids, id)
	}
	return ids
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
