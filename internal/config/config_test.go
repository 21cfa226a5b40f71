package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8, cfg.TokenDecimals)
	assert.Equal(t, 100, cfg.MaxWalletsPerBatch)
	assert.Equal(t, "1.2", cfg.GasSafetyMargin)
	assert.Equal(t, 21000, cfg.StandardGasLimit)
	assert.Equal(t, "0.001", cfg.FundAmount)
	assert.Equal(t, "0.0005", cfg.MinGasSweep)
	assert.Equal(t, "2.5", cfg.GasSweepBuffer)
	assert.Equal(t, 5, cfg.RewardPercent)
	assert.Equal(t, 100*time.Millisecond, cfg.TxDelay)
	assert.Equal(t, 5, cfg.LockRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.LockBackoff)
	assert.Equal(t, 5, cfg.MaxConcurrentOperations)
	assert.Equal(t, 2*time.Minute, cfg.ReceiptTimeout)
	assert.Equal(t, 2*time.Second, cfg.ProgressInterval)
	assert.Equal(t, 0, cfg.HealthPort)
	assert.Equal(t, 5*time.Minute, cfg.BalanceCheckInterval)
	assert.Empty(t, cfg.AdminUserIDs)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ADMIN_USER_IDS", "111, 222,bad,")
	t.Setenv("CHAIN_ID", "1946")
	t.Setenv("TX_DELAY_MS", "250")
	t.Setenv("RECEIPT_TIMEOUT", "30s")
	t.Setenv("MAX_WALLETS_PER_BATCH", "not-a-number")
	t.Setenv("CHECKIN_BASE_URL", "https://checkin.example/api/")
	t.Setenv("HEALTH_PORT", "8081")

	cfg := Load()
	assert.True(t, cfg.IsAdmin(111))
	assert.True(t, cfg.IsAdmin(222))
	assert.False(t, cfg.IsAdmin(333))
	assert.ElementsMatch(t, []int64{111, 222}, cfg.AdminIDs())
	assert.Equal(t, int64(1946), cfg.ChainID)
	assert.Equal(t, 250*time.Millisecond, cfg.TxDelay)
	assert.Equal(t, 30*time.Second, cfg.ReceiptTimeout)
	assert.Equal(t, 100, cfg.MaxWalletsPerBatch)
	assert.Equal(t, "https://checkin.example/api", cfg.CheckinBaseURL)
	assert.Equal(t, 8081, cfg.HealthPort)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WALLET_ENCRYPTION_KEY is required")
	assert.Contains(t, err.Error(), "BOT_TOKEN is required")
	assert.NotContains(t, err.Error(), "CHAIN_ID")

	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("CHAIN_ID", "1946")
	t.Setenv("MAIN_PRIVATE_KEY", "0x01")
	t.Setenv("TOKEN_ADDRESS", "0x0000000000000000000000000000000000000001")
	t.Setenv("WALLET_ENCRYPTION_KEY", "00")
	t.Setenv("REWARD_RECIPIENT", "0x0000000000000000000000000000000000000002")
	assert.NoError(t, Load().Validate())

	t.Setenv("CHAIN_ID", "-1")
	assert.ErrorContains(t, Load().Validate(), "CHAIN_ID")

	t.Setenv("CHAIN_ID", "1946")
	t.Setenv("REWARD_PERCENT", "101")
	assert.ErrorContains(t, Load().Validate(), "REWARD_PERCENT")
}
