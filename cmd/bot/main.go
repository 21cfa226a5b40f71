package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/suspectuso/sova-bot/internal/batch"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/checkin"
	"github.com/suspectuso/sova-bot/internal/claims"
	"github.com/suspectuso/sova-bot/internal/config"
	"github.com/suspectuso/sova-bot/internal/faucet"
	"github.com/suspectuso/sova-bot/internal/filestore"
	"github.com/suspectuso/sova-bot/internal/health"
	"github.com/suspectuso/sova-bot/internal/limiter"
	"github.com/suspectuso/sova-bot/internal/notifier"
	"github.com/suspectuso/sova-bot/internal/secret"
	"github.com/suspectuso/sova-bot/internal/storage"
	"github.com/suspectuso/sova-bot/internal/telegram"
	"github.com/suspectuso/sova-bot/internal/wallets"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	cipher, err := secret.New(cfg.WalletEncryptionKey)
	if err != nil {
		log.Error("init wallet encryption", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	amounts, err := parseAmounts(cfg)
	if err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Connect to the chain
	client, err := chain.Dial(ctx, chain.Options{
		RPCURL:         cfg.RPCURL,
		ChainID:        cfg.ChainID,
		MainPrivateKey: cfg.MainPrivateKey,
		TokenAddress:   cfg.TokenAddress,
		MintAmount:     amounts.mint,
		ReceiptTimeout: cfg.ReceiptTimeout,
	}, log)
	if err != nil {
		log.Error("connect to chain", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	variant, err := client.ProbeMint(ctx)
	if err != nil {
		log.Warn("probe mint variant", "error", err)
	}
	log.Info("chain client initialized", "main", client.MainAddress().Hex(), "mint", variant)

	// Initialize storage
	locker := filestore.NewLocker(cfg.LockRetries, cfg.LockBackoff)
	walletStore := wallets.NewStore(cfg.WalletsFile, cfg.ArchiveFile, locker, cipher, client, log)
	claimStore := claims.NewStore(cfg.ClaimsFile, locker)

	journal, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer journal.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	orchestrator := batch.New(client, walletStore, batch.Config{
		MaxWallets:      cfg.MaxWalletsPerBatch,
		FundAmount:      amounts.fund,
		GasMargin:       amounts.margin,
		StandardGas:     uint64(cfg.StandardGasLimit),
		MinGasSweep:     amounts.minSweep,
		GasSweepBuffer:  amounts.sweepBuffer,
		RewardPercent:   int64(cfg.RewardPercent),
		RewardRecipient: amounts.rewardRecipient,
		TokenDecimals:   int32(cfg.TokenDecimals),
		Delay:           cfg.TxDelay,
	}, log)

	if cfg.CheckinBaseURL == "" {
		log.Warn("CHECKIN_BASE_URL is not set, check-ins will fail")
	}
	sweeper := checkin.NewSweeper(
		checkin.NewClient(cfg.CheckinBaseURL).CheckIn,
		limiter.New(cfg.MaxConcurrentOperations),
		log,
	)

	format := notifier.Formatter{
		TokenSymbol:   cfg.TokenSymbol,
		TokenDecimals: int32(cfg.TokenDecimals),
		NativeSymbol:  cfg.NativeSymbol,
	}

	// Initialize telegram bot
	bot, err := telegram.New(cfg, telegram.Deps{
		Gateway: client,
		Wallets: walletStore,
		Batcher: orchestrator,
		Sweeper: sweeper,
		Faucet:  faucet.New(client, claimStore, amounts.claim, amounts.margin, log),
		Journal: journal,
		Format:  format,
	}, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Start balance watcher
	watcher := notifier.NewBalanceWatcher(client, bot, cfg.AdminIDs(), amounts.lowBalance, cfg.NativeSymbol, log)
	go watcher.Start(ctx, cfg.BalanceCheckInterval)

	// Start health server
	if cfg.HealthPort > 0 {
		healthServer := health.NewServer(statusFunc(client, walletStore, bot), log)
		go func() {
			if err := healthServer.Start(ctx, cfg.HealthPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("health server", "error", err)
			}
		}()
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}

type parsedAmounts struct {
	mint            *big.Int
	fund            *big.Int
	minSweep        *big.Int
	claim           *big.Int
	lowBalance      *big.Int
	margin          decimal.Decimal
	sweepBuffer     decimal.Decimal
	rewardRecipient common.Address
}

// parseAmounts converts the human-readable config amounts to base units.
func parseAmounts(cfg *config.Config) (*parsedAmounts, error) {
	var (
		a    parsedAmounts
		err  error
		errs []error
	)
	tokenDecimals := int32(cfg.TokenDecimals)

	parse := func(key, val string, decimals int32) *big.Int {
		v, err := chain.ParseUnits(val, decimals)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}
	a.mint = parse("MINT_AMOUNT", cfg.MintAmount, tokenDecimals)
	a.claim = parse("CLAIM_AMOUNT", cfg.ClaimAmount, tokenDecimals)
	a.fund = parse("FUND_AMOUNT", cfg.FundAmount, chain.NativeDecimals)
	a.minSweep = parse("MIN_GAS_SWEEP", cfg.MinGasSweep, chain.NativeDecimals)
	a.lowBalance = parse("LOW_BALANCE_ALERT", cfg.LowBalanceAlert, chain.NativeDecimals)

	if a.margin, err = decimal.NewFromString(cfg.GasSafetyMargin); err != nil {
		errs = append(errs, fmt.Errorf("GAS_SAFETY_MARGIN: %w", err))
	}
	if a.sweepBuffer, err = decimal.NewFromString(cfg.GasSweepBuffer); err != nil {
		errs = append(errs, fmt.Errorf("GAS_SWEEP_BUFFER: %w", err))
	}
	if a.rewardRecipient, err = chain.ParseAddress(cfg.RewardRecipient); err != nil {
		errs = append(errs, fmt.Errorf("REWARD_RECIPIENT: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &a, nil
}

func statusFunc(client *chain.Client, store *wallets.Store, bot *telegram.Bot) health.StatusFunc {
	return func(ctx context.Context) (*health.Status, error) {
		bal, err := client.Balance(ctx, client.MainAddress())
		if err != nil {
			return nil, err
		}
		active, err := store.LoadActive(ctx)
		if err != nil {
			return nil, err
		}
		archived, err := store.LoadArchived(ctx)
		if err != nil {
			return nil, err
		}
		return &health.Status{
			MainAddress:     client.MainAddress().Hex(),
			MainBalance:     chain.FormatUnits(bal, chain.NativeDecimals),
			ActiveWallets:   len(active.Wallets),
			ArchivedWallets: len(archived.Wallets),
			BatchRunning:    bot.BatchRunning(),
		}, nil
	}
}
