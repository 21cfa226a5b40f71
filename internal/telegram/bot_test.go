package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suspectuso/sova-bot/internal/batch"
	"github.com/suspectuso/sova-bot/internal/chain/chaintest"
	"github.com/suspectuso/sova-bot/internal/checkin"
	"github.com/suspectuso/sova-bot/internal/claims"
	"github.com/suspectuso/sova-bot/internal/config"
	"github.com/suspectuso/sova-bot/internal/notifier"
	"github.com/suspectuso/sova-bot/internal/storage"
	"github.com/suspectuso/sova-bot/internal/wallets"
)

const (
	adminID = int64(100)
	userID  = int64(200)
)

type fakeAPI struct {
	mu    sync.Mutex
	sent  []string
	edits []string
	next  int
}

func (f *fakeAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p.Text)
	f.next++
	return &models.Message{ID: f.next}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, p *bot.EditMessageTextParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, p.Text)
	return &models.Message{ID: p.MessageID}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(context.Context, *bot.AnswerCallbackQueryParams) (bool, error) {
	return true, nil
}

func (f *fakeAPI) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

type fakeWallets struct {
	active []wallets.ManagedWallet
}

func (f *fakeWallets) LoadActive(context.Context) (*wallets.Document, error) {
	return &wallets.Document{Wallets: append([]wallets.ManagedWallet(nil), f.active...)}, nil
}

func (f *fakeWallets) LoadArchived(context.Context) (*wallets.Document, error) {
	return &wallets.Document{}, nil
}

type fakeBatcher struct {
	created int
	ops     []batch.Operation
	block   chan struct{}
	started chan struct{}
	err     error
}

func (f *fakeBatcher) Create(_ context.Context, n int) ([]wallets.ManagedWallet, error) {
	f.created = n
	return make([]wallets.ManagedWallet, n), nil
}

func (f *fakeBatcher) Run(ctx context.Context, op batch.Operation, ws []wallets.ManagedWallet, rep batch.Reporter) (*batch.Result, error) {
	f.ops = append(f.ops, op)
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	for i, w := range ws {
		rep.OnProgress(ctx, batch.Progress{Operation: op, Processed: i + 1, Total: len(ws), Success: i + 1, CurrentAddress: w.Address})
	}
	return &batch.Result{Operation: op, Total: len(ws), Success: len(ws), TotalCollected: new(big.Int)}, nil
}

type fakeSweeper struct{}

func (fakeSweeper) Sweep(_ context.Context, addrs []string, onProgress func(checkin.Progress)) checkin.Summary {
	for i := range addrs {
		onProgress(checkin.Progress{Processed: i + 1, Total: len(addrs), Success: i + 1})
	}
	return checkin.Summary{Total: len(addrs), Success: len(addrs)}
}

type fakeFaucet struct {
	claimed map[int64]bool
}

func (f *fakeFaucet) Claim(_ context.Context, userID int64, _ string) (string, error) {
	if f.claimed[userID] {
		return "", claims.ErrAlreadyClaimed
	}
	f.claimed[userID] = true
	return "0xfeed", nil
}

func (f *fakeFaucet) Amount() *big.Int { return big.NewInt(100_000) }

type fakeJournal struct {
	mu   sync.Mutex
	runs []storage.Run
}

func (f *fakeJournal) RecordRun(r *storage.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append([]storage.Run{*r}, f.runs...)
	return nil
}

func (f *fakeJournal) ListRuns(limit int) ([]storage.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

type testBot struct {
	*Bot
	api     *fakeAPI
	batcher *fakeBatcher
	journal *fakeJournal
	faucet  *fakeFaucet
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	cfg := &config.Config{
		AdminUserIDs:       map[int64]bool{adminID: true},
		MaxWalletsPerBatch: 100,
	}
	fa := &fakeAPI{}
	tb := &testBot{
		api:     fa,
		batcher: &fakeBatcher{},
		journal: &fakeJournal{},
		faucet:  &fakeFaucet{claimed: map[int64]bool{}},
	}
	ws := &fakeWallets{active: []wallets.ManagedWallet{
		{Address: chaintest.Addr(10).Hex()},
		{Address: chaintest.Addr(11).Hex(), HasMinted: true},
	}}
	tb.Bot = &Bot{
		api: fa,
		cfg: cfg,
		deps: Deps{
			Gateway: chaintest.New(chaintest.Addr(1)),
			Wallets: ws,
			Batcher: tb.batcher,
			Sweeper: fakeSweeper{},
			Faucet:  tb.faucet,
			Journal: tb.journal,
			Format:  notifier.Formatter{TokenSymbol: "SOVA", TokenDecimals: 8, NativeSymbol: "ETH"},
		},
		states: NewStateManager(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return tb
}

func message(from int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:   1,
		From: &models.User{ID: from, FirstName: "Ann"},
		Chat: models.Chat{ID: from},
		Text: text,
	}}
}

func TestBatchCommand_RequiresAdmin(t *testing.T) {
	tb := newTestBot(t)

	tb.batchHandler(batch.OpMint)(context.Background(), nil, message(userID, "/mint"))

	assert.Contains(t, tb.api.lastSent(), "только администраторам")
	assert.Empty(t, tb.batcher.ops)
	assert.Empty(t, tb.journal.runs)
}

func TestBatchCommand_RunsAndJournals(t *testing.T) {
	tb := newTestBot(t)

	tb.batchHandler(batch.OpMint)(context.Background(), nil, message(adminID, "/mint"))

	assert.Equal(t, []batch.Operation{batch.OpMint}, tb.batcher.ops)
	assert.Contains(t, tb.api.lastEdit(), "Минт токенов завершено")

	require.Len(t, tb.journal.runs, 1)
	run := tb.journal.runs[0]
	assert.Equal(t, "mint", run.Operation)
	assert.Equal(t, adminID, run.UserID)
	assert.Equal(t, 2, run.Success)
	assert.Empty(t, run.Error)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestBatchCommand_StartFailureIsReported(t *testing.T) {
	tb := newTestBot(t)
	tb.batcher.err = errors.Join(batch.ErrInsufficientBalance, errors.New("short 0.5"))

	tb.batchHandler(batch.OpFund)(context.Background(), nil, message(adminID, "/fund"))

	assert.Contains(t, tb.api.lastEdit(), "Недостаточно средств")
	require.Len(t, tb.journal.runs, 1)
	assert.Contains(t, tb.journal.runs[0].Error, "insufficient balance")
}

func TestBatchCommand_RejectsConcurrentBatch(t *testing.T) {
	tb := newTestBot(t)
	tb.batcher.block = make(chan struct{})
	tb.batcher.started = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		tb.batchHandler(batch.OpCollectGas)(context.Background(), nil, message(adminID, "/collectgas"))
	}()

	select {
	case <-tb.batcher.started:
	case <-time.After(time.Second):
		t.Fatal("first batch did not start")
	}

	assert.True(t, tb.BatchRunning())
	tb.checkinHandler(context.Background(), nil, message(adminID, "/checkin"))
	assert.Contains(t, tb.api.lastSent(), "Уже выполняется")

	close(tb.batcher.block)
	<-done
	assert.Len(t, tb.batcher.ops, 1)
	assert.False(t, tb.BatchRunning())
}

func TestCheckinCommand(t *testing.T) {
	tb := newTestBot(t)

	tb.checkinHandler(context.Background(), nil, message(adminID, "/checkin"))

	assert.Contains(t, tb.api.lastEdit(), "Чек-ин завершён")
	require.Len(t, tb.journal.runs, 1)
	assert.Equal(t, "checkin", tb.journal.runs[0].Operation)
	assert.Equal(t, 2, tb.journal.runs[0].Success)
}

func TestCreateCommand(t *testing.T) {
	tb := newTestBot(t)

	tb.createHandler(context.Background(), nil, message(adminID, "/create abc"))
	assert.Contains(t, tb.api.lastSent(), "Укажи количество")
	assert.Zero(t, tb.batcher.created)

	tb.createHandler(context.Background(), nil, message(adminID, "/create 5"))
	assert.Equal(t, 5, tb.batcher.created)
	assert.Contains(t, tb.api.lastSent(), "Создано кошельков: <b>5</b>")
	require.Len(t, tb.journal.runs, 1)
	assert.Equal(t, "create", tb.journal.runs[0].Operation)
}

func TestClaimConversation(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	addr := chaintest.Addr(0xbeef).Hex()

	// No conversation: plain text is ignored.
	tb.defaultHandler(ctx, nil, message(userID, addr))
	assert.Empty(t, tb.api.sent)

	tb.claimHandler(ctx, nil, message(userID, "/claim"))
	assert.Equal(t, StateAwaitingAddress, tb.states.Get(userID))

	tb.defaultHandler(ctx, nil, message(userID, "not an address"))
	assert.Contains(t, tb.api.lastSent(), "не похож")
	assert.Equal(t, StateAwaitingAddress, tb.states.Get(userID))

	tb.defaultHandler(ctx, nil, message(userID, "send to "+addr+" please"))
	assert.Equal(t, StateNone, tb.states.Get(userID))
	assert.Contains(t, tb.api.lastSent(), "0.001 SOVA")
	assert.Contains(t, tb.api.lastSent(), "0xfeed")

	tb.claimHandler(ctx, nil, message(userID, "/claim"))
	tb.defaultHandler(ctx, nil, message(userID, addr))
	assert.Contains(t, tb.api.lastSent(), "уже получал")
	assert.Equal(t, StateNone, tb.states.Get(userID))
}

func TestCancelClearsState(t *testing.T) {
	tb := newTestBot(t)
	tb.states.Set(userID, StateAwaitingAddress)

	tb.cancelHandler(context.Background(), nil, message(userID, "/cancel"))
	assert.Equal(t, StateNone, tb.states.Get(userID))
}

func TestStateExpires(t *testing.T) {
	sm := NewStateManager()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	sm.Set(userID, StateAwaitingAddress)
	now = now.Add(stateTTL - time.Second)
	assert.Equal(t, StateAwaitingAddress, sm.Get(userID))

	now = now.Add(2 * time.Second)
	assert.Equal(t, StateNone, sm.Get(userID))

	sm.Set(userID, StateAwaitingAddress)
	sm.Set(userID, StateNone)
	assert.Equal(t, StateNone, sm.Get(userID))
}

func TestWalletsAndHistoryText(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	text, err := tb.walletsText(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Активных: <b>2</b> (заминтили: 1)")
	assert.Contains(t, text, chaintest.Addr(10).Hex())

	assert.Contains(t, tb.historyText(), "История пуста")
	tb.journal.RecordRun(&storage.Run{Operation: "fund", StartedAt: time.Date(2026, 5, 4, 3, 2, 0, 0, time.UTC), Success: 3})
	assert.Contains(t, tb.historyText(), "04.05 03:02</b> fund — ✅3")
}

func TestBalanceText(t *testing.T) {
	tb := newTestBot(t)
	gw := tb.deps.Gateway.(*chaintest.Gateway)
	target := chaintest.Addr(0xabc)
	gw.Native[target] = big.NewInt(1_500_000_000_000_000_000)
	gw.Tokens[target] = big.NewInt(250_000_000)

	text, err := tb.balanceText(context.Background(), target.Hex())
	require.NoError(t, err)
	assert.Contains(t, text, "ETH: <b>1.5</b>")
	assert.Contains(t, text, "SOVA: <b>2.5</b>")

	_, err = tb.balanceText(context.Background(), "0x123")
	assert.Error(t, err)
}

func TestExtractAddress(t *testing.T) {
	addr := "0x" + strings.Repeat("aB", 20)
	assert.Equal(t, addr, extractAddress("to "+addr+"!"))
	assert.Empty(t, extractAddress("0x1234"))
}
