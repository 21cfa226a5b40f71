package wallets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/filestore"
	"github.com/suspectuso/sova-bot/internal/secret"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type keygen struct{}

func (keygen) CreateKeypair() (chain.Keypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return chain.Keypair{}, err
	}
	return chain.Keypair{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: "0x" + common.Bytes2Hex(crypto.FromECDSA(key)),
	}, nil
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := secret.New(testKey)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewStore(
		filepath.Join(dir, "wallets.json"),
		filepath.Join(dir, "archive.json"),
		filestore.NewLocker(5, 5*time.Millisecond),
		c, keygen{}, log,
	)
	return s, dir
}

func TestCreateWallets_AppendsAndRoundtrips(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	for _, n := range []int{1, 7, 100} {
		before, err := s.LoadActive(ctx)
		require.NoError(t, err)

		created, err := s.CreateWallets(ctx, n)
		require.NoError(t, err)
		require.Len(t, created, n)

		after, err := s.LoadActive(ctx)
		require.NoError(t, err)
		require.Len(t, after.Wallets, len(before.Wallets)+n)

		seen := make(map[string]bool)
		for _, w := range after.Wallets {
			assert.False(t, seen[w.Address], "duplicate %s", w.Address)
			seen[w.Address] = true
			assert.False(t, w.Undecryptable)
		}

		tail := after.Wallets[len(before.Wallets):]
		for i, w := range created {
			assert.Equal(t, w.Address, tail[i].Address)
			assert.Equal(t, w.PrivateKey, tail[i].PrivateKey)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, "wallets.json"))
	require.NoError(t, err)
	var onDisk Document
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	for _, w := range onDisk.Wallets {
		assert.Len(t, strings.Split(w.PrivateKey, ":"), 3, "key must be encrypted at rest")
	}
}

func TestLoad_QuarantinesUndecryptable(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateWallets(ctx, 2)
	require.NoError(t, err)

	// Corrupt the first wallet's tag.
	path := filepath.Join(dir, "wallets.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	parts := strings.Split(doc.Wallets[0].PrivateKey, ":")
	parts[1] = strings.Repeat("00", 16)
	corrupt := strings.Join(parts, ":")
	doc.Wallets[0].PrivateKey = corrupt
	raw, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0600))

	loaded, err := s.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Wallets, 2)

	assert.True(t, loaded.Wallets[0].Undecryptable)
	assert.Empty(t, loaded.Wallets[0].PrivateKey)
	assert.False(t, loaded.Wallets[1].Undecryptable)
	assert.Equal(t, created[1].PrivateKey, loaded.Wallets[1].PrivateKey)

	// Saving must keep the corrupt envelope untouched.
	require.NoError(t, s.Save(ctx, loaded))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, corrupt, doc.Wallets[0].PrivateKey)
}

func TestLoad_PlaintextKeyPassesThrough(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, "wallets.json")
	doc := Document{Wallets: []ManagedWallet{{Address: "0xabc", PrivateKey: "0xdeadbeef"}}}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0600))

	loaded, err := s.LoadActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", loaded.Wallets[0].PrivateKey)
	assert.False(t, loaded.Wallets[0].Undecryptable)
}

func TestUpdateWallets_MergesMintState(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateWallets(ctx, 2)
	require.NoError(t, err)

	tx := "0xfeed"
	created[0].HasMinted = true
	created[0].LastMintTx = &tx

	// A wallet created after the batch loaded its snapshot.
	_, err = s.CreateWallets(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.UpdateWallets(ctx, created[:1]))

	loaded, err := s.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Wallets, 3)
	assert.True(t, loaded.Wallets[0].HasMinted)
	require.NotNil(t, loaded.Wallets[0].LastMintTx)
	assert.Equal(t, tx, *loaded.Wallets[0].LastMintTx)
	assert.False(t, loaded.Wallets[1].HasMinted)
	assert.Equal(t, created[0].PrivateKey, loaded.Wallets[0].PrivateKey)
}

func TestArchive_MovesOnceAndIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateWallets(ctx, 3)
	require.NoError(t, err)
	target := created[1]

	require.NoError(t, s.Archive(ctx, strings.ToLower(target.Address)))
	require.NoError(t, s.Archive(ctx, target.Address))

	active, err := s.LoadActive(ctx)
	require.NoError(t, err)
	archived, err := s.LoadArchived(ctx)
	require.NoError(t, err)

	assert.NotContains(t, active.Addresses(), target.Address)
	require.Len(t, archived.Wallets, 1)
	assert.Equal(t, target.Address, archived.Wallets[0].Address)
	assert.Equal(t, target.PrivateKey, archived.Wallets[0].PrivateKey)
	assert.Len(t, active.Wallets, 2)
}

type recordingRegistry struct {
	registered   []common.Address
	unregistered []common.Address
}

func (r *recordingRegistry) RegisterSigner(pk string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(pk, "0x"))
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	r.registered = append(r.registered, addr)
	return addr, nil
}

func (r *recordingRegistry) UnregisterSigner(addr common.Address) {
	r.unregistered = append(r.unregistered, addr)
}

func TestWithSigner_UnregistersOnError(t *testing.T) {
	kp, err := keygen{}.CreateKeypair()
	require.NoError(t, err)
	w := ManagedWallet{Address: kp.Address.Hex(), PrivateKey: kp.PrivateKey}

	reg := &recordingRegistry{}
	boom := errors.New("estimate failed")
	err = WithSigner(w, reg, func(from common.Address) error {
		assert.Equal(t, kp.Address, from)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, reg.registered, reg.unregistered)
	assert.Len(t, reg.unregistered, 1)
}

func TestWithSigner_UnregistersOnPanic(t *testing.T) {
	kp, err := keygen{}.CreateKeypair()
	require.NoError(t, err)
	w := ManagedWallet{Address: kp.Address.Hex(), PrivateKey: kp.PrivateKey}

	reg := &recordingRegistry{}
	assert.Panics(t, func() {
		_ = WithSigner(w, reg, func(common.Address) error { panic("rpc exploded") })
	})
	assert.Len(t, reg.unregistered, 1)
}

func TestWithSigner_RejectsUndecryptable(t *testing.T) {
	reg := &recordingRegistry{}
	err := WithSigner(ManagedWallet{Address: "0x1", Undecryptable: true}, reg, func(common.Address) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrUndecryptable)
	assert.Empty(t, reg.registered)
}

func TestWithSigner_AddressMismatch(t *testing.T) {
	kp, err := keygen{}.CreateKeypair()
	require.NoError(t, err)
	w := ManagedWallet{Address: "0x0000000000000000000000000000000000000001", PrivateKey: kp.PrivateKey}

	reg := &recordingRegistry{}
	err = WithSigner(w, reg, func(common.Address) error { return nil })
	assert.ErrorIs(t, err, ErrSignerMismatch)
	assert.Len(t, reg.unregistered, 1)
}
