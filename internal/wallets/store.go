package wallets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/filestore"
	"github.com/suspectuso/sova-bot/internal/secret"
)

var (
	ErrUndecryptable  = errors.New("wallet key is undecryptable")
	ErrDuplicate      = errors.New("wallet already exists")
	ErrSignerMismatch = errors.New("signer address does not match wallet")
)

// KeyGenerator creates new keypairs.
type KeyGenerator interface {
	CreateKeypair() (chain.Keypair, error)
}

// SignerRegistry temporarily holds private keys for signing.
type SignerRegistry interface {
	RegisterSigner(privateKey string) (common.Address, error)
	UnregisterSigner(addr common.Address)
}

// Store keeps the active and archived wallet documents.
type Store struct {
	activePath  string
	archivePath string
	locker      *filestore.Locker
	cipher      *secret.Cipher
	keys        KeyGenerator
	log         *slog.Logger
	now         func() time.Time
}

// NewStore creates a wallet store over two JSON files.
func NewStore(activePath, archivePath string, locker *filestore.Locker, cipher *secret.Cipher, keys KeyGenerator, log *slog.Logger) *Store {
	return &Store{
		activePath:  activePath,
		archivePath: archivePath,
		locker:      locker,
		cipher:      cipher,
		keys:        keys,
		log:         log,
		now:         time.Now,
	}
}

// LoadActive returns the active wallets with decrypted keys.
func (s *Store) LoadActive(ctx context.Context) (*Document, error) {
	return s.load(ctx, s.activePath)
}

// LoadArchived returns the archived wallets with decrypted keys.
func (s *Store) LoadArchived(ctx context.Context) (*Document, error) {
	return s.load(ctx, s.archivePath)
}

func (s *Store) load(ctx context.Context, path string) (*Document, error) {
	doc, err := filestore.Read[Document](ctx, s.locker, path)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}

	for i := range doc.Wallets {
		w := &doc.Wallets[i]
		stored := w.PrivateKey
		if !secret.IsEnvelope(stored) {
			s.log.Warn("wallet key stored unencrypted", "wallet", w.Address)
		}

		key, err := s.cipher.Decrypt(stored)
		if err != nil {
			s.log.Error("quarantining wallet with undecryptable key", "wallet", w.Address, "error", err)
			w.PrivateKey = ""
			w.Undecryptable = true
			w.sealed = stored
			continue
		}
		w.PrivateKey = key
	}

	return &doc, nil
}

// Save replaces the active document, encrypting every key.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	sealed, err := s.seal(doc.Wallets)
	if err != nil {
		return err
	}

	return filestore.Update(ctx, s.locker, s.activePath, func(d *Document) error {
		d.Wallets = sealed
		return nil
	})
}

// UpdateWallets merges mint metadata of ws into the active document by
// address. Wallets added since ws was loaded are preserved.
func (s *Store) UpdateWallets(ctx context.Context, ws []ManagedWallet) error {
	if len(ws) == 0 {
		return nil
	}

	return filestore.Update(ctx, s.locker, s.activePath, func(d *Document) error {
		for _, w := range ws {
			i := d.indexOf(w.Address)
			if i < 0 {
				s.log.Warn("update for unknown wallet", "wallet", w.Address)
				continue
			}
			d.Wallets[i].HasMinted = w.HasMinted
			d.Wallets[i].LastMintTx = w.LastMintTx
		}
		return nil
	})
}

// CreateWallets generates n keypairs, appends them to the active document and
// returns them with plaintext keys. The caller enforces the batch bound.
func (s *Store) CreateWallets(ctx context.Context, n int) ([]ManagedWallet, error) {
	created := make([]ManagedWallet, 0, n)
	for i := 0; i < n; i++ {
		kp, err := s.keys.CreateKeypair()
		if err != nil {
			return nil, fmt.Errorf("create keypair: %w", err)
		}
		created = append(created, ManagedWallet{
			Address:    kp.Address.Hex(),
			PrivateKey: kp.PrivateKey,
			CreatedAt:  s.now().UTC(),
		})
	}

	sealed, err := s.seal(created)
	if err != nil {
		return nil, err
	}

	err = filestore.Update(ctx, s.locker, s.activePath, func(d *Document) error {
		for _, w := range sealed {
			if d.indexOf(w.Address) >= 0 {
				return fmt.Errorf("%w: %s", ErrDuplicate, w.Address)
			}
		}
		d.Wallets = append(d.Wallets, sealed...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save wallets: %w", err)
	}

	s.log.Info("wallets created", "count", n)
	return created, nil
}

// Archive moves a wallet from the active to the archive document. Archiving
// an address that is no longer active is a no-op.
func (s *Store) Archive(ctx context.Context, address string) error {
	return filestore.Update(ctx, s.locker, s.activePath, func(active *Document) error {
		i := active.indexOf(address)
		if i < 0 {
			return nil
		}
		w := active.Wallets[i]

		err := filestore.Update(ctx, s.locker, s.archivePath, func(archive *Document) error {
			if archive.indexOf(address) < 0 {
				archive.Wallets = append(archive.Wallets, w)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("archive %s: %w", address, err)
		}

		active.Wallets = append(active.Wallets[:i], active.Wallets[i+1:]...)
		s.log.Info("wallet archived", "wallet", address)
		return nil
	})
}

func (s *Store) seal(ws []ManagedWallet) ([]ManagedWallet, error) {
	out := make([]ManagedWallet, len(ws))
	for i, w := range ws {
		if w.Undecryptable {
			w.PrivateKey = w.sealed
		} else {
			enc, err := s.cipher.Encrypt(w.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("encrypt %s: %w", w.Address, err)
			}
			w.PrivateKey = enc
		}
		w.Undecryptable = false
		w.sealed = ""
		out[i] = w
	}
	return out, nil
}

// WithSigner registers the wallet's key for the duration of fn. The key is
// unregistered on every exit path, including panics in fn.
func WithSigner(w ManagedWallet, reg SignerRegistry, fn func(from common.Address) error) error {
	if w.Undecryptable || w.PrivateKey == "" {
		return fmt.Errorf("%w: %s", ErrUndecryptable, w.Address)
	}

	addr, err := reg.RegisterSigner(w.PrivateKey)
	if err != nil {
		return fmt.Errorf("register signer: %w", err)
	}
	defer reg.UnregisterSigner(addr)

	if !sameAddress(addr.Hex(), w.Address) {
		return fmt.Errorf("%w: %s", ErrSignerMismatch, w.Address)
	}
	return fn(addr)
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
