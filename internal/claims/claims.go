package claims

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/suspectuso/sova-bot/internal/filestore"
)

var ErrAlreadyClaimed = errors.New("already claimed today")

// dayLayout is the calendar day format. Days roll over at UTC midnight.
const dayLayout = "2006-01-02"

// Record is one user's claim history.
type Record struct {
	LastClaimDate string `json:"lastClaimDate"`
	LastAddress   string `json:"lastAddress"`
	LastTxHash    string `json:"lastTxHash"`
	TotalClaims   int    `json:"totalClaims"`
}

// Document is the on-disk claims ledger keyed by user id.
type Document struct {
	Claims map[string]*Record `json:"claims"`
}

// Store is the daily claim ledger.
type Store struct {
	path   string
	locker *filestore.Locker
	now    func() time.Time
}

// NewStore creates a claims ledger backed by path.
func NewStore(path string, locker *filestore.Locker) *Store {
	return &Store{path: path, locker: locker, now: time.Now}
}

func (s *Store) today() string {
	return s.now().UTC().Format(dayLayout)
}

// CanClaim reports whether userID has not claimed yet today.
func (s *Store) CanClaim(ctx context.Context, userID int64) (bool, error) {
	rec, err := s.GetClaim(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec == nil || rec.LastClaimDate != s.today(), nil
}

// GetClaim returns the user's record, or nil if they never claimed.
func (s *Store) GetClaim(ctx context.Context, userID int64) (*Record, error) {
	doc, err := filestore.Read[Document](ctx, s.locker, s.path)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}
	return doc.Claims[key(userID)], nil
}

// RecordClaim stores a successful claim. The day check is repeated under the
// lock so two racing claims for one user cannot both be recorded.
func (s *Store) RecordClaim(ctx context.Context, userID int64, address, txHash string) error {
	today := s.today()
	return filestore.Update(ctx, s.locker, s.path, func(doc *Document) error {
		if doc.Claims == nil {
			doc.Claims = make(map[string]*Record)
		}

		rec := doc.Claims[key(userID)]
		if rec == nil {
			doc.Claims[key(userID)] = &Record{
				LastClaimDate: today,
				LastAddress:   address,
				LastTxHash:    txHash,
				TotalClaims:   1,
			}
			return nil
		}

		if rec.LastClaimDate >= today {
			return ErrAlreadyClaimed
		}
		rec.LastClaimDate = today
		rec.LastAddress = address
		rec.LastTxHash = txHash
		rec.TotalClaims++
		return nil
	})
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
