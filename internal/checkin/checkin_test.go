package checkin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suspectuso/sova-bot/internal/limiter"
)

const wallet = "0x00000000000000000000000000000000000000aa"

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL + "/")
	c.minDelay = 0
	return c
}

func TestCheckIn_Success(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkin/simple", r.URL.Path)
		assert.Equal(t, wallet, r.URL.Query().Get("wallet_address"))
		fmt.Fprint(w, `{"success":true,"streak":3}`)
	})

	resp, err := c.CheckIn(context.Background(), wallet)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Streak)
	assert.False(t, resp.AlreadyCheckedIn)
}

func TestCheckIn_ConflictMeansAlreadyCheckedIn(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"success":false,"message":"already checked in today"}`)
	})

	resp, err := c.CheckIn(context.Background(), wallet)
	require.NoError(t, err)
	assert.True(t, resp.AlreadyCheckedIn)
}

func TestCheckIn_ServerError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.CheckIn(context.Background(), wallet)
	assert.ErrorIs(t, err, ErrService)
	assert.Contains(t, err.Error(), "500")
}

func TestCheckIn_UnsuccessfulBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"message":"wallet not eligible"}`)
	})

	_, err := c.CheckIn(context.Background(), wallet)
	assert.ErrorIs(t, err, ErrService)
	assert.Contains(t, err.Error(), "not eligible")
}

func TestGetStatus(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/checkin/status/simple", r.URL.Path)
		fmt.Fprintf(w, `{"wallet_address":%q,"checked_in_today":true,"streak":4,"total_checkins":9}`,
			r.URL.Query().Get("wallet_address"))
	})

	st, err := c.GetStatus(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, wallet, st.WalletAddress)
	assert.True(t, st.CheckedInToday)
	assert.Equal(t, 4, st.Streak)
	assert.Equal(t, 9, st.TotalCheckins)
}

func TestThrottle_HonorsContext(t *testing.T) {
	c := NewClient("http://unused")
	c.minDelay = time.Hour
	c.lastCall = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.CheckIn(ctx, wallet)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSweep_TalliesAndNeverExceedsLimit(t *testing.T) {
	const limit = 5
	var active, peak atomic.Int64

	checkIn := func(ctx context.Context, addr string) (*Response, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		switch addr[len(addr)-1] {
		case '0':
			return nil, errors.New("unreachable")
		case '1':
			return &Response{AlreadyCheckedIn: true}, nil
		}
		return &Response{Success: true}, nil
	}

	addrs := make([]string, 30)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("0x%039x%d", i, i%3)
	}

	var mu sync.Mutex
	var seen []int
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSweeper(checkIn, limiter.New(limit), log)

	sum := s.Sweep(context.Background(), addrs, func(p Progress) {
		mu.Lock()
		seen = append(seen, p.Processed)
		mu.Unlock()
	})

	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Equal(t, 30, sum.Total)
	assert.Equal(t, 10, sum.Failed)
	assert.Equal(t, 10, sum.Already)
	assert.Equal(t, 10, sum.Success)

	require.Len(t, seen, 30)
	for i, p := range seen {
		assert.Equal(t, i+1, p)
	}
}
