package checkin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/suspectuso/sova-bot/internal/limiter"
)

// CheckInFunc performs a single check-in.
type CheckInFunc func(ctx context.Context, address string) (*Response, error)

// Sweeper checks in a set of wallets with bounded concurrency.
type Sweeper struct {
	checkIn CheckInFunc
	limit   *limiter.Limiter
	log     *slog.Logger
}

// NewSweeper creates a Sweeper running at most lim.Limit() check-ins at once.
func NewSweeper(checkIn CheckInFunc, lim *limiter.Limiter, log *slog.Logger) *Sweeper {
	return &Sweeper{checkIn: checkIn, limit: lim, log: log}
}

// Sweep checks in every address. Failures are counted per address; onProgress
// is called once per address, serialized, in completion order.
func (s *Sweeper) Sweep(ctx context.Context, addrs []string, onProgress func(Progress)) Summary {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sum = Summary{Total: len(addrs)}
		n   int
	)

	for _, addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()

			resp, err := limiter.Run(ctx, s.limit, func(ctx context.Context) (*Response, error) {
				return s.checkIn(ctx, addr)
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
				s.log.Warn("check-in failed", "wallet", addr, "error", err)
			case resp.AlreadyCheckedIn:
				sum.Already++
			default:
				sum.Success++
			}
			n++
			if onProgress != nil {
				onProgress(Progress{
					Processed:      n,
					Total:          sum.Total,
					Success:        sum.Success,
					Already:        sum.Already,
					Failed:         sum.Failed,
					CurrentAddress: addr,
				})
			}
		}(addr)
	}
	wg.Wait()

	s.log.Info("check-in sweep finished",
		"total", sum.Total,
		"success", sum.Success,
		"already", sum.Already,
		"failed", sum.Failed,
	)
	return sum
}
