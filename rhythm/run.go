package rhythm

import (
	"context"
	"fmt"
	"time"
)

// Run ticks Compute every interval until ctx is done and passes the snapshot
// of every completed cycle to fn, which may be nil. It returns ctx.Err().
//
// Run owns the consumer side of the pipeline; do not call Compute
// concurrently with it.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration, fn func(Snapshot)) error {
	if interval <= 0 {
		return fmt.Errorf("%w: compute interval must be > 0: %v", ErrInvalidConfig, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info("rhythm: compute loop started", "interval", interval)

	cycles := 0
	for {
		select {
		case <-ctx.Done():
			p.log.Info("rhythm: compute loop stopped",
				"cycles", cycles,
				"reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if !p.Compute() {
				continue
			}
			cycles++
			if fn != nil {
				fn(p.Snapshot())
			}
		}
	}
}
