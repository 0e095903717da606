package matcher

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

// MatchBatch fans a slice of events out across a bounded worker pool and
// returns one ProcessedEvent per input, in input order. Each event is
// matched on a single goroutine from start to finish; no state is shared
// between events beyond the immutable tree. workers <= 0 uses one worker
// per CPU.
func (d *Driver) MatchBatch(ctx context.Context, events []value.Event, workers int) ([]ProcessedEvent, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]ProcessedEvent, len(events))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			out[i] = d.Match(ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
