package internal

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minPartitionSize keeps small inputs on a single goroutine.
const minPartitionSize = 1024

// AssignPartitioned assigns records across up to workers goroutines. Each worker
// owns a contiguous slice of the input and writes only its own slice of the output,
// so the result is identical to assign(records, spec) regardless of scheduling.
// The returned tally is the merge of the per-partition tallies.
func AssignPartitioned(ctx context.Context, records []RevenueRecord, spec BucketSpec, workers int) ([]BucketedRecord, BucketTally, error) {
	ranges := partitionRanges(len(records), workers)
	out := make([]BucketedRecord, len(records))
	partials := make([]BucketTally, len(ranges))

	g, ctx := errgroup.WithContext(ctx)
	for p, r := range ranges {
		p, r := p, r
		g.Go(func() error {
			tally := NewBucketTally()
			for i := r[0]; i < r[1]; i++ {
				if (i-r[0])%minPartitionSize == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				out[i] = assignRecord(records[i], spec)
				tally.Observe(out[i])
			}
			partials[p] = tally
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, BucketTally{}, err
	}

	tally := NewBucketTally()
	for _, partial := range partials {
		tally = tally.Merge(partial)
	}
	return out, tally, nil
}

// partitionRanges splits n items into at most workers half-open [start, end) ranges.
// workers <= 0 means one per CPU.
func partitionRanges(n, workers int) [][2]int {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if limit := (n + minPartitionSize - 1) / minPartitionSize; workers > limit {
		workers = limit
	}
	if workers < 1 {
		workers = 1
	}

	ranges := make([][2]int, 0, workers)
	size := n / workers
	extra := n % workers
	start := 0
	for w := 0; w < workers; w++ {
		end := start + size
		if w < extra {
			end++
		}
		ranges = append(ranges, [2]int{start, end})
		start = end
	}
	return ranges
}
