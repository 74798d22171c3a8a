package internal

import (
	"fmt"
	"sort"

	"github.com/chrisconley/arrbucket/specs"
)

// inflows are the movement kinds that may only add ARR to a bucket.
var inflows = map[string]bool{
	specs.MovementNew:     true,
	specs.MovementWinBack: true,
	specs.MovementMovedIn: true,
	specs.MovementUpsell:  true,
}

var movementKinds = []string{
	specs.MovementNew,
	specs.MovementWinBack,
	specs.MovementChurn,
	specs.MovementMovedIn,
	specs.MovementMovedOut,
	specs.MovementUpsell,
	specs.MovementDownsell,
}

// position is where one entity stood in one period.
type position struct {
	entity   string
	customer string
	bucket   string
	arr      Decimal
}

func (p position) ToSpec() specs.CustomerPositionSpec {
	return specs.CustomerPositionSpec{
		Entity:     p.entity,
		CustomerID: p.customer,
		Bucket:     p.bucket,
		ARR:        p.arr.String(),
	}
}

// positionsOf lists the matched records that count towards a bucket total, in
// input order. Entities are unique because duplicate keys never pass the pre-checks.
func positionsOf(bucketed []BucketedRecord, spec BucketSpec, keyFields []string) []position {
	out := make([]position, 0, len(bucketed))
	for _, b := range bucketed {
		if !b.Diagnostic.IsMatched() {
			continue
		}
		if _, ok := spec.Lookup(b.Bucket.ToString()); !ok {
			continue
		}
		out = append(out, position{
			entity:   b.Record.Entity(keyFields),
			customer: b.Record.CustomerID.ToString(),
			bucket:   b.Bucket.ToString(),
			arr:      b.Record.ARR.Value(),
		})
	}
	return out
}

func positionSpecs(positions []position) []specs.CustomerPositionSpec {
	out := make([]specs.CustomerPositionSpec, len(positions))
	for i, p := range positions {
		out[i] = p.ToSpec()
	}
	return out
}

// priorPeriod is what a run knows about the period it is compared with.
type priorPeriod struct {
	totals    periodTotals
	positions map[string]position
	returning map[string]bool
}

// newPriorPeriod accepts negative prior ARR so the direction check can report it.
func newPriorPeriod(reconciliation specs.ReconciliationResultSpec, positionSpecs []specs.CustomerPositionSpec, returning []string) (*priorPeriod, error) {
	totals, err := newPeriodTotals(reconciliation)
	if err != nil {
		return nil, fmt.Errorf("invalid prior reconciliation: %w", err)
	}

	positions := make(map[string]position, len(positionSpecs))
	for i, p := range positionSpecs {
		if p.Entity == "" || p.Bucket == "" {
			return nil, fmt.Errorf("prior position %d needs an entity and a bucket", i)
		}
		if _, seen := positions[p.Entity]; seen {
			return nil, fmt.Errorf("prior position for %q listed twice", p.Entity)
		}
		arr, err := NewDecimal(p.ARR)
		if err != nil {
			return nil, fmt.Errorf("prior position for %q: %w", p.Entity, err)
		}
		positions[p.Entity] = position{entity: p.Entity, customer: p.CustomerID, bucket: p.Bucket, arr: arr}
	}

	seen := make(map[string]bool, len(returning))
	for _, entity := range returning {
		seen[entity] = true
	}
	return &priorPeriod{totals: totals, positions: positions, returning: seen}, nil
}

// movement is one entity's contribution to one bucket's change.
type movement struct {
	entity   string
	customer string
	bucket   string
	kind     string
	arr      Decimal
}

// movementAnalysis splits the change between the prior and current period into
// per-entity movements.
type movementAnalysis struct {
	prior    *priorPeriod
	entries  []movement
	retained map[string]int
}

// analyseMovements classifies every current and prior entity. An entity that
// changes bucket leaves one bucket and enters the other, so every bucket's prior
// total plus its movements equals its current total.
func analyseMovements(current []position, prior *priorPeriod) *movementAnalysis {
	a := &movementAnalysis{prior: prior, retained: make(map[string]int)}
	add := func(p position, bucket, kind string, arr Decimal) {
		a.entries = append(a.entries, movement{entity: p.entity, customer: p.customer, bucket: bucket, kind: kind, arr: arr})
	}

	present := make(map[string]bool, len(current))
	for _, cur := range current {
		present[cur.entity] = true
		before, ok := prior.positions[cur.entity]
		switch {
		case !ok && prior.returning[cur.entity]:
			add(cur, cur.bucket, specs.MovementWinBack, cur.arr)
		case !ok:
			add(cur, cur.bucket, specs.MovementNew, cur.arr)
		case before.bucket != cur.bucket:
			add(before, before.bucket, specs.MovementMovedOut, ZeroDecimal().Sub(before.arr))
			add(cur, cur.bucket, specs.MovementMovedIn, cur.arr)
		default:
			a.retained[cur.bucket]++
			delta := cur.arr.Sub(before.arr)
			if delta.IsZero() {
				continue
			}
			kind := specs.MovementUpsell
			if delta.IsNegative() {
				kind = specs.MovementDownsell
			}
			add(cur, cur.bucket, kind, delta)
		}
	}

	churned := make([]string, 0)
	for entity := range prior.positions {
		if !present[entity] {
			churned = append(churned, entity)
		}
	}
	sort.Strings(churned)
	for _, entity := range churned {
		before := prior.positions[entity]
		add(before, before.bucket, specs.MovementChurn, ZeroDecimal().Sub(before.arr))
	}
	return a
}

// buckets lists current buckets in order, then prior-only buckets, then buckets
// only the movements name.
func (a *movementAnalysis) buckets(current periodTotals) []string {
	seen := make(map[string]bool)
	var order []string
	for _, names := range [][]string{current.order, a.prior.totals.order} {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}
	var extra []string
	for _, m := range a.entries {
		if !seen[m.bucket] {
			seen[m.bucket] = true
			extra = append(extra, m.bucket)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

// net is the sum of every movement into and out of bucket.
func (a *movementAnalysis) net(bucket string) Decimal {
	total := ZeroDecimal()
	for _, m := range a.entries {
		if m.bucket == bucket {
			total = total.Add(m.arr)
		}
	}
	return total
}

func (a *movementAnalysis) ToSpec(current periodTotals) []specs.BucketMovementSpec {
	type flow struct {
		count int
		arr   Decimal
	}

	names := a.buckets(current)
	flows := make(map[string]map[string]flow, len(names))
	for _, name := range names {
		flows[name] = make(map[string]flow, len(movementKinds))
		for _, kind := range movementKinds {
			flows[name][kind] = flow{arr: ZeroDecimal()}
		}
	}
	for _, m := range a.entries {
		f := flows[m.bucket][m.kind]
		flows[m.bucket][m.kind] = flow{count: f.count + 1, arr: f.arr.Add(m.arr)}
	}

	out := make([]specs.BucketMovementSpec, 0, len(names))
	for _, name := range names {
		f := flows[name]
		out = append(out, specs.BucketMovementSpec{
			Bucket:        name,
			PriorTotal:    a.prior.totals.total(name).String(),
			CurrentTotal:  current.total(name).String(),
			NewCount:      f[specs.MovementNew].count,
			NewARR:        f[specs.MovementNew].arr.String(),
			WinBackCount:  f[specs.MovementWinBack].count,
			WinBackARR:    f[specs.MovementWinBack].arr.String(),
			ChurnCount:    f[specs.MovementChurn].count,
			ChurnARR:      f[specs.MovementChurn].arr.String(),
			MovedInCount:  f[specs.MovementMovedIn].count,
			MovedInARR:    f[specs.MovementMovedIn].arr.String(),
			MovedOutCount: f[specs.MovementMovedOut].count,
			MovedOutARR:   f[specs.MovementMovedOut].arr.String(),
			UpsellCount:   f[specs.MovementUpsell].count,
			UpsellARR:     f[specs.MovementUpsell].arr.String(),
			DownsellCount: f[specs.MovementDownsell].count,
			DownsellARR:   f[specs.MovementDownsell].arr.String(),
			RetainedCount: a.retained[name],
		})
	}
	return out
}
