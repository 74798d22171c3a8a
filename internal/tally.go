package internal

// BucketTally holds per-bucket record counts and ARR totals. Merge is associative
// and commutative. Record ARR is bounded in digits, so every sum stays within the
// decimal precision and partial tallies from any partitioning of the records
// combine to the same result.
type BucketTally struct {
	counts            map[string]int
	totals            map[string]Decimal
	records           int
	unclassifiedCount int
	unclassifiedARR   Decimal
}

func NewBucketTally() BucketTally {
	return BucketTally{
		counts:          make(map[string]int),
		totals:          make(map[string]Decimal),
		unclassifiedARR: ZeroDecimal(),
	}
}

// TallyOf tallies the records sequentially.
func TallyOf(bucketed []BucketedRecord) BucketTally {
	t := NewBucketTally()
	for _, b := range bucketed {
		t.Observe(b)
	}
	return t
}

// Observe adds one record. Only matched records count towards a bucket; the rest
// are unclassified residue.
func (t *BucketTally) Observe(b BucketedRecord) {
	t.records++
	arr := b.Record.ARR.Value()
	if !b.Diagnostic.IsMatched() {
		t.unclassifiedCount++
		t.unclassifiedARR = t.unclassifiedARR.Add(arr)
		return
	}
	name := b.Bucket.ToString()
	t.counts[name]++
	if total, ok := t.totals[name]; ok {
		t.totals[name] = total.Add(arr)
	} else {
		t.totals[name] = arr
	}
}

// Merge returns a new tally combining t and other; neither is modified.
func (t BucketTally) Merge(other BucketTally) BucketTally {
	out := NewBucketTally()
	for _, src := range []BucketTally{t, other} {
		for name, n := range src.counts {
			out.counts[name] += n
		}
		for name, total := range src.totals {
			if existing, ok := out.totals[name]; ok {
				out.totals[name] = existing.Add(total)
			} else {
				out.totals[name] = total
			}
		}
		out.records += src.records
		out.unclassifiedCount += src.unclassifiedCount
		if src.unclassifiedCount > 0 {
			out.unclassifiedARR = out.unclassifiedARR.Add(src.unclassifiedARR)
		}
	}
	return out
}

func (t BucketTally) Count(bucket string) int {
	return t.counts[bucket]
}

func (t BucketTally) Total(bucket string) Decimal {
	if total, ok := t.totals[bucket]; ok {
		return total
	}
	return ZeroDecimal()
}

// Buckets returns the names of every bucket observed, including names unknown to
// the spec.
func (t BucketTally) Buckets() []string {
	names := make([]string, 0, len(t.counts))
	for name := range t.counts {
		names = append(names, name)
	}
	return names
}

func (t BucketTally) Records() int {
	return t.records
}

func (t BucketTally) Unclassified() (int, Decimal) {
	if t.unclassifiedCount == 0 {
		return 0, ZeroDecimal()
	}
	return t.unclassifiedCount, t.unclassifiedARR
}
