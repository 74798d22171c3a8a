package internal

import (
	"fmt"
	"testing"

	"github.com/chrisconley/arrbucket/specs"
	"github.com/stretchr/testify/require"
)

// Test helpers

func ptr[T any](v T) *T { return &v }

// standardBuckets is small [0, 10000), mid [10000, 50000), large [50000, +inf).
func standardBuckets() specs.BucketConfigSpec {
	return specs.BucketConfigSpec{
		Rules: []specs.BucketRuleSpec{
			{Name: "small", Lower: ptr("0"), Upper: ptr("10000"), LowerInclusive: true},
			{Name: "mid", Lower: ptr("10000"), Upper: ptr("50000"), LowerInclusive: true},
			{Name: "large", Lower: ptr("50000"), LowerInclusive: true},
		},
	}
}

type rawRecordOption func(*specs.RawRecordSpec)

func withCustomer(id string) rawRecordOption {
	return func(s *specs.RawRecordSpec) { s.CustomerID = id }
}

func withARR(arr string) rawRecordOption {
	return func(s *specs.RawRecordSpec) { s.ARR = &arr }
}

func withNullARR() rawRecordOption {
	return func(s *specs.RawRecordSpec) { s.ARR = nil }
}

func withPeriod(period string) rawRecordOption {
	return func(s *specs.RawRecordSpec) { s.Period = period }
}

func withRecurring(recurring bool) rawRecordOption {
	return func(s *specs.RawRecordSpec) { s.Recurring = &recurring }
}

func withDimension(name, value string) rawRecordOption {
	return func(s *specs.RawRecordSpec) {
		if s.Dimensions == nil {
			s.Dimensions = map[string]string{}
		}
		s.Dimensions[name] = value
	}
}

// newRawRecord creates a RawRecordSpec with the given options.
// CustomerID defaults to "cust-1", ARR to "1000" and Period to "2024-01".
func newRawRecord(opts ...rawRecordOption) specs.RawRecordSpec {
	spec := specs.RawRecordSpec{
		CustomerID: "cust-1",
		ARR:        ptr("1000"),
		Period:     "2024-01",
	}
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

// newRecords creates one record per ARR value, each for a distinct customer in 2024-01.
func newRecords(t *testing.T, arrs ...string) []RevenueRecord {
	t.Helper()
	records := make([]RevenueRecord, len(arrs))
	for i, arr := range arrs {
		record, err := NewRevenueRecord(specs.RecordSpec{
			CustomerID: fmt.Sprintf("cust-%d", i+1),
			ARR:        arr,
			Period:     "2024-01",
		})
		require.NoError(t, err)
		records[i] = record
	}
	return records
}

func newRecordSpecs(arrs ...string) []specs.RecordSpec {
	out := make([]specs.RecordSpec, len(arrs))
	for i, arr := range arrs {
		out[i] = specs.RecordSpec{CustomerID: fmt.Sprintf("cust-%d", i+1), ARR: arr, Period: "2024-01"}
	}
	return out
}

func mustBucketSpec(t *testing.T, config specs.BucketConfigSpec) BucketSpec {
	t.Helper()
	spec, err := NewBucketSpec(config)
	require.NoError(t, err)
	return spec
}

func mustDecimal(t *testing.T, s string) Decimal {
	t.Helper()
	d, err := NewDecimal(s)
	require.NoError(t, err)
	return d
}
