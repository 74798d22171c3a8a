package internal

import (
	"errors"
	"testing"

	"github.com/chrisconley/arrbucket/specs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign(t *testing.T) {
	t.Run("assigns boundary values to the upper bucket", func(t *testing.T) {
		// Arrange
		records := newRecordSpecs("9999.99", "10000", "49999.99", "50000")

		// Act
		bucketed, err := Assign(records, standardBuckets())

		// Assert
		require.NoError(t, err)
		require.Len(t, bucketed, 4)
		buckets := []string{bucketed[0].Bucket, bucketed[1].Bucket, bucketed[2].Bucket, bucketed[3].Bucket}
		assert.Equal(t, []string{"small", "mid", "mid", "large"}, buckets)
		for _, b := range bucketed {
			assert.Equal(t, specs.DiagnosticMatched, b.Diagnostic)
		}
	})

	t.Run("preserves input order and record content", func(t *testing.T) {
		records := []specs.RecordSpec{
			{CustomerID: "z", ARR: "60000", Period: "2024-03", Dimensions: map[string]string{"product_id": "p9"}},
			{CustomerID: "a", ARR: "5", Period: "2024-03"},
		}

		bucketed, err := Assign(records, standardBuckets())

		require.NoError(t, err)
		assert.Equal(t, records[0], bucketed[0].Record)
		assert.Equal(t, records[1], bucketed[1].Record)
	})

	t.Run("marks values outside every bucket unmatched", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "capped", Lower: ptr("0"), Upper: ptr("1000"), LowerInclusive: true},
			},
		}

		bucketed, err := Assign(newRecordSpecs("999", "1000"), config)

		require.NoError(t, err)
		assert.Equal(t, specs.DiagnosticMatched, bucketed[0].Diagnostic)
		assert.Equal(t, specs.DiagnosticUnmatched, bucketed[1].Diagnostic)
		assert.Empty(t, bucketed[1].Bucket)
	})

	t.Run("refuses a defective spec before assigning", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "a", Lower: ptr("0"), Upper: ptr("100"), LowerInclusive: true},
				{Name: "b", Lower: ptr("50"), Upper: ptr("200"), LowerInclusive: true},
			},
		}

		bucketed, err := Assign(newRecordSpecs("75"), config)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSpecDefect))
		assert.Nil(t, bucketed)
	})

	t.Run("treats a record the pre-checks should have refused as a contract violation", func(t *testing.T) {
		cases := map[string]specs.RecordSpec{
			"null ARR":     {CustomerID: "c", Period: "2024-01"},
			"negative ARR": {CustomerID: "c", ARR: "-1", Period: "2024-01"},
			"bad period":   {CustomerID: "c", ARR: "1", Period: "01/2024"},
		}
		for name, record := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := Assign([]specs.RecordSpec{record}, standardBuckets())

				var contract *AssignmentContractError
				require.True(t, errors.As(err, &contract))
				assert.True(t, errors.Is(err, ErrAssignmentContract))
				assert.Equal(t, 0, contract.Index)
				assert.Equal(t, "c", contract.CustomerID)
			})
		}
	})

	t.Run("is total over matched records", func(t *testing.T) {
		records := newRecordSpecs("0", "1", "10000", "123456789.01")

		bucketed, err := Assign(records, standardBuckets())

		require.NoError(t, err)
		assert.Len(t, bucketed, len(records))
		for _, b := range bucketed {
			assert.NotEmpty(t, b.Bucket)
		}
	})
}

func TestNewBucketedRecord(t *testing.T) {
	t.Run("requires a bucket for matched records", func(t *testing.T) {
		_, err := NewBucketedRecord(specs.BucketedRecordSpec{
			Record:     specs.RecordSpec{CustomerID: "c", ARR: "1", Period: "2024-01"},
			Diagnostic: specs.DiagnosticMatched,
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "matched record has no bucket")
	})

	t.Run("rejects an unknown diagnostic", func(t *testing.T) {
		_, err := NewBucketedRecord(specs.BucketedRecordSpec{
			Record:     specs.RecordSpec{CustomerID: "c", ARR: "1", Period: "2024-01"},
			Bucket:     "small",
			Diagnostic: "maybe",
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid diagnostic")
	})
}
