package internal

import (
	"errors"
	"testing"

	"github.com/chrisconley/arrbucket/specs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBucketSpec(t *testing.T) {
	t.Run("sorts rules by lower bound", func(t *testing.T) {
		// Arrange
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "large", Lower: ptr("50000"), LowerInclusive: true},
				{Name: "small", Lower: ptr("0"), Upper: ptr("10000"), LowerInclusive: true},
				{Name: "mid", Lower: ptr("10000"), Upper: ptr("50000"), LowerInclusive: true},
			},
		}

		// Act
		spec, err := NewBucketSpec(config)

		// Assert
		require.NoError(t, err)
		rules := spec.Rules()
		require.Len(t, rules, 3)
		assert.Equal(t, "small", rules[0].Name().ToString())
		assert.Equal(t, "mid", rules[1].Name().ToString())
		assert.Equal(t, "large", rules[2].Name().ToString())
		assert.Equal(t, 2, rules[1].Position())
	})

	t.Run("rejects overlapping rules and names both", func(t *testing.T) {
		// Arrange
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "a", Lower: ptr("0"), Upper: ptr("100"), LowerInclusive: true},
				{Name: "b", Lower: ptr("50"), Upper: ptr("200"), LowerInclusive: true},
			},
		}

		// Act
		_, err := NewBucketSpec(config)

		// Assert
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSpecDefect))
		var defect *SpecDefectError
		require.True(t, errors.As(err, &defect))
		assert.Equal(t, DefectOverlap, defect.Kind)
		assert.Equal(t, "a", defect.Rule)
		assert.Equal(t, "b", defect.Other)
	})

	t.Run("rejects two rules that both include the shared boundary", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "a", Lower: ptr("0"), Upper: ptr("100"), LowerInclusive: true, UpperInclusive: true},
				{Name: "b", Lower: ptr("100"), Upper: ptr("200"), LowerInclusive: true},
			},
		}

		defects := CheckBucketSpec(config)

		require.Len(t, defects, 1)
		assert.Equal(t, DefectOverlap, defects[0].Kind)
	})

	t.Run("rejects a gap between rules", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "a", Lower: ptr("0"), Upper: ptr("100"), LowerInclusive: true},
				{Name: "b", Lower: ptr("150"), Upper: ptr("200"), LowerInclusive: true},
			},
		}

		defects := CheckBucketSpec(config)

		require.Len(t, defects, 1)
		assert.Equal(t, DefectGap, defects[0].Kind)
		assert.Contains(t, defects[0].Error(), "between 100 and 150")
	})

	t.Run("rejects a boundary neither rule includes", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "a", Lower: ptr("0"), Upper: ptr("100"), LowerInclusive: true},
				{Name: "b", Lower: ptr("100"), Upper: ptr("200")},
			},
		}

		defects := CheckBucketSpec(config)

		require.Len(t, defects, 1)
		assert.Equal(t, DefectGap, defects[0].Kind)
	})

	t.Run("rejects two open-ended rules", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "a", Lower: ptr("0"), LowerInclusive: true},
				{Name: "b", Lower: ptr("100"), LowerInclusive: true},
			},
		}

		defects := CheckBucketSpec(config)

		require.Len(t, defects, 1)
		assert.Equal(t, DefectOverlap, defects[0].Kind)
	})

	t.Run("rejects an empty configuration", func(t *testing.T) {
		_, err := NewBucketSpec(specs.BucketConfigSpec{})

		var defect *SpecDefectError
		require.True(t, errors.As(err, &defect))
		assert.Equal(t, DefectEmpty, defect.Kind)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "a", Lower: ptr("0"), Upper: ptr("100"), LowerInclusive: true},
				{Name: "a", Lower: ptr("100"), Upper: ptr("200"), LowerInclusive: true},
			},
		}

		defects := CheckBucketSpec(config)

		require.Len(t, defects, 1)
		assert.Equal(t, DefectDuplicate, defects[0].Kind)
		assert.Equal(t, "a", defects[0].Rule)
	})

	t.Run("rejects an unreachable rule", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "empty", Lower: ptr("100"), Upper: ptr("100"), LowerInclusive: true},
			},
		}

		defects := CheckBucketSpec(config)

		require.Len(t, defects, 1)
		assert.Equal(t, DefectUnreachable, defects[0].Kind)
	})

	t.Run("reports every malformed rule", func(t *testing.T) {
		config := specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "", Lower: ptr("0"), Upper: ptr("100")},
				{Name: "bad", Lower: ptr("ten")},
			},
		}

		defects := CheckBucketSpec(config)

		require.Len(t, defects, 2)
		assert.Equal(t, "#0", defects[0].Rule)
		assert.Equal(t, "bad", defects[1].Rule)
		for _, d := range defects {
			assert.Equal(t, DefectMalformed, d.Kind)
		}
	})

	t.Run("accepts a single unbounded rule", func(t *testing.T) {
		spec, err := NewBucketSpec(specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{{Name: "all"}},
		})

		require.NoError(t, err)
		assert.Equal(t, 1, spec.Len())
		assert.Equal(t, "(-inf, +inf)", spec.Rules()[0].Interval())
	})
}

func TestBucketSpec_Match(t *testing.T) {
	spec := mustBucketSpec(t, standardBuckets())

	cases := []struct {
		arr    string
		bucket string
	}{
		{"0", "small"},
		{"9999.99", "small"},
		{"10000", "mid"},
		{"10000.00", "mid"},
		{"49999.999", "mid"},
		{"50000", "large"},
		{"1000000000", "large"},
	}
	for _, tc := range cases {
		t.Run("assigns "+tc.arr+" to "+tc.bucket, func(t *testing.T) {
			rule, ok := spec.Match(mustDecimal(t, tc.arr))

			require.True(t, ok)
			assert.Equal(t, tc.bucket, rule.Name().ToString())
		})
	}

	t.Run("returns false below the lowest bound", func(t *testing.T) {
		_, ok := spec.Match(mustDecimal(t, "-1"))
		assert.False(t, ok)
	})

	t.Run("honours inclusive upper bounds", func(t *testing.T) {
		spec := mustBucketSpec(t, specs.BucketConfigSpec{
			Rules: []specs.BucketRuleSpec{
				{Name: "low", Lower: ptr("0"), Upper: ptr("100"), LowerInclusive: true, UpperInclusive: true},
				{Name: "high", Lower: ptr("100"), Upper: ptr("200"), UpperInclusive: true},
			},
		})

		low, ok := spec.Match(mustDecimal(t, "100"))
		require.True(t, ok)
		assert.Equal(t, "low", low.Name().ToString())

		high, ok := spec.Match(mustDecimal(t, "200"))
		require.True(t, ok)
		assert.Equal(t, "high", high.Name().ToString())

		_, ok = spec.Match(mustDecimal(t, "200.01"))
		assert.False(t, ok)
	})
}

func TestBucketSpec_ToSpec(t *testing.T) {
	t.Run("returns rules in bound order with inclusivity", func(t *testing.T) {
		spec := mustBucketSpec(t, standardBuckets())

		out := spec.ToSpec()

		require.Len(t, out.Rules, 3)
		assert.Equal(t, "mid", out.Rules[1].Name)
		assert.Equal(t, "10000", *out.Rules[1].Lower)
		assert.Equal(t, "50000", *out.Rules[1].Upper)
		assert.True(t, out.Rules[1].LowerInclusive)
		assert.False(t, out.Rules[1].UpperInclusive)
		assert.Nil(t, out.Rules[2].Upper)
	})
}

func TestBucketRule_Interval(t *testing.T) {
	spec := mustBucketSpec(t, standardBuckets())

	mid, ok := spec.Lookup("mid")
	require.True(t, ok)
	assert.Equal(t, "[10000, 50000)", mid.Interval())

	large, ok := spec.Lookup("large")
	require.True(t, ok)
	assert.Equal(t, "[50000, +inf)", large.Interval())

	_, ok = spec.Lookup("missing")
	assert.False(t, ok)
}
