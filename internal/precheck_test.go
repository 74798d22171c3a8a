package internal

import (
	"errors"
	"testing"

	"github.com/chrisconley/arrbucket/specs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreCheck(t *testing.T) {
	t.Run("passes well-formed records through", func(t *testing.T) {
		// Arrange
		records := []specs.RawRecordSpec{
			newRawRecord(withCustomer("a"), withARR("100")),
			newRawRecord(withCustomer("b"), withARR("200.50"), withDimension("product_id", "p1")),
		}

		// Act
		result, err := PreCheck(records, specs.SchemaContractSpec{})

		// Assert
		require.NoError(t, err)
		assert.Empty(t, result.Rejections)
		require.Len(t, result.Valid, 2)
		assert.Equal(t, "200.50", result.Valid[1].ARR)
		assert.Equal(t, "2024-01", result.Valid[1].Period)
		assert.Equal(t, "p1", result.Valid[1].Dimensions["product_id"])
	})

	t.Run("quarantines a record with missing ARR", func(t *testing.T) {
		// Arrange
		records := []specs.RawRecordSpec{
			newRawRecord(withCustomer("a")),
			newRawRecord(withCustomer("b"), withNullARR()),
		}

		// Act
		result, err := PreCheck(records, specs.SchemaContractSpec{Policy: specs.PolicyQuarantine})

		// Assert
		require.NoError(t, err)
		require.Len(t, result.Valid, 1)
		assert.Equal(t, "a", result.Valid[0].CustomerID)
		require.Len(t, result.Rejections, 1)
		assert.Equal(t, specs.RejectionSpec{
			Index:      1,
			CustomerID: "b",
			Period:     "2024-01",
			Rule:       specs.RuleMissingField,
			Field:      FieldARR,
			Message:    "ARR is null",
		}, result.Rejections[0])
	})

	t.Run("fails the call on a missing ARR under the strict policy", func(t *testing.T) {
		// Arrange
		records := []specs.RawRecordSpec{
			newRawRecord(withCustomer("a")),
			newRawRecord(withCustomer("b"), withNullARR()),
		}

		// Act
		result, err := PreCheck(records, specs.SchemaContractSpec{Policy: specs.PolicyStrict})

		// Assert
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSchemaViolation))
		var violation *SchemaViolationError
		require.True(t, errors.As(err, &violation))
		require.Len(t, violation.Rejections, 1)
		assert.Equal(t, "b", violation.Rejections[0].CustomerID)
		assert.Len(t, result.Rejections, 1)
	})

	t.Run("treats null ARR as zero when configured", func(t *testing.T) {
		result, err := PreCheck(
			[]specs.RawRecordSpec{newRawRecord(withNullARR())},
			specs.SchemaContractSpec{NullARR: specs.NullARRZero},
		)

		require.NoError(t, err)
		require.Len(t, result.Valid, 1)
		assert.Equal(t, "0", result.Valid[0].ARR)
	})

	t.Run("applies one rule per record in order", func(t *testing.T) {
		// Arrange
		records := []specs.RawRecordSpec{
			newRawRecord(withCustomer("")),
			newRawRecord(withCustomer("text"), withARR("ten")),
			newRawRecord(withCustomer("date"), withPeriod("January")),
			newRawRecord(withCustomer("neg"), withARR("-5")),
			newRawRecord(withCustomer("huge"), withARR("1000000000")),
			newRawRecord(withCustomer("one-off"), withRecurring(false)),
		}
		contract := specs.SchemaContractSpec{MaxARR: ptr("1000000000"), RecurringOnly: true}

		// Act
		result, err := PreCheck(records, contract)

		// Assert
		require.NoError(t, err)
		assert.Empty(t, result.Valid)
		rules := make([]string, len(result.Rejections))
		for i, r := range result.Rejections {
			rules[i] = r.Rule
			assert.Equal(t, i, r.Index)
		}
		assert.Equal(t, []string{
			specs.RuleMissingField,
			specs.RuleInvalidType,
			specs.RuleInvalidType,
			specs.RuleNegativeARR,
			specs.RuleImplausibleARR,
			specs.RuleNonRecurring,
		}, rules)
		assert.Equal(t, "ten", result.Rejections[1].RawValue)
		assert.Equal(t, FieldPeriod, result.Rejections[2].Field)
	})

	t.Run("requires configured dimensions and the recurring flag", func(t *testing.T) {
		contract := specs.SchemaContractSpec{RequiredFields: []string{"product_id", FieldRecurring}}
		records := []specs.RawRecordSpec{
			newRawRecord(withRecurring(true)),
			newRawRecord(withDimension("product_id", "p1")),
			newRawRecord(withDimension("product_id", "p1"), withRecurring(true), withCustomer("ok")),
		}

		result, err := PreCheck(records, contract)

		require.NoError(t, err)
		require.Len(t, result.Rejections, 2)
		assert.Equal(t, "product_id", result.Rejections[0].Field)
		assert.Equal(t, FieldRecurring, result.Rejections[1].Field)
		require.Len(t, result.Valid, 1)
		assert.Equal(t, "ok", result.Valid[0].CustomerID)
	})

	t.Run("rejects every occurrence of a duplicated key", func(t *testing.T) {
		// Arrange
		records := []specs.RawRecordSpec{
			newRawRecord(withCustomer("a"), withDimension("product_id", "p1")),
			newRawRecord(withCustomer("a"), withDimension("product_id", "p2")),
			newRawRecord(withCustomer("a"), withDimension("product_id", "p1"), withARR("50")),
			newRawRecord(withCustomer("a"), withDimension("product_id", "p1"), withPeriod("2024-02")),
		}
		contract := specs.SchemaContractSpec{KeyFields: []string{"product_id"}}

		// Act
		result, err := PreCheck(records, contract)

		// Assert
		require.NoError(t, err)
		require.Len(t, result.Rejections, 2)
		assert.Equal(t, 0, result.Rejections[0].Index)
		assert.Equal(t, 2, result.Rejections[1].Index)
		assert.Equal(t, specs.RuleDuplicateKey, result.Rejections[0].Rule)
		assert.Equal(t, "customer_id,product_id", result.Rejections[0].Field)
		assert.Len(t, result.Valid, 2)
	})

	t.Run("parses US and UK dates to the first of the month", func(t *testing.T) {
		us, err := PreCheck([]specs.RawRecordSpec{newRawRecord(withPeriod("03/15/2024"))},
			specs.SchemaContractSpec{DateFormat: "us"})
		require.NoError(t, err)
		require.Len(t, us.Valid, 1)
		assert.Equal(t, "2024-03", us.Valid[0].Period)

		uk, err := PreCheck([]specs.RawRecordSpec{newRawRecord(withPeriod("15/03/2024"))},
			specs.SchemaContractSpec{DateFormat: "uk"})
		require.NoError(t, err)
		require.Len(t, uk.Valid, 1)
		assert.Equal(t, "2024-03", uk.Valid[0].Period)
	})

	t.Run("rejects an invalid contract", func(t *testing.T) {
		_, err := PreCheck(nil, specs.SchemaContractSpec{Policy: "lenient"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid contract")
	})

	t.Run("returns the same outcome regardless of input order", func(t *testing.T) {
		forward := []specs.RawRecordSpec{
			newRawRecord(withCustomer("a")),
			newRawRecord(withCustomer("a")),
			newRawRecord(withCustomer("b")),
		}
		reversed := []specs.RawRecordSpec{forward[2], forward[1], forward[0]}

		first, err := PreCheck(forward, specs.SchemaContractSpec{})
		require.NoError(t, err)
		second, err := PreCheck(reversed, specs.SchemaContractSpec{})
		require.NoError(t, err)

		require.Len(t, first.Valid, 1)
		require.Len(t, second.Valid, 1)
		assert.Equal(t, first.Valid[0].CustomerID, second.Valid[0].CustomerID)
		assert.Len(t, second.Rejections, len(first.Rejections))
	})

	t.Run("rejects ARR with more digits than a total can hold", func(t *testing.T) {
		records := []specs.RawRecordSpec{
			newRawRecord(withCustomer("a"), withARR("0.0000001")),
			newRawRecord(withCustomer("b"), withARR("10000000000000000000")),
			newRawRecord(withCustomer("c"), withARR("100.25")),
		}

		result, err := PreCheck(records, specs.SchemaContractSpec{})

		require.NoError(t, err)
		require.Len(t, result.Valid, 1)
		require.Len(t, result.Rejections, 2)
		assert.Equal(t, specs.RuleInvalidType, result.Rejections[0].Rule)
		assert.Contains(t, result.Rejections[0].Message, "decimal places")
		assert.Contains(t, result.Rejections[1].Message, "integer digits")
	})

	t.Run("warns about a month missing inside a customer's product range", func(t *testing.T) {
		// Arrange
		records := []specs.RawRecordSpec{
			newRawRecord(withCustomer("a"), withPeriod("2024-01"), withDimension("product_id", "p1")),
			newRawRecord(withCustomer("a"), withPeriod("2024-04"), withDimension("product_id", "p1")),
			newRawRecord(withCustomer("a"), withPeriod("2024-02"), withDimension("product_id", "p2")),
			newRawRecord(withCustomer("b"), withPeriod("2024-01")),
			newRawRecord(withCustomer("b"), withPeriod("2024-02")),
		}

		// Act
		result, err := PreCheck(records, specs.SchemaContractSpec{})

		// Assert
		require.NoError(t, err)
		assert.Len(t, result.Valid, 5)
		assert.Empty(t, result.Rejections)
		assert.Equal(t, []specs.PreCheckWarningSpec{
			{
				Kind:       specs.WarningMonthGap,
				CustomerID: "a",
				Product:    "p1",
				Period:     "2024-02",
				Message:    "no record between 2024-01 and 2024-04",
			},
			{
				Kind:       specs.WarningMonthGap,
				CustomerID: "a",
				Product:    "p1",
				Period:     "2024-03",
				Message:    "no record between 2024-01 and 2024-04",
			},
		}, result.Warnings)
	})

	t.Run("does not warn about months outside a customer's own range", func(t *testing.T) {
		records := []specs.RawRecordSpec{
			newRawRecord(withCustomer("a"), withPeriod("2024-01")),
			newRawRecord(withCustomer("b"), withPeriod("2024-06")),
		}

		result, err := PreCheck(records, specs.SchemaContractSpec{})

		require.NoError(t, err)
		assert.Empty(t, result.Warnings)
	})
}

func TestNewSchemaContract(t *testing.T) {
	t.Run("always requires the record's own fields", func(t *testing.T) {
		contract, err := NewSchemaContract(specs.SchemaContractSpec{RequiredFields: []string{"arr", "region"}})

		require.NoError(t, err)
		assert.Equal(t, []string{FieldCustomerID, FieldPeriod, FieldARR, "region"}, contract.RequiredFields())
		assert.False(t, contract.Policy().IsStrict())
	})

	t.Run("rejects a non-positive ceiling", func(t *testing.T) {
		_, err := NewSchemaContract(specs.SchemaContractSpec{MaxARR: ptr("0")})
		require.Error(t, err)
	})

	t.Run("rejects unknown date formats and null policies", func(t *testing.T) {
		_, err := NewSchemaContract(specs.SchemaContractSpec{DateFormat: "julian"})
		require.Error(t, err)

		_, err = NewSchemaContract(specs.SchemaContractSpec{NullARR: "drop"})
		require.Error(t, err)
	})
}
