package internal

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/chrisconley/arrbucket/specs"
)

// Record field names usable in SchemaContractSpec.RequiredFields.
const (
	FieldCustomerID = "customer_id"
	FieldARR        = "arr"
	FieldPeriod     = "period"
	FieldRecurring  = "is_recurring"
)

// PreCheck implements specs.PreCheck.
// Under the strict policy the partial result is returned together with a
// *SchemaViolationError so callers can still render the rejections.
func PreCheck(records []specs.RawRecordSpec, contractSpec specs.SchemaContractSpec) (specs.PreCheckResultSpec, error) {
	contract, err := NewSchemaContract(contractSpec)
	if err != nil {
		return specs.PreCheckResultSpec{}, fmt.Errorf("invalid contract: %w", err)
	}

	result := preCheck(records, contract)
	spec := result.ToSpec()
	if contract.Policy().IsStrict() && len(result.Rejections) > 0 {
		return spec, &SchemaViolationError{Rejections: spec.Rejections}
	}
	return spec, nil
}

type PreCheckResult struct {
	Valid      []RevenueRecord
	Rejections []specs.RejectionSpec
	Warnings   []specs.PreCheckWarningSpec
}

func (r PreCheckResult) ToSpec() specs.PreCheckResultSpec {
	valid := make([]specs.RecordSpec, len(r.Valid))
	for i, record := range r.Valid {
		valid[i] = record.ToSpec()
	}
	rejections := make([]specs.RejectionSpec, len(r.Rejections))
	copy(rejections, r.Rejections)
	return specs.PreCheckResultSpec{Valid: valid, Rejections: rejections, Warnings: r.Warnings}
}

// preCheck runs the per-record checks in order (presence, type, range, recurring)
// and then rejects every record whose key occurs more than once in a period.
// The outcome does not depend on input order.
func preCheck(records []specs.RawRecordSpec, contract SchemaContract) PreCheckResult {
	type candidate struct {
		index  int
		raw    specs.RawRecordSpec
		record RevenueRecord
		key    string
	}

	var result PreCheckResult
	candidates := make([]candidate, 0, len(records))
	keyCounts := make(map[string]int, len(records))

	for i, raw := range records {
		record, rejection := checkRecord(i, raw, contract)
		if rejection != nil {
			result.Rejections = append(result.Rejections, *rejection)
			continue
		}
		key := record.Key(contract.KeyFields())
		keyCounts[key]++
		candidates = append(candidates, candidate{index: i, raw: raw, record: record, key: key})
	}

	for _, c := range candidates {
		if n := keyCounts[c.key]; n > 1 {
			result.Rejections = append(result.Rejections, specs.RejectionSpec{
				Index:      c.index,
				CustomerID: c.raw.CustomerID,
				Period:     c.raw.Period,
				Rule:       specs.RuleDuplicateKey,
				Field:      strings.Join(append([]string{FieldCustomerID}, contract.KeyFields()...), ","),
				RawValue:   c.key,
				Message:    fmt.Sprintf("key occurs %d times in period %s", n, c.record.Period.ToString()),
			})
			continue
		}
		result.Valid = append(result.Valid, c.record)
	}

	sort.SliceStable(result.Rejections, func(i, j int) bool {
		return result.Rejections[i].Index < result.Rejections[j].Index
	})
	result.Warnings = monthGaps(result.Valid)
	return result
}

// monthGaps reports every month missing between a customer's first and last
// month for a product. Each customer and product pair is judged on its own range.
func monthGaps(records []RevenueRecord) []specs.PreCheckWarningSpec {
	type series struct {
		customer, product string
		first, last       RecordPeriod
		months            map[string]bool
	}

	byKey := make(map[string]*series)
	for _, r := range records {
		product, _ := r.Dimensions.Get(ProductDimension)
		key := r.CustomerID.ToString() + "\x00" + product
		s, ok := byKey[key]
		if !ok {
			s = &series{customer: r.CustomerID.ToString(), product: product, first: r.Period, last: r.Period, months: map[string]bool{}}
			byKey[key] = s
		}
		if r.Period.Before(s.first) {
			s.first = r.Period
		}
		if s.last.Before(r.Period) {
			s.last = r.Period
		}
		s.months[r.Period.ToString()] = true
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var warnings []specs.PreCheckWarningSpec
	for _, key := range keys {
		s := byKey[key]
		for p := s.first.AddMonths(1); p.Before(s.last); p = p.AddMonths(1) {
			if s.months[p.ToString()] {
				continue
			}
			warnings = append(warnings, specs.PreCheckWarningSpec{
				Kind:       specs.WarningMonthGap,
				CustomerID: s.customer,
				Product:    s.product,
				Period:     p.ToString(),
				Message:    fmt.Sprintf("no record between %s and %s", s.first.ToString(), s.last.ToString()),
			})
		}
	}
	return warnings
}

func checkRecord(index int, raw specs.RawRecordSpec, contract SchemaContract) (RevenueRecord, *specs.RejectionSpec) {
	reject := func(rule, field, value, format string, args ...any) *specs.RejectionSpec {
		return &specs.RejectionSpec{
			Index:      index,
			CustomerID: raw.CustomerID,
			Period:     raw.Period,
			Rule:       rule,
			Field:      field,
			RawValue:   value,
			Message:    fmt.Sprintf(format, args...),
		}
	}

	arrNull := raw.ARR == nil || strings.TrimSpace(*raw.ARR) == ""
	for _, field := range contract.RequiredFields() {
		switch field {
		case FieldCustomerID:
			if strings.TrimSpace(raw.CustomerID) == "" {
				return RevenueRecord{}, reject(specs.RuleMissingField, field, "", "customer ID is required")
			}
		case FieldPeriod:
			if strings.TrimSpace(raw.Period) == "" {
				return RevenueRecord{}, reject(specs.RuleMissingField, field, "", "period is required")
			}
		case FieldARR:
			if arrNull && !contract.NullARRAsZero() {
				return RevenueRecord{}, reject(specs.RuleMissingField, field, "", "ARR is null")
			}
		case FieldRecurring:
			if raw.Recurring == nil {
				return RevenueRecord{}, reject(specs.RuleMissingField, field, "", "recurring flag is required")
			}
		default:
			if strings.TrimSpace(raw.Dimensions[field]) == "" {
				return RevenueRecord{}, reject(specs.RuleMissingField, field, "", "dimension %q is required", field)
			}
		}
	}

	arr := ZeroDecimal()
	if !arrNull {
		parsed, err := NewDecimal(strings.TrimSpace(*raw.ARR))
		if err != nil {
			return RevenueRecord{}, reject(specs.RuleInvalidType, FieldARR, *raw.ARR, "ARR is not a number")
		}
		if err := checkARRDigits(parsed); err != nil {
			return RevenueRecord{}, reject(specs.RuleInvalidType, FieldARR, *raw.ARR, "%s", err.Error())
		}
		arr = parsed
	}

	period, err := ParsePeriod(raw.Period, contract.DateFormat())
	if err != nil {
		return RevenueRecord{}, reject(specs.RuleInvalidType, FieldPeriod, raw.Period, "%s", err.Error())
	}

	if arr.IsNegative() {
		return RevenueRecord{}, reject(specs.RuleNegativeARR, FieldARR, *raw.ARR, "ARR cannot be negative")
	}
	if ceiling, ok := contract.MaxARR(); ok && arr.Cmp(ceiling) >= 0 {
		return RevenueRecord{}, reject(specs.RuleImplausibleARR, FieldARR, *raw.ARR,
			"ARR is at or above the implausibility ceiling %s", ceiling)
	}

	if contract.RecurringOnly() && raw.Recurring != nil && !*raw.Recurring {
		return RevenueRecord{}, reject(specs.RuleNonRecurring, FieldRecurring, "false", "record is not recurring revenue")
	}

	return RevenueRecord{
		CustomerID: RecordCustomerID{value: raw.CustomerID},
		ARR:        RecordARR{value: arr},
		Period:     period,
		Dimensions: NewRecordDimensions(raw.Dimensions),
	}, nil
}

// SchemaContract is the validated form of specs.SchemaContractSpec.
type SchemaContract struct {
	requiredFields []string
	keyFields      []string
	dateFormat     DateFormat
	maxARR         *Decimal
	nullARRAsZero  bool
	recurringOnly  bool
	policy         Policy
}

func NewSchemaContract(spec specs.SchemaContractSpec) (SchemaContract, error) {
	dateFormat, err := NewDateFormat(spec.DateFormat)
	if err != nil {
		return SchemaContract{}, err
	}

	policy, err := NewPolicy(spec.Policy)
	if err != nil {
		return SchemaContract{}, err
	}

	var nullAsZero bool
	switch spec.NullARR {
	case "", specs.NullARRReject:
	case specs.NullARRZero:
		nullAsZero = true
	default:
		return SchemaContract{}, fmt.Errorf("invalid null ARR policy %q (valid: reject, zero)", spec.NullARR)
	}

	var maxARR *Decimal
	if spec.MaxARR != nil {
		d, err := NewDecimal(*spec.MaxARR)
		if err != nil {
			return SchemaContract{}, fmt.Errorf("invalid max ARR: %w", err)
		}
		if d.IsNegative() || d.IsZero() {
			return SchemaContract{}, fmt.Errorf("max ARR must be positive, got %s", d)
		}
		maxARR = &d
	}

	// The record's own fields are always required; configured fields add to them.
	required := []string{FieldCustomerID, FieldPeriod, FieldARR}
	for _, field := range spec.RequiredFields {
		field = strings.TrimSpace(field)
		if field == "" {
			return SchemaContract{}, fmt.Errorf("required field names cannot be empty")
		}
		if !slices.Contains(required, field) {
			required = append(required, field)
		}
	}

	keyFields := make([]string, 0, len(spec.KeyFields))
	for _, field := range spec.KeyFields {
		if field == "" || field == FieldCustomerID {
			continue
		}
		keyFields = append(keyFields, field)
	}

	return SchemaContract{
		requiredFields: required,
		keyFields:      keyFields,
		dateFormat:     dateFormat,
		maxARR:         maxARR,
		nullARRAsZero:  nullAsZero,
		recurringOnly:  spec.RecurringOnly,
		policy:         policy,
	}, nil
}

func (c SchemaContract) RequiredFields() []string {
	return c.requiredFields
}

func (c SchemaContract) KeyFields() []string {
	return c.keyFields
}

func (c SchemaContract) DateFormat() DateFormat {
	return c.dateFormat
}

func (c SchemaContract) MaxARR() (Decimal, bool) {
	if c.maxARR == nil {
		return Decimal{}, false
	}
	return *c.maxARR, true
}

func (c SchemaContract) NullARRAsZero() bool {
	return c.nullARRAsZero
}

func (c SchemaContract) RecurringOnly() bool {
	return c.recurringOnly
}

func (c SchemaContract) Policy() Policy {
	return c.policy
}

type Policy struct {
	value string
}

func NewPolicy(value string) (Policy, error) {
	switch value {
	case "", specs.PolicyQuarantine:
		return Policy{value: specs.PolicyQuarantine}, nil
	case specs.PolicyStrict:
		return Policy{value: specs.PolicyStrict}, nil
	default:
		return Policy{}, fmt.Errorf("invalid policy %q (valid: strict, quarantine)", value)
	}
}

func (p Policy) ToString() string {
	return p.value
}

func (p Policy) IsStrict() bool {
	return p.value == specs.PolicyStrict
}
