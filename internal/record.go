package internal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chrisconley/arrbucket/specs"
)

// ProductDimension is the dimension tag used to count distinct products.
const ProductDimension = "product_id"

type RevenueRecord struct {
	CustomerID RecordCustomerID
	ARR        RecordARR
	Period     RecordPeriod
	Dimensions RecordDimensions
}

func NewRevenueRecord(spec specs.RecordSpec) (RevenueRecord, error) {
	customerID, err := NewRecordCustomerID(spec.CustomerID)
	if err != nil {
		return RevenueRecord{}, fmt.Errorf("invalid customer ID: %w", err)
	}

	arr, err := NewRecordARR(spec.ARR)
	if err != nil {
		return RevenueRecord{}, fmt.Errorf("invalid ARR: %w", err)
	}

	period, err := NewRecordPeriod(spec.Period)
	if err != nil {
		return RevenueRecord{}, fmt.Errorf("invalid period: %w", err)
	}

	return RevenueRecord{
		CustomerID: customerID,
		ARR:        arr,
		Period:     period,
		Dimensions: NewRecordDimensions(spec.Dimensions),
	}, nil
}

func (r RevenueRecord) ToSpec() specs.RecordSpec {
	return specs.RecordSpec{
		CustomerID: r.CustomerID.ToString(),
		ARR:        r.ARR.Value().String(),
		Period:     r.Period.ToString(),
		Dimensions: r.Dimensions.ToMap(),
	}
}

// Entity identifies what the record describes across periods: the customer id
// followed by the given dimension values.
func (r RevenueRecord) Entity(keyFields []string) string {
	var b strings.Builder
	b.WriteString(r.CustomerID.ToString())
	for _, field := range keyFields {
		value, _ := r.Dimensions.Get(field)
		b.WriteString("|")
		b.WriteString(field)
		b.WriteString("=")
		b.WriteString(value)
	}
	return b.String()
}

// Key identifies the record within its period.
func (r RevenueRecord) Key(keyFields []string) string {
	return r.Entity(keyFields) + "@" + r.Period.ToString()
}

// Identity is the record key over every dimension it carries.
func (r RevenueRecord) Identity() string {
	return r.Key(r.Dimensions.Names())
}

type RecordCustomerID struct {
	value string
}

func NewRecordCustomerID(value string) (RecordCustomerID, error) {
	if strings.TrimSpace(value) == "" {
		return RecordCustomerID{}, fmt.Errorf("customer ID is required")
	}
	return RecordCustomerID{value: value}, nil
}

func (id RecordCustomerID) ToString() string {
	return id.value
}

// RecordARR is a non-negative annual recurring revenue amount.
type RecordARR struct {
	value Decimal
}

// ARR values are limited so that a sum of up to ten billion of them fits the
// 34-digit decimal context without rounding.
const (
	maxARRIntegerDigits = 18
	maxARRPlaces        = 6
)

func NewRecordARR(value string) (RecordARR, error) {
	if value == "" {
		return RecordARR{}, fmt.Errorf("ARR is required")
	}
	d, err := NewDecimal(value)
	if err != nil {
		return RecordARR{}, err
	}
	if d.IsNegative() {
		return RecordARR{}, fmt.Errorf("ARR cannot be negative: %s", value)
	}
	if err := checkARRDigits(d); err != nil {
		return RecordARR{}, err
	}
	return RecordARR{value: d}, nil
}

func checkARRDigits(d Decimal) error {
	integer, places := d.digits()
	if integer > maxARRIntegerDigits {
		return fmt.Errorf("ARR %s has more than %d integer digits", d, maxARRIntegerDigits)
	}
	if places > maxARRPlaces {
		return fmt.Errorf("ARR %s has more than %d decimal places", d, maxARRPlaces)
	}
	return nil
}

func (a RecordARR) Value() Decimal {
	return a.value
}

const periodLayout = "2006-01"

// RecordPeriod is a calendar month, held as its first day in UTC.
type RecordPeriod struct {
	value time.Time
}

func NewRecordPeriod(value string) (RecordPeriod, error) {
	if value == "" {
		return RecordPeriod{}, fmt.Errorf("period is required")
	}
	t, err := time.Parse(periodLayout, value)
	if err != nil {
		return RecordPeriod{}, fmt.Errorf("period %q is not in YYYY-MM form", value)
	}
	return RecordPeriod{value: t}, nil
}

// ParsePeriod parses a raw period tag in the given date format and truncates it to
// the first of its month.
func ParsePeriod(raw string, format DateFormat) (RecordPeriod, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range format.layouts() {
		if t, err := time.Parse(layout, raw); err == nil {
			return RecordPeriod{value: time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)}, nil
		}
	}
	return RecordPeriod{}, fmt.Errorf("%q does not match the %s date format", raw, format.ToString())
}

func (p RecordPeriod) ToString() string {
	return p.value.Format(periodLayout)
}

func (p RecordPeriod) Year() int {
	return p.value.Year()
}

func (p RecordPeriod) IsZero() bool {
	return p.value.IsZero()
}

func (p RecordPeriod) Before(other RecordPeriod) bool {
	return p.value.Before(other.value)
}

func (p RecordPeriod) Equal(other RecordPeriod) bool {
	return p.value.Equal(other.value)
}

// AddMonths returns the period n months later (earlier for negative n).
func (p RecordPeriod) AddMonths(n int) RecordPeriod {
	return RecordPeriod{value: p.value.AddDate(0, n, 0)}
}

type DateFormat struct {
	value string
}

func NewDateFormat(value string) (DateFormat, error) {
	switch strings.ToLower(value) {
	case "", "iso":
		return DateFormat{value: "iso"}, nil
	case "us":
		return DateFormat{value: "us"}, nil
	case "uk":
		return DateFormat{value: "uk"}, nil
	default:
		return DateFormat{}, fmt.Errorf("invalid date format %q (valid: iso, us, uk)", value)
	}
}

func (f DateFormat) ToString() string {
	return f.value
}

func (f DateFormat) layouts() []string {
	switch f.value {
	case "us":
		return []string{"01/02/2006", "1/2/2006"}
	case "uk":
		return []string{"02/01/2006", "2/1/2006"}
	default:
		return []string{periodLayout, "2006-01-02", time.RFC3339}
	}
}

type RecordDimensions struct {
	values map[string]string
}

func NewRecordDimensions(values map[string]string) RecordDimensions {
	d := RecordDimensions{values: make(map[string]string, len(values))}
	for name, value := range values {
		d.values[name] = value
	}
	return d
}

func (d RecordDimensions) Get(name string) (string, bool) {
	val, ok := d.values[name]
	return val, ok
}

// Names returns the dimension names in sorted order.
func (d RecordDimensions) Names() []string {
	names := make([]string, 0, len(d.values))
	for name := range d.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d RecordDimensions) ToMap() map[string]string {
	if len(d.values) == 0 {
		return nil
	}
	out := make(map[string]string, len(d.values))
	for name, value := range d.values {
		out[name] = value
	}
	return out
}
