package internal

import (
	"fmt"
	"sort"

	"github.com/chrisconley/arrbucket/specs"
)

// BucketSpec is a validated, immutable set of bucket rules held in ascending order
// of their lower bound. It is safe to share between goroutines.
type BucketSpec struct {
	rules []BucketRule
}

// NewBucketSpec validates the configuration and returns the first defect found.
// Use CheckBucketSpec to list every defect.
func NewBucketSpec(spec specs.BucketConfigSpec) (BucketSpec, error) {
	rules, defects := buildRules(spec)
	if len(defects) > 0 {
		return BucketSpec{}, defects[0]
	}
	return BucketSpec{rules: rules}, nil
}

// CheckBucketSpec runs the spec-level checks: at least one bucket, well-formed and
// uniquely named rules, every rule reachable, and adjacent rules neither overlapping
// nor leaving a gap. The result is empty for a valid configuration.
func CheckBucketSpec(spec specs.BucketConfigSpec) []*SpecDefectError {
	_, defects := buildRules(spec)
	return defects
}

func buildRules(spec specs.BucketConfigSpec) ([]BucketRule, []*SpecDefectError) {
	if len(spec.Rules) == 0 {
		return nil, []*SpecDefectError{{Kind: DefectEmpty, Detail: "at least one bucket is required"}}
	}

	var defects []*SpecDefectError
	rules := make([]BucketRule, 0, len(spec.Rules))
	seen := make(map[string]bool, len(spec.Rules))
	for i, ruleSpec := range spec.Rules {
		rule, err := NewBucketRule(ruleSpec, i)
		if err != nil {
			defects = append(defects, &SpecDefectError{
				Kind:   DefectMalformed,
				Rule:   ruleLabel(ruleSpec.Name, i),
				Detail: err.Error(),
			})
			continue
		}
		if seen[rule.Name().ToString()] {
			defects = append(defects, &SpecDefectError{
				Kind:   DefectDuplicate,
				Rule:   rule.Name().ToString(),
				Detail: "bucket names must be unique",
			})
			continue
		}
		seen[rule.Name().ToString()] = true
		if rule.IsEmpty() {
			defects = append(defects, &SpecDefectError{
				Kind:   DefectUnreachable,
				Rule:   rule.Name().ToString(),
				Detail: fmt.Sprintf("interval %s contains no value", rule.Interval()),
			})
			continue
		}
		rules = append(rules, rule)
	}
	if len(defects) > 0 {
		return nil, defects
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].lower.before(rules[j].lower)
	})

	for i := 0; i+1 < len(rules); i++ {
		if d := adjacencyDefect(rules[i], rules[i+1]); d != nil {
			defects = append(defects, d)
		}
	}
	if len(defects) > 0 {
		return nil, defects
	}
	return rules, nil
}

// adjacencyDefect compares a rule with its successor in lower-bound order.
func adjacencyDefect(a, b BucketRule) *SpecDefectError {
	overlap := func(detail string) *SpecDefectError {
		return &SpecDefectError{Kind: DefectOverlap, Rule: a.Name().ToString(), Other: b.Name().ToString(), Detail: detail}
	}
	if a.upper.infinite || b.lower.infinite {
		return overlap(fmt.Sprintf("%s and %s share an open-ended range", a.Interval(), b.Interval()))
	}

	switch c := a.upper.value.Cmp(b.lower.value); {
	case c > 0:
		return overlap(fmt.Sprintf("%s and %s intersect", a.Interval(), b.Interval()))
	case c < 0:
		return &SpecDefectError{
			Kind:   DefectGap,
			Rule:   a.Name().ToString(),
			Other:  b.Name().ToString(),
			Detail: fmt.Sprintf("values between %s and %s match no bucket", a.upper.value, b.lower.value),
		}
	}

	switch {
	case a.upper.inclusive && b.lower.inclusive:
		return overlap(fmt.Sprintf("both rules include %s", a.upper.value))
	case !a.upper.inclusive && !b.lower.inclusive:
		return &SpecDefectError{
			Kind:   DefectGap,
			Rule:   a.Name().ToString(),
			Other:  b.Name().ToString(),
			Detail: fmt.Sprintf("neither rule includes %s", a.upper.value),
		}
	}
	return nil
}

func ruleLabel(name string, position int) string {
	if name == "" {
		return fmt.Sprintf("#%d", position)
	}
	return name
}

// Rules returns the rules in ascending bound order.
func (s BucketSpec) Rules() []BucketRule {
	out := make([]BucketRule, len(s.rules))
	copy(out, s.rules)
	return out
}

func (s BucketSpec) Len() int {
	return len(s.rules)
}

// Lookup returns the rule with the given name.
func (s BucketSpec) Lookup(name string) (BucketRule, bool) {
	for _, r := range s.rules {
		if r.name.value == name {
			return r, true
		}
	}
	return BucketRule{}, false
}

// Match returns the unique rule containing v using a binary search over the sorted
// upper bounds. Rules are contiguous, so the first rule whose upper bound admits v
// is the only candidate.
func (s BucketSpec) Match(v Decimal) (BucketRule, bool) {
	i := sort.Search(len(s.rules), func(i int) bool {
		return s.rules[i].upper.admitsBelow(v)
	})
	if i == len(s.rules) || !s.rules[i].lower.admitsAbove(v) {
		return BucketRule{}, false
	}
	return s.rules[i], true
}

// ToSpec converts the spec back to primitives, in bound order.
func (s BucketSpec) ToSpec() specs.BucketConfigSpec {
	rules := make([]specs.BucketRuleSpec, len(s.rules))
	for i, r := range s.rules {
		rules[i] = r.ToSpec()
	}
	return specs.BucketConfigSpec{Rules: rules}
}

type BucketRule struct {
	name     BucketName
	lower    BucketBound
	upper    BucketBound
	position int
}

func NewBucketRule(spec specs.BucketRuleSpec, position int) (BucketRule, error) {
	name, err := NewBucketName(spec.Name)
	if err != nil {
		return BucketRule{}, fmt.Errorf("invalid name: %w", err)
	}

	lower, err := NewBucketBound(spec.Lower, spec.LowerInclusive)
	if err != nil {
		return BucketRule{}, fmt.Errorf("invalid lower bound: %w", err)
	}

	upper, err := NewBucketBound(spec.Upper, spec.UpperInclusive)
	if err != nil {
		return BucketRule{}, fmt.Errorf("invalid upper bound: %w", err)
	}

	return BucketRule{
		name:     name,
		lower:    lower,
		upper:    upper,
		position: position,
	}, nil
}

func (r BucketRule) Name() BucketName {
	return r.name
}

func (r BucketRule) Lower() BucketBound {
	return r.lower
}

func (r BucketRule) Upper() BucketBound {
	return r.upper
}

// Position is the rule's index in the original configuration.
func (r BucketRule) Position() int {
	return r.position
}

// Contains reports whether v lies in the rule's interval.
func (r BucketRule) Contains(v Decimal) bool {
	return r.lower.admitsAbove(v) && r.upper.admitsBelow(v)
}

// IsEmpty reports whether no value can ever match the rule.
func (r BucketRule) IsEmpty() bool {
	if r.lower.infinite || r.upper.infinite {
		return false
	}
	switch c := r.lower.value.Cmp(r.upper.value); {
	case c > 0:
		return true
	case c == 0:
		return !(r.lower.inclusive && r.upper.inclusive)
	}
	return false
}

// Interval renders the rule in interval notation, e.g. "[10000, 50000)".
func (r BucketRule) Interval() string {
	left, right := "(", ")"
	if !r.lower.infinite && r.lower.inclusive {
		left = "["
	}
	if !r.upper.infinite && r.upper.inclusive {
		right = "]"
	}
	return fmt.Sprintf("%s%s, %s%s", left, r.lower.Label(false), r.upper.Label(true), right)
}

func (r BucketRule) ToSpec() specs.BucketRuleSpec {
	return specs.BucketRuleSpec{
		Name:           r.name.ToString(),
		Lower:          r.lower.ToSpec(),
		Upper:          r.upper.ToSpec(),
		LowerInclusive: r.lower.inclusive,
		UpperInclusive: r.upper.inclusive,
	}
}

type BucketName struct {
	value string
}

func NewBucketName(value string) (BucketName, error) {
	if value == "" {
		return BucketName{}, fmt.Errorf("bucket name is required")
	}
	return BucketName{value: value}, nil
}

func (n BucketName) ToString() string {
	return n.value
}

// BucketBound is one end of a bucket interval. An infinite bound is never inclusive.
type BucketBound struct {
	value     Decimal
	infinite  bool
	inclusive bool
}

func NewBucketBound(raw *string, inclusive bool) (BucketBound, error) {
	if raw == nil {
		return BucketBound{infinite: true}, nil
	}
	value, err := NewDecimal(*raw)
	if err != nil {
		return BucketBound{}, err
	}
	return BucketBound{value: value, inclusive: inclusive}, nil
}

func (b BucketBound) Value() Decimal {
	return b.value
}

// Label renders the bound, using "-inf"/"+inf" for infinite ends.
func (b BucketBound) Label(upper bool) string {
	if !b.infinite {
		return b.value.String()
	}
	if upper {
		return "+inf"
	}
	return "-inf"
}

func (b BucketBound) ToSpec() *string {
	if b.infinite {
		return nil
	}
	s := b.value.String()
	return &s
}

// admitsAbove reports whether v satisfies b as a lower bound.
func (b BucketBound) admitsAbove(v Decimal) bool {
	if b.infinite {
		return true
	}
	c := v.Cmp(b.value)
	return c > 0 || (c == 0 && b.inclusive)
}

// admitsBelow reports whether v satisfies b as an upper bound.
func (b BucketBound) admitsBelow(v Decimal) bool {
	if b.infinite {
		return true
	}
	c := v.Cmp(b.value)
	return c < 0 || (c == 0 && b.inclusive)
}

// before orders lower bounds: -inf first, then by value, inclusive before exclusive.
func (b BucketBound) before(other BucketBound) bool {
	if b.infinite || other.infinite {
		return b.infinite && !other.infinite
	}
	if c := b.value.Cmp(other.value); c != 0 {
		return c < 0
	}
	return b.inclusive && !other.inclusive
}
