package internal

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/chrisconley/arrbucket/specs"
)

// maxExpectedProducts is the product count above which a profile carries a warning.
const maxExpectedProducts = 20

// profile summarises valid records across every period they cover.
func profile(records []RevenueRecord) specs.DataProfileSpec {
	out := specs.DataProfileSpec{ARRByYear: map[string]string{}}
	if len(records) == 0 {
		return out
	}

	customers := make(map[string]struct{})
	products := make(map[string]struct{})
	byYear := make(map[int]Decimal)
	var first, last RecordPeriod

	for _, r := range records {
		customers[r.CustomerID.ToString()] = struct{}{}
		if product, ok := r.Dimensions.Get(ProductDimension); ok && product != "" {
			products[product] = struct{}{}
		}
		if first.IsZero() || r.Period.Before(first) {
			first = r.Period
		}
		if last.IsZero() || last.Before(r.Period) {
			last = r.Period
		}
		if total, ok := byYear[r.Period.Year()]; ok {
			byYear[r.Period.Year()] = total.Add(r.ARR.Value())
		} else {
			byYear[r.Period.Year()] = r.ARR.Value()
		}
	}

	// The window is the twelve months ending at and including the last period.
	windowStart := last.AddMonths(-11)
	active := make(map[string]struct{})
	for _, r := range records {
		if r.Period.Before(windowStart) || r.ARR.Value().IsZero() {
			continue
		}
		active[r.CustomerID.ToString()] = struct{}{}
	}

	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)
	for _, year := range years {
		out.ARRByYear[strconv.Itoa(year)] = byYear[year].String()
	}

	out.UniqueCustomers = len(customers)
	out.UniqueProducts = len(products)
	out.FirstPeriod = first.ToString()
	out.LastPeriod = last.ToString()
	out.ActiveCustomersLast12Months = len(active)
	if len(products) > maxExpectedProducts {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("%d products exceeds the expected maximum of %d", len(products), maxExpectedProducts))
	}
	return out
}
