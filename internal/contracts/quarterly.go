package contracts

import "strings"

// QuarterRow is one quarterly metric observation for a ticker. Quarter
// labels are free-form but chronologically sortable strings ("2025Q3").
type QuarterRow struct {
	Ticker  string  `json:"ticker"`
	Quarter string  `json:"quarter"`
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
}

// QuarterSeries is a ticker's metric values over an ordered quarter window,
// newest quarter first. Values are keyed by lower-cased metric name, then by
// quarter label; a missing entry means the metric was not reported for that
// quarter.
type QuarterSeries struct {
	Quarters []string
	Values   map[string]map[string]float64
}

// NewQuarterSeries builds a series view over a window from raw rows.
func NewQuarterSeries(window []string, rows []QuarterRow) *QuarterSeries {
	s := &QuarterSeries{
		Quarters: window,
		Values:   make(map[string]map[string]float64),
	}
	allowed := make(map[string]bool, len(window))
	for _, q := range window {
		allowed[q] = true
	}
	for _, row := range rows {
		if !allowed[row.Quarter] {
			continue
		}
		key := strings.ToLower(row.Metric)
		if s.Values[key] == nil {
			s.Values[key] = make(map[string]float64)
		}
		s.Values[key][row.Quarter] = row.Value
	}
	return s
}

// Lookup returns the value of a metric at a window index (0 = newest).
func (s *QuarterSeries) Lookup(metric string, idx int) (float64, bool) {
	if idx < 0 || idx >= len(s.Quarters) {
		return 0, false
	}
	byQuarter, ok := s.Values[strings.ToLower(metric)]
	if !ok {
		return 0, false
	}
	v, ok := byQuarter[s.Quarters[idx]]
	return v, ok
}

// HasMetric reports whether any quarter in the window reported the metric.
func (s *QuarterSeries) HasMetric(metric string) bool {
	_, ok := s.Values[strings.ToLower(metric)]
	return ok
}
