package domain

import (
	"regexp"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted for date ranges.
const DateLayout = "2006-01-02"

var coinIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// DateRange is an inclusive [Start, End] time window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DayRange spans from the first instant of from's day to the last instant of to's day, in UTC.
func DayRange(from, to time.Time) DateRange {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	return DateRange{Start: start, End: end}
}

// ParseDayRange parses two YYYY-MM-DD dates into a DayRange.
func ParseDayRange(from, to string) (DateRange, error) {
	start, err := time.Parse(DateLayout, strings.TrimSpace(from))
	if err != nil {
		return DateRange{}, invalidQuery("start date %q is not YYYY-MM-DD", from)
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(to))
	if err != nil {
		return DateRange{}, invalidQuery("end date %q is not YYYY-MM-DD", to)
	}
	return DayRange(start, end), nil
}

// IsZero reports whether no range was set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Validate requires both bounds and Start <= End.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return invalidQuery("date range requires both start and end")
	}
	if r.Start.After(r.End) {
		return invalidQuery("start date %s is after end date %s",
			r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return nil
}

// Query is a user selection of coins, currency and optional date range.
type Query struct {
	CoinIDs  []string
	Currency string
	Range    DateRange
}

// Normalize lowercases identifiers and drops blanks and repeats, keeping order.
func (q Query) Normalize() Query {
	seen := make(map[string]struct{}, len(q.CoinIDs))
	ids := make([]string, 0, len(q.CoinIDs))
	for _, id := range q.CoinIDs {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return Query{
		CoinIDs:  ids,
		Currency: strings.ToLower(strings.TrimSpace(q.Currency)),
		Range:    q.Range,
	}
}

// Validate checks coin selection, currency and, when set, the date range.
// An empty currencies list accepts any non-empty currency.
func (q Query) Validate(currencies []string) error {
	if len(q.CoinIDs) == 0 {
		return invalidQuery("select at least one coin")
	}
	for _, id := range q.CoinIDs {
		if !coinIDPattern.MatchString(id) {
			return invalidQuery("malformed coin id %q", id)
		}
	}
	if q.Currency == "" {
		return invalidQuery("currency is required")
	}
	if len(currencies) > 0 && !contains(currencies, q.Currency) {
		return invalidQuery("unsupported currency %q", q.Currency)
	}
	if !q.Range.IsZero() {
		return q.Range.Validate()
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
