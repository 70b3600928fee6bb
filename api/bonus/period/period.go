package period

import (
	"fmt"
	"strconv"
	"strings"
)

// Period is a calendar month in YYYY-MM form. Periods compare correctly as
// strings, which the storage layer relies on for range queries.
type Period string

func (p Period) String() string { return string(p) }

// Parse validates a YYYY-MM period string.
func Parse(s string) (Period, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid period %q, expected YYYY-MM", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 2000 || year > 2999 {
		return "", fmt.Errorf("invalid period year in %q", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return "", fmt.Errorf("invalid period month in %q", s)
	}
	return Period(fmt.Sprintf("%04d-%02d", year, month)), nil
}

func (p Period) yearMonth() (int, int) {
	year, _ := strconv.Atoi(string(p)[:4])
	month, _ := strconv.Atoi(string(p)[5:])
	return year, month
}

// IsJanuary reports whether the period is a January, where cumulative
// year-to-date figures reset.
func (p Period) IsJanuary() bool {
	_, month := p.yearMonth()
	return month == 1
}

// Prev returns the previous calendar month, rolling the year back over
// January.
func (p Period) Prev() Period {
	year, month := p.yearMonth()
	month--
	if month == 0 {
		month = 12
		year--
	}
	return Period(fmt.Sprintf("%04d-%02d", year, month))
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	year, month := p.yearMonth()
	month++
	if month == 13 {
		month = 1
		year++
	}
	return Period(fmt.Sprintf("%04d-%02d", year, month))
}

// Range returns every period from from to to inclusive, ascending. Delta
// computation depends on the immediately preceding period, so callers must
// process the result in order.
func Range(from, to Period) ([]Period, error) {
	if from > to {
		return nil, fmt.Errorf("period range %s..%s is reversed", from, to)
	}
	var out []Period
	for p := from; ; p = p.Next() {
		out = append(out, p)
		if p == to {
			break
		}
		if len(out) > 240 {
			return nil, fmt.Errorf("period range %s..%s too wide", from, to)
		}
	}
	return out, nil
}

// ParseQuarter turns YYYY-Qn into its three constituent months.
func ParseQuarter(s string) ([]Period, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	parts := strings.Split(s, "-")
	if len(parts) != 2 || len(parts[1]) != 2 || parts[1][0] != 'Q' {
		return nil, fmt.Errorf("invalid quarter %q, expected YYYY-Qn", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 2000 || year > 2999 {
		return nil, fmt.Errorf("invalid quarter year in %q", s)
	}
	q, err := strconv.Atoi(parts[1][1:])
	if err != nil || q < 1 || q > 4 {
		return nil, fmt.Errorf("invalid quarter number in %q", s)
	}
	first := (q-1)*3 + 1
	out := make([]Period, 0, 3)
	for m := first; m < first+3; m++ {
		out = append(out, Period(fmt.Sprintf("%04d-%02d", year, m)))
	}
	return out, nil
}
