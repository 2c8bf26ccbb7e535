package stats

import "strings"

// DateRange is an inclusive range of yyyymmdd date keys
type DateRange struct {
	Start string
	End   string
}

// LockdownPeriods are the Melbourne lockdowns of 2020 and 2021, in order.
// Date keys are fixed width so lexical comparison orders them by date.
var LockdownPeriods = []DateRange{
	{Start: "20200331", End: "20200512"},
	{Start: "20200709", End: "20201027"},
	{Start: "20210213", End: "20210217"},
	{Start: "20210528", End: "20211006"},
	{Start: "20210716", End: "20210727"},
	{Start: "20210805", End: "20211021"},
}

// LockdownPredicate returns a WHERE clause matching any date_key inside a
// lockdown period, with its bound arguments.
func LockdownPredicate() (string, []any) {
	clauses := make([]string, len(LockdownPeriods))
	args := make([]any, 0, 2*len(LockdownPeriods))
	for i, p := range LockdownPeriods {
		clauses[i] = "(date_key BETWEEN ? AND ?)"
		args = append(args, p.Start, p.End)
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// PrecovidPredicate matches every date_key strictly before the first lockdown
func PrecovidPredicate() (string, []any) {
	return "date_key < ?", []any{LockdownPeriods[0].Start}
}

// AfterLockdownPredicate matches every date_key strictly after the last lockdown
func AfterLockdownPredicate() (string, []any) {
	return "date_key > ?", []any{LockdownPeriods[len(LockdownPeriods)-1].End}
}
