package calculation

import "fmt"

// Status is the lifecycle state of a bonus calculation record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUnmatched  Status = "unmatched"
	StatusCalculated Status = "calculated"
	StatusApproved   Status = "approved"
	StatusPaid       Status = "paid"
)

// statusPriority orders statuses for aggregation: paid is the most
// finished state, unmatched the least. An aggregated view surfaces the
// least-finished state present.
var statusPriority = map[Status]int{
	StatusPaid:       0,
	StatusApproved:   1,
	StatusCalculated: 2,
	StatusPending:    3,
	StatusUnmatched:  4,
}

func (s Status) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// WorstStatus returns the least-finished status among the given ones.
// Unknown statuses are treated as unmatched so they cannot hide behind a
// better-looking aggregate.
func WorstStatus(statuses []Status) Status {
	worst := StatusPaid
	worstPrio := -1
	for _, s := range statuses {
		p, ok := statusPriority[s]
		if !ok {
			p = statusPriority[StatusUnmatched]
			s = StatusUnmatched
		}
		if p > worstPrio {
			worst = s
			worstPrio = p
		}
	}
	if worstPrio == -1 {
		return StatusPending
	}
	return worst
}

// transitions lists the operator-exposed status changes. Payment marking
// happens in the accounting system, not here.
var transitions = map[Status][]Status{
	StatusCalculated: {StatusApproved},
}

// CheckTransition returns an error unless from→to is an allowed operator
// transition.
func CheckTransition(from, to Status) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("status transition %s -> %s is not allowed", from, to)
}
