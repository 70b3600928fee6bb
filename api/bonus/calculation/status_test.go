package calculation

import "testing"

func TestWorstStatus(t *testing.T) {
	cases := []struct {
		in   []Status
		want Status
	}{
		{[]Status{StatusPaid, StatusCalculated}, StatusCalculated},
		{[]Status{StatusPaid, StatusPaid}, StatusPaid},
		{[]Status{StatusApproved, StatusUnmatched, StatusPaid}, StatusUnmatched},
		{[]Status{StatusPending, StatusCalculated}, StatusPending},
		{[]Status{}, StatusPending},
		{[]Status{Status("garbage")}, StatusUnmatched},
	}
	for _, c := range cases {
		if got := WorstStatus(c.in); got != c.want {
			t.Errorf("WorstStatus(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestCheckTransition(t *testing.T) {
	if err := CheckTransition(StatusCalculated, StatusApproved); err != nil {
		t.Errorf("calculated -> approved rejected: %v", err)
	}
	denied := [][2]Status{
		{StatusPending, StatusApproved},
		{StatusUnmatched, StatusCalculated},
		{StatusApproved, StatusPaid},
		{StatusApproved, StatusCalculated},
		{StatusPaid, StatusApproved},
	}
	for _, d := range denied {
		if err := CheckTransition(d[0], d[1]); err == nil {
			t.Errorf("%s -> %s allowed unexpectedly", d[0], d[1])
		}
	}
}
