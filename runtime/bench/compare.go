package bench

import (
	"fmt"
	"math"
	"strconv"
)

type Status uint8

const (
	NoChange Status = iota
	MinorImprovement
	SignificantImprovement
	MinorRegression
	SignificantRegression
	Pass
	Fail
)

func (s Status) String() string {
	switch s {
	case NoChange:
		return "no change"
	case MinorImprovement:
		return "minor improvement"
	case SignificantImprovement:
		return "improvement"
	case MinorRegression:
		return "minor regression"
	case SignificantRegression:
		return "regression"
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Comparison is one category of two benchmark runs.
type Comparison struct {
	Category    Category
	Current     uint64
	Other       uint64
	Diff        int64
	DiffPercent float64
	Status      Status
}

// Compare compares every category of current against other. With a
// threshold the status is Pass or Fail depending on whether the relative
// difference stays within threshold percent.
func Compare(current, other *Data, threshold *float64) []Comparison {
	cur, oth := current.Entries(), other.Entries()
	var out []Comparison
	for _, c := range Categories(cur) {
		o, ok := oth[c]
		if !ok {
			continue
		}
		out = append(out, compare(c, cur[c], o, threshold))
	}
	return out
}

func compare(c Category, current, other uint64, threshold *float64) Comparison {
	diff := int64(current) - int64(other)
	pct := 0.0
	if other != 0 {
		pct = float64(diff) / float64(other) * 100
	} else if diff != 0 {
		pct = math.Inf(1)
	}
	cmp := Comparison{Category: c, Current: current, Other: other, Diff: diff, DiffPercent: pct}
	switch {
	case threshold != nil && math.Abs(pct) > *threshold:
		cmp.Status = Fail
	case threshold != nil:
		cmp.Status = Pass
	case math.Abs(pct) < 1:
		cmp.Status = NoChange
	case pct < -5:
		cmp.Status = SignificantImprovement
	case pct < 0:
		cmp.Status = MinorImprovement
	case pct < 5:
		cmp.Status = MinorRegression
	default:
		cmp.Status = SignificantRegression
	}
	return cmp
}

func (c Comparison) Failed() bool { return c.Status == Fail }

// Row formats c for a report table.
func (c Comparison) Row() []string {
	sign := "+"
	diff := uint64(c.Diff)
	if c.Diff < 0 {
		sign, diff = "-", uint64(-c.Diff)
	}
	pctSign := ""
	if c.DiffPercent >= 0 {
		pctSign = "+"
	}
	return []string{
		c.Category.String(),
		FormatNumber(c.Current),
		FormatNumber(c.Other),
		sign + FormatNumber(diff),
		fmt.Sprintf("%s%.2f%%", pctSign, c.DiffPercent),
		c.Status.String(),
	}
}

// FormatNumber groups digits by three with underscores.
func FormatNumber(n uint64) string {
	s := strconv.FormatUint(n, 10)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '_')
		}
		out = append(out, s[i])
	}
	return string(out)
}
