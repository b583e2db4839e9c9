package partitions

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const nameLayout = "2006_01"

// Partition is one monthly range [From, To) of a parent table.
type Partition struct {
	Table string
	Name  string
	From  time.Time
	To    time.Time
}

type PlanConfig struct {
	RetentionMonths int
	LookaheadMonths int
}

// MonthStart truncates t to the first instant of its UTC month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Monthly describes the partition of table that holds month.
func Monthly(table string, month time.Time) Partition {
	from := MonthStart(month)
	return Partition{
		Table: table,
		Name:  fmt.Sprintf("%s_%s", table, from.Format(nameLayout)),
		From:  from,
		To:    from.AddDate(0, 1, 0),
	}
}

// ParseName recovers the partition described by name, which must be
// {table}_{yyyy_MM}. Anything else, such as a default partition, is not ours.
func ParseName(table, name string) (Partition, bool) {
	suffix, ok := strings.CutPrefix(name, table+"_")
	if !ok || len(suffix) != len(nameLayout) {
		return Partition{}, false
	}
	month, err := time.Parse(nameLayout, suffix)
	if err != nil {
		return Partition{}, false
	}
	return Monthly(table, month), true
}

// Plan reconciles a table's existing partitions against the window around
// now. It creates every missing month in [this month, this month+lookahead)
// and drops every partition whose range ended at or before the retention
// cutoff. Results are sorted by month. Applying a plan and planning again
// yields nothing to do.
func Plan(table string, now time.Time, existing []string, cfg PlanConfig) (create, drop []Partition) {
	have := map[string]Partition{}
	for _, name := range existing {
		if p, ok := ParseName(table, name); ok {
			have[p.Name] = p
		}
	}

	current := MonthStart(now)
	lookahead := cfg.LookaheadMonths
	if lookahead < 1 {
		lookahead = 1
	}
	for i := 0; i < lookahead; i++ {
		p := Monthly(table, current.AddDate(0, i, 0))
		if _, ok := have[p.Name]; !ok {
			create = append(create, p)
		}
	}

	if cfg.RetentionMonths > 0 {
		cutoff := current.AddDate(0, -cfg.RetentionMonths, 0)
		for _, p := range have {
			if !p.To.After(cutoff) {
				drop = append(drop, p)
			}
		}
		sort.Slice(drop, func(i, j int) bool { return drop[i].From.Before(drop[j].From) })
	}
	return create, drop
}
