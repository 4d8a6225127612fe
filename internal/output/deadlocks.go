package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/panbanda/locksmith/pkg/analyzer/deadlock"
)

// DeadlockReport renders a deadlock analysis. JSON and TOON output carry
// the report itself; text and markdown lay it out as tables.
type DeadlockReport struct {
	Report *deadlock.Report
}

// NewDeadlockReport wraps r for a Formatter.
func NewDeadlockReport(r *deadlock.Report) *DeadlockReport {
	return &DeadlockReport{Report: r}
}

func (d *DeadlockReport) RenderData() any { return d.Report }

func (d *DeadlockReport) RenderText(w io.Writer, colored bool) error {
	r := d.Report
	if err := d.summary().RenderText(w, colored); err != nil {
		return err
	}

	if !r.HasDeadlocks() {
		msg := "No potential deadlocks found."
		if colored {
			color.New(color.FgGreen).Fprintln(w, msg)
		} else {
			fmt.Fprintln(w, msg)
		}
	} else {
		title := fmt.Sprintf("%d potential deadlock(s)", len(r.Deadlocks))
		if colored {
			color.New(color.Bold, color.FgRed).Fprintln(w, title)
		} else {
			fmt.Fprintln(w, title)
		}
		fmt.Fprintln(w, strings.Repeat("=", len(title)))
		fmt.Fprintln(w)
		if err := d.findings().RenderText(w, colored); err != nil {
			return err
		}
	}

	for _, t := range d.details() {
		fmt.Fprintln(w)
		if err := t.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

func (d *DeadlockReport) RenderMarkdown(w io.Writer) error {
	rep := &Report{Title: "Deadlock Analysis", Sections: []Renderable{d.summary()}}
	if d.Report.HasDeadlocks() {
		rep.Sections = append(rep.Sections, d.findings())
	} else {
		rep.Sections = append(rep.Sections, &Section{Title: "Deadlocks", Content: "No potential deadlocks found."})
	}
	for _, t := range d.details() {
		rep.Sections = append(rep.Sections, t)
	}
	return rep.RenderMarkdown(w)
}

func (d *DeadlockReport) summary() *Table {
	s := d.Report.Summary
	rows := [][]string{
		{"Files", strconv.Itoa(s.Files)},
		{"Classes", strconv.Itoa(s.Classes)},
		{"Functions", strconv.Itoa(s.Functions)},
		{"Entry points", strconv.Itoa(s.EntryPoints)},
		{"Functions expanded", strconv.Itoa(s.FunctionsExpanded)},
		{"Locks", strconv.Itoa(s.Locks)},
		{"Nesting edges", strconv.Itoa(s.NestingEdges)},
		{"Lock pairs", strconv.Itoa(s.Pairs)},
		{"Deadlock entries", strconv.Itoa(s.Deadlocks)},
	}
	return NewTable("Summary", []string{"Metric", "Value"}, rows, nil, s)
}

func (d *DeadlockReport) findings() *Table {
	rows := make([][]string, 0, len(d.Report.Deadlocks))
	for _, f := range d.Report.Deadlocks {
		rows = append(rows, []string{f.LockA, f.LockB, funcRef(f.AThenB), funcRef(f.BThenA)})
	}
	return NewTable("Deadlocks", []string{"Lock A", "Lock B", "A then B", "B then A"}, rows, nil, d.Report.Deadlocks)
}

// details are the lock dependency relation and, when collected, the traces.
func (d *DeadlockReport) details() []*Table {
	r := d.Report
	var out []*Table

	if len(r.Dependencies) > 0 {
		rows := make([][]string, 0, len(r.Dependencies))
		for _, e := range r.Dependencies {
			inner := e.Inner
			if e.Outlives {
				inner += " (outlives)"
			}
			rows = append(rows, []string{
				e.Outer, inner,
				strconv.Itoa(e.Acquires), strconv.Itoa(e.Releases),
				e.Witness,
			})
		}
		out = append(out, NewTable("Lock Dependencies",
			[]string{"Held", "Acquired", "Acquires", "Releases", "Witness"}, rows, nil, r.Dependencies))
	}

	if len(r.Traces) > 0 {
		rows := make([][]string, 0, len(r.Traces))
		for _, t := range r.Traces {
			rows = append(rows, []string{
				t.Function,
				strconv.Itoa(t.Seed),
				strings.Join(t.Events, " "),
				strings.Join(t.Held, ", "),
			})
		}
		out = append(out, NewTable("Lock Traces", []string{"Function", "Seed", "Events", "Held"}, rows, nil, r.Traces))
	}
	return out
}

func funcRef(f deadlock.FunctionRef) string {
	if f.File == "" {
		return f.Name
	}
	return fmt.Sprintf("%s (%s:%d)", f.Name, f.File, f.Line)
}
