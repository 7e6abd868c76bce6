// Package report renders plans and run outcomes for the terminal.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/gofkdump/internal/artifact"
	"github.com/dbsmedya/gofkdump/internal/graph"
	"github.com/dbsmedya/gofkdump/internal/strategy"
)

// Printer writes reports to w.
type Printer struct {
	w io.Writer
}

// New creates a printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Header prints a title framed by "=" lines.
func (p *Printer) Header(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := runewidth.StringWidth(title) + 4
	fmt.Fprintln(p.w, strings.Repeat("=", width))
	fmt.Fprintf(p.w, "  %s\n", color.Bold.Sprint(title))
	fmt.Fprintln(p.w, strings.Repeat("=", width))
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	fmt.Fprintf(p.w, "[%s]\n", title)
	fmt.Fprintln(p.w, strings.Repeat("-", runewidth.StringWidth(title)+2))
}

// Check prints one validation result line.
func (p *Printer) Check(ok bool, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if ok {
		fmt.Fprintf(p.w, "✅ %s\n", color.Green.Sprint(msg))
		return
	}
	fmt.Fprintf(p.w, "❌ %s\n", color.Red.Sprint(msg))
}

// SideBySide prints two blocks of lines next to each other. padding is the
// minimum gap between the columns.
func (p *Printer) SideBySide(left, right []string, padding int) {
	leftWidth := 0
	for _, line := range left {
		if w := visualWidth(line); w > leftWidth {
			leftWidth = w
		}
	}

	rows := len(left)
	if len(right) > rows {
		rows = len(right)
	}

	for i := 0; i < rows; i++ {
		leftPart, rightPart := "", ""
		if i < len(left) {
			leftPart = left[i]
		}
		if i < len(right) {
			rightPart = right[i]
		}
		if rightPart == "" {
			fmt.Fprintln(p.w, leftPart)
			continue
		}
		fmt.Fprint(p.w, leftPart)
		if n := leftWidth - visualWidth(leftPart) + padding; n > 0 {
			fmt.Fprint(p.w, strings.Repeat(" ", n))
		}
		fmt.Fprintln(p.w, rightPart)
	}
}

// visualWidth is the terminal width of s without color codes.
func visualWidth(s string) int {
	return runewidth.StringWidth(color.ClearCode(s))
}

// Plan prints the dependency overview and execution plan of a backup.
func (p *Printer) Plan(meta *artifact.Metadata, plan *graph.ExecutionPlan) {
	deps := meta.TableDependencies

	p.Header("Restore Plan: %s", displayName(meta.Database))
	fmt.Fprintln(p.w)

	var chains []string
	chains = append(chains, "[ Targets ]", strings.Repeat("-", 11))
	nameWidth := 0
	for _, target := range plan.Targets() {
		if w := runewidth.StringWidth(target); w > nameWidth {
			nameWidth = w
		}
	}
	for _, target := range plan.Targets() {
		paths := plan.Paths(target)
		if len(paths) == 0 {
			chains = append(chains, fmt.Sprintf("%s  independent  dependents %d",
				runewidth.FillRight(target, nameWidth), deps.InDegree(target)))
			continue
		}
		chains = append(chains, fmt.Sprintf("%s  depth %d  deps %d  dependents %d",
			runewidth.FillRight(target, nameWidth), plan.MaxDepth(target), deps.OutDegree(target), deps.InDegree(target)))
		for _, path := range paths {
			chains = append(chains, "  "+strings.Join(append(append([]string{}, path...), target), " -> "))
		}
	}

	independent := deps.IndependentNodes()
	overview := []string{
		"[ Overview ]",
		strings.Repeat("-", 12),
		fmt.Sprintf("Dialect:      %s", displayName(meta.Dialect)),
		fmt.Sprintf("Tables:       %d", deps.NodeCount()),
		fmt.Sprintf("Dependencies: %d", deps.EdgeCount()),
		fmt.Sprintf("Paths:        %d", plan.PathCount()),
		fmt.Sprintf("Independent:  %d", len(independent)),
	}
	if !meta.CreatedAt.IsZero() {
		overview = append(overview, fmt.Sprintf("Created:      %s", humanize.Time(meta.CreatedAt)))
	}
	p.SideBySide(chains, overview, 4)

	fmt.Fprintln(p.w)
	p.Section("Independent Tables")
	if len(independent) == 0 {
		fmt.Fprintln(p.w, "  (none)")
	}
	for _, table := range independent {
		fmt.Fprintf(p.w, "  • %s\n", table)
	}

	fmt.Fprintln(p.w)
	p.Section("Topological Order")
	order, err := deps.TopologicalSort()
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			fmt.Fprintf(p.w, "  %s\n", color.Yellow.Sprintf("cycle detected: %s",
				strings.Join(cycleErr.Info.CyclePath, " -> ")))
			fmt.Fprintf(p.w, "  unordered tables: %s\n", strings.Join(cycleErr.Info.UnprocessedNodes, ", "))
		} else {
			fmt.Fprintf(p.w, "  %s\n", color.Yellow.Sprint(err.Error()))
		}
		order = nil
	}
	for i, table := range order {
		fmt.Fprintf(p.w, "  [%d] %s\n", i+1, table)
	}
}

// Summary prints the outcome of a backup or restore run.
func (p *Printer) Summary(o *strategy.Outcome) {
	title := "Backup Summary"
	verb := "Backed up"
	if o.Mode == strategy.ModeRestore {
		title = "Restore Summary"
		verb = "Restored"
	}
	database := ""
	if o.Metadata != nil {
		database = o.Metadata.Database
	}

	fmt.Fprintln(p.w)
	p.Header("%s: %s", title, displayName(database))
	if o.Result == nil {
		fmt.Fprintf(p.w, "  %s\n", color.Red.Sprint("run aborted before any table was scheduled"))
		return
	}
	r := o.Result

	fmt.Fprintln(p.w)
	p.Section("Result")
	fmt.Fprintf(p.w, "  Tables:     %d\n", r.Total())
	fmt.Fprintf(p.w, "  %s:  %s\n", verb, color.Green.Sprint(len(r.Succeeded)))
	failed := fmt.Sprint(len(r.Failed))
	if len(r.Failed) > 0 {
		failed = color.Red.Sprint(failed)
	}
	fmt.Fprintf(p.w, "  Failed:     %s\n", failed)
	fmt.Fprintf(p.w, "  Duration:   %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Succeeded) > 0 {
		fmt.Fprintln(p.w)
		p.Section("Completed Tables")
		width := 0
		for _, table := range r.Succeeded {
			if w := runewidth.StringWidth(table); w > width {
				width = w
			}
		}
		for i, table := range r.Succeeded {
			line := fmt.Sprintf("  [%d] %s", i+1, runewidth.FillRight(table, width))
			if n, ok := o.Rows[table]; ok {
				line += fmt.Sprintf("  %s rows", humanize.Comma(n))
			}
			if n, ok := o.Bytes[table]; ok {
				line += fmt.Sprintf("  %s", humanize.Bytes(uint64(n)))
			}
			fmt.Fprintln(p.w, strings.TrimRight(line, " "))
		}
	}

	if len(r.Failed) > 0 {
		fmt.Fprintln(p.w)
		p.Section("Failed Tables")
		for _, f := range r.Failed {
			fmt.Fprintf(p.w, "  ✗ %s: %s\n", color.Red.Sprint(f.Table), f.Cause)
		}
	}
}

func displayName(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}
