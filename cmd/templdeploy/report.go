package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/artpar/templdeploy/internal/shell/deploy"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Printer
// =============================================================================

// Printer renders run reports for humans. Styling adapts to the writer: a
// plain buffer or pipe gets unstyled text.
type Printer struct {
	w io.Writer

	title   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	muted   lipgloss.Style
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#5A4FCF", Dark: "#9D8CFF"}),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1E7B34", Dark: "#5AF78E"}),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#B3261E", Dark: "#FF6E67"}),
		warning: r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#F4F99D"}),
		muted:   r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6E6E6E", Dark: "#8A8A8A"}),
	}
}

func (p *Printer) status(s domain.UnitStatus) string {
	label := fmt.Sprintf("%-9s", s)
	switch s {
	case domain.UnitSucceeded:
		return p.success.Render(label)
	case domain.UnitFailed:
		return p.failure.Render(label)
	case domain.UnitSkipped:
		return p.warning.Render(label)
	default:
		return p.muted.Render(label)
	}
}

// =============================================================================
// Run Report
// =============================================================================

// Report prints the outcome of a deployment run.
func (p *Printer) Report(report *domain.RunReport) {
	heading := "Deployed " + report.Target
	if report.DryRun {
		heading = "Dry run " + report.Target
	}
	fmt.Fprintln(p.w, p.title.Render(heading))

	for _, unit := range report.Units {
		fmt.Fprintf(p.w, "  %s %s %s\n", p.status(unit.Status), p.muted.Render(fmt.Sprintf("%-10s", unit.Kind)), unit.Name)
		if unit.Transfer != nil && !unit.Transfer.Skipped && unit.Transfer.Command != "" {
			fmt.Fprintf(p.w, "      %s %s\n", p.muted.Render("sync  "), unit.Transfer.Command)
		}
		if unit.Remote != nil && unit.Remote.Command != "" {
			line := unit.Remote.Command
			if !unit.Remote.Skipped {
				line += fmt.Sprintf(" (exit %d)", unit.Remote.ExitCode)
			}
			fmt.Fprintf(p.w, "      %s %s\n", p.muted.Render("remote"), line)
		}
		if unit.Err != nil {
			fmt.Fprintf(p.w, "      %s %v\n", p.failure.Render("error "), unit.Err)
		}
	}

	fmt.Fprintln(p.w, p.muted.Render(summary(report)))
}

func summary(report *domain.RunReport) string {
	parts := make([]string, 0, 4)
	for _, s := range []domain.UnitStatus{domain.UnitSucceeded, domain.UnitFailed, domain.UnitSkipped, domain.UnitPlanned} {
		if n := report.Count(s); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	if len(parts) == 0 {
		return "nothing deployed"
	}
	return fmt.Sprintf("%d units: %s", len(report.Units), strings.Join(parts, ", "))
}

// =============================================================================
// Plan
// =============================================================================

type planDocument struct {
	Target string     `yaml:"target"`
	Units  []planUnit `yaml:"units"`
}

type planUnit struct {
	Status domain.UnitStatus           `yaml:"status"`
	Error  string                      `yaml:"error,omitempty"`
	Params *domain.EffectiveParameters `yaml:"params,omitempty"`
}

// Plan prints the effective parameters of every unit as YAML.
func (p *Printer) Plan(report *domain.RunReport) error {
	doc := planDocument{Target: report.Target, Units: make([]planUnit, 0, len(report.Units))}
	for _, unit := range report.Units {
		pu := planUnit{Status: unit.Status, Params: unit.Params}
		if unit.Err != nil {
			pu.Error = unit.Err.Error()
		}
		doc.Units = append(doc.Units, pu)
	}

	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to render plan: %w", err)
	}
	return enc.Close()
}

// =============================================================================
// History
// =============================================================================

// History prints recorded runs, newest first.
func (p *Printer) History(runs []domain.RunReport) {
	if len(runs) == 0 {
		fmt.Fprintln(p.w, p.muted.Render("no recorded runs"))
		return
	}
	for i := range runs {
		run := &runs[i]
		status := domain.UnitSucceeded
		if run.Failed() {
			status = domain.UnitFailed
		}
		dry := ""
		if run.DryRun {
			dry = p.muted.Render(" (dry run)")
		}
		fmt.Fprintf(p.w, "%s %s %s %-20s %s%s\n",
			p.muted.Render(run.StartedAt.Local().Format(time.DateTime)),
			p.muted.Render(shortID(run.ID)),
			p.status(status),
			run.Target,
			summary(run),
			dry,
		)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// =============================================================================
// Dependency Git Check
// =============================================================================

// GitChecks prints one block per dependency.
func (p *Printer) GitChecks(results []deploy.GitCheckResult) {
	if len(results) == 0 {
		fmt.Fprintln(p.w, p.muted.Render("no dependencies declared"))
		return
	}
	for _, r := range results {
		fmt.Fprintln(p.w, p.title.Render(r.Dependency))
		if r.Err != nil {
			fmt.Fprintf(p.w, "  %s %v\n", p.failure.Render("error"), r.Err)
			continue
		}
		output := strings.TrimRight(r.Output, "\n")
		if output == "" {
			continue
		}
		for _, line := range strings.Split(output, "\n") {
			fmt.Fprintf(p.w, "  %s\n", line)
		}
	}
}
