package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/proxy"
	"github.com/getgoodtape/videoproc/internal/service"
)

func renderConflict(s conflict.State, now time.Time) string {
	var b strings.Builder
	switch {
	case s.Detected:
		b.WriteString("[red::b]CONFLICT DETECTED[white]\n\n")
		b.WriteString("Direct connection is preferred until the next clean probe.\n")
	case s.Reason == conflict.ReasonClear:
		b.WriteString("[green::b]Clear[white]\n\n")
	default:
		fmt.Fprintf(&b, "[yellow::b]%s[white]\n\n", orDash(string(s.Reason)))
	}

	if s.Reason != "" {
		fmt.Fprintf(&b, "[white::b]Reason:[white]   %s\n", s.Reason)
	}
	if s.Provider != "" {
		fmt.Fprintf(&b, "[white::b]Provider:[white] %s\n", s.Provider)
	}
	if s.ExitIP != "" {
		fmt.Fprintf(&b, "[white::b]Exit IP:[white]  %s (%d ms)\n", s.ExitIP, s.LatencyMS)
	}
	if s.Detail != "" {
		fmt.Fprintf(&b, "[white::b]Detail:[white]   %s\n", tview.Escape(s.Detail))
	}
	if !s.LastCheckedAt.IsZero() {
		fmt.Fprintf(&b, "[white::b]Checked:[white]  %s\n", humanize.RelTime(s.LastCheckedAt, now, "ago", "from now"))
	}
	return b.String()
}

func renderPool(d *service.Diagnostics) string {
	var b strings.Builder
	kinds := map[string]int{}
	for _, ep := range d.Endpoints {
		kinds[ep.Kind]++
	}
	fmt.Fprintf(&b, "[white::b]Endpoints:[white] %d\n", len(d.Endpoints))
	for _, k := range []proxy.Kind{proxy.KindResidential, proxy.KindDatacenter, proxy.KindFree, proxy.KindDirect} {
		if n := kinds[string(k)]; n > 0 {
			fmt.Fprintf(&b, "  %-12s %d\n", k, n)
		}
	}
	if len(d.Families) > 0 {
		fmt.Fprintf(&b, "[white::b]Families:[white] %s\n", strings.Join(d.Families, ", "))
	}
	return b.String()
}

var outcomeHeaders = []string{"ENDPOINT", "ATTEMPTS", "SUCCESS", "FAILURE", "RATE"}

func fillOutcomes(t *tview.Table, stats []proxy.EndpointStats) {
	t.Clear()
	for col, h := range outcomeHeaders {
		t.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1))
	}
	for i, s := range stats {
		row := i + 1
		t.SetCell(row, 0, tview.NewTableCell(s.EndpointID).SetExpansion(1))
		t.SetCell(row, 1, tview.NewTableCell(humanize.Comma(s.Total)))
		t.SetCell(row, 2, tview.NewTableCell(humanize.Comma(s.SuccessCount)))
		t.SetCell(row, 3, tview.NewTableCell(humanize.Comma(s.FailureCount)))
		t.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.0f%%", s.SuccessRate*100)).
			SetTextColor(rateColor(s.SuccessRate)))
	}
}

func rateColor(rate float64) tcell.Color {
	switch {
	case rate >= 0.8:
		return tcell.ColorGreen
	case rate >= 0.5:
		return tcell.ColorYellow
	default:
		return tcell.ColorRed
	}
}

func statusLine(d *service.Diagnostics) string {
	if d.Conflict.Detected {
		return fmt.Sprintf("[red]Conflict (%s) on %s", d.Conflict.Reason, orDash(d.Conflict.Provider))
	}
	var attempts int64
	for _, s := range d.Outcomes {
		attempts += s.Total
	}
	return fmt.Sprintf("[green]%d endpoint(s), %s attempt(s) recorded", len(d.Endpoints), humanize.Comma(attempts))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
