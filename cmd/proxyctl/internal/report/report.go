// Package report renders proxyctl output for a terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/getgoodtape/videoproc/cmd/proxyctl/internal/doctor"
	"github.com/getgoodtape/videoproc/internal/repository"
)

const (
	green  = "\033[32m"
	red    = "\033[31m"
	yellow = "\033[33m"
	bold   = "\033[1m"
	reset  = "\033[0m"
)

// UseColor resolves a color mode (auto, always, never) against f.
func UseColor(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Printer writes reports to w.
type Printer struct {
	w     io.Writer
	color bool
}

// New creates a printer.
func New(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + reset
}

func (p *Printer) mark(ok bool) string {
	if ok {
		return p.paint(green, "OK  ")
	}
	return p.paint(red, "FAIL")
}

func (p *Printer) section(title string) {
	fmt.Fprintf(p.w, "\n%s\n", p.paint(bold, title))
}

// Doctor prints a doctor report.
func (p *Printer) Doctor(rep *doctor.Report) {
	fmt.Fprintf(p.w, "%s (%s)\n", p.paint(bold, "Network path diagnosis"), rep.CheckedAt.Format(time.RFC3339))

	p.section("DNS")
	for _, r := range rep.DNS {
		if r.OK() {
			fmt.Fprintf(p.w, "  %s %s -> %s\n", p.mark(true), r.Host, strings.Join(r.Addresses, ", "))
		} else {
			fmt.Fprintf(p.w, "  %s %s: %s\n", p.mark(false), r.Host, r.Error)
		}
	}

	if rep.Direct != nil {
		p.section("Direct")
		if rep.Direct.OK {
			fmt.Fprintf(p.w, "  %s exit IP %s (%d ms)\n", p.mark(true), rep.Direct.ExitIP, rep.Direct.LatencyMS)
		} else {
			fmt.Fprintf(p.w, "  %s %s\n", p.mark(false), rep.Direct.Error)
		}
	}

	p.section("Proxy endpoints")
	if len(rep.Endpoints) == 0 {
		fmt.Fprintln(p.w, "  none configured")
	}
	for _, ep := range rep.Endpoints {
		if ep.OK() {
			fmt.Fprintf(p.w, "  %s %-32s %-12s exit IP %s (%d ms)\n", p.mark(true), ep.ID, ep.Provider, ep.State.ExitIP, ep.State.LatencyMS)
		} else {
			fmt.Fprintf(p.w, "  %s %-32s %-12s %s: %s\n", p.mark(false), ep.ID, ep.Provider, ep.State.Reason, ep.State.Detail)
		}
	}

	p.section("Recommendations")
	for _, r := range rep.Recommendations {
		fmt.Fprintf(p.w, "  - %s\n", r)
	}

	if len(rep.SplitTunnel) > 0 {
		p.section("VPN split-tunnel rules (route directly)")
		for _, r := range rep.SplitTunnel {
			fmt.Fprintf(p.w, "  %s\n", p.paint(yellow, r))
		}
	}
}

// Daily prints one day of usage.
func (p *Printer) Daily(s *repository.DailyStats) {
	fmt.Fprintf(p.w, "%s %s\n", p.paint(bold, "Proxy usage for"), s.Date)
	fmt.Fprintf(p.w, "  requests:     %s (%s successful, %.1f%%)\n",
		humanize.Comma(int64(s.TotalRequests)), humanize.Comma(int64(s.SuccessfulRequests)), s.SuccessRate)
	fmt.Fprintf(p.w, "  transferred:  %s\n", humanize.IBytes(uint64(s.TotalBytes)))
	fmt.Fprintf(p.w, "  avg duration: %s\n", time.Duration(s.AvgDurationMS*float64(time.Millisecond)).Round(time.Millisecond))

	p.breakdown("By operation", s.Operations)
	p.breakdown("By path kind", s.Kinds)
}

// Monthly prints a month of usage with the cost estimate.
func (p *Printer) Monthly(s *repository.MonthlyStats) {
	fmt.Fprintf(p.w, "%s %s\n", p.paint(bold, "Proxy usage for"), s.Month)
	fmt.Fprintf(p.w, "  requests:       %s\n", humanize.Comma(int64(s.TotalRequests)))
	fmt.Fprintf(p.w, "  transferred:    %s (proxied %s, %.2f GB)\n",
		humanize.IBytes(uint64(s.TotalBytes)), humanize.IBytes(uint64(s.ProxyBytes)), s.ProxyGB)
	plan := fmt.Sprintf("$%.2f", s.PlanCostUSD)
	if s.PlanExceeded {
		plan += " " + p.paint(red, "(plan exceeded)")
	}
	fmt.Fprintf(p.w, "  plan cost:      %s\n", plan)
	fmt.Fprintf(p.w, "  pay as you go:  $%.2f\n", s.PayAsYouGoUSD)
	fmt.Fprintf(p.w, "  recommendation: %s\n", p.paint(yellow, s.Recommendation))

	p.breakdown("By day", s.Daily)
}

func (p *Printer) breakdown(title string, m map[string]repository.Breakdown) {
	if len(m) == 0 {
		return
	}
	p.section(title)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b := m[k]
		fmt.Fprintf(p.w, "  %-12s %6s requests  %6s ok  %10s\n",
			k, humanize.Comma(int64(b.Count)), humanize.Comma(int64(b.SuccessCount)), humanize.IBytes(uint64(b.Bytes)))
	}
}
