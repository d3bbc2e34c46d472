// Package ui provides the proxyctl watch dashboard.
package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/getgoodtape/videoproc/cmd/proxyctl/internal/config"
	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/service"
)

// Source provides diagnostics snapshots.
type Source interface {
	Diagnostics(ctx context.Context) (*service.Diagnostics, error)
	Probe(ctx context.Context) (*conflict.State, error)
}

// App is the watch TUI.
type App struct {
	app    *tview.Application
	pages  *tview.Pages
	cfg    *config.Config
	source Source
	ctx    context.Context
	cancel context.CancelFunc

	header       *tview.TextView
	footer       *tview.TextView
	statusBar    *tview.TextView
	conflictView *tview.TextView
	poolView     *tview.TextView
	outcomes     *tview.Table
	helpView     *tview.TextView

	mu   sync.RWMutex
	diag *service.Diagnostics
}

// NewApp creates the dashboard.
func NewApp(cfg *config.Config, source Source) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		app:    tview.NewApplication(),
		pages:  tview.NewPages(),
		cfg:    cfg,
		source: source,
		ctx:    ctx,
		cancel: cancel,
	}
	a.setupUI()
	return a
}

func (a *App) setupUI() {
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)
	a.header.SetText(fmt.Sprintf("\n[white::b]videoproc paths[white] | Server: [green]%s", a.cfg.ServerURL))

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]r[white]:Refresh [yellow]p[white]:Re-probe conflict [yellow]?[white]:Help [yellow]q[white]:Quit")
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	a.statusBar = tview.NewTextView().SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(tcell.ColorDarkGreen)

	a.conflictView = tview.NewTextView().SetDynamicColors(true)
	a.conflictView.SetBorder(true).SetTitle(" Conflict ")

	a.poolView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	a.poolView.SetBorder(true).SetTitle(" Pool ")

	a.outcomes = tview.NewTable().SetBorders(false).SetFixed(1, 0).SetSelectable(true, false)
	a.outcomes.SetBorder(true).SetTitle(" Outcomes ")

	a.helpView = tview.NewTextView().SetDynamicColors(true).SetText(helpText)
	a.helpView.SetBorder(true).SetTitle(" Help ")

	top := tview.NewFlex().
		AddItem(a.conflictView, 0, 1, false).
		AddItem(a.poolView, 0, 1, false)
	dashboard := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 10, 0, false).
		AddItem(a.outcomes, 0, 1, true)

	a.pages.AddPage("dashboard", dashboard, true, true)
	a.pages.AddPage("help", a.helpView, true, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false).
		AddItem(a.footer, 1, 0, false)

	a.app.SetInputCapture(a.handleKeys)
	a.app.SetRoot(root, true)
}

func (a *App) handleKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEscape:
		a.pages.SwitchToPage("dashboard")
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			a.Stop()
			return nil
		case 'r', 'R':
			go a.refresh()
			return nil
		case 'p', 'P':
			go a.probe()
			return nil
		case '?':
			a.pages.SwitchToPage("help")
			return nil
		}
	}
	return event
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	go a.refreshLoop()
	go a.refresh()
	return a.app.Run()
}

// Stop stops the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(a.cfg.Refresh)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

func (a *App) setStatus(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetText(fmt.Sprintf(" %s | Last refresh: %s", msg, time.Now().Format("15:04:05")))
	})
}

func (a *App) refresh() {
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Timeout)
	defer cancel()

	d, err := a.source.Diagnostics(ctx)
	if err != nil {
		a.setStatus(fmt.Sprintf("[red]Error: %v", err))
		return
	}

	a.mu.Lock()
	a.diag = d
	a.mu.Unlock()

	a.app.QueueUpdateDraw(func() {
		a.conflictView.SetText(renderConflict(d.Conflict, time.Now()))
		a.poolView.SetText(renderPool(d))
		fillOutcomes(a.outcomes, d.Outcomes)
	})
	a.setStatus(statusLine(d))
}

func (a *App) probe() {
	a.setStatus("Probing...")
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Timeout*3)
	defer cancel()

	if _, err := a.source.Probe(ctx); err != nil {
		a.setStatus(fmt.Sprintf("[red]Probe failed: %v", err))
		return
	}
	a.refresh()
}

const helpText = `
[yellow::b]Keys[white]

  [yellow]r[white]    refresh now
  [yellow]p[white]    force a conflict re-probe on the server
  [yellow]?[white]    this help
  [yellow]Esc[white]  back to the dashboard
  [yellow]q[white]    quit

[yellow::b]Conflict reasons[white]

  [green]clear[white]     proxy reachable through this network
  [red]dns[white]       proxy host did not resolve
  [red]auth[white]      proxy answered 407; often a VPN re-routing the request
  [red]tunnel[white]    CONNECT through the proxy failed
  [red]error[white]     any other probe failure
  no-proxy  no residential proxy is configured
  disabled  conflict detection is turned off
`
