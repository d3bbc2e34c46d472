// proxyctl is the operator tool for videoproc network paths: it diagnoses
// proxy and VPN problems, reports usage cost and watches a running server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/getgoodtape/videoproc/cmd/proxyctl/internal/client"
	ctlconfig "github.com/getgoodtape/videoproc/cmd/proxyctl/internal/config"
	"github.com/getgoodtape/videoproc/cmd/proxyctl/internal/doctor"
	"github.com/getgoodtape/videoproc/cmd/proxyctl/internal/report"
	"github.com/getgoodtape/videoproc/cmd/proxyctl/internal/ui"
	"github.com/getgoodtape/videoproc/internal/config"
	"github.com/getgoodtape/videoproc/internal/logging"
	"github.com/getgoodtape/videoproc/internal/proxy"
	"github.com/getgoodtape/videoproc/internal/repository"
)

const usageText = `usage: proxyctl <command> [flags]

commands:
  doctor   probe DNS, the direct path and every proxy endpoint
  usage    print proxy usage and cost from the usage log
  watch    live dashboard of a running server's path diagnostics
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfg, err := ctlconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "doctor":
		err = runDoctor(ctx, cfg, os.Args[2:])
	case "usage":
		err = runUsage(ctx, cfg, os.Args[2:])
	case "watch":
		err = runWatch(ctx, cfg, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usageText)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usageText)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadServerConfig(path string) (*config.Config, error) {
	c, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load videoproc config: %w", err)
	}
	return c, nil
}

func runDoctor(ctx context.Context, cfg *ctlconfig.Config, args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", cfg.ConfigPath, "Path to videoproc config file")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall time limit")
	verbose := fs.Bool("v", false, "Log each probe")
	fs.Parse(args)

	sc, err := loadServerConfig(*configPath)
	if err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := logging.NewWithWriter(os.Stderr, config.LogConfig{Level: level, Format: "text"})

	pool := proxy.LoadPool(sc.Proxy, logger)
	d := doctor.New(pool, sc.Conflict, logger, doctor.Options{
		ExtraHosts: []string{"youtube.com", "google.com"},
	})

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	rep := d.Run(ctx)

	if *asJSON {
		return writeJSON(os.Stdout, rep)
	}
	report.New(os.Stdout, report.UseColor(cfg.Color, os.Stdout)).Doctor(rep)
	return nil
}

func runUsage(ctx context.Context, cfg *ctlconfig.Config, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	configPath := fs.String("config", cfg.ConfigPath, "Path to videoproc config file")
	dbPath := fs.String("db", "", "Usage database (defaults to USAGE_DB_PATH)")
	day := fs.String("day", "", "Day to report, YYYY-MM-DD (default today, UTC)")
	month := fs.String("month", "", "Month to report, YYYY-MM")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	fs.Parse(args)

	sc, err := loadServerConfig(*configPath)
	if err != nil {
		return err
	}
	path := *dbPath
	if path == "" {
		path = sc.Usage.DBPath
	}
	if path == "" {
		return errors.New("no usage database: set USAGE_DB_PATH or pass -db")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("usage database: %w", err)
	}

	repo, err := repository.OpenSQLiteUsage(path, sc.Usage)
	if err != nil {
		return err
	}
	defer repo.Close()

	p := report.New(os.Stdout, report.UseColor(cfg.Color, os.Stdout))
	if *month != "" {
		t, err := time.Parse("2006-01", *month)
		if err != nil {
			return fmt.Errorf("month must be YYYY-MM: %w", err)
		}
		stats, err := repo.MonthlyStats(ctx, t)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(os.Stdout, stats)
		}
		p.Monthly(stats)
		return nil
	}

	t := time.Now().UTC()
	if *day != "" {
		if t, err = time.Parse("2006-01-02", *day); err != nil {
			return fmt.Errorf("day must be YYYY-MM-DD: %w", err)
		}
	}
	stats, err := repo.DailyStats(ctx, t)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(os.Stdout, stats)
	}
	p.Daily(stats)
	return nil
}

func runWatch(ctx context.Context, cfg *ctlconfig.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	server := fs.String("server", cfg.ServerURL, "videoproc base URL")
	refresh := fs.Duration("refresh", cfg.Refresh, "Refresh interval")
	fs.Parse(args)

	cfg.ServerURL = *server
	cfg.Refresh = *refresh
	c := client.New(cfg.ServerURL, cfg.APIKey, cfg.Timeout)

	// Without a terminal there is nothing to draw; print one snapshot.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		d, err := c.Diagnostics(ctx)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, d)
	}

	app := ui.NewApp(cfg, c)
	go func() {
		<-ctx.Done()
		app.Stop()
	}()
	return app.Run()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
