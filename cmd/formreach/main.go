// Command formreach submits outreach messages through website contact
// forms.
//
// Usage:
//
//	formreach -url https://acme.example/contact -body @message.txt   # one page
//	formreach -site https://acme.example -body "..."                 # probe the site first
//	formreach -targets sites.txt -body "..."                         # batch, deduped by ledger
//	formreach -listen :8080                                          # HTTP API
//	formreach -mcp                                                   # MCP over stdio
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/formreach/formreach/engage"
	"github.com/formreach/formreach/ledger"
	"github.com/formreach/formreach/report"
)

type options struct {
	configPath  string
	pageURL     string
	siteURL     string
	targetsPath string
	subject     string
	body        string
	force       bool
	listenAddr  string
	mcpStdio    bool
	ledgerPath  string
	csvPath     string
	solver      string
	solverKey   string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	flag.StringVar(&opts.pageURL, "url", "", "engage a single contact-page URL")
	flag.StringVar(&opts.siteURL, "site", "", "probe a site for its contact page, then engage")
	flag.StringVar(&opts.targetsPath, "targets", "", "file with one site URL per line ('#' comments allowed)")
	flag.StringVar(&opts.subject, "subject", "", "message subject")
	flag.StringVar(&opts.body, "body", "", "message body, or @file to read it from a file")
	flag.BoolVar(&opts.force, "force", false, "engage even if the domain is already in the ledger")
	flag.StringVar(&opts.listenAddr, "listen", "", "serve the HTTP API on this address")
	flag.BoolVar(&opts.mcpStdio, "mcp", false, "serve MCP tools over stdio")
	flag.StringVar(&opts.ledgerPath, "ledger", "formreach.db", "SQLite ledger path ('' disables)")
	flag.StringVar(&opts.csvPath, "csv", "", "append outcomes to this CSV file")
	flag.StringVar(&opts.solver, "solver", "", "captcha solver provider: 2captcha or anticaptcha")
	flag.StringVar(&opts.solverKey, "solver-key", "", "captcha solver API key (or SOLVER_API_KEY)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, &opts); err != nil {
		logger.Error("formreach: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	engine, err := engage.New(cfg, engage.WithLogger(logger))
	if err != nil {
		return err
	}
	defer engine.Close()

	var led *ledger.Ledger
	var store engage.OutcomeStore
	if opts.ledgerPath != "" {
		led, err = ledger.Open(opts.ledgerPath)
		if err != nil {
			return err
		}
		defer led.Close()
		store = led
	}

	var rep *report.Writer
	if opts.csvPath != "" {
		rep, err = report.NewWriter(opts.csvPath)
		if err != nil {
			return err
		}
		defer rep.Close()
	}

	switch {
	case opts.mcpStdio:
		return runMCP(ctx, engine, store)
	case opts.listenAddr != "":
		return runServe(ctx, logger, engine, store, opts.listenAddr)
	case opts.targetsPath != "":
		return runBatch(ctx, logger, engine, led, rep, opts)
	case opts.pageURL != "" || opts.siteURL != "":
		return runOnce(ctx, logger, engine, led, rep, opts)
	}

	fmt.Fprintln(os.Stderr, "usage: formreach -url <url> | -site <url> | -targets <file> | -listen <addr> | -mcp")
	os.Exit(1)
	return nil
}

func loadConfig(opts *options) (*engage.Config, error) {
	var cfg *engage.Config
	if opts.configPath != "" {
		loaded, err := engage.LoadConfigFile(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &engage.Config{}
	}

	if opts.solver != "" {
		cfg.Solver.Provider = opts.solver
	}
	key := opts.solverKey
	if key == "" {
		key = os.Getenv("SOLVER_API_KEY")
	}
	if key != "" {
		cfg.Solver.APIKey = key
	}
	return cfg, nil
}

// message builds the outreach message, reading @file bodies from disk.
func message(opts *options) (engage.Message, error) {
	body := opts.body
	if strings.HasPrefix(body, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(body, "@"))
		if err != nil {
			return engage.Message{}, fmt.Errorf("read body file: %w", err)
		}
		body = string(data)
	}
	if strings.TrimSpace(body) == "" {
		return engage.Message{}, errors.New("-body is required")
	}
	return engage.Message{Subject: opts.subject, Body: body}, nil
}

func runOnce(ctx context.Context, logger *slog.Logger, engine *engage.Engine, led *ledger.Ledger, rep *report.Writer, opts *options) error {
	msg, err := message(opts)
	if err != nil {
		return err
	}

	raw := opts.pageURL
	if raw == "" {
		raw = opts.siteURL
	}
	target, err := engage.NewTarget(raw)
	if err != nil {
		return err
	}

	if led != nil && !opts.force {
		attempted, err := led.Attempted(ctx, target.Domain)
		if err != nil {
			return err
		}
		if attempted {
			return fmt.Errorf("domain already attempted: %s (use -force to repeat)", target.Domain)
		}
	}

	var out *engage.Outcome
	if opts.siteURL != "" {
		out, err = engine.EngageSite(ctx, target, msg)
	} else {
		out, err = engine.Engage(ctx, target, msg)
	}
	if err != nil {
		return err
	}

	record(ctx, logger, led, rep, out)

	data, _ := json.MarshalIndent(out, "", "  ")
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return nil
}

func runBatch(ctx context.Context, logger *slog.Logger, engine *engage.Engine, led *ledger.Ledger, rep *report.Writer, opts *options) error {
	msg, err := message(opts)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.targetsPath)
	if err != nil {
		return fmt.Errorf("open targets: %w", err)
	}
	defer f.Close()

	var total, submitted, skipped int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		target, err := engage.NewTarget(line)
		if err != nil {
			logger.Warn("batch: bad target", "line", line, "error", err)
			continue
		}
		if led != nil && !opts.force {
			attempted, err := led.Attempted(ctx, target.Domain)
			if err != nil {
				return err
			}
			if attempted {
				logger.Info("batch: domain already attempted, skipping", "domain", target.Domain)
				skipped++
				continue
			}
		}

		total++
		out, err := engine.EngageSite(ctx, target, msg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("batch: attempt error", "domain", target.Domain, "error", err)
			continue
		}
		if out.Submitted {
			submitted++
		}
		record(ctx, logger, led, rep, out)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read targets: %w", err)
	}

	logger.Info("batch: done", "attempted", total, "submitted", submitted, "skipped", skipped)
	return nil
}

func record(ctx context.Context, logger *slog.Logger, led *ledger.Ledger, rep *report.Writer, out *engage.Outcome) {
	if led != nil {
		if err := led.RecordOutcome(ctx, out); err != nil {
			logger.Error("ledger: record failed", "attempt_id", out.AttemptID, "error", err)
		}
	}
	if rep != nil {
		if err := rep.Append(out); err != nil {
			logger.Error("report: append failed", "attempt_id", out.AttemptID, "error", err)
		}
	}
}

func runServe(ctx context.Context, logger *slog.Logger, engine *engage.Engine, store engage.OutcomeStore, addr string) error {
	handler := engage.NewAPI(engine, store, logger).Handler()

	// API_PASSWORD_HASH (bcrypt) gates every endpoint when set.
	if hash := os.Getenv("API_PASSWORD_HASH"); hash != "" {
		handler = basicAuth(handler, hash)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func basicAuth(next http.Handler, passwordHash string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="formreach"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func runMCP(ctx context.Context, engine *engage.Engine, store engage.OutcomeStore) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "formreach",
		Version: "1.0.0",
	}, nil)
	engage.RegisterMCP(srv, engine, store)
	return srv.Run(ctx, &mcp.StdioTransport{})
}
