package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/dispatch"
	"github.com/wardenhq/warden/internal/platform"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/preview"
	"github.com/wardenhq/warden/internal/protocol"
	"github.com/wardenhq/warden/internal/runenv"
	"github.com/wardenhq/warden/internal/safeoutput"
	"github.com/wardenhq/warden/internal/target"
	"github.com/wardenhq/warden/internal/telemetry"
)

const version = "0.1.0"

func main() {
	var cfgPath string
	root := &cobra.Command{Use: "warden", SilenceUsage: true}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")

	var httpAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the tool server agents record intents through",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath, httpAddr)
		},
	}
	serve.Flags().StringVar(&httpAddr, "http", "", "serve over HTTP on this address instead of stdio")

	var bestEffort bool
	var inputPath string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Validate recorded intents and dispatch them to the platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), cfgPath, inputPath, bestEffort, false)
		},
	}
	apply.Flags().BoolVar(&bestEffort, "best-effort", false, "exit zero even when some items fail")
	apply.Flags().StringVar(&inputPath, "input", "", "read intents from this file instead of the configured store")

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Render the staged report without touching the platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), cfgPath, inputPath, false, true)
		},
	}
	previewCmd.Flags().StringVar(&inputPath, "input", "", "read intents from this file instead of the configured store")

	var migDir string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply audit database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			dsn := cfg.Audit.DSN
			if dsn == "" {
				dsn = os.Getenv("DATABASE_URL")
			}
			if dsn == "" {
				return fmt.Errorf("no audit DSN configured")
			}
			if migDir == "" {
				migDir = cfg.Audit.MigrationsDir
			}
			return audit.Migrate(migDir, dsn)
		},
	}
	migrateCmd.Flags().StringVar(&migDir, "dir", "", "migrations source (file://migrations)")

	root.AddCommand(serve, apply, previewCmd, migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(cfgPath, httpAddr string) error {
	logger := runenv.Logger("serve")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	s := protocol.NewServer("warden", version, logger)
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New(prometheus.DefaultRegisterer)
		s.SetMetrics(metrics)
	}
	if err := protocol.RegisterSafeOutputTools(s, pol, store, metrics, logger); err != nil {
		return err
	}

	if httpAddr == "" {
		httpAddr = cfg.Server.Addr
	}
	if httpAddr != "" {
		e := protocol.NewHTTPHandler(s, protocol.HTTPOptions{
			JWTSecret: []byte(cfg.Server.JWTSecret),
			Metrics:   cfg.Telemetry.Enabled,
		})
		logger.Printf("serving HTTP on %s", httpAddr)
		return e.Start(httpAddr)
	}
	logger.Printf("serving stdio with %d tools", len(pol.EnabledTypes()))
	return s.ServeStdio(context.Background(), os.Stdin, os.Stdout)
}

func runApply(ctx context.Context, cfgPath, inputPath string, bestEffort, forceStaged bool) error {
	logger := runenv.Logger("apply")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return err
	}
	doc, err := loadDocument(ctx, cfg, inputPath, logger)
	if err != nil {
		return err
	}
	trigger := target.Context{Kind: target.ContextKind(cfg.Trigger.Kind), Number: cfg.Trigger.Number}
	summary := runenv.NewSummary()
	outputs := runenv.NewOutputs(cfg.Run.OutputsPath)
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New(prometheus.DefaultRegisterer)
	}

	if forceStaged || pol.Staged {
		report := preview.New(pol, trigger, preview.WithMetrics(metrics)).Render(doc)
		summary.Add("%s", report)
		fmt.Println(report)
		if err := outputs.Set("staged", "true"); err != nil {
			return err
		}
		return summary.Flush(cfg.Run.SummaryPath, logger)
	}

	if cfg.Platform.Token == "" {
		return fmt.Errorf("platform.token is required for live dispatch")
	}
	api := platform.NewRESTClient(cfg.Platform.BaseURL, cfg.Platform.Token)
	sink, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	d := dispatch.New(pol, api, cfg.Repo, trigger, logger, dispatch.WithMetrics(metrics))
	results, errs := d.ProcessAll(ctx, doc)

	for _, res := range results {
		outcome := "ok"
		detail := ""
		switch {
		case res.Err != nil:
			outcome, detail = "error", res.Err.Error()
		case res.Skipped:
			outcome, detail = "skipped", res.Reason
		}
		if err := sink.Record(ctx, audit.Entry{
			RunID:      cfg.Run.ID,
			Index:      res.Index,
			OutputType: string(res.Type),
			Outcome:    outcome,
			Detail:     detail,
			URL:        res.URL,
		}); err != nil {
			logger.Printf("audit: %v", err)
		}
		if res.URL != "" {
			summary.Add("- %s: %s", res.Type, res.URL)
			if err := outputs.Set(fmt.Sprintf("%s_url", res.Type), res.URL); err != nil {
				logger.Printf("outputs: %v", err)
			}
		}
	}
	summary.Add("processed %d item(s), %d failed", len(results), len(errs))
	if err := summary.Flush(cfg.Run.SummaryPath, logger); err != nil {
		return err
	}
	if len(errs) > 0 && !bestEffort {
		return fmt.Errorf("%d of %d items failed", len(errs), len(results))
	}
	return nil
}

func openStore(cfg *config.Config) (safeoutput.RecordStore, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		rs, err := safeoutput.NewRedisStore(context.Background(),
			cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, cfg.Store.Redis.Key)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	default:
		fs, err := safeoutput.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

func loadDocument(ctx context.Context, cfg *config.Config, inputPath string, logger *log.Logger) (safeoutput.Document, error) {
	if inputPath != "" {
		if _, err := os.Stat(inputPath); os.IsNotExist(err) {
			// An agent that proposed nothing writes no file at all.
			logger.Printf("%s does not exist, nothing to apply", inputPath)
			return safeoutput.Document{}, nil
		}
		doc, ok := safeoutput.Load(inputPath, logger)
		if !ok {
			return safeoutput.Document{}, fmt.Errorf("no readable intents at %s", inputPath)
		}
		return doc, nil
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return safeoutput.Document{}, err
	}
	defer closeStore()
	records, err := store.ReadAll(ctx)
	if err != nil {
		return safeoutput.Document{}, err
	}
	logger.Printf("loaded %d recorded intent(s)", len(records))
	return safeoutput.Document{Items: records}, nil
}

func openAudit(cfg *config.Config) (audit.Sink, error) {
	if !cfg.Audit.Enabled {
		return audit.NopSink{}, nil
	}
	return audit.Open(cfg.Audit.DSN)
}
