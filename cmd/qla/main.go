package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/qla/internal/handler"
	appI18n "github.com/pavelanni/qla/internal/i18n"
	"github.com/pavelanni/qla/internal/metrics"
	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/report"
	"github.com/pavelanni/qla/internal/store"
	"github.com/pavelanni/qla/internal/wizard"
)

//go:generate templ generate -path ../..

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qla",
		Short: "Question-level analysis report wizard",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), templateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the report wizard web server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", ":memory:", "SQLite database for wizard sessions")
	f.StringP("output", "o", "QLA_Reports", "Directory reports are written to")
	f.String("logo", "logo.PNG", "Branding image placed on every report (optional)")
	f.StringP("lang", "l", "en", "UI language")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /qla)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Duration("session-ttl", store.DefaultSessionTTL, "Idle lifetime of a wizard session")
	addLogFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate reports from an assessment file and a marked roster",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.String("assessment", "", "Assessment JSON: scheme, papers and boundary overrides (required)")
	f.String("roster", "", "Roster CSV with a p<paper>q<n> column per question (required)")
	f.StringP("output", "o", "QLA_Reports", "Directory reports are written to")
	f.String("logo", "logo.PNG", "Branding image placed on every report (optional)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("assessment")
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the example student list CSV",
		RunE:  runTemplate,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)
	slog.SetDefault(newLogger(os.Stderr, v.GetString("log-level"), v.GetString("log-format")))
}

// newLogger builds the process logger. Unknown levels fall back to info and
// unknown formats to text.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// viperForCmd binds a command's flags, QLA_* environment and qla.yaml to a
// fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QLA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("qla")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/qla")
	v.AddConfigPath("/etc/qla")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.ServerConfig{
		OutputDir:     v.GetString("output"),
		LogoPath:      v.GetString("logo"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		SessionTTL:    v.GetDuration("session-ttl"),
	}

	h, err := handler.New(db, metrics.New(), cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			h.CleanupSessions()
		}
	}()

	r := newRouter(h, basePath)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"output", cfg.OutputDir,
		"logo", cfg.LogoPath,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

// newRouter mounts the wizard at basePath, or at the root when it is empty.
func newRouter(h *handler.Handler, basePath string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger, middleware.Recoverer, appI18n.Middleware())
	if basePath == "" {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
		return r
	}
	r.Route(basePath, func(sub chi.Router) {
		sub.Use(h.BasePathMiddleware)
		h.Routes(sub)
	})
	r.Get(basePath, func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, basePath+"/", http.StatusMovedPermanently)
	})
	return r
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	assessment, err := readAssessment(v.GetString("assessment"))
	if err != nil {
		return err
	}
	f, err := os.Open(v.GetString("roster"))
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	st, err := runWizard(assessment, f)
	if err != nil {
		return err
	}

	branding, _ := report.LoadBranding(v.GetString("logo"))
	res, err := report.NewRenderer(report.WithBranding(branding)).Generate(v.GetString("output"), report.Input{
		Names:      st.ScoredNames(),
		Scores:     st.Scores,
		Boundaries: st.Boundaries,
	})
	if err != nil {
		return fmt.Errorf("generate reports: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d reports written to %s\n", len(res.Files), res.ArchivePath())
	return nil
}

func runTemplate(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	out := v.GetString("output")
	if out == "" || out == "-" {
		_, err := cmd.OutOrStdout().Write(wizard.RosterTemplate())
		return err
	}
	if err := os.WriteFile(out, wizard.RosterTemplate(), 0o644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
