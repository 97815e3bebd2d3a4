package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medagentx/form"
	"medagentx/render"
	"medagentx/report"
	"medagentx/server"
)

var (
	serveAddr    string
	serveEnd     string
	backendAddr  string
	analyzeHTML  bool
	errInvalid   = errors.New("report rejected")
	shutdownWait = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report form",
	Long: `Serves the report form. Submissions are posted to the configured analysis
endpoint; with an empty endpoint and an llm block the analysis runs in-process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := cfg.Endpoint
		if cmd.Flags().Changed("endpoint") {
			endpoint = serveEnd
		}
		a, err := buildAnalyzer(endpoint)
		if err != nil {
			return err
		}
		srv, err := server.New(cfg.Validator(), a, logger.Named("server"))
		if err != nil {
			return err
		}
		listen := firstNonEmpty(serveAddr, cfg.ServerAddr, ":8080")
		logger.Info("starting form server", zap.String("addr", listen), zap.String("endpoint", endpoint))
		return listenAndServe(cmd.Context(), listen, srv.Routes())
	},
}

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Serve the analysis endpoint (POST /analyze)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildLocalAnalyzer()
		if err != nil {
			return err
		}
		b, err := server.NewBackend(a, logger.Named("backend"))
		if err != nil {
			return err
		}
		listen := firstNonEmpty(backendAddr, cfg.BackendAddr, ":5000")
		logger.Info("starting analysis backend", zap.String("addr", listen))
		return listenAndServe(cmd.Context(), listen, b.Routes())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file|->",
	Short: "Check whether a report would be accepted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		v := cfg.Validator()
		verdict := v.Validate(text)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "keywords: %s\n", strings.Join(v.Matches(text), ", "))
		if !verdict.IsValid() {
			fmt.Fprintf(out, "invalid (%s): %s\n", verdict.Reason, verdict.Message())
			return errInvalid
		}
		fmt.Fprintln(out, "valid")
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|->",
	Short: "Validate and analyze a report, printing the four sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		a, err := buildAnalyzer(cfg.Endpoint)
		if err != nil {
			return err
		}
		ctrl, err := form.NewController(cfg.Validator(), a, logger.Named("form"))
		if err != nil {
			return err
		}
		ctrl.Edit(text)
		if err := ctrl.Submit(cmd.Context()); err != nil {
			v := ctrl.View()
			if v.ValidationMessage != "" {
				return fmt.Errorf("%w: %s", errInvalid, v.ValidationMessage)
			}
			return errors.New(v.Error)
		}
		return printSections(cmd.OutOrStdout(), *ctrl.View().Result, analyzeHTML)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "http listen address (overrides config.server_addr)")
	serveCmd.Flags().StringVar(&serveEnd, "endpoint", "", "analysis endpoint URL (overrides config.endpoint)")
	backendCmd.Flags().StringVar(&backendAddr, "addr", "", "http listen address (overrides config.backend_addr)")
	analyzeCmd.Flags().BoolVar(&analyzeHTML, "html", false, "print sanitised HTML instead of markdown")
}

func printSections(w io.Writer, res report.AnalysisResult, asHTML bool) error {
	if !asHTML {
		for _, s := range report.Specialties {
			fmt.Fprintf(w, "## %s\n\n%s\n\n", render.Titles[s], res.Field(s))
		}
		return nil
	}
	sections, err := render.New().Sections(res)
	if err != nil {
		return err
	}
	for _, s := range sections {
		fmt.Fprintf(w, "<details open>\n<summary>%s</summary>\n%s</details>\n", s.Title, s.HTML)
	}
	return nil
}

func readInput(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(name)
	return string(b), err
}

// listenAndServe runs h until ctx is cancelled or SIGINT/SIGTERM arrives.
func listenAndServe(ctx context.Context, addr string, h http.Handler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down", zap.String("addr", addr))
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
