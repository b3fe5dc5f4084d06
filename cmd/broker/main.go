// Command broker runs the browser automation broker's two HTTP surfaces
// (spec §6): session lifecycle + shared-browser management, and page
// introspection + /execute-dsl. Grounded on cloudrouter/internal/cli/root.go's
// cobra root + flag wiring, generalized into the broker's
// serve/warmup/version subcommands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kota-kawa/web-agent01-sub000/internal/api"
	"github.com/kota-kawa/web-agent01-sub000/internal/browser"
	"github.com/kota-kawa/web-agent01-sub000/internal/config"
	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
	"github.com/kota-kawa/web-agent01-sub000/internal/executor"
	"github.com/kota-kawa/web-agent01-sub000/internal/extract"
	"github.com/kota-kawa/web-agent01-sub000/internal/llmclient"
	"github.com/kota-kawa/web-agent01-sub000/internal/logging"
	"github.com/kota-kawa/web-agent01-sub000/internal/session"
)

// version is stamped at build time via -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var pretty bool
	var logLevel string

	root := &cobra.Command{
		Use:   "broker",
		Short: "Shared-browser automation broker",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML config file")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "use human-readable console logging instead of JSON")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	root.AddCommand(newServeCmd(&configPath, &pretty, &logLevel))
	root.AddCommand(newWarmupCmd(&configPath, &pretty, &logLevel))
	root.AddCommand(newVersionCmd())
	return root
}

func loadConfigAndLogger(configPath string, pretty bool, logLevel string) (*config.Config, *browser.Connector, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, err
	}
	logger := logging.Init(pretty, logLevel)
	connector := browser.NewConnector(cfg.CandidateList, cfg.DefaultURL, logging.Component(logger, "connector"))
	return cfg, connector, logger, nil
}

func newServeCmd(configPath *string, pretty *bool, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run both HTTP listeners and warm up the shared browser connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, connector, logger, err := loadConfigAndLogger(*configPath, *pretty, *logLevel)
			if err != nil {
				return err
			}

			registry := dsl.NewRegistry()
			exec := executor.New(connector, cfg, logging.Component(logger, "executor"))

			var llm extract.CallLLM
			if cfg.LLMEndpointURL != "" {
				llm = llmclient.NewHTTPClient(cfg.LLMEndpointURL, cfg.DefaultModel, cfg.LLMAPIKey).Call
			}
			history := llmclient.NewInMemoryHistory()
			mgr := session.New(connector, exec, registry, llm, history, logging.Component(logger, "session"))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if _, err := connector.EnsureSharedBrowser(ctx, nil); err != nil {
				logger.Warn().Err(err).Msg("broker: shared browser warmup failed at startup, will retry lazily")
			}

			sessionSrv := api.NewSessionServer(mgr, registry, logging.Component(logger, "api.session"))
			automationSrv := api.NewAutomationServer(exec, connector, registry, logging.Component(logger, "api.automation"))

			sessionHTTP := &http.Server{Addr: cfg.SessionServiceAddr, Handler: sessionSrv}
			automationHTTP := &http.Server{Addr: cfg.AutomationServiceAddr, Handler: automationSrv}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return runServer(gctx, sessionHTTP, logger, "session") })
			g.Go(func() error { return runServer(gctx, automationHTTP, logger, "automation") })

			return g.Wait()
		},
	}
}

func runServer(ctx context.Context, srv *http.Server, logger zerolog.Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("listener", name).Msg("broker: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	}
}

func newWarmupCmd(configPath *string, pretty *bool, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "warmup",
		Short: "Probe CDP candidates once and report the shared browser's readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, connector, _, err := loadConfigAndLogger(*configPath, *pretty, *logLevel)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			result, err := connector.EnsureSharedBrowser(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("ready=%v cdp_ready=%v active_endpoint=%s\n", result.Ready, result.CDPReady, result.ActiveEndpoint)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the broker's build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
