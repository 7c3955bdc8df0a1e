// Command threeprof profiles three.js example pages in a real browser and
// reduces the collected coverage to authored source dependencies.
//
// Usage:
//
//	threeprof run <repoPath> <url1> [url2 ...]   # profile the given pages
//	threeprof run <repoPath> -                   # profile every listed example
//	threeprof resolve <input> [output]           # coverage file to dependency table
//	threeprof pack deps|console <inDir> <out>    # post-process a result directory
//	threeprof serve <repoPath>                   # serve the repository locally
//	threeprof catalog <repoPath>                 # list shader chunks and libraries
//	threeprof runs [runID]                       # list recorded runs or one run's artifacts
//	threeprof mcp                                # MCP tools over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/3jsLive/tasks/threeprof"
)

var version = "0.1.0-dev"

type globals struct {
	configPath string
	logLevel   string
	logger     *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := &globals{}
	root := &cobra.Command{
		Use:           "threeprof",
		Short:         "Browser-driven dependency profiling for three.js examples",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.logger = newLogger(g.logLevel)
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to threeprof.yaml")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		runCmd(g),
		resolveCmd(g),
		packCmd(g),
		serveCmd(g),
		catalogCmd(g),
		runsCmd(g),
		mcpCmd(g),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		logger := g.logger
		if logger == nil {
			logger = newLogger("info")
		}
		logger.Error("threeprof: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(name string) *slog.Logger {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads --config when given, else the defaults, and points the
// repository at repo when non-empty.
func (g *globals) loadConfig(repo string) (*threeprof.Config, error) {
	cfg := threeprof.DefaultConfig()
	if g.configPath != "" {
		var err error
		if cfg, err = threeprof.LoadConfigFile(g.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if repo != "" {
		cfg.Repo.Path = repo
	}
	return cfg, nil
}

func (g *globals) openLedger(cfg *threeprof.Config) (*threeprof.Ledger, error) {
	if cfg.Ledger.Path == "" {
		return nil, nil
	}
	return threeprof.OpenLedger(cfg.Ledger.Path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCmd(g *globals) *cobra.Command {
	var (
		outDir  string
		split   bool
		headful bool
		serve   bool
	)
	cmd := &cobra.Command{
		Use:   "run <repoPath> <url1> [url2 ...] | run <repoPath> -",
		Short: "Profile pages and write one artifact per URL",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("out") {
				cfg.Output.Dir = outDir
			}
			if cmd.Flags().Changed("split") {
				cfg.Output.Split = split
			}
			if cmd.Flags().Changed("headful") {
				cfg.Browser.Headful = headful
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			items, err := threeprof.Worklist(cfg, args[1:], g.logger)
			if err != nil {
				return err
			}
			sinks, err := threeprof.SinksFromConfig(cfg, g.logger)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			opts := []threeprof.Option{threeprof.WithSinks(sinks...), threeprof.WithRegistry(reg)}
			l, err := g.openLedger(cfg)
			if err != nil {
				return err
			}
			if l != nil {
				defer l.Close()
				opts = append(opts, threeprof.WithLedger(l))
			}
			campaign := threeprof.New(cfg, g.logger, opts...)

			if !serve {
				sum, err := campaign.Run(ctx, items)
				g.logger.Info("threeprof: run finished", "run_id", sum.RunID, "total", sum.Total, "failed", sum.Failed)
				return err
			}

			// The dev server lives as long as the campaign.
			srvCtx, stopServer := context.WithCancel(ctx)
			eg, egCtx := errgroup.WithContext(srvCtx)
			eg.Go(func() error {
				return threeprof.Serve(egCtx, cfg, reg, g.logger)
			})
			sum, runErr := campaign.Run(ctx, items)
			stopServer()
			if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				g.logger.Warn("threeprof: dev server", "error", err)
			}
			g.logger.Info("threeprof: run finished", "run_id", sum.RunID, "total", sum.Total, "failed", sum.Failed)
			return runErr
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "result directory (overrides output.dir)")
	cmd.Flags().BoolVar(&split, "split", false, "write one file per top-level key")
	cmd.Flags().BoolVar(&headful, "headful", false, "run Chrome with a window (Xvfb when browser.xvfb is set)")
	cmd.Flags().BoolVar(&serve, "serve", false, "serve the repository on server.addr during the run")
	return cmd
}

func resolveCmd(g *globals) *cobra.Command {
	var repo string
	cmd := &cobra.Command{
		Use:   "resolve <input> [output]",
		Short: "Resolve a coverage file to a dependency table",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(repo)
			if err != nil {
				return err
			}
			if cfg.Repo.Path == "" {
				return errors.New("resolve: --repo or repo.path is required")
			}
			output := ""
			if len(args) == 2 {
				output = args[1]
			}
			res, err := threeprof.NewTools(cfg, nil, g.logger).Resolve(cmd.Context(), args[0], output)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "repository checkout (overrides repo.path)")
	return cmd
}

func packCmd(g *globals) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Post-process a result directory",
	}
	deps := &cobra.Command{
		Use:   "deps <inDir> <outDir>",
		Short: "Compact dependency artifacts into *_packed.json files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := threeprof.PackDependencies(cmd.Context(), args[0], args[1], pattern, g.logger)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"written": written})
		},
	}
	console := &cobra.Command{
		Use:   "console <inDir> <outFile>",
		Short: "Fold console log artifacts into one summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := threeprof.PackConsoleLogs(cmd.Context(), args[0], args[1], pattern, g.logger)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"pages": len(sum.Results), "hits": sum.Hits})
		},
	}
	cmd.PersistentFlags().StringVar(&pattern, "pattern", "", "input file glob inside inDir")
	cmd.AddCommand(deps, console)
	return cmd
}

func serveCmd(g *globals) *cobra.Command {
	var addr string
	var metrics bool
	cmd := &cobra.Command{
		Use:   "serve <repoPath>",
		Short: "Serve a repository checkout for local profiling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Server.Metrics = metrics
			}
			return threeprof.Serve(cmd.Context(), cfg, prometheus.NewRegistry(), g.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "expose /metrics")
	return cmd
}

func catalogCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <repoPath>",
		Short: "List shader chunks, shader libraries and uniform groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(args[0])
			if err != nil {
				return err
			}
			sum, err := threeprof.NewTools(cfg, nil, g.logger).Catalog(cmd.Context(), "")
			if err != nil {
				return err
			}
			return printJSON(sum)
		},
	}
}

func runsCmd(g *globals) *cobra.Command {
	var limit int
	var changed bool
	cmd := &cobra.Command{
		Use:   "runs [runID]",
		Short: "List recorded runs, or the artifacts of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig("")
			if err != nil {
				return err
			}
			l, err := g.openLedger(cfg)
			if err != nil {
				return err
			}
			if l == nil {
				return threeprof.ErrNoLedger
			}
			defer l.Close()

			tools := threeprof.NewTools(cfg, l, g.logger)
			if len(args) == 0 {
				runs, err := tools.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(runs)
			}
			arts, err := tools.RunArtifacts(cmd.Context(), args[0], changed)
			if err != nil {
				return err
			}
			return printJSON(arts)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs listed")
	cmd.Flags().BoolVar(&changed, "changed", false, "only artifacts whose digest changed since the previous run")
	return cmd
}

func mcpCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the threeprof tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig("")
			if err != nil {
				return err
			}
			l, err := g.openLedger(cfg)
			if err != nil {
				return err
			}
			if l != nil {
				defer l.Close()
			}

			srv := mcp.NewServer(&mcp.Implementation{Name: "threeprof", Version: version}, nil)
			threeprof.NewTools(cfg, l, g.logger).RegisterMCP(srv)
			g.logger.Info("threeprof: mcp server on stdio")
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
