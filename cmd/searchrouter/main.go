package main

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	sr "github.com/ineyio/searchrouter"
	"github.com/ineyio/searchrouter/httpapi"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "searchrouter",
		Usage: "Quota-aware search across SerpAPI, Tavily, Serper, Bing and DuckDuckGo",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   "searchrouter.yaml",
				EnvVars: []string{"SEARCHROUTER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Run a search and print the merged results",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "strategy",
						Aliases: []string{"s"},
						Usage:   "Strategy name, or auto",
					},
					&cli.IntFlag{
						Name:    "max-results",
						Aliases: []string{"n"},
						Usage:   "Maximum number of merged results",
					},
					&cli.DurationFlag{
						Name:  "deadline",
						Usage: "Overall deadline for the search",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full response as JSON",
					},
				},
			},
			{
				Name:  "quota",
				Usage: "Inspect or reset backend quotas",
				Subcommands: []*cli.Command{
					{
						Name:   "status",
						Usage:  "Print quota usage per backend",
						Action: quotaStatusCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "json",
								Usage: "Print status as JSON",
							},
						},
					},
					{
						Name:   "reset",
						Usage:  "Reset quota usage",
						Action: quotaResetCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "backend",
								Aliases: []string{"b"},
								Usage:   "Backend to reset (all backends when omitted)",
							},
						},
					},
				},
			},
			{
				Name:   "strategies",
				Usage:  "List the available strategies",
				Action: strategiesCommand,
			},
			{
				Name:   "serve",
				Usage:  "Serve the search API over HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Address to listen on",
						Value: ":8080",
					},
					&cli.DurationFlag{
						Name:  "max-deadline",
						Usage: "Upper bound for client-supplied deadlines",
						Value: 30 * time.Second,
					},
				},
			},
		},
	}
}

func loadRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := sr.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	return build(c.Context, cfg, slog.Default())
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	resp := rt.dispatcher.Search(c.Context, sr.SearchRequest{
		Query:      query,
		Strategy:   c.String("strategy"),
		MaxResults: c.Int("max-results"),
		Deadline:   c.Duration("deadline"),
	})

	out := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintf(out, "Strategy: %s (%s)\n", resp.Dispatch.Strategy, resp.Dispatch.Outcome)
	if len(resp.Hits) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, h := range resp.Hits {
		fmt.Fprintf(out, "\n%d. %s [%s]\n   %s\n   %s\n", i+1, h.Title, h.Source, h.Link, h.Snippet)
	}
	return nil
}

func quotaStatusCommand(c *cli.Context) error {
	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	status, err := rt.dispatcher.QuotaStatus(c.Context)
	if err != nil {
		return fmt.Errorf("quota status: %w", err)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintln(c.App.Writer, sr.FormatStatus(status))
	return nil
}

func quotaResetCommand(c *cli.Context) error {
	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	backend := c.String("backend")
	if err := rt.dispatcher.ResetQuota(c.Context, backend); err != nil {
		return fmt.Errorf("quota reset: %w", err)
	}
	if backend == "" {
		backend = "all backends"
	}
	fmt.Fprintf(c.App.Writer, "Reset quota for %s\n", backend)
	return nil
}

func strategiesCommand(c *cli.Context) error {
	cfg, err := sr.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	for _, s := range catalog.Strategies() {
		mode := "sequential"
		if s.Parallel {
			mode = "parallel"
		}
		fmt.Fprintf(c.App.Writer, "%-12s %-10s %s\n  %s\n", s.Name, mode, strings.Join(s.Backends, ", "), s.Description)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	rt, err := loadRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := httpapi.New(httpapi.Config{
		Listen:      c.String("listen"),
		MaxDeadline: c.Duration("max-deadline"),
	}, rt.dispatcher, slog.Default())
	return server.Start(ctx)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
