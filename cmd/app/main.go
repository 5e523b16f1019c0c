package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/commentmap/internal"
	"github.com/starford/commentmap/internal/doctree"
	"github.com/starford/commentmap/internal/enrich"
	"github.com/starford/commentmap/internal/hierarchy"
	"github.com/starford/commentmap/internal/models"
	"github.com/starford/commentmap/internal/storage"
	pkgconfig "github.com/starford/commentmap/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func readTree(path string) (*doctree.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return doctree.Decode(f)
}

func readBatch(path string) ([]models.RawComment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return storage.DecodeBatch(data)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func enrichOnce(_ context.Context, cmd *cli.Command) error {
	tree, err := readTree(cmd.String("document"))
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	comments, err := readBatch(cmd.String("input"))
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var contextSet []models.RawComment
	if p := cmd.String("context"); p != "" {
		if contextSet, err = readBatch(p); err != nil {
			return fmt.Errorf("read context: %w", err)
		}
	}

	resolver := hierarchy.New(tree, hierarchy.WithMaxDepth(int(cmd.Int("max-depth"))))
	e := enrich.New(resolver, enrich.WithFallbackLabel(cmd.String("fallback-label")))
	return printJSON(e.Enrich(comments, contextSet))
}

func resolveOnce(_ context.Context, cmd *cli.Command) error {
	nodeID := cmd.Args().First()
	if nodeID == "" {
		return fmt.Errorf("NODE_ID argument is required")
	}
	tree, err := readTree(cmd.String("document"))
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	res, err := hierarchy.New(tree, hierarchy.WithMaxDepth(int(cmd.Int("max-depth")))).Resolve(nodeID)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func documentFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "document",
		Aliases:  []string{"d"},
		Usage:    "Path to the design document export (JSON or YAML)",
		Required: true,
	}
}

func maxDepthFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "max-depth",
		Usage: "Maximum ancestor walk length",
		Value: hierarchy.DefaultMaxDepth,
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "commentmap",
		Usage:  "Groups design-review comments by the frame they were left on",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, inbox watcher and event stream",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:  "enrich",
				Usage: "Enrich a comment batch once and print the result",
				Flags: []cli.Flag{
					documentFlag(),
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Comment batch (JSON array or {\"comments\": [...]})",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "context",
						Usage: "Comment set used to look up reply parents (defaults to the input)",
					},
					&cli.StringFlag{
						Name:  "fallback-label",
						Usage: "Frame name for comments that cannot be placed",
						Value: models.DefaultFallbackLabel,
					},
					maxDepthFlag(),
				},
				Action: enrichOnce,
			},
			{
				Name:      "resolve",
				Usage:     "Print the frame and ancestor path of a node",
				ArgsUsage: "NODE_ID",
				Flags:     []cli.Flag{documentFlag(), maxDepthFlag()},
				Action:    resolveOnce,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
