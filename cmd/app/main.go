package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/orbit/internal"
	pkgconfig "github.com/starford/orbit/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if vault := cmd.String("vault"); vault != "" {
		cfg.Vault.Path = vault
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	issues, err := internal.Check(ctx, internal.WithConfig(cfg), internal.WithLogWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	for _, is := range issues {
		if is.Detail != "" {
			fmt.Printf("%-18s %s (%s)\n", is.Kind, is.Path, is.Detail)
			continue
		}
		fmt.Printf("%-18s %s\n", is.Kind, is.Path)
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d issues found", len(issues))
	}
	fmt.Println("vault is consistent")
	return nil
}

func setup(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	report, err := internal.Setup(ctx, internal.WithConfig(cfg), internal.WithLogWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	return printJSON(report)
}

func promote(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		return fmt.Errorf("promote: grouping directory is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	g, err := internal.Promote(ctx, dir, internal.WithConfig(cfg), internal.WithLogWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	return printJSON(g)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogWriter(os.Stderr))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	cmd := &cli.Command{
		Name:   "orbit",
		Usage:  "Keeps a Markdown vault organised by the categories and groupings its documents declare",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Vault directory (overrides vault.path)",
				Sources: cli.EnvVars("ORBIT_VAULT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "Report structural drift without changing the vault",
				Action: check,
			},
			{
				Name:   "setup",
				Usage:  "Scaffold every category and rebuild the index",
				Action: setup,
			},
			{
				Name:      "promote",
				Usage:     "Promote a floating grouping to a numbered folder",
				ArgsUsage: "<category>/.0-inbox/<name>",
				Action:    promote,
			},
			{
				Name:   "mcp",
				Usage:  "Serve ORBIT tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
