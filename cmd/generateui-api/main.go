package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/generateui-api/internal"
	"github.com/dgellow/generateui-api/internal/config"
	"github.com/dgellow/generateui-api/internal/log"
)

var BuildVersion = "dev"

func printIssues(title string, issues []config.ValidationError) {
	if len(issues) == 0 {
		return
	}
	fmt.Printf("\n%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		fmt.Printf("  - %s\n", issue.Error())
	}
}

// validateEnvironment reports every configuration problem instead of
// stopping at the first one.
func validateEnvironment(ctx context.Context) error {
	config.LoadEnvironment(ctx)

	cfg, err := config.Parse()
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	result := config.Validate(&cfg)
	fmt.Println("Validating environment")
	printIssues("Errors", result.Errors)
	printIssues("Warnings", result.Warnings)

	fmt.Println()
	switch {
	case len(result.Errors) > 0:
		fmt.Println("Result: FAIL")
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	case len(result.Warnings) > 0:
		fmt.Println("Result: PASS (warnings present)")
	default:
		fmt.Println("Result: PASS")
	}
	return nil
}

func main() {
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	validate := flag.Bool("validate", false, "validate the environment configuration and exit")
	flag.Parse()
	if *help {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\nConfiguration is read from the environment, a .env file (ENV_FILE_PATH) and optionally AWS Secrets Manager.\n\n", os.Args[0])
		flag.PrintDefaults()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}

	ctx := context.Background()

	if *validate {
		if err := validateEnvironment(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting generateui-api", map[string]any{
		"version": BuildVersion,
		"port":    cfg.Port,
		"storage": cfg.Storage.Backend,
	})

	app, err := internal.NewApp(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
