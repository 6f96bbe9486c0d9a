package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/sitegrade/config"
	"github.com/use-agent/sitegrade/engine"
)

// cliIdentifier is the identity one-shot analyses run under. The CLI is
// trusted, so it is never subject to quota.
const cliIdentifier = "cli:local"

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyze a single URL and print the result as JSON",
		Long: `Analyze renders one page, scores it and prints the result.

Examples:
  # Analyze with the headless browser
  sitegrade analyze https://example.com

  # Plain HTTP fetch, no browser needed
  sitegrade analyze --mode http https://example.com

  # Race HTTP and browser engines
  sitegrade analyze --mode auto --timeout 45s https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze,
	}
	cmd.Flags().StringP("mode", "m", "", "Render mode: browser, http or auto (overrides SITEGRADE_RENDER_MODE)")
	cmd.Flags().DurationP("timeout", "t", 0, "Render timeout (overrides SITEGRADE_RENDER_TIMEOUT)")
	cmd.Flags().Bool("compact", false, "Print JSON on a single line")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := applyAnalyzeFlags(cmd, cfg); err != nil {
		return err
	}

	// Logs go to stderr so stdout stays valid JSON.
	initLogger(cfg.Log, os.Stderr)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	analysis, err := a.service.RunAnalysis(cmd.Context(), args[0], cliIdentifier, true)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if compact, _ := cmd.Flags().GetBool("compact"); !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(analysis.Result)
}

func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		switch mode {
		case engine.ModeBrowser, engine.ModeHTTP, engine.ModeAuto:
			cfg.Render.Mode = mode
		default:
			return fmt.Errorf("unknown mode %q (want browser, http or auto)", mode)
		}
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.Render.Timeout = timeout
	}
	// One-shot runs keep nothing around between invocations.
	cfg.Cache.TTL = 0
	cfg.Browser.IdleTimeout = 0
	return nil
}
