package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zatekoja/patientinsights/internal/evaluation"
	"github.com/zatekoja/patientinsights/pkg/config"
)

var (
	cfgFile   string
	casesFile string
	strict    bool
)

var rootCmd = &cobra.Command{
	Use:          "evaluate",
	Short:        "Run the guardrail filter over labeled golden cases and print metrics",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cases, err := evaluation.LoadGoldenCases(casesFile)
		if err != nil {
			return err
		}
		if err := evaluation.ValidateGoldenCases(cases); err != nil {
			return fmt.Errorf("invalid golden cases: %w", err)
		}

		guardrails, err := evaluation.NewGuardrails(evaluation.NewGuardrailConfig(cfg.Guardrail.MaxOutputChars, cfg.Guardrail.ExtraPatterns))
		if err != nil {
			return err
		}

		summary := evaluation.NewRunner(guardrails).Run(cases)

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if strict && summary.Passed < summary.TotalCases {
			return fmt.Errorf("%d of %d golden cases failed", summary.TotalCases-summary.Passed, summary.TotalCases)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "config/config.yaml", "config file path")
	rootCmd.Flags().StringVar(&casesFile, "cases", "config/guardrail_golden.yaml", "golden cases file (YAML or JSON)")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any case fails")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
