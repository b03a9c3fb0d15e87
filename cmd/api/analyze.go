package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/export"
)

var (
	recordFile       string
	demographicsFile string
	exportFormat     string
	outputFile       string
	withoutModel     bool
	questionTopics   []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the rule evaluators over a record file and print the findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		record, demographics, err := readInput(recordFile, demographicsFile)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		results := a.analysis.Analyze(record, demographics)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"results":  results,
			"insights": services.Insights(results),
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Build a pre-visit report for a record file",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		record, demographics, err := readInput(recordFile, demographicsFile)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, !withoutModel)
		if err != nil {
			return err
		}
		defer a.Close()

		report := a.reports.Build(cmd.Context(), services.ReportOptions{
			Record:       record,
			Demographics: demographics,
			Topics:       questionTopics,
		})

		var out io.Writer = cmd.OutOrStdout()
		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("creating %s: %w", outputFile, err)
			}
			defer f.Close()
			out = f
		}
		return export.Write(out, report, format)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{analyzeCmd, exportCmd} {
		cmd.Flags().StringVar(&recordFile, "record", "", "merged record JSON file")
		cmd.Flags().StringVar(&demographicsFile, "demographics", "", "patient demographics JSON file")
		_ = cmd.MarkFlagRequired("record")
		rootCmd.AddCommand(cmd)
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", "markdown", "report format: json, markdown or html")
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the report to a file instead of stdout")
	exportCmd.Flags().BoolVar(&withoutModel, "no-model", false, "skip narratives and questions")
	exportCmd.Flags().StringSliceVar(&questionTopics, "topic", nil, "question topic (repeatable)")
}

// recordInput is the same envelope the HTTP API accepts. A bare record is
// also allowed.
type recordInput struct {
	Record       *entities.MergedRecord        `json:"record"`
	Demographics *entities.PatientDemographics `json:"demographics"`
}

func readInput(recordPath, demographicsPath string) (*entities.MergedRecord, *entities.PatientDemographics, error) {
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading record: %w", err)
	}

	var in recordInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", recordPath, err)
	}
	if in.Record == nil {
		in.Record = &entities.MergedRecord{}
		if err := json.Unmarshal(data, in.Record); err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %w", recordPath, err)
		}
	}

	if demographicsPath != "" {
		data, err := os.ReadFile(demographicsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading demographics: %w", err)
		}
		in.Demographics = &entities.PatientDemographics{}
		if err := json.Unmarshal(data, in.Demographics); err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %w", demographicsPath, err)
		}
	}
	return in.Record, in.Demographics, nil
}
