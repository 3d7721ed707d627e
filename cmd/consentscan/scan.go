package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"consentscan/pkg/model"
)

var (
	scanFast       bool
	scanSkipTouch  bool
	scanTimeoutSec int
	scanJSON       bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan one site and print its compliance verdict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scanCfg := model.ScanConfig{
			URL:              args[0],
			Headless:         cfg.Scan.Headless,
			FastMode:         scanFast || cfg.Scan.FastMode,
			SkipInteractions: scanSkipTouch || cfg.Scan.SkipInteractions,
			OnPhase: func(phase model.Phase, label string) {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", phase, label)
			},
		}
		if scanTimeoutSec > 0 {
			scanCfg.Timeout = time.Duration(scanTimeoutSec) * time.Second
		}

		report, err := svc.Scan(context.Background(), scanCfg)
		if err != nil {
			return err
		}

		if scanJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(report)
		return nil
	},
}

func printReport(r *model.ComplianceReport) {
	fmt.Printf("URL:        %s\n", r.URL)
	fmt.Printf("Verdict:    %s\n", r.Verdict)
	if r.CMP.Detected {
		fmt.Printf("CMP:        %s\n", r.CMP.Type)
	} else {
		fmt.Printf("CMP:        none detected\n")
	}
	fmt.Printf("Events:     %d pre-consent, %d post-consent\n",
		r.Summary.TotalPreConsent, r.Summary.TotalPostConsent)
	fmt.Printf("Violations: %d\n", len(r.Violations))
	for _, v := range r.Violations {
		name := v.EventName
		if name == "" {
			name = "(request)"
		}
		fmt.Printf("  - %s %s [%s]\n", v.Vendor, name, v.Category)
	}
	if r.Failed {
		fmt.Printf("Failed:     %s\n", r.Error)
	}
	fmt.Printf("Report ID:  %s (%dms)\n", r.ReportID, r.DurationMS)
}

func init() {
	scanCmd.Flags().BoolVar(&scanFast, "fast", false, "halve capture windows and skip interactions")
	scanCmd.Flags().BoolVar(&scanSkipTouch, "skip-interactions", false, "skip scroll/click/form simulation")
	scanCmd.Flags().IntVar(&scanTimeoutSec, "timeout", 0, "overall scan timeout in seconds")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the full report as JSON")

	rootCmd.AddCommand(scanCmd)
}
