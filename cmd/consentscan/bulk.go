package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"consentscan/pkg/model"
)

var (
	bulkMode         string
	bulkTargetFile   string
	bulkExportPath   string
	bulkExportFormat string
	bulkFast         bool
)

var bulkCmd = &cobra.Command{
	Use:   "bulk [urls...]",
	Short: "Scan many sites under a fixed concurrency cap",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := append([]string(nil), args...)
		if bulkTargetFile != "" {
			fromFile, err := readTargets(bulkTargetFile)
			if err != nil {
				return err
			}
			targets = append(targets, fromFile...)
		}
		if len(targets) == 0 {
			return fmt.Errorf("no targets: pass urls or --targets <file>")
		}

		mode := model.BatchMode(bulkMode)
		if mode != model.ModeMultiSite && mode != model.ModeDeepScan {
			return fmt.Errorf("unknown mode %q: want multi-site or deep-scan", bulkMode)
		}

		id := svc.SubmitBatch(targets, mode)
		progress, cancel, err := svc.SubscribeBatch(id)
		if err != nil {
			return err
		}
		defer cancel()

		scanCfg := model.ScanConfig{
			Headless:         cfg.Scan.Headless,
			FastMode:         bulkFast || cfg.Scan.FastMode,
			SkipInteractions: cfg.Scan.SkipInteractions,
		}
		if err := svc.StartBatch(context.Background(), id, scanCfg); err != nil {
			return err
		}

		// Progress delivery is best-effort; poll alongside the stream so
		// a dropped final event cannot stall the command.
		tick := time.NewTicker(500 * time.Millisecond)
		defer tick.Stop()
	wait:
		for {
			select {
			case evt, ok := <-progress:
				if !ok {
					break wait
				}
				if evt.Status != "" {
					fmt.Fprintf(os.Stderr, "[%d/%d] %s %s\n", evt.Completed, evt.Total, evt.URL, evt.Status)
				}
			case <-tick.C:
			}
			if done, _ := svc.BatchDone(id); done {
				break
			}
		}

		batch, err := svc.GetBatch(id)
		if err != nil {
			return err
		}
		printBatch(batch)

		if err := svc.ArchiveBatch(id); err != nil {
			fmt.Fprintf(os.Stderr, "archive failed: %v\n", err)
		}
		if bulkExportPath != "" {
			return exportBatch(id, bulkExportPath, bulkExportFormat)
		}
		return nil
	},
}

func readTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var targets []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	return targets, sc.Err()
}

func exportBatch(id model.BatchID, path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := svc.ExportBatch(f, id, format); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "batch exported to %s\n", path)
	return nil
}

func printBatch(b model.BulkBatch) {
	fmt.Printf("Batch:     %s (%s)\n", b.BatchID, b.Mode)
	fmt.Printf("Targets:   %d completed of %d, avg %dms\n", b.Completed, b.Total, b.AvgScanTime)
	var nonCompliant, errored int
	for _, r := range b.Results {
		if r.Verdict == model.VerdictNonCompliant {
			nonCompliant++
		}
		if r.Status == model.TargetError {
			errored++
		}
	}
	fmt.Printf("Verdicts:  %d non-compliant, %d errored\n", nonCompliant, errored)
	if b.Summary != nil {
		fmt.Printf("Vendors:   %s\n", strings.Join(b.Summary.Vendors, ", "))
		fmt.Printf("Violations total: %d\n", b.Summary.TotalViolations)
	}
	for _, r := range b.Results {
		status := string(r.Status)
		if r.Verdict != "" {
			status = string(r.Verdict)
		}
		fmt.Printf("  %-40s %s", r.URL, status)
		if r.Error != "" {
			fmt.Printf(" (%s)", r.Error)
		}
		fmt.Println()
	}
}

func init() {
	bulkCmd.Flags().StringVar(&bulkMode, "mode", string(model.ModeMultiSite), "batch mode: multi-site or deep-scan")
	bulkCmd.Flags().StringVar(&bulkTargetFile, "targets", "", "file with one target url per line")
	bulkCmd.Flags().StringVarP(&bulkExportPath, "export", "o", "", "write batch results to file")
	bulkCmd.Flags().StringVar(&bulkExportFormat, "format", "json", "export format: csv or json")
	bulkCmd.Flags().BoolVar(&bulkFast, "fast", false, "halve capture windows and skip interactions")

	rootCmd.AddCommand(bulkCmd)
}
