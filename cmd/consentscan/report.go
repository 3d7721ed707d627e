package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"consentscan/pkg/model"
)

var reportList bool

var reportCmd = &cobra.Command{
	Use:   "report [reportId]",
	Short: "Print a stored report, or list stored reports",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportList || len(args) == 0 {
			for _, r := range svc.ListReports() {
				fmt.Printf("%s  %-14s %s\n", r.ReportID, r.Verdict, r.URL)
			}
			return nil
		}

		report, err := svc.GetReport(model.ReportID(args[0]))
		if err != nil {
			return fmt.Errorf("report %s: %w", args[0], err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	reportCmd.Flags().BoolVarP(&reportList, "list", "l", false, "list stored reports")
	rootCmd.AddCommand(reportCmd)
}
