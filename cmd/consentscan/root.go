package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"consentscan/internal/config"
	ilog "consentscan/internal/log"
	"consentscan/pkg/api"
)

var (
	cfgPath string
	cfg     *config.Config
	svc     api.Service
)

var rootCmd = &cobra.Command{
	Use:   "consentscan",
	Short: "consentscan - consent compliance scanner for websites",
	Long: "consentscan drives a Chrome DevTools endpoint through consent scans:\n" +
		"it captures tracking calls before and after consent, detects the CMP\n" +
		"in use, and produces a per-site compliance verdict.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ilog.Setup(cfg)
		svc, err = api.NewService(cfg)
		if err != nil {
			return fmt.Errorf("init service: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if svc != nil {
			return svc.Close()
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "consentscan.yaml", "config file path")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}
