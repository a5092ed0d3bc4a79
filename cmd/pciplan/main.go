package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pciplan/pkg/config"
	"pciplan/pkg/version"
)

const defaultConfigPath = "configs/pciplan.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "pciplan",
		Short:        "PCI planning for LTE and NR cells",
		Version:      version.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// A missing .env is normal; only a malformed one is an error.
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the YAML config")

	root.AddCommand(initConfigCmd(&configPath))
	root.AddCommand(importCmd(&configPath))
	root.AddCommand(planCmd(&configPath))
	root.AddCommand(showCmd(&configPath))
	return root
}

func initConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Generate the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.GenerateDefault(*configPath); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file generated: %s\n", *configPath)
			return nil
		},
	}
}

func importCmd(configPath *string) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a cell snapshot CSV into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd.Context(), *configPath, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.cells, "cells", "", "Cell snapshot CSV (default: input.cells from the config)")
	cmd.Flags().StringVarP(&opts.network, "network", "n", "", "Network type: LTE or NR (default: planning.network)")
	return cmd
}

func planCmd(configPath *string) *cobra.Command {
	var opts planOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Assign PCIs to the requested cells",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.inheritSet = cmd.Flags().Changed("inherit")
			return runPlan(cmd.Context(), *configPath, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.request, "request", "r", "", "Request CSV listing the cells to plan (default: input.request)")
	cmd.Flags().StringVar(&opts.cells, "cells", "", "Cell snapshot CSV (default: input.cells)")
	cmd.Flags().StringVarP(&opts.network, "network", "n", "", "Network type: LTE or NR (default: planning.network)")
	cmd.Flags().StringVar(&opts.reuse, "reuse", "", "Reuse distance, e.g. 3km or 2500m; a bare number is km")
	cmd.Flags().BoolVar(&opts.inherit, "inherit", false, "Keep each cell's current PCI modulus")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Output directory (default: output.dir)")
	cmd.Flags().BoolVar(&opts.writeBack, "write-back", false, "Store the assigned PCIs in the cell pool for later runs")
	return cmd
}

func showCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the results of a stored planning run as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), *configPath, args[0], cmd.OutOrStdout())
		},
	}
}
