package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phichain/phiconsensus/phimath"
)

var (
	flagConfig string
	flagDebug  bool
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "phinode",
		Short:         "Φ-consensus demo node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to TOML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(runCommand())
	root.AddCommand(scheduleCommand())
	root.AddCommand(phiCommand())
	return root
}

func newLogger() (*zap.Logger, error) {
	if flagDebug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runCommand() *cobra.Command {
	var rounds uint64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the local round loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadNodeConfig(flagConfig)
			if err != nil {
				return err
			}
			if err := cfg.ValidateBasic(); err != nil {
				return err
			}
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			return runNode(cmd.Context(), cfg, log, rounds)
		},
	}
	cmd.Flags().Uint64Var(&rounds, "rounds", 0, "stop after this many rounds (0 = run until interrupted)")
	return cmd
}

func scheduleCommand() *cobra.Command {
	var from uint64
	var count int
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the expected leader rotation for the configured validator set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadNodeConfig(flagConfig)
			if err != nil {
				return err
			}
			if err := cfg.ValidateBasic(); err != nil {
				return err
			}

			node, err := buildNode(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			schedule, err := node.engine.RotationSchedule(from, count)
			if err != nil {
				return err
			}
			for i, leader := range schedule {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", from+uint64(i), leader)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 1, "first height")
	cmd.Flags().IntVar(&count, "count", 20, "number of heights")
	return cmd
}

func phiCommand() *cobra.Command {
	var decimals int
	cmd := &cobra.Command{
		Use:   "phi",
		Short: "Print φ at the given precision, and the genesis weight ladder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadNodeConfig(flagConfig)
			if err != nil {
				return err
			}

			out := struct {
				Phi     string             `json:"phi"`
				Weights map[string]float64 `json:"weights"`
			}{
				Phi:     phimath.Phi(decimals),
				Weights: make(map[string]float64, len(cfg.Genesis)),
			}
			for i, gv := range cfg.Genesis {
				out.Weights[gv.Address] = phimath.Weight(uint64(i))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().IntVar(&decimals, "decimals", phimath.DefaultPhiDecimals, "decimal digits of φ")
	return cmd
}
