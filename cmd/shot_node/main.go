// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/shot_node/internal/app"
	"github.com/relabs-tech/shot_node/internal/config"
	"github.com/relabs-tech/shot_node/internal/event"
	"github.com/relabs-tech/shot_node/internal/magcal"
)

var (
	flagConfig   string
	flagDemo     bool
	flagAlwaysOn bool
	flagSampling string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "shot_node",
		Short:        "Shot detection node: IMU sampling, shot detection and magnetometer calibration",
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "KEY=VALUE config file (defaults when empty)")
	rootCmd.Flags().BoolVar(&flagDemo, "demo", false, "Run with simulated sensors (no hardware required)")
	rootCmd.Flags().BoolVar(&flagAlwaysOn, "always-on", false, "Keep sampling regardless of motion")
	rootCmd.Flags().StringVar(&flagSampling, "sampling", "", "Sampling mode: auto, on or off (overrides config)")

	calCmd := &cobra.Command{
		Use:   "calibration",
		Short: "Inspect the magnetometer calibration record",
	}
	calCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored calibration record",
		RunE:  showCalibration,
	})
	rootCmd.AddCommand(calCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.InitGlobal(flagConfig); err != nil {
		return nil, err
	}
	cfg := config.Get()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	log.Println("starting shot_node")

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if flagSampling != "" {
		mode, err := event.ParseSamplingMode(flagSampling)
		if err != nil {
			return err
		}
		cfg.SamplingMode = mode
	}
	if flagAlwaysOn {
		cfg.SamplingMode = event.SamplingOn
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunNode(ctx, cfg, flagDemo); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	log.Println("shot_node: shutting down")
	return nil
}

func showCalibration(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	err = app.ShowCalibration(cmd.Context(), cfg, cmd.OutOrStdout())
	if errors.Is(err, magcal.ErrNoCalibration) {
		cmd.PrintErrln("no calibration stored yet")
		return nil
	}
	return err
}
