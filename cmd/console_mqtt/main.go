// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/shot_node/internal/app"
	"github.com/relabs-tech/shot_node/internal/config"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:          "console_mqtt",
		Short:        "Print shot_node reports from the MQTT broker",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Println("starting shot_node console (MQTT subscriber)")

			if err := config.InitGlobal(configPath); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg := config.Get()
			if cfg.MQTTBroker == "" {
				return fmt.Errorf("MQTT_BROKER is required for the console")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			topics := app.Topics{
				Shot:        cfg.TopicShot,
				Mode:        cfg.TopicMode,
				Calibration: cfg.TopicCalibration,
			}
			return app.RunConsoleMQTT(ctx, cfg.MQTTBroker, cfg.MQTTClientIDConsole, topics, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "shot_node_config.txt", "KEY=VALUE config file")

	if err := cmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
