// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var (
	styleShot = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF3300"))
	styleMode = lipgloss.NewStyle().Foreground(lipgloss.Color("#00CC33"))
	styleCal  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("#008F11"))
)

// RunConsoleMQTT subscribes to the node's report topics and prints every
// report to out until ctx is done.
func RunConsoleMQTT(ctx context.Context, broker, clientID string, topics Topics, out io.Writer) error {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", broker)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var r Report
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: %s unmarshal error: %v", msg.Topic(), err)
			return
		}
		fmt.Fprintln(out, formatReport(r))
	}

	for _, topic := range []string{topics.Shot, topics.Mode, topics.Calibration} {
		if topic == "" {
			continue
		}
		token := client.Subscribe(topic, 1, handler)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", topic)
	}

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}

func formatReport(r Report) string {
	ts := styleDim.Render(r.Time.Local().Format("15:04:05.000"))

	var line string
	switch r.Kind {
	case KindShot:
		if r.Shot == nil {
			return ts + " [SHOT]"
		}
		line = styleShot.Render(fmt.Sprintf("[SHOT %3d]", r.Shot.Number)) +
			fmt.Sprintf(" energy=%8.1f force=%6.1fm/s² samples=%d", r.Shot.PeakEnergy, r.Shot.PeakForce, r.Shot.Samples)
	case KindMode:
		line = styleMode.Render("[MODE]") + fmt.Sprintf(" %s sampling=%s", r.Mode, r.SamplingMode)
	case KindCalibration:
		line = styleCal.Render("[CAL ]")
		if c := r.Calibration; c != nil {
			line += fmt.Sprintf(" offset=(%.2f, %.2f, %.2f) scale=(%.3f, %.3f, %.3f)",
				c.Ox, c.Oy, c.Oz, c.Sx, c.Sy, c.Sz)
		}
	default:
		line = fmt.Sprintf("[%s]", r.Kind)
	}

	if r.Fix != nil {
		line += styleDim.Render(fmt.Sprintf(" @ %.6f,%.6f", r.Fix.Latitude, r.Fix.Longitude))
	}
	return ts + " " + line
}
