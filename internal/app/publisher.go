// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Topics maps each report kind to its MQTT topic.
type Topics struct {
	Shot        string
	Mode        string
	Calibration string
}

func (t Topics) For(kind ReportKind) string {
	switch kind {
	case KindShot:
		return t.Shot
	case KindMode:
		return t.Mode
	case KindCalibration:
		return t.Calibration
	}
	return ""
}

// Publisher sends reports to an MQTT broker. It is the node's uplink.
type Publisher struct {
	client mqtt.Client
	topics Topics
}

// NewPublisher connects to broker.
func NewPublisher(broker, clientID string, topics Topics) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	log.Printf("publisher: connected to MQTT broker at %s", broker)

	return &Publisher{client: client, topics: topics}, nil
}

// Send publishes r without waiting for the broker. Calibration and mode
// reports are retained so late subscribers see the current state.
func (p *Publisher) Send(r Report) {
	topic := p.topics.For(r.Kind)
	if topic == "" {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		log.Printf("publisher: marshal %s report: %v", r.Kind, err)
		return
	}

	retained := r.Kind != KindShot
	token := p.client.Publish(topic, 1, retained, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Warnf("publisher: publish to %s: %v", topic, token.Error())
		}
	}()
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
