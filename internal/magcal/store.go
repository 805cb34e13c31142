// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// ErrNoCalibration is returned by Load when nothing has been stored yet.
var ErrNoCalibration = errors.New("magcal: no stored calibration")

// Store persists one calibration record.
type Store interface {
	Load(ctx context.Context) (Calibration, error)
	Save(ctx context.Context, c Calibration) error
}

// LoadOrDefault loads the stored record. A missing or unreadable record
// yields the zero record (Initialised=false) so the node can still start.
func LoadOrDefault(ctx context.Context, s Store) Calibration {
	c, err := s.Load(ctx)
	switch {
	case err == nil:
		log.WithFields(log.Fields{
			"initialised": c.Initialised,
			"ox":          c.Ox,
			"oy":          c.Oy,
			"oz":          c.Oz,
			"sx":          c.Sx,
			"sy":          c.Sy,
			"sz":          c.Sz,
		}).Info("magcal: calibration loaded")
		return c
	case errors.Is(err, ErrNoCalibration):
		log.Println("magcal: no stored calibration, starting uncalibrated")
	default:
		log.Warnf("magcal: stored calibration unusable, starting uncalibrated: %v", err)
	}
	return Calibration{}
}

// FileStore keeps the record as JSON on disk.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(ctx context.Context) (Calibration, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Calibration{}, ErrNoCalibration
	}
	if err != nil {
		return Calibration{}, fmt.Errorf("magcal: read %s: %w", s.Path, err)
	}

	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return Calibration{}, fmt.Errorf("magcal: parse %s: %w", s.Path, err)
	}
	return c, nil
}

// Save writes to a temp file and renames it over the old record.
func (s *FileStore) Save(ctx context.Context, c Calibration) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("magcal: marshal: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("magcal: create %s: %w", dir, err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("magcal: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("magcal: rename %s: %w", tmp, err)
	}
	return nil
}

// RedisStore keeps the record as JSON under <prefix>:mag_calibration.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "shot_node"
	}
	return &RedisStore{client: client, key: prefix + ":mag_calibration"}
}

func (s *RedisStore) Load(ctx context.Context) (Calibration, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Calibration{}, ErrNoCalibration
	}
	if err != nil {
		return Calibration{}, fmt.Errorf("magcal: redis get %s: %w", s.key, err)
	}

	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return Calibration{}, fmt.Errorf("magcal: parse %s: %w", s.key, err)
	}
	return c, nil
}

func (s *RedisStore) Save(ctx context.Context, c Calibration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("magcal: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("magcal: redis set %s: %w", s.key, err)
	}
	return nil
}
