// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/todochat/internal/config"
)

// mockMigrator implements Migrator for testing.
type mockMigrator struct {
	upCalled    bool
	upError     error
	downCalled  bool
	version     uint
	dirty       bool
	forced      *int
	pending     []uint
	closeCalled bool
	closeError  error
}

func (m *mockMigrator) Up() error {
	m.upCalled = true
	return m.upError
}

func (m *mockMigrator) Down() error {
	m.downCalled = true
	return nil
}

func (m *mockMigrator) Version() (uint, bool, error) {
	return m.version, m.dirty, nil
}

func (m *mockMigrator) Force(version int) error {
	m.forced = &version
	return nil
}

func (m *mockMigrator) PendingMigrations() ([]uint, error) {
	return m.pending, nil
}

func (m *mockMigrator) Close() error {
	m.closeCalled = true
	return m.closeError
}

var errBoom = errors.New("boom")

// loadTestConfig loads configuration from a YAML document, isolated from
// the environment of the machine running the tests.
func loadTestConfig(t *testing.T, doc string) (*config.Config, error) {
	t.Helper()
	for _, name := range []string{config.EnvDatabaseURL, config.EnvRedisURL, config.EnvTriggerToken} {
		t.Setenv(name, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return config.Load(config.Options{ConfigFile: path, EnvFiles: []string{}})
}

// staticLoader returns a ConfigLoader that always yields cfg.
func staticLoader(cfg *config.Config, err error) func(config.Options) (*config.Config, error) {
	return func(config.Options) (*config.Config, error) {
		return cfg, err
	}
}

func discardLogger(config.LogConfig) (*slog.Logger, error) {
	return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
}
