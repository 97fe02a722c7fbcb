// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/todochat/pkg/errutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGenSchemaWritesFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "nested", "client.schema.json")

	out, err := execute(t, "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	want, err := renderSchema()
	require.NoError(t, err)
	assert.Equal(t, want, data)
	assert.Contains(t, string(data), `"typing_start"`)
}

func TestGenSchemaCheck(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "client.schema.json")

	_, err := execute(t, "--check", "-o", outPath)
	errutil.AssertErrorFields(t, err, "SCHEMA_STALE", map[string]any{"path": outPath})

	_, err = execute(t, "-o", outPath)
	require.NoError(t, err)
	out, err := execute(t, "--check", "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "is up to date")

	require.NoError(t, os.WriteFile(outPath, []byte("{}\n"), 0o600))
	_, err = execute(t, "--check", "-o", outPath)
	errutil.AssertErrorCode(t, err, "SCHEMA_STALE")
}

func TestGenSchemaRejectsArgs(t *testing.T) {
	_, err := execute(t, "extra")
	assert.Error(t, err)
}
