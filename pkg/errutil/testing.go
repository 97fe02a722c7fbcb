// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
// oops reports the code closest to the root cause.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertErrorFields asserts that err carries code and every key/value in fields.
// Rejections in this module always name the room and often the user, so tests
// check the whole set at once.
func AssertErrorFields(t *testing.T, err error, code string, fields map[string]any) {
	t.Helper()
	AssertErrorCode(t, err, code)
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return
	}
	ctx := oopsErr.Context()
	for key, want := range fields {
		got, found := ctx[key]
		if assert.True(t, found, "missing context key %q", key) {
			assert.Equal(t, want, got, "context key %q", key)
		}
	}
}
