//go:build !embed
// +build !embed

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEmbeddedModelFiles_NothingEmbedded(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")

	n, err := extractEmbeddedModelFiles(modelFiles, dir)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoDirExists(t, dir)
}
