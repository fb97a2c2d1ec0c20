package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
endpoints:
  - path: /
    script: /opt/run.sh
    secret: topsecret
`

func TestLockAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig)

	checksumPath, err := Lock(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".checksums"), checksumPath)

	// Locked and untouched: load succeeds
	_, err = Load(path)
	require.NoError(t, err)
}

func TestLoad_TamperedConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig)

	_, err := Lock(path)
	require.NoError(t, err)

	// Modify the config after locking
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig+"listen: \"0.0.0.0:80\"\n"), 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestLoad_NoChecksumsSkipsVerification(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalConfig)

	_, err := Load(path)
	require.NoError(t, err)
}

func TestComputeBlake3Hash_Deterministic(t *testing.T) {
	path := writeConfig(t, t.TempDir(), minimalConfig)

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	h2, err := ComputeBlake3Hash(path)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestLoadChecksums_BadVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".checksums"), []byte("version: 9\nhashes: {}\n"), 0o600))

	_, err := LoadChecksums(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported checksums version")
}
