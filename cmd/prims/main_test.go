package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/prims/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"-h"}))
	assert.Contains(t, out.String(), "-executor")
}

func TestRun_BadFlag(t *testing.T) {
	err := run(&bytes.Buffer{}, []string{"-engine", "tpu", "x.hcl"})
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestRun_Program(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
input "a" {
  shape = [2]
  data  = [1, 2]
}
function "double" {
  param "x" {}
  result = add(x, x)
}
run {
  function = "double"
  args     = [a]
}
`), 0o600))

	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"-engine", "host", "-executor", "fusion", "-log-level", "error", path}))
	assert.Equal(t, "float32[2] [2 4]\n", out.String())
}
