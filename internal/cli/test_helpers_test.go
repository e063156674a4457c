package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trigsync/internal/engine"
)

const alignedFeed = `
sources:
  - name: gl1
    category: gl1
    reference: true
    runs:
      - {from: 1, to: 3, clock: 100, step: 10, id: 14001}
  - name: seb00
    category: calo
    runs:
      - {from: 1, to: 3, clock: 98, step: 10, id: 6001}
  - name: seb01
    category: calo
    runs:
      - {from: 1, to: 3, clock: 103, step: 10, id: 6002}
`

const smallConfig = `
initial_pool_depth: 4
pool_depth: 4
calibration_window: 2
run_number: 7
`

const passingScenario = `
name: aligned
description: one calorimeter stream aligns on the gl1 reference
config:
  initial_pool_depth: 4
  pool_depth: 4
  calibration_window: 2
feed:
  sources:
    - name: gl1
      category: gl1
      reference: true
      runs:
        - {from: 1, to: 2, clock: 100, step: 10, id: 14001}
    - name: seb00
      category: calo
      runs:
        - {from: 1, to: 2, clock: 98, step: 10, id: 6001}
assertions:
  - {type: emitted, events: [1, 2]}
`

const failingScenario = `
name: wrong-expectation
description: expects an event the feed never carries
config:
  initial_pool_depth: 4
  pool_depth: 4
  calibration_window: 2
feed:
  sources:
    - name: gl1
      category: gl1
      reference: true
      runs:
        - {from: 1, to: 2, clock: 100, step: 10, id: 14001}
assertions:
  - {type: emitted, events: [1, 2, 3]}
`

// writeFile writes content to dir/name, creating parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// newTestRunCommand returns a run command with a fixed run token.
func newTestRunCommand(format, token string) *cobra.Command {
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: format},
		Tokens:      engine.NewFixedGenerator(token),
		IdleWait:    time.Millisecond,
	}
	return newRunCommand(opts)
}
