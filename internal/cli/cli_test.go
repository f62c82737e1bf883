package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

type testDirs struct {
	config string
	data   string
}

func newTestDirs(t *testing.T) testDirs {
	t.Helper()
	root := t.TempDir()
	return testDirs{config: filepath.Join(root, "config"), data: filepath.Join(root, "data")}
}

// run executes one CLI invocation against dirs and returns its stdout.
func (d testDirs) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config-dir", d.config, "--data-dir", d.data}, args...))
	err := root.Execute()
	return out.String(), err
}

func (d testDirs) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := d.run(t, args...)
	require.NoError(t, err, "mosaic %s", strings.Join(args, " "))
	return out
}

func (d testDirs) mustJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out := d.mustRun(t, append([]string{"--json"}, args...)...)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestInit(t *testing.T) {
	d := newTestDirs(t)
	out := d.mustRun(t, "init")
	assert.Contains(t, out, "Mosaic initialized successfully")

	cfg, err := os.ReadFile(filepath.Join(d.config, configFileExt))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "backend: sqlite")
	assert.Contains(t, string(cfg), "initial_placement: centre")

	for _, name := range []string{"canvases.jsonl", "cells.jsonl", "edits.jsonl"} {
		assert.FileExists(t, filepath.Join(d.data, name))
	}

	d.mustRun(t, "init")
}

func TestVersion(t *testing.T) {
	d := newTestDirs(t)
	out := d.mustRun(t, "version")
	assert.Contains(t, out, "mosaic v")
	assert.Contains(t, out, modulePath)
	assert.NoDirExists(t, d.config, "version does not touch the config directory")
}

func TestCanvasWorkflow(t *testing.T) {
	d := newTestDirs(t)

	var canvas types.Canvas
	d.mustJSON(t, &canvas, "canvas", "create", "--title", "Test Wall",
		"--width", "2", "--height", "2", "--cell-width", "1", "--cell-height", "1")
	assert.Equal(t, "test-wall", canvas.Slug)
	assert.Equal(t, types.TopologyGrid, canvas.Topology())

	out := d.mustRun(t, "canvas", "list")
	assert.Contains(t, out, "test-wall")
	assert.Contains(t, out, "2x2")

	out = d.mustRun(t, "canvas", "show", "test-wall")
	assert.Contains(t, out, "Cells:     4 (0 assigned)")

	var alice types.Cell
	d.mustJSON(t, &alice, "cell", "assign", "test-wall", "alice")
	assert.Equal(t, "alice", alice.Owner())
	assert.Equal(t, types.Coord{}, alice.Coord())

	var again types.Cell
	d.mustJSON(t, &again, "cell", "assign", canvas.CanvasID, "alice")
	assert.Equal(t, alice.CellID, again.CellID)

	// Size-1 lattice: the east column is vertical[1].
	edges := `{"horizontal":[0,0],"vertical":[0,1],"south_east":[1],"south_west":[0]}`
	var edit types.Edit
	d.mustJSON(t, &edit, "edit", "submit", alice.CellID, "--author", "alice", "--edges", edges)
	assert.Equal(t, []int{0, 1}, edit.Vertical)

	var history []*types.Edit
	d.mustJSON(t, &history, "edit", "history", alice.CellID)
	require.Len(t, history, 2)
	assert.Equal(t, edit.EditID, history[1].EditID)

	var neighbours map[string]*types.Cell
	d.mustJSON(t, &neighbours, "cell", "neighbours", alice.CellID)
	east := neighbours["east"]
	require.NotNil(t, east)

	var latest types.Edit
	d.mustJSON(t, &latest, "edit", "latest", east.CellID)
	assert.Equal(t, []int{1, 0}, latest.Vertical, "the shared edge propagated east")
	assert.Equal(t, "alice", latest.Author())

	var delta types.Edges
	d.mustJSON(t, &delta, "edit", "delta", edit.EditID)
	assert.Equal(t, []int{0, 1}, delta.Vertical)
	assert.Equal(t, []int{1}, delta.SouthEast)

	d.mustRun(t, "edit", "invalidate", edit.EditID)
	d.mustJSON(t, &latest, "edit", "latest", alice.CellID)
	assert.NotEqual(t, edit.EditID, latest.EditID)
	d.mustRun(t, "edit", "validate", edit.EditID)

	out = d.mustRun(t, "edit", "replay", alice.CellID)
	assert.Contains(t, out, "Replayed 2 valid states")

	_, err := d.run(t, "edit", "submit", alice.CellID, "--author", "mallory", "--edges", edges)
	assert.ErrorIs(t, err, types.ErrPermission)
	assert.Equal(t, exitUserError, exitCode(err))

	d.mustRun(t, "canvas", "expand", "test-wall", "--width", "3")
	out = d.mustRun(t, "cell", "list", "test-wall")
	assert.Equal(t, 7, strings.Count(out, "\n"), "header plus six cells:\n%s", out)

	d.mustRun(t, "canvas", "delete", "test-wall")
	_, err = d.run(t, "canvas", "show", "test-wall")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestEditSubmit_FromFile(t *testing.T) {
	d := newTestDirs(t)
	var canvas types.Canvas
	d.mustJSON(t, &canvas, "canvas", "create", "--title", "Garden", "--cell-width", "1", "--cell-height", "1")
	assert.Equal(t, types.TopologyOrganic, canvas.Topology())

	var cell types.Cell
	d.mustJSON(t, &cell, "cell", "assign", "garden", "root")

	path := filepath.Join(t.TempDir(), "edges.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"horizontal":[1,0],"vertical":[0,0],"south_east":[0],"south_west":[0]}`), 0o644))
	out := d.mustRun(t, "edit", "submit", cell.CellID, "--author", "root", "--file", path)
	assert.Contains(t, out, "Submitted edit")
}

func TestUsageErrors(t *testing.T) {
	d := newTestDirs(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing title", []string{"canvas", "create"}},
		{"bad start time", []string{"canvas", "create", "--title", "x", "--start", "yesterday"}},
		{"wrong arg count", []string{"cell", "assign", "only-canvas"}},
		{"unknown flag", []string{"canvas", "list", "--colour", "red"}},
		{"no edges", []string{"edit", "submit", "c1", "--author", "a"}},
		{"both edge sources", []string{"edit", "submit", "c1", "--author", "a", "--edges", "{}", "--file", "x"}},
		{"torus too small", []string{"canvas", "create", "--title", "ring", "--width", "2", "--height", "2", "--torus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, exitUserError, exitCode(err))
		})
	}
}

func TestConfigOptions(t *testing.T) {
	d := newTestDirs(t)
	require.NoError(t, os.MkdirAll(d.config, 0o755))
	cfg := "backend: sqlite\ninitial_placement: sideways\n"
	require.NoError(t, os.WriteFile(filepath.Join(d.config, configFileExt), []byte(cfg), 0o644))

	_, err := d.run(t, "canvas", "list")
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, exitUserError, exitCode(err))

	cfg = "backend: sqlite\nlog_format: xml\n"
	require.NoError(t, os.WriteFile(filepath.Join(d.config, configFileExt), []byte(cfg), 0o644))
	_, err = d.run(t, "canvas", "list")
	assert.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"usage", usageError{errors.New("bad flag")}, exitUserError},
		{"system", systemError{errors.New("disk full")}, exitSysError},
		{"full grid", fmt.Errorf("assign: %w", types.ErrFullGrid), exitUserError},
		{"cell owned", &types.CellOwnedError{OwnerID: "x"}, exitUserError},
		{"unclassified", errors.New("boom"), exitSysError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
