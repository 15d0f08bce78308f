package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRootHasSubcommands(t *testing.T) {
	root := buildRoot()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"up", "relay", "status", "stop", "events", "capture", "check"} {
		assert.Contains(t, names, want)
	}
}

func TestCheckReportsPresentAndAbsentHardware(t *testing.T) {
	dev := filepath.Join(t.TempDir(), "ttyACM0")
	require.NoError(t, os.WriteFile(dev, nil, 0o600))
	t.Setenv("ASTRA_LINK_PORT", dev)

	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"check"})

	// lidar and depth camera are absent on a test machine
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checks failed")
	assert.Contains(t, out.String(), dev)
	assert.Contains(t, out.String(), "lidar")
	assert.Contains(t, out.String(), "proximity snapshot")
}

func TestStatusPrintsAgentResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"components":[{"name":"bridge","running":true}]}`))
	}))
	defer srv.Close()

	cfgPath := filepath.Join(t.TempDir(), "rover.toml")
	listen := strings.TrimPrefix(srv.URL, "http://")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("[server]\nlisten = \""+listen+"\"\n"), 0o600))

	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"status", "--config", cfgPath})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"bridge"`)
}

func TestStatusUnreachableAgent(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rover.toml")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("[server]\nlisten = \"127.0.0.1:1\"\n"), 0o600))

	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"status", "--config", cfgPath})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}
