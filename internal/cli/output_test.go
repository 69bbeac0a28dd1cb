package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", map[string]string{"status": "ok"}))
	require.Contains(t, buf.String(), `"status":"ok"`)
}

func TestWriteOutputYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "yaml", map[string]string{"status": "ok"}))
	require.Contains(t, buf.String(), "status: ok")
}

func TestWriteOutputUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := writeOutput(&buf, "xml", map[string]string{"status": "ok"})
	require.Error(t, err)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["verify"])
	require.True(t, names["session"])
}
