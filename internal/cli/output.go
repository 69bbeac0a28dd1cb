package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// writeOutput renders data as JSON or YAML depending on format ("json",
// the default, or "yaml"). JSON is compacted when stdout isn't a
// terminal, e.g. piped into jq, and indented for interactive use.
func writeOutput(w io.Writer, format string, data any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(data)
	case "", "json":
		enc := json.NewEncoder(w)
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format %q, want json or yaml", format)
	}
}
