package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/chainproof/verify/internal/observability/metrics"
	"github.com/chainproof/verify/internal/verifyerr"
)

// LocalDriver invokes a solc binary found under BinDir, named
// "solc-<version>", passing standard-json-input on stdin, matching
// spec §4.4's local-process implementation.
type LocalDriver struct {
	BinDir string
}

// NewLocalDriver builds a LocalDriver rooted at binDir.
func NewLocalDriver(binDir string) *LocalDriver {
	return &LocalDriver{BinDir: binDir}
}

func (d *LocalDriver) binPath(version string) string {
	return filepath.Join(d.BinDir, "solc-"+version)
}

// Compile implements Driver.
func (d *LocalDriver) Compile(ctx context.Context, version string, input StandardJSONInput) (*StandardJSONOutput, error) {
	bin := d.binPath(version)
	if _, err := os.Stat(bin); err != nil {
		metrics.RecordCompilerInvocation("local", "unavailable")
		return nil, verifyerr.New(verifyerr.KindCompilerUnavailable, fmt.Sprintf("solc %s not installed", version))
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindCompilerError, err)
	}

	cmd := exec.CommandContext(ctx, bin, "--standard-json")
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		metrics.RecordCompilerInvocation("local", "error")
		return nil, verifyerr.New(verifyerr.KindCompilerError, fmt.Sprintf("solc invocation failed: %v: %s", err, stderr.String()))
	}

	var out StandardJSONOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		metrics.RecordCompilerInvocation("local", "error")
		return nil, verifyerr.Wrap(verifyerr.KindCompilerError, err)
	}
	for _, e := range out.Errors {
		if e.IsFatal() {
			metrics.RecordCompilerInvocation("local", "error")
			return &out, verifyerr.New(verifyerr.KindCompilerError, e.Message)
		}
	}
	metrics.RecordCompilerInvocation("local", "success")
	return &out, nil
}
