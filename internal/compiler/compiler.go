// Package compiler implements spec §4.4's CompilerDriver: an opaque
// compile(version, standardJsonInput) -> standardJsonOutput capability
// with interchangeable local-process and remote-function
// implementations, grounded on the standard-JSON-input construction the
// teacher's foundry builder performs for Solidity verification.
package compiler

import (
	"context"
	"encoding/json"
)

// StandardJSONInput is the subset of solc's standard-json-input format
// spec §4.6 step 1 needs: sources, language, and settings including the
// output selection forced to include the artifacts bytecode comparison
// needs.
type StandardJSONInput struct {
	Language string                `json:"language"`
	Sources  map[string]SourceJSON `json:"sources"`
	Settings SettingsJSON          `json:"settings"`
}

// SourceJSON is one entry of the standard-json-input sources map.
type SourceJSON struct {
	Content string `json:"content"`
}

// SettingsJSON is the settings block of a standard-json-input document.
type SettingsJSON struct {
	CompilationTarget map[string]string              `json:"compilationTarget,omitempty"`
	EVMVersion        string                         `json:"evmVersion,omitempty"`
	Optimizer         json.RawMessage                `json:"optimizer,omitempty"`
	Libraries         map[string]map[string]string   `json:"libraries,omitempty"`
	OutputSelection   map[string]map[string][]string `json:"outputSelection"`
	Remappings        []string                       `json:"remappings,omitempty"`
	Metadata          json.RawMessage                `json:"metadata,omitempty"`
}

// OutputSelectionForVerification is the fixed output selection spec
// §4.6 step 1 requires: deployedBytecode, bytecode, and the two
// reference maps needed for library linking and immutable masking.
func OutputSelectionForVerification() map[string]map[string][]string {
	return map[string]map[string][]string{
		"*": {
			"*": {
				"evm.deployedBytecode",
				"evm.deployedBytecode.immutableReferences",
				"evm.bytecode",
				"evm.bytecode.linkReferences",
				"abi",
			},
		},
	}
}

// StandardJSONOutput is the subset of solc's standard-json-output this
// system reads back.
type StandardJSONOutput struct {
	Errors   []OutputError                    `json:"errors,omitempty"`
	Contracts map[string]map[string]OutputContract `json:"contracts"`
}

// OutputError is one entry of standard-json-output's errors array.
type OutputError struct {
	Severity string `json:"severity"` // "error" or "warning"
	Message  string `json:"formattedMessage"`
}

// IsFatal reports whether e represents a fatal compiler error rather
// than a warning, per spec §4.4's compiler-warning being non-fatal.
func (e OutputError) IsFatal() bool {
	return e.Severity == "error"
}

// OutputContract is one contract's entry within standard-json-output.
type OutputContract struct {
	ABI json.RawMessage `json:"abi"`
	EVM struct {
		Bytecode struct {
			Object         string                       `json:"object"`
			LinkReferences map[string]map[string][]Range `json:"linkReferences"`
		} `json:"bytecode"`
		DeployedBytecode struct {
			Object              string                       `json:"object"`
			LinkReferences      map[string]map[string][]Range `json:"linkReferences"`
			ImmutableReferences map[string][]Range             `json:"immutableReferences"`
		} `json:"deployedBytecode"`
	} `json:"evm"`
}

// Range is a byte offset/length pair as solc emits it for link and
// immutable references.
type Range struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Driver is the CompilerDriver capability of spec §4.4.
type Driver interface {
	Compile(ctx context.Context, version string, input StandardJSONInput) (*StandardJSONOutput, error)
}
