package compiler

import (
	"encoding/json"

	"github.com/chainproof/verify/internal/contractmeta"
)

// metadataSettings mirrors the fields of a solc metadata document's
// settings block that a standard-json-input recompilation needs to
// reproduce, beyond the compilationTarget already parsed onto Metadata.
type metadataSettings struct {
	EVMVersion string                       `json:"evmVersion,omitempty"`
	Optimizer  json.RawMessage              `json:"optimizer,omitempty"`
	Libraries  map[string]map[string]string `json:"libraries,omitempty"`
	Metadata   json.RawMessage              `json:"metadata,omitempty"`
}

// BuildInput reconstructs a standard-json-input document from a
// CheckedContract's metadata and sources, forcing the output selection
// spec §4.6 step 1 requires. This mirrors the teacher's foundry builder
// GeneratePerContractStandardJSON, generalized from Foundry project
// settings to solc metadata settings.
func BuildInput(cc *contractmeta.CheckedContract, libraryOverrides map[string]map[string]string) StandardJSONInput {
	sources := make(map[string]SourceJSON, len(cc.Sources))
	for path, content := range cc.Sources {
		sources[path] = SourceJSON{Content: string(content)}
	}

	var declared metadataSettings
	_ = json.Unmarshal(cc.Metadata.Settings, &declared)

	libraries := declared.Libraries
	if libraryOverrides != nil {
		libraries = libraryOverrides
	}

	settings := SettingsJSON{
		CompilationTarget: map[string]string{
			cc.Metadata.Target.Path: cc.Metadata.Target.Contract,
		},
		EVMVersion:      declared.EVMVersion,
		Optimizer:       declared.Optimizer,
		Libraries:       libraries,
		OutputSelection: OutputSelectionForVerification(),
		Metadata:        declared.Metadata,
	}

	return StandardJSONInput{
		Language: cc.Metadata.Language,
		Sources:  sources,
		Settings: settings,
	}
}
