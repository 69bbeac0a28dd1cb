// Package matcher implements spec §4.6's BytecodeMatcher, the
// algorithmic centerpiece of the verification pipeline: recompiling,
// linking libraries, stripping metadata, masking immutables, and
// comparing runtime/creation bytecode, grounded on the teacher's
// evm/verify.go metadata-stripping and library-substitution routines.
package matcher

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/chainproof/verify/internal/compiler"
	"github.com/chainproof/verify/internal/contenthash"
	"github.com/chainproof/verify/internal/contractmeta"
	"github.com/chainproof/verify/internal/verifyerr"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Outcome is the tri-state classification of spec §4.6 step 5/6.
type Outcome string

const (
	OutcomePerfect           Outcome = "perfect"
	OutcomePartial           Outcome = "partial"
	OutcomeExtraFileInputBug Outcome = "extra-file-input-bug"
	OutcomeNone              Outcome = ""
)

// OnchainInfo is what the coordinator has fetched about the deployed
// contract before delegating to the matcher.
type OnchainInfo struct {
	RuntimeCode  []byte
	CreationCode []byte // full creation transaction input, if known
}

// Match is the outcome of matching a CheckedContract against on-chain
// bytecode, per spec §3's Match type.
type Match struct {
	RuntimeMatch                   Outcome
	CreationMatch                  Outcome
	LibraryMap                     map[string]string
	ImmutableReferences            map[string]string
	ABIEncodedConstructorArguments []byte
	Message                        string
}

// Matcher owns the CompilerDriver used to recompile a CheckedContract.
type Matcher struct {
	Driver compiler.Driver
}

// New builds a Matcher over the given CompilerDriver.
func New(driver compiler.Driver) *Matcher {
	return &Matcher{Driver: driver}
}

// Match runs the full procedure of spec §4.6 against cc and the given
// on-chain bytecode. libraryAddresses, if non-nil, are user-declared
// library placements from metadata settings (file -> lib name -> hex
// address, no 0x prefix).
func (m *Matcher) Match(ctx context.Context, cc *contractmeta.CheckedContract, onchain OnchainInfo, libraryAddresses map[string]map[string]string) (*Match, error) {
	if !cc.IsValid() {
		return nil, verifyerr.New(verifyerr.KindBadInput, "checked contract has missing or invalid sources")
	}
	if len(onchain.RuntimeCode) == 0 {
		return &Match{RuntimeMatch: OutcomeNone, Message: "no bytecode at address"}, nil
	}

	input := compiler.BuildInput(cc, toSolcLibraries(libraryAddresses))
	output, err := m.Driver.Compile(ctx, cc.Metadata.CompilerVersion, input)
	if err != nil {
		return nil, err
	}

	contractOut, err := selectContractOutput(output, cc.Metadata.Target)
	if err != nil {
		return nil, err
	}

	runtimeBytecode, err := hex.DecodeString(trimHex(contractOut.EVM.DeployedBytecode.Object))
	if err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindCompilerError, err)
	}
	creationBytecode, err := hex.DecodeString(trimHex(contractOut.EVM.Bytecode.Object))
	if err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindCompilerError, err)
	}

	match := &Match{LibraryMap: map[string]string{}, ImmutableReferences: map[string]string{}}

	linkedRuntime, err := linkLibraries(runtimeBytecode, contractOut.EVM.DeployedBytecode.LinkReferences, libraryAddresses, onchain.RuntimeCode, match.LibraryMap)
	if err != nil {
		return nil, err
	}
	linkedCreation, err := linkLibraries(creationBytecode, contractOut.EVM.Bytecode.LinkReferences, libraryAddresses, onchain.CreationCode, match.LibraryMap)
	if err != nil {
		return nil, err
	}
	if hasLibraryPlaceholders(linkedRuntime) || hasLibraryPlaceholders(linkedCreation) {
		return nil, verifyerr.New(verifyerr.KindBadInput, "unresolved library placeholder in compiled bytecode")
	}

	runtimeOutcome, immutables, err := compareRuntime(linkedRuntime, onchain.RuntimeCode, contractOut.EVM.DeployedBytecode.ImmutableReferences)
	if err != nil {
		return nil, err
	}
	match.RuntimeMatch = runtimeOutcome
	for id, val := range immutables {
		match.ImmutableReferences[id] = "0x" + hex.EncodeToString(val)
	}

	if len(onchain.CreationCode) > 0 {
		creationOutcome, ctorArgs, err := compareCreation(linkedCreation, onchain.CreationCode)
		if err != nil {
			return nil, err
		}
		match.CreationMatch = creationOutcome
		match.ABIEncodedConstructorArguments = ctorArgs
	}

	return match, nil
}

func toSolcLibraries(addrs map[string]map[string]string) map[string]map[string]string {
	if addrs == nil {
		return nil
	}
	out := make(map[string]map[string]string, len(addrs))
	for file, libs := range addrs {
		inner := make(map[string]string, len(libs))
		for name, addr := range libs {
			inner[name] = "0x" + trimHex(addr)
		}
		out[file] = inner
	}
	return out
}

func selectContractOutput(output *compiler.StandardJSONOutput, target contractmeta.CompilationTarget) (*compiler.OutputContract, error) {
	byFile, ok := output.Contracts[target.Path]
	if !ok {
		return nil, verifyerr.New(verifyerr.KindCompilerError, fmt.Sprintf("no compiled output for %s", target.Path))
	}
	c, ok := byFile[target.Contract]
	if !ok {
		return nil, verifyerr.New(verifyerr.KindCompilerError, fmt.Sprintf("no compiled output for contract %s", target.Contract))
	}
	return &c, nil
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// placeholderFor computes solc's library placeholder token for a fully
// qualified library name: __$<34 hex chars of keccak256(name)>$__.
func placeholderFor(fqName string) string {
	h := crypto.Keccak256([]byte(fqName))
	return "__$" + hex.EncodeToString(h)[:34] + "$__"
}

// linkLibraries implements spec §4.6 step 2: replace each library
// placeholder with its declared address; if unresolved and the on-chain
// code has concrete bytes in that slot, recover the address from there
// and record it in libraryMap.
func linkLibraries(code []byte, linkRefs map[string]map[string][]compiler.Range, declared map[string]map[string]string, onchain []byte, libraryMap map[string]string) ([]byte, error) {
	if len(linkRefs) == 0 {
		return code, nil
	}
	out := append([]byte(nil), code...)
	for file, libs := range linkRefs {
		for lib, ranges := range libs {
			addrHex, hasAddr := "", false
			if inner, ok := declared[file]; ok {
				if a, ok := inner[lib]; ok {
					addrHex, hasAddr = trimHex(a), true
				}
			}
			for _, r := range ranges {
				if r.Start+r.Length > len(out) {
					return nil, verifyerr.New(verifyerr.KindCompilerError, "link reference out of bounds")
				}
				if hasAddr {
					addrBytes, err := hex.DecodeString(addrHex)
					if err != nil || len(addrBytes) != r.Length {
						return nil, verifyerr.New(verifyerr.KindCompilerError, fmt.Sprintf("invalid library address for %s", lib))
					}
					copy(out[r.Start:r.Start+r.Length], addrBytes)
					libraryMap[file+":"+lib] = "0x" + addrHex
				} else if onchain != nil && r.Start+r.Length <= len(onchain) {
					recovered := onchain[r.Start : r.Start+r.Length]
					copy(out[r.Start:r.Start+r.Length], recovered)
					libraryMap[file+":"+lib] = common.BytesToAddress(recovered).Hex()
				}
			}
		}
	}
	return out, nil
}

// hasLibraryPlaceholders reports whether raw bytecode still contains an
// unresolved __$...$__ placeholder token.
func hasLibraryPlaceholders(code []byte) bool {
	return bytes.Contains(code, []byte("__$"))
}

// compareRuntime implements spec §4.6 steps 3-5 for the runtime
// (deployed) bytecode.
func compareRuntime(compiled, onchain []byte, immutableRefs map[string][]compiler.Range) (Outcome, map[string][]byte, error) {
	compiledTrailer, compiledBody, _ := contenthash.SplitTrailer(compiled)
	onchainTrailer, onchainBody, _ := contenthash.SplitTrailer(onchain)

	maskedCompiled, _ := maskImmutables(compiledBody, immutableRefs)
	maskedOnchain, onchainValues := maskImmutables(onchainBody, immutableRefs)

	outcome, err := compareBodies(maskedCompiled, maskedOnchain)
	if err != nil {
		return OutcomeNone, nil, err
	}
	if outcome == OutcomePerfect && !bytes.Equal(compiledTrailer, onchainTrailer) {
		outcome = OutcomePartial
	}
	if outcome == OutcomePerfect || outcome == OutcomePartial {
		return outcome, onchainValues, nil
	}
	return outcome, nil, nil
}

// compareCreation implements spec §4.6 step 6: align compiled creation
// bytecode against the deployment transaction's calldata, and ABI-decode
// the tail as constructor arguments.
func compareCreation(compiled, txInput []byte) (Outcome, []byte, error) {
	if len(txInput) < len(compiled) {
		if bytes.Equal(txInput, compiled[:len(txInput)]) {
			return OutcomePartial, nil, nil
		}
		return OutcomeNone, nil, nil
	}

	prefix := txInput[:len(compiled)]
	tail := txInput[len(compiled):]

	outcome, _, err := compareRuntime(compiled, prefix, nil)
	if err != nil {
		return OutcomeNone, nil, err
	}
	return outcome, tail, nil
}

// compareBodies compares two trailer-stripped code bodies: equal bytes,
// or a shorter compiled body whose extra on-chain bytes are all zero,
// give perfect; a longer compiled body that starts with the on-chain
// bytes gives extra-file-input-bug; anything else gives none. It never
// returns partial; compareRuntime derives that from the trailers.
func compareBodies(compiled, onchain []byte) (Outcome, error) {
	if bytes.Equal(compiled, onchain) {
		return OutcomePerfect, nil
	}
	if len(compiled) < len(onchain) {
		if bytes.Equal(compiled, onchain[:len(compiled)]) && isAllZero(onchain[len(compiled):]) {
			return OutcomePerfect, nil
		}
		return OutcomeNone, nil
	}
	if len(compiled) > len(onchain) {
		if bytes.Equal(compiled[:len(onchain)], onchain) {
			return OutcomeExtraFileInputBug, nil
		}
		return OutcomeNone, nil
	}
	return OutcomeNone, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// maskImmutables implements spec §4.6 step 4: zero out immutable
// reference spans before comparison, capturing the on-chain values.
func maskImmutables(code []byte, refs map[string][]compiler.Range) ([]byte, map[string][]byte) {
	out := append([]byte(nil), code...)
	values := make(map[string][]byte)
	for id, ranges := range refs {
		for _, r := range ranges {
			if r.Start+r.Length > len(out) {
				continue
			}
			values[id] = append([]byte(nil), out[r.Start:r.Start+r.Length]...)
			for i := r.Start; i < r.Start+r.Length; i++ {
				out[i] = 0
			}
		}
	}
	return out, values
}

// DecodeConstructorArgs ABI-decodes the tail of a creation transaction
// against the constructor's declared input types, per spec §12.4.
func DecodeConstructorArgs(contractABI abi.ABI, encoded []byte) ([]interface{}, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	args, err := contractABI.Constructor.Inputs.Unpack(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding constructor arguments: %w", err)
	}
	return args, nil
}
