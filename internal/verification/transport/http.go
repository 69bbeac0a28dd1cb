// Package transport provides the HTTP glue of spec §6's external
// interfaces over the verification domain: /verify, the session
// endpoints, the etherscan fallback, the repository file-tree browser,
// and health/chain-list.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chainproof/verify/internal/assembler"
	"github.com/chainproof/verify/internal/chainregistry"
	"github.com/chainproof/verify/internal/checker"
	"github.com/chainproof/verify/internal/contenthash"
	"github.com/chainproof/verify/internal/contractmeta"
	"github.com/chainproof/verify/internal/etherscan"
	"github.com/chainproof/verify/internal/matcher"
	"github.com/chainproof/verify/internal/matchstore"
	"github.com/chainproof/verify/internal/session"
	"github.com/chainproof/verify/internal/verification/domain"
	"github.com/chainproof/verify/internal/verifyerr"
	"github.com/ethereum/go-ethereum/common"
)

// Coordinator is the subset of domain.Coordinator the transport needs
// for the stateless /verify path.
type Coordinator interface {
	VerifyDeployed(ctx context.Context, cc *contractmeta.CheckedContract, chainID, address, creatorTxHash string) (*matcher.Match, error)
}

// EtherscanResolver resolves an explorer client for a chain, or reports
// none is configured.
type EtherscanResolver interface {
	Resolve(chainID string) (*etherscan.Client, bool)
}

// CodeFetcher resolves on-chain runtime code, used here only to recover
// the metadata content hash from its CBOR trailer when a /verify
// request supplies no files.
type CodeFetcher interface {
	CodeAt(ctx context.Context, chainID string, address common.Address) ([]byte, error)
}

// Handler serves spec §6's HTTP surface.
type Handler struct {
	coordinator Coordinator
	stager      *session.Stager
	store       *matchstore.Store
	chains      *chainregistry.Registry
	explorers   EtherscanResolver
	assembler   *assembler.Assembler
	codeFetcher CodeFetcher
}

// NewHandler builds a Handler over its collaborators.
func NewHandler(coordinator Coordinator, stager *session.Stager, store *matchstore.Store, chains *chainregistry.Registry, explorers EtherscanResolver, asm *assembler.Assembler, codeFetcher CodeFetcher) *Handler {
	return &Handler{
		coordinator: coordinator,
		stager:      stager,
		store:       store,
		chains:      chains,
		explorers:   explorers,
		assembler:   asm,
		codeFetcher: codeFetcher,
	}
}

// RegisterRoutes registers every route of spec §6 on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/verify", h.handleVerify)
	r.Post("/verify/etherscan", h.handleVerifyEtherscan)
	r.Post("/session", h.handleNewSession)
	r.Post("/session/input-files", h.handleSessionInputFiles)
	r.Post("/session/verify-contracts", h.handleSessionVerifyContracts)
	r.Get("/files/tree/{scope}/{chainId}/{address}", h.handleFilesTree)
	r.Get("/health", h.handleHealth)
	r.Get("/chains", h.handleChains)
}

func decodeFiles(in map[string]verifyFileInput) ([]checker.InputFile, error) {
	out := make([]checker.InputFile, 0, len(in))
	for name, f := range in {
		content := []byte(f.Content)
		if f.Base64 {
			decoded, err := base64.StdEncoding.DecodeString(f.Content)
			if err != nil {
				return nil, verifyerr.New(verifyerr.KindBadInput, "invalid base64 content for "+name)
			}
			content = decoded
		}
		out = append(out, checker.InputFile{Path: name, Content: content})
	}
	return out, nil
}

// selectContract implements spec §6's "400 multiple contracts without
// chosenContract" rule.
func selectContract(contracts []*contractmeta.CheckedContract, chosen string) (*contractmeta.CheckedContract, error) {
	if len(contracts) == 0 {
		return nil, verifyerr.New(verifyerr.KindBadInput, "no contract metadata found in upload")
	}
	if len(contracts) == 1 {
		return contracts[0], nil
	}
	if chosen == "" {
		return nil, verifyerr.New(verifyerr.KindBadInput, "multiple contracts found; chosenContract is required")
	}
	for _, cc := range contracts {
		if cc.Metadata.Target.Contract == chosen || cc.Metadata.Target.Path == chosen {
			return cc, nil
		}
	}
	return nil, verifyerr.New(verifyerr.KindBadInput, "chosenContract does not match any uploaded contract")
}

func (h *Handler) verifyOne(ctx context.Context, cc *contractmeta.CheckedContract, chainID, address, creatorTxHash string) resultEntry {
	if !cc.IsValid() {
		return resultEntry{
			Address: address,
			ChainID: chainID,
			Status:  "null",
			Message: "contract sources are incomplete or invalid",
		}
	}

	match, err := h.coordinator.VerifyDeployed(ctx, cc, chainID, address, creatorTxHash)
	if err != nil {
		return resultEntry{
			Address: address,
			ChainID: chainID,
			Status:  "null",
			Message: err.Error(),
		}
	}

	result := domain.ToResult(chainID, address, match, creatorTxHash)
	return resultEntry{
		Address:    address,
		ChainID:    chainID,
		Status:     string(result.Status),
		LibraryMap: match.LibraryMap,
		Message:    match.Message,
	}
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, verifyerr.New(verifyerr.KindBadInput, "invalid JSON body"))
		return
	}

	files, err := decodeFiles(req.Files)
	if err != nil {
		writeErr(w, err)
		return
	}

	var cc *contractmeta.CheckedContract
	if len(files) == 0 {
		cc, err = h.assembleFromChain(r.Context(), req.Chain, req.Address)
		if err != nil {
			writeErr(w, err)
			return
		}
	} else {
		contracts, _ := checker.CheckFiles(files)
		cc, err = selectContract(contracts, req.ChosenContract)
		if err != nil {
			writeErr(w, err)
			return
		}
	}

	entry := h.verifyOne(r.Context(), cc, req.Chain, req.Address, req.CreatorTxHash)
	writeJSON(w, http.StatusOK, verifyResponseBody{Result: []resultEntry{entry}})
}

// assembleFromChain implements the no-files fallback of spec §4.3: pull
// the on-chain runtime code, recover the metadata content hash from its
// CBOR trailer, and let the PendingAssembler fetch everything else.
func (h *Handler) assembleFromChain(ctx context.Context, chainID, address string) (*contractmeta.CheckedContract, error) {
	if !common.IsHexAddress(address) {
		return nil, verifyerr.New(verifyerr.KindBadInput, "invalid address")
	}

	code, err := h.codeFetcher.CodeAt(ctx, chainID, common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, verifyerr.New(verifyerr.KindNotDeployed, "no code deployed at "+address)
	}

	trailer, _, ok := contenthash.SplitTrailer(code)
	if !ok {
		return nil, verifyerr.New(verifyerr.KindBadMetadata, "on-chain bytecode carries no metadata trailer; files are required")
	}

	hashes, err := contenthash.FromMetadataCborSection(trailer)
	if err != nil || len(hashes) == 0 {
		return nil, verifyerr.New(verifyerr.KindBadMetadata, "could not recover a metadata content hash from the bytecode trailer")
	}

	return h.assembler.Assemble(ctx, hashes[0])
}

func (h *Handler) handleVerifyEtherscan(w http.ResponseWriter, r *http.Request) {
	var req verifyEtherscanRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, verifyerr.New(verifyerr.KindBadInput, "invalid JSON body"))
		return
	}

	client, ok := h.explorers.Resolve(req.Chain)
	if !ok {
		writeErr(w, verifyerr.New(verifyerr.KindUnsupportedChain, "no explorer configured for chain "+req.Chain))
		return
	}

	files, err := client.FetchSource(r.Context(), req.Address)
	if err != nil {
		writeErr(w, err)
		return
	}

	contracts, _ := checker.CheckFiles(files)
	cc, err := selectContract(contracts, "")
	if err != nil {
		writeErr(w, err)
		return
	}

	entry := h.verifyOne(r.Context(), cc, req.Chain, req.Address, "")
	writeJSON(w, http.StatusOK, verifyResponseBody{Result: []resultEntry{entry}})
}

// handleNewSession mints a fresh session id for clients that don't
// already have one of their own.
func (h *Handler) handleNewSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": session.NewSessionID()})
}

func (h *Handler) handleSessionInputFiles(w http.ResponseWriter, r *http.Request) {
	var req sessionInputFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, verifyerr.New(verifyerr.KindBadInput, "invalid JSON body"))
		return
	}
	if req.SessionID == "" {
		writeErr(w, verifyerr.New(verifyerr.KindBadInput, "sessionId is required"))
		return
	}

	files, err := decodeFiles(req.Files)
	if err != nil {
		writeErr(w, err)
		return
	}

	sessionFiles := make([]session.InputFile, 0, len(files))
	for _, f := range files {
		sessionFiles = append(sessionFiles, session.InputFile{Path: f.Path, Content: f.Content})
	}

	if err := h.stager.AddFiles(req.SessionID, sessionFiles); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.stager.Snapshot(req.SessionID))
}

func (h *Handler) handleSessionVerifyContracts(w http.ResponseWriter, r *http.Request) {
	var req sessionVerifyContractsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, verifyerr.New(verifyerr.KindBadInput, "invalid JSON body"))
		return
	}
	if req.SessionID == "" {
		writeErr(w, verifyerr.New(verifyerr.KindBadInput, "sessionId is required"))
		return
	}

	targets := make(map[string]session.Target, len(req.Targets))
	for id, t := range req.Targets {
		targets[id] = session.Target{Address: t.Address, ChainID: t.ChainID, CreatorTxHash: t.CreatorTxHash}
	}

	if err := h.stager.SetVerificationTargets(req.SessionID, targets); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.stager.VerifyReady(r.Context(), req.SessionID); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.stager.Snapshot(req.SessionID))
}

func (h *Handler) handleFilesTree(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	chainID := chi.URLParam(r, "chainId")
	addressParam := chi.URLParam(r, "address")

	if !common.IsHexAddress(addressParam) {
		writeErr(w, verifyerr.New(verifyerr.KindBadInput, "invalid address"))
		return
	}
	address := common.HexToAddress(addressParam)

	quality, files, ok := h.store.Tree(scope, chainID, address)
	if !ok {
		writeErr(w, verifyerr.New(verifyerr.KindNotDeployed, "no stored match for this address"))
		return
	}

	type fileEntry struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	out := struct {
		Status string      `json:"status"`
		Files  []fileEntry `json:"files"`
	}{Status: string(quality)}

	for _, f := range files {
		out.Files = append(out.Files, fileEntry{Path: f.Path, Content: hex.EncodeToString(f.Content)})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleChains(w http.ResponseWriter, r *http.Request) {
	chains := h.chains.List()
	out := make([]chainListEntry, 0, len(chains))
	for id, c := range chains {
		out = append(out, chainListEntry{ChainID: id, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, err error) {
	status := verifyerr.HTTPStatus(err)
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": err.Error(),
		},
	})
}
