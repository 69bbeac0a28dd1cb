// Package session implements spec §4.8's SessionStager: accumulating
// user uploads across requests, keyed by content hash, and resolving
// staged contracts incrementally as preconditions are met.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainproof/verify/internal/checker"
	"github.com/chainproof/verify/internal/contractmeta"
	"github.com/chainproof/verify/internal/matcher"
	"github.com/chainproof/verify/internal/verifyerr"
)

// NewSessionID mints a session id for a client that doesn't already
// have one, per spec §4.8 — the stager itself is agnostic to how ids
// are produced and will lazily create a session for any id on first
// use, but a fresh client needs one to start from.
func NewSessionID() string {
	return uuid.NewString()
}

// InputFile is one file accumulated in a session, keyed by its sha1
// content id per spec §3's Session invariant.
type InputFile struct {
	Path    string
	Content []byte
}

// Target associates a verification target with a staged contract.
type Target struct {
	Address       string
	ChainID       string
	CreatorTxHash string
}

// ContractEntry is one staged contract and its current verification
// status within a session.
type ContractEntry struct {
	Contract *contractmeta.CheckedContract
	Target   *Target
	Status   string // "pending", "perfect", "partial", "extra-file-input-bug", "" (no match), "error", or the Lookup's quality when short-circuited
	Message  string
}

// Session holds the per-client state of spec §3.
type Session struct {
	mu            sync.Mutex
	inputFiles    map[string]InputFile // contentId -> file
	contracts     map[string]*ContractEntry
	unusedSources map[string]bool
	totalBytes    int64
	lastActivity  time.Time
}

func newSession() *Session {
	return &Session{
		inputFiles:    make(map[string]InputFile),
		contracts:     make(map[string]*ContractEntry),
		unusedSources: make(map[string]bool),
		lastActivity:  time.Now(),
	}
}

// Coordinator is the subset of VerificationCoordinator the stager needs.
type Coordinator interface {
	VerifyDeployed(ctx context.Context, cc *contractmeta.CheckedContract, chainID, address, creatorTxHash string) (*matcher.Match, error)
}

// Lookup is the subset of the verified-match index the stager needs for
// the short-circuit of spec §4.8's verifyReady.
type Lookup interface {
	Get(ctx context.Context, chainID, address string) (quality string, storedAt time.Time, ok bool)
}

// Stager manages sessions keyed by client session id.
type Stager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	maxBytes    int64
	idleTimeout time.Duration
	coordinator Coordinator
	lookup      Lookup
}

// New builds a Stager with the given limits and collaborators.
func New(maxBytes int64, idleTimeout time.Duration, coordinator Coordinator, lookup Lookup) *Stager {
	return &Stager{
		sessions:    make(map[string]*Session),
		maxBytes:    maxBytes,
		idleTimeout: idleTimeout,
		coordinator: coordinator,
		lookup:      lookup,
	}
}

func (s *Stager) session(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = newSession()
		s.sessions[id] = sess
	}
	return sess
}

// AddFiles implements spec §4.8's addFiles: reject on the 50 MiB cap,
// dedupe by sha1, then re-run ContractChecker over the full file set.
func (s *Stager) AddFiles(sessionID string, files []InputFile) error {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActivity = time.Now()

	added := int64(0)
	for _, f := range files {
		id := contractmeta.SHA1Hex(f.Content)
		if _, exists := sess.inputFiles[id]; exists {
			continue
		}
		added += int64(len(f.Content))
	}
	if sess.totalBytes+added > s.maxBytes {
		return verifyerr.New(verifyerr.KindPayloadTooLarge, fmt.Sprintf("session would exceed %d byte cap", s.maxBytes))
	}

	for _, f := range files {
		id := contractmeta.SHA1Hex(f.Content)
		if _, exists := sess.inputFiles[id]; exists {
			continue
		}
		sess.inputFiles[id] = f
		sess.totalBytes += int64(len(f.Content))
	}

	s.recheck(sess)
	return nil
}

// recheck re-runs ContractChecker over the full accumulated file set and
// merges results into existing entries without overwriting already
// validated sources, per spec §4.8.
func (s *Stager) recheck(sess *Session) {
	inputs := make([]checker.InputFile, 0, len(sess.inputFiles))
	for _, f := range sess.inputFiles {
		inputs = append(inputs, checker.InputFile{Path: f.Path, Content: f.Content})
	}

	contracts, unused := checker.CheckFiles(inputs)

	sess.unusedSources = make(map[string]bool, len(unused))
	for _, path := range unused {
		sess.unusedSources[path] = true
	}

	for _, cc := range contracts {
		id := contractmeta.SHA1Hex(cc.Metadata.Raw)
		existing, ok := sess.contracts[id]
		if !ok {
			sess.contracts[id] = &ContractEntry{Contract: cc, Status: "pending"}
			continue
		}
		mergeContract(existing.Contract, cc)
	}
}

// mergeContract fills missing sources on dst from src without
// overwriting already-validated sources.
func mergeContract(dst, src *contractmeta.CheckedContract) {
	for path, content := range src.Sources {
		if _, already := dst.Sources[path]; !already {
			dst.Sources[path] = content
			delete(dst.Missing, path)
			delete(dst.Invalid, path)
		}
	}
	for path, reason := range src.Missing {
		if _, already := dst.Sources[path]; !already {
			dst.Missing[path] = reason
		}
	}
}

// SetVerificationTargets implements spec §4.8's setVerificationTargets.
func (s *Stager) SetVerificationTargets(sessionID string, targets map[string]Target) error {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActivity = time.Now()

	for id, target := range targets {
		entry, ok := sess.contracts[id]
		if !ok {
			return verifyerr.New(verifyerr.KindBadInput, fmt.Sprintf("unknown contract id %s", id))
		}
		t := target
		entry.Target = &t
	}
	return nil
}

// VerifyReady implements spec §4.8's verifyReady: runs the coordinator
// for every valid, targeted entry, short-circuiting when the Lookup
// reports an existing record. MatchStore itself is not consulted here.
func (s *Stager) VerifyReady(ctx context.Context, sessionID string) error {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActivity = time.Now()

	for _, entry := range sess.contracts {
		if entry.Target == nil || !entry.Contract.IsValid() {
			continue
		}

		if s.lookup != nil {
			if quality, storedAt, ok := s.lookup.Get(ctx, entry.Target.ChainID, entry.Target.Address); ok {
				entry.Status = quality
				entry.Message = fmt.Sprintf("already verified at %s", storedAt.Format(time.RFC3339))
				continue
			}
		}

		match, err := s.coordinator.VerifyDeployed(ctx, entry.Contract, entry.Target.ChainID, entry.Target.Address, entry.Target.CreatorTxHash)
		if err != nil {
			entry.Status = "error"
			entry.Message = err.Error()
			continue
		}
		entry.Status = string(outcomeStatus(match))
	}
	return nil
}

func outcomeStatus(m *matcher.Match) matcher.Outcome {
	if m.RuntimeMatch == matcher.OutcomePerfect || m.CreationMatch == matcher.OutcomePerfect {
		return matcher.OutcomePerfect
	}
	if m.RuntimeMatch == matcher.OutcomePartial || m.CreationMatch == matcher.OutcomePartial {
		return matcher.OutcomePartial
	}
	if m.RuntimeMatch == matcher.OutcomeExtraFileInputBug {
		return matcher.OutcomeExtraFileInputBug
	}
	return matcher.OutcomeNone
}

// Snapshot is the client-facing serialization of spec §4.8's snapshot.
type Snapshot struct {
	Contracts     map[string]ContractSnapshot `json:"contracts"`
	UnusedSources []string                    `json:"unusedSources"`
}

// ContractSnapshot is the per-contract status reported in a Snapshot.
type ContractSnapshot struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Missing int    `json:"missingCount"`
	Invalid int    `json:"invalidCount"`
}

// Snapshot implements spec §4.8's snapshot operation.
func (s *Stager) Snapshot(sessionID string) Snapshot {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	out := Snapshot{Contracts: make(map[string]ContractSnapshot, len(sess.contracts))}
	for id, entry := range sess.contracts {
		out.Contracts[id] = ContractSnapshot{
			Status:  entry.Status,
			Message: entry.Message,
			Missing: len(entry.Contract.Missing),
			Invalid: len(entry.Contract.Invalid),
		}
	}
	for path := range sess.unusedSources {
		out.UnusedSources = append(out.UnusedSources, path)
	}
	return out
}

// Sweep evicts sessions idle longer than the configured idle timeout.
func (s *Stager) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.lastActivity)
		sess.mu.Unlock()
		if idle > s.idleTimeout {
			delete(s.sessions, id)
		}
	}
}
