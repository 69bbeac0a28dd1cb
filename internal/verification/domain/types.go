// Package domain implements spec §4.7's VerificationCoordinator.
package domain

import "github.com/chainproof/verify/internal/matcher"

// VerifyRequest is the coordinator's verifyDeployed input, spec §4.7.
type VerifyRequest struct {
	ChainID       string
	Address       string
	CreatorTxHash string
}

// Result mirrors spec §3's Match, adapted for the transport layer.
type Result struct {
	Address                        string            `json:"address"`
	ChainID                        string            `json:"chainId"`
	Status                         matcher.Outcome   `json:"status"`
	LibraryMap                     map[string]string `json:"libraryMap,omitempty"`
	ImmutableReferences            map[string]string `json:"immutableReferences,omitempty"`
	ABIEncodedConstructorArguments string            `json:"abiEncodedConstructorArguments,omitempty"`
	CreatorTxHash                  string            `json:"creatorTxHash,omitempty"`
	StorageTimestamp               string            `json:"storageTimestamp,omitempty"`
	Message                        string            `json:"message,omitempty"`
}
