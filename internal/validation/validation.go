// Package validation provides input validation for the verification service.
package validation

import (
	"errors"
	"strings"

	"golang.org/x/mod/semver"
)

// ValidateCompilerVersion validates a solc version string as found in
// contract metadata.
func ValidateCompilerVersion(v string) error {
	normalized := strings.TrimPrefix(v, "v")
	if normalized == "" {
		return errors.New("version cannot be empty")
	}

	versionWithV := "v" + normalized
	if !semver.IsValid(versionWithV) {
		return errors.New("invalid semver version: must be in format X.Y.Z or X.Y.Z-prerelease")
	}

	parts := strings.SplitN(normalized, "-", 2)
	mainPart := parts[0]
	dotCount := strings.Count(mainPart, ".")
	if dotCount < 2 {
		return errors.New("invalid semver version: must be in format X.Y.Z (major.minor.patch)")
	}

	return nil
}

// NormalizeVersion normalizes a version string (strips leading 'v').
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// CompareCompilerVersions compares two solc version strings.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2.
func CompareCompilerVersions(v1, v2 string) int {
	n1 := "v" + NormalizeVersion(v1)
	n2 := "v" + NormalizeVersion(v2)
	return semver.Compare(n1, n2)
}

// ValidateAddress validates an Ethereum address.
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID.
func ValidateChainID(chainID int) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}
