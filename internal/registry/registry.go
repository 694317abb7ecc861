// Package registry derives the deterministic category addresses used by the
// Quackstro service registry. Addresses are burn-style P2PKH addresses whose
// hash is Hash160 of a versioned tag string, so every wallet derives the
// same address per category with no coordination.
package registry

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// tagPrefix versions the derivation; changing it re-keys every category.
const tagPrefix = "QuackstroProtocol:Registry:v1:"

// mainnetP2PKHVersion pins registry addresses to Dogecoin mainnet P2PKH.
const mainnetP2PKHVersion byte = 0x1E

// Canonical categories.
const (
	CategoryGeneral  = "general"
	CategoryCompute  = "compute"
	CategoryData     = "data"
	CategoryContent  = "content"
	CategoryIdentity = "identity"
)

// Categories lists the canonical categories in registry order.
var Categories = []string{
	CategoryGeneral,
	CategoryCompute,
	CategoryData,
	CategoryContent,
	CategoryIdentity,
}

// wellKnown pins the expected derivations; SelfCheck compares against it.
var wellKnown = map[string]string{
	CategoryGeneral:  "DG7EBGqYFaWnaYeH9QQNEWeT6xY2DqVCzE",
	CategoryCompute:  "DMiK6hDKciWj4NG9Pi7m9dtATduM46sdsT",
	CategoryData:     "D9mT3x5tsg7UYtxvjs9YwN8HN6EPiroSF6",
	CategoryContent:  "DFhMUCFGhiv7Fd5fA1nvceDwTzPW8zpMi8",
	CategoryIdentity: "DLtg8eRLc4BCZsb18GAvYmDRZC1PDyyJSi",
}

// Address derives the registry address for a category:
// Base58Check(0x1E || Hash160(tagPrefix || category)).
func Address(category string) string {
	hash := btcutil.Hash160([]byte(tagPrefix + category))
	return base58.CheckEncode(hash, mainnetP2PKHVersion)
}

// SelfCheck regenerates every canonical category address and compares it
// against the pinned table. Run at startup: a mismatch means the derivation
// code regressed and announcements would go to the wrong place.
func SelfCheck() error {
	for _, category := range Categories {
		derived := Address(category)
		want := wellKnown[category]
		if derived != want {
			return fmt.Errorf("registry self-check failed for %q: derived %s, expected %s", category, derived, want)
		}
	}
	return nil
}
