// Package registry produces the ordered set of chain targets for a
// measurement run. Targets come from up to three sources: a JSON target file,
// the public chainid.network listing, and a built-in table of non-EVM
// networks. Sources are merged in that order with first-wins dedup on
// chain id.
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"chainpulse/internal/domain"
)

// ErrNoTargets is returned when every configured source yielded nothing.
var ErrNoTargets = fmt.Errorf("registry: no targets")

// fileTarget is the target-file record shape.
type fileTarget struct {
	ChainID            string   `json:"chain_id"`
	ChainName          string   `json:"chain_name"`
	ProtocolFamily     string   `json:"protocol_family"`
	CandidateEndpoints []string `json:"candidate_endpoints"`
	ExplorerURL        string   `json:"explorer_url,omitempty"`
}

// LoadFile reads targets from a JSON file holding an array of target records.
// Records with an empty chain id or an unknown protocol family are rejected,
// not skipped: a malformed target file is an operator error.
func LoadFile(path string) ([]domain.ChainTarget, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target file: %w", err)
	}

	var records []fileTarget
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse target file: %w", err)
	}

	targets := make([]domain.ChainTarget, 0, len(records))
	for i, rec := range records {
		if rec.ChainID == "" {
			return nil, fmt.Errorf("target %d: missing chain_id", i)
		}
		family := domain.ProtocolFamily(rec.ProtocolFamily)
		if !family.Valid() {
			return nil, fmt.Errorf("target %d (%s): unknown protocol_family %q", i, rec.ChainID, rec.ProtocolFamily)
		}
		targets = append(targets, domain.ChainTarget{
			ChainID:            rec.ChainID,
			ChainName:          rec.ChainName,
			Family:             family,
			CandidateEndpoints: rec.CandidateEndpoints,
			ExplorerURL:        rec.ExplorerURL,
		})
	}
	return targets, nil
}

// Merge concatenates target lists preserving order; when the same chain id
// appears in more than one source the earliest occurrence wins.
func Merge(sources ...[]domain.ChainTarget) []domain.ChainTarget {
	seen := make(map[string]bool)
	var out []domain.ChainTarget
	for _, src := range sources {
		for _, target := range src {
			if seen[target.ChainID] {
				continue
			}
			seen[target.ChainID] = true
			out = append(out, target)
		}
	}
	return out
}
