// Package domain defines core types shared across the measurement engine.
package domain

// ProtocolFamily is the category of chain that determines which sampling
// strategy applies.
type ProtocolFamily string

const (
	FamilyAccountModel     ProtocolFamily = "account-model"
	FamilyUTXOFork         ProtocolFamily = "utxo-fork"
	FamilyCosmosLike       ProtocolFamily = "cosmos-like"
	FamilyCheckpointLedger ProtocolFamily = "checkpoint-ledger"
	FamilySubstrate        ProtocolFamily = "substrate"
	FamilyCustom           ProtocolFamily = "custom"
)

// Valid reports whether f is one of the known protocol families.
func (f ProtocolFamily) Valid() bool {
	switch f {
	case FamilyAccountModel, FamilyUTXOFork, FamilyCosmosLike,
		FamilyCheckpointLedger, FamilySubstrate, FamilyCustom:
		return true
	}
	return false
}

// ChainTarget describes one network to measure. Targets are constructed once
// per run from the registry and are read-only afterwards.
type ChainTarget struct {
	// ChainID uniquely identifies the chain. Account-model chains use their
	// numeric chain ID as a string; everything else uses an opaque slug.
	ChainID   string         `json:"chain_id"`
	ChainName string         `json:"chain_name"`
	Family    ProtocolFamily `json:"protocol_family"`

	// CandidateEndpoints is ordered by preference; the failover loop tries
	// them strictly in this order.
	CandidateEndpoints []string `json:"candidate_endpoints"`

	// ExplorerURL, when set, enables the page-scrape fallback after all
	// protocol endpoints fail.
	ExplorerURL string `json:"explorer_url,omitempty"`
}
