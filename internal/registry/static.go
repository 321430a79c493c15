package registry

import "chainpulse/internal/domain"

// BuiltinNonEVM returns the hand-maintained table of major networks outside
// the EVM listing. These change rarely enough that a static table beats
// another remote dependency; edits go through review like any other code.
func BuiltinNonEVM() []domain.ChainTarget {
	return []domain.ChainTarget{
		{
			ChainID:            "solana-mainnet",
			ChainName:          "Solana Mainnet",
			Family:             domain.FamilyCustom,
			CandidateEndpoints: []string{"https://api.mainnet-beta.solana.com"},
			ExplorerURL:        "https://explorer.solana.com",
		},
		{
			ChainID:            "bitcoin-mainnet",
			ChainName:          "Bitcoin",
			Family:             domain.FamilyUTXOFork,
			CandidateEndpoints: []string{"https://bitcoin-mainnet-archive.allthatnode.com"},
		},
		{
			ChainID:            "cosmoshub-4",
			ChainName:          "Cosmos Hub",
			Family:             domain.FamilyCosmosLike,
			CandidateEndpoints: []string{"https://cosmos-rest.publicnode.com"},
			ExplorerURL:        "https://www.mintscan.io/cosmos",
		},
		{
			ChainID:            "osmosis-1",
			ChainName:          "Osmosis",
			Family:             domain.FamilyCosmosLike,
			CandidateEndpoints: []string{"https://osmosis-rest.publicnode.com"},
		},
		{
			ChainID:            "sui-mainnet",
			ChainName:          "Sui Mainnet",
			Family:             domain.FamilyCheckpointLedger,
			CandidateEndpoints: []string{"https://fullnode.mainnet.sui.io:443"},
			ExplorerURL:        "https://suiscan.xyz",
		},
		{
			ChainID:            "polkadot",
			ChainName:          "Polkadot",
			Family:             domain.FamilySubstrate,
			CandidateEndpoints: []string{"https://polkadot.api.subscan.io"},
			ExplorerURL:        "https://polkadot.subscan.io",
		},
		{
			ChainID:            "kusama",
			ChainName:          "Kusama",
			Family:             domain.FamilySubstrate,
			CandidateEndpoints: []string{"https://kusama.api.subscan.io"},
			ExplorerURL:        "https://kusama.subscan.io",
		},
	}
}
