package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// DefaultChainListURL is the public EVM chain listing.
const DefaultChainListURL = "https://chainid.network/chains.json"

// chainListEntry is one record of the chainid.network listing. Only the
// fields the registry consumes are declared.
type chainListEntry struct {
	Name      string   `json:"name"`
	ChainID   int64    `json:"chainId"`
	RPC       []string `json:"rpc"`
	Explorers []struct {
		URL string `json:"url"`
	} `json:"explorers"`
}

// FetchChainList downloads an EVM chain listing in the chainid.network shape
// and converts every entry into an account-model target. RPC URLs that carry
// `${…}` API-key templates or use websocket transport are dropped; entries
// left with no usable endpoint are still returned so the run records them as
// skipped rather than silently dropping them.
func FetchChainList(ctx context.Context, gate *safefetch.Gate, url string) ([]domain.ChainTarget, error) {
	body, err := gate.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch chain list: %w", err)
	}

	var entries []chainListEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse chain list: %w", err)
	}

	targets := make([]domain.ChainTarget, 0, len(entries))
	for _, entry := range entries {
		target := domain.ChainTarget{
			ChainID:            strconv.FormatInt(entry.ChainID, 10),
			ChainName:          entry.Name,
			Family:             domain.FamilyAccountModel,
			CandidateEndpoints: usableRPCs(entry.RPC),
		}
		if len(entry.Explorers) > 0 {
			target.ExplorerURL = entry.Explorers[0].URL
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// usableRPCs filters the listing's RPC array down to endpoints a run can
// actually call, preserving order.
func usableRPCs(rpcs []string) []string {
	out := make([]string, 0, len(rpcs))
	for _, u := range rpcs {
		if strings.Contains(u, "${") || strings.Contains(u, "wss://") {
			continue
		}
		out = append(out, u)
	}
	return out
}
