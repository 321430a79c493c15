package sampler

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// ErrNoMatches means the explorer page contained none of the known patterns.
var ErrNoMatches = errors.New("no_matches")

// tpsPatterns and txCountPatterns cover the common explorer skins
// (Blockscout, Etherscan clones). Ordered: the first match wins.
var tpsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)TPS:?\s*([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)Transactions per second:?\s*([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*TPS`),
}

var txCountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Total Transactions:?\s*([\d,]+)`),
	regexp.MustCompile(`(?i)Transactions:?\s*([\d,]+)`),
	regexp.MustCompile(`(?i)Total Txs:?\s*([\d,]+)`),
}

// ScrapeSampler is the last-resort adapter: when every protocol endpoint has
// failed and the target carries an explorer URL, it pulls the landing page
// through the gate and pattern-matches headline numbers out of the HTML.
// Results are marked as page-derived so consumers can discount them.
type ScrapeSampler struct {
	gate *safefetch.Gate
}

// NewScrapeSampler creates the page-scrape fallback adapter.
func NewScrapeSampler(gate *safefetch.Gate) *ScrapeSampler {
	return &ScrapeSampler{gate: gate}
}

var _ Sampler = (*ScrapeSampler)(nil)

func (s *ScrapeSampler) Family() domain.ProtocolFamily { return domain.FamilyCustom }

// Sample fetches target's explorer page. The endpoint argument is ignored;
// the explorer URL is the data source.
func (s *ScrapeSampler) Sample(ctx context.Context, _ string, target domain.ChainTarget) (*Estimate, error) {
	u := target.ExplorerURL
	if u == "" {
		return nil, errors.New("no explorer url")
	}
	if !strings.HasPrefix(u, "http") {
		u = "https://" + u
	}

	body, err := s.gate.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	html := string(body)

	tps := firstMatch(tpsPatterns, html)
	txCount := firstMatch(txCountPatterns, html)

	if tps <= 0 && txCount <= 0 {
		return nil, ErrNoMatches
	}

	est := &Estimate{TPS: tps, Scraped: true}
	if txCount > 0 {
		est.TotalTx = ptr(txCount)
	}
	return est, nil
}

func firstMatch(patterns []*regexp.Regexp, html string) float64 {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(html); m != nil {
			return CleanNumber(m[1])
		}
	}
	return 0
}

// CleanNumber parses a human-formatted number, tolerating thousands
// separators and surrounding whitespace. Unparseable input (including "N/A")
// yields 0.
func CleanNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", "")), 64)
	if err != nil {
		return 0
	}
	return v
}
