package classify

import (
	"sort"
	"strings"
	"time"

	"github.com/jask/jaskledger/internal/config"
	"github.com/jask/jaskledger/internal/database/repository"
)

// Phrases and processor names that explicitly indicate a movement between the
// user's own accounts. A match here flags the row unconditionally.
var transferKeywords = []string{
	"internal transfer",
	"funds transfer",
	"transfer",
	"withdrawal",
	"deposit",
	"opening deposit",
	"bpay",
	"direct debit",
	"card payment",
	"payment to",
	"payment from",
	"osko",
	"payid",
	"netbank",
}

// Legitimate large round-amount expenses. The allow-list beats the round-number
// heuristic but never an explicit keyword match.
var expenseAllowList = []string{
	"rent",
	"bill",
	"insurance",
	"utility",
	"utilities",
	"electricity",
	"water",
	"council",
	"strata",
	"body corporate",
}

// TransferDetector implements both internal-transfer passes: the per-row
// textual heuristic applied during normalization, and the cross-account
// amount/time pairing join run globally after ingestion.
type TransferDetector struct {
	roundThresholdCents int64
	roundUnitCents      int64
	pairToleranceCents  int64
	pairWindow          time.Duration
}

func NewTransferDetector(cfg config.ClassifyConfig) *TransferDetector {
	d := &TransferDetector{
		roundThresholdCents: cfg.RoundThresholdCents,
		roundUnitCents:      cfg.RoundUnitCents,
		pairToleranceCents:  cfg.PairToleranceCents,
		pairWindow:          time.Duration(cfg.PairWindowDays) * 24 * time.Hour,
	}
	if d.roundThresholdCents <= 0 {
		d.roundThresholdCents = 50000 // $500
	}
	if d.roundUnitCents <= 0 {
		d.roundUnitCents = 10000 // $100
	}
	if d.pairToleranceCents < 0 {
		d.pairToleranceCents = 1
	}
	if d.pairWindow <= 0 {
		d.pairWindow = 3 * 24 * time.Hour
	}
	return d
}

// MatchText is pass 1: explicit keyword match short-circuits to true; otherwise
// a large exact-round amount is flagged unless the text matches a known
// legitimate expense.
func (d *TransferDetector) MatchText(merchant, description string, amountCents int64) bool {
	m := strings.ToLower(merchant)
	desc := strings.ToLower(description)

	for _, kw := range transferKeywords {
		if strings.Contains(m, kw) || strings.Contains(desc, kw) {
			return true
		}
	}

	abs := amountCents
	if abs < 0 {
		abs = -abs
	}
	if abs >= d.roundThresholdCents && abs%d.roundUnitCents == 0 {
		for _, kw := range expenseAllowList {
			if strings.Contains(m, kw) || strings.Contains(desc, kw) {
				return false
			}
		}
		return true
	}
	return false
}

// TransferPair is one qualifying cross-account pair, reported for diagnostics.
type TransferPair struct {
	OutID, InID           string
	OutAccount, InAccount string
	AmountCents           int64
	DaysApart             float64
}

// PairScan is pass 2. It considers every pair (a, b) with different accounts,
// opposite equal-magnitude amounts within tolerance, and posting times within
// the window, restricted to rows not already flagged. Every row appearing on
// either side of a qualifying pair is returned.
//
// Candidates are bucketed by absolute amount so the join probes only the
// tolerance-wide neighbourhood of each row instead of the full table.
func (d *TransferDetector) PairScan(txs []repository.Transaction) ([]string, []TransferPair) {
	inflows := make(map[int64][]*repository.Transaction)
	for i := range txs {
		t := &txs[i]
		if t.InternalTransfer == repository.TriTrue || t.AmountCents <= 0 {
			continue
		}
		inflows[t.AmountCents] = append(inflows[t.AmountCents], t)
	}

	flagged := make(map[string]struct{})
	var pairs []TransferPair
	for i := range txs {
		out := &txs[i]
		if out.InternalTransfer == repository.TriTrue || out.AmountCents >= 0 {
			continue
		}
		magnitude := -out.AmountCents
		for delta := -d.pairToleranceCents; delta <= d.pairToleranceCents; delta++ {
			for _, in := range inflows[magnitude+delta] {
				if in.ID == out.ID || in.Account == out.Account {
					continue
				}
				gap := in.PostedAt.Sub(out.PostedAt)
				if gap < 0 {
					gap = -gap
				}
				if gap > d.pairWindow {
					continue
				}
				flagged[out.ID] = struct{}{}
				flagged[in.ID] = struct{}{}
				pairs = append(pairs, TransferPair{
					OutID:       out.ID,
					InID:        in.ID,
					OutAccount:  out.Account,
					InAccount:   in.Account,
					AmountCents: in.AmountCents,
					DaysApart:   gap.Hours() / 24,
				})
			}
		}
	}

	ids := make([]string, 0, len(flagged))
	for id := range flagged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, pairs
}
