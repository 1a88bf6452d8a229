package classify

import (
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/jask/jaskledger/internal/database/repository"
)

// RecurringDetector finds merchants that charge across multiple calendar
// months in a trailing window and broadcasts the recurring flag to every
// transaction of that merchant, not just the ones inside the window.
type RecurringDetector struct {
	WindowMonths     int
	MerchantDistance float64          // normalized edit distance under which merchant names collapse
	Now              func() time.Time // injectable for tests
}

// Detect returns the ids to mark recurring=true given a snapshot of the store.
// It is a pure function of the snapshot, so reruns on an already-classified
// store return the same ids.
func (d *RecurringDetector) Detect(txs []repository.Transaction) []string {
	months := d.WindowMonths
	if months <= 0 {
		months = 3
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	cutoff := now().UTC().AddDate(0, -months, 0)

	// Collapse merchant names into groups. Exact case-insensitive matches always
	// group; names within the edit-distance threshold fold into the first-seen
	// representative so "NETFLIX.COM" and "NETFLIX COM" count as one merchant.
	keyOf := func(m string) string {
		return strings.ToLower(strings.Join(strings.Fields(m), " "))
	}
	keyToGroup := make(map[string]int)
	var reps []string
	groupFor := func(key string) int {
		if g, ok := keyToGroup[key]; ok {
			return g
		}
		for g, rep := range reps {
			if d.closeEnough(key, rep) {
				keyToGroup[key] = g
				return g
			}
		}
		reps = append(reps, key)
		keyToGroup[key] = len(reps) - 1
		return len(reps) - 1
	}

	monthHits := make(map[int]map[string]struct{})
	groupTxs := make(map[int][]string)
	for i := range txs {
		t := &txs[i]
		key := keyOf(t.Merchant)
		if key == "" {
			continue
		}
		g := groupFor(key)
		groupTxs[g] = append(groupTxs[g], t.ID)
		if t.PostedAt.Before(cutoff) {
			continue
		}
		if monthHits[g] == nil {
			monthHits[g] = make(map[string]struct{})
		}
		monthHits[g][t.PostedAt.UTC().Format("2006-01")] = struct{}{}
	}

	var ids []string
	for g, hits := range monthHits {
		if len(hits) < 2 {
			continue
		}
		ids = append(ids, groupTxs[g]...)
	}
	sort.Strings(ids)
	return ids
}

func (d *RecurringDetector) closeEnough(a, b string) bool {
	if d.MerchantDistance <= 0 {
		return a == b
	}
	if a == b {
		return true
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return true
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(dist)/float64(longest) < d.MerchantDistance
}
