package ingest

import (
	"github.com/jask/jaskledger/internal/database/repository"
)

// DedupeResult reports what survived and what was dropped.
type DedupeResult struct {
	Kept            []repository.Transaction
	InBatchDropped  int
	ExistingDropped int
}

// Dedupe assigns each candidate its fingerprint id, drops rows sharing an id
// with an earlier row in the same batch (first occurrence wins), and drops
// rows whose id already exists in the store. It never mutates the store.
func Dedupe(batch []repository.Transaction, existing map[string]struct{}) DedupeResult {
	res := DedupeResult{Kept: make([]repository.Transaction, 0, len(batch))}
	seen := make(map[string]struct{}, len(batch))
	for _, t := range batch {
		t.ID = Fingerprint(t.Account, t.PostedAt, t.AmountCents, t.RawDescription)
		if _, dup := seen[t.ID]; dup {
			res.InBatchDropped++
			continue
		}
		seen[t.ID] = struct{}{}
		if _, ok := existing[t.ID]; ok {
			res.ExistingDropped++
			continue
		}
		res.Kept = append(res.Kept, t)
	}
	return res
}
