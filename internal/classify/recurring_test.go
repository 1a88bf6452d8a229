package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/jaskledger/internal/database/repository"
)

func recurTx(id, merchant string, posted time.Time) repository.Transaction {
	return repository.Transaction{ID: id, Merchant: merchant, PostedAt: posted}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
}

func TestDetectRecurringTwoMonths(t *testing.T) {
	t.Parallel()

	d := &RecurringDetector{WindowMonths: 3, Now: fixedNow}
	ids := d.Detect([]repository.Transaction{
		recurTx("n1", "Netflix", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("n2", "Netflix", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("c1", "Coffee Shop", time.Date(2024, 2, 11, 0, 0, 0, 0, time.UTC)),
	})
	require.Equal(t, []string{"n1", "n2"}, ids)
}

func TestDetectRecurringSingleMonthIsNot(t *testing.T) {
	t.Parallel()

	// two charges in the same calendar month are one distinct month
	d := &RecurringDetector{WindowMonths: 3, Now: fixedNow}
	ids := d.Detect([]repository.Transaction{
		recurTx("g1", "Gym Co", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
		recurTx("g2", "Gym Co", time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)),
	})
	require.Empty(t, ids)
}

func TestDetectRecurringWindowExcludesOldMonths(t *testing.T) {
	t.Parallel()

	d := &RecurringDetector{WindowMonths: 3, Now: fixedNow}
	ids := d.Detect([]repository.Transaction{
		recurTx("o1", "Old Sub", time.Date(2023, 8, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("o2", "Old Sub", time.Date(2023, 9, 10, 0, 0, 0, 0, time.UTC)),
	})
	require.Empty(t, ids)
}

func TestDetectRecurringBroadcastsOutsideWindow(t *testing.T) {
	t.Parallel()

	// once a merchant qualifies inside the window, even its old transactions
	// carry the flag
	d := &RecurringDetector{WindowMonths: 3, Now: fixedNow}
	ids := d.Detect([]repository.Transaction{
		recurTx("n0", "Netflix", time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("n1", "Netflix", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("n2", "Netflix", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
	})
	require.Equal(t, []string{"n0", "n1", "n2"}, ids)
}

func TestDetectRecurringFuzzyMerchantGrouping(t *testing.T) {
	t.Parallel()

	d := &RecurringDetector{WindowMonths: 3, MerchantDistance: 0.2, Now: fixedNow}
	ids := d.Detect([]repository.Transaction{
		recurTx("n1", "NETFLIX.COM", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("n2", "NETFLIX COM", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
	})
	require.Equal(t, []string{"n1", "n2"}, ids)
}

func TestDetectRecurringExactGroupingWithoutDistance(t *testing.T) {
	t.Parallel()

	// with no distance threshold only exact normalized names group
	d := &RecurringDetector{WindowMonths: 3, Now: fixedNow}
	ids := d.Detect([]repository.Transaction{
		recurTx("n1", "NETFLIX.COM", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("n2", "NETFLIX COM", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("s1", "spotify  premium", time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)),
		recurTx("s2", "Spotify Premium", time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)),
	})
	require.Equal(t, []string{"s1", "s2"}, ids)
}

func TestDetectRecurringIgnoresEmptyMerchants(t *testing.T) {
	t.Parallel()

	d := &RecurringDetector{WindowMonths: 3, Now: fixedNow}
	ids := d.Detect([]repository.Transaction{
		recurTx("e1", "", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		recurTx("e2", "  ", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
	})
	require.Empty(t, ids)
}
