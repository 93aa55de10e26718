package blood

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestInventory(t *testing.T) (*Inventory, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	inv := NewInventory(repo, 7*24*time.Hour)
	inv.now = func() time.Time { return invNow }
	return inv, repo
}

// seedUnit creates a tested unit directly in the fake store.
func seedUnit(t *testing.T, repo *fakeRepo, inventoryID uuid.UUID, outcome TestOutcome, group Group, expiresAt time.Time, count int) BloodUnit {
	t.Helper()
	created, err := repo.CreateUnit(context.Background(), BloodUnit{
		DonationID:  uuid.New(),
		Units:       count,
		VolumeML:    450,
		BagType:     BagSingle,
		CollectedAt: expiresAt.Add(-ShelfLife),
		ExpiresAt:   expiresAt,
		InventoryID: &inventoryID,
	})
	require.NoError(t, err)
	updated, err := repo.SetTestResult(context.Background(), created.ID, outcome, group, invNow)
	require.NoError(t, err)
	return *updated
}

func TestCheckAvailabilityExcludesExpired(t *testing.T) {
	inv, repo := newTestInventory(t)
	bankID := uuid.New()

	seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, invNow.Add(10*24*time.Hour), 1)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, invNow.Add(20*24*time.Hour), 1)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, invNow.Add(-time.Hour), 1) // expired

	got, err := inv.CheckAvailability(context.Background(), bankID, Exact(GroupAPos), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnitsAvailable)
	assert.Equal(t, 2, got.RecordCount)
	assert.True(t, got.Sufficient)

	got, err = inv.CheckAvailability(context.Background(), bankID, Exact(GroupAPos), 3)
	require.NoError(t, err)
	assert.False(t, got.Sufficient)
}

func TestCheckAvailabilityFilters(t *testing.T) {
	inv, repo := newTestInventory(t)
	bankID := uuid.New()
	otherBank := uuid.New()

	fresh := invNow.Add(10 * 24 * time.Hour)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, fresh, 1)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupONeg, fresh, 2)
	seedUnit(t, repo, bankID, OutcomeUnsafe, GroupAPos, fresh, 1)
	seedUnit(t, repo, otherBank, OutcomeSafe, GroupAPos, fresh, 1)

	got, err := inv.CheckAvailability(context.Background(), bankID, NoFilter(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UnitsAvailable)
	assert.Equal(t, 2, got.RecordCount)

	got, err = inv.CheckAvailability(context.Background(), bankID, Exact(GroupONeg), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnitsAvailable)
	assert.Equal(t, 1, got.RecordCount)
	assert.True(t, got.Sufficient)
}

func TestAvailabilityNeverGrowsAfterDisposal(t *testing.T) {
	inv, repo := newTestInventory(t)
	bankID := uuid.New()

	fresh := invNow.Add(10 * 24 * time.Hour)
	a := seedUnit(t, repo, bankID, OutcomeSafe, GroupBPos, fresh, 1)
	b := seedUnit(t, repo, bankID, OutcomeSafe, GroupBPos, fresh, 1)

	before, err := inv.CheckAvailability(context.Background(), bankID, Exact(GroupBPos), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, before.UnitsAvailable)

	_, err = repo.DisposeUnit(context.Background(), a.ID, DisposalWasted)
	require.NoError(t, err)
	_, err = repo.ConsumeUnit(context.Background(), b.ID, invNow)
	require.NoError(t, err)

	after, err := inv.CheckAvailability(context.Background(), bankID, Exact(GroupBPos), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, after.UnitsAvailable)
	assert.False(t, after.Sufficient)
}

func TestListNearingExpiry(t *testing.T) {
	inv, repo := newTestInventory(t)
	bankID := uuid.New()

	soon := seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, invNow.Add(3*24*time.Hour), 1)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, invNow.Add(20*24*time.Hour), 1)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, invNow.Add(-time.Hour), 1) // already expired

	near, err := inv.ListNearingExpiry(context.Background(), bankID)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, soon.ID, near[0].ID)
}

func TestGroupBucketsAlwaysEight(t *testing.T) {
	inv, repo := newTestInventory(t)
	bankID := uuid.New()

	fresh := invNow.Add(10 * 24 * time.Hour)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, fresh, 2)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupAPos, fresh, 1)
	seedUnit(t, repo, bankID, OutcomeSafe, GroupONeg, fresh, 1)

	buckets, err := inv.GroupBuckets(context.Background(), bankID)
	require.NoError(t, err)
	require.Len(t, buckets, len(Groups))

	byGroup := make(map[Group]GroupBucket, len(buckets))
	for i, b := range buckets {
		assert.Equal(t, Groups[i], b.Group)
		byGroup[b.Group] = b
	}
	assert.Equal(t, 3, byGroup[GroupAPos].Units)
	assert.Len(t, byGroup[GroupAPos].IDs, 2)
	assert.Equal(t, 1, byGroup[GroupONeg].Units)
	assert.Equal(t, 0, byGroup[GroupBNeg].Units)
	assert.Empty(t, byGroup[GroupBNeg].IDs)
}

func TestGroupBucketsEmptyInventory(t *testing.T) {
	inv, _ := newTestInventory(t)

	buckets, err := inv.GroupBuckets(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, buckets, len(Groups))
	for _, b := range buckets {
		assert.Zero(t, b.Units)
		assert.Empty(t, b.IDs)
	}
}
