package blood

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/notify"
)

type fakeDirectory struct {
	mu         sync.Mutex
	donors     map[uuid.UUID]directory.Donor
	facilities map[uuid.UUID]directory.Facility
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		donors:     make(map[uuid.UUID]directory.Donor),
		facilities: make(map[uuid.UUID]directory.Facility),
	}
}

func (f *fakeDirectory) addDonor() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.donors[id] = directory.Donor{ID: id, Name: "donor"}
	return id
}

func (f *fakeDirectory) addFacility() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.facilities[id] = directory.Facility{ID: id, Name: "facility", Kind: directory.FacilityBloodBank}
	return id
}

func (f *fakeDirectory) GetDonor(_ context.Context, id uuid.UUID) (*directory.Donor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donors[id]
	if !ok {
		return nil, directory.ErrDonorNotFound
	}
	return &d, nil
}

func (f *fakeDirectory) GetFacility(_ context.Context, id uuid.UUID) (*directory.Facility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fac, ok := f.facilities[id]
	if !ok {
		return nil, directory.ErrFacilityNotFound
	}
	return &fac, nil
}

func (f *fakeDirectory) SetDonorNextEligible(_ context.Context, donorID uuid.UUID, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donors[donorID]
	if !ok {
		return directory.ErrDonorNotFound
	}
	d.NextEligibleDate = &next
	f.donors[donorID] = d
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeDirectory) {
	t.Helper()
	repo := newFakeRepo()
	dir := newFakeDirectory()
	svc := NewService(repo, dir, notify.Nop{}, zap.NewNop())
	return svc, repo, dir
}

func TestRecordDonationSetsExpiry(t *testing.T) {
	svc, _, dir := newTestService(t)

	collected := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return collected }

	donorID := dir.addDonor()
	facilityID := dir.addFacility()

	donation, units, err := svc.RecordDonation(context.Background(), donorID, facilityID,
		[]BagSpec{{VolumeML: 450, BagType: BagSingle, Units: 1}})
	require.NoError(t, err)
	require.Len(t, units, 1)

	assert.Equal(t, donorID, donation.DonorID)
	assert.Equal(t, StatusPending, units[0].Status)
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), units[0].ExpiresAt)

	donor, err := dir.GetDonor(context.Background(), donorID)
	require.NoError(t, err)
	require.NotNil(t, donor.NextEligibleDate)
	assert.False(t, donor.EligibleAt(collected.Add(24*time.Hour)))
	assert.True(t, donor.EligibleAt(collected.Add(91*24*time.Hour)))
}

func TestRecordDonationSucceedsWhenSinkIsDown(t *testing.T) {
	repo := newFakeRepo()
	dir := newFakeDirectory()

	// A webhook receiver that has already gone away refuses every connection.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := NewService(repo, dir, notify.NewWebhook(url, zap.NewNop()), zap.NewNop())

	donorID := dir.addDonor()
	facilityID := dir.addFacility()

	donation, units, err := svc.RecordDonation(context.Background(), donorID, facilityID,
		[]BagSpec{{VolumeML: 450, BagType: BagSingle, Units: 1}})
	require.NoError(t, err)
	require.NotNil(t, donation)
	assert.Len(t, units, 1)
}

func TestRecordDonationValidation(t *testing.T) {
	svc, _, dir := newTestService(t)
	donorID := dir.addDonor()
	facilityID := dir.addFacility()

	tests := []struct {
		name string
		bags []BagSpec
	}{
		{"no bags", nil},
		{"zero volume", []BagSpec{{VolumeML: 0, BagType: BagSingle, Units: 1}}},
		{"negative volume", []BagSpec{{VolumeML: -10, BagType: BagSingle, Units: 1}}},
		{"zero units", []BagSpec{{VolumeML: 450, BagType: BagSingle, Units: 0}}},
		{"bad bag type", []BagSpec{{VolumeML: 450, BagType: "BUCKET", Units: 1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.RecordDonation(context.Background(), donorID, facilityID, tc.bags)
			assert.ErrorIs(t, err, ErrInvalidBagSpec)
		})
	}

	_, _, err := svc.RecordDonation(context.Background(), uuid.New(), facilityID,
		[]BagSpec{{VolumeML: 450, BagType: BagSingle, Units: 1}})
	assert.ErrorIs(t, err, directory.ErrDonorNotFound)

	_, _, err = svc.RecordDonation(context.Background(), donorID, uuid.New(),
		[]BagSpec{{VolumeML: 450, BagType: BagSingle, Units: 1}})
	assert.ErrorIs(t, err, directory.ErrFacilityNotFound)
}

func donateOne(t *testing.T, svc *Service, dir *fakeDirectory) BloodUnit {
	t.Helper()
	donorID := dir.addDonor()
	facilityID := dir.addFacility()
	_, units, err := svc.RecordDonation(context.Background(), donorID, facilityID,
		[]BagSpec{{VolumeML: 450, BagType: BagSingle, Units: 1}})
	require.NoError(t, err)
	require.Len(t, units, 1)
	return units[0]
}

func TestRecordTestResultOneWay(t *testing.T) {
	svc, _, dir := newTestService(t)
	unit := donateOne(t, svc, dir)

	updated, err := svc.RecordTestResult(context.Background(), unit.ID, OutcomeSafe, GroupAPos)
	require.NoError(t, err)
	assert.Equal(t, StatusSafe, updated.Status)
	require.NotNil(t, updated.Group)
	assert.Equal(t, GroupAPos, *updated.Group)

	// Second test attempt must be rejected, whatever the outcome.
	_, err = svc.RecordTestResult(context.Background(), unit.ID, OutcomeUnsafe, GroupAPos)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.RecordTestResult(context.Background(), unit.ID, OutcomeSafe, GroupAPos)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordTestResultUnsafeDisposes(t *testing.T) {
	svc, _, dir := newTestService(t)
	unit := donateOne(t, svc, dir)

	updated, err := svc.RecordTestResult(context.Background(), unit.ID, OutcomeUnsafe, GroupOPos)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsafe, updated.Status)
	assert.True(t, updated.Disposed)
	require.NotNil(t, updated.DisposalReason)
	assert.Equal(t, DisposalUnsafe, *updated.DisposalReason)
}

func TestRecordTestResultConcurrent(t *testing.T) {
	svc, _, dir := newTestService(t)
	unit := donateOne(t, svc, dir)

	const attempts = 16
	errs := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordTestResult(context.Background(), unit.ID, OutcomeSafe, GroupBNeg)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestMarkConsumedGuards(t *testing.T) {
	svc, _, dir := newTestService(t)

	// Pending unit cannot be consumed.
	pending := donateOne(t, svc, dir)
	_, err := svc.MarkConsumed(context.Background(), pending.ID)
	assert.ErrorIs(t, err, ErrUnitNotAvailable)

	// Safe unit can, once.
	unit := donateOne(t, svc, dir)
	_, err = svc.RecordTestResult(context.Background(), unit.ID, OutcomeSafe, GroupAPos)
	require.NoError(t, err)

	consumed, err := svc.MarkConsumed(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.True(t, consumed.Consumed)

	_, err = svc.MarkConsumed(context.Background(), unit.ID)
	assert.ErrorIs(t, err, ErrUnitTerminal)

	// Consumed unit cannot be disposed either.
	_, err = svc.Dispose(context.Background(), unit.ID, DisposalWasted)
	assert.ErrorIs(t, err, ErrUnitTerminal)
}

func TestMarkConsumedExpired(t *testing.T) {
	svc, _, dir := newTestService(t)
	unit := donateOne(t, svc, dir)
	_, err := svc.RecordTestResult(context.Background(), unit.ID, OutcomeSafe, GroupAPos)
	require.NoError(t, err)

	svc.now = func() time.Time { return unit.ExpiresAt.Add(time.Hour) }

	_, err = svc.MarkConsumed(context.Background(), unit.ID)
	assert.ErrorIs(t, err, ErrUnitNotAvailable)
}

func TestDispose(t *testing.T) {
	svc, _, dir := newTestService(t)
	unit := donateOne(t, svc, dir)

	disposed, err := svc.Dispose(context.Background(), unit.ID, DisposalWasted)
	require.NoError(t, err)
	assert.True(t, disposed.Disposed)

	_, err = svc.Dispose(context.Background(), unit.ID, DisposalWasted)
	assert.ErrorIs(t, err, ErrUnitTerminal)

	_, err = svc.MarkConsumed(context.Background(), unit.ID)
	assert.ErrorIs(t, err, ErrUnitTerminal)
}

func TestSweepExpired(t *testing.T) {
	svc, repo, dir := newTestService(t)

	fresh := donateOne(t, svc, dir)
	stale := donateOne(t, svc, dir)

	svc.now = func() time.Time { return stale.ExpiresAt.Add(time.Hour) }
	// fresh and stale were donated at the same instant, so move fresh's
	// expiry forward to keep it alive.
	repo.mu.Lock()
	u := repo.units[fresh.ID]
	u.ExpiresAt = stale.ExpiresAt.Add(48 * time.Hour)
	repo.units[fresh.ID] = u
	repo.mu.Unlock()

	disposed, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, disposed)

	got, err := svc.GetUnit(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.True(t, got.Disposed)
	require.NotNil(t, got.DisposalReason)
	assert.Equal(t, DisposalExpired, *got.DisposalReason)

	// Sweep again: nothing left to do, no errors.
	disposed, err = svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, disposed)
}
