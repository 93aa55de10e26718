package transit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hemolink/bloodbank/internal/blood"
	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/notify"
	redisclient "github.com/hemolink/bloodbank/internal/redis"
)

// fakeTransitRepo enforces the one-active-transit rule inside CreateTransit,
// like the partial unique index does in the store.
type fakeTransitRepo struct {
	mu       sync.Mutex
	transits map[uuid.UUID]Transit
	requests map[uuid.UUID]Request
}

func newFakeTransitRepo() *fakeTransitRepo {
	return &fakeTransitRepo{
		transits: make(map[uuid.UUID]Transit),
		requests: make(map[uuid.UUID]Request),
	}
}

func (f *fakeTransitRepo) CreateTransit(_ context.Context, t Transit) (*Transit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.transits {
		if existing.UnitID == t.UnitID && existing.Status == StatusInTransit {
			return nil, ErrTransitConflict
		}
	}

	t.ID = uuid.New()
	t.Status = StatusInTransit
	f.transits[t.ID] = t
	out := t
	return &out, nil
}

func (f *fakeTransitRepo) GetTransit(_ context.Context, id uuid.UUID) (*Transit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.transits[id]
	if !ok {
		return nil, ErrTransitNotFound
	}
	out := t
	return &out, nil
}

func (f *fakeTransitRepo) GetActiveTransitForUnit(_ context.Context, unitID uuid.UUID) (*Transit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.transits {
		if t.UnitID == unitID && t.Status == StatusInTransit {
			out := t
			return &out, nil
		}
	}
	return nil, ErrTransitNotFound
}

func (f *fakeTransitRepo) UpdateTransitStatus(_ context.Context, id uuid.UUID, from, to Status) (*Transit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.transits[id]
	if !ok || t.Status != from {
		return nil, ErrTransitNotFound
	}
	t.Status = to
	if to == StatusDelivered {
		now := time.Now()
		t.DeliveredAt = &now
	}
	f.transits[id] = t
	out := t
	return &out, nil
}

func (f *fakeTransitRepo) ListForBank(_ context.Context, bankID uuid.UUID) ([]Transit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []Transit
	for _, t := range f.transits {
		if t.SourceBankID != nil && *t.SourceBankID == bankID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (f *fakeTransitRepo) ListForHospital(_ context.Context, hospitalID uuid.UUID) ([]Transit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []Transit
	for _, t := range f.transits {
		if t.DestinationID == hospitalID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (f *fakeTransitRepo) CreateRequest(_ context.Context, r Request) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r.ID = uuid.New()
	r.Status = RequestPending
	f.requests[r.ID] = r
	out := r
	return &out, nil
}

func (f *fakeTransitRepo) GetRequest(_ context.Context, id uuid.UUID) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	out := r
	return &out, nil
}

func (f *fakeTransitRepo) UpdateRequestStatus(_ context.Context, id uuid.UUID, from, to RequestStatus) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.requests[id]
	if !ok || r.Status != from {
		return nil, ErrRequestNotFound
	}
	r.Status = to
	f.requests[id] = r
	out := r
	return &out, nil
}

type fakeUnits struct {
	mu    sync.Mutex
	units map[uuid.UUID]blood.BloodUnit
}

func newFakeUnits() *fakeUnits {
	return &fakeUnits{units: make(map[uuid.UUID]blood.BloodUnit)}
}

func (f *fakeUnits) add(status blood.TestStatus, consumed, disposed bool) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.New()
	f.units[id] = blood.BloodUnit{
		ID:        id,
		Units:     1,
		Status:    status,
		Consumed:  consumed,
		Disposed:  disposed,
		ExpiresAt: time.Now().Add(20 * 24 * time.Hour),
	}
	return id
}

func (f *fakeUnits) addExpired() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.New()
	f.units[id] = blood.BloodUnit{
		ID:        id,
		Units:     1,
		Status:    blood.StatusSafe,
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}
	return id
}

func (f *fakeUnits) GetUnit(_ context.Context, id uuid.UUID) (*blood.BloodUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.units[id]
	if !ok {
		return nil, blood.ErrUnitNotFound
	}
	out := u
	return &out, nil
}

type fakeDirectory struct {
	mu   sync.Mutex
	facs map[uuid.UUID]directory.Facility
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{facs: make(map[uuid.UUID]directory.Facility)}
}

func (f *fakeDirectory) addFacility(kind directory.FacilityKind) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.facs[id] = directory.Facility{ID: id, Kind: kind}
	return id
}

func (f *fakeDirectory) GetDonor(_ context.Context, _ uuid.UUID) (*directory.Donor, error) {
	return nil, directory.ErrDonorNotFound
}

func (f *fakeDirectory) GetFacility(_ context.Context, id uuid.UUID) (*directory.Facility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.facs[id]
	if !ok {
		return nil, directory.ErrFacilityNotFound
	}
	out := fc
	return &out, nil
}

func (f *fakeDirectory) SetDonorNextEligible(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return directory.ErrDonorNotFound
}

func newTestTransitService(t *testing.T) (*Service, *fakeTransitRepo, *fakeUnits, *fakeDirectory) {
	t.Helper()
	repo := newFakeTransitRepo()
	units := newFakeUnits()
	dir := newFakeDirectory()
	svc := NewService(repo, units, dir, redisclient.NopLocker{}, notify.Nop{}, zap.NewNop())
	return svc, repo, units, dir
}

func TestDispatchPreconditionOrder(t *testing.T) {
	svc, _, units, dir := newTestTransitService(t)
	hospital := dir.addFacility(directory.FacilityHospital)

	// Unknown unit fails before anything else, even with everything else
	// invalid too.
	_, err := svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        uuid.New(),
		DestinationID: uuid.New(),
	})
	assert.ErrorIs(t, err, blood.ErrUnitNotFound)

	safe := units.add(blood.StatusSafe, false, false)

	// Unknown destination is next.
	_, err = svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        safe,
		DestinationID: uuid.New(),
	})
	assert.ErrorIs(t, err, directory.ErrFacilityNotFound)

	// A missing vehicle is caught before the unit's state.
	consumed := units.add(blood.StatusSafe, true, false)
	_, err = svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        consumed,
		DestinationID: hospital,
	})
	assert.ErrorIs(t, err, ErrVehicleRequired)

	// Terminal unit, then untested unit.
	_, err = svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        consumed,
		DestinationID: hospital,
		Vehicle:       "van-1",
	})
	assert.ErrorIs(t, err, ErrUnitTerminal)

	pending := units.add(blood.StatusPending, false, false)
	_, err = svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        pending,
		DestinationID: hospital,
		Vehicle:       "van-1",
	})
	assert.ErrorIs(t, err, ErrNotSafeForTransit)

	unsafe := units.add(blood.StatusUnsafe, false, true)
	_, err = svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        unsafe,
		DestinationID: hospital,
		Vehicle:       "van-1",
	})
	assert.ErrorIs(t, err, ErrUnitTerminal)

	created, err := svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        safe,
		DestinationID: hospital,
		Vehicle:       "van-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, created.Status)
	assert.False(t, created.DispatchedAt.IsZero())
}

func TestDispatchRejectsExpiredUnit(t *testing.T) {
	svc, repo, units, dir := newTestTransitService(t)
	hospital := dir.addFacility(directory.FacilityHospital)
	expired := units.addExpired()

	_, err := svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        expired,
		DestinationID: hospital,
		Vehicle:       "van-1",
	})
	assert.ErrorIs(t, err, ErrUnitExpired)

	_, err = repo.GetActiveTransitForUnit(context.Background(), expired)
	assert.ErrorIs(t, err, ErrTransitNotFound)
}

func TestDispatchValidatesReferences(t *testing.T) {
	svc, repo, units, dir := newTestTransitService(t)
	hospital := dir.addFacility(directory.FacilityHospital)
	safe := units.add(blood.StatusSafe, false, false)

	unknownBank := uuid.New()
	_, err := svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        safe,
		DestinationID: hospital,
		Vehicle:       "van-1",
		SourceBankID:  &unknownBank,
	})
	assert.ErrorIs(t, err, directory.ErrFacilityNotFound)

	unknownReq := uuid.New()
	_, err = svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        safe,
		DestinationID: hospital,
		Vehicle:       "van-1",
		RequestID:     &unknownReq,
	})
	assert.ErrorIs(t, err, ErrRequestNotFound)

	bank := dir.addFacility(directory.FacilityBloodBank)
	req, err := repo.CreateRequest(context.Background(), Request{
		FacilityID: hospital,
		Urgency:    UrgencyHigh,
		Quantities: map[blood.Group]int{blood.GroupAPos: 1},
	})
	require.NoError(t, err)

	created, err := svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        safe,
		DestinationID: hospital,
		Vehicle:       "van-1",
		SourceBankID:  &bank,
		RequestID:     &req.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, created.SourceBankID)
	assert.Equal(t, bank, *created.SourceBankID)
	require.NotNil(t, created.RequestID)
	assert.Equal(t, req.ID, *created.RequestID)
}

func TestDispatchOneActiveTransitPerUnit(t *testing.T) {
	svc, _, units, dir := newTestTransitService(t)
	hospital := dir.addFacility(directory.FacilityHospital)
	safe := units.add(blood.StatusSafe, false, false)

	first, err := svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        safe,
		DestinationID: hospital,
		Vehicle:       "van-1",
	})
	require.NoError(t, err)

	_, err = svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        safe,
		DestinationID: dir.addFacility(directory.FacilityHospital),
		Vehicle:       "van-2",
	})
	assert.ErrorIs(t, err, ErrTransitConflict)

	// A failed transit releases the unit for a fresh dispatch.
	_, err = svc.Fail(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = svc.Dispatch(context.Background(), DispatchParams{
		UnitID:        safe,
		DestinationID: hospital,
		Vehicle:       "van-2",
	})
	require.NoError(t, err)
}

func TestDispatchConcurrent(t *testing.T) {
	svc, repo, units, dir := newTestTransitService(t)
	hospital := dir.addFacility(directory.FacilityHospital)
	safe := units.add(blood.StatusSafe, false, false)

	const dispatchers = 16
	errs := make(chan error, dispatchers)

	var wg sync.WaitGroup
	for i := 0; i < dispatchers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Dispatch(context.Background(), DispatchParams{
				UnitID:        safe,
				DestinationID: hospital,
				Vehicle:       "van-1",
			})
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
			assert.ErrorIs(t, err, ErrTransitConflict)
		}
	}
	assert.Equal(t, 1, wins)

	active, err := repo.GetActiveTransitForUnit(context.Background(), safe)
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, active.Status)
}

func TestTransitFinishOneWay(t *testing.T) {
	svc, _, units, dir := newTestTransitService(t)
	hospital := dir.addFacility(directory.FacilityHospital)

	dispatch := func() *Transit {
		created, err := svc.Dispatch(context.Background(), DispatchParams{
			UnitID:        units.add(blood.StatusSafe, false, false),
			DestinationID: hospital,
			Vehicle:       "van-1",
		})
		require.NoError(t, err)
		return created
	}

	delivered := dispatch()
	got, err := svc.Complete(context.Background(), delivered.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)

	_, err = svc.Complete(context.Background(), delivered.ID)
	assert.ErrorIs(t, err, ErrTransitNotActive)
	_, err = svc.Fail(context.Background(), delivered.ID)
	assert.ErrorIs(t, err, ErrTransitNotActive)

	failed := dispatch()
	got, err = svc.Fail(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, got.DeliveredAt)

	_, err = svc.Complete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTransitNotFound)
}

func TestCreateRequestValidation(t *testing.T) {
	svc, _, _, dir := newTestTransitService(t)
	hospital := dir.addFacility(directory.FacilityHospital)

	_, err := svc.CreateRequest(context.Background(), hospital, "SOON",
		map[blood.Group]int{blood.GroupAPos: 1})
	assert.ErrorIs(t, err, ErrInvalidUrgency)

	_, err = svc.CreateRequest(context.Background(), hospital, UrgencyHigh,
		map[blood.Group]int{blood.GroupAPos: -2})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CreateRequest(context.Background(), hospital, UrgencyHigh, nil)
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = svc.CreateRequest(context.Background(), hospital, UrgencyHigh,
		map[blood.Group]int{blood.GroupAPos: 0, blood.GroupONeg: 0})
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = svc.CreateRequest(context.Background(), uuid.New(), UrgencyHigh,
		map[blood.Group]int{blood.GroupAPos: 1})
	assert.ErrorIs(t, err, directory.ErrFacilityNotFound)

	req, err := svc.CreateRequest(context.Background(), hospital, UrgencyCritical,
		map[blood.Group]int{blood.GroupAPos: 2, blood.GroupONeg: 1})
	require.NoError(t, err)
	assert.Equal(t, RequestPending, req.Status)
	assert.Equal(t, 3, req.TotalUnits())
}

func TestMarkRequestFulfilled(t *testing.T) {
	svc, _, _, dir := newTestTransitService(t)
	hospital := dir.addFacility(directory.FacilityHospital)

	req, err := svc.CreateRequest(context.Background(), hospital, UrgencyMedium,
		map[blood.Group]int{blood.GroupBPos: 1})
	require.NoError(t, err)

	done, err := svc.MarkRequestFulfilled(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestFulfilled, done.Status)

	_, err = svc.MarkRequestFulfilled(context.Background(), req.ID)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}
