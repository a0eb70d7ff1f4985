package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendix/attendix/internal/anomaly"
	"github.com/attendix/attendix/internal/audit"
	apperrors "github.com/attendix/attendix/internal/common/errors"
	"github.com/attendix/attendix/internal/devicerisk"
	"github.com/attendix/attendix/internal/geo"
	"github.com/attendix/attendix/internal/integrity"
	"github.com/attendix/attendix/internal/schedule"
)

const testUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.130 Safari/537.36"

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	sites  map[string]schedule.Site
	events map[string]*Event
}

func newFakeStore(sites ...schedule.Site) *fakeStore {
	s := &fakeStore{
		sites:  make(map[string]schedule.Site),
		events: make(map[string]*Event),
	}
	for _, site := range sites {
		s.sites[site.ID] = site
	}
	return s
}

func (s *fakeStore) SiteByID(_ context.Context, id string) (schedule.Site, error) {
	site, ok := s.sites[id]
	if !ok {
		return schedule.Site{}, ErrNotFound
	}
	return site, nil
}

func (s *fakeStore) CreateEvent(_ context.Context, event *Event) error {
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *fakeStore) GetEvent(_ context.Context, id string) (*Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) OpenEvent(_ context.Context, userID string) (*Event, error) {
	var open *Event
	for _, e := range s.events {
		if e.UserID != userID || e.CheckOut != nil {
			continue
		}
		if open == nil || e.CheckIn.After(open.CheckIn) {
			open = e
		}
	}
	if open == nil {
		return nil, ErrNotFound
	}
	cp := *open
	return &cp, nil
}

func (s *fakeStore) CompleteEvent(_ context.Context, event *Event) error {
	if _, ok := s.events[event.ID]; !ok {
		return ErrNotFound
	}
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *fakeStore) ListEvents(_ context.Context, userID string, since time.Time, _ int) ([]Event, error) {
	var out []Event
	for _, e := range s.events {
		if e.UserID == userID && !e.CheckIn.Before(since) {
			out = append(out, *e)
		}
	}
	// ascending by check-in
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CheckIn.Before(out[i].CheckIn) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *fakeStore) PhotoMeta(_ context.Context, eventID string) (PhotoMeta, error) {
	e, ok := s.events[eventID]
	if !ok {
		return PhotoMeta{}, ErrNotFound
	}
	return PhotoMeta{HasPhoto: e.HasPhoto, ByteSize: e.PhotoByteSize}, nil
}

func testSite() schedule.Site {
	return schedule.Site{
		ID:           "site-hq",
		Name:         "Jakarta HQ",
		Center:       geo.Coordinate{Latitude: -6.2, Longitude: 106.8},
		RadiusMeters: 50,
		Timezone:     "Asia/Jakarta",

		OperationalStart: "09:00",
		OperationalEnd:   "18:00",
		WorkDays:         []int{1, 2, 3, 4, 5},

		GracePeriodMinutes:            5,
		LateToleranceMinutes:          15,
		EarlyCheckoutToleranceMinutes: 30,
		OvertimeThresholdMinutes:      60,
	}
}

// newTestService wires a service over the fake store with an in-memory
// device cache and a frozen clock.
func newTestService(t *testing.T, store *fakeStore, at time.Time) *Service {
	t.Helper()
	scorer := devicerisk.NewScorer(devicerisk.NewMemoryCache(devicerisk.CachePolicy{}), nil)
	detector := anomaly.NewDetector(anomaly.DefaultConfig(), nil)
	gw := integrity.NewGateway(scorer, detector, integrity.DefaultConfig(), nil)

	svc := NewService(store, gw, audit.NopSink{}, DefaultServiceConfig(), nil)
	svc.now = func() time.Time { return at }
	return svc
}

// jakartaMonday returns Monday 2025-03-10 at the given local time.
func jakartaMonday(t *testing.T, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	return time.Date(2025, 3, 10, hour, min, 0, 0, loc)
}

func nearbyCheckIn(userID string) CheckInRequest {
	return CheckInRequest{
		UserID:     userID,
		SiteID:     "site-hq",
		Coordinate: geo.Coordinate{Latitude: -6.2001, Longitude: 106.8},
		Signals: devicerisk.ClientSignals{
			UserID:    userID,
			IP:        "24.100.50.10",
			UserAgent: testUserAgent,
		},
	}
}

func TestCheckInPersistsAcceptedEvent(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	result, err := svc.CheckIn(context.Background(), nearbyCheckIn("emp-1"))
	require.NoError(t, err)
	require.NotNil(t, result.Event)

	assert.True(t, result.Decision.Accepted)
	assert.Equal(t, schedule.StatusOnTime, result.Event.Status)
	assert.Equal(t, 100.0, result.Event.Score)
	assert.NotEmpty(t, result.Event.Fingerprint)

	stored, err := store.GetEvent(context.Background(), result.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", stored.UserID)
	assert.Nil(t, stored.CheckOut)
}

func TestCheckInUnknownSite(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	req := nearbyCheckIn("emp-1")
	req.SiteID = "nope"
	_, err := svc.CheckIn(context.Background(), req)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrSiteNotFound))
}

func TestCheckInTwiceRejected(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	_, err := svc.CheckIn(context.Background(), nearbyCheckIn("emp-1"))
	require.NoError(t, err)

	_, err = svc.CheckIn(context.Background(), nearbyCheckIn("emp-1"))
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrAlreadyCheckedIn))
	assert.Len(t, store.events, 1)
}

func TestCheckInGeofenceRejectionNotPersisted(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	req := nearbyCheckIn("emp-1")
	req.Coordinate = geo.Coordinate{Latitude: -6.21, Longitude: 106.8} // ~1.1km away
	_, err := svc.CheckIn(context.Background(), req)

	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrGeofenceViolation))
	assert.Empty(t, store.events)
}

func TestCheckInOutsideWindowRejected(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 20, 0))

	_, err := svc.CheckIn(context.Background(), nearbyCheckIn("emp-1"))
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrPolicyViolation))
}

func TestCheckOutCompletesEvent(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	_, err := svc.CheckIn(context.Background(), nearbyCheckIn("emp-1"))
	require.NoError(t, err)

	// check out at 18:05 local, within the early-checkout tolerance window
	svc.now = func() time.Time { return jakartaMonday(t, 18, 5) }
	req := nearbyCheckIn("emp-1")
	result, err := svc.CheckOut(context.Background(), CheckOutRequest{
		UserID:     "emp-1",
		Coordinate: req.Coordinate,
		Signals:    req.Signals,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Event.CheckOut)

	assert.Equal(t, schedule.StatusOnTime, result.Event.Status)
	assert.Equal(t, 545, result.Event.WorkDurationMinutes)

	stored, err := store.GetEvent(context.Background(), result.Event.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CheckOut)
}

func TestCheckOutWithoutOpenEvent(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 18, 0))

	req := nearbyCheckIn("emp-1")
	_, err := svc.CheckOut(context.Background(), CheckOutRequest{
		UserID:     "emp-1",
		Coordinate: req.Coordinate,
		Signals:    req.Signals,
	})
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrNoOpenCheckIn))
}

func TestCheckOutAllowedOutsideWindow(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	_, err := svc.CheckIn(context.Background(), nearbyCheckIn("emp-1"))
	require.NoError(t, err)

	// 20:00 is past the operational window; check-outs are exempt from the
	// window check and the stay counts as overtime.
	svc.now = func() time.Time { return jakartaMonday(t, 20, 0) }
	req := nearbyCheckIn("emp-1")
	result, err := svc.CheckOut(context.Background(), CheckOutRequest{
		UserID:     "emp-1",
		Coordinate: req.Coordinate,
		Signals:    req.Signals,
	})
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusOvertime, result.Event.Status)
	assert.Equal(t, 120, result.Event.OvertimeMinutes)
}

func TestHistoryReturnsAscendingEvents(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	base := jakartaMonday(t, 9, 0)
	for i := 0; i < 3; i++ {
		e := NewEvent("emp-1", "site-hq", base)
		e.CheckIn = base.AddDate(0, 0, -i)
		e.Status = schedule.StatusOnTime
		require.NoError(t, store.CreateEvent(context.Background(), e))
	}

	events, err := svc.History(context.Background(), "emp-1", 30)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].CheckIn.Before(events[1].CheckIn))
	assert.True(t, events[1].CheckIn.Before(events[2].CheckIn))
}

func TestHistoryEmptyIsNotNil(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	events, err := svc.History(context.Background(), "emp-1", 30)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestAnomaliesInsufficientData(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	base := jakartaMonday(t, 9, 0)
	for i := 0; i < 3; i++ {
		e := NewEvent("emp-1", "site-hq", base)
		e.CheckIn = base.AddDate(0, 0, -i)
		require.NoError(t, store.CreateEvent(context.Background(), e))
	}

	report, err := svc.Anomalies(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.True(t, report.InsufficientData)
	assert.Equal(t, anomaly.RiskNone, report.RiskLevel)
}

func TestAnomaliesDetectsMissingPhotos(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	// Six checked-out events, none with a photo, at slightly scattered
	// timings so only the photo check fires cleanly.
	base := jakartaMonday(t, 9, 0)
	for i := 0; i < 6; i++ {
		e := NewEvent("emp-1", "site-hq", base)
		e.CheckIn = base.AddDate(0, 0, -i).Add(time.Duration(i*7) * time.Minute)
		out := e.CheckIn.Add(9 * time.Hour)
		e.CheckOut = &out
		e.Latitude = -6.2 + float64(i)*0.0003
		e.Longitude = 106.8
		require.NoError(t, store.CreateEvent(context.Background(), e))
	}

	report, err := svc.Anomalies(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.False(t, report.InsufficientData)

	found := false
	for _, f := range report.Findings {
		if f.Category == "photo" {
			found = true
		}
	}
	assert.True(t, found, "expected a photo finding, got %+v", report.Findings)
}

func TestSiteWindowOpenAndClosed(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	info, err := svc.SiteWindow(context.Background(), "site-hq", jakartaMonday(t, 10, 0))
	require.NoError(t, err)
	assert.True(t, info.Open)
	assert.Nil(t, info.NextOpen)

	info, err = svc.SiteWindow(context.Background(), "site-hq", jakartaMonday(t, 20, 0))
	require.NoError(t, err)
	assert.False(t, info.Open)
	require.NotNil(t, info.NextOpen)
	assert.Equal(t, time.Tuesday, info.NextOpen.Weekday())
}

func TestSiteWindowUnknownSite(t *testing.T) {
	store := newFakeStore(testSite())
	svc := newTestService(t, store, jakartaMonday(t, 9, 0))

	_, err := svc.SiteWindow(context.Background(), "nope", jakartaMonday(t, 10, 0))
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrSiteNotFound))
}
