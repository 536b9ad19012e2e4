package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/parkgo/internal/repository/redis"
	"github.com/kirinyoku/parkgo/internal/service"
	"github.com/kirinyoku/parkgo/internal/service/payment"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProvider struct {
	n atomic.Int64
}

func (p *fakeProvider) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.ProviderIntent, error) {
	id := fmt.Sprintf("pi_%d", p.n.Add(1))
	return payment.ProviderIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (p *fakeProvider) CancelIntent(context.Context, string, string) error { return nil }
func (p *fakeProvider) Refund(context.Context, string, string) error       { return nil }

type fakeEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Intent        string    `json:"intent"`
	ReservationID uuid.UUID `json:"reservation_id"`
}

func (p *fakeProvider) ParseEvent(payload []byte, sig string) (payment.Event, error) {
	if sig != "ok" {
		return payment.Event{}, payment.ErrInvalidSignature
	}
	var ev fakeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return payment.Event{}, errors.Join(payment.ErrInvalidSignature, err)
	}
	return payment.Event{
		ID:            ev.ID,
		Kind:          domain.PaymentEventKind(ev.Type),
		IntentID:      ev.Intent,
		ReservationID: ev.ReservationID,
	}, nil
}

type memIdempotency struct {
	mu   sync.Mutex
	vals map[string]redisrepo.IdemEntry
}

func (m *memIdempotency) Claim(_ context.Context, key, fp string, _ time.Duration) (redisrepo.IdemEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.vals[key]; ok {
		return e, nil
	}
	m.vals[key] = redisrepo.IdemEntry{State: redisrepo.IdemInFlight, Fingerprint: fp}
	return redisrepo.IdemEntry{State: redisrepo.IdemClaimed, Fingerprint: fp}, nil
}

func (m *memIdempotency) Complete(_ context.Context, key, fp, resp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = redisrepo.IdemEntry{State: redisrepo.IdemDone, Fingerprint: fp, Response: resp}
	return nil
}

func (m *memIdempotency) Abort(_ context.Context, key, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.vals[key]; ok && e.State == redisrepo.IdemInFlight && e.Fingerprint == fp {
		delete(m.vals, key)
	}
	return nil
}

type stubLimiter struct{ allowed bool }

func (l stubLimiter) Allow(context.Context, string) (redisrepo.Decision, error) {
	return redisrepo.Decision{Allowed: l.allowed, RetryAfter: 1500 * time.Millisecond}, nil
}

type fixture struct {
	router   *gin.Engine
	store    *memory.Store
	location int64
	start    time.Time
}

func newFixture(t *testing.T, spots int, limiter Limiter) *fixture {
	t.Helper()

	store := memory.New()
	loc := store.AddLocation(domain.Location{
		Name:            "Central",
		Address:         "1 Main St",
		Latitude:        52.52,
		Longitude:       13.405,
		TotalSpots:      spots,
		AvailableSpots:  spots,
		HourlyRateCents: 250,
		IsActive:        true,
		IsOpen:          true,
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svcs := service.NewServices(store, nil, nil, &fakeProvider{}, log, service.Config{})

	router := NewRouter(svcs, Options{
		JWTSecret:   testSecret,
		Idempotency: &memIdempotency{vals: map[string]redisrepo.IdemEntry{}},
		Limiter:     limiter,
		Hub:         NewHub(),
	}, log)

	return &fixture{router: router, store: store, location: loc, start: time.Now().Add(time.Hour).Truncate(time.Minute)}
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, uid int64) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token(t, jwt.MapClaims{"id": uid})}
}

func (f *fixture) book(t *testing.T, uid int64, headers map[string]string) *httptest.ResponseRecorder {
	h := bearer(t, uid)
	for k, v := range headers {
		h[k] = v
	}
	return f.do(t, http.MethodPost, "/reservations", BookRequest{
		ParkingID: f.location,
		StartTime: f.start,
		EndTime:   f.start.Add(2 * time.Hour),
	}, h)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, 1, nil)
	w := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBookRequiresAuth(t *testing.T) {
	f := newFixture(t, 1, nil)

	w := f.do(t, http.MethodPost, "/reservations", BookRequest{ParkingID: f.location}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/reservations", BookRequest{ParkingID: f.location},
		map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": 1}).SignedString([]byte("other"))
	require.NoError(t, err)
	w = f.do(t, http.MethodPost, "/reservations", BookRequest{ParkingID: f.location},
		map[string]string{"Authorization": "Bearer " + other})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookAndIdempotentReplay(t *testing.T) {
	f := newFixture(t, 2, nil)

	w := f.book(t, 7, map[string]string{"Idempotency-Key": "abc"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	first := decodeBody[BookingResponse](t, w)
	assert.Equal(t, domain.StatusPending, first.Reservation.Status)
	assert.Equal(t, int64(500), first.Reservation.AmountCents)
	assert.NotEmpty(t, first.ClientSecret)

	w = f.book(t, 7, map[string]string{"Idempotency-Key": "abc"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))

	again := decodeBody[BookingResponse](t, w)
	assert.Equal(t, first.Reservation.ID, again.Reservation.ID)

	// one spot taken, not two
	w = f.do(t, http.MethodGet, fmt.Sprintf("/parkings/%d/availability", f.location), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeBody[domain.Availability](t, w).Available)
}

func TestIdempotencyKeyReusedWithOtherPayload(t *testing.T) {
	f := newFixture(t, 3, nil)

	require.Equal(t, http.StatusCreated, f.book(t, 7, map[string]string{"Idempotency-Key": "k1"}).Code)

	h := bearer(t, 7)
	h["Idempotency-Key"] = "k1"
	w := f.do(t, http.MethodPost, "/reservations", BookRequest{
		ParkingID: f.location,
		StartTime: f.start,
		EndTime:   f.start.Add(3 * time.Hour),
	}, h)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// same key from another user is a different key
	assert.Equal(t, http.StatusCreated, f.book(t, 8, map[string]string{"Idempotency-Key": "k1"}).Code)
}

func TestFailedBookingFreesIdempotencyKey(t *testing.T) {
	f := newFixture(t, 1, nil)

	require.Equal(t, http.StatusCreated, f.book(t, 1, nil).Code)

	w := f.book(t, 2, map[string]string{"Idempotency-Key": "retry-me"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"), "no spots is not a key in progress")

	w = f.book(t, 2, map[string]string{"Idempotency-Key": "retry-me"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
}

func TestBookFullLocation(t *testing.T) {
	f := newFixture(t, 1, nil)

	require.Equal(t, http.StatusCreated, f.book(t, 1, nil).Code)

	w := f.book(t, 2, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no spots available", decodeBody[ErrorResponse](t, w).Error)
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t, 1, nil)
	start := time.Now().Add(time.Hour)

	w := f.do(t, http.MethodPost, "/reservations", BookRequest{
		ParkingID: f.location,
		StartTime: start,
		EndTime:   start.Add(-time.Minute),
	}, bearer(t, 1))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/reservations", BookRequest{
		ParkingID: 999,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}, bearer(t, 1))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/reservations", []byte(`{`), bearer(t, 1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimited(t *testing.T) {
	f := newFixture(t, 1, stubLimiter{allowed: false})

	w := f.book(t, 1, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestWebhookConfirmsReservation(t *testing.T) {
	f := newFixture(t, 1, nil)

	booked := decodeBody[BookingResponse](t, f.book(t, 3, nil))
	path := "/reservations/" + booked.Reservation.ID.String()

	payload, err := json.Marshal(fakeEvent{
		ID:            "evt_1",
		Type:          string(domain.EventIntentSucceeded),
		Intent:        booked.Reservation.PaymentIntentID,
		ReservationID: booked.Reservation.ID,
	})
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "forged"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "ok"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "applied", decodeBody[WebhookResponse](t, w).Outcome)

	w = f.do(t, http.MethodPost, "/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "ok"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decodeBody[WebhookResponse](t, w).Outcome)

	w = f.do(t, http.MethodGet, path, nil, bearer(t, 3))
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[domain.Reservation](t, w)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
}

func TestCancelExtendAndOwnership(t *testing.T) {
	f := newFixture(t, 1, nil)

	booked := decodeBody[BookingResponse](t, f.book(t, 4, nil))
	path := "/reservations/" + booked.Reservation.ID.String()

	w := f.do(t, http.MethodGet, path, nil, bearer(t, 5))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, path+"/cancel", nil, bearer(t, 4))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusCancelled, decodeBody[domain.Reservation](t, w).Status)

	w = f.do(t, http.MethodPost, path+"/cancel", CancelRequest{Reason: "again"}, bearer(t, 4))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, path+"/extend", ExtendRequest{
		NewEndTime: booked.Reservation.EndTime.Add(time.Hour),
	}, bearer(t, 4))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/reservations/not-a-uuid", nil, bearer(t, 4))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/reservations", nil, bearer(t, 4))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[ReservationListResponse](t, w).Reservations, 1)

	// the spot came back
	w = f.book(t, 6, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSubClaimFallback(t *testing.T) {
	f := newFixture(t, 1, nil)

	tok := token(t, jwt.MapClaims{"sub": "42"})
	w := f.do(t, http.MethodGet, "/reservations", nil, map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusOK, w.Code)

	tok = token(t, jwt.MapClaims{"sub": "nobody"})
	w = f.do(t, http.MethodGet, "/reservations", nil, map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAvailabilityETag(t *testing.T) {
	f := newFixture(t, 3, nil)
	path := fmt.Sprintf("/parkings/%d/availability", f.location)

	w := f.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	w = f.do(t, http.MethodGet, path, nil, map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusNotModified, w.Code)

	require.Equal(t, http.StatusCreated, f.book(t, 1, nil).Code)

	w = f.do(t, http.MethodGet, path, nil, map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestETagMatches(t *testing.T) {
	tag := `W/"abc"`
	assert.True(t, etagMatches(`W/"abc"`, tag))
	assert.True(t, etagMatches(`"abc"`, tag))
	assert.True(t, etagMatches(`"zzz", W/"abc"`, tag))
	assert.True(t, etagMatches("*", tag))
	assert.False(t, etagMatches(`"abd"`, tag))
	assert.False(t, etagMatches("", tag))
}

func TestParkingQueries(t *testing.T) {
	f := newFixture(t, 3, nil)

	w := f.do(t, http.MethodGet, "/parkings/nearby?latitude=52.52&longitude=13.40&radius=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeBody[LocationListResponse](t, w).Count)

	w = f.do(t, http.MethodGet, "/parkings/nearby?latitude=120&longitude=13.40", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/parkings/search?q=central&maxPrice=3", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeBody[LocationListResponse](t, w).Count)

	w = f.do(t, http.MethodGet, "/parkings/search?minPrice=5&maxPrice=1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/parkings/%d", f.location), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Central", decodeBody[domain.Location](t, w).Name)

	w = f.do(t, http.MethodGet, "/parkings/404", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.subscribe(1)
	other, cancelOther := hub.subscribe(2)
	defer cancelOther()

	require.NoError(t, hub.PublishLocationChanged(context.Background(),
		redisrepo.LocationChange{LocationID: 1, Available: 3, Total: 5}))

	select {
	case a := <-ch:
		assert.Equal(t, domain.Availability{LocationID: 1, Available: 3, Total: 5}, a)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	select {
	case <-other:
		t.Fatal("update leaked to another location")
	default:
	}

	cancel()
	hub.Broadcast(redisrepo.LocationChange{LocationID: 1})
	assert.Empty(t, hub.subs[1])
}

func TestPaymentsHistoryAndStatus(t *testing.T) {
	f := newFixture(t, 2, nil)

	w := f.do(t, http.MethodGet, "/payments", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	booked := decodeBody[BookingResponse](t, f.book(t, 8, nil))
	intent := booked.Reservation.PaymentIntentID
	require.NotEmpty(t, intent)

	w = f.do(t, http.MethodGet, "/payments/status/"+intent, nil, bearer(t, 8))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decodeBody[payment.IntentView](t, w)
	assert.Equal(t, domain.IntentPending, view.Status)
	assert.Equal(t, booked.Reservation.ID.String(), view.ReservationID)

	w = f.do(t, http.MethodGet, "/payments/status/"+intent, nil, bearer(t, 9))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/payments", nil, bearer(t, 8))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[PaymentListResponse](t, w).Payments)

	payload, err := json.Marshal(fakeEvent{
		ID:            "evt_paid",
		Type:          string(domain.EventIntentSucceeded),
		Intent:        intent,
		ReservationID: booked.Reservation.ID,
	})
	require.NoError(t, err)
	w = f.do(t, http.MethodPost, "/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "ok"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/payments", nil, bearer(t, 8))
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[PaymentListResponse](t, w)
	require.Len(t, list.Payments, 1)
	assert.Equal(t, intent, list.Payments[0].IntentID)

	w = f.do(t, http.MethodGet, "/payments/status/"+intent, nil, bearer(t, 8))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.IntentSucceeded, decodeBody[payment.IntentView](t, w).Status)
}

func TestParkingReviews(t *testing.T) {
	f := newFixture(t, 1, nil)
	path := fmt.Sprintf("/parkings/%d/reviews", f.location)

	w := f.do(t, http.MethodPost, path, ReviewRequest{Rating: 4}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, path, ReviewRequest{Rating: 9}, bearer(t, 1))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, path, ReviewRequest{Rating: 4, Comment: "easy to find"}, bearer(t, 1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 4, decodeBody[domain.Review](t, w).Rating)

	w = f.do(t, http.MethodPost, path, ReviewRequest{Rating: 2}, bearer(t, 1))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, path, ReviewRequest{Rating: 2}, bearer(t, 2))
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, path+"?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[ReviewListResponse](t, w)
	require.Len(t, list.Reviews, 1)
	assert.Equal(t, Pagination{Page: 1, Limit: 1, Total: 2, Pages: 2}, list.Pagination)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/parkings/%d", f.location), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	loc := decodeBody[domain.Location](t, w)
	assert.Equal(t, 3.0, loc.Rating)
	assert.Equal(t, 2, loc.TotalRatings)

	w = f.do(t, http.MethodGet, "/parkings/999/reviews", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
