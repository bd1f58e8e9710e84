package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/config"
	"github.com/iliyamo/clubdesk/internal/handler"
	"github.com/iliyamo/clubdesk/internal/middleware"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/pricing"
	"github.com/iliyamo/clubdesk/internal/router"
	"github.com/iliyamo/clubdesk/internal/service"
	"github.com/iliyamo/clubdesk/internal/store/memstore"
	"github.com/iliyamo/clubdesk/internal/utils"
)

const secret = "handler-test-secret"

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type env struct {
	e     *echo.Echo
	st    *memstore.Store
	rec   *broadcast.Recorder
	staff string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zerolog.Nop()
	v := &env{e: echo.New(), st: memstore.New(), rec: &broadcast.Recorder{}}
	svc := service.New(service.Deps{
		Store:       v.st,
		Broadcaster: v.rec,
		Pricing:     pricing.New(decimal.RequireFromString("0.0825"), time.UTC),
		Config: config.CheckinConfig{
			RentalBlockHours: 6,
			MaxStayHours:     24,
			CheckoutClaimTTL: 2 * time.Minute,
			RoomTurnover:     15 * time.Minute,
		},
		Log: log,
		Now: func() time.Time { return now },
	})
	g := router.NewGuards(secret, config.RateLimitConfig{}, config.CacheConfig{}, nil, log)
	router.RegisterRoutes(v.e, log)
	router.RegisterLane(v.e, handler.NewLaneHandler(svc, log), g)
	router.RegisterCheckout(v.e, handler.NewCheckoutHandler(svc, log), g)
	router.RegisterInventory(v.e, handler.NewInventoryHandler(svc, log), g)
	router.RegisterObservers(v.e, handler.NewObserverHandler(broadcast.NewHub(log), log))

	tok, err := utils.NewAccessToken(secret, "staff-1", middleware.RoleStaff, 10)
	require.NoError(t, err)
	v.staff = "Bearer " + tok.Token

	member := "M-100"
	v.st.PutCustomer(model.Customer{ID: "c1", FirstName: "Alex", LastName: "Rivera", MembershipNumber: &member, PastDueBalance: decimal.Zero})
	v.st.PutCustomer(model.Customer{ID: "c2", FirstName: "Sam", LastName: "Lee", PastDueBalance: decimal.Zero})
	v.st.PutResource(model.Resource{ID: "r1", Type: model.ResourceRoom, Number: "101", Tier: model.RentalStandard, Status: model.StatusClean})
	v.st.PutResource(model.Resource{ID: "r2", Type: model.ResourceRoom, Number: "102", Tier: model.RentalStandard, Status: model.StatusClean})
	return v
}

// call sends a JSON request and decodes the JSON response body.
func (v *env) call(t *testing.T, method, path, auth string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

func field(t *testing.T, m map[string]any, keys ...string) any {
	t.Helper()
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		require.True(t, ok, "no object at %q", k)
		cur = obj[k]
	}
	return cur
}

// selectStandard starts customerID on lane and selects STANDARD.
func (v *env) selectStandard(t *testing.T, lane, customerID string) {
	t.Helper()
	code, body := v.call(t, http.MethodPost, "/lane/"+lane+"/start", v.staff, echo.Map{"customerId": customerID})
	require.Equal(t, http.StatusOK, code, body)
	code, body = v.call(t, http.MethodPost, "/lane/"+lane+"/select-rental", v.staff, echo.Map{"desiredRentalType": "STANDARD"})
	require.Equal(t, http.StatusOK, code, body)
}

// checkIn runs the register and kiosk calls of a full check-in of c1 into r1.
func (v *env) checkIn(t *testing.T, lane string) {
	t.Helper()
	v.selectStandard(t, lane, "c1")
	code, body := v.call(t, http.MethodPost, "/lane/"+lane+"/assign", v.staff, echo.Map{"resourceType": "ROOM", "resourceId": "r1"})
	require.Equal(t, http.StatusOK, code, body)
	code, body = v.call(t, http.MethodPost, "/lane/"+lane+"/create-payment-intent", v.staff, nil)
	require.Equal(t, http.StatusOK, code, body)
	id := field(t, body, "paymentIntent", "id").(string)
	code, body = v.call(t, http.MethodPost, "/payments/"+id+"/mark-paid", v.staff, nil)
	require.Equal(t, http.StatusOK, code, body)
	code, body = v.call(t, http.MethodPost, "/lane/"+lane+"/sign-agreement", "", echo.Map{"signaturePayload": "data:image/png;base64,AAAA"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, true, body["completed"])
}

func TestHealth(t *testing.T) {
	v := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}

func TestStaffRoutesRequireToken(t *testing.T) {
	v := newEnv(t)

	code, body := v.call(t, http.MethodPost, "/lane/L1/start", "", echo.Map{"customerId": "c1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	tok, err := utils.NewAccessToken(secret, "guest", "GUEST", 10)
	require.NoError(t, err)
	code, body = v.call(t, http.MethodPost, "/lane/L1/start", "Bearer "+tok.Token, echo.Map{"customerId": "c1"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", body["error"])

	code, _ = v.call(t, http.MethodPost, "/checkout/manual-complete", "", echo.Map{"occupancyId": "x"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCheckinOverHTTP(t *testing.T) {
	v := newEnv(t)

	code, body := v.call(t, http.MethodPost, "/lane/L1/start", v.staff, echo.Map{"customerId": "c1"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "ACTIVE", field(t, body, "session", "status"))
	assert.Equal(t, "Alex Rivera", field(t, body, "session", "customerName"))

	code, body = v.call(t, http.MethodPost, "/lane/L1/select-rental", v.staff, echo.Map{"desiredRentalType": "STANDARD"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "AWAITING_ASSIGNMENT", field(t, body, "session", "status"))

	code, body = v.call(t, http.MethodPost, "/lane/L1/assign", v.staff, echo.Map{"resourceType": "ROOM", "resourceId": "r1"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["customerConfirmationRequired"])
	assert.Equal(t, "c1", field(t, body, "resource", "assignedTo"))

	code, body = v.call(t, http.MethodPost, "/lane/L1/create-payment-intent", v.staff, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "DUE", field(t, body, "paymentIntent", "status"))
	id := field(t, body, "paymentIntent", "id").(string)

	code, body = v.call(t, http.MethodPost, "/payments/"+id+"/mark-paid", v.staff, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "PAID", field(t, body, "paymentIntent", "status"))
	assert.Equal(t, false, body["alreadyPaid"])

	code, body = v.call(t, http.MethodPost, "/payments/"+id+"/mark-paid", v.staff, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["alreadyPaid"])

	code, body = v.call(t, http.MethodPost, "/lane/L1/sign-agreement", "", echo.Map{"signaturePayload": "data:image/png;base64,AAAA"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["completed"])
	assert.Equal(t, "COMPLETED", field(t, body, "session", "status"))

	r, ok := v.st.Resource(model.ResourceRoom, "r1")
	require.True(t, ok)
	assert.Equal(t, model.StatusOccupied, r.Status)
	assert.Len(t, v.st.Visits("c1"), 1)
}

func TestAssignRaceLoserGetsConflict(t *testing.T) {
	v := newEnv(t)
	v.selectStandard(t, "L1", "c1")
	v.selectStandard(t, "L2", "c2")

	code, _ := v.call(t, http.MethodPost, "/lane/L1/assign", v.staff, echo.Map{"resourceType": "ROOM", "resourceId": "r1"})
	require.Equal(t, http.StatusOK, code)

	code, body := v.call(t, http.MethodPost, "/lane/L2/assign", v.staff, echo.Map{"resourceType": "ROOM", "resourceId": "r1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body["error"])

	failed := v.rec.OfType(broadcast.AssignmentFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "L2", failed[0].LaneID)
}

func TestNegotiationAuthRule(t *testing.T) {
	v := newEnv(t)
	code, _ := v.call(t, http.MethodPost, "/lane/L1/start", v.staff, echo.Map{"customerId": "c1"})
	require.Equal(t, http.StatusOK, code)

	code, body := v.call(t, http.MethodPost, "/lane/L1/propose-selection", "", echo.Map{"rentalType": "STANDARD", "proposedBy": "EMPLOYEE"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	code, body = v.call(t, http.MethodPost, "/lane/L1/propose-selection", "", echo.Map{"rentalType": "STANDARD", "proposedBy": "CUSTOMER"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "STANDARD", field(t, body, "session", "proposedRentalType"))

	code, body = v.call(t, http.MethodPost, "/lane/L1/acknowledge-selection", "", echo.Map{"acknowledgedBy": "CUSTOMER"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION", body["error"])

	code, body = v.call(t, http.MethodPost, "/lane/L1/confirm-selection", v.staff, echo.Map{"confirmedBy": "EMPLOYEE"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "EMPLOYEE", body["confirmedBy"])
	assert.Equal(t, false, body["alreadyConfirmed"])

	code, body = v.call(t, http.MethodPost, "/lane/L1/confirm-selection", "", echo.Map{"confirmedBy": "CUSTOMER"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "EMPLOYEE", body["confirmedBy"])
	assert.Equal(t, true, body["alreadyConfirmed"])

	code, body = v.call(t, http.MethodPost, "/lane/L1/propose-selection", "", echo.Map{"rentalType": "DOUBLE", "proposedBy": "CUSTOMER"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body["error"])

	code, _ = v.call(t, http.MethodPost, "/lane/L1/acknowledge-selection", "", echo.Map{"acknowledgedBy": "CUSTOMER"})
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, v.rec.OfType(broadcast.SelectionForced), 1)
}

func TestBannedCustomerIsRejected(t *testing.T) {
	v := newEnv(t)
	until := now.Add(48 * time.Hour)
	v.st.PutCustomer(model.Customer{ID: "c3", FirstName: "Pat", LastName: "Kim", BannedUntil: &until, PastDueBalance: decimal.Zero})

	code, body := v.call(t, http.MethodPost, "/lane/L3/start", v.staff, echo.Map{"customerId": "c3"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "BANNED", body["error"])
	_, ok := v.st.Lane("L3")
	assert.False(t, ok)
}

func TestAlreadyCheckedInCarriesActiveCheckin(t *testing.T) {
	v := newEnv(t)
	v.checkIn(t, "L1")

	code, body := v.call(t, http.MethodPost, "/lane/L2/start", v.staff, echo.Map{"customerId": "c1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_CHECKED_IN", body["error"])
	assert.Equal(t, "101", field(t, body, "activeCheckin", "resourceNumber"))
	_, ok := v.st.Lane("L2")
	assert.False(t, ok)
}

func TestValidationErrors(t *testing.T) {
	v := newEnv(t)

	code, body := v.call(t, http.MethodGet, "/lane/L1/waitlist-info?desiredTier=PENTHOUSE", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION", body["error"])

	code, body = v.call(t, http.MethodPost, "/lane/L1/customer-confirm", "", echo.Map{"sessionId": "s1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "confirmed is required", body["message"])

	req := httptest.NewRequest(http.MethodPost, "/lane/L1/start", bytes.NewBufferString("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, v.staff)
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code, body = v.call(t, http.MethodPost, "/lane/L9/sign-agreement", "", echo.Map{"signaturePayload": "x"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestWaitlistInfo(t *testing.T) {
	v := newEnv(t)
	code, body := v.call(t, http.MethodGet, "/lane/L1/waitlist-info?desiredTier=STANDARD&currentTier=LOCKER", "", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["available"])
	assert.Equal(t, float64(1), body["position"])
	assert.NotNil(t, body["upgradeFee"])
}

func TestCheckoutOverHTTP(t *testing.T) {
	v := newEnv(t)
	v.checkIn(t, "L1")

	code, body := v.call(t, http.MethodPost, "/checkout/resolve-key", "", echo.Map{"key": "101"})
	require.Equal(t, http.StatusOK, code, body)
	occ := body["occupancyId"].(string)
	assert.Equal(t, "Alex Rivera", body["customerName"])

	code, body = v.call(t, http.MethodPost, "/checkout/request", "", echo.Map{"occupancyId": occ, "items": map[string]bool{"towel": true}})
	require.Equal(t, http.StatusCreated, code, body)
	reqID := field(t, body, "request", "id").(string)

	code, _ = v.call(t, http.MethodPost, "/checkout/request", "", echo.Map{"occupancyId": occ})
	assert.Equal(t, http.StatusOK, code)

	code, body = v.call(t, http.MethodPost, "/checkout/"+reqID+"/complete", v.staff, nil)
	assert.Equal(t, http.StatusConflict, code, body)

	code, body = v.call(t, http.MethodPost, "/checkout/"+reqID+"/claim", v.staff, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "CLAIMED", field(t, body, "request", "status"))

	code, body = v.call(t, http.MethodPost, "/checkout/"+reqID+"/confirm-items", v.staff, echo.Map{"items": map[string]bool{"towel": true}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, field(t, body, "request", "itemsConfirmed"))

	code, body = v.call(t, http.MethodPost, "/checkout/"+reqID+"/complete", v.staff, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "COMPLETED", field(t, body, "request", "status"))
	assert.Equal(t, "DIRTY", field(t, body, "checkout", "resourceStatus"))

	code, body = v.call(t, http.MethodPost, "/checkout/manual-complete", v.staff, echo.Map{"occupancyId": occ})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["alreadyCheckedOut"])

	code, body = v.call(t, http.MethodPost, "/checkout/resolve-key", "", echo.Map{"key": "101"})
	assert.Equal(t, http.StatusNotFound, code, body)
}

func TestInventoryAndHousekeeping(t *testing.T) {
	v := newEnv(t)

	code, body := v.call(t, http.MethodGet, "/inventory", "", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(2), field(t, body, "available", "STANDARD"))

	code, body = v.call(t, http.MethodPost, "/resources/ROOM/r2/status", v.staff, echo.Map{"status": "DIRTY"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "DIRTY", field(t, body, "resource", "status"))

	code, body = v.call(t, http.MethodPost, "/resources/ROOM/r2/status", v.staff, echo.Map{"status": "CLEAN"})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, _ = v.call(t, http.MethodPost, "/resources/ROOM/r2/status", "", echo.Map{"status": "CLEANING"})
	assert.Equal(t, http.StatusUnauthorized, code)

	assert.Len(t, v.rec.OfType(broadcast.RoomStatusChanged), 1)
}
