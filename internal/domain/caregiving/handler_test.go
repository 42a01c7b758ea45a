package caregiving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careclaims/careclaims/internal/platform/auth"
	"github.com/careclaims/careclaims/internal/platform/events"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewHandler(env.svc, nil), echo.New(), env
}

func withSubject(req *http.Request, s auth.Subject) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, s.ID)
	ctx = context.WithValue(ctx, auth.UserRolesKey, s.Roles)
	if s.OrganizationID != uuid.Nil {
		ctx = context.WithValue(ctx, auth.OrganizationIDKey, s.OrganizationID)
	}
	return req.WithContext(ctx)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return withSubject(req, internalUser)
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_GetCaregivingRound(t *testing.T) {
	h, e, env := newTestHandler(t)
	r := env.firstRound(t)

	req := withSubject(httptest.NewRequest(http.MethodGet, "/", nil), internalUser)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID().String())
	if err := h.GetCaregivingRound(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var result map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result["caregiving_progressing_status"] != string(StatusNotStarted) {
		t.Errorf("expected NOT_STARTED, got %v", result["caregiving_progressing_status"])
	}
	if result["caregiving_round_number"] != float64(1) {
		t.Errorf("expected round number 1, got %v", result["caregiving_round_number"])
	}
}

func TestHandler_GetCaregivingRound_Errors(t *testing.T) {
	h, e, env := newTestHandler(t)
	r := env.firstRound(t)
	outsider := auth.Subject{ID: "org-user", Roles: []string{auth.RoleOrganizationUser}, OrganizationID: uuid.New()}

	tests := []struct {
		name    string
		id      string
		subject auth.Subject
		want    int
	}{
		{"invalid id", "not-a-uuid", internalUser, http.StatusBadRequest},
		{"not found", uuid.New().String(), internalUser, http.StatusNotFound},
		{"other organization", r.ID().String(), outsider, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withSubject(httptest.NewRequest(http.MethodGet, "/", nil), tt.subject)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			if got := httpStatus(t, h.GetCaregivingRound(c)); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHandler_EditCaregivingRound(t *testing.T) {
	h, e, env := newTestHandler(t)
	r := env.firstRound(t)

	body := `{
		"caregiver_info": {"name": "Kim Caregiver", "phone_number": "01012345678", "daily_caregiving_charge": 150000},
		"caregiving_progressing_status": "CAREGIVING_IN_PROGRESS",
		"start_date_time": "2023-02-17T14:00:00Z",
		"remarks": "first visit"
	}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", body), rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID().String())
	if err := h.EditCaregivingRound(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var result roundResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.ProgressingStatus != StatusInProgress {
		t.Errorf("expected CAREGIVING_IN_PROGRESS, got %s", result.ProgressingStatus)
	}
	if result.CaregiverInfo == nil || result.CaregiverInfo.DailyCaregivingCharge != 150000 {
		t.Errorf("expected caregiver, got %+v", result.CaregiverInfo)
	}
	if result.Remarks != "first visit" {
		t.Errorf("expected remarks, got %q", result.Remarks)
	}
	if n := len(env.published.Named(EventCaregivingRoundStarted)); n != 1 {
		t.Errorf("expected 1 started event, got %d", n)
	}
}

func TestHandler_EditCaregivingRound_Errors(t *testing.T) {
	h, e, env := newTestHandler(t)
	r := env.firstRound(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{"remarks":`, http.StatusBadRequest},
		{"unknown status", `{"caregiving_progressing_status":"SLEEPING"}`, http.StatusBadRequest},
		{"unknown reason", `{"caregiving_round_closing_reason_type":"BORED"}`, http.StatusBadRequest},
		{"finish before start", `{"caregiving_progressing_status":"COMPLETED"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPut, "/", tt.body), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(r.ID().String())
			if got := httpStatus(t, h.EditCaregivingRound(c)); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHandler_EditCaregivingCharge(t *testing.T) {
	h, e, env := newTestHandler(t)
	r := env.completedRound(t, ReasonFinished)

	body := `{
		"additional_charges": [{"name": "laundry", "amount": 5000}],
		"expected_settlement_date": "2023-03-20"
	}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", body), rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID().String())
	if err := h.EditCaregivingCharge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result["total_amount"] != float64(755000) {
		t.Errorf("expected total 755000, got %v", result["total_amount"])
	}
	if result["expected_settlement_date"] != "2023-03-20" {
		t.Errorf("expected settlement date, got %v", result["expected_settlement_date"])
	}
	if result["caregiving_charge_confirm_status"] != string(ConfirmNotStarted) {
		t.Errorf("expected NOT_STARTED, got %v", result["caregiving_charge_confirm_status"])
	}

	get := e.NewContext(withSubject(httptest.NewRequest(http.MethodGet, "/", nil), internalUser), httptest.NewRecorder())
	get.SetParamNames("id")
	get.SetParamValues(r.ID().String())
	if err := h.GetCaregivingCharge(get); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandler_EditCaregivingCharge_Errors(t *testing.T) {
	h, e, env := newTestHandler(t)
	completed := env.completedRound(t, ReasonFinished)

	tests := []struct {
		name string
		id   uuid.UUID
		body string
		want int
	}{
		{"duplicated names", completed.ID(), `{"additional_charges":[{"name":"meal","amount":1},{"name":"meal","amount":2}]}`, http.StatusConflict},
		{"bad settlement date", completed.ID(), `{"expected_settlement_date":"20/03/2023"}`, http.StatusBadRequest},
		{"bad confirm status", completed.ID(), `{"caregiving_charge_confirm_status":"MAYBE"}`, http.StatusBadRequest},
		{"missing round", uuid.New(), `{}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPut, "/", tt.body), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id.String())
			if got := httpStatus(t, h.EditCaregivingCharge(c)); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHandler_ListCaregivingRounds_ByReception(t *testing.T) {
	h, e, env := newTestHandler(t)
	r := env.firstRound(t)

	req := withSubject(httptest.NewRequest(http.MethodGet, "/?reception_id="+r.ReceptionID().String(), nil), internalUser)
	rec := httptest.NewRecorder()
	if err := h.ListCaregivingRounds(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result []roundResponse
	json.Unmarshal(rec.Body.Bytes(), &result)
	if len(result) != 1 || result[0].ID != r.ID() {
		t.Errorf("expected the reception's round, got %+v", result)
	}
}

func TestHandler_ListCaregivingRounds_ByIDs(t *testing.T) {
	h, e, env := newTestHandler(t)
	r := env.firstRound(t)

	req := withSubject(httptest.NewRequest(http.MethodGet, "/?ids="+r.ID().String()+","+uuid.New().String(), nil), internalUser)
	rec := httptest.NewRecorder()
	if err := h.ListCaregivingRounds(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result []roundResponse
	json.Unmarshal(rec.Body.Bytes(), &result)
	if len(result) != 1 {
		t.Errorf("expected 1 round, got %d", len(result))
	}
}

func TestHandler_ListCaregivingRounds_Search(t *testing.T) {
	h, e, env := newTestHandler(t)
	env.firstRound(t)

	req := withSubject(httptest.NewRequest(http.MethodGet,
		"/api/v1/caregiving-rounds?progressing_status=NOT_STARTED,CAREGIVING_IN_PROGRESS&start_date_from=2023-02-01&limit=10", nil), internalUser)
	rec := httptest.NewRecorder()
	if err := h.ListCaregivingRounds(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result struct {
		Data  []roundResponse `json:"data"`
		Total int             `json:"total"`
		Limit int             `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || len(result.Data) != 1 || result.Limit != 10 {
		t.Errorf("unexpected page: %+v", result)
	}
	if result.Data[0].Reception == nil {
		t.Error("expected reception attached to search results")
	}
	got := env.rounds.lastCriteria
	if len(got.ProgressingStatuses) != 2 || got.StartDateFrom == nil {
		t.Errorf("criteria not parsed: %+v", got)
	}
}

func TestHandler_ListCaregivingRounds_BadQuery(t *testing.T) {
	h, e, _ := newTestHandler(t)
	for _, q := range []string{
		"/?reception_id=nope",
		"/?ids=a,b",
		"/?progressing_status=SLEEPING",
		"/?start_date_until=yesterday",
		"/?organization_id=acme",
	} {
		req := withSubject(httptest.NewRequest(http.MethodGet, q, nil), internalUser)
		if got := httpStatus(t, h.ListCaregivingRounds(e.NewContext(req, httptest.NewRecorder()))); got != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, got)
		}
	}
}

func TestErrorResponse(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		err  error
		want int
	}{
		{&auth.AccessDeniedError{SubjectID: "u"}, http.StatusForbidden},
		{&RoundNotFoundError{RoundID: id}, http.StatusNotFound},
		{&ReceptionNotFoundError{ReceptionID: id}, http.StatusNotFound},
		{&ChargeEditingDeniedError{RoundID: id}, http.StatusConflict},
		{&UnknownRoundInfoError{RoundID: id}, http.StatusConflict},
		{&IllegalTransitionError{From: StatusCompleted, Transition: "start"}, http.StatusUnprocessableEntity},
		{&InvalidClosingReasonError{Reason: ReasonFinished}, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(t, errorResponse(tt.err)); got != tt.want {
			t.Errorf("%T: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e, _ := newTestHandler(t)
	h.RegisterRoutes(e.Group("/api/v1"))

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}
	expected := []string{
		"GET:/api/v1/caregiving-rounds",
		"GET:/api/v1/caregiving-rounds/:id",
		"GET:/api/v1/caregiving-rounds/:id/charge",
		"PUT:/api/v1/caregiving-rounds/:id",
		"PUT:/api/v1/caregiving-rounds/:id/charge",
	}
	for _, path := range expected {
		if !routePaths[path] {
			t.Errorf("missing route: %s", path)
		}
	}
	if routePaths["POST:/api/v1/caregiving-events/:name"] {
		t.Error("ingest route registered without a publisher")
	}
}

func TestHandler_IngestEvent(t *testing.T) {
	env := newTestEnv(t)
	d := events.NewDispatcher(zerolog.Nop(), nil)
	env.svc.Subscribe(d)
	h := NewHandler(env.svc, d)
	e := echo.New()

	body, _ := json.Marshal(managerAssigned())
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(withSubject(req, auth.SystemSubject()), rec)
	c.SetParamNames("name")
	c.SetParamValues(EventReceptionModified)
	if err := h.IngestEvent(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if len(env.rounds.records) != 1 {
		t.Errorf("expected first round created, got %d", len(env.rounds.records))
	}
}

func TestHandler_IngestEvent_Errors(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.svc, &events.Recorder{})
	e := echo.New()

	tests := []struct {
		name  string
		event string
		body  string
		want  int
	}{
		{"unknown event", "reception.deleted", `{}`, http.StatusNotFound},
		{"bad payload", EventBillingModified, `{"caregiving_round_id": 12}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c := e.NewContext(withSubject(req, auth.SystemSubject()), httptest.NewRecorder())
			c.SetParamNames("name")
			c.SetParamValues(tt.event)
			if got := httpStatus(t, h.IngestEvent(c)); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
