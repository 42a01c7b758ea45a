package caregiving

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careclaims/careclaims/internal/platform/auth"
	"github.com/careclaims/careclaims/internal/platform/events"
	"github.com/careclaims/careclaims/pkg/modification"
	"github.com/careclaims/careclaims/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc     *Service
	inbound events.Publisher
}

// NewHandler creates the caregiving handler. When inbound is non-nil the
// event ingest endpoint is registered and publishes accepted events to it.
func NewHandler(svc *Service, inbound events.Publisher) *Handler {
	return &Handler{svc: svc, inbound: inbound}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	roles := []string{auth.RoleInternalUser, auth.RoleOrganizationUser}

	readGroup := api.Group("", auth.RequireRole(roles...))
	readGroup.GET("/caregiving-rounds", h.ListCaregivingRounds)
	readGroup.GET("/caregiving-rounds/:id", h.GetCaregivingRound)
	readGroup.GET("/caregiving-rounds/:id/charge", h.GetCaregivingCharge)

	writeGroup := api.Group("", auth.RequireRole(roles...))
	writeGroup.PUT("/caregiving-rounds/:id", h.EditCaregivingRound)
	writeGroup.PUT("/caregiving-rounds/:id/charge", h.EditCaregivingCharge)

	if h.inbound != nil {
		systemGroup := api.Group("", auth.RequireRole(auth.RoleSystem))
		systemGroup.POST("/caregiving-events/:name", h.IngestEvent)
	}
}

// -- Views --

type roundResponse struct {
	ID                          uuid.UUID                   `json:"id"`
	CaregivingRoundNumber       int                         `json:"caregiving_round_number"`
	ReceptionInfo               ReceptionInfo               `json:"reception_info"`
	ProgressingStatus           ProgressingStatus           `json:"caregiving_progressing_status"`
	CaregiverInfo               *CaregiverInfo              `json:"caregiver_info,omitempty"`
	StartDateTime               *time.Time                  `json:"start_date_time,omitempty"`
	EndDateTime                 *time.Time                  `json:"end_date_time,omitempty"`
	ClosingReasonType           ClosingReasonType           `json:"caregiving_round_closing_reason_type,omitempty"`
	DetailClosingReason         string                      `json:"caregiving_round_closing_reason_detail,omitempty"`
	CanceledDateTime            *time.Time                  `json:"cancel_date_time,omitempty"`
	BillingProgressingStatus    BillingProgressingStatus    `json:"billing_progressing_status"`
	SettlementProgressingStatus SettlementProgressingStatus `json:"settlement_progressing_status"`
	Remarks                     string                      `json:"remarks"`
	Reception                   *Reception                  `json:"reception,omitempty"`
}

func toRoundResponse(r *CaregivingRound) roundResponse {
	d := r.StateData()
	return roundResponse{
		ID:                          r.ID(),
		CaregivingRoundNumber:       r.Number(),
		ReceptionInfo:               r.ReceptionInfo(),
		ProgressingStatus:           d.ProgressingStatus,
		CaregiverInfo:               d.CaregiverInfo,
		StartDateTime:               d.StartDateTime,
		EndDateTime:                 d.EndDateTime,
		ClosingReasonType:           d.ClosingReasonType,
		DetailClosingReason:         d.DetailClosingReason,
		CanceledDateTime:            d.CanceledDateTime,
		BillingProgressingStatus:    r.BillingStatus(),
		SettlementProgressingStatus: r.SettlementStatus(),
		Remarks:                     r.Remarks(),
	}
}

func toRoundResponses(rounds []*CaregivingRound) []roundResponse {
	out := make([]roundResponse, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, toRoundResponse(r))
	}
	return out
}

type chargeResponse struct {
	CaregivingRoundInfo ChargeRoundInfo `json:"caregiving_round_info"`
	ChargeItems
	AdditionalCharges      []AdditionalCharge `json:"additional_charges"`
	IsCancelAfterArrived   bool               `json:"is_cancel_after_arrived"`
	ExpectedSettlementDate string             `json:"expected_settlement_date,omitempty"`
	ConfirmStatus          ConfirmStatus      `json:"caregiving_charge_confirm_status"`
	BasicAmount            int                `json:"basic_amount"`
	AdditionalAmount       int                `json:"additional_amount"`
	TotalAmount            int                `json:"total_amount"`
}

func toChargeResponse(c *CaregivingCharge) chargeResponse {
	resp := chargeResponse{
		CaregivingRoundInfo:  c.RoundInfo(),
		ChargeItems:          c.Items(),
		AdditionalCharges:    c.AdditionalCharges(),
		IsCancelAfterArrived: c.IsCancelAfterArrived(),
		ConfirmStatus:        c.ConfirmStatus(),
		BasicAmount:          c.BasicAmount(),
		AdditionalAmount:     c.AdditionalAmount(),
		TotalAmount:          c.TotalAmount(),
	}
	if d := c.ExpectedSettlementDate(); !d.IsZero() {
		resp.ExpectedSettlementDate = d.Format(dateLayout)
	}
	if resp.AdditionalCharges == nil {
		resp.AdditionalCharges = []AdditionalCharge{}
	}
	return resp
}

// -- Requests --

type editRoundRequest struct {
	CaregiverInfo       *CaregiverInfo    `json:"caregiver_info"`
	ProgressingStatus   ProgressingStatus `json:"caregiving_progressing_status"`
	StartDateTime       *time.Time        `json:"start_date_time"`
	EndDateTime         *time.Time        `json:"end_date_time"`
	ClosingReasonType   ClosingReasonType `json:"caregiving_round_closing_reason_type"`
	DetailClosingReason string            `json:"caregiving_round_closing_reason_detail"`
	Remarks             string            `json:"remarks"`
}

func (r editRoundRequest) command() (EditRoundCommand, error) {
	if r.ProgressingStatus != "" && !r.ProgressingStatus.Valid() {
		return EditRoundCommand{}, errors.New("invalid caregiving_progressing_status: " + string(r.ProgressingStatus))
	}
	if r.ClosingReasonType != "" && !r.ClosingReasonType.IsFinishingReason() && !r.ClosingReasonType.IsCancelReason() {
		return EditRoundCommand{}, errors.New("invalid caregiving_round_closing_reason_type: " + string(r.ClosingReasonType))
	}
	return EditRoundCommand{
		CaregiverInfo:       modification.FromPointer(r.CaregiverInfo),
		ProgressingStatus:   r.ProgressingStatus,
		StartDateTime:       modification.FromPointer(r.StartDateTime),
		EndDateTime:         modification.FromPointer(r.EndDateTime),
		ClosingReasonType:   r.ClosingReasonType,
		DetailClosingReason: r.DetailClosingReason,
		Remarks:             r.Remarks,
	}, nil
}

type editChargeRequest struct {
	ChargeItems
	AdditionalCharges      []AdditionalCharge `json:"additional_charges"`
	IsCancelAfterArrived   bool               `json:"is_cancel_after_arrived"`
	ExpectedSettlementDate string             `json:"expected_settlement_date"`
	ConfirmStatus          ConfirmStatus      `json:"caregiving_charge_confirm_status"`
}

func (r editChargeRequest) edit() (ChargeEdit, error) {
	edit := ChargeEdit{
		Items:                r.ChargeItems,
		AdditionalCharges:    r.AdditionalCharges,
		IsCancelAfterArrived: r.IsCancelAfterArrived,
		ConfirmStatus:        r.ConfirmStatus,
	}
	if r.ConfirmStatus != "" && r.ConfirmStatus != ConfirmNotStarted && r.ConfirmStatus != ConfirmConfirmed {
		return ChargeEdit{}, errors.New("invalid caregiving_charge_confirm_status: " + string(r.ConfirmStatus))
	}
	if r.ExpectedSettlementDate != "" {
		d, err := time.Parse(dateLayout, r.ExpectedSettlementDate)
		if err != nil {
			return ChargeEdit{}, errors.New("invalid expected_settlement_date")
		}
		edit.ExpectedSettlementDate = d
	}
	return edit, nil
}

// -- Handlers --

func (h *Handler) GetCaregivingRound(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	round, err := h.svc.GetCaregivingRound(ctx, auth.SubjectFromContext(ctx), id)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, toRoundResponse(round))
}

// ListCaregivingRounds serves rounds of one reception, rounds by id, or a
// paginated search, depending on the query parameters.
func (h *Handler) ListCaregivingRounds(c echo.Context) error {
	ctx := c.Request().Context()
	subject := auth.SubjectFromContext(ctx)

	if receptionID := c.QueryParam("reception_id"); receptionID != "" {
		rid, err := uuid.Parse(receptionID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid reception_id")
		}
		rounds, err := h.svc.GetCaregivingRoundsByReceptionID(ctx, subject, rid)
		if err != nil {
			return errorResponse(err)
		}
		return c.JSON(http.StatusOK, toRoundResponses(rounds))
	}

	if raw := c.QueryParam("ids"); raw != "" {
		ids, err := parseUUIDs(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid ids")
		}
		rounds, err := h.svc.GetCaregivingRoundsByIDs(ctx, subject, ids)
		if err != nil {
			return errorResponse(err)
		}
		return c.JSON(http.StatusOK, toRoundResponses(rounds))
	}

	criteria, err := searchCriteriaFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg := pagination.FromContext(c)
	found, total, err := h.svc.SearchCaregivingRounds(ctx, subject, criteria, pg.Limit, pg.Offset)
	if err != nil {
		return errorResponse(err)
	}
	views := make([]roundResponse, 0, len(found))
	for _, f := range found {
		v := toRoundResponse(f.Round)
		v.Reception = f.Reception
		views = append(views, v)
	}
	resp := pagination.NewResponse(views, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, c.QueryParams(), total)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) EditCaregivingRound(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req editRoundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cmd, err := req.command()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	subject := auth.SubjectFromContext(ctx)
	if _, err := h.svc.EditCaregivingRound(ctx, subject, id, cmd); err != nil {
		return errorResponse(err)
	}
	round, err := h.svc.GetCaregivingRound(ctx, subject, id)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, toRoundResponse(round))
}

func (h *Handler) GetCaregivingCharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	charge, err := h.svc.GetCaregivingCharge(ctx, auth.SubjectFromContext(ctx), id)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, toChargeResponse(charge))
}

func (h *Handler) EditCaregivingCharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req editChargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	edit, err := req.edit()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	charge, err := h.svc.CreateOrEditCaregivingCharge(ctx, auth.SubjectFromContext(ctx), id, edit)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, toChargeResponse(charge))
}

// inboundEvents decodes the events other contexts deliver over HTTP.
var inboundEvents = map[string]func([]byte) (events.Event, error){
	EventReceptionModified:    decodeEvent[ReceptionModified],
	EventBillingModified:      decodeEvent[BillingModified],
	EventBillingGenerated:     decodeEvent[BillingGenerated],
	EventSettlementModified:   decodeEvent[SettlementModified],
	EventSettlementGenerated:  decodeEvent[SettlementGenerated],
	EventReconciliationClosed: decodeEvent[ReconciliationClosed],
}

func decodeEvent[E events.Event](body []byte) (events.Event, error) {
	var ev E
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// IngestEvent publishes an inbound event to the subscribed reactions and
// answers once they have run.
func (h *Handler) IngestEvent(c echo.Context) error {
	decode, ok := inboundEvents[c.Param("name")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown event "+c.Param("name"))
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev, err := decode(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event payload: "+err.Error())
	}
	if err := h.inbound.Publish(c.Request().Context(), ev); err != nil {
		return errorResponse(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func searchCriteriaFromQuery(c echo.Context) (SearchCriteria, error) {
	criteria := SearchCriteria{
		PatientName:          c.QueryParam("patient_name"),
		AccidentNumber:       c.QueryParam("accident_number"),
		HospitalName:         c.QueryParam("hospital_name"),
		CaregiverPhoneNumber: c.QueryParam("caregiver_phone_number"),
	}
	for param, dst := range map[string]**time.Time{
		"start_date_from":  &criteria.StartDateFrom,
		"start_date_until": &criteria.StartDateUntil,
	} {
		if v := c.QueryParam(param); v != "" {
			d, err := time.Parse(dateLayout, v)
			if err != nil {
				return SearchCriteria{}, errors.New("invalid " + param)
			}
			*dst = &d
		}
	}
	if v := c.QueryParam("organization_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return SearchCriteria{}, errors.New("invalid organization_id")
		}
		criteria.OrganizationID = id
	}
	for _, s := range splitList(c.QueryParam("progressing_status")) {
		status := ProgressingStatus(s)
		if !status.Valid() {
			return SearchCriteria{}, errors.New("invalid progressing_status: " + s)
		}
		criteria.ProgressingStatuses = append(criteria.ProgressingStatuses, status)
	}
	for _, s := range splitList(c.QueryParam("billing_status")) {
		criteria.BillingStatuses = append(criteria.BillingStatuses, BillingProgressingStatus(s))
	}
	for _, s := range splitList(c.QueryParam("settlement_status")) {
		criteria.SettlementStatuses = append(criteria.SettlementStatuses, SettlementProgressingStatus(s))
	}
	return criteria, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseUUIDs(raw string) ([]uuid.UUID, error) {
	parts := splitList(raw)
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// errorResponse maps domain errors onto HTTP statuses.
func errorResponse(err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrAccessDenied):
		status = http.StatusForbidden
	case is[*RoundNotFoundError](err), is[*ChargeNotFoundError](err), is[*ReceptionNotFoundError](err):
		status = http.StatusNotFound
	case is[*DuplicateAdditionalChargeNamesError](err), is[*ChargeEditingDeniedError](err),
		is[*InvalidConfirmStatusTransitionError](err), is[*InvalidActionableStatusError](err),
		is[*UnknownRoundInfoError](err):
		status = http.StatusConflict
	case is[*IllegalCaregivingPeriodError](err), is[*IllegalTransitionError](err),
		is[*MissingStateFieldError](err), is[*InvalidClosingReasonError](err):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}
