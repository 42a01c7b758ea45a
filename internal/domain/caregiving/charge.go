package caregiving

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/careclaims/careclaims/internal/platform/auth"
	"github.com/careclaims/careclaims/internal/platform/events"
	"github.com/careclaims/careclaims/pkg/modification"
)

// ConfirmStatus gates edits on a charge. It only moves forward.
type ConfirmStatus string

const (
	ConfirmNotStarted ConfirmStatus = "NOT_STARTED"
	ConfirmConfirmed  ConfirmStatus = "CONFIRMED"
)

// IsEditable reports whether a charge in this status accepts edits.
func (s ConfirmStatus) IsEditable() bool { return s != ConfirmConfirmed }

func (s ConfirmStatus) transitionTo(next ConfirmStatus) (ConfirmStatus, error) {
	if next == "" || next == s {
		return s, nil
	}
	if s == ConfirmNotStarted && next == ConfirmConfirmed {
		return next, nil
	}
	return s, &InvalidConfirmStatusTransitionError{From: s, To: next}
}

// caregivingDayHourThreshold is the leftover hour count above which a
// partial day is charged as a whole one.
const caregivingDayHourThreshold = 10

// CaregivingDays counts whole days in the period, plus one when the
// remaining hours exceed the threshold.
func CaregivingDays(start, end time.Time) int {
	hours := int(end.Sub(start).Hours())
	days := hours / 24
	if hours%24 > caregivingDayHourThreshold {
		days++
	}
	return days
}

// AdditionalCharge is a named, signed amount added to a charge.
type AdditionalCharge struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

// ChargeItems are the itemized cost fields of a charge. Negative values are
// deductions.
type ChargeItems struct {
	AdditionalHoursCharge  int `json:"additional_hours_charge"`
	MealCost               int `json:"meal_cost"`
	TransportationFee      int `json:"transportation_fee"`
	HolidayCharge          int `json:"holiday_charge"`
	CaregiverInsuranceFee  int `json:"caregiver_insurance_fee"`
	CommissionFee          int `json:"commission_fee"`
	VacationCharge         int `json:"vacation_charge"`
	PatientConditionCharge int `json:"patient_condition_charge"`
	Covid19TestingCost     int `json:"covid19_testing_cost"`
	OutstandingAmount      int `json:"outstanding_amount"`
}

func (i ChargeItems) sum() int {
	return i.AdditionalHoursCharge + i.MealCost + i.TransportationFee + i.HolidayCharge +
		i.CaregiverInsuranceFee + i.CommissionFee + i.VacationCharge +
		i.PatientConditionCharge + i.Covid19TestingCost + i.OutstandingAmount
}

// ChargeRoundInfo is the round snapshot a charge is calculated from. It is
// captured once, when the charge is created.
type ChargeRoundInfo struct {
	RoundID               uuid.UUID `json:"caregiving_round_id"`
	RoundNumber           int       `json:"caregiving_round_number"`
	StartDateTime         time.Time `json:"start_date_time"`
	EndDateTime           time.Time `json:"end_date_time"`
	DailyCaregivingCharge int       `json:"daily_caregiving_charge"`
	ReceptionID           uuid.UUID `json:"reception_id"`
}

// ChargeEdit is the full set of editable charge values. An empty
// ConfirmStatus keeps the current one.
type ChargeEdit struct {
	Items                  ChargeItems
	AdditionalCharges      []AdditionalCharge
	IsCancelAfterArrived   bool
	ExpectedSettlementDate time.Time
	ConfirmStatus          ConfirmStatus
}

func duplicatedNames(charges []AdditionalCharge) []string {
	seen := make(map[string]int, len(charges))
	var dup []string
	for _, c := range charges {
		seen[c.Name]++
		if seen[c.Name] == 2 {
			dup = append(dup, c.Name)
		}
	}
	return dup
}

func validateAdditionalCharges(charges []AdditionalCharge) error {
	if dup := duplicatedNames(charges); len(dup) > 0 {
		return &DuplicateAdditionalChargeNamesError{Names: dup}
	}
	return nil
}

// CaregivingCharge is the charge calculated for one completed round.
type CaregivingCharge struct {
	roundInfo              ChargeRoundInfo
	items                  ChargeItems
	additionalCharges      []AdditionalCharge
	isCancelAfterArrived   bool
	expectedSettlementDate time.Time
	confirmStatus          ConfirmStatus
	basicAmount            int
	additionalAmount       int
	totalAmount            int
	managingOrganizationID uuid.UUID

	events []events.Event
}

// NewCaregivingCharge calculates a charge for the round and raises
// CaregivingChargeCalculated.
func NewCaregivingCharge(info ChargeRoundInfo, edit ChargeEdit, managingOrganizationID uuid.UUID, actor Actor) (*CaregivingCharge, error) {
	c := &CaregivingCharge{
		roundInfo:              info,
		confirmStatus:          ConfirmNotStarted,
		managingOrganizationID: managingOrganizationID,
	}
	if err := actor.authorize(auth.ActionModify, c); err != nil {
		return nil, err
	}
	if err := validateAdditionalCharges(edit.AdditionalCharges); err != nil {
		return nil, err
	}
	status, err := c.confirmStatus.transitionTo(edit.ConfirmStatus)
	if err != nil {
		return nil, err
	}
	c.apply(edit, status)

	c.events = append(c.events, CaregivingChargeCalculated{
		CaregivingRoundID: info.RoundID,
		ReceptionID:       info.ReceptionID,
		BasicAmount:       c.basicAmount,
		AdditionalAmount:  c.additionalAmount,
		TotalAmount:       c.totalAmount,
		ConfirmStatus:     c.confirmStatus,
		CalculatedAt:      actor.At,
		SubjectID:         actor.Subject.ID,
	})
	return c, nil
}

func (c *CaregivingCharge) apply(edit ChargeEdit, status ConfirmStatus) {
	c.items = edit.Items
	c.additionalCharges = slices.Clone(edit.AdditionalCharges)
	c.isCancelAfterArrived = edit.IsCancelAfterArrived
	c.expectedSettlementDate = edit.ExpectedSettlementDate
	c.confirmStatus = status
	c.calculate()
}

func (c *CaregivingCharge) calculate() {
	c.basicAmount = CaregivingDays(c.roundInfo.StartDateTime, c.roundInfo.EndDateTime) * c.roundInfo.DailyCaregivingCharge
	additional := c.items.sum()
	for _, ac := range c.additionalCharges {
		additional += ac.Amount
	}
	c.additionalAmount = additional
	c.totalAmount = c.basicAmount + c.additionalAmount
}

// Edit replaces every editable value and recalculates the amounts. A
// confirmed charge cannot be edited.
func (c *CaregivingCharge) Edit(edit ChargeEdit, actor Actor) error {
	if err := actor.authorize(auth.ActionModify, c); err != nil {
		return err
	}
	if !c.confirmStatus.IsEditable() {
		return &ChargeEditingDeniedError{RoundID: c.roundInfo.RoundID, ConfirmStatus: c.confirmStatus}
	}
	if err := validateAdditionalCharges(edit.AdditionalCharges); err != nil {
		return err
	}
	status, err := c.confirmStatus.transitionTo(edit.ConfirmStatus)
	if err != nil {
		return err
	}

	before := *c
	c.apply(edit, status)

	ev := CaregivingChargeModified{
		CaregivingRoundID:      c.roundInfo.RoundID,
		ReceptionID:            c.roundInfo.ReceptionID,
		EditorID:               actor.Subject.ID,
		ModifiedAt:             actor.At,
		Items:                  modification.New(before.items, c.items),
		AdditionalCharges:      modification.NewList(before.additionalCharges, c.additionalCharges),
		IsCancelAfterArrived:   modification.New(before.isCancelAfterArrived, c.isCancelAfterArrived),
		ExpectedSettlementDate: modification.New(before.expectedSettlementDate, c.expectedSettlementDate),
		ConfirmStatus:          modification.New(before.confirmStatus, c.confirmStatus),
		BasicAmount:            modification.New(before.basicAmount, c.basicAmount),
		AdditionalAmount:       modification.New(before.additionalAmount, c.additionalAmount),
		TotalAmount:            modification.New(before.totalAmount, c.totalAmount),
	}
	if ev.Items.HasChanged() || ev.AdditionalCharges.HasChanged() || ev.IsCancelAfterArrived.HasChanged() ||
		ev.ExpectedSettlementDate.HasChanged() || ev.ConfirmStatus.HasChanged() {
		c.events = append(c.events, ev)
	}
	return nil
}

// HandleReceptionModified follows the reception's caregiving manager so the
// charge stays visible to the managing organization.
func (c *CaregivingCharge) HandleReceptionModified(ev ReceptionModified) {
	if ev.CaregivingManagerInfo != nil {
		c.managingOrganizationID = ev.CaregivingManagerInfo.OrganizationID
	}
}

// PullEvents returns the events raised since the last pull and forgets them.
func (c *CaregivingCharge) PullEvents() []events.Event {
	out := c.events
	c.events = nil
	return out
}

func (c *CaregivingCharge) ManagingOrganizationID() uuid.UUID { return c.managingOrganizationID }

func (c *CaregivingCharge) RoundInfo() ChargeRoundInfo { return c.roundInfo }
func (c *CaregivingCharge) Items() ChargeItems         { return c.items }
func (c *CaregivingCharge) AdditionalCharges() []AdditionalCharge {
	return slices.Clone(c.additionalCharges)
}
func (c *CaregivingCharge) IsCancelAfterArrived() bool        { return c.isCancelAfterArrived }
func (c *CaregivingCharge) ExpectedSettlementDate() time.Time { return c.expectedSettlementDate }
func (c *CaregivingCharge) ConfirmStatus() ConfirmStatus      { return c.confirmStatus }
func (c *CaregivingCharge) BasicAmount() int                  { return c.basicAmount }
func (c *CaregivingCharge) AdditionalAmount() int             { return c.additionalAmount }
func (c *CaregivingCharge) TotalAmount() int                  { return c.totalAmount }
