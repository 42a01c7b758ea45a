package caregiving

import (
	"time"

	"github.com/google/uuid"

	"github.com/careclaims/careclaims/pkg/modification"
)

// Event names used as dispatcher subscription keys.
const (
	EventCaregiverAssigned                = "caregiving.caregiver_assigned"
	EventCaregivingRoundStarted           = "caregiving.round_started"
	EventCaregivingRoundModified          = "caregiving.round_modified"
	EventLastCaregivingRoundFinished      = "caregiving.last_round_finished"
	EventLastCaregivingRoundModified      = "caregiving.last_round_modified"
	EventCaregivingChargeCalculated       = "caregiving.charge_calculated"
	EventCaregivingChargeModified         = "caregiving.charge_modified"
	EventAllRoundsReconciliationCompleted = "caregiving.all_rounds_reconciliation_completed"
	EventReceptionModified                = "reception.modified"
	EventBillingModified                  = "billing.modified"
	EventBillingGenerated                 = "billing.generated"
	EventSettlementModified               = "settlement.modified"
	EventSettlementGenerated              = "settlement.generated"
	EventReconciliationClosed             = "reconciliation.closed"
)

// ModificationCause tags what triggered a round modification.
type ModificationCause string

const (
	CauseDirectEdit ModificationCause = "DIRECT_EDIT"
	CauseEtc        ModificationCause = "ETC"
)

// -- Outbound --

type CaregiverAssignedToCaregivingRound struct {
	CaregivingRoundID uuid.UUID     `json:"caregiving_round_id"`
	ReceptionID       uuid.UUID     `json:"reception_id"`
	CaregiverInfo     CaregiverInfo `json:"caregiver_info"`
	AssignedAt        time.Time     `json:"assigned_at"`
	SubjectID         string        `json:"subject_id"`
}

func (CaregiverAssignedToCaregivingRound) EventName() string { return EventCaregiverAssigned }

type CaregivingRoundStarted struct {
	CaregivingRoundID     uuid.UUID `json:"caregiving_round_id"`
	CaregivingRoundNumber int       `json:"caregiving_round_number"`
	ReceptionID           uuid.UUID `json:"reception_id"`
	StartDateTime         time.Time `json:"start_date_time"`
	StartedAt             time.Time `json:"started_at"`
	SubjectID             string    `json:"subject_id"`
}

func (CaregivingRoundStarted) EventName() string { return EventCaregivingRoundStarted }

// CaregivingRoundModified carries the difference between the round before
// its first uncommitted change and the round now. Zero times and an empty
// CaregiverInfo stand for absent values.
type CaregivingRoundModified struct {
	CaregivingRoundID     uuid.UUID                                              `json:"caregiving_round_id"`
	CaregivingRoundNumber int                                                    `json:"caregiving_round_number"`
	ReceptionID           uuid.UUID                                              `json:"reception_id"`
	Cause                 ModificationCause                                      `json:"cause"`
	EditorID              string                                                 `json:"editor_id"`
	ModifiedAt            time.Time                                              `json:"modified_at"`
	ProgressingStatus     modification.Modification[ProgressingStatus]           `json:"progressing_status"`
	BillingStatus         modification.Modification[BillingProgressingStatus]    `json:"billing_progressing_status"`
	SettlementStatus      modification.Modification[SettlementProgressingStatus] `json:"settlement_progressing_status"`
	CaregiverInfo         modification.Modification[CaregiverInfo]               `json:"caregiver_info"`
	StartDateTime         modification.Modification[time.Time]                   `json:"start_date_time"`
	EndDateTime           modification.Modification[time.Time]                   `json:"end_date_time"`
	Remarks               modification.Modification[string]                      `json:"remarks"`
}

func (CaregivingRoundModified) EventName() string { return EventCaregivingRoundModified }

type LastCaregivingRoundFinished struct {
	CaregivingRoundID uuid.UUID `json:"caregiving_round_id"`
	ReceptionID       uuid.UUID `json:"reception_id"`
	EndDateTime       time.Time `json:"end_date_time"`
	FinishedAt        time.Time `json:"finished_at"`
}

func (LastCaregivingRoundFinished) EventName() string { return EventLastCaregivingRoundFinished }

// LastCaregivingRoundModified is raised alongside CaregivingRoundModified
// when the round was the reception's last both before and after the change.
type LastCaregivingRoundModified struct {
	CaregivingRoundID uuid.UUID                            `json:"caregiving_round_id"`
	ReceptionID       uuid.UUID                            `json:"reception_id"`
	Cause             ModificationCause                    `json:"cause"`
	EditorID          string                               `json:"editor_id"`
	ModifiedAt        time.Time                            `json:"modified_at"`
	EndDateTime       modification.Modification[time.Time] `json:"end_date_time"`
}

func (LastCaregivingRoundModified) EventName() string { return EventLastCaregivingRoundModified }

type CaregivingChargeCalculated struct {
	CaregivingRoundID uuid.UUID     `json:"caregiving_round_id"`
	ReceptionID       uuid.UUID     `json:"reception_id"`
	BasicAmount       int           `json:"basic_amount"`
	AdditionalAmount  int           `json:"additional_amount"`
	TotalAmount       int           `json:"total_amount"`
	ConfirmStatus     ConfirmStatus `json:"confirm_status"`
	CalculatedAt      time.Time     `json:"calculated_at"`
	SubjectID         string        `json:"subject_id"`
}

func (CaregivingChargeCalculated) EventName() string { return EventCaregivingChargeCalculated }

type CaregivingChargeModified struct {
	CaregivingRoundID      uuid.UUID                                `json:"caregiving_round_id"`
	ReceptionID            uuid.UUID                                `json:"reception_id"`
	EditorID               string                                   `json:"editor_id"`
	ModifiedAt             time.Time                                `json:"modified_at"`
	Items                  modification.Modification[ChargeItems]   `json:"items"`
	AdditionalCharges      modification.List[AdditionalCharge]      `json:"additional_charges"`
	IsCancelAfterArrived   modification.Modification[bool]          `json:"is_cancel_after_arrived"`
	ExpectedSettlementDate modification.Modification[time.Time]     `json:"expected_settlement_date"`
	ConfirmStatus          modification.Modification[ConfirmStatus] `json:"confirm_status"`
	BasicAmount            modification.Modification[int]           `json:"basic_amount"`
	AdditionalAmount       modification.Modification[int]           `json:"additional_amount"`
	TotalAmount            modification.Modification[int]           `json:"total_amount"`
}

func (CaregivingChargeModified) EventName() string { return EventCaregivingChargeModified }

type AllCaregivingRoundReconciliationCompleted struct {
	ReceptionID uuid.UUID `json:"reception_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (AllCaregivingRoundReconciliationCompleted) EventName() string {
	return EventAllRoundsReconciliationCompleted
}

// -- Inbound --

// ReceptionModified carries the reception's current values. A nil
// CaregivingManagerInfo means the event does not report the manager.
type ReceptionModified struct {
	ReceptionID                 uuid.UUID                         `json:"reception_id"`
	InsuranceNumber             string                            `json:"insurance_number"`
	AccidentNumber              string                            `json:"accident_number"`
	MaskedPatientName           string                            `json:"masked_patient_name"`
	HospitalName                string                            `json:"hospital_name"`
	ExpectedCaregivingStartDate *time.Time                        `json:"expected_caregiving_start_date,omitempty"`
	ProgressingStatus           modification.Modification[string] `json:"progressing_status"`
	CaregivingManagerInfo       *CaregivingManagerInfo            `json:"caregiving_manager_info,omitempty"`
	ModifiedAt                  time.Time                         `json:"modified_at"`
}

func (ReceptionModified) EventName() string { return EventReceptionModified }

type BillingModified struct {
	CaregivingRoundID uuid.UUID                                           `json:"caregiving_round_id"`
	ReceptionID       uuid.UUID                                           `json:"reception_id"`
	ProgressingStatus modification.Modification[BillingProgressingStatus] `json:"progressing_status"`
	ModifiedAt        time.Time                                           `json:"modified_at"`
}

func (BillingModified) EventName() string { return EventBillingModified }

type BillingGenerated struct {
	CaregivingRoundID uuid.UUID                `json:"caregiving_round_id"`
	ReceptionID       uuid.UUID                `json:"reception_id"`
	ProgressingStatus BillingProgressingStatus `json:"progressing_status"`
	GeneratedAt       time.Time                `json:"generated_at"`
}

func (BillingGenerated) EventName() string { return EventBillingGenerated }

type SettlementModified struct {
	CaregivingRoundID uuid.UUID                                              `json:"caregiving_round_id"`
	ReceptionID       uuid.UUID                                              `json:"reception_id"`
	ProgressingStatus modification.Modification[SettlementProgressingStatus] `json:"progressing_status"`
	ModifiedAt        time.Time                                              `json:"modified_at"`
}

func (SettlementModified) EventName() string { return EventSettlementModified }

type SettlementGenerated struct {
	CaregivingRoundID uuid.UUID                   `json:"caregiving_round_id"`
	ReceptionID       uuid.UUID                   `json:"reception_id"`
	ProgressingStatus SettlementProgressingStatus `json:"progressing_status"`
	GeneratedAt       time.Time                   `json:"generated_at"`
}

func (SettlementGenerated) EventName() string { return EventSettlementGenerated }

// ReconciliationIssuedType is the kind of reconciliation that was closed.
type ReconciliationIssuedType string

const (
	IssuedFinish      ReconciliationIssuedType = "FINISH"
	IssuedAdditional  ReconciliationIssuedType = "ADDITIONAL"
	IssuedTransaction ReconciliationIssuedType = "TRANSACTION"
)

type ReconciliationClosed struct {
	ReconciliationID  uuid.UUID                `json:"reconciliation_id"`
	ReceptionID       uuid.UUID                `json:"reception_id"`
	CaregivingRoundID uuid.UUID                `json:"caregiving_round_id"`
	IssuedType        ReconciliationIssuedType `json:"issued_type"`
	ClosedAt          time.Time                `json:"closed_at"`
}

func (ReconciliationClosed) EventName() string { return EventReconciliationClosed }
