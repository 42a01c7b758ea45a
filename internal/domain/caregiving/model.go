package caregiving

import (
	"time"

	"github.com/google/uuid"
)

// ProgressingStatus is the caregiving progressing status of a round.
type ProgressingStatus string

const (
	StatusNotStarted                      ProgressingStatus = "NOT_STARTED"
	StatusInProgress                      ProgressingStatus = "CAREGIVING_IN_PROGRESS"
	StatusRematching                      ProgressingStatus = "REMATCHING"
	StatusPendingRematching               ProgressingStatus = "PENDING_REMATCHING"
	StatusCanceledWhileRematching         ProgressingStatus = "CANCELED_WHILE_REMATCHING"
	StatusCompletedRestarting             ProgressingStatus = "COMPLETED_RESTARTING"
	StatusCompleted                       ProgressingStatus = "COMPLETED"
	StatusCompletedUsingPersonalCaregiver ProgressingStatus = "COMPLETED_USING_PERSONAL_CAREGIVER"
	StatusReconciliationCompleted         ProgressingStatus = "RECONCILIATION_COMPLETED"
)

var validProgressingStatuses = map[ProgressingStatus]bool{
	StatusNotStarted: true, StatusInProgress: true, StatusRematching: true,
	StatusPendingRematching: true, StatusCanceledWhileRematching: true,
	StatusCompletedRestarting: true, StatusCompleted: true,
	StatusCompletedUsingPersonalCaregiver: true, StatusReconciliationCompleted: true,
}

func (s ProgressingStatus) Valid() bool { return validProgressingStatuses[s] }

// IsChargeable reports whether a charge may be calculated for a round in this status.
func (s ProgressingStatus) IsChargeable() bool {
	return s == StatusCompleted || s == StatusCompletedUsingPersonalCaregiver
}

// IsReconciliationCompleted reports whether the round needs no further
// reconciliation.
func (s ProgressingStatus) IsReconciliationCompleted() bool {
	return s == StatusReconciliationCompleted || s == StatusCanceledWhileRematching
}

// ClosingReasonType records why a round was finished or canceled.
type ClosingReasonType string

const (
	ReasonFinished                             ClosingReasonType = "FINISHED"
	ReasonFinishedUsingPersonalCaregiver       ClosingReasonType = "FINISHED_USING_PERSONAL_CAREGIVER"
	ReasonFinishedContinue                     ClosingReasonType = "FINISHED_CONTINUE"
	ReasonFinishedRestarting                   ClosingReasonType = "FINISHED_RESTARTING"
	ReasonFinishedChangingHospital             ClosingReasonType = "FINISHED_CHANGING_HOSPITAL"
	ReasonFinishedChangingCaregiver            ClosingReasonType = "FINISHED_CHANGING_CAREGIVER"
	ReasonFinishedChangingCaregiverAndHospital ClosingReasonType = "FINISHED_CHANGING_CAREGIVER_AND_HOSPITAL"

	ReasonCanceledWhileRematching     ClosingReasonType = "CANCELED_WHILE_REMATCHING"
	ReasonCanceledByPersonalCaregiver ClosingReasonType = "CANCELED_BY_PERSONAL_CAREGIVER"
	ReasonCanceledByMedicalRequest    ClosingReasonType = "CANCELED_BY_MEDICAL_REQUEST"
)

type successorKind int

const (
	noSuccessor successorKind = iota
	continuingSuccessor
	restartingSuccessor
)

// IsFinishingReason reports whether the reason may complete a round.
func (r ClosingReasonType) IsFinishingReason() bool {
	switch r {
	case ReasonFinished, ReasonFinishedUsingPersonalCaregiver, ReasonFinishedContinue,
		ReasonFinishedRestarting, ReasonFinishedChangingHospital,
		ReasonFinishedChangingCaregiver, ReasonFinishedChangingCaregiverAndHospital:
		return true
	}
	return false
}

// IsCancelReason reports whether the reason may cancel a round.
func (r ClosingReasonType) IsCancelReason() bool {
	switch r {
	case ReasonCanceledWhileRematching, ReasonCanceledByPersonalCaregiver, ReasonCanceledByMedicalRequest:
		return true
	}
	return false
}

func (r ClosingReasonType) successor() successorKind {
	switch r {
	case ReasonFinishedContinue:
		return continuingSuccessor
	case ReasonFinishedRestarting, ReasonFinishedChangingHospital,
		ReasonFinishedChangingCaregiver, ReasonFinishedChangingCaregiverAndHospital:
		return restartingSuccessor
	}
	return noSuccessor
}

// EndsReception reports whether a round finished for this reason is the
// last round of its reception.
func (r ClosingReasonType) EndsReception() bool {
	return r.IsFinishingReason() && r.successor() == noSuccessor
}

func (r ClosingReasonType) completedStatus() ProgressingStatus {
	if r == ReasonFinishedUsingPersonalCaregiver {
		return StatusCompletedUsingPersonalCaregiver
	}
	return StatusCompleted
}

type BillingProgressingStatus string

const (
	BillingNotStarted        BillingProgressingStatus = "NOT_STARTED"
	BillingWaitingForBilling BillingProgressingStatus = "WAITING_FOR_BILLING"
	BillingWaitingDeposit    BillingProgressingStatus = "WAITING_DEPOSIT"
	BillingOverDeposit       BillingProgressingStatus = "OVER_DEPOSIT"
	BillingUnderDeposit      BillingProgressingStatus = "UNDER_DEPOSIT"
	BillingCompletedDeposit  BillingProgressingStatus = "COMPLETED_DEPOSIT"
)

type SettlementProgressingStatus string

const (
	SettlementNotStarted SettlementProgressingStatus = "NOT_STARTED"
	SettlementConfirmed  SettlementProgressingStatus = "CONFIRMED"
	SettlementWaiting    SettlementProgressingStatus = "WAITING"
	SettlementCompleted  SettlementProgressingStatus = "COMPLETED"
)

type Sex string

const (
	SexMale   Sex = "MALE"
	SexFemale Sex = "FEMALE"
)

type AccountInfo struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
}

// CaregiverInfo describes the caregiver assigned to a round. A zero
// CaregiverOrganizationID means a personal caregiver.
type CaregiverInfo struct {
	CaregiverOrganizationID uuid.UUID   `json:"caregiver_organization_id"`
	Name                    string      `json:"name"`
	Sex                     Sex         `json:"sex"`
	BirthDate               string      `json:"birth_date,omitempty"`
	PhoneNumber             string      `json:"phone_number"`
	DailyCaregivingCharge   int         `json:"daily_caregiving_charge"`
	CommissionFee           int         `json:"commission_fee"`
	Insured                 bool        `json:"insured"`
	AccountInfo             AccountInfo `json:"account_info"`
}

type OrganizationType string

const (
	OrganizationInternal   OrganizationType = "INTERNAL"
	OrganizationCaregiving OrganizationType = "ORGANIZATION"
	OrganizationAffiliated OrganizationType = "AFFILIATED"
)

// CaregivingManagerInfo is who manages caregiving for a reception.
type CaregivingManagerInfo struct {
	OrganizationType OrganizationType `json:"organization_type"`
	OrganizationID   uuid.UUID        `json:"organization_id"`
	ManagingUserID   uuid.UUID        `json:"managing_user_id"`
}

// ReceptionInfo is the denormalized reception snapshot a round carries.
type ReceptionInfo struct {
	ReceptionID                uuid.UUID              `json:"reception_id"`
	InsuranceNumber            string                 `json:"insurance_number"`
	AccidentNumber             string                 `json:"accident_number"`
	MaskedPatientName          string                 `json:"masked_patient_name"`
	ExpectedCaregivingStart    *time.Time             `json:"expected_caregiving_start_date,omitempty"`
	ReceptionProgressingStatus string                 `json:"reception_progressing_status"`
	CaregivingManagerInfo      *CaregivingManagerInfo `json:"caregiving_manager_info,omitempty"`
}

func (ri ReceptionInfo) managingOrganizationID() uuid.UUID {
	if ri.CaregivingManagerInfo == nil {
		return uuid.Nil
	}
	return ri.CaregivingManagerInfo.OrganizationID
}

// Reception is the read model of a reception returned by ReceptionQuery.
type Reception struct {
	ID                    uuid.UUID              `json:"id"`
	InsuranceNumber       string                 `json:"insurance_number"`
	AccidentNumber        string                 `json:"accident_number"`
	MaskedPatientName     string                 `json:"masked_patient_name"`
	HospitalName          string                 `json:"hospital_name"`
	ProgressingStatus     string                 `json:"progressing_status"`
	CaregivingManagerInfo *CaregivingManagerInfo `json:"caregiving_manager_info,omitempty"`
}

func (r *Reception) ManagingOrganizationID() uuid.UUID {
	if r.CaregivingManagerInfo == nil {
		return uuid.Nil
	}
	return r.CaregivingManagerInfo.OrganizationID
}

// RoundRef identifies a round inside its reception.
type RoundRef struct {
	ID     uuid.UUID `json:"id"`
	Number int       `json:"number"`
}
