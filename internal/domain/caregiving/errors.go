package caregiving

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoProceedingAction is returned when a progressing status cannot be
// reached by any action.
var ErrNoProceedingAction = errors.New("no proceeding action for status")

// IllegalCaregivingPeriodError reports a start date after the end date.
type IllegalCaregivingPeriodError struct {
	RoundID uuid.UUID
	Start   time.Time
	End     time.Time
}

func (e *IllegalCaregivingPeriodError) Error() string {
	return fmt.Sprintf("caregiving round %s: start %s is after end %s",
		e.RoundID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// IllegalTransitionError reports a transition the current state does not define.
type IllegalTransitionError struct {
	From       ProgressingStatus
	Transition string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("transition %q is not defined for status %s", e.Transition, e.From)
}

// MissingStateFieldError reports state data that lacks a field its status requires.
type MissingStateFieldError struct {
	Status ProgressingStatus
	Field  string
}

func (e *MissingStateFieldError) Error() string {
	return fmt.Sprintf("status %s requires %s", e.Status, e.Field)
}

// InvalidClosingReasonError reports a reason that does not fit the transition.
type InvalidClosingReasonError struct {
	Reason     ClosingReasonType
	Transition string
}

func (e *InvalidClosingReasonError) Error() string {
	return fmt.Sprintf("closing reason %q cannot be used to %s", e.Reason, e.Transition)
}

type RoundNotFoundError struct {
	RoundID uuid.UUID
}

func (e *RoundNotFoundError) Error() string {
	return fmt.Sprintf("caregiving round %s not found", e.RoundID)
}

type ChargeNotFoundError struct {
	RoundID uuid.UUID
}

func (e *ChargeNotFoundError) Error() string {
	return fmt.Sprintf("caregiving charge for round %s not found", e.RoundID)
}

type ReceptionNotFoundError struct {
	ReceptionID uuid.UUID
}

func (e *ReceptionNotFoundError) Error() string {
	return fmt.Sprintf("reception %s not found", e.ReceptionID)
}

// DuplicateAdditionalChargeNamesError lists every name used more than once.
type DuplicateAdditionalChargeNamesError struct {
	Names []string
}

func (e *DuplicateAdditionalChargeNamesError) Error() string {
	return fmt.Sprintf("duplicated additional charge names: %s", strings.Join(e.Names, ", "))
}

// ChargeEditingDeniedError reports an edit on a confirmed charge.
type ChargeEditingDeniedError struct {
	RoundID       uuid.UUID
	ConfirmStatus ConfirmStatus
}

func (e *ChargeEditingDeniedError) Error() string {
	return fmt.Sprintf("caregiving charge for round %s is %s and cannot be edited", e.RoundID, e.ConfirmStatus)
}

type InvalidConfirmStatusTransitionError struct {
	From ConfirmStatus
	To   ConfirmStatus
}

func (e *InvalidConfirmStatusTransitionError) Error() string {
	return fmt.Sprintf("charge confirm status cannot change from %s to %s", e.From, e.To)
}

// InvalidActionableStatusError reports a round whose status does not allow
// the requested action.
type InvalidActionableStatusError struct {
	RoundID uuid.UUID
	Status  ProgressingStatus
}

func (e *InvalidActionableStatusError) Error() string {
	return fmt.Sprintf("caregiving round %s in status %s cannot be charged", e.RoundID, e.Status)
}

// UnknownRoundInfoError reports a round lacking the caregiver or dates a
// charge is computed from.
type UnknownRoundInfoError struct {
	RoundID uuid.UUID
}

func (e *UnknownRoundInfoError) Error() string {
	return fmt.Sprintf("caregiving round %s has no caregiver or caregiving period", e.RoundID)
}
