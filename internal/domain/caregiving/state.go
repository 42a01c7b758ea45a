package caregiving

import "time"

// StateData is the flat, storable projection of a CaregivingState.
type StateData struct {
	ProgressingStatus   ProgressingStatus
	CaregiverInfo       *CaregiverInfo
	StartDateTime       *time.Time
	EndDateTime         *time.Time
	ClosingReasonType   ClosingReasonType
	DetailClosingReason string
	CanceledDateTime    *time.Time
}

// CaregivingState is one of NotStartedState, InProgressState,
// RematchingState, PendingRematchingState, CanceledState, StoppedState,
// CompleteState or ReconciliationCompletedState. Each variant carries only
// the fields its status requires. States are values: transitions return a
// new state and never modify the receiver.
type CaregivingState interface {
	Round() RoundRef
	Status() ProgressingStatus
	Data() StateData
	caregivingState()
}

type NotStartedState struct {
	Ref       RoundRef
	Caregiver *CaregiverInfo
}

type InProgressState struct {
	Ref       RoundRef
	Caregiver CaregiverInfo
	Start     time.Time
	End       *time.Time
}

type RematchingState struct {
	Ref       RoundRef
	Caregiver CaregiverInfo
}

type PendingRematchingState struct {
	Ref       RoundRef
	Caregiver CaregiverInfo
}

type CanceledState struct {
	Ref        RoundRef
	Caregiver  CaregiverInfo
	Start      *time.Time
	Reason     ClosingReasonType
	Detail     string
	CanceledAt *time.Time
}

type StoppedState struct {
	Ref       RoundRef
	Caregiver CaregiverInfo
	Start     time.Time
	End       time.Time
}

type CompleteState struct {
	Ref       RoundRef
	Caregiver CaregiverInfo
	Start     time.Time
	End       time.Time
	Reason    ClosingReasonType
}

type ReconciliationCompletedState struct {
	Ref       RoundRef
	Caregiver CaregiverInfo
	Start     time.Time
	End       time.Time
	Reason    ClosingReasonType
}

func (s NotStartedState) Round() RoundRef              { return s.Ref }
func (s InProgressState) Round() RoundRef              { return s.Ref }
func (s RematchingState) Round() RoundRef              { return s.Ref }
func (s PendingRematchingState) Round() RoundRef       { return s.Ref }
func (s CanceledState) Round() RoundRef                { return s.Ref }
func (s StoppedState) Round() RoundRef                 { return s.Ref }
func (s CompleteState) Round() RoundRef                { return s.Ref }
func (s ReconciliationCompletedState) Round() RoundRef { return s.Ref }

func (NotStartedState) Status() ProgressingStatus        { return StatusNotStarted }
func (InProgressState) Status() ProgressingStatus        { return StatusInProgress }
func (RematchingState) Status() ProgressingStatus        { return StatusRematching }
func (PendingRematchingState) Status() ProgressingStatus { return StatusPendingRematching }
func (CanceledState) Status() ProgressingStatus          { return StatusCanceledWhileRematching }
func (StoppedState) Status() ProgressingStatus           { return StatusCompletedRestarting }
func (s CompleteState) Status() ProgressingStatus        { return s.Reason.completedStatus() }
func (ReconciliationCompletedState) Status() ProgressingStatus {
	return StatusReconciliationCompleted
}

func (NotStartedState) caregivingState()              {}
func (InProgressState) caregivingState()              {}
func (RematchingState) caregivingState()              {}
func (PendingRematchingState) caregivingState()       {}
func (CanceledState) caregivingState()                {}
func (StoppedState) caregivingState()                 {}
func (CompleteState) caregivingState()                {}
func (ReconciliationCompletedState) caregivingState() {}

func (s NotStartedState) Data() StateData {
	return StateData{ProgressingStatus: s.Status(), CaregiverInfo: copyCaregiver(s.Caregiver)}
}

func (s InProgressState) Data() StateData {
	return StateData{
		ProgressingStatus: s.Status(),
		CaregiverInfo:     &s.Caregiver,
		StartDateTime:     &s.Start,
		EndDateTime:       copyTime(s.End),
	}
}

func (s RematchingState) Data() StateData {
	return StateData{ProgressingStatus: s.Status(), CaregiverInfo: &s.Caregiver}
}

func (s PendingRematchingState) Data() StateData {
	return StateData{ProgressingStatus: s.Status(), CaregiverInfo: &s.Caregiver}
}

func (s CanceledState) Data() StateData {
	return StateData{
		ProgressingStatus:   s.Status(),
		CaregiverInfo:       &s.Caregiver,
		StartDateTime:       copyTime(s.Start),
		ClosingReasonType:   s.Reason,
		DetailClosingReason: s.Detail,
		CanceledDateTime:    copyTime(s.CanceledAt),
	}
}

func (s StoppedState) Data() StateData {
	return StateData{
		ProgressingStatus: s.Status(),
		CaregiverInfo:     &s.Caregiver,
		StartDateTime:     &s.Start,
		EndDateTime:       &s.End,
	}
}

func (s CompleteState) Data() StateData {
	return StateData{
		ProgressingStatus: s.Status(),
		CaregiverInfo:     &s.Caregiver,
		StartDateTime:     &s.Start,
		EndDateTime:       &s.End,
		ClosingReasonType: s.Reason,
	}
}

func (s ReconciliationCompletedState) Data() StateData {
	return StateData{
		ProgressingStatus: s.Status(),
		CaregiverInfo:     &s.Caregiver,
		StartDateTime:     &s.Start,
		EndDateTime:       &s.End,
		ClosingReasonType: s.Reason,
	}
}

func copyCaregiver(c *CaregiverInfo) *CaregiverInfo {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// RestoreState rebuilds the state variant from stored data. Data lacking a
// field its status requires is rejected.
func RestoreState(ref RoundRef, d StateData) (CaregivingState, error) {
	missing := func(field string) error {
		return &MissingStateFieldError{Status: d.ProgressingStatus, Field: field}
	}
	needCaregiver := func() (CaregiverInfo, error) {
		if d.CaregiverInfo == nil {
			return CaregiverInfo{}, missing("caregiver_info")
		}
		return *d.CaregiverInfo, nil
	}
	needTime := func(t *time.Time, field string) (time.Time, error) {
		if t == nil {
			return time.Time{}, missing(field)
		}
		return *t, nil
	}

	switch d.ProgressingStatus {
	case StatusNotStarted:
		return NotStartedState{Ref: ref, Caregiver: copyCaregiver(d.CaregiverInfo)}, nil

	case StatusInProgress:
		c, err := needCaregiver()
		if err != nil {
			return nil, err
		}
		start, err := needTime(d.StartDateTime, "start_date_time")
		if err != nil {
			return nil, err
		}
		return InProgressState{Ref: ref, Caregiver: c, Start: start, End: copyTime(d.EndDateTime)}, nil

	case StatusRematching, StatusPendingRematching:
		c, err := needCaregiver()
		if err != nil {
			return nil, err
		}
		if d.ProgressingStatus == StatusRematching {
			return RematchingState{Ref: ref, Caregiver: c}, nil
		}
		return PendingRematchingState{Ref: ref, Caregiver: c}, nil

	case StatusCanceledWhileRematching:
		c, err := needCaregiver()
		if err != nil {
			return nil, err
		}
		if d.ClosingReasonType == "" {
			return nil, missing("closing_reason_type")
		}
		if d.DetailClosingReason == "" {
			return nil, missing("detail_closing_reason")
		}
		return CanceledState{
			Ref: ref, Caregiver: c, Start: copyTime(d.StartDateTime),
			Reason: d.ClosingReasonType, Detail: d.DetailClosingReason, CanceledAt: copyTime(d.CanceledDateTime),
		}, nil

	case StatusCompletedRestarting, StatusCompleted, StatusCompletedUsingPersonalCaregiver, StatusReconciliationCompleted:
		c, err := needCaregiver()
		if err != nil {
			return nil, err
		}
		start, err := needTime(d.StartDateTime, "start_date_time")
		if err != nil {
			return nil, err
		}
		end, err := needTime(d.EndDateTime, "end_date_time")
		if err != nil {
			return nil, err
		}
		if d.ProgressingStatus == StatusCompletedRestarting {
			return StoppedState{Ref: ref, Caregiver: c, Start: start, End: end}, nil
		}
		if !d.ClosingReasonType.IsFinishingReason() {
			return nil, missing("finishing_reason")
		}
		if d.ProgressingStatus == StatusReconciliationCompleted {
			return ReconciliationCompletedState{Ref: ref, Caregiver: c, Start: start, End: end, Reason: d.ClosingReasonType}, nil
		}
		complete := CompleteState{Ref: ref, Caregiver: c, Start: start, End: end, Reason: d.ClosingReasonType}
		if complete.Status() != d.ProgressingStatus {
			return nil, missing("finishing_reason matching " + string(d.ProgressingStatus))
		}
		return complete, nil
	}
	return nil, missing("valid progressing_status")
}

func illegal(s CaregivingState, transition string) error {
	return &IllegalTransitionError{From: s.Status(), Transition: transition}
}

// AssignCaregiver attaches a caregiver. A pending round becomes rematching.
func AssignCaregiver(s CaregivingState, c CaregiverInfo) (CaregivingState, error) {
	switch st := s.(type) {
	case NotStartedState:
		return NotStartedState{Ref: st.Ref, Caregiver: &c}, nil
	case RematchingState:
		return RematchingState{Ref: st.Ref, Caregiver: c}, nil
	case PendingRematchingState:
		return RematchingState{Ref: st.Ref, Caregiver: c}, nil
	default:
		return nil, illegal(s, "assign_caregiver")
	}
}

// Start begins caregiving at the given time.
func Start(s CaregivingState, at time.Time) (CaregivingState, error) {
	switch st := s.(type) {
	case NotStartedState:
		if st.Caregiver == nil {
			return nil, &MissingStateFieldError{Status: StatusInProgress, Field: "caregiver_info"}
		}
		return InProgressState{Ref: st.Ref, Caregiver: *st.Caregiver, Start: at}, nil
	case RematchingState:
		return InProgressState{Ref: st.Ref, Caregiver: st.Caregiver, Start: at}, nil
	default:
		return nil, illegal(s, "start")
	}
}

// EditStartDateTime replaces the start of a started round.
func EditStartDateTime(s CaregivingState, at time.Time) (CaregivingState, error) {
	switch st := s.(type) {
	case InProgressState:
		st.Start = at
		return st, nil
	case StoppedState:
		st.Start = at
		return st, nil
	case CompleteState:
		st.Start = at
		return st, nil
	default:
		return nil, illegal(s, "edit_start_date_time")
	}
}

// EditEndDateTime replaces the end of a started round.
func EditEndDateTime(s CaregivingState, at time.Time) (CaregivingState, error) {
	switch st := s.(type) {
	case InProgressState:
		st.End = &at
		return st, nil
	case StoppedState:
		st.End = at
		return st, nil
	case CompleteState:
		st.End = at
		return st, nil
	default:
		return nil, illegal(s, "edit_end_date_time")
	}
}

// Pend puts the round on hold until a caregiver is rematched.
func Pend(s CaregivingState) (CaregivingState, error) {
	switch st := s.(type) {
	case InProgressState:
		return PendingRematchingState{Ref: st.Ref, Caregiver: st.Caregiver}, nil
	case RematchingState:
		return PendingRematchingState{Ref: st.Ref, Caregiver: st.Caregiver}, nil
	default:
		return nil, illegal(s, "pend")
	}
}

// Rematch resumes matching for a pending round with the given caregiver.
func Rematch(s CaregivingState, c CaregiverInfo) (CaregivingState, error) {
	switch st := s.(type) {
	case PendingRematchingState:
		return RematchingState{Ref: st.Ref, Caregiver: c}, nil
	default:
		return nil, illegal(s, "rematch")
	}
}

// Cancel closes the round without completing it.
func Cancel(s CaregivingState, reason ClosingReasonType, detail string, at time.Time) (CaregivingState, error) {
	if !reason.IsCancelReason() {
		return nil, &InvalidClosingReasonError{Reason: reason, Transition: "cancel"}
	}
	canceled := CanceledState{Reason: reason, Detail: detail, CanceledAt: &at}
	switch st := s.(type) {
	case InProgressState:
		start := st.Start
		canceled.Ref, canceled.Caregiver, canceled.Start = st.Ref, st.Caregiver, &start
	case RematchingState:
		canceled.Ref, canceled.Caregiver = st.Ref, st.Caregiver
	case PendingRematchingState:
		canceled.Ref, canceled.Caregiver = st.Ref, st.Caregiver
	default:
		return nil, illegal(s, "cancel")
	}
	if detail == "" {
		return nil, &MissingStateFieldError{Status: StatusCanceledWhileRematching, Field: "detail_closing_reason"}
	}
	return canceled, nil
}

// Stop ends caregiving temporarily; the round is expected to restart.
func Stop(s CaregivingState, at time.Time) (CaregivingState, error) {
	switch st := s.(type) {
	case InProgressState:
		return StoppedState{Ref: st.Ref, Caregiver: st.Caregiver, Start: st.Start, End: at}, nil
	default:
		return nil, illegal(s, "stop")
	}
}

// Complete finishes the round. The reason decides the resulting status and
// what successor round, if any, follows (see CompleteState.Successor).
func Complete(s CaregivingState, end time.Time, reason ClosingReasonType) (CompleteState, error) {
	if !reason.IsFinishingReason() {
		return CompleteState{}, &InvalidClosingReasonError{Reason: reason, Transition: "complete"}
	}
	switch st := s.(type) {
	case InProgressState:
		return CompleteState{Ref: st.Ref, Caregiver: st.Caregiver, Start: st.Start, End: end, Reason: reason}, nil
	case StoppedState:
		return CompleteState{Ref: st.Ref, Caregiver: st.Caregiver, Start: st.Start, End: end, Reason: reason}, nil
	default:
		return CompleteState{}, illegal(s, "complete")
	}
}

// Successor returns the initial state of the round that follows this one,
// or false when the closing reason ends the reception's caregiving.
func (s CompleteState) Successor(next RoundRef) (CaregivingState, bool) {
	switch s.Reason.successor() {
	case continuingSuccessor:
		return InProgressState{Ref: next, Caregiver: s.Caregiver, Start: s.End}, true
	case restartingSuccessor:
		return NotStartedState{Ref: next}, true
	default:
		return nil, false
	}
}

// CompleteReconciliation marks a completed round as reconciled.
func CompleteReconciliation(s CaregivingState) (CaregivingState, error) {
	switch st := s.(type) {
	case CompleteState:
		return ReconciliationCompletedState{
			Ref: st.Ref, Caregiver: st.Caregiver, Start: st.Start, End: st.End, Reason: st.Reason,
		}, nil
	default:
		return nil, illegal(s, "complete_reconciliation")
	}
}
