package caregiving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careclaims/careclaims/internal/platform/db"
)

type roundRepoPG struct {
	pool *pgxpool.Pool
}

func NewRoundRepo(pool *pgxpool.Pool) RoundRepository {
	return &roundRepoPG{pool: pool}
}

const roundCols = `r.id, r.round_number, r.reception_id, r.insurance_number, r.accident_number,
	r.masked_patient_name, r.expected_caregiving_start_date, r.reception_progressing_status,
	r.manager_organization_type, r.manager_organization_id, r.manager_user_id,
	r.progressing_status, r.caregiver_info, r.start_date_time, r.end_date_time,
	r.closing_reason_type, r.detail_closing_reason, r.canceled_date_time,
	r.billing_progressing_status, r.settlement_progressing_status, r.remarks`

const roundFrom = ` FROM caregiving_round r LEFT JOIN reception rec ON rec.id = r.reception_id`

func (r *roundRepoPG) Create(ctx context.Context, round *CaregivingRound) error {
	rec := round.Record()
	mgrType, mgrOrg, mgrUser := managerColumns(rec.ReceptionInfo.CaregivingManagerInfo)
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO caregiving_round (
			id, round_number, reception_id, insurance_number, accident_number,
			masked_patient_name, expected_caregiving_start_date, reception_progressing_status,
			manager_organization_type, manager_organization_id, manager_user_id,
			progressing_status, caregiver_info, start_date_time, end_date_time,
			closing_reason_type, detail_closing_reason, canceled_date_time,
			billing_progressing_status, settlement_progressing_status, remarks
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		rec.ID, rec.Number, rec.ReceptionInfo.ReceptionID, rec.ReceptionInfo.InsuranceNumber, rec.ReceptionInfo.AccidentNumber,
		rec.ReceptionInfo.MaskedPatientName, rec.ReceptionInfo.ExpectedCaregivingStart, rec.ReceptionInfo.ReceptionProgressingStatus,
		mgrType, mgrOrg, mgrUser,
		string(rec.State.ProgressingStatus), rec.State.CaregiverInfo, rec.State.StartDateTime, rec.State.EndDateTime,
		nullString(string(rec.State.ClosingReasonType)), nullString(rec.State.DetailClosingReason), rec.State.CanceledDateTime,
		string(rec.BillingStatus), string(rec.SettlementStatus), rec.Remarks,
	)
	if err != nil {
		return fmt.Errorf("insert caregiving round %s: %w", rec.ID, err)
	}
	return nil
}

func (r *roundRepoPG) Update(ctx context.Context, round *CaregivingRound) error {
	rec := round.Record()
	mgrType, mgrOrg, mgrUser := managerColumns(rec.ReceptionInfo.CaregivingManagerInfo)
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE caregiving_round SET
			insurance_number=$2, accident_number=$3, masked_patient_name=$4,
			expected_caregiving_start_date=$5, reception_progressing_status=$6,
			manager_organization_type=$7, manager_organization_id=$8, manager_user_id=$9,
			progressing_status=$10, caregiver_info=$11, start_date_time=$12, end_date_time=$13,
			closing_reason_type=$14, detail_closing_reason=$15, canceled_date_time=$16,
			billing_progressing_status=$17, settlement_progressing_status=$18, remarks=$19,
			updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.ReceptionInfo.InsuranceNumber, rec.ReceptionInfo.AccidentNumber, rec.ReceptionInfo.MaskedPatientName,
		rec.ReceptionInfo.ExpectedCaregivingStart, rec.ReceptionInfo.ReceptionProgressingStatus,
		mgrType, mgrOrg, mgrUser,
		string(rec.State.ProgressingStatus), rec.State.CaregiverInfo, rec.State.StartDateTime, rec.State.EndDateTime,
		nullString(string(rec.State.ClosingReasonType)), nullString(rec.State.DetailClosingReason), rec.State.CanceledDateTime,
		string(rec.BillingStatus), string(rec.SettlementStatus), rec.Remarks,
	)
	if err != nil {
		return fmt.Errorf("update caregiving round %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &RoundNotFoundError{RoundID: rec.ID}
	}
	return nil
}

func (r *roundRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CaregivingRound, error) {
	round, err := scanRound(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+roundCols+roundFrom+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &RoundNotFoundError{RoundID: id}
	}
	return round, err
}

func (r *roundRepoPG) ListByReceptionID(ctx context.Context, receptionID uuid.UUID) ([]*CaregivingRound, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+roundCols+roundFrom+` WHERE r.reception_id = $1 ORDER BY r.round_number`, receptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRounds(rows)
}

func (r *roundRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*CaregivingRound, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+roundCols+roundFrom+` WHERE r.id = ANY($1) ORDER BY r.reception_id, r.round_number`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRounds(rows)
}

func (r *roundRepoPG) Search(ctx context.Context, criteria SearchCriteria, limit, offset int) ([]*CaregivingRound, int, error) {
	where, args := buildRoundPredicate(criteria)
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+roundFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY r.created_at DESC, r.round_number DESC LIMIT $%d OFFSET $%d`,
		roundCols, roundFrom, where, len(args)+1, len(args)+2)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	rounds, err := collectRounds(rows)
	if err != nil {
		return nil, 0, err
	}
	return rounds, total, nil
}

func scanRound(row pgx.Row) (*CaregivingRound, error) {
	var (
		rec                         RoundRecord
		mgrType                     *string
		mgrOrg, mgrUser             *uuid.UUID
		status, billing, settlement string
		closingReason, detail       *string
	)
	err := row.Scan(
		&rec.ID, &rec.Number, &rec.ReceptionInfo.ReceptionID, &rec.ReceptionInfo.InsuranceNumber, &rec.ReceptionInfo.AccidentNumber,
		&rec.ReceptionInfo.MaskedPatientName, &rec.ReceptionInfo.ExpectedCaregivingStart, &rec.ReceptionInfo.ReceptionProgressingStatus,
		&mgrType, &mgrOrg, &mgrUser,
		&status, &rec.State.CaregiverInfo, &rec.State.StartDateTime, &rec.State.EndDateTime,
		&closingReason, &detail, &rec.State.CanceledDateTime,
		&billing, &settlement, &rec.Remarks,
	)
	if err != nil {
		return nil, err
	}
	rec.ReceptionInfo.CaregivingManagerInfo = managerFromColumns(mgrType, mgrOrg, mgrUser)
	rec.State.ProgressingStatus = ProgressingStatus(status)
	rec.State.ClosingReasonType = ClosingReasonType(derefString(closingReason))
	rec.State.DetailClosingReason = derefString(detail)
	rec.BillingStatus = BillingProgressingStatus(billing)
	rec.SettlementStatus = SettlementProgressingStatus(settlement)
	return RestoreCaregivingRound(rec)
}

func collectRounds(rows pgx.Rows) ([]*CaregivingRound, error) {
	var rounds []*CaregivingRound
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

type chargeRepoPG struct {
	pool *pgxpool.Pool
}

func NewChargeRepo(pool *pgxpool.Pool) ChargeRepository {
	return &chargeRepoPG{pool: pool}
}

const chargeCols = `caregiving_round_id, round_number, reception_id, start_date_time, end_date_time,
	daily_caregiving_charge, additional_hours_charge, meal_cost, transportation_fee, holiday_charge,
	caregiver_insurance_fee, commission_fee, vacation_charge, patient_condition_charge,
	covid19_testing_cost, outstanding_amount, is_cancel_after_arrived, expected_settlement_date,
	confirm_status, managing_organization_id`

func (r *chargeRepoPG) GetByRoundID(ctx context.Context, roundID uuid.UUID) (*CaregivingCharge, error) {
	conn := db.Conn(ctx, r.pool)
	c, err := scanCharge(conn.QueryRow(ctx, `SELECT `+chargeCols+` FROM caregiving_charge WHERE caregiving_round_id = $1`, roundID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ChargeNotFoundError{RoundID: roundID}
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadAdditionalCharges(ctx, []*CaregivingCharge{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *chargeRepoPG) ListByReceptionID(ctx context.Context, receptionID uuid.UUID) ([]*CaregivingCharge, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+chargeCols+` FROM caregiving_charge WHERE reception_id = $1 ORDER BY round_number`, receptionID)
	if err != nil {
		return nil, err
	}
	var charges []*CaregivingCharge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		charges = append(charges, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadAdditionalCharges(ctx, charges); err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *chargeRepoPG) loadAdditionalCharges(ctx context.Context, charges []*CaregivingCharge) error {
	if len(charges) == 0 {
		return nil
	}
	byRound := make(map[uuid.UUID]*CaregivingCharge, len(charges))
	ids := make([]uuid.UUID, 0, len(charges))
	for _, c := range charges {
		byRound[c.roundInfo.RoundID] = c
		ids = append(ids, c.roundInfo.RoundID)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT caregiving_round_id, name, amount
		FROM caregiving_charge_additional_charge
		WHERE caregiving_round_id = ANY($1)
		ORDER BY caregiving_round_id, sequence`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			roundID uuid.UUID
			ac      AdditionalCharge
		)
		if err := rows.Scan(&roundID, &ac.Name, &ac.Amount); err != nil {
			return err
		}
		if c, ok := byRound[roundID]; ok {
			c.additionalCharges = append(c.additionalCharges, ac)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, c := range charges {
		c.calculate()
	}
	return nil
}

// Save upserts the charge and rewrites its additional charges in order.
func (r *chargeRepoPG) Save(ctx context.Context, c *CaregivingCharge) error {
	conn := db.Conn(ctx, r.pool)
	info, items := c.roundInfo, c.items
	_, err := conn.Exec(ctx, `
		INSERT INTO caregiving_charge (
			caregiving_round_id, round_number, reception_id, start_date_time, end_date_time,
			daily_caregiving_charge, additional_hours_charge, meal_cost, transportation_fee, holiday_charge,
			caregiver_insurance_fee, commission_fee, vacation_charge, patient_condition_charge,
			covid19_testing_cost, outstanding_amount, is_cancel_after_arrived, expected_settlement_date,
			confirm_status, managing_organization_id, basic_amount, additional_amount, total_amount
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (caregiving_round_id) DO UPDATE SET
			additional_hours_charge=EXCLUDED.additional_hours_charge, meal_cost=EXCLUDED.meal_cost,
			transportation_fee=EXCLUDED.transportation_fee, holiday_charge=EXCLUDED.holiday_charge,
			caregiver_insurance_fee=EXCLUDED.caregiver_insurance_fee, commission_fee=EXCLUDED.commission_fee,
			vacation_charge=EXCLUDED.vacation_charge, patient_condition_charge=EXCLUDED.patient_condition_charge,
			covid19_testing_cost=EXCLUDED.covid19_testing_cost, outstanding_amount=EXCLUDED.outstanding_amount,
			is_cancel_after_arrived=EXCLUDED.is_cancel_after_arrived,
			expected_settlement_date=EXCLUDED.expected_settlement_date,
			confirm_status=EXCLUDED.confirm_status, managing_organization_id=EXCLUDED.managing_organization_id,
			basic_amount=EXCLUDED.basic_amount, additional_amount=EXCLUDED.additional_amount,
			total_amount=EXCLUDED.total_amount, updated_at=NOW()`,
		info.RoundID, info.RoundNumber, info.ReceptionID, info.StartDateTime, info.EndDateTime,
		info.DailyCaregivingCharge, items.AdditionalHoursCharge, items.MealCost, items.TransportationFee, items.HolidayCharge,
		items.CaregiverInsuranceFee, items.CommissionFee, items.VacationCharge, items.PatientConditionCharge,
		items.Covid19TestingCost, items.OutstandingAmount, c.isCancelAfterArrived, nullTime(c.expectedSettlementDate),
		string(c.confirmStatus), nullUUID(c.managingOrganizationID), c.basicAmount, c.additionalAmount, c.totalAmount,
	)
	if err != nil {
		return fmt.Errorf("save caregiving charge %s: %w", info.RoundID, err)
	}

	if _, err := conn.Exec(ctx, `DELETE FROM caregiving_charge_additional_charge WHERE caregiving_round_id = $1`, info.RoundID); err != nil {
		return fmt.Errorf("clear additional charges %s: %w", info.RoundID, err)
	}
	for i, ac := range c.additionalCharges {
		if _, err := conn.Exec(ctx, `
			INSERT INTO caregiving_charge_additional_charge (caregiving_round_id, sequence, name, amount)
			VALUES ($1,$2,$3,$4)`, info.RoundID, i, ac.Name, ac.Amount); err != nil {
			return fmt.Errorf("insert additional charge %q: %w", ac.Name, err)
		}
	}
	return nil
}

func scanCharge(row pgx.Row) (*CaregivingCharge, error) {
	var (
		c              CaregivingCharge
		settlementDate *time.Time
		status         string
		managingOrg    *uuid.UUID
	)
	err := row.Scan(
		&c.roundInfo.RoundID, &c.roundInfo.RoundNumber, &c.roundInfo.ReceptionID,
		&c.roundInfo.StartDateTime, &c.roundInfo.EndDateTime, &c.roundInfo.DailyCaregivingCharge,
		&c.items.AdditionalHoursCharge, &c.items.MealCost, &c.items.TransportationFee, &c.items.HolidayCharge,
		&c.items.CaregiverInsuranceFee, &c.items.CommissionFee, &c.items.VacationCharge, &c.items.PatientConditionCharge,
		&c.items.Covid19TestingCost, &c.items.OutstandingAmount, &c.isCancelAfterArrived, &settlementDate,
		&status, &managingOrg,
	)
	if err != nil {
		return nil, err
	}
	if settlementDate != nil {
		c.expectedSettlementDate = *settlementDate
	}
	if managingOrg != nil {
		c.managingOrganizationID = *managingOrg
	}
	c.confirmStatus = ConfirmStatus(status)
	c.calculate()
	return &c, nil
}

type receptionRepoPG struct {
	pool *pgxpool.Pool
}

func NewReceptionRepo(pool *pgxpool.Pool) ReceptionRepository {
	return &receptionRepoPG{pool: pool}
}

const receptionCols = `id, insurance_number, accident_number, masked_patient_name, hospital_name,
	progressing_status, manager_organization_type, manager_organization_id, manager_user_id`

func (r *receptionRepoPG) GetReception(ctx context.Context, id uuid.UUID) (*Reception, error) {
	rec, err := scanReception(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+receptionCols+` FROM reception WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ReceptionNotFoundError{ReceptionID: id}
	}
	return rec, err
}

func (r *receptionRepoPG) GetReceptions(ctx context.Context, ids []uuid.UUID) ([]*Reception, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+receptionCols+` FROM reception WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Reception
	for rows.Next() {
		rec, err := scanReception(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *receptionRepoPG) Save(ctx context.Context, rec *Reception) error {
	mgrType, mgrOrg, mgrUser := managerColumns(rec.CaregivingManagerInfo)
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO reception (`+receptionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			insurance_number=EXCLUDED.insurance_number, accident_number=EXCLUDED.accident_number,
			masked_patient_name=EXCLUDED.masked_patient_name, hospital_name=EXCLUDED.hospital_name,
			progressing_status=EXCLUDED.progressing_status,
			manager_organization_type=EXCLUDED.manager_organization_type,
			manager_organization_id=EXCLUDED.manager_organization_id,
			manager_user_id=EXCLUDED.manager_user_id, updated_at=NOW()`,
		rec.ID, rec.InsuranceNumber, rec.AccidentNumber, rec.MaskedPatientName, rec.HospitalName,
		rec.ProgressingStatus, mgrType, mgrOrg, mgrUser,
	)
	if err != nil {
		return fmt.Errorf("save reception %s: %w", rec.ID, err)
	}
	return nil
}

func scanReception(row pgx.Row) (*Reception, error) {
	var (
		rec             Reception
		mgrType         *string
		mgrOrg, mgrUser *uuid.UUID
	)
	err := row.Scan(&rec.ID, &rec.InsuranceNumber, &rec.AccidentNumber, &rec.MaskedPatientName, &rec.HospitalName,
		&rec.ProgressingStatus, &mgrType, &mgrOrg, &mgrUser)
	if err != nil {
		return nil, err
	}
	rec.CaregivingManagerInfo = managerFromColumns(mgrType, mgrOrg, mgrUser)
	return &rec, nil
}

func managerColumns(m *CaregivingManagerInfo) (*string, *uuid.UUID, *uuid.UUID) {
	if m == nil {
		return nil, nil, nil
	}
	t := string(m.OrganizationType)
	return &t, nullUUID(m.OrganizationID), nullUUID(m.ManagingUserID)
}

func managerFromColumns(t *string, org, user *uuid.UUID) *CaregivingManagerInfo {
	if t == nil {
		return nil
	}
	m := &CaregivingManagerInfo{OrganizationType: OrganizationType(*t)}
	if org != nil {
		m.OrganizationID = *org
	}
	if user != nil {
		m.ManagingUserID = *user
	}
	return m
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
