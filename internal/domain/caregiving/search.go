package caregiving

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SearchCriteria selects rounds either by keyword or by filter. When any
// keyword is set the filters are ignored.
type SearchCriteria struct {
	PatientName          string
	AccidentNumber       string
	HospitalName         string
	CaregiverPhoneNumber string

	StartDateFrom       *time.Time
	StartDateUntil      *time.Time
	OrganizationID      uuid.UUID
	ProgressingStatuses []ProgressingStatus
	BillingStatuses     []BillingProgressingStatus
	SettlementStatuses  []SettlementProgressingStatus

	// ScopeOrganizationID limits results to rounds managed by one
	// organization. It is an access restriction and applies in both modes.
	ScopeOrganizationID uuid.UUID
}

// HasKeyword reports whether any keyword field is non-blank.
func (c SearchCriteria) HasKeyword() bool {
	for _, k := range []string{c.PatientName, c.AccidentNumber, c.HospitalName, c.CaregiverPhoneNumber} {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}

type predicateBuilder struct {
	clauses []string
	args    []interface{}
}

func (b *predicateBuilder) add(format string, arg interface{}) {
	b.args = append(b.args, arg)
	b.clauses = append(b.clauses, fmt.Sprintf(format, len(b.args)))
}

func (b *predicateBuilder) where() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(s)) + "%"
}

// buildRoundPredicate renders the WHERE clause for a round search against
// caregiving_round r joined with reception rec. Keyword and filter
// predicates are never combined.
func buildRoundPredicate(c SearchCriteria) (string, []interface{}) {
	b := &predicateBuilder{}
	if c.ScopeOrganizationID != uuid.Nil {
		b.add("r.manager_organization_id = $%d", c.ScopeOrganizationID)
	}

	if c.HasKeyword() {
		keywords := []struct {
			column string
			value  string
		}{
			{"r.masked_patient_name", c.PatientName},
			{"r.accident_number", c.AccidentNumber},
			{"rec.hospital_name", c.HospitalName},
			{"r.caregiver_info->>'phone_number'", c.CaregiverPhoneNumber},
		}
		for _, k := range keywords {
			if strings.TrimSpace(k.value) == "" {
				continue
			}
			b.add(k.column+" ILIKE $%d", containsPattern(k.value))
		}
		return b.where(), b.args
	}

	if c.StartDateFrom != nil {
		b.add("r.start_date_time >= $%d", truncateToDay(*c.StartDateFrom))
	}
	if c.StartDateUntil != nil {
		b.add("r.start_date_time < $%d", truncateToDay(*c.StartDateUntil).AddDate(0, 0, 1))
	}
	if c.OrganizationID != uuid.Nil {
		b.add("r.manager_organization_id = $%d", c.OrganizationID)
	}
	if len(c.ProgressingStatuses) > 0 {
		b.add("r.progressing_status = ANY($%d)", toStrings(c.ProgressingStatuses))
	}
	if len(c.BillingStatuses) > 0 {
		b.add("r.billing_progressing_status = ANY($%d)", toStrings(c.BillingStatuses))
	}
	if len(c.SettlementStatuses) > 0 {
		b.add("r.settlement_progressing_status = ANY($%d)", toStrings(c.SettlementStatuses))
	}
	return b.where(), b.args
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
