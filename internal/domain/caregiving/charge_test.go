package caregiving

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func testChargeRoundInfo(t *testing.T) ChargeRoundInfo {
	return ChargeRoundInfo{
		RoundID:               uuid.New(),
		RoundNumber:           1,
		StartDateTime:         mustTime(t, "2023-03-06T14:30"),
		EndDateTime:           mustTime(t, "2023-03-11T16:30"),
		DailyCaregivingCharge: 150000,
		ReceptionID:           testReceptionInfo().ReceptionID,
	}
}

func TestCaregivingDays(t *testing.T) {
	cases := []struct {
		start, end string
		want       int
	}{
		{"2023-03-06T14:30", "2023-03-11T16:30", 5},
		{"2023-03-06T14:00", "2023-03-11T00:00", 4},
		{"2023-03-06T14:00", "2023-03-11T01:00", 5},
		{"2023-03-06T14:00", "2023-03-07T00:59", 0},
		{"2023-03-06T14:00", "2023-03-07T01:00", 1},
		{"2023-03-06T14:00", "2023-03-06T20:00", 0},
		{"2023-03-06T14:00", "2023-03-06T14:00", 0},
	}
	for _, tc := range cases {
		t.Run(tc.start+"_"+tc.end, func(t *testing.T) {
			if got := CaregivingDays(mustTime(t, tc.start), mustTime(t, tc.end)); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestNewCaregivingCharge_Amounts(t *testing.T) {
	edit := ChargeEdit{
		Items: ChargeItems{
			AdditionalHoursCharge: 10000,
			MealCost:              5000,
			TransportationFee:     3000,
			OutstandingAmount:     -20000,
		},
		AdditionalCharges: []AdditionalCharge{{Name: "laundry", Amount: 7000}, {Name: "discount", Amount: -1000}},
	}
	c, err := NewCaregivingCharge(testChargeRoundInfo(t), edit, testOrgID, userActor(mustTime(t, "2023-03-12T09:00")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.BasicAmount() != 750000 {
		t.Errorf("expected basic 750000, got %d", c.BasicAmount())
	}
	if c.AdditionalAmount() != 4000 {
		t.Errorf("expected additional 4000, got %d", c.AdditionalAmount())
	}
	if c.TotalAmount() != c.BasicAmount()+c.AdditionalAmount() {
		t.Errorf("total %d is not basic + additional", c.TotalAmount())
	}
	if c.ConfirmStatus() != ConfirmNotStarted {
		t.Errorf("expected NOT_STARTED, got %s", c.ConfirmStatus())
	}

	evs := c.PullEvents()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	calc, ok := evs[0].(CaregivingChargeCalculated)
	if !ok || calc.TotalAmount != 754000 {
		t.Errorf("unexpected calculated event: %+v", evs[0])
	}
}

func TestNewCaregivingCharge_DuplicateNames(t *testing.T) {
	edit := ChargeEdit{
		AdditionalCharges: []AdditionalCharge{
			{Name: "laundry", Amount: 1},
			{Name: "meal", Amount: 2},
			{Name: "laundry", Amount: 3},
			{Name: "taxi", Amount: 4},
			{Name: "meal", Amount: 5},
			{Name: "laundry", Amount: 6},
		},
		ConfirmStatus: "BOGUS",
	}
	_, err := NewCaregivingCharge(testChargeRoundInfo(t), edit, testOrgID, userActor(mustTime(t, "2023-03-12T09:00")))
	var dup *DuplicateAdditionalChargeNamesError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateAdditionalChargeNamesError, got %v", err)
	}
	if want := []string{"laundry", "meal"}; !reflect.DeepEqual(dup.Names, want) {
		t.Errorf("expected %v, got %v", want, dup.Names)
	}
}

func TestCaregivingCharge_Edit(t *testing.T) {
	c, err := NewCaregivingCharge(testChargeRoundInfo(t), ChargeEdit{}, testOrgID, userActor(mustTime(t, "2023-03-12T09:00")))
	if err != nil {
		t.Fatal(err)
	}
	c.PullEvents()

	edit := ChargeEdit{
		Items:                ChargeItems{HolidayCharge: 30000},
		AdditionalCharges:    []AdditionalCharge{{Name: "b", Amount: 2}, {Name: "a", Amount: 1}},
		IsCancelAfterArrived: true,
	}
	if err := c.Edit(edit, userActor(mustTime(t, "2023-03-13T09:00"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AdditionalAmount() != 30003 || c.TotalAmount() != 780003 {
		t.Errorf("unexpected amounts: additional %d total %d", c.AdditionalAmount(), c.TotalAmount())
	}
	if got := c.AdditionalCharges(); got[0].Name != "b" || got[1].Name != "a" {
		t.Errorf("entry order not kept: %v", got)
	}

	evs := c.PullEvents()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	mod := evs[0].(CaregivingChargeModified)
	if !mod.Items.HasChanged() || !mod.AdditionalCharges.HasChanged() || !mod.IsCancelAfterArrived.HasChanged() {
		t.Errorf("expected item, additional charge and flag diffs: %+v", mod)
	}
	if mod.ConfirmStatus.HasChanged() {
		t.Error("confirm status did not change")
	}
	if mod.TotalAmount.Previous != 750000 || mod.TotalAmount.Current != 780003 {
		t.Errorf("unexpected total diff: %+v", mod.TotalAmount)
	}

	if err := c.Edit(edit, userActor(mustTime(t, "2023-03-13T10:00"))); err != nil {
		t.Fatal(err)
	}
	if evs := c.PullEvents(); len(evs) != 0 {
		t.Errorf("identical edit raised %d events", len(evs))
	}
}

func TestCaregivingCharge_EditDuplicateNamesLeavesChargeUntouched(t *testing.T) {
	c, err := NewCaregivingCharge(testChargeRoundInfo(t), ChargeEdit{}, testOrgID, userActor(mustTime(t, "2023-03-12T09:00")))
	if err != nil {
		t.Fatal(err)
	}
	c.PullEvents()

	err = c.Edit(ChargeEdit{
		Items:             ChargeItems{MealCost: 1},
		AdditionalCharges: []AdditionalCharge{{Name: "x"}, {Name: "x"}},
	}, userActor(mustTime(t, "2023-03-13T09:00")))
	var dup *DuplicateAdditionalChargeNamesError
	if !errors.As(err, &dup) || !reflect.DeepEqual(dup.Names, []string{"x"}) {
		t.Fatalf("expected duplicate error for x, got %v", err)
	}
	if c.Items().MealCost != 0 || len(c.PullEvents()) != 0 {
		t.Error("failed edit changed the charge")
	}
}

func TestCaregivingCharge_ConfirmOnce(t *testing.T) {
	c, err := NewCaregivingCharge(testChargeRoundInfo(t), ChargeEdit{}, testOrgID, userActor(mustTime(t, "2023-03-12T09:00")))
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Edit(ChargeEdit{ConfirmStatus: ConfirmConfirmed}, userActor(mustTime(t, "2023-03-13T09:00"))); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if c.ConfirmStatus() != ConfirmConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", c.ConfirmStatus())
	}

	err = c.Edit(ChargeEdit{ConfirmStatus: ConfirmConfirmed}, userActor(mustTime(t, "2023-03-14T09:00")))
	var denied *ChargeEditingDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected ChargeEditingDeniedError, got %v", err)
	}
	if denied.ConfirmStatus != ConfirmConfirmed || denied.RoundID != c.RoundInfo().RoundID {
		t.Errorf("unexpected error payload: %+v", denied)
	}
}

func TestConfirmStatus_Transition(t *testing.T) {
	cases := []struct {
		from, to ConfirmStatus
		want     ConfirmStatus
		wantErr  bool
	}{
		{ConfirmNotStarted, "", ConfirmNotStarted, false},
		{ConfirmNotStarted, ConfirmNotStarted, ConfirmNotStarted, false},
		{ConfirmNotStarted, ConfirmConfirmed, ConfirmConfirmed, false},
		{ConfirmConfirmed, ConfirmNotStarted, ConfirmConfirmed, true},
		{ConfirmNotStarted, "BOGUS", ConfirmNotStarted, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			got, err := tc.from.transitionTo(tc.to)
			if tc.wantErr {
				var invalid *InvalidConfirmStatusTransitionError
				if !errors.As(err, &invalid) || invalid.From != tc.from || invalid.To != tc.to {
					t.Fatalf("expected InvalidConfirmStatusTransitionError, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Errorf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestCaregivingCharge_HandleReceptionModified(t *testing.T) {
	c, err := NewCaregivingCharge(testChargeRoundInfo(t), ChargeEdit{}, testOrgID, userActor(mustTime(t, "2023-03-12T09:00")))
	if err != nil {
		t.Fatal(err)
	}
	c.HandleReceptionModified(ReceptionModified{})
	if c.ManagingOrganizationID() != testOrgID {
		t.Error("manager dropped when event carries none")
	}
	other := uuid.New()
	c.HandleReceptionModified(ReceptionModified{CaregivingManagerInfo: &CaregivingManagerInfo{OrganizationID: other}})
	if c.ManagingOrganizationID() != other {
		t.Errorf("expected %s, got %s", other, c.ManagingOrganizationID())
	}
}
