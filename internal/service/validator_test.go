package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"templeadmin/internal/model"
	"templeadmin/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func newTestValidator() (*RequestValidator, *memStore) {
	store := newMemStore()
	repo := store.repository()
	return NewRequestValidator(DefaultPolicies(repo.Approval), repo.Approval), store
}

func TestValidate_Valid(t *testing.T) {
	v, _ := newTestValidator()
	qty := 3
	tests := []struct {
		name string
		in   SubmitRequestDTO
		time string
	}{
		{
			name: "ceremony with embedded time",
			in:   SubmitRequestDTO{ResourceKind: model.KindCeremonySlot, Contact: "0901234567", FromDate: "2024-12-15T18:00", Title: "Le"},
			time: "18:00",
		},
		{
			name: "ceremony with separate time",
			in:   SubmitRequestDTO{ResourceKind: model.KindCeremonySlot, Contact: "a@b.vn", FromDate: "2024-12-15", Time: "06:30", Details: map[string]any{"monk": 3}},
			time: "06:30",
		},
		{
			name: "hall range",
			in:   SubmitRequestDTO{ResourceKind: model.KindHallBooking, Contact: "0901234567", FromDate: "2024-12-15", ToDate: "2024-12-17", Title: "Hall"},
		},
		{
			name: "food service",
			in:   SubmitRequestDTO{ResourceKind: model.KindFoodService, Contact: "0901234567", FromDate: "2024-12-15", Title: "Com", Quantity: &qty},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := v.Validate(context.Background(), uuid.New(), tt.in)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if req.Status != model.StatusPending {
				t.Errorf("status = %q", req.Status)
			}
			if req.FromDate.After(req.ToDate) {
				t.Errorf("from %v after to %v", req.FromDate, req.ToDate)
			}
			if tt.time != "" && (req.SlotTime == nil || *req.SlotTime != tt.time) {
				t.Errorf("slot time = %v, want %s", req.SlotTime, tt.time)
			}
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	v, _ := newTestValidator()
	zero := 0
	negative := mustDecimal(t, "-1")
	base := func() SubmitRequestDTO {
		return SubmitRequestDTO{ResourceKind: model.KindCeremonySlot, Contact: "0901234567", FromDate: "2024-12-15T18:00", Title: "Le"}
	}

	tests := []struct {
		name   string
		mutate func(*SubmitRequestDTO)
		want   string
	}{
		{"missing contact", func(in *SubmitRequestDTO) { in.Contact = "" }, "contact"},
		{"short phone", func(in *SubmitRequestDTO) { in.Contact = "090123" }, "contact"},
		{"letters in phone", func(in *SubmitRequestDTO) { in.Contact = "09012345ab" }, "contact"},
		{"bad email", func(in *SubmitRequestDTO) { in.Contact = "a@" }, "contact"},
		{"overlong email", func(in *SubmitRequestDTO) { in.Contact = strings.Repeat("a", 95) + "@x.org" }, "too long"},
		{"unknown kind", func(in *SubmitRequestDTO) { in.ResourceKind = "parking" }, "unknown kind"},
		{"missing kind", func(in *SubmitRequestDTO) { in.ResourceKind = "" }, "resource_kind"},
		{"missing from", func(in *SubmitRequestDTO) { in.FromDate = "" }, "from_date"},
		{"bad from", func(in *SubmitRequestDTO) { in.FromDate = "15/12/2024" }, "from_date"},
		{"to before from", func(in *SubmitRequestDTO) { in.ToDate = "2024-12-14" }, "to_date"},
		{"ceremony without time", func(in *SubmitRequestDTO) { in.FromDate = "2024-12-15" }, "time"},
		{"conflicting times", func(in *SubmitRequestDTO) { in.Time = "09:00" }, "time"},
		{"no descriptive field", func(in *SubmitRequestDTO) { in.Title = "" }, "descriptive"},
		{"food without quantity", func(in *SubmitRequestDTO) {
			in.ResourceKind = model.KindFoodService
		}, "quantity"},
		{"zero quantity", func(in *SubmitRequestDTO) {
			in.ResourceKind = model.KindFoodService
			in.Quantity = &zero
		}, "at least 1"},
		{"donation without reference", func(in *SubmitRequestDTO) {
			one := 1
			amount := mustDecimal(t, "10")
			in.ResourceKind = model.KindDonationItem
			in.Quantity = &one
			in.Amount = &amount
		}, "reference_no"},
		{"negative amount", func(in *SubmitRequestDTO) {
			one := 1
			in.ResourceKind = model.KindDonationItem
			in.ReferenceNo = "R1"
			in.Quantity = &one
			in.Amount = &negative
		}, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			_, err := v.Validate(context.Background(), uuid.New(), in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_LongEmailContactFitsColumn(t *testing.T) {
	v, _ := newTestValidator()
	contact := "lakshmi.narayanan@templemail.org"
	in := SubmitRequestDTO{ResourceKind: model.KindHallBooking, Contact: contact, FromDate: "2024-12-15", Title: "Hall"}

	req, err := v.Validate(context.Background(), uuid.New(), in)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if req.RequesterContact != contact || req.SubmittedBy != contact {
		t.Errorf("contact = %q, submittedBy = %q", req.RequesterContact, req.SubmittedBy)
	}

	field, ok := reflect.TypeOf(model.ApprovableRequest{}).FieldByName("RequesterContact")
	if !ok {
		t.Fatal("RequesterContact field missing")
	}
	if tag := field.Tag.Get("gorm"); !strings.Contains(tag, "varchar(100)") {
		t.Errorf("requester_contact column = %q, want varchar(100) to match the validate tag", tag)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	v, _ := newTestValidator()
	_, err := v.Validate(context.Background(), uuid.New(), SubmitRequestDTO{
		ResourceKind: model.KindHallBooking,
		Contact:      "123",
		FromDate:     "2024-12-15",
		ToDate:       "2024-12-01",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"contact", "to_date", "descriptive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}

func TestValidate_DuplicateReferenceScopedToTenant(t *testing.T) {
	v, store := newTestValidator()
	tenantA, tenantB := uuid.New(), uuid.New()
	ref := "RC-9"
	store.requests[uuid.New()] = model.ApprovableRequest{TenantID: tenantA, ReferenceNo: &ref, Status: model.StatusRejected}

	one := 1
	amount := mustDecimal(t, "100000")
	in := SubmitRequestDTO{
		ResourceKind: model.KindDonationItem,
		Contact:      "0901234567",
		FromDate:     "2024-12-15",
		Title:        "Oil",
		ReferenceNo:  ref,
		Quantity:     &one,
		Amount:       &amount,
	}

	_, err := v.Validate(context.Background(), tenantA, in)
	if !errors.Is(err, apperr.ErrConflict) || !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("same tenant: expected duplicate error, got %v", err)
	}
	req, err := v.Validate(context.Background(), tenantB, in)
	if err != nil {
		t.Fatalf("other tenant: %v", err)
	}
	if req.Amount == nil || req.Amount.StringFixed(2) != "100000.00" {
		t.Errorf("amount = %v", req.Amount)
	}
}

func TestValidate_HallIgnoresTimeInSlotKey(t *testing.T) {
	v, _ := newTestValidator()
	req, err := v.Validate(context.Background(), uuid.New(), SubmitRequestDTO{
		ResourceKind: model.KindHallBooking,
		Contact:      "0901234567",
		FromDate:     "2024-12-15",
		Time:         "08:00",
		Title:        "Hall",
	})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if req.SlotKey != "" || !req.Exclusive {
		t.Errorf("slot key = %q, exclusive = %v", req.SlotKey, req.Exclusive)
	}
}
