package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"templeadmin/internal/model"
	"templeadmin/internal/repository"
	"templeadmin/pkg/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04"
	timeLayout     = "15:04"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// SubmitRequestDTO is the candidate request as received from a submitter.
type SubmitRequestDTO struct {
	ResourceKind  string           `json:"resource_kind" validate:"required"`
	RequesterName string           `json:"requester_name" validate:"max=255"`
	Contact       string           `json:"contact" validate:"required,max=100,contact"`
	FromDate      string           `json:"from_date" validate:"required"`
	ToDate        string           `json:"to_date"`
	Time          string           `json:"time" validate:"omitempty,datetime=15:04"`
	Title         string           `json:"title" validate:"max=255"`
	Details       map[string]any   `json:"details"`
	ReferenceNo   string           `json:"reference_no" validate:"max=100"`
	Quantity      *int             `json:"quantity"`
	Amount        *decimal.Decimal `json:"amount" swaggertype:"string"`
	SubmittedBy   string           `json:"-"` // user id when an authenticated staff member submits
}

// RequestValidator turns a candidate into a pending ApprovableRequest.
// It never checks scheduling conflicts; those are resolved at approval time.
type RequestValidator struct {
	policies *PolicyRegistry
	repo     repository.ApprovalRepository
	validate *validator.Validate
}

func NewRequestValidator(policies *PolicyRegistry, repo repository.ApprovalRepository) *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("contact", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		if strings.Contains(s, "@") {
			return v.Var(s, "email") == nil
		}
		return phonePattern.MatchString(s)
	})
	return &RequestValidator{policies: policies, repo: repo, validate: v}
}

// Validate checks the candidate and builds the request to persist.
func (rv *RequestValidator) Validate(ctx context.Context, tenantID uuid.UUID, in SubmitRequestDTO) (*model.ApprovableRequest, error) {
	in.ResourceKind = strings.TrimSpace(in.ResourceKind)
	in.Contact = strings.TrimSpace(in.Contact)
	in.ReferenceNo = strings.TrimSpace(in.ReferenceNo)
	in.Title = strings.TrimSpace(in.Title)

	var problems []string
	if err := rv.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("failed to validate request: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	policy, ok := rv.policies.Lookup(in.ResourceKind)
	if in.ResourceKind != "" && !ok {
		problems = append(problems, fmt.Sprintf("resource_kind: unknown kind %q (expected one of %s)", in.ResourceKind, strings.Join(rv.policies.Kinds(), ", ")))
	}
	if !ok {
		return nil, invalid(problems)
	}

	window, windowProblems := parseWindow(in, policy)
	problems = append(problems, windowProblems...)

	if in.Title == "" && len(in.Details) == 0 {
		problems = append(problems, "title: at least one descriptive field (title or details) is required")
	}

	switch {
	case policy.Quantity == FieldRequired && in.Quantity == nil:
		problems = append(problems, "quantity: is required")
	case policy.Quantity != FieldIgnored && in.Quantity != nil && *in.Quantity < 1:
		problems = append(problems, "quantity: must be at least 1")
	}

	switch {
	case policy.Amount == FieldRequired && in.Amount == nil:
		problems = append(problems, "amount: is required")
	case policy.Amount != FieldIgnored && in.Amount != nil && !in.Amount.IsPositive():
		problems = append(problems, "amount: must be greater than 0")
	}

	if policy.Reference == FieldRequired && in.ReferenceNo == "" {
		problems = append(problems, "reference_no: is required")
	}

	if len(problems) > 0 {
		return nil, invalid(problems)
	}

	req := &model.ApprovableRequest{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ResourceKind:     policy.Kind,
		RequesterName:    strings.TrimSpace(in.RequesterName),
		RequesterContact: in.Contact,
		FromDate:         window.From,
		ToDate:           window.To,
		SlotTime:         window.Time,
		SlotKey:          policy.SlotKey(window),
		Exclusive:        policy.Conflict.Exclusive(),
		Title:            in.Title,
		Status:           model.StatusPending,
		SubmittedBy:      in.Contact,
	}
	if in.SubmittedBy != "" {
		req.SubmittedBy = in.SubmittedBy
	}
	if len(in.Details) > 0 {
		raw, err := json.Marshal(in.Details)
		if err != nil {
			return nil, apperr.Validation("details: must be a JSON object")
		}
		req.Details = datatypes.JSON(raw)
	}
	if policy.Quantity != FieldIgnored {
		req.Quantity = in.Quantity
	}
	if policy.Amount != FieldIgnored && in.Amount != nil {
		amount := in.Amount.Round(2)
		req.Amount = &amount
	}

	if policy.Reference != FieldIgnored && in.ReferenceNo != "" {
		exists, err := rv.repo.ReferenceExists(ctx, tenantID, in.ReferenceNo)
		if err != nil {
			return nil, fmt.Errorf("failed to check reference number: %w", err)
		}
		if exists {
			return nil, apperr.Duplicate(fmt.Sprintf("reference_no: %q already exists", in.ReferenceNo))
		}
		ref := in.ReferenceNo
		req.ReferenceNo = &ref
	}

	return req, nil
}

// parseWindow accepts from_date as a date or as date-and-time (2024-12-15T18:00).
// to_date defaults to from_date.
func parseWindow(in SubmitRequestDTO, policy ResourcePolicy) (TimeWindow, []string) {
	var problems []string
	var w TimeWindow
	slot := strings.TrimSpace(in.Time)

	fromRaw := strings.TrimSpace(in.FromDate)
	switch {
	case fromRaw == "":
		// reported by the struct validator
	case strings.Contains(fromRaw, "T"):
		ts, err := time.ParseInLocation(dateTimeLayout, fromRaw, time.UTC)
		if err != nil {
			problems = append(problems, "from_date: must be YYYY-MM-DD or YYYY-MM-DDTHH:MM")
			break
		}
		w.From = truncateDay(ts)
		embedded := ts.Format(timeLayout)
		if slot != "" && slot != embedded {
			problems = append(problems, "time: does not match the time given in from_date")
		}
		slot = embedded
	default:
		d, err := time.ParseInLocation(dateLayout, fromRaw, time.UTC)
		if err != nil {
			problems = append(problems, "from_date: must be YYYY-MM-DD or YYYY-MM-DDTHH:MM")
			break
		}
		w.From = d
	}

	toRaw := strings.TrimSpace(in.ToDate)
	if toRaw == "" {
		w.To = w.From
	} else {
		d, err := time.ParseInLocation(dateLayout, toRaw, time.UTC)
		if err != nil {
			problems = append(problems, "to_date: must be YYYY-MM-DD")
		} else {
			w.To = d
		}
	}

	if !w.From.IsZero() && !w.To.IsZero() && w.From.After(w.To) {
		problems = append(problems, "to_date: must not be before from_date")
	}

	switch policy.TimeOfDay {
	case FieldRequired:
		if slot == "" {
			problems = append(problems, "time: is required for "+policy.Kind)
		}
	case FieldIgnored:
		slot = ""
	}
	if slot != "" {
		if _, err := time.Parse(timeLayout, slot); err != nil {
			problems = append(problems, "time: must be HH:MM")
		} else {
			w.Time = &slot
		}
	}

	return w, dedupe(problems)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + ": is required"
	case "contact":
		return fe.Field() + ": must be a 10-digit phone number or an email address"
	case "datetime":
		return fe.Field() + ": must be HH:MM"
	case "max":
		return fe.Field() + ": is too long"
	default:
		return fe.Field() + ": is invalid"
	}
}

func invalid(problems []string) error {
	return apperr.Validation("invalid request: " + strings.Join(dedupe(problems), "; "))
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
