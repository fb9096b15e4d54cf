package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"templeadmin/internal/model"
	"templeadmin/internal/repository"

	"github.com/google/uuid"
)

// TimeWindow is the (fromDate, toDate[, time]) interval a request claims.
type TimeWindow struct {
	From time.Time
	To   time.Time
	Time *string // HH:MM, nil when the kind has no time-of-day
}

// Overlaps reports closed-interval overlap of the date ranges.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return !w.From.After(o.To) && !o.From.After(w.To)
}

// ConflictPredicate decides whether a window collides with an already
// approved request of the same tenant and resource kind.
type ConflictPredicate interface {
	HasConflict(ctx context.Context, tenantID uuid.UUID, kind string, window TimeWindow, excludingID uuid.UUID) (bool, error)
	// Exclusive is false for kinds that never conflict.
	Exclusive() bool
}

// NoConflict is the predicate of non-exclusive kinds such as donations.
type NoConflict struct{}

func (NoConflict) HasConflict(context.Context, uuid.UUID, string, TimeWindow, uuid.UUID) (bool, error) {
	return false, nil
}

func (NoConflict) Exclusive() bool { return false }

// WindowConflict looks for approved requests whose date range overlaps the
// window. With MatchTime set, only requests at the same time-of-day collide.
type WindowConflict struct {
	Repo      repository.ApprovalRepository
	MatchTime bool
}

func (c WindowConflict) HasConflict(ctx context.Context, tenantID uuid.UUID, kind string, window TimeWindow, excludingID uuid.UUID) (bool, error) {
	q := repository.OverlapQuery{
		TenantID:     tenantID,
		ResourceKind: kind,
		From:         window.From,
		To:           window.To,
		ExcludeID:    excludingID,
	}
	if c.MatchTime {
		q.SlotTime = window.Time
	}
	return c.Repo.HasApprovedOverlap(ctx, q)
}

func (WindowConflict) Exclusive() bool { return true }

// FieldRule says whether an optional input is required, allowed or ignored for a kind.
type FieldRule int

const (
	FieldIgnored FieldRule = iota
	FieldOptional
	FieldRequired
)

// ResourcePolicy declares everything kind-specific about a request.
type ResourcePolicy struct {
	Kind      string
	TimeOfDay FieldRule
	Reference FieldRule
	Quantity  FieldRule
	Amount    FieldRule
	Conflict  ConflictPredicate
}

// SlotKey is the time-of-day component of the storage exclusion constraint.
func (p ResourcePolicy) SlotKey(window TimeWindow) string {
	if wc, ok := p.Conflict.(WindowConflict); ok && wc.MatchTime && window.Time != nil {
		return *window.Time
	}
	return ""
}

// PolicyRegistry maps resource kinds to their policies.
type PolicyRegistry struct {
	policies map[string]ResourcePolicy
}

func NewPolicyRegistry(policies ...ResourcePolicy) *PolicyRegistry {
	r := &PolicyRegistry{policies: make(map[string]ResourcePolicy, len(policies))}
	for _, p := range policies {
		if p.Conflict == nil {
			p.Conflict = NoConflict{}
		}
		r.policies[p.Kind] = p
	}
	return r
}

// DefaultPolicies registers the temple's built-in resource kinds.
// Ceremony slots are booked per date and time; halls per date range.
// Food service and donations are not exclusive resources.
func DefaultPolicies(repo repository.ApprovalRepository) *PolicyRegistry {
	return NewPolicyRegistry(
		ResourcePolicy{
			Kind:      model.KindCeremonySlot,
			TimeOfDay: FieldRequired,
			Conflict:  WindowConflict{Repo: repo, MatchTime: true},
		},
		ResourcePolicy{
			Kind:      model.KindHallBooking,
			TimeOfDay: FieldOptional,
			Conflict:  WindowConflict{Repo: repo},
		},
		ResourcePolicy{
			Kind:      model.KindFoodService,
			TimeOfDay: FieldOptional,
			Quantity:  FieldRequired,
			Conflict:  NoConflict{},
		},
		ResourcePolicy{
			Kind:      model.KindDonationItem,
			Reference: FieldRequired,
			Quantity:  FieldRequired,
			Amount:    FieldRequired,
			Conflict:  NoConflict{},
		},
	)
}

func (r *PolicyRegistry) Lookup(kind string) (ResourcePolicy, bool) {
	p, ok := r.policies[kind]
	return p, ok
}

func (r *PolicyRegistry) Kinds() []string {
	kinds := make([]string, 0, len(r.policies))
	for k := range r.policies {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ConflictDetector answers hasConflict for any registered kind.
type ConflictDetector struct {
	policies *PolicyRegistry
}

func NewConflictDetector(policies *PolicyRegistry) *ConflictDetector {
	return &ConflictDetector{policies: policies}
}

func (d *ConflictDetector) HasConflict(ctx context.Context, tenantID uuid.UUID, kind string, window TimeWindow, excludingID uuid.UUID) (bool, error) {
	p, ok := d.policies.Lookup(kind)
	if !ok {
		return false, fmt.Errorf("no policy for resource kind %q", kind)
	}
	return p.Conflict.HasConflict(ctx, tenantID, kind, window, excludingID)
}

func windowOf(req *model.ApprovableRequest) TimeWindow {
	return TimeWindow{From: req.FromDate, To: req.ToDate, Time: req.SlotTime}
}
