package service

import (
	"context"
	"errors"
	"testing"

	"templeadmin/internal/authz"
	"templeadmin/internal/model"
	"templeadmin/pkg/apperr"

	"github.com/google/uuid"
)

func TestListPending_FIFOWithSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	named := func(name, contact string) SubmitRequestDTO {
		in := ceremony(contact)
		in.RequesterName = name
		return in
	}
	first := f.submit(t, named("Tran Thi B", "0901000001"))
	second := f.submit(t, named("Le Van C", "0901000002"))
	third := f.submit(t, named("Tran Van D", "0901000003"))
	if _, err := f.svc.Reject(ctx, f.admin, second.String(), "dup", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	page, err := f.query.ListPending(ctx, f.admin, ListQuery{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("total = %d, items = %d", page.Total, len(page.Items))
	}
	if page.Items[0].ID != first.String() || page.Items[1].ID != third.String() {
		t.Errorf("order = [%s %s], want oldest first", page.Items[0].ID, page.Items[1].ID)
	}

	page, err = f.query.ListPending(ctx, f.admin, ListQuery{Page: 1, Limit: 10, Search: "VAN d"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != third.String() {
		t.Errorf("search result = %+v", page)
	}

	page, err = f.query.ListPending(ctx, f.admin, ListQuery{Page: 2, Limit: 1})
	if err != nil {
		t.Fatalf("paging: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 || page.Items[0].ID != third.String() {
		t.Errorf("page 2 = %+v", page)
	}

	processed, err := f.query.ListProcessed(ctx, f.admin, ListQuery{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("ListProcessed() error = %v", err)
	}
	if processed.Total != 1 || processed.Items[0].Status != model.StatusRejected {
		t.Errorf("processed = %+v", processed)
	}

	approvedOnly, err := f.query.ListProcessed(ctx, f.admin, ListQuery{Page: 1, Limit: 10, Status: model.StatusApproved})
	if err != nil {
		t.Fatalf("ListProcessed(approved) error = %v", err)
	}
	if approvedOnly.Total != 0 {
		t.Errorf("approved only = %+v", approvedOnly)
	}
	if _, err := f.query.ListProcessed(ctx, f.admin, ListQuery{Status: model.StatusPending}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("pending as processed status: got %v", err)
	}
}

func TestQueries_RequireReadPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := authz.Actor{UserID: uuid.New(), TenantID: f.tenantID, Role: model.RoleMember}

	if _, err := f.query.ListPending(ctx, member, ListQuery{}); !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("ListPending: got %v", err)
	}
	if _, err := f.query.Stats(ctx, member); !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("Stats: got %v", err)
	}
	if _, err := f.query.GetRequest(ctx, member, uuid.NewString()); !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("GetRequest: got %v", err)
	}
}

func TestGetRequest_HistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submit(t, ceremony("0901234567"))
	if _, err := f.svc.Approve(ctx, f.admin, id.String(), "welcome"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	detail, err := f.query.GetRequest(ctx, f.admin, id.String())
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if detail.Status != model.StatusApproved {
		t.Errorf("status = %q", detail.Status)
	}
	if detail.AdminNotes == nil || *detail.AdminNotes != "welcome" {
		t.Errorf("admin notes = %v", detail.AdminNotes)
	}
	if len(detail.Logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(detail.Logs))
	}
	if detail.Logs[0].Action != model.ActionApproved || detail.Logs[1].Action != model.ActionSubmitted {
		t.Errorf("log order = [%s %s], want newest first", detail.Logs[0].Action, detail.Logs[1].Action)
	}
	if detail.Logs[0].PerformedBy == nil || *detail.Logs[0].PerformedBy != f.admin.ID() {
		t.Errorf("approved by = %v", detail.Logs[0].PerformedBy)
	}

	outsider := f.admin
	outsider.TenantID = uuid.New()
	if _, err := f.query.GetRequest(ctx, outsider, id.String()); !errors.Is(err, apperr.ErrPermission) {
		t.Errorf("cross-tenant read: got %v", err)
	}
	if _, err := f.query.GetRequest(ctx, f.admin, uuid.NewString()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id: got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, ceremony("0901234567"))
	b := f.submit(t, ceremony("0907654321"))
	f.submit(t, ceremony("0901111111"))
	if _, err := f.svc.Approve(ctx, f.admin, a.String(), ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, f.tenantID.String(), b.String(), "0907654321", ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := f.query.Stats(ctx, f.admin)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := map[string]int64{
		model.StatusPending:   1,
		model.StatusApproved:  1,
		model.StatusRejected:  0,
		model.StatusCancelled: 1,
	}
	for k, v := range want {
		if stats.ByStatus[k] != v {
			t.Errorf("by_status[%s] = %d, want %d", k, stats.ByStatus[k], v)
		}
	}
	if stats.RecentAction[model.ActionSubmitted] != 3 || stats.RecentAction[model.ActionApproved] != 1 || stats.RecentAction[model.ActionCancelled] != 1 {
		t.Errorf("recent actions = %v", stats.RecentAction)
	}
	if _, ok := stats.RecentAction[model.ActionRejected]; !ok {
		t.Error("recent actions should report zero rejections")
	}
}

func TestListMyRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, ceremony("0901234567"))
	f.submit(t, ceremony("0901234567"))
	f.submit(t, ceremony("0907654321"))

	mine, err := f.query.ListMyRequests(ctx, f.tenantID.String(), "0901234567")
	if err != nil {
		t.Fatalf("ListMyRequests() error = %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("requests = %d, want 2", len(mine))
	}
	for _, r := range mine {
		if r.RequesterContact != "0901234567" {
			t.Errorf("foreign request returned: %+v", r)
		}
	}
	if _, err := f.query.ListMyRequests(ctx, f.tenantID.String(), " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank contact: got %v", err)
	}
}
