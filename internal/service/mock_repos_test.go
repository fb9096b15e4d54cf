package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"templeadmin/internal/model"
	"templeadmin/internal/repository"
	"templeadmin/pkg/apperr"

	"github.com/google/uuid"
)

// memStore backs every in-memory repository so the fake transaction manager
// can snapshot and restore all of them together.
type memStore struct {
	mu          sync.Mutex
	requests    map[uuid.UUID]model.ApprovableRequest
	logs        []model.ApprovalLog
	users       map[uuid.UUID]model.User
	tenants     map[uuid.UUID]model.Tenant
	permissions map[string]model.Permission
	grants      map[uuid.UUID]map[string]model.PermissionGrant

	failAppend error
	lockCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		requests:    make(map[uuid.UUID]model.ApprovableRequest),
		users:       make(map[uuid.UUID]model.User),
		tenants:     make(map[uuid.UUID]model.Tenant),
		permissions: make(map[string]model.Permission),
		grants:      make(map[uuid.UUID]map[string]model.PermissionGrant),
	}
}

type memSnapshot struct {
	requests map[uuid.UUID]model.ApprovableRequest
	logs     []model.ApprovalLog
	grants   map[uuid.UUID]map[string]model.PermissionGrant
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		requests: make(map[uuid.UUID]model.ApprovableRequest, len(s.requests)),
		logs:     append([]model.ApprovalLog(nil), s.logs...),
		grants:   make(map[uuid.UUID]map[string]model.PermissionGrant, len(s.grants)),
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	for u, m := range s.grants {
		cp := make(map[string]model.PermissionGrant, len(m))
		for k, v := range m {
			cp[k] = v
		}
		snap.grants[u] = cp
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = snap.requests
	s.logs = snap.logs
	s.grants = snap.grants
}

func (s *memStore) repository() *repository.Repository {
	return &repository.Repository{
		Approval: &mockApprovalRepo{s: s},
		Audit:    &mockAuditRepo{s: s},
		Grant:    &mockGrantRepo{s: s},
		User:     &mockUserRepo{s: s},
		Locker:   &mockLocker{s: s},
		Tx:       &mockTxManager{s: s},
	}
}

func (s *memStore) logsFor(id uuid.UUID) []model.ApprovalLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ApprovalLog
	for _, l := range s.logs {
		if l.RequestID == id {
			out = append(out, l)
		}
	}
	return out
}

func (s *memStore) request(id uuid.UUID) model.ApprovableRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

// --- Tx ---

// mockTxManager serializes transactions and rolls the store back on error.
type mockTxManager struct {
	s  *memStore
	mu sync.Mutex
}

func (m *mockTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.s.snapshot()
	if err := fn(ctx); err != nil {
		m.s.restore(snap)
		return err
	}
	return nil
}

type mockLocker struct{ s *memStore }

func (l *mockLocker) LockSlot(context.Context, string, string) error {
	l.s.mu.Lock()
	l.s.lockCalls++
	l.s.mu.Unlock()
	return nil
}

// --- Approval ---

type mockApprovalRepo struct{ s *memStore }

func (r *mockApprovalRepo) Create(_ context.Context, req *model.ApprovableRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if req.ReferenceNo != nil {
		for _, existing := range r.s.requests {
			if existing.TenantID == req.TenantID && existing.ReferenceNo != nil && *existing.ReferenceNo == *req.ReferenceNo {
				return apperr.Duplicate("reference number already exists")
			}
		}
	}
	cp := *req
	cp.UpdatedAt = cp.SubmittedAt
	r.s.requests[req.ID] = cp
	return nil
}

func (r *mockApprovalRepo) FindByID(_ context.Context, id uuid.UUID) (*model.ApprovableRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, apperr.NotFound("approval request not found")
	}
	return &req, nil
}

func (r *mockApprovalRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovableRequest, error) {
	return r.FindByID(ctx, id)
}

func (r *mockApprovalRepo) Update(_ context.Context, req *model.ApprovableRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[req.ID]; !ok {
		return apperr.NotFound("approval request not found")
	}
	cp := *req
	cp.UpdatedAt = time.Now()
	r.s.requests[req.ID] = cp
	return nil
}

func (r *mockApprovalRepo) ReferenceExists(_ context.Context, tenantID uuid.UUID, ref string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.TenantID == tenantID && req.ReferenceNo != nil && *req.ReferenceNo == ref {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockApprovalRepo) HasApprovedOverlap(_ context.Context, q repository.OverlapQuery) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.ID == q.ExcludeID || req.TenantID != q.TenantID || req.ResourceKind != q.ResourceKind {
			continue
		}
		if req.Status != model.StatusApproved {
			continue
		}
		if req.FromDate.After(q.To) || q.From.After(req.ToDate) {
			continue
		}
		if q.SlotTime != nil && (req.SlotTime == nil || *req.SlotTime != *q.SlotTime) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (r *mockApprovalRepo) List(_ context.Context, f repository.RequestFilter) ([]model.ApprovableRequest, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ApprovableRequest
	for _, req := range r.s.requests {
		if req.TenantID != f.TenantID {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, req.Status) {
			continue
		}
		if f.Contact != "" && req.RequesterContact != f.Contact {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			ref := ""
			if req.ReferenceNo != nil {
				ref = *req.ReferenceNo
			}
			hay := strings.ToLower(req.RequesterName + "\x00" + req.RequesterContact + "\x00" + ref)
			if !strings.Contains(hay, needle) {
				continue
			}
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.OldestFirst {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	total := int64(len(out))
	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.Limit
		if start > len(out) {
			start = len(out)
		}
		end := start + f.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (r *mockApprovalRepo) CountByStatus(_ context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[string]int64)
	for _, req := range r.s.requests {
		if req.TenantID == tenantID {
			counts[req.Status]++
		}
	}
	return counts, nil
}

// --- Audit ---

type mockAuditRepo struct{ s *memStore }

func (r *mockAuditRepo) Append(_ context.Context, entry *model.ApprovalLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failAppend != nil {
		return r.s.failAppend
	}
	r.s.logs = append(r.s.logs, *entry)
	return nil
}

func (r *mockAuditRepo) ListByRequest(_ context.Context, requestID uuid.UUID) ([]model.ApprovalLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ApprovalLog
	// appended order is chronological; return newest first
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		if r.s.logs[i].RequestID == requestID {
			out = append(out, r.s.logs[i])
		}
	}
	return out, nil
}

func (r *mockAuditRepo) CountActionsSince(_ context.Context, tenantID uuid.UUID, since time.Time) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[string]int64)
	for _, l := range r.s.logs {
		if l.TenantID == tenantID && !l.PerformedAt.Before(since) {
			counts[l.Action]++
		}
	}
	return counts, nil
}

// --- Grants ---

type mockGrantRepo struct{ s *memStore }

func (r *mockGrantRepo) ListPermissions(context.Context) ([]model.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Permission, 0, len(r.s.permissions))
	for _, p := range r.s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mockGrantRepo) UpsertPermission(_ context.Context, perm *model.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.permissions[perm.ID] = *perm
	return nil
}

func (r *mockGrantRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.PermissionGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.PermissionGrant, 0)
	for _, g := range r.s.grants[userID] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionID < out[j].PermissionID })
	return out, nil
}

func (r *mockGrantRepo) Upsert(_ context.Context, g *model.PermissionGrant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.grants[g.UserID] == nil {
		r.s.grants[g.UserID] = make(map[string]model.PermissionGrant)
	}
	r.s.grants[g.UserID][g.PermissionID] = *g
	return nil
}

func (r *mockGrantRepo) Delete(_ context.Context, userID uuid.UUID, permissionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.grants[userID], permissionID)
	return nil
}

// --- Users ---

type mockUserRepo struct{ s *memStore }

func (r *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

func (r *mockUserRepo) GetTenant(_ context.Context, id uuid.UUID) (*model.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, apperr.NotFound("temple not found")
	}
	return &t, nil
}

// --- Notifier ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []ApprovalEvent
}

func (n *recordingNotifier) Publish(e ApprovalEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

var errBoom = errors.New("boom")
