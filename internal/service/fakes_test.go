package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memStore is an in-memory database shared by the fake repositories. RunInTx
// serialises transactions and restores a snapshot when fn fails.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users     map[uuid.UUID]model.User
	products  map[uuid.UUID]model.Product
	orders    map[uuid.UUID]model.Order
	approvals map[uuid.UUID]model.ApprovalRequest
	movements []model.StockMovement
	audits    []model.AuditLog
	reports   []model.ReconciliationReport

	// beforeTransition runs inside TransitionStatus before the pending check.
	beforeTransition func(id uuid.UUID)

	// hideLockLookups makes FindPendingByLockKey miss so only the unique index catches duplicates.
	hideLockLookups bool
	clock           time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uuid.UUID]model.User{},
		products:  map[uuid.UUID]model.Product{},
		orders:    map[uuid.UUID]model.Order{},
		approvals: map[uuid.UUID]model.ApprovalRequest{},
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type memSnapshot struct {
	products  map[uuid.UUID]model.Product
	orders    map[uuid.UUID]model.Order
	approvals map[uuid.UUID]model.ApprovalRequest
	movements []model.StockMovement
	audits    []model.AuditLog
	reports   []model.ReconciliationReport
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		products:  make(map[uuid.UUID]model.Product, len(s.products)),
		orders:    make(map[uuid.UUID]model.Order, len(s.orders)),
		approvals: make(map[uuid.UUID]model.ApprovalRequest, len(s.approvals)),
		movements: append([]model.StockMovement(nil), s.movements...),
		audits:    append([]model.AuditLog(nil), s.audits...),
		reports:   append([]model.ReconciliationReport(nil), s.reports...),
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]model.OrderItem(nil), v.Items...)
		snap.orders[k] = v
	}
	for k, v := range s.approvals {
		snap.approvals[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.orders = snap.orders
	s.approvals = snap.approvals
	s.movements = snap.movements
	s.audits = snap.audits
	s.reports = snap.reports
}

// --- TransactionManager ---

type fakeTxManager struct{ store *memStore }

func (f fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	f.store.txMu.Lock()
	defer f.store.txMu.Unlock()

	snap := f.store.snapshot()
	if err := fn(ctx); err != nil {
		f.store.restore(snap)
		return err
	}
	return nil
}

// --- ProductRepository ---

type fakeProductRepo struct{ store *memStore }

func (r fakeProductRepo) Create(_ context.Context, p *model.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.products {
		if existing.Slug == p.Slug {
			return gorm.ErrDuplicatedKey
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = r.store.tick()
	p.UpdatedAt = p.CreatedAt
	r.store.products[p.ID] = *p
	return nil
}

func (r fakeProductRepo) Update(_ context.Context, p *model.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, existing := range r.store.products {
		if id != p.ID && existing.Slug == p.Slug {
			return gorm.ErrDuplicatedKey
		}
	}
	r.store.products[p.ID] = *p
	return nil
}

func (r fakeProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.products, id)
	return nil
}

func (r fakeProductRepo) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.products[id]
	if !ok {
		return nil
	}
	p.IsDeleted = true
	p.IsPublished = false
	p.DeletedAt = &at
	r.store.products[id] = p
	return nil
}

func (r fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r fakeProductRepo) FindBySlug(_ context.Context, slug string) (*model.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.products {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeProductRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.FindByID(ctx, id)
}

func (r fakeProductRepo) List(_ context.Context, filter repository.ProductFilter) ([]model.Product, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.Product
	for _, p := range r.store.products {
		if !filter.IncludeHidden && (!p.IsPublished || p.IsDeleted) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r fakeProductRepo) ListAll(_ context.Context) ([]model.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]model.Product, 0, len(r.store.products))
	for _, p := range r.store.products {
		out = append(out, p)
	}
	return out, nil
}

func (r fakeProductRepo) UpdateStock(_ context.Context, id uuid.UUID, stock int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.CountInStock = stock
	r.store.products[id] = p
	return nil
}

// --- OrderRepository ---

type fakeOrderRepo struct{ store *memStore }

func (r fakeOrderRepo) Create(_ context.Context, o *model.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = r.store.tick()
	stored := *o
	stored.Items = nil
	r.store.orders[o.ID] = stored
	return nil
}

func (r fakeOrderRepo) CreateItem(_ context.Context, item *model.OrderItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[item.OrderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	o.Items = append(o.Items, *item)
	r.store.orders[o.ID] = o
	return nil
}

func (r fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o.Items = append([]model.OrderItem(nil), o.Items...)
	return &o, nil
}

func (r fakeOrderRepo) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	o, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if u, ok := r.store.users[o.UserID]; ok {
		o.User = &u
	}
	return o, nil
}

func (r fakeOrderRepo) MarkPaid(_ context.Context, id uuid.UUID, paymentRef string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok || o.IsPaid {
		return appErrors.Clone(appErrors.ErrConflict, "order is already paid")
	}
	o.IsPaid = true
	o.PaidAt = &at
	if paymentRef != "" {
		o.PaymentRef = paymentRef
	}
	r.store.orders[id] = o
	return nil
}

func (r fakeOrderRepo) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok || !o.IsPaid || o.IsDelivered {
		return appErrors.Clone(appErrors.ErrConflict, "order is not awaiting delivery")
	}
	o.IsDelivered = true
	o.DeliveredAt = &at
	r.store.orders[id] = o
	return nil
}

func (r fakeOrderRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.orders, id)
	return nil
}

func (r fakeOrderRepo) List(_ context.Context, filter repository.OrderFilter) ([]model.Order, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.Order
	for _, o := range r.store.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

// --- ApprovalRepository ---

type fakeApprovalRepo struct{ store *memStore }

func (r fakeApprovalRepo) Create(_ context.Context, a *model.ApprovalRequest) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.approvals {
		if existing.Status == model.ApprovalPending && existing.LockKey == a.LockKey {
			return gorm.ErrDuplicatedKey
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = r.store.tick()
	r.store.approvals[a.ID] = *a
	return nil
}

func (r fakeApprovalRepo) FindByID(_ context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.approvals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (r fakeApprovalRepo) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	a, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if u, ok := r.store.users[a.RequestedBy]; ok {
		a.Requester = &u
	}
	if a.ReviewedBy != nil {
		if u, ok := r.store.users[*a.ReviewedBy]; ok {
			a.Reviewer = &u
		}
	}
	return a, nil
}

func (r fakeApprovalRepo) FindPendingByLockKey(_ context.Context, lockKey string) (*model.ApprovalRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.hideLockLookups {
		return nil, gorm.ErrRecordNotFound
	}
	for _, a := range r.store.approvals {
		if a.Status == model.ApprovalPending && a.LockKey == lockKey {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeApprovalRepo) ListPendingByTargets(_ context.Context, targetIDs []uuid.UUID) ([]model.ApprovalRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(targetIDs))
	for _, id := range targetIDs {
		wanted[id] = true
	}
	var out []model.ApprovalRequest
	for _, a := range r.store.approvals {
		if a.Status == model.ApprovalPending && a.TargetID != nil && wanted[*a.TargetID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r fakeApprovalRepo) List(_ context.Context, filter repository.ApprovalFilter) ([]model.ApprovalRequest, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.ApprovalRequest
	for _, a := range r.store.approvals {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.RequestedBy != nil && a.RequestedBy != *filter.RequestedBy {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r fakeApprovalRepo) TransitionStatus(_ context.Context, id uuid.UUID, status string, reviewerID uuid.UUID, note string, at time.Time) error {
	if r.store.beforeTransition != nil {
		r.store.beforeTransition(id)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.approvals[id]
	if !ok || a.Status != model.ApprovalPending {
		return appErrors.ErrAlreadyResolved
	}
	a.Status = status
	a.ReviewedBy = &reviewerID
	a.ReviewedAt = &at
	a.Note = note
	r.store.approvals[id] = a
	return nil
}

// --- StockMovementRepository ---

type fakeMovementRepo struct{ store *memStore }

func (r fakeMovementRepo) Create(_ context.Context, m *model.StockMovement) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = r.store.tick()
	r.store.movements = append(r.store.movements, *m)
	return nil
}

func (r fakeMovementRepo) List(_ context.Context, filter repository.MovementFilter) ([]model.StockMovement, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.StockMovement
	for i := len(r.store.movements) - 1; i >= 0; i-- {
		m := r.store.movements[i]
		if filter.ProductID != nil && m.ProductID != *filter.ProductID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

func (r fakeMovementRepo) SumByProduct(_ context.Context, productID uuid.UUID) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sum := 0
	for _, m := range r.store.movements {
		if m.ProductID == productID {
			sum += m.Delta()
		}
	}
	return sum, nil
}

// --- ReconciliationRepository ---

type fakeReconciliationRepo struct{ store *memStore }

func (r fakeReconciliationRepo) CreateBatch(_ context.Context, reports []model.ReconciliationReport) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.reports = append(r.store.reports, reports...)
	return nil
}

func (r fakeReconciliationRepo) ListByCorrelation(_ context.Context, correlationID string) ([]model.ReconciliationReport, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.ReconciliationReport
	for _, rep := range r.store.reports {
		if rep.CorrelationID == correlationID {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (r fakeReconciliationRepo) ListLatest(_ context.Context, limit int) ([]model.ReconciliationReport, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := append([]model.ReconciliationReport(nil), r.store.reports...)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// --- AuditRepository ---

type fakeAuditRepo struct{ store *memStore }

func (r fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = r.store.tick()
	r.store.audits = append(r.store.audits, *entry)
	return nil
}

func (r fakeAuditRepo) List(_ context.Context, action, entityID string, _, _ int) ([]model.AuditLog, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.AuditLog
	for i := len(r.store.audits) - 1; i >= 0; i-- {
		a := r.store.audits[i]
		if action != "" && a.Action != action {
			continue
		}
		if entityID != "" && a.EntityID != entityID {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

// --- Revalidator / Notifier recorders ---

type recordingRevalidator struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingRevalidator) Revalidate(_ context.Context, paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, paths...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	paid      []OrderPaidEvent
	approvals []string
}

func (n *recordingNotifier) OrderPaid(_ context.Context, event OrderPaidEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, event)
}

func (n *recordingNotifier) ApprovalEvent(_ context.Context, eventType string, _ string, _ ApprovalRequestResponse) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvals = append(n.approvals, eventType)
}

// --- Fixture ---

type workflowFixture struct {
	store       *memStore
	approvals   ApprovalService
	ledger      LedgerService
	orders      OrderService
	revalidator *recordingRevalidator
	notifier    *recordingNotifier

	admin   Actor
	stocker Actor
	sale    Actor
	user    Actor
}

func newWorkflowFixture(trackStockEdits bool) *workflowFixture {
	store := newMemStore()
	f := &workflowFixture{
		store:       store,
		revalidator: &recordingRevalidator{},
		notifier:    &recordingNotifier{},
		admin:       Actor{ID: uuid.New(), Role: model.RoleAdmin},
		stocker:     Actor{ID: uuid.New(), Role: model.RoleStocker},
		sale:        Actor{ID: uuid.New(), Role: model.RoleSale},
		user:        Actor{ID: uuid.New(), Role: model.RoleUser},
	}
	for _, a := range []Actor{f.admin, f.stocker, f.sale, f.user} {
		store.users[a.ID] = model.User{ID: a.ID, Name: a.Role + " person", Email: a.Role + "@example.com", Role: a.Role}
	}

	products := fakeProductRepo{store}
	orders := fakeOrderRepo{store}
	audit := fakeAuditRepo{store}
	tx := fakeTxManager{store}

	f.ledger = NewLedgerService(tx, fakeMovementRepo{store}, products, fakeReconciliationRepo{store}, audit, nil, nil, 4)
	applier := NewMutationApplier(products, orders, f.ledger, trackStockEdits)
	f.approvals = NewApprovalService(tx, fakeApprovalRepo{store}, audit, applier, f.revalidator, f.notifier, nil, nil)
	f.orders = NewOrderService(tx, orders, products, audit, f.approvals, f.revalidator, nil)
	return f
}

func (f *workflowFixture) seedProduct(slug string, stock int) model.Product {
	p := model.Product{
		ID:           uuid.New(),
		Name:         slug,
		Slug:         slug,
		CountInStock: stock,
		InitialStock: stock,
		IsPublished:  true,
	}
	f.store.products[p.ID] = p
	return p
}

func (f *workflowFixture) seedOrder(userID uuid.UUID, items ...model.OrderItem) model.Order {
	o := model.Order{ID: uuid.New(), UserID: userID}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = o.ID
	}
	o.Items = items
	f.store.orders[o.ID] = o
	return o
}

func (f *workflowFixture) product(id uuid.UUID) model.Product {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.products[id]
}

func (f *workflowFixture) order(id uuid.UUID) model.Order {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.orders[id]
}

func (f *workflowFixture) approval(id uuid.UUID) model.ApprovalRequest {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.approvals[id]
}

func (f *workflowFixture) movementsFor(productID uuid.UUID) []model.StockMovement {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []model.StockMovement
	for _, m := range f.store.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

func (f *workflowFixture) auditActions() []string {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	out := make([]string, 0, len(f.store.audits))
	for _, a := range f.store.audits {
		out = append(out, a.Action)
	}
	return out
}
