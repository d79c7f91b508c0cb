package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// LedgerEntry describes one stock change. Delta is signed: positive for stock in.
type LedgerEntry struct {
	ProductID   uuid.UUID
	Type        string
	Delta       int
	StockAfter  int
	Reason      string
	OrderID     *uuid.UUID
	InitiatedBy *uuid.UUID
}

type StockMovementResponse struct {
	ID            string  `json:"id"`
	ProductID     string  `json:"product_id"`
	ProductName   string  `json:"product_name"`
	ProductSlug   string  `json:"product_slug"`
	Type          string  `json:"type"`
	StockIn       int     `json:"stock_in"`
	StockOut      int     `json:"stock_out"`
	Delta         int     `json:"delta"`
	StockAfter    int     `json:"stock_after"`
	Reason        string  `json:"reason"`
	OrderID       *string `json:"order_id"`
	InitiatedBy   *string `json:"initiated_by"`
	InitiatorName string  `json:"initiator_name"`
	CreatedAt     string  `json:"created_at"`
}

// ReconcileResult summarises one reconciliation run. Drifted lists only products
// whose ledger does not explain their stock.
type ReconcileResult struct {
	CorrelationID string                       `json:"correlation_id"`
	Checked       int                          `json:"checked"`
	Drifted       []model.ReconciliationReport `json:"drifted"`
}

type LedgerService interface {
	Record(ctx context.Context, entry LedgerEntry) (*model.StockMovement, error)
	List(ctx context.Context, filter repository.MovementFilter) ([]StockMovementResponse, int64, error)
	// AdjustTo sets the product's stock to newCount and records the difference as an
	// ADJUSTMENT. It is a no-op when the count is unchanged.
	AdjustTo(ctx context.Context, product *model.Product, newCount int, actorID *uuid.UUID, reason string) error
	Reconcile(ctx context.Context, actorID *uuid.UUID) (ReconcileResult, error)
	// Reports returns the drift rows of one run, or the latest rows when correlationID is empty.
	Reports(ctx context.Context, correlationID string, limit int) ([]model.ReconciliationReport, error)
}

type ledgerService struct {
	tx                 repository.TransactionManager
	movementRepo       repository.StockMovementRepository
	productRepo        repository.ProductRepository
	reconciliationRepo repository.ReconciliationRepository
	auditRepo          repository.AuditRepository
	metrics            *MetricsService
	logger             *zap.Logger
	concurrency        int
}

func NewLedgerService(
	tx repository.TransactionManager,
	movementRepo repository.StockMovementRepository,
	productRepo repository.ProductRepository,
	reconciliationRepo repository.ReconciliationRepository,
	auditRepo repository.AuditRepository,
	metrics *MetricsService,
	logger *zap.Logger,
	concurrency int,
) LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ledgerService{
		tx:                 tx,
		movementRepo:       movementRepo,
		productRepo:        productRepo,
		reconciliationRepo: reconciliationRepo,
		auditRepo:          auditRepo,
		metrics:            metrics,
		logger:             logger,
		concurrency:        concurrency,
	}
}

func (s *ledgerService) Record(ctx context.Context, entry LedgerEntry) (*model.StockMovement, error) {
	if err := checkDirection(entry.Type, entry.Delta); err != nil {
		return nil, err
	}

	movement := &model.StockMovement{
		ProductID:   entry.ProductID,
		Type:        entry.Type,
		StockAfter:  entry.StockAfter,
		Reason:      entry.Reason,
		InitiatedBy: entry.InitiatedBy,
	}
	if entry.Delta > 0 {
		movement.StockIn = entry.Delta
	} else {
		movement.StockOut = -entry.Delta
	}
	if entry.Type == model.MovementSale {
		movement.OrderID = entry.OrderID
	}

	if err := s.movementRepo.Create(ctx, movement); err != nil {
		return nil, fmt.Errorf("failed to record stock movement: %w", err)
	}

	s.metrics.RecordMovement(entry.Type)
	return movement, nil
}

// checkDirection enforces that the movement type matches the sign of the delta.
func checkDirection(movementType string, delta int) error {
	switch movementType {
	case model.MovementRestock:
		if delta <= 0 {
			return appErrors.Clone(appErrors.ErrValidation, "restock must add stock")
		}
	case model.MovementSale:
		if delta >= 0 {
			return appErrors.Clone(appErrors.ErrValidation, "sale must remove stock")
		}
	case model.MovementAdjustment:
		if delta == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "adjustment must change stock")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown movement type %q", movementType))
	}
	return nil
}

func (s *ledgerService) List(ctx context.Context, filter repository.MovementFilter) ([]StockMovementResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	movements, total, err := s.movementRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stock movements: %w", err)
	}

	res := make([]StockMovementResponse, 0, len(movements))
	for _, m := range movements {
		res = append(res, toMovementResponse(m))
	}
	return res, total, nil
}

func (s *ledgerService) AdjustTo(ctx context.Context, product *model.Product, newCount int, actorID *uuid.UUID, reason string) error {
	if newCount < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "stock must not be negative")
	}
	delta := newCount - product.CountInStock
	if delta == 0 {
		return nil
	}

	if err := s.productRepo.UpdateStock(ctx, product.ID, newCount); err != nil {
		return fmt.Errorf("failed to update stock for product %s: %w", product.Slug, err)
	}
	product.CountInStock = newCount

	_, err := s.Record(ctx, LedgerEntry{
		ProductID:   product.ID,
		Type:        model.MovementAdjustment,
		Delta:       delta,
		StockAfter:  newCount,
		Reason:      reason,
		InitiatedBy: actorID,
	})
	return err
}

// Reconcile checks every product's ledger against its stock, bounded to
// s.concurrency products at a time. Each product row is locked while its stock
// and ledger sum are read. Drift rows are persisted under one correlation id.
func (s *ledgerService) Reconcile(ctx context.Context, actorID *uuid.UUID) (ReconcileResult, error) {
	products, err := s.productRepo.ListAll(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("failed to load products: %w", err)
	}

	correlationID := uuid.NewString()
	var (
		mu      sync.Mutex
		checked int
		drifted []model.ReconciliationReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, listed := range products {
		g.Go(func() error {
			report, found, err := s.checkProduct(gctx, listed.ID)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", listed.Slug, err)
			}
			if !found {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			checked++
			if report.Drift != 0 {
				report.CorrelationID = correlationID
				drifted = append(drifted, report)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReconcileResult{}, err
	}

	if err := s.reconciliationRepo.CreateBatch(ctx, drifted); err != nil {
		return ReconcileResult{}, fmt.Errorf("failed to persist reconciliation report: %w", err)
	}

	details, _ := json.Marshal(map[string]interface{}{
		"checked": checked,
		"drifted": len(drifted),
	})
	audit := &model.AuditLog{
		UserID:     actorID,
		Action:     model.ActionReconcileLedger,
		EntityID:   correlationID,
		EntityName: "stock_ledger",
		Details:    string(details),
	}
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		s.logger.Warn("failed to write reconciliation audit log", zap.Error(err))
	}

	s.metrics.SetDriftedProducts(len(drifted))
	s.logger.Info("stock ledger reconciled",
		zap.String("correlation_id", correlationID),
		zap.Int("checked", checked),
		zap.Int("drifted", len(drifted)),
	)

	if drifted == nil {
		drifted = []model.ReconciliationReport{}
	}
	return ReconcileResult{CorrelationID: correlationID, Checked: checked, Drifted: drifted}, nil
}

// checkProduct reads one product's stock and ledger sum in a single transaction.
// found is false when the product was removed after the listing.
func (s *ledgerService) checkProduct(ctx context.Context, id uuid.UUID) (report model.ReconciliationReport, found bool, err error) {
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.productRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		sum, err := s.movementRepo.SumByProduct(txCtx, p.ID)
		if err != nil {
			return err
		}

		found = true
		report = model.ReconciliationReport{
			ProductID:    p.ID,
			ProductSlug:  p.Slug,
			CountInStock: p.CountInStock,
			InitialStock: p.InitialStock,
			LedgerDelta:  sum,
			Drift:        (p.CountInStock - p.InitialStock) - sum,
			CreatedAt:    time.Now(),
		}
		return nil
	})
	return report, found, err
}

func (s *ledgerService) Reports(ctx context.Context, correlationID string, limit int) ([]model.ReconciliationReport, error) {
	var (
		reports []model.ReconciliationReport
		err     error
	)
	if correlationID != "" {
		reports, err = s.reconciliationRepo.ListByCorrelation(ctx, correlationID)
	} else {
		if limit <= 0 {
			limit = 50
		}
		reports, err = s.reconciliationRepo.ListLatest(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reconciliation reports: %w", err)
	}
	if reports == nil {
		reports = []model.ReconciliationReport{}
	}
	return reports, nil
}

func toMovementResponse(m model.StockMovement) StockMovementResponse {
	resp := StockMovementResponse{
		ID:         m.ID.String(),
		ProductID:  m.ProductID.String(),
		Type:       m.Type,
		StockIn:    m.StockIn,
		StockOut:   m.StockOut,
		Delta:      m.Delta(),
		StockAfter: m.StockAfter,
		Reason:     m.Reason,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
	}
	if m.Product != nil {
		resp.ProductName = m.Product.Name
		resp.ProductSlug = m.Product.Slug
	}
	if m.OrderID != nil {
		s := m.OrderID.String()
		resp.OrderID = &s
	}
	if m.InitiatedBy != nil {
		s := m.InitiatedBy.String()
		resp.InitiatedBy = &s
	}
	if m.Initiator != nil {
		resp.InitiatorName = m.Initiator.Name
	}
	return resp
}
