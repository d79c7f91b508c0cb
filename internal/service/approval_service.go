package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

// Submission outcomes
const (
	OutcomeDirect  = "direct"
	OutcomePending = "pending"
)

// Decision is the reviewer's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type SubmitRequest struct {
	Type     model.RequestType `json:"type" binding:"required"`
	TargetID *uuid.UUID        `json:"target_id" swaggertype:"string"`
	Payload  json.RawMessage   `json:"payload" swaggertype:"object"`
}

type SubmitResult struct {
	Outcome string                   `json:"outcome"`
	Message string                   `json:"message"`
	Request *ApprovalRequestResponse `json:"request,omitempty"`
	Entity  string                   `json:"entity_id,omitempty"`
}

type ApprovalRequestResponse struct {
	ID            string            `json:"id"`
	Type          model.RequestType `json:"type"`
	TargetID      *string           `json:"target_id"`
	Payload       json.RawMessage   `json:"payload" swaggertype:"object"`
	Status        string            `json:"status"`
	RequestedBy   string            `json:"requested_by"`
	RequesterName string            `json:"requester_name"`
	ReviewedBy    *string           `json:"reviewed_by"`
	ReviewerName  string            `json:"reviewer_name"`
	ReviewedAt    *string           `json:"reviewed_at"`
	Note          string            `json:"note"`
	CreatedAt     string            `json:"created_at"`
}

// PendingSummary marks a target as locked by a pending request.
type PendingSummary struct {
	RequestID   string            `json:"request_id"`
	Type        model.RequestType `json:"type"`
	RequestedBy string            `json:"requested_by"`
	CreatedAt   string            `json:"created_at"`
}

// --- Interface ---

type ApprovalService interface {
	Submit(ctx context.Context, actor Actor, req SubmitRequest) (SubmitResult, error)
	Resolve(ctx context.Context, actor Actor, id uuid.UUID, decision Decision, note string) (ApprovalRequestResponse, error)
	List(ctx context.Context, filter repository.ApprovalFilter) ([]ApprovalRequestResponse, int64, error)
	Get(ctx context.Context, id uuid.UUID) (ApprovalRequestResponse, error)
	PendingIndex(ctx context.Context, targetIDs []uuid.UUID) (map[string]PendingSummary, error)
}

type approvalService struct {
	txManager    repository.TransactionManager
	approvalRepo repository.ApprovalRepository
	auditRepo    repository.AuditRepository
	applier      *MutationApplier
	revalidator  Revalidator
	notifier     Notifier
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
}

func NewApprovalService(
	txManager repository.TransactionManager,
	approvalRepo repository.ApprovalRepository,
	auditRepo repository.AuditRepository,
	applier *MutationApplier,
	revalidator Revalidator,
	notifier Notifier,
	metrics *MetricsService,
	logger *zap.Logger,
) ApprovalService {
	if revalidator == nil {
		revalidator = Revalidators{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &approvalService{
		txManager:    txManager,
		approvalRepo: approvalRepo,
		auditRepo:    auditRepo,
		applier:      applier,
		revalidator:  revalidator,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// --- Implementation ---

// Submit applies the mutation immediately for admins, queues it for review when
// the role may propose it, and refuses otherwise.
func (s *approvalService) Submit(ctx context.Context, actor Actor, req SubmitRequest) (SubmitResult, error) {
	if !req.Type.Valid() {
		return SubmitResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request type %q", req.Type))
	}

	switch {
	case CanApplyDirectly(actor.Role):
		return s.applyDirect(ctx, actor, req)
	case CanPropose(actor.Role, req.Type):
		return s.propose(ctx, actor, req)
	default:
		return SubmitResult{}, appErrors.Clone(appErrors.ErrNotAuthorized,
			fmt.Sprintf("role %q may not submit %s", actor.Role, req.Type))
	}
}

func (s *approvalService) applyDirect(ctx context.Context, actor Actor, req SubmitRequest) (SubmitResult, error) {
	mutation, targetID, err := decodeSubmission(req)
	if err != nil {
		return SubmitResult{}, err
	}

	var applied ApplyResult
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var applyErr error
		applied, applyErr = s.applier.Apply(txCtx, actor.ID, targetID, mutation)
		if applyErr != nil {
			return applyErr
		}

		details, _ := json.Marshal(map[string]interface{}{
			"type":      req.Type,
			"target_id": targetID,
			"payload":   mutation,
		})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionDirectMutation,
			EntityID:   applied.EntityID,
			EntityName: string(req.Type),
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	s.afterApply(ctx, applied)
	s.metrics.RecordSubmission(string(req.Type), OutcomeDirect)
	s.logger.Info("privileged mutation applied directly",
		zap.String("type", string(req.Type)),
		zap.String("actor_id", actor.ID.String()),
		zap.String("entity_id", applied.EntityID),
	)

	return SubmitResult{
		Outcome: OutcomeDirect,
		Message: fmt.Sprintf("%s applied", req.Type),
		Entity:  applied.EntityID,
	}, nil
}

func (s *approvalService) propose(ctx context.Context, actor Actor, req SubmitRequest) (SubmitResult, error) {
	mutation, targetID, err := decodeSubmission(req)
	if err != nil {
		return SubmitResult{}, err
	}

	if err := s.applier.CheckTarget(ctx, req.Type, targetID); err != nil {
		return SubmitResult{}, err
	}

	lockKey := LockKey(mutation, targetID)
	if _, err := s.approvalRepo.FindPendingByLockKey(ctx, lockKey); err == nil {
		return SubmitResult{}, duplicatePending(lockKey)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return SubmitResult{}, fmt.Errorf("failed to check pending requests: %w", err)
	}

	payload, err := json.Marshal(mutation)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	approval := &model.ApprovalRequest{
		Type:        req.Type,
		TargetID:    targetID,
		LockKey:     lockKey,
		Payload:     string(payload),
		Status:      model.ApprovalPending,
		RequestedBy: actor.ID,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.approvalRepo.Create(txCtx, approval); err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]interface{}{
			"type":      req.Type,
			"target_id": targetID,
			"lock_key":  lockKey,
		})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionSubmitApproval,
			EntityID:   approval.ID.String(),
			EntityName: string(req.Type),
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		// The partial unique index catches a racing submission the lookup missed.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return SubmitResult{}, duplicatePending(lockKey)
		}
		return SubmitResult{}, fmt.Errorf("failed to create approval request: %w", err)
	}

	resp := toApprovalResponse(*approval)
	s.revalidator.Revalidate(ctx, PathApprovals, pathForTarget(req.Type))
	s.notifier.ApprovalEvent(ctx, EventApprovalSubmitted, actor.ID.String(), resp)
	s.metrics.RecordSubmission(string(req.Type), OutcomePending)
	s.logger.Info("approval request submitted",
		zap.String("request_id", approval.ID.String()),
		zap.String("type", string(req.Type)),
		zap.String("lock_key", lockKey),
		zap.String("actor_id", actor.ID.String()),
	)

	return SubmitResult{
		Outcome: OutcomePending,
		Message: "request submitted for approval",
		Request: &resp,
	}, nil
}

// Resolve approves or rejects a pending request. The status flip is conditional
// on the row still being pending, so a request is resolved at most once. On
// approve, the replay runs in the same transaction: if it fails, the request
// stays pending.
func (s *approvalService) Resolve(ctx context.Context, actor Actor, id uuid.UUID, decision Decision, note string) (ApprovalRequestResponse, error) {
	if !CanReview(actor.Role) {
		return ApprovalRequestResponse{}, appErrors.Clone(appErrors.ErrNotAuthorized, "only admins may review requests")
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return ApprovalRequestResponse{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown decision %q", decision))
	}

	var (
		approval *model.ApprovalRequest
		applied  ApplyResult
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		approval, err = s.approvalRepo.FindByID(txCtx, id)
		if err != nil {
			return lookupErr(err, "approval request")
		}
		if approval.Status != model.ApprovalPending {
			return appErrors.Clone(appErrors.ErrAlreadyResolved, fmt.Sprintf("request is already %s", approval.Status))
		}

		status := model.ApprovalRejected
		action := model.ActionRejectRequest
		if decision == DecisionApprove {
			status = model.ApprovalApproved
			action = model.ActionApproveRequest
		}

		if err := s.approvalRepo.TransitionStatus(txCtx, approval.ID, status, actor.ID, note, s.now()); err != nil {
			return err
		}

		if decision == DecisionApprove {
			mutation, err := DecodeMutation(approval.Type, json.RawMessage(approval.Payload))
			if err != nil {
				return err
			}
			applied, err = s.applier.Apply(txCtx, approval.RequestedBy, approval.TargetID, mutation)
			if err != nil {
				return err
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"type":      approval.Type,
			"target_id": approval.TargetID,
			"note":      note,
		})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     action,
			EntityID:   approval.ID.String(),
			EntityName: string(approval.Type),
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		if approval != nil {
			s.logger.Warn("approval resolution failed",
				zap.String("request_id", id.String()),
				zap.String("type", string(approval.Type)),
				zap.String("decision", string(decision)),
				zap.Error(err),
			)
		}
		return ApprovalRequestResponse{}, err
	}

	paths := []string{PathApprovals, PathOrders, PathProducts}
	for _, slug := range applied.ProductSlugs {
		paths = append(paths, ProductPath(slug))
	}
	if len(applied.ProductSlugs) > 0 || approval.Type.TargetsProduct() {
		paths = append(paths, PathStock)
	}
	s.revalidator.Revalidate(ctx, dedupePaths(paths)...)
	if applied.PaidOrder != nil {
		s.notifier.OrderPaid(ctx, *applied.PaidOrder)
	}
	s.metrics.RecordResolution(string(approval.Type), string(decision))

	resp, err := s.Get(ctx, approval.ID)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}
	s.notifier.ApprovalEvent(ctx, EventApprovalResolved, actor.ID.String(), resp)
	s.logger.Info("approval request resolved",
		zap.String("request_id", approval.ID.String()),
		zap.String("type", string(approval.Type)),
		zap.String("decision", string(decision)),
		zap.String("reviewer_id", actor.ID.String()),
	)

	return resp, nil
}

func (s *approvalService) List(ctx context.Context, filter repository.ApprovalFilter) ([]ApprovalRequestResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	approvals, total, err := s.approvalRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approval requests: %w", err)
	}

	result := make([]ApprovalRequestResponse, 0, len(approvals))
	for _, a := range approvals {
		result = append(result, toApprovalResponse(a))
	}
	return result, total, nil
}

func (s *approvalService) Get(ctx context.Context, id uuid.UUID) (ApprovalRequestResponse, error) {
	approval, err := s.approvalRepo.FindByIDWithRelations(ctx, id)
	if err != nil {
		return ApprovalRequestResponse{}, lookupErr(err, "approval request")
	}
	return toApprovalResponse(*approval), nil
}

// PendingIndex maps each target id with an outstanding request to that request.
func (s *approvalService) PendingIndex(ctx context.Context, targetIDs []uuid.UUID) (map[string]PendingSummary, error) {
	index := make(map[string]PendingSummary, len(targetIDs))
	if len(targetIDs) == 0 {
		return index, nil
	}

	pending, err := s.approvalRepo.ListPendingByTargets(ctx, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending requests: %w", err)
	}

	for _, p := range pending {
		if p.TargetID == nil {
			continue
		}
		key := p.TargetID.String()
		if _, seen := index[key]; seen {
			continue
		}
		index[key] = PendingSummary{
			RequestID:   p.ID.String(),
			Type:        p.Type,
			RequestedBy: p.RequestedBy.String(),
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		}
	}
	return index, nil
}

func (s *approvalService) afterApply(ctx context.Context, applied ApplyResult) {
	paths := []string{PathOrders, PathProducts}
	for _, slug := range applied.ProductSlugs {
		paths = append(paths, ProductPath(slug), PathStock)
	}
	s.revalidator.Revalidate(ctx, dedupePaths(paths)...)
	if applied.PaidOrder != nil {
		s.notifier.OrderPaid(ctx, *applied.PaidOrder)
	}
}

// --- Helpers ---

func decodeSubmission(req SubmitRequest) (Mutation, *uuid.UUID, error) {
	mutation, err := DecodeMutation(req.Type, req.Payload)
	if err != nil {
		return nil, nil, err
	}

	targetID := req.TargetID
	if req.Type == model.ReqCreateProduct {
		targetID = nil
	} else if targetID == nil || *targetID == uuid.Nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s requires target_id", req.Type))
	}
	return mutation, targetID, nil
}

func duplicatePending(lockKey string) error {
	return appErrors.Clone(appErrors.ErrDuplicatePending, fmt.Sprintf("a pending request already exists for %s", lockKey))
}

func pathForTarget(t model.RequestType) string {
	if t.TargetsOrder() {
		return PathOrders
	}
	return PathProducts
}

func toApprovalResponse(a model.ApprovalRequest) ApprovalRequestResponse {
	resp := ApprovalRequestResponse{
		ID:          a.ID.String(),
		Type:        a.Type,
		Payload:     json.RawMessage(a.Payload),
		Status:      a.Status,
		RequestedBy: a.RequestedBy.String(),
		Note:        a.Note,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
	if a.Payload == "" {
		resp.Payload = json.RawMessage("{}")
	}

	if a.TargetID != nil {
		s := a.TargetID.String()
		resp.TargetID = &s
	}
	if a.Requester != nil {
		resp.RequesterName = a.Requester.Name
	}
	if a.ReviewedBy != nil {
		s := a.ReviewedBy.String()
		resp.ReviewedBy = &s
	}
	if a.Reviewer != nil {
		resp.ReviewerName = a.Reviewer.Name
	}
	if a.ReviewedAt != nil {
		s := a.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &s
	}

	return resp
}
