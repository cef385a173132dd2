package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/workflow"
	"mochimo/pkg/objectstore"
	"mochimo/pkg/rbac"
)

type PaymentService struct {
	store     repository.Store
	lifecycle *Lifecycle
	images    objectstore.ImageStore
	logger    *zap.Logger
}

func NewPaymentService(store repository.Store, lifecycle *Lifecycle, images objectstore.ImageStore, logger *zap.Logger) *PaymentService {
	return &PaymentService{store: store, lifecycle: lifecycle, images: images, logger: logger}
}

func (s *PaymentService) List(ctx context.Context, actor workflow.Actor, projectID int64) ([]*model.PaymentProof, error) {
	if _, err := loadMember(ctx, s.store, projectID, actor, false); err != nil {
		return nil, err
	}
	return s.store.Payments().ListByProject(ctx, projectID)
}

// Summary 合同尚未批准时返回 ErrNotFound
func (s *PaymentService) Summary(ctx context.Context, actor workflow.Actor, projectID int64) (*workflow.PaymentSummary, error) {
	p, err := loadMember(ctx, s.store, projectID, actor, false)
	if err != nil {
		return nil, err
	}
	c, err := findContract(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	proofs, err := s.store.Payments().ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sum := workflow.Summarize(p, c, proofs)
	if sum == nil {
		return nil, fmt.Errorf("payment summary: no approved contract: %w", ErrNotFound)
	}
	return sum, nil
}

// dueNow 返回当前应付的阶段与金额
func dueNow(p *model.Project, c *model.Contract) (model.PaymentStage, int64, error) {
	if c == nil || c.Status != model.ContractApproved {
		return "", 0, &workflow.GuardError{Op: "upload payment proof", Reason: "contract is not approved"}
	}
	stage := workflow.ExpectedStage(p)
	amount := workflow.AmountDue(c.Price, c.PaymentMode, stage)
	if amount <= 0 {
		return "", 0, &workflow.GuardError{Op: "upload payment proof", Reason: fmt.Sprintf("nothing is due for the %s stage", stage)}
	}
	return stage, amount, nil
}

// UploadProof client 上传付款截图；阶段与金额由合同计算
func (s *PaymentService) UploadProof(ctx context.Context, actor workflow.Actor, projectID int64, img objectstore.Image) (*model.PaymentProof, error) {
	p, err := loadMember(ctx, s.store, projectID, actor, false)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, rbac.PermissionUploadPayment); err != nil {
		return nil, err
	}
	pending, err := s.store.Payments().FindPending(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := workflow.CanUploadPaymentProof(p, actor, pending); err != nil {
		return nil, err
	}
	c, err := findContract(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if _, _, err := dueNow(p, c); err != nil {
		return nil, err
	}

	url, err := s.images.Save(ctx, "payments", projectID, img)
	if err != nil {
		return nil, err
	}

	var out *model.PaymentProof
	err = s.store.WithTx(ctx, "payment.upload", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, projectID, actor, true)
		if err != nil {
			return err
		}
		if err := authorize(actor, rbac.PermissionUploadPayment); err != nil {
			return err
		}
		pending, err := r.Payments().FindPending(ctx, projectID)
		if err != nil {
			return err
		}
		if err := workflow.CanUploadPaymentProof(p, actor, pending); err != nil {
			return err
		}
		c, err := findContract(ctx, r, projectID)
		if err != nil {
			return err
		}
		stage, amount, err := dueNow(p, c)
		if err != nil {
			return err
		}

		proof := &model.PaymentProof{
			ProjectID: projectID,
			ClientID:  actor.UserID,
			Stage:     stage,
			Amount:    amount,
			ImageURL:  url,
			Status:    model.PaymentPending,
		}
		if err := r.Payments().Create(ctx, proof); err != nil {
			return err
		}
		out = proof
		return emit(ctx, r, p, actor.UserID, mqcontracts.PaymentProofUploaded, mqcontracts.ProjectEvent{
			ProofID: proof.ID,
			Stage:   string(stage),
			Amount:  amount,
			Message: fmt.Sprintf("A %s payment proof for %q is waiting for verification", stage, p.Title),
		})
	})
	if err != nil {
		s.logger.Warn("Uploaded payment proof was not recorded",
			zap.Int64("project_id", projectID),
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

func (s *PaymentService) findProof(ctx context.Context, r repository.Repos, proofID int64) (*model.PaymentProof, error) {
	proof, err := r.Payments().FindByID(ctx, proofID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("payment proof %d: %w", proofID, ErrNotFound)
		}
		return nil, err
	}
	return proof, nil
}

// Verify freelancer 确认收款，推动项目进入 INPROGRESS 或 COMPLETED
func (s *PaymentService) Verify(ctx context.Context, actor workflow.Actor, proofID int64) (*TransitionResult, error) {
	proof, err := s.findProof(ctx, s.store, proofID)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.Transition(ctx, proof.ProjectID, actor, workflow.VerifyPayment, func(snap workflow.Snapshot) error {
		if snap.PendingProof == nil || snap.PendingProof.ID != proofID {
			return &workflow.GuardError{Op: "verify payment", Reason: fmt.Sprintf("proof %d is not awaiting review", proofID)}
		}
		return nil
	})
}

// RejectProof 项目保持 PAYMENT，client 可以重新上传
func (s *PaymentService) RejectProof(ctx context.Context, actor workflow.Actor, proofID int64, note string) (*model.PaymentProof, error) {
	note, err := cleanText(note, "note", 5000, false)
	if err != nil {
		return nil, err
	}
	var out *model.PaymentProof
	err = s.store.WithTx(ctx, "payment.reject", func(r repository.Repos) error {
		proof, err := s.findProof(ctx, r, proofID)
		if err != nil {
			return err
		}
		p, err := loadMember(ctx, r, proof.ProjectID, actor, true)
		if err != nil {
			return notFoundAs(err, "payment proof", proofID)
		}
		if err := authorize(actor, rbac.PermissionVerifyPayment); err != nil {
			return err
		}
		// 项目锁之后重读，凭证可能刚被并发的 Verify 处理
		if proof, err = s.findProof(ctx, r, proofID); err != nil {
			return err
		}
		if err := workflow.CanRejectPaymentProof(p, proof, actor, note); err != nil {
			return err
		}

		ts := now()
		proof.Status = model.PaymentRejected
		proof.ReviewNote = note
		proof.ReviewedAt = &ts
		if err := r.Payments().Update(ctx, proof); err != nil {
			return err
		}
		out = proof
		return emit(ctx, r, p, actor.UserID, mqcontracts.PaymentProofReviewed, mqcontracts.ProjectEvent{
			ProofID: proof.ID,
			Stage:   string(proof.Stage),
			Amount:  proof.Amount,
			Status:  string(model.PaymentRejected),
			Note:    note,
			Message: fmt.Sprintf("Your %s payment proof for %q was rejected", proof.Stage, p.Title),
		})
	})
	return out, err
}
