package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/workflow"
	"mochimo/pkg/rbac"
)

type ContractService struct {
	store     repository.Store
	lifecycle *Lifecycle
	logger    *zap.Logger
}

func NewContractService(store repository.Store, lifecycle *Lifecycle, logger *zap.Logger) *ContractService {
	return &ContractService{store: store, lifecycle: lifecycle, logger: logger}
}

// DraftInput 是 freelancer 填写的合同条款
type DraftInput struct {
	Price       int64
	Currency    string
	PaymentMode model.PaymentMode
	Deadline    *time.Time
	Terms       string
}

func (s *ContractService) Get(ctx context.Context, actor workflow.Actor, projectID int64) (*model.Contract, error) {
	if _, err := loadMember(ctx, s.store, projectID, actor, false); err != nil {
		return nil, err
	}
	c, err := findContract(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("contract for project %d: %w", projectID, ErrNotFound)
	}
	return c, nil
}

// Draft 新建或修改合同，并重新生成正文
func (s *ContractService) Draft(ctx context.Context, actor workflow.Actor, projectID int64, in DraftInput) (*model.Contract, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))

	var out *model.Contract
	err := s.store.WithTx(ctx, "contract.draft", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, projectID, actor, true)
		if err != nil {
			return err
		}
		if err := authorize(actor, rbac.PermissionDraftContract); err != nil {
			return err
		}
		if err := workflow.ValidateContractTerms(in.Price, in.Currency, in.PaymentMode); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if in.Deadline != nil && in.Deadline.Before(now()) {
			return validationErr("deadline is in the past")
		}
		terms, err := cleanText(in.Terms, "terms", 20000, false)
		if err != nil {
			return err
		}
		c, err := findContract(ctx, r, projectID)
		if err != nil {
			return err
		}
		if err := workflow.CanDraftContract(p, c, actor); err != nil {
			return err
		}
		reqs, err := r.Requirements().ListByProject(ctx, projectID)
		if err != nil {
			return err
		}

		isNew := c == nil
		if isNew {
			c = &model.Contract{ProjectID: projectID, Status: model.ContractDraft}
		}
		c.Price = in.Price
		c.Currency = in.Currency
		c.PaymentMode = in.PaymentMode
		c.Deadline = in.Deadline
		c.Terms = terms
		if c.Body, err = renderContract(p, reqs, c); err != nil {
			return err
		}

		if isNew {
			err = r.Contracts().Create(ctx, c)
		} else {
			err = r.Contracts().Update(ctx, c)
		}
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func (s *ContractService) Submit(ctx context.Context, actor workflow.Actor, projectID int64) (*model.Contract, error) {
	var out *model.Contract
	err := s.store.WithTx(ctx, "contract.submit", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, projectID, actor, true)
		if err != nil {
			return err
		}
		if err := authorize(actor, rbac.PermissionDraftContract); err != nil {
			return err
		}
		c, err := findContract(ctx, r, projectID)
		if err != nil {
			return err
		}
		if err := workflow.CanSubmitContract(p, c, actor); err != nil {
			return err
		}

		ts := now()
		c.Status = model.ContractSubmitted
		c.SubmittedAt = &ts
		c.RevisionNote = ""
		if err := r.Contracts().Update(ctx, c); err != nil {
			return err
		}
		out = c
		return emit(ctx, r, p, actor.UserID, mqcontracts.ContractSubmitted, mqcontracts.ProjectEvent{
			Amount:  c.Price,
			Message: fmt.Sprintf("A contract for %q is ready for your review", p.Title),
		})
	})
	return out, err
}

// Approve client 批准合同；项目进入 PAYMENT 或直接 INPROGRESS
func (s *ContractService) Approve(ctx context.Context, actor workflow.Actor, projectID int64) (*TransitionResult, error) {
	return s.lifecycle.Transition(ctx, projectID, actor, workflow.ApproveContract, nil)
}

func (s *ContractService) RequestRevision(ctx context.Context, actor workflow.Actor, projectID int64, note string) (*model.Contract, error) {
	note, err := cleanText(note, "note", 5000, false)
	if err != nil {
		return nil, err
	}
	var out *model.Contract
	err = s.store.WithTx(ctx, "contract.revise", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, projectID, actor, true)
		if err != nil {
			return err
		}
		if err := authorize(actor, rbac.PermissionReviewContract); err != nil {
			return err
		}
		c, err := findContract(ctx, r, projectID)
		if err != nil {
			return err
		}
		if err := workflow.CanRequestRevision(p, c, actor, note); err != nil {
			return err
		}

		c.Status = model.ContractRevision
		c.RevisionNote = note
		if err := r.Contracts().Update(ctx, c); err != nil {
			return err
		}
		out = c
		return emit(ctx, r, p, actor.UserID, mqcontracts.ContractRevisionRequested, mqcontracts.ProjectEvent{
			Note:    note,
			Message: fmt.Sprintf("The client asked for changes to the contract for %q", p.Title),
		})
	})
	return out, err
}
