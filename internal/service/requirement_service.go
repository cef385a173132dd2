package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/workflow"
	"mochimo/pkg/rbac"
)

type RequirementService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewRequirementService(store repository.Store, logger *zap.Logger) *RequirementService {
	return &RequirementService{store: store, logger: logger}
}

func (s *RequirementService) List(ctx context.Context, actor workflow.Actor, projectID int64) ([]*model.Requirement, error) {
	if _, err := loadMember(ctx, s.store, projectID, actor, false); err != nil {
		return nil, err
	}
	return s.store.Requirements().ListByProject(ctx, projectID)
}

func (s *RequirementService) Add(ctx context.Context, actor workflow.Actor, projectID int64, title, description string) (*model.Requirement, error) {
	title, err := cleanText(title, "title", 200, true)
	if err != nil {
		return nil, err
	}
	description, err = cleanText(description, "description", 10000, false)
	if err != nil {
		return nil, err
	}

	req := &model.Requirement{
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Status:      model.RequirementProposed,
	}
	err = s.store.WithTx(ctx, "requirement.add", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, projectID, actor, true)
		if err != nil {
			return err
		}
		if err := authorize(actor, rbac.PermissionManageScope); err != nil {
			return err
		}
		if err := workflow.CanEditRequirements(p, actor); err != nil {
			return err
		}
		return r.Requirements().Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// withRequirement 在事务中加载需求及其项目（项目加锁），并检查 permission。
// 需求在项目行锁之后重新读取，守卫看到的是已提交的最新状态
func withRequirement(ctx context.Context, r repository.Repos, id int64, actor workflow.Actor, permission string) (*model.Project, *model.Requirement, error) {
	req, err := r.Requirements().FindByID(ctx, id)
	if err != nil {
		return nil, nil, notFoundAs(err, "requirement", id)
	}
	p, err := loadMember(ctx, r, req.ProjectID, actor, true)
	if err != nil {
		return nil, nil, notFoundAs(err, "requirement", id)
	}
	if err := authorize(actor, permission); err != nil {
		return nil, nil, err
	}
	if req, err = r.Requirements().FindByID(ctx, id); err != nil {
		return nil, nil, notFoundAs(err, "requirement", id)
	}
	return p, req, nil
}

func (s *RequirementService) Update(ctx context.Context, actor workflow.Actor, id int64, title, description string) (*model.Requirement, error) {
	title, err := cleanText(title, "title", 200, true)
	if err != nil {
		return nil, err
	}
	description, err = cleanText(description, "description", 10000, false)
	if err != nil {
		return nil, err
	}

	var out *model.Requirement
	err = s.store.WithTx(ctx, "requirement.update", func(r repository.Repos) error {
		p, req, err := withRequirement(ctx, r, id, actor, rbac.PermissionManageScope)
		if err != nil {
			return err
		}
		if err := workflow.CanEditRequirements(p, actor); err != nil {
			return err
		}
		workflow.ApplyRequirementEdit(req, title, description)
		if err := r.Requirements().Update(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

func (s *RequirementService) Delete(ctx context.Context, actor workflow.Actor, id int64) error {
	return s.store.WithTx(ctx, "requirement.delete", func(r repository.Repos) error {
		p, _, err := withRequirement(ctx, r, id, actor, rbac.PermissionManageScope)
		if err != nil {
			return err
		}
		if err := workflow.CanEditRequirements(p, actor); err != nil {
			return err
		}
		return r.Requirements().Delete(ctx, id)
	})
}

func (s *RequirementService) Approve(ctx context.Context, actor workflow.Actor, id int64, note string) (*model.Requirement, error) {
	return s.review(ctx, actor, id, true, note)
}

func (s *RequirementService) Reject(ctx context.Context, actor workflow.Actor, id int64, note string) (*model.Requirement, error) {
	return s.review(ctx, actor, id, false, note)
}

func (s *RequirementService) review(ctx context.Context, actor workflow.Actor, id int64, approve bool, note string) (*model.Requirement, error) {
	var out *model.Requirement
	err := s.store.WithTx(ctx, "requirement.review", func(r repository.Repos) error {
		p, req, err := withRequirement(ctx, r, id, actor, rbac.PermissionReviewScope)
		if err != nil {
			return err
		}
		if err := workflow.ReviewRequirement(p, req, actor, approve, note); err != nil {
			return err
		}
		if err := r.Requirements().Update(ctx, req); err != nil {
			return err
		}
		out = req
		return emit(ctx, r, p, actor.UserID, mqcontracts.RequirementReviewed, mqcontracts.ProjectEvent{
			RequirementID: req.ID,
			Status:        string(req.Status),
			Note:          req.ReviewNote,
			Message:       fmt.Sprintf("Requirement %q was %s", req.Title, lower(req.Status)),
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Requirement reviewed",
		zap.Int64("requirement_id", id),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}
