package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/workflow"
	"mochimo/pkg/rbac"
)

type ProjectService struct {
	store     repository.Store
	lifecycle *Lifecycle
	logger    *zap.Logger
}

func NewProjectService(store repository.Store, lifecycle *Lifecycle, logger *zap.Logger) *ProjectService {
	return &ProjectService{store: store, lifecycle: lifecycle, logger: logger}
}

// 邀请码：10 个 base32 字符（50 bit）
func newInviteCode() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)[:10], nil
}

// visible 非 owner 看不到邀请码
func visible(p *model.Project, actor workflow.Actor) *model.Project {
	if p.IsOwner(actor.UserID) {
		return p
	}
	cp := *p
	cp.InviteCode = ""
	return &cp
}

func (s *ProjectService) Create(ctx context.Context, actor workflow.Actor, title, description string) (*model.Project, error) {
	if err := authorize(actor, rbac.PermissionCreateProject); err != nil {
		return nil, err
	}
	title, err := cleanText(title, "title", 200, true)
	if err != nil {
		return nil, err
	}
	description, err = cleanText(description, "description", 10000, false)
	if err != nil {
		return nil, err
	}
	code, err := newInviteCode()
	if err != nil {
		return nil, fmt.Errorf("generate invite code: %w", err)
	}

	p := &model.Project{
		FreelancerID: actor.UserID,
		Title:        title,
		Description:  description,
		InviteCode:   code,
		Status:       model.ProjectPending,
	}
	err = s.store.WithTx(ctx, "project.create", func(r repository.Repos) error {
		if err := r.Projects().Create(ctx, p); err != nil {
			return err
		}
		return emit(ctx, r, p, actor.UserID, mqcontracts.ProjectCreated, mqcontracts.ProjectEvent{
			Message: fmt.Sprintf("Project %q was created", p.Title),
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, actor workflow.Actor, id int64) (*model.Project, error) {
	p, err := loadMember(ctx, s.store, id, actor, false)
	if err != nil {
		return nil, err
	}
	return visible(p, actor), nil
}

func (s *ProjectService) List(ctx context.Context, actor workflow.Actor) ([]*model.Project, error) {
	if err := authorize(actor, rbac.PermissionReadProject); err != nil {
		return nil, err
	}
	projects, err := s.store.Projects().ListByMember(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, visible(p, actor))
	}
	return out, nil
}

// UpdateInput nil 字段保持不变
type UpdateInput struct {
	Title       *string
	Description *string
}

func (s *ProjectService) Update(ctx context.Context, actor workflow.Actor, id int64, in UpdateInput) (*model.Project, error) {
	var out *model.Project
	err := s.store.WithTx(ctx, "project.update", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		if err := authorize(actor, rbac.PermissionManageProject); err != nil {
			return err
		}
		if err := workflow.CanUpdateProject(p, actor); err != nil {
			return err
		}
		if in.Title != nil {
			if p.Title, err = cleanText(*in.Title, "title", 200, true); err != nil {
				return err
			}
		}
		if in.Description != nil {
			if p.Description, err = cleanText(*in.Description, "description", 10000, false); err != nil {
				return err
			}
		}
		if err := r.Projects().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *ProjectService) Delete(ctx context.Context, actor workflow.Actor, id int64) error {
	return s.store.WithTx(ctx, "project.delete", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		if err := authorize(actor, rbac.PermissionManageProject); err != nil {
			return err
		}
		if err := workflow.CanDeleteProject(p, actor); err != nil {
			return err
		}
		return r.Projects().Delete(ctx, id)
	})
}

// Join client 用邀请码加入项目
func (s *ProjectService) Join(ctx context.Context, actor workflow.Actor, inviteCode string) (*model.Project, error) {
	if err := authorize(actor, rbac.PermissionJoinProject); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(inviteCode))
	if code == "" {
		return nil, validationErr("invite code is required")
	}

	var out *model.Project
	err := s.store.WithTx(ctx, "project.join", func(r repository.Repos) error {
		p, err := r.Projects().FindByInviteCodeForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("invite code: %w", ErrNotFound)
			}
			return err
		}
		if err := workflow.CanJoin(p, actor); err != nil {
			return err
		}
		clientID := actor.UserID
		p.ClientID = &clientID
		if err := r.Projects().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return emit(ctx, r, p, actor.UserID, mqcontracts.ProjectJoined, mqcontracts.ProjectEvent{
			Message: fmt.Sprintf("A client joined %q", p.Title),
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Client joined project",
		zap.Int64("project_id", out.ID),
		zap.Int64("client_id", actor.UserID),
	)
	return visible(out, actor), nil
}

func (s *ProjectService) RegenerateInvite(ctx context.Context, actor workflow.Actor, id int64) (*model.Project, error) {
	code, err := newInviteCode()
	if err != nil {
		return nil, fmt.Errorf("generate invite code: %w", err)
	}
	var out *model.Project
	err = s.store.WithTx(ctx, "project.invite", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		if err := authorize(actor, rbac.PermissionManageProject); err != nil {
			return err
		}
		if err := workflow.CanRegenerateInvite(p, actor); err != nil {
			return err
		}
		p.InviteCode = code
		if err := r.Projects().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *ProjectService) SubmitScope(ctx context.Context, actor workflow.Actor, id int64) (*model.Project, error) {
	return s.transition(ctx, actor, id, workflow.SubmitScope)
}

func (s *ProjectService) ApproveScope(ctx context.Context, actor workflow.Actor, id int64) (*model.Project, error) {
	return s.transition(ctx, actor, id, workflow.ApproveScope)
}

func (s *ProjectService) RejectScope(ctx context.Context, actor workflow.Actor, id int64) (*model.Project, error) {
	return s.transition(ctx, actor, id, workflow.RejectScope)
}

func (s *ProjectService) Complete(ctx context.Context, actor workflow.Actor, id int64) (*model.Project, error) {
	return s.transition(ctx, actor, id, workflow.CompleteProject)
}

func (s *ProjectService) transition(ctx context.Context, actor workflow.Actor, id int64, action workflow.Action) (*model.Project, error) {
	res, err := s.lifecycle.Transition(ctx, id, actor, action, nil)
	if err != nil {
		return nil, err
	}
	return res.Project, nil
}

// Overview 是项目详情页需要的全部数据
type Overview struct {
	Project        *model.Project           `json:"project"`
	Requirements   []*model.Requirement     `json:"requirements"`
	Contract       *model.Contract          `json:"contract"`
	Tasks          []*model.Task            `json:"tasks"`
	Payments       []*model.PaymentProof    `json:"payments"`
	PaymentSummary *workflow.PaymentSummary `json:"payment_summary"`
	Allowed        []workflow.Action        `json:"allowed_actions"`
}

func (s *ProjectService) Overview(ctx context.Context, actor workflow.Actor, id int64) (*Overview, error) {
	p, err := loadMember(ctx, s.store, id, actor, false)
	if err != nil {
		return nil, err
	}
	snap, err := loadSnapshot(ctx, s.store, p)
	if err != nil {
		return nil, err
	}
	proofs, err := s.store.Payments().ListByProject(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Project:        visible(p, actor),
		Requirements:   snap.Requirements,
		Contract:       snap.Contract,
		Tasks:          snap.Tasks,
		Payments:       proofs,
		PaymentSummary: workflow.Summarize(p, snap.Contract, proofs),
		Allowed:        workflow.Allowed(snap, actor),
	}
	if ov.Requirements == nil {
		ov.Requirements = []*model.Requirement{}
	}
	if ov.Tasks == nil {
		ov.Tasks = []*model.Task{}
	}
	if ov.Payments == nil {
		ov.Payments = []*model.PaymentProof{}
	}
	if ov.Allowed == nil {
		ov.Allowed = []workflow.Action{}
	}
	return ov, nil
}
