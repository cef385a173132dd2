package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/workflow"
	"mochimo/pkg/logger"
	"mochimo/pkg/metrics"
	"mochimo/pkg/otel"
	"mochimo/pkg/rbac"
)

// actionPermissions 每个流转动作需要的角色权限
var actionPermissions = map[workflow.Action]string{
	workflow.SubmitScope:     rbac.PermissionManageScope,
	workflow.ApproveScope:    rbac.PermissionReviewScope,
	workflow.RejectScope:     rbac.PermissionReviewScope,
	workflow.ApproveContract: rbac.PermissionReviewContract,
	workflow.VerifyPayment:   rbac.PermissionVerifyPayment,
	workflow.CompleteProject: rbac.PermissionManageProject,
}

// Lifecycle 执行项目状态流转：锁定项目、加载快照、Decide、应用副作用、写事件，全部在一个事务内
type Lifecycle struct {
	store  repository.Store
	logger *zap.Logger
}

func NewLifecycle(store repository.Store, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{store: store, logger: logger}
}

// TransitionResult 是一次成功流转后的项目与决策
type TransitionResult struct {
	Project  *model.Project
	Decision workflow.Decision
	Tasks    []*model.Task // 本次生成的任务
}

// check 在 Decide 之前对快照做额外校验（例如确认被审核的凭证就是当前待审核的那一个）
type check func(s workflow.Snapshot) error

func (l *Lifecycle) Transition(ctx context.Context, projectID int64, actor workflow.Actor, action workflow.Action, extra check) (*TransitionResult, error) {
	ctx, span := otel.StartSpan(ctx, "lifecycle."+string(action))
	span.SetAttributes(
		attribute.Int64("project.id", projectID),
		attribute.Int64("actor.id", actor.UserID),
		attribute.String("actor.role", string(actor.Role)),
	)
	var err error
	defer func() { otel.EndSpan(span, err) }()

	log := logger.WithTrace(ctx, l.logger).With(
		zap.Int64("project_id", projectID),
		zap.Int64("actor_id", actor.UserID),
		zap.String("action", string(action)),
	)

	var res *TransitionResult
	err = l.store.WithTx(ctx, "transition", func(r repository.Repos) error {
		p, err := loadMember(ctx, r, projectID, actor, true)
		if err != nil {
			return err
		}
		if perm, ok := actionPermissions[action]; ok {
			if err := authorize(actor, perm); err != nil {
				return err
			}
		}
		s, err := loadSnapshot(ctx, r, p)
		if err != nil {
			return err
		}
		if extra != nil {
			if err := extra(s); err != nil {
				return err
			}
		}

		d, err := workflow.Decide(s, action, actor)
		if err != nil {
			return err
		}

		res, err = l.apply(ctx, r, s, d, actor)
		return err
	})
	if err != nil {
		metrics.RecordTransitionRejected(string(action), workflow.Reason(err))
		log.Info("Transition rejected", zap.Error(err))
		return nil, err
	}

	metrics.RecordTransition(string(res.Decision.From), string(res.Decision.To), string(action))
	if n := len(res.Tasks); n > 0 {
		metrics.AddTaskGeneration("requirement", n)
	}
	span.SetAttributes(
		attribute.String("project.status.from", string(res.Decision.From)),
		attribute.String("project.status.to", string(res.Decision.To)),
	)
	res.Project = visible(res.Project, actor)
	log.Info("Project transitioned",
		zap.String("from", string(res.Decision.From)),
		zap.String("to", string(res.Decision.To)),
		zap.Int("tasks_generated", len(res.Tasks)),
	)
	return res, nil
}

// apply 按 Decision 的 Effects 修改并保存实体
func (l *Lifecycle) apply(ctx context.Context, r repository.Repos, s workflow.Snapshot, d workflow.Decision, actor workflow.Actor) (*TransitionResult, error) {
	p := s.Project
	ts := now()
	res := &TransitionResult{Project: p, Decision: d}

	if d.Has(workflow.EffectApproveContract) {
		s.Contract.Status = model.ContractApproved
		s.Contract.ApprovedAt = &ts
		if err := r.Contracts().Update(ctx, s.Contract); err != nil {
			return nil, fmt.Errorf("approve contract: %w", err)
		}
	}
	if d.Has(workflow.EffectSetPaymentMode) {
		mode := d.PaymentMode
		p.PaymentMode = &mode
	}
	if d.Has(workflow.EffectApproveProof) {
		s.PendingProof.Status = model.PaymentApproved
		s.PendingProof.ReviewedAt = &ts
		if err := r.Payments().Update(ctx, s.PendingProof); err != nil {
			return nil, fmt.Errorf("approve payment proof: %w", err)
		}
	}
	if d.Has(workflow.EffectSetStartedAt) {
		p.StartedAt = &ts
	}
	if d.Has(workflow.EffectSetCompletedAt) {
		p.CompletedAt = &ts
	}

	p.Status = d.To
	if err := r.Projects().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	if d.Has(workflow.EffectGenerateTasks) {
		tasks := workflow.PlanTasks(p.ID, s.Requirements, s.Tasks)
		if len(tasks) > 0 {
			if err := r.Tasks().CreateBatch(ctx, tasks); err != nil {
				return nil, fmt.Errorf("generate tasks: %w", err)
			}
			ids := make([]int64, 0, len(tasks))
			for _, t := range tasks {
				ids = append(ids, t.ID)
			}
			if err := emit(ctx, r, p, actor.UserID, mqcontracts.TaskGenerated, mqcontracts.ProjectEvent{
				TaskIDs: ids,
				Message: fmt.Sprintf("%d tasks were generated for %q", len(tasks), p.Title),
			}); err != nil {
				return nil, err
			}
		}
		res.Tasks = tasks
	}

	if d.Has(workflow.EffectApproveProof) {
		if err := emit(ctx, r, p, actor.UserID, mqcontracts.PaymentProofReviewed, mqcontracts.ProjectEvent{
			ProofID: s.PendingProof.ID,
			Stage:   string(s.PendingProof.Stage),
			Amount:  s.PendingProof.Amount,
			Status:  string(model.PaymentApproved),
			Message: fmt.Sprintf("Your %s payment for %q was verified", s.PendingProof.Stage, p.Title),
		}); err != nil {
			return nil, err
		}
	}

	if err := emit(ctx, r, p, actor.UserID, mqcontracts.ProjectStatusChanged, mqcontracts.ProjectEvent{
		Action:     string(d.Action),
		FromStatus: string(d.From),
		ToStatus:   string(d.To),
		Message:    fmt.Sprintf("Project %q moved from %s to %s", p.Title, d.From, d.To),
	}); err != nil {
		return nil, err
	}
	return res, nil
}
