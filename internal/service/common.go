package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/workflow"
	"mochimo/pkg/rbac"
	"mochimo/pkg/trace"
)

func now() time.Time { return time.Now().UTC() }

// loadMember 加载项目并确认 actor 是成员；非成员与不存在同样返回 ErrNotFound
func loadMember(ctx context.Context, r repository.Repos, projectID int64, actor workflow.Actor, lock bool) (*model.Project, error) {
	var (
		p   *model.Project
		err error
	)
	if lock {
		p, err = r.Projects().FindByIDForUpdate(ctx, projectID)
	} else {
		p, err = r.Projects().FindByID(ctx, projectID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
		}
		return nil, err
	}
	if !p.IsMember(actor.UserID) {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if err := authorize(actor, rbac.PermissionReadProject); err != nil {
		return nil, err
	}
	return p, nil
}

// authorize 检查角色权限。成员接口要在 loadMember 之后调用，非成员只会看到 ErrNotFound
func authorize(actor workflow.Actor, permission string) error {
	if err := rbac.CheckPermission(string(actor.Role), permission); err != nil {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	return nil
}

// notFoundAs 只把 ErrNotFound 改写成子资源的 not found，其它错误（数据库故障等）原样返回
func notFoundAs(err error, kind string, id int64) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return err
}

// findContract 项目没有合同时返回 nil, nil
func findContract(ctx context.Context, r repository.Repos, projectID int64) (*model.Contract, error) {
	c, err := r.Contracts().FindByProject(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func loadSnapshot(ctx context.Context, r repository.Repos, p *model.Project) (workflow.Snapshot, error) {
	s := workflow.Snapshot{Project: p}
	var err error
	if s.Requirements, err = r.Requirements().ListByProject(ctx, p.ID); err != nil {
		return s, fmt.Errorf("load requirements: %w", err)
	}
	if s.Contract, err = findContract(ctx, r, p.ID); err != nil {
		return s, fmt.Errorf("load contract: %w", err)
	}
	if s.Tasks, err = r.Tasks().ListByProject(ctx, p.ID); err != nil {
		return s, fmt.Errorf("load tasks: %w", err)
	}
	if s.PendingProof, err = r.Payments().FindPending(ctx, p.ID); err != nil {
		return s, fmt.Errorf("load pending proof: %w", err)
	}
	return s, nil
}

// recipients 返回项目成员中除 actor 以外的人
func recipients(p *model.Project, actorID int64) []int64 {
	var out []int64
	for _, id := range p.Members() {
		if id != actorID {
			out = append(out, id)
		}
	}
	return out
}

// emit 在当前事务中写入一个生命周期事件
func emit(ctx context.Context, r repository.Repos, p *model.Project, actorID int64, key string, ev mqcontracts.ProjectEvent) error {
	ev.EventID = uuid.NewString()
	ev.Type = key
	ev.ProjectID = p.ID
	ev.ProjectTitle = p.Title
	ev.ActorID = actorID
	ev.Recipients = recipients(p, actorID)
	ev.OccurredAt = now()
	ev.TraceID = trace.FromContext(ctx)
	if err := r.Events().Append(ctx, "project", p.ID, key, ev); err != nil {
		return fmt.Errorf("append %s event: %w", key, err)
	}
	return nil
}

func cleanText(s string, field string, max int, required bool) (string, error) {
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", validationErr("%s is required", field)
	}
	if len(s) > max {
		return "", validationErr("%s is longer than %d bytes", field, max)
	}
	return s, nil
}

func lower[S ~string](s S) string { return strings.ToLower(string(s)) }
