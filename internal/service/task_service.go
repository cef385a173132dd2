package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/workflow"
	"mochimo/pkg/objectstore"
	"mochimo/pkg/rbac"
)

type TaskService struct {
	store  repository.Store
	images objectstore.ImageStore
	logger *zap.Logger
}

func NewTaskService(store repository.Store, images objectstore.ImageStore, logger *zap.Logger) *TaskService {
	return &TaskService{store: store, images: images, logger: logger}
}

func (s *TaskService) List(ctx context.Context, actor workflow.Actor, projectID int64) ([]*model.Task, error) {
	if _, err := loadMember(ctx, s.store, projectID, actor, false); err != nil {
		return nil, err
	}
	return s.store.Tasks().ListByProject(ctx, projectID)
}

// withTask 加载任务及其项目并检查 task:update 权限。
// lock 时项目行锁之后重新读取任务，避免基于锁前的旧状态做判断
func withTask(ctx context.Context, r repository.Repos, id int64, actor workflow.Actor, lock bool) (*model.Project, *model.Task, error) {
	t, err := r.Tasks().FindByID(ctx, id)
	if err != nil {
		return nil, nil, notFoundAs(err, "task", id)
	}
	p, err := loadMember(ctx, r, t.ProjectID, actor, lock)
	if err != nil {
		return nil, nil, notFoundAs(err, "task", id)
	}
	if err := authorize(actor, rbac.PermissionUpdateTask); err != nil {
		return nil, nil, err
	}
	if lock {
		if t, err = r.Tasks().FindByID(ctx, id); err != nil {
			return nil, nil, notFoundAs(err, "task", id)
		}
	}
	return p, t, nil
}

func (s *TaskService) UpdateStatus(ctx context.Context, actor workflow.Actor, id int64, status model.TaskStatus) (*model.Task, error) {
	var out *model.Task
	err := s.store.WithTx(ctx, "task.update", func(r repository.Repos) error {
		p, t, err := withTask(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		if err := workflow.CanUpdateTask(p, t, actor, status); err != nil {
			return err
		}

		from := t.Status
		t.Status = status
		if status == model.TaskDone {
			ts := now()
			t.CompletedAt = &ts
		} else {
			t.CompletedAt = nil
		}
		if err := r.Tasks().Update(ctx, t); err != nil {
			return err
		}
		out = t
		return emit(ctx, r, p, actor.UserID, mqcontracts.TaskStatusChanged, mqcontracts.ProjectEvent{
			TaskID:     t.ID,
			FromStatus: string(from),
			ToStatus:   string(status),
			Message:    fmt.Sprintf("Task %q is now %s", t.Title, status),
		})
	})
	return out, err
}

// AttachProof 上传完成凭证。先在事务外校验并上传，再在事务内复核后写入 URL
func (s *TaskService) AttachProof(ctx context.Context, actor workflow.Actor, id int64, img objectstore.Image) (*model.Task, error) {
	p, _, err := withTask(ctx, s.store, id, actor, false)
	if err != nil {
		return nil, err
	}
	if err := workflow.CanAttachTaskProof(p, actor); err != nil {
		return nil, err
	}

	url, err := s.images.Save(ctx, "tasks", p.ID, img)
	if err != nil {
		return nil, err
	}

	var out *model.Task
	err = s.store.WithTx(ctx, "task.proof", func(r repository.Repos) error {
		p, t, err := withTask(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		if err := workflow.CanAttachTaskProof(p, actor); err != nil {
			return err
		}
		t.ProofURL = url
		if err := r.Tasks().Update(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		s.logger.Warn("Uploaded task proof was not attached",
			zap.Int64("task_id", id),
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}
