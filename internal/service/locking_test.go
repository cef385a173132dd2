package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/testutil"
	"mochimo/pkg/rbac"
)

// lockHookStore 在每次 FindByIDForUpdate 拿锁之前调用 onLock，
// 用来模拟等锁期间其它事务已经提交的修改，或者数据库在拿锁时出错
type lockHookStore struct {
	*testutil.MemStore
	onLock func(r repository.Repos) error
}

func (s lockHookStore) WithTx(ctx context.Context, name string, fn func(repository.Repos) error) error {
	return s.MemStore.WithTx(ctx, name, func(r repository.Repos) error {
		return fn(lockHookRepos{Repos: r, onLock: s.onLock})
	})
}

type lockHookRepos struct {
	repository.Repos
	onLock func(r repository.Repos) error
}

func (r lockHookRepos) Projects() repository.ProjectRepo {
	return lockHookProjects{ProjectRepo: r.Repos.Projects(), repos: r.Repos, onLock: r.onLock}
}

type lockHookProjects struct {
	repository.ProjectRepo
	repos  repository.Repos
	onLock func(r repository.Repos) error
}

func (p lockHookProjects) FindByIDForUpdate(ctx context.Context, id int64) (*model.Project, error) {
	if p.onLock != nil {
		if err := p.onLock(p.repos); err != nil {
			return nil, err
		}
	}
	return p.ProjectRepo.FindByIDForUpdate(ctx, id)
}

// inProgressTask 返回一个 INPROGRESS 项目里已经开始的任务
func (f *fixture) inProgressTask(t *testing.T) (*model.Project, *model.Task) {
	t.Helper()
	p := f.approvedProject(t, model.PaymentOnFinish, 1000)
	_, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	tasks, err := f.tasks.List(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	task, err := f.tasks.UpdateStatus(f.ctx, f.freelancer, tasks[0].ID, model.TaskInProgress)
	require.NoError(t, err)
	return p, task
}

func TestStoreFailureIsNotReportedAsNotFound(t *testing.T) {
	f := newFixture(t)
	p, reqs := f.scopedProject(t, "One")
	_, task := f.inProgressTask(t)

	pay := f.approvedProject(t, model.PaymentUpfront, 5000)
	_, err := f.contract.Approve(f.ctx, f.client, pay.ID)
	require.NoError(t, err)
	proof, err := f.payments.UploadProof(f.ctx, f.client, pay.ID, testutil.PNG())
	require.NoError(t, err)

	reset := errors.New("connection reset by peer")
	broken := lockHookStore{MemStore: f.store, onLock: func(repository.Repos) error { return reset }}
	log := zap.NewNop()
	reqSvc := NewRequirementService(broken, log)
	taskSvc := NewTaskService(broken, f.images, log)
	paySvc := NewPaymentService(broken, NewLifecycle(broken, log), f.images, log)

	title := "Renamed"
	_, err = reqSvc.Update(f.ctx, f.freelancer, reqs[0].ID, title, "")
	assert.ErrorIs(t, err, reset)
	assert.NotErrorIs(t, err, ErrNotFound)

	err = reqSvc.Delete(f.ctx, f.freelancer, reqs[0].ID)
	assert.ErrorIs(t, err, reset)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = taskSvc.UpdateStatus(f.ctx, f.freelancer, task.ID, model.TaskDone)
	assert.ErrorIs(t, err, reset)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = paySvc.RejectProof(f.ctx, f.freelancer, proof.ID, "blurry")
	assert.ErrorIs(t, err, reset)
	assert.NotErrorIs(t, err, ErrNotFound)

	list, err := f.reqs.List(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "One", list[0].Title)
}

func TestTaskUpdateSeesStateCommittedWhileWaitingForLock(t *testing.T) {
	f := newFixture(t)
	_, task := f.inProgressTask(t)

	fired := false
	store := lockHookStore{MemStore: f.store, onLock: func(r repository.Repos) error {
		if fired {
			return nil
		}
		fired = true
		cur, err := r.Tasks().FindByID(context.Background(), task.ID)
		if err != nil {
			return err
		}
		cur.Status = model.TaskDone
		return r.Tasks().Update(context.Background(), cur)
	}}
	svc := NewTaskService(store, f.images, zap.NewNop())

	_, err := svc.UpdateStatus(f.ctx, f.freelancer, task.ID, model.TaskTodo)
	assert.ErrorIs(t, err, ErrInvalidTransition, "DONE cannot move back to TODO")
	assert.True(t, fired)

	got, err := f.store.Tasks().FindByID(f.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskInProgress, got.Status, "failed transaction leaves no writes")
}

func TestRejectProofSeesVerificationCommittedWhileWaitingForLock(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentUpfront, 5000)
	_, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	proof, err := f.payments.UploadProof(f.ctx, f.client, p.ID, testutil.PNG())
	require.NoError(t, err)

	store := lockHookStore{MemStore: f.store, onLock: func(r repository.Repos) error {
		cur, err := r.Payments().FindByID(context.Background(), proof.ID)
		if err != nil {
			return err
		}
		cur.Status = model.PaymentApproved
		return r.Payments().Update(context.Background(), cur)
	}}
	log := zap.NewNop()
	svc := NewPaymentService(store, NewLifecycle(store, log), f.images, log)

	_, err = svc.RejectProof(f.ctx, f.freelancer, proof.ID, "amount missing")
	assert.ErrorIs(t, err, ErrGuard)
}

func TestRolePermissionsCheckedAfterMembership(t *testing.T) {
	f := newFixture(t)
	p, reqs := f.scopedProject(t, "One")
	_, err := f.projects.SubmitScope(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)

	// client 的账号角色被改成 ADMIN 之后仍是项目成员，但只剩 project:read
	demoted := f.client
	demoted.Role = model.RoleAdmin

	got, err := f.projects.Get(f.ctx, demoted, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	var denied *rbac.PermissionDeniedError
	_, err = f.reqs.Approve(f.ctx, demoted, reqs[0].ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.PermissionReviewScope, denied.Permission)

	_, err = f.projects.RejectScope(f.ctx, demoted, p.ID)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.PermissionReviewScope, denied.Permission)

	_, err = f.contract.RequestRevision(f.ctx, demoted, p.ID, "cheaper")
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.PermissionReviewContract, denied.Permission)

	_, err = f.projects.Join(f.ctx, f.freelancer, p.InviteCode)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.PermissionJoinProject, denied.Permission)

	root := f.user(t, "root@example.com", model.RoleAdmin)
	_, err = f.reqs.Approve(f.ctx, root, reqs[0].ID, "")
	assert.ErrorIs(t, err, ErrNotFound, "non-members never see a permission error")
	_, err = f.projects.ApproveScope(f.ctx, root, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := f.reqs.List(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequirementProposed, list[0].Status)
}

func TestDraftChecksMembershipBeforeTerms(t *testing.T) {
	f := newFixture(t)
	p, _ := f.scopedProject(t, "One")

	_, err := f.contract.Draft(f.ctx, f.outsider, p.ID, DraftInput{Price: 0, Currency: "??", PaymentMode: "LATER"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)

	_, err = f.contract.Draft(f.ctx, f.client, p.ID, DraftInput{Price: 0, Currency: "??", PaymentMode: "LATER"})
	assert.ErrorIs(t, err, ErrForbidden)
}
