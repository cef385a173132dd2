package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/testutil"
	"mochimo/internal/workflow"
	"mochimo/pkg/objectstore"
)

type fixture struct {
	ctx      context.Context
	store    *testutil.MemStore
	images   *testutil.FakeImageStore
	projects *ProjectService
	reqs     *RequirementService
	contract *ContractService
	tasks    *TaskService
	payments *PaymentService
	notes    *NotificationService

	freelancer workflow.Actor
	client     workflow.Actor
	outsider   workflow.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewMemStore()
	images := &testutil.FakeImageStore{}
	log := zap.NewNop()
	lc := NewLifecycle(store, log)

	f := &fixture{
		ctx:      context.Background(),
		store:    store,
		images:   images,
		projects: NewProjectService(store, lc, log),
		reqs:     NewRequirementService(store, log),
		contract: NewContractService(store, lc, log),
		tasks:    NewTaskService(store, images, log),
		payments: NewPaymentService(store, lc, images, log),
		notes:    NewNotificationService(store.Notifications(), log),
	}
	f.freelancer = f.user(t, "fay@example.com", model.RoleFreelancer)
	f.client = f.user(t, "carl@example.com", model.RoleClient)
	f.outsider = f.user(t, "otto@example.com", model.RoleClient)
	return f
}

func (f *fixture) user(t *testing.T, email string, role model.Role) workflow.Actor {
	t.Helper()
	u := &model.User{Email: email, Name: email, PasswordHash: "x", Role: role}
	require.NoError(t, f.store.Users().Create(f.ctx, u))
	return workflow.Actor{UserID: u.ID, Role: role}
}

// scopedProject 创建项目、client 加入、添加需求
func (f *fixture) scopedProject(t *testing.T, titles ...string) (*model.Project, []*model.Requirement) {
	t.Helper()
	p, err := f.projects.Create(f.ctx, f.freelancer, "Website", "Marketing site")
	require.NoError(t, err)
	_, err = f.projects.Join(f.ctx, f.client, p.InviteCode)
	require.NoError(t, err)

	var reqs []*model.Requirement
	for _, title := range titles {
		r, err := f.reqs.Add(f.ctx, f.freelancer, p.ID, title, title+" details")
		require.NoError(t, err)
		reqs = append(reqs, r)
	}
	return p, reqs
}

// approvedProject 推进到 APPROVED 并提交合同
func (f *fixture) approvedProject(t *testing.T, mode model.PaymentMode, price int64) *model.Project {
	t.Helper()
	p, reqs := f.scopedProject(t, "Landing page", "Contact form")
	_, err := f.projects.SubmitScope(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	for _, r := range reqs {
		_, err := f.reqs.Approve(f.ctx, f.client, r.ID, "")
		require.NoError(t, err)
	}
	_, err = f.projects.ApproveScope(f.ctx, f.client, p.ID)
	require.NoError(t, err)

	_, err = f.contract.Draft(f.ctx, f.freelancer, p.ID, DraftInput{Price: price, Currency: "usd", PaymentMode: mode})
	require.NoError(t, err)
	_, err = f.contract.Submit(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	return p
}

func (f *fixture) finishTasks(t *testing.T, projectID int64) {
	t.Helper()
	tasks, err := f.tasks.List(f.ctx, f.freelancer, projectID)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	for _, task := range tasks {
		_, err := f.tasks.UpdateStatus(f.ctx, f.freelancer, task.ID, model.TaskInProgress)
		require.NoError(t, err)
		_, err = f.tasks.UpdateStatus(f.ctx, f.freelancer, task.ID, model.TaskDone)
		require.NoError(t, err)
	}
}

func (f *fixture) pay(t *testing.T, projectID int64) *TransitionResult {
	t.Helper()
	proof, err := f.payments.UploadProof(f.ctx, f.client, projectID, testutil.PNG())
	require.NoError(t, err)
	res, err := f.payments.Verify(f.ctx, f.freelancer, proof.ID)
	require.NoError(t, err)
	return res
}

func TestLifecycle_Upfront(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentUpfront, 100000)

	res, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPayment, res.Project.Status)
	require.NotNil(t, res.Project.PaymentMode)
	assert.Equal(t, model.PaymentUpfront, *res.Project.PaymentMode)
	assert.Empty(t, res.Tasks, "no tasks before the initial payment")

	proof, err := f.payments.UploadProof(f.ctx, f.client, p.ID, testutil.PNG())
	require.NoError(t, err)
	assert.Equal(t, model.StageInitial, proof.Stage)
	assert.Equal(t, int64(100000), proof.Amount)
	assert.Equal(t, model.PaymentPending, proof.Status)

	res, err = f.payments.Verify(f.ctx, f.freelancer, proof.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectInProgress, res.Project.Status)
	assert.NotNil(t, res.Project.StartedAt)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "Landing page", res.Tasks[0].Title)
	assert.Equal(t, model.TaskTodo, res.Tasks[0].Status)

	f.finishTasks(t, p.ID)
	done, err := f.projects.Complete(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	generated := f.store.ProjectEvents(mqcontracts.TaskGenerated)
	require.Len(t, generated, 1)
	assert.Len(t, generated[0].TaskIDs, 2)
	assert.Equal(t, []int64{f.client.UserID}, generated[0].Recipients)

	sum, err := f.payments.Summary(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Outstanding)
}

func TestLifecycle_HalfUpfront(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentHalfUpfront, 1001)

	res, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPayment, res.Project.Status)

	first, err := f.payments.UploadProof(f.ctx, f.client, p.ID, testutil.PNG())
	require.NoError(t, err)
	assert.Equal(t, int64(500), first.Amount)
	_, err = f.payments.Verify(f.ctx, f.freelancer, first.ID)
	require.NoError(t, err)

	f.finishTasks(t, p.ID)
	back, err := f.projects.Complete(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPayment, back.Status)

	final, err := f.payments.UploadProof(f.ctx, f.client, p.ID, testutil.PNG())
	require.NoError(t, err)
	assert.Equal(t, model.StageFinal, final.Stage)
	assert.Equal(t, int64(501), final.Amount)

	res, err = f.payments.Verify(f.ctx, f.freelancer, final.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectCompleted, res.Project.Status)
	assert.Empty(t, res.Tasks)

	tasks, err := f.tasks.List(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2, "verifying the final payment must not generate more tasks")
}

func TestLifecycle_OnFinish(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentOnFinish, 2000)

	res, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectInProgress, res.Project.Status)
	assert.Len(t, res.Tasks, 2)

	_, err = f.payments.UploadProof(f.ctx, f.client, p.ID, testutil.PNG())
	assert.ErrorIs(t, err, ErrGuard, "nothing to pay while work is in progress")

	f.finishTasks(t, p.ID)
	back, err := f.projects.Complete(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPayment, back.Status)

	res = f.pay(t, p.ID)
	assert.Equal(t, model.ProjectCompleted, res.Project.Status)

	proofs, err := f.payments.List(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	assert.Equal(t, model.StageFinal, proofs[0].Stage)
	assert.Equal(t, int64(2000), proofs[0].Amount)
}

func TestScopeRejectionRoundTrip(t *testing.T) {
	f := newFixture(t)
	p, reqs := f.scopedProject(t, "Logo", "Brand book")
	_, err := f.projects.SubmitScope(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)

	_, err = f.reqs.Reject(f.ctx, f.client, reqs[1].ID, "  ")
	assert.ErrorIs(t, err, ErrGuard, "rejection needs a note")

	_, err = f.reqs.Approve(f.ctx, f.client, reqs[0].ID, "")
	require.NoError(t, err)
	rejected, err := f.reqs.Reject(f.ctx, f.client, reqs[1].ID, "too vague")
	require.NoError(t, err)
	assert.Equal(t, model.RequirementRejected, rejected.Status)

	_, err = f.projects.ApproveScope(f.ctx, f.client, p.ID)
	assert.ErrorIs(t, err, ErrGuard)

	back, err := f.projects.RejectScope(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPending, back.Status)

	_, err = f.projects.SubmitScope(f.ctx, f.freelancer, p.ID)
	assert.ErrorIs(t, err, ErrGuard, "rejected requirement blocks resubmission")

	edited, err := f.reqs.Update(f.ctx, f.freelancer, reqs[1].ID, "Brand book", "12 pages, print ready")
	require.NoError(t, err)
	assert.Equal(t, model.RequirementProposed, edited.Status)
	assert.Empty(t, edited.ReviewNote)

	again, err := f.projects.SubmitScope(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectReview, again.Status)

	reviewed := f.store.ProjectEvents(mqcontracts.RequirementReviewed)
	require.Len(t, reviewed, 2)
	assert.Equal(t, "too vague", reviewed[1].Note)
	assert.Equal(t, []int64{f.freelancer.UserID}, reviewed[1].Recipients)
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	p, _ := f.scopedProject(t, "API")

	_, err := f.projects.ApproveScope(f.ctx, f.client, p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.projects.SubmitScope(f.ctx, f.client, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.projects.SubmitScope(f.ctx, f.outsider, p.ID)
	assert.ErrorIs(t, err, ErrNotFound, "non-members cannot learn the project exists")

	_, err = f.contract.Approve(f.ctx, f.client, p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.projects.Get(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPending, got.Status)
	assert.Empty(t, f.store.ProjectEvents(mqcontracts.ProjectStatusChanged))
}

func TestSubmitScopeNeedsClient(t *testing.T) {
	f := newFixture(t)
	p, err := f.projects.Create(f.ctx, f.freelancer, "Solo", "")
	require.NoError(t, err)
	_, err = f.reqs.Add(f.ctx, f.freelancer, p.ID, "Thing", "")
	require.NoError(t, err)

	_, err = f.projects.SubmitScope(f.ctx, f.freelancer, p.ID)
	assert.ErrorIs(t, err, ErrGuard)
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	p, err := f.projects.Create(f.ctx, f.freelancer, "Shop", "")
	require.NoError(t, err)
	require.Len(t, p.InviteCode, 10)

	_, err = f.projects.Create(f.ctx, f.client, "Nope", "")
	assert.ErrorIs(t, err, ErrForbidden, "clients cannot create projects")

	_, err = f.projects.Join(f.ctx, f.freelancer, p.InviteCode)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.projects.Join(f.ctx, f.client, "WRONGCODE1")
	assert.ErrorIs(t, err, ErrNotFound)

	joined, err := f.projects.Join(f.ctx, f.client, " "+p.InviteCode+" ")
	require.NoError(t, err)
	require.NotNil(t, joined.ClientID)
	assert.Equal(t, f.client.UserID, *joined.ClientID)
	assert.Empty(t, joined.InviteCode, "clients do not see the invite code")

	_, err = f.projects.Join(f.ctx, f.outsider, p.InviteCode)
	assert.ErrorIs(t, err, ErrGuard)

	_, err = f.projects.RegenerateInvite(f.ctx, f.freelancer, p.ID)
	assert.ErrorIs(t, err, ErrGuard)

	_, err = f.projects.Get(f.ctx, f.outsider, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := f.projects.List(f.ctx, f.client)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	joinedEvents := f.store.ProjectEvents(mqcontracts.ProjectJoined)
	require.Len(t, joinedEvents, 1)
	assert.Equal(t, []int64{f.freelancer.UserID}, joinedEvents[0].Recipients)
}

func TestRegenerateInvite(t *testing.T) {
	f := newFixture(t)
	p, err := f.projects.Create(f.ctx, f.freelancer, "Shop", "")
	require.NoError(t, err)

	updated, err := f.projects.RegenerateInvite(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, p.InviteCode, updated.InviteCode)

	_, err = f.projects.Join(f.ctx, f.client, p.InviteCode)
	assert.ErrorIs(t, err, ErrNotFound, "old code no longer works")
	_, err = f.projects.Join(f.ctx, f.client, updated.InviteCode)
	assert.NoError(t, err)
}

func TestUpdateAndDeleteProject(t *testing.T) {
	f := newFixture(t)
	p, _ := f.scopedProject(t, "One")

	title := "Renamed"
	updated, err := f.projects.Update(f.ctx, f.freelancer, p.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "Marketing site", updated.Description)

	empty := " "
	_, err = f.projects.Update(f.ctx, f.freelancer, p.ID, UpdateInput{Title: &empty})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.projects.Update(f.ctx, f.client, p.ID, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	require.Error(t, f.projects.Delete(f.ctx, f.client, p.ID))

	_, err = f.projects.SubmitScope(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.projects.Delete(f.ctx, f.freelancer, p.ID), ErrGuard)

	_, err = f.projects.RejectScope(f.ctx, f.client, p.ID)
	assert.ErrorIs(t, err, ErrGuard, "nothing was rejected")
}

func TestDeletePendingProject(t *testing.T) {
	f := newFixture(t)
	p, _ := f.scopedProject(t, "One")
	require.NoError(t, f.projects.Delete(f.ctx, f.freelancer, p.ID))

	_, err := f.projects.Get(f.ctx, f.freelancer, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	reqs, err := f.store.Requirements().ListByProject(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestRequirementEditingRules(t *testing.T) {
	f := newFixture(t)
	p, reqs := f.scopedProject(t, "One", "Two")

	_, err := f.reqs.Add(f.ctx, f.client, p.ID, "Client idea", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.reqs.Add(f.ctx, f.freelancer, p.ID, "", "")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.reqs.Delete(f.ctx, f.freelancer, reqs[1].ID))
	list, err := f.reqs.List(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.reqs.Approve(f.ctx, f.client, reqs[0].ID, "")
	assert.ErrorIs(t, err, ErrGuard, "review only happens in REVIEW")

	_, err = f.projects.SubmitScope(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	_, err = f.reqs.Add(f.ctx, f.freelancer, p.ID, "Late", "")
	assert.ErrorIs(t, err, ErrGuard)

	_, err = f.reqs.List(f.ctx, f.outsider, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContractDraftAndRevision(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentHalfUpfront, 150000)

	c, err := f.contract.Get(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContractSubmitted, c.Status)
	assert.Equal(t, "USD", c.Currency)
	assert.Contains(t, c.Body, "Landing page")
	assert.Contains(t, c.Body, "Contact form")
	assert.Contains(t, c.Body, "1500.00 USD")
	assert.Contains(t, c.Body, "Before work starts: 750.00 USD")

	_, err = f.contract.Draft(f.ctx, f.freelancer, p.ID, DraftInput{Price: 1, Currency: "USD", PaymentMode: model.PaymentUpfront})
	assert.ErrorIs(t, err, ErrGuard, "submitted contracts are frozen")

	_, err = f.contract.RequestRevision(f.ctx, f.client, p.ID, "")
	assert.ErrorIs(t, err, ErrGuard)

	revised, err := f.contract.RequestRevision(f.ctx, f.client, p.ID, "lower the price")
	require.NoError(t, err)
	assert.Equal(t, model.ContractRevision, revised.Status)

	redrafted, err := f.contract.Draft(f.ctx, f.freelancer, p.ID, DraftInput{Price: 120000, Currency: "USD", PaymentMode: model.PaymentUpfront})
	require.NoError(t, err)
	assert.Equal(t, model.ContractRevision, redrafted.Status)
	assert.Equal(t, int64(120000), redrafted.Price)
	assert.Contains(t, redrafted.Body, "1200.00 USD")

	resubmitted, err := f.contract.Submit(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContractSubmitted, resubmitted.Status)
	assert.Empty(t, resubmitted.RevisionNote)

	assert.Len(t, f.store.ProjectEvents(mqcontracts.ContractSubmitted), 2)
	assert.Len(t, f.store.ProjectEvents(mqcontracts.ContractRevisionRequested), 1)
}

func TestContractValidation(t *testing.T) {
	f := newFixture(t)
	p, _ := f.scopedProject(t, "One")

	_, err := f.contract.Draft(f.ctx, f.freelancer, p.ID, DraftInput{Price: 0, Currency: "USD", PaymentMode: model.PaymentUpfront})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.contract.Draft(f.ctx, f.freelancer, p.ID, DraftInput{Price: 10, Currency: "DOLLARS", PaymentMode: model.PaymentUpfront})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.contract.Draft(f.ctx, f.freelancer, p.ID, DraftInput{Price: 10, Currency: "USD", PaymentMode: "LATER"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.contract.Draft(f.ctx, f.freelancer, p.ID, DraftInput{Price: 10, Currency: "USD", PaymentMode: model.PaymentUpfront})
	assert.ErrorIs(t, err, ErrGuard, "contract waits for scope approval")

	_, err = f.contract.Get(f.ctx, f.freelancer, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentRejectAndRetry(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentUpfront, 5000)
	_, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)

	_, err = f.payments.UploadProof(f.ctx, f.freelancer, p.ID, testutil.PNG())
	assert.ErrorIs(t, err, ErrForbidden)

	proof, err := f.payments.UploadProof(f.ctx, f.client, p.ID, testutil.PNG())
	require.NoError(t, err)

	_, err = f.payments.UploadProof(f.ctx, f.client, p.ID, testutil.PNG())
	assert.ErrorIs(t, err, ErrGuard, "only one pending proof at a time")

	_, err = f.payments.RejectProof(f.ctx, f.freelancer, proof.ID, "")
	assert.ErrorIs(t, err, ErrGuard)

	rejected, err := f.payments.RejectProof(f.ctx, f.freelancer, proof.ID, "amount missing")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRejected, rejected.Status)

	got, err := f.projects.Get(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectPayment, got.Status)

	_, err = f.payments.Verify(f.ctx, f.freelancer, proof.ID)
	assert.ErrorIs(t, err, ErrGuard, "rejected proofs cannot be verified")

	res := f.pay(t, p.ID)
	assert.Equal(t, model.ProjectInProgress, res.Project.Status)
	assert.Len(t, f.images.Saved, 2)
	assert.Equal(t, "payments", f.images.Saved[0].Kind)
}

func TestUploadFailsWhenStorageUnavailable(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentUpfront, 5000)
	_, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)

	f.images.Err = objectstore.ErrUnavailable
	_, err = f.payments.UploadProof(f.ctx, f.client, p.ID, testutil.PNG())
	assert.ErrorIs(t, err, objectstore.ErrUnavailable)

	proofs, err := f.payments.List(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Empty(t, proofs)
}

func TestTaskUpdatesAndProof(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentOnFinish, 1000)
	_, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)

	tasks, err := f.tasks.List(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	task := tasks[0]

	_, err = f.tasks.UpdateStatus(f.ctx, f.freelancer, task.ID, model.TaskDone)
	assert.ErrorIs(t, err, ErrInvalidTransition, "TODO cannot jump to DONE")

	_, err = f.tasks.UpdateStatus(f.ctx, f.client, task.ID, model.TaskInProgress)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.tasks.UpdateStatus(f.ctx, f.freelancer, task.ID, model.TaskInProgress)
	require.NoError(t, err)
	done, err := f.tasks.UpdateStatus(f.ctx, f.freelancer, task.ID, model.TaskDone)
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)

	reopened, err := f.tasks.UpdateStatus(f.ctx, f.freelancer, task.ID, model.TaskInProgress)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)

	_, err = f.projects.Complete(f.ctx, f.freelancer, p.ID)
	assert.ErrorIs(t, err, ErrGuard, "all tasks must be done")

	withProof, err := f.tasks.AttachProof(f.ctx, f.freelancer, task.ID, testutil.PNG())
	require.NoError(t, err)
	assert.Equal(t, f.images.Saved[0].URL, withProof.ProofURL)
	assert.Equal(t, "tasks", f.images.Saved[0].Kind)

	_, err = f.tasks.AttachProof(f.ctx, f.outsider, task.ID, testutil.PNG())
	assert.ErrorIs(t, err, ErrNotFound)

	changed := f.store.ProjectEvents(mqcontracts.TaskStatusChanged)
	require.Len(t, changed, 3)
	assert.Equal(t, "DONE", changed[1].ToStatus)
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	p, _ := f.scopedProject(t, "One")

	ov, err := f.projects.Overview(f.ctx, f.freelancer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []workflow.Action{workflow.SubmitScope}, ov.Allowed)
	assert.Len(t, ov.Requirements, 1)
	assert.Nil(t, ov.Contract)
	assert.Nil(t, ov.PaymentSummary)
	assert.NotEmpty(t, ov.Project.InviteCode)

	clientView, err := f.projects.Overview(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	assert.Empty(t, clientView.Allowed)
	assert.Empty(t, clientView.Project.InviteCode)

	_, err = f.projects.Overview(f.ctx, f.outsider, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverviewPaymentSummary(t *testing.T) {
	f := newFixture(t)
	p := f.approvedProject(t, model.PaymentHalfUpfront, 1000)
	_, err := f.contract.Approve(f.ctx, f.client, p.ID)
	require.NoError(t, err)

	ov, err := f.projects.Overview(f.ctx, f.client, p.ID)
	require.NoError(t, err)
	require.NotNil(t, ov.PaymentSummary)
	assert.Equal(t, "INITIAL", ov.PaymentSummary.NextStage)
	assert.Equal(t, int64(1000), ov.PaymentSummary.Outstanding)
	require.Len(t, ov.PaymentSummary.Stages, 2)
	assert.Equal(t, int64(500), ov.PaymentSummary.Stages[0].Due)
}

func TestNotificationRecordIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ev := mqcontracts.ProjectEvent{
		EventID:    "evt-1",
		Type:       mqcontracts.ProjectJoined,
		ProjectID:  1,
		Recipients: []int64{f.freelancer.UserID, f.client.UserID},
		Message:    "hello",
	}

	n, err := f.notes.Record(f.ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.notes.Record(f.ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := f.notes.List(f.ctx, f.freelancer.UserID, true, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Message)
	assert.Equal(t, mqcontracts.ProjectJoined, list[0].Kind)

	require.NoError(t, f.notes.MarkRead(f.ctx, f.freelancer.UserID, list[0].ID))
	assert.ErrorIs(t, f.notes.MarkRead(f.ctx, f.client.UserID, list[0].ID), ErrNotFound)

	unread, err := f.notes.List(f.ctx, f.freelancer.UserID, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
