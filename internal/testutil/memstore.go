// Package testutil 提供 repository.Store 与 objectstore.ImageStore 的内存实现，供各层测试使用。
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
)

// OutboxRecord 是一次 Events().Append 调用
type OutboxRecord struct {
	AggregateType string
	AggregateID   int64
	RoutingKey    string
	Payload       any
}

type memData struct {
	nextID        int64
	users         map[int64]model.User
	projects      map[int64]model.Project
	requirements  map[int64]model.Requirement
	contracts     map[int64]model.Contract
	tasks         map[int64]model.Task
	proofs        map[int64]model.PaymentProof
	notifications map[int64]model.Notification
	outbox        []OutboxRecord
}

func newMemData() *memData {
	return &memData{
		users:         map[int64]model.User{},
		projects:      map[int64]model.Project{},
		requirements:  map[int64]model.Requirement{},
		contracts:     map[int64]model.Contract{},
		tasks:         map[int64]model.Task{},
		proofs:        map[int64]model.PaymentProof{},
		notifications: map[int64]model.Notification{},
	}
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		nextID:        d.nextID,
		users:         cloneMap(d.users),
		projects:      cloneMap(d.projects),
		requirements:  cloneMap(d.requirements),
		contracts:     cloneMap(d.contracts),
		tasks:         cloneMap(d.tasks),
		proofs:        cloneMap(d.proofs),
		notifications: cloneMap(d.notifications),
		outbox:        append([]OutboxRecord(nil), d.outbox...),
	}
}

func (d *memData) id() int64 {
	d.nextID++
	return d.nextID
}

// MemStore 是 repository.Store 的内存实现。WithTx 在副本上执行，成功才替换，
// 因此失败的事务不会留下任何写入。
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *memData
	now  func() time.Time

	// PingErr 由 Ping 返回
	PingErr error
}

var _ repository.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{data: newMemData(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemStore) repos() memRepos { return memRepos{store: s} }

func (s *MemStore) Users() repository.UserRepo                 { return s.repos() }
func (s *MemStore) Projects() repository.ProjectRepo           { return memProjects{s.repos()} }
func (s *MemStore) Requirements() repository.RequirementRepo   { return memRequirements{s.repos()} }
func (s *MemStore) Contracts() repository.ContractRepo         { return memContracts{s.repos()} }
func (s *MemStore) Tasks() repository.TaskRepo                 { return memTasks{s.repos()} }
func (s *MemStore) Payments() repository.PaymentProofRepo      { return memProofs{s.repos()} }
func (s *MemStore) Notifications() repository.NotificationRepo { return memNotifications{s.repos()} }
func (s *MemStore) Events() repository.EventWriter             { return memEvents{s.repos()} }

func (s *MemStore) Ping(context.Context) error { return s.PingErr }

func (s *MemStore) WithTx(ctx context.Context, name string, fn func(repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.data.clone()
	s.mu.Unlock()

	if err := fn(txRepos{memRepos{store: s, tx: work}}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

// Outbox 返回已提交的 outbox 记录
func (s *MemStore) Outbox() []OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutboxRecord(nil), s.data.outbox...)
}

// ProjectEvents 返回 routing key 为 key 的已提交事件
func (s *MemStore) ProjectEvents(key string) []mqcontracts.ProjectEvent {
	var out []mqcontracts.ProjectEvent
	for _, rec := range s.Outbox() {
		if rec.RoutingKey != key {
			continue
		}
		if ev, ok := rec.Payload.(mqcontracts.ProjectEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

type memRepos struct {
	store *MemStore
	tx    *memData
}

func (r memRepos) with(fn func(d *memData) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.data)
}

func (r memRepos) now() time.Time { return r.store.now() }

type txRepos struct{ r memRepos }

func (t txRepos) Users() repository.UserRepo                 { return t.r }
func (t txRepos) Projects() repository.ProjectRepo           { return memProjects{t.r} }
func (t txRepos) Requirements() repository.RequirementRepo   { return memRequirements{t.r} }
func (t txRepos) Contracts() repository.ContractRepo         { return memContracts{t.r} }
func (t txRepos) Tasks() repository.TaskRepo                 { return memTasks{t.r} }
func (t txRepos) Payments() repository.PaymentProofRepo      { return memProofs{t.r} }
func (t txRepos) Notifications() repository.NotificationRepo { return memNotifications{t.r} }
func (t txRepos) Events() repository.EventWriter             { return memEvents{t.r} }

// users

func (r memRepos) Create(_ context.Context, u *model.User) error {
	return r.with(func(d *memData) error {
		for _, existing := range d.users {
			if existing.Email == u.Email {
				return fmt.Errorf("%w: users_email_key", repository.ErrConflict)
			}
		}
		u.ID = d.id()
		u.CreatedAt = r.now()
		d.users[u.ID] = *u
		return nil
	})
}

func (r memRepos) FindByID(_ context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := r.with(func(d *memData) error {
		u, ok := d.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r memRepos) FindByEmail(_ context.Context, email string) (*model.User, error) {
	var out *model.User
	err := r.with(func(d *memData) error {
		for _, u := range d.users {
			if u.Email == email {
				u := u
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

// projects

type memProjects struct{ memRepos }

func (r memProjects) Create(_ context.Context, p *model.Project) error {
	return r.with(func(d *memData) error {
		for _, existing := range d.projects {
			if existing.InviteCode == p.InviteCode {
				return fmt.Errorf("%w: projects_invite_code_key", repository.ErrConflict)
			}
		}
		p.ID = d.id()
		p.CreatedAt = r.now()
		p.UpdatedAt = p.CreatedAt
		d.projects[p.ID] = *p
		return nil
	})
}

func (r memProjects) FindByID(_ context.Context, id int64) (*model.Project, error) {
	var out *model.Project
	err := r.with(func(d *memData) error {
		p, ok := d.projects[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r memProjects) FindByIDForUpdate(ctx context.Context, id int64) (*model.Project, error) {
	return r.FindByID(ctx, id)
}

func (r memProjects) FindByInviteCodeForUpdate(_ context.Context, code string) (*model.Project, error) {
	var out *model.Project
	err := r.with(func(d *memData) error {
		for _, p := range d.projects {
			if p.InviteCode == code {
				p := p
				out = &p
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memProjects) ListByMember(_ context.Context, userID int64) ([]*model.Project, error) {
	var out []*model.Project
	err := r.with(func(d *memData) error {
		for _, p := range d.projects {
			if p.IsMember(userID) {
				p := p
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r memProjects) Update(_ context.Context, p *model.Project) error {
	return r.with(func(d *memData) error {
		if _, ok := d.projects[p.ID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range d.projects {
			if existing.ID != p.ID && existing.InviteCode == p.InviteCode {
				return fmt.Errorf("%w: projects_invite_code_key", repository.ErrConflict)
			}
		}
		p.UpdatedAt = r.now()
		d.projects[p.ID] = *p
		return nil
	})
}

func (r memProjects) Delete(_ context.Context, id int64) error {
	return r.with(func(d *memData) error {
		if _, ok := d.projects[id]; !ok {
			return repository.ErrNotFound
		}
		delete(d.projects, id)
		for k, v := range d.requirements {
			if v.ProjectID == id {
				delete(d.requirements, k)
			}
		}
		for k, v := range d.contracts {
			if v.ProjectID == id {
				delete(d.contracts, k)
			}
		}
		for k, v := range d.tasks {
			if v.ProjectID == id {
				delete(d.tasks, k)
			}
		}
		for k, v := range d.proofs {
			if v.ProjectID == id {
				delete(d.proofs, k)
			}
		}
		return nil
	})
}

// requirements

type memRequirements struct{ memRepos }

func (r memRequirements) Create(_ context.Context, req *model.Requirement) error {
	return r.with(func(d *memData) error {
		if _, ok := d.projects[req.ProjectID]; !ok {
			return fmt.Errorf("%w: requirements_project_id_fkey", repository.ErrConflict)
		}
		req.ID = d.id()
		req.CreatedAt = r.now()
		req.UpdatedAt = req.CreatedAt
		d.requirements[req.ID] = *req
		return nil
	})
}

func (r memRequirements) FindByID(_ context.Context, id int64) (*model.Requirement, error) {
	var out *model.Requirement
	err := r.with(func(d *memData) error {
		req, ok := d.requirements[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r memRequirements) ListByProject(_ context.Context, projectID int64) ([]*model.Requirement, error) {
	var out []*model.Requirement
	err := r.with(func(d *memData) error {
		for _, req := range d.requirements {
			if req.ProjectID == projectID {
				req := req
				out = append(out, &req)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r memRequirements) Update(_ context.Context, req *model.Requirement) error {
	return r.with(func(d *memData) error {
		if _, ok := d.requirements[req.ID]; !ok {
			return repository.ErrNotFound
		}
		req.UpdatedAt = r.now()
		d.requirements[req.ID] = *req
		return nil
	})
}

func (r memRequirements) Delete(_ context.Context, id int64) error {
	return r.with(func(d *memData) error {
		if _, ok := d.requirements[id]; !ok {
			return repository.ErrNotFound
		}
		for _, t := range d.tasks {
			if t.RequirementID == id {
				return fmt.Errorf("%w: tasks_requirement_id_fkey", repository.ErrConflict)
			}
		}
		delete(d.requirements, id)
		return nil
	})
}

// contracts

type memContracts struct{ memRepos }

func (r memContracts) Create(_ context.Context, c *model.Contract) error {
	return r.with(func(d *memData) error {
		for _, existing := range d.contracts {
			if existing.ProjectID == c.ProjectID {
				return fmt.Errorf("%w: contracts_project_id_key", repository.ErrConflict)
			}
		}
		c.ID = d.id()
		c.CreatedAt = r.now()
		c.UpdatedAt = c.CreatedAt
		d.contracts[c.ID] = *c
		return nil
	})
}

func (r memContracts) FindByProject(_ context.Context, projectID int64) (*model.Contract, error) {
	var out *model.Contract
	err := r.with(func(d *memData) error {
		for _, c := range d.contracts {
			if c.ProjectID == projectID {
				c := c
				out = &c
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memContracts) Update(_ context.Context, c *model.Contract) error {
	return r.with(func(d *memData) error {
		if _, ok := d.contracts[c.ID]; !ok {
			return repository.ErrNotFound
		}
		c.UpdatedAt = r.now()
		d.contracts[c.ID] = *c
		return nil
	})
}

// tasks

type memTasks struct{ memRepos }

func (r memTasks) CreateBatch(_ context.Context, tasks []*model.Task) error {
	return r.with(func(d *memData) error {
		for _, t := range tasks {
			for _, existing := range d.tasks {
				if existing.RequirementID == t.RequirementID {
					return fmt.Errorf("%w: tasks_requirement_id_key", repository.ErrConflict)
				}
			}
			t.ID = d.id()
			t.CreatedAt = r.now()
			t.UpdatedAt = t.CreatedAt
			d.tasks[t.ID] = *t
		}
		return nil
	})
}

func (r memTasks) FindByID(_ context.Context, id int64) (*model.Task, error) {
	var out *model.Task
	err := r.with(func(d *memData) error {
		t, ok := d.tasks[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r memTasks) ListByProject(_ context.Context, projectID int64) ([]*model.Task, error) {
	var out []*model.Task
	err := r.with(func(d *memData) error {
		for _, t := range d.tasks {
			if t.ProjectID == projectID {
				t := t
				out = append(out, &t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r memTasks) Update(_ context.Context, t *model.Task) error {
	return r.with(func(d *memData) error {
		if _, ok := d.tasks[t.ID]; !ok {
			return repository.ErrNotFound
		}
		t.UpdatedAt = r.now()
		d.tasks[t.ID] = *t
		return nil
	})
}

// payment proofs

type memProofs struct{ memRepos }

func (r memProofs) Create(_ context.Context, p *model.PaymentProof) error {
	return r.with(func(d *memData) error {
		if p.Status == model.PaymentPending {
			for _, existing := range d.proofs {
				if existing.ProjectID == p.ProjectID && existing.Status == model.PaymentPending {
					return fmt.Errorf("%w: uq_payment_proofs_pending", repository.ErrConflict)
				}
			}
		}
		p.ID = d.id()
		p.CreatedAt = r.now()
		d.proofs[p.ID] = *p
		return nil
	})
}

func (r memProofs) FindByID(_ context.Context, id int64) (*model.PaymentProof, error) {
	var out *model.PaymentProof
	err := r.with(func(d *memData) error {
		p, ok := d.proofs[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r memProofs) FindPending(_ context.Context, projectID int64) (*model.PaymentProof, error) {
	var out *model.PaymentProof
	err := r.with(func(d *memData) error {
		for _, p := range d.proofs {
			if p.ProjectID == projectID && p.Status == model.PaymentPending {
				p := p
				out = &p
			}
		}
		return nil
	})
	return out, err
}

func (r memProofs) ListByProject(_ context.Context, projectID int64) ([]*model.PaymentProof, error) {
	var out []*model.PaymentProof
	err := r.with(func(d *memData) error {
		for _, p := range d.proofs {
			if p.ProjectID == projectID {
				p := p
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r memProofs) Update(_ context.Context, p *model.PaymentProof) error {
	return r.with(func(d *memData) error {
		if _, ok := d.proofs[p.ID]; !ok {
			return repository.ErrNotFound
		}
		d.proofs[p.ID] = *p
		return nil
	})
}

// notifications

type memNotifications struct{ memRepos }

func (r memNotifications) Create(_ context.Context, n *model.Notification) (bool, error) {
	created := false
	err := r.with(func(d *memData) error {
		for _, existing := range d.notifications {
			if existing.UserID == n.UserID && existing.EventID == n.EventID {
				return nil
			}
		}
		n.ID = d.id()
		n.CreatedAt = r.now()
		d.notifications[n.ID] = *n
		created = true
		return nil
	})
	return created, err
}

func (r memNotifications) ListByUser(_ context.Context, userID int64, unreadOnly bool, limit int) ([]*model.Notification, error) {
	var out []*model.Notification
	err := r.with(func(d *memData) error {
		for _, n := range d.notifications {
			if n.UserID == userID && (!unreadOnly || !n.Read) {
				n := n
				out = append(out, &n)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r memNotifications) MarkRead(_ context.Context, userID, id int64) error {
	return r.with(func(d *memData) error {
		n, ok := d.notifications[id]
		if !ok || n.UserID != userID {
			return repository.ErrNotFound
		}
		n.Read = true
		d.notifications[id] = n
		return nil
	})
}

// events

type memEvents struct{ memRepos }

func (r memEvents) Append(_ context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	return r.with(func(d *memData) error {
		d.outbox = append(d.outbox, OutboxRecord{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			RoutingKey:    routingKey,
			Payload:       payload,
		})
		return nil
	})
}
