// Package workflow 是项目生命周期状态机：纯函数，不做任何 I/O。
// 调用方加载快照、调用 Decide，再按 Decision 持久化。
package workflow

import (
	"errors"
	"fmt"

	"mochimo/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrGuard             = errors.New("guard failed")
)

// GuardError 说明哪个前置条件不满足；errors.Is(err, ErrGuard) 为真
type GuardError struct {
	Op     string
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *GuardError) Unwrap() error { return ErrGuard }

func guardErr(op, format string, args ...any) error {
	return &GuardError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Reason 把错误归类为指标标签
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrGuard):
		return "guard"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}

type Action string

const (
	SubmitScope     Action = "SUBMIT_SCOPE"
	ApproveScope    Action = "APPROVE_SCOPE"
	RejectScope     Action = "REJECT_SCOPE"
	ApproveContract Action = "APPROVE_CONTRACT"
	VerifyPayment   Action = "VERIFY_PAYMENT"
	CompleteProject Action = "COMPLETE_PROJECT"
)

// Actor 发起操作的用户
type Actor struct {
	UserID int64
	Role   model.Role
}

// Snapshot 是 Decide 所需的全部状态；PendingProof 为当前唯一 PENDING 的付款凭证
type Snapshot struct {
	Project      *model.Project
	Requirements []*model.Requirement
	Contract     *model.Contract
	Tasks        []*model.Task
	PendingProof *model.PaymentProof
}

type Effect string

const (
	EffectApproveContract Effect = "APPROVE_CONTRACT"
	EffectSetPaymentMode  Effect = "SET_PAYMENT_MODE"
	EffectGenerateTasks   Effect = "GENERATE_TASKS"
	EffectSetStartedAt    Effect = "SET_STARTED_AT"
	EffectApproveProof    Effect = "APPROVE_PROOF"
	EffectSetCompletedAt  Effect = "SET_COMPLETED_AT"
)

// Decision 是一次合法流转的结果
type Decision struct {
	Action  Action
	From    model.ProjectStatus
	To      model.ProjectStatus
	Effects []Effect

	PaymentMode model.PaymentMode  // EffectSetPaymentMode
	Stage       model.PaymentStage // VerifyPayment 时被批准的阶段
}

func (d Decision) Has(e Effect) bool {
	for _, x := range d.Effects {
		if x == e {
			return true
		}
	}
	return false
}

type party int

const (
	partyOwner party = iota
	partyClient
)

type rule struct {
	from   model.ProjectStatus
	action Action
	role   model.Role
	party  party
	guard  func(s Snapshot) error
	next   func(s Snapshot) Decision
}

var rules = []rule{
	{
		from: model.ProjectPending, action: SubmitScope, role: model.RoleFreelancer, party: partyOwner,
		guard: func(s Snapshot) error {
			if s.Project.ClientID == nil {
				return guardErr("submit scope", "no client has joined the project")
			}
			if len(s.Requirements) == 0 {
				return guardErr("submit scope", "project has no requirements")
			}
			for _, r := range s.Requirements {
				if r.Status == model.RequirementRejected {
					return guardErr("submit scope", "requirement %d is still rejected", r.ID)
				}
			}
			return nil
		},
		next: to(model.ProjectReview),
	},
	{
		from: model.ProjectReview, action: ApproveScope, role: model.RoleClient, party: partyClient,
		guard: func(s Snapshot) error {
			if len(s.Requirements) == 0 {
				return guardErr("approve scope", "project has no requirements")
			}
			for _, r := range s.Requirements {
				if r.Status != model.RequirementApproved {
					return guardErr("approve scope", "requirement %d is %s", r.ID, r.Status)
				}
			}
			return nil
		},
		next: to(model.ProjectApproved),
	},
	{
		from: model.ProjectReview, action: RejectScope, role: model.RoleClient, party: partyClient,
		guard: func(s Snapshot) error {
			for _, r := range s.Requirements {
				if r.Status == model.RequirementRejected {
					return nil
				}
			}
			return guardErr("reject scope", "no requirement has been rejected")
		},
		next: to(model.ProjectPending),
	},
	{
		from: model.ProjectApproved, action: ApproveContract, role: model.RoleClient, party: partyClient,
		guard: func(s Snapshot) error {
			if s.Contract == nil {
				return guardErr("approve contract", "no contract drafted")
			}
			if s.Contract.Status != model.ContractSubmitted {
				return guardErr("approve contract", "contract is %s, not SUBMITTED", s.Contract.Status)
			}
			if !s.Contract.PaymentMode.Valid() {
				return guardErr("approve contract", "contract has invalid payment mode %q", s.Contract.PaymentMode)
			}
			return nil
		},
		next: func(s Snapshot) Decision {
			mode := s.Contract.PaymentMode
			d := Decision{
				Effects:     []Effect{EffectApproveContract, EffectSetPaymentMode},
				PaymentMode: mode,
			}
			if mode == model.PaymentOnFinish {
				d.To = model.ProjectInProgress
				d.Effects = append(d.Effects, EffectGenerateTasks, EffectSetStartedAt)
			} else {
				d.To = model.ProjectPayment
			}
			return d
		},
	},
	{
		from: model.ProjectPayment, action: VerifyPayment, role: model.RoleFreelancer, party: partyOwner,
		guard: func(s Snapshot) error {
			if s.PendingProof == nil {
				return guardErr("verify payment", "no pending payment proof")
			}
			if want := ExpectedStage(s.Project); s.PendingProof.Stage != want {
				return guardErr("verify payment", "pending proof is for %s stage, expected %s", s.PendingProof.Stage, want)
			}
			return nil
		},
		next: func(s Snapshot) Decision {
			d := Decision{Stage: s.PendingProof.Stage, Effects: []Effect{EffectApproveProof}}
			if d.Stage == model.StageInitial {
				d.To = model.ProjectInProgress
				d.Effects = append(d.Effects, EffectGenerateTasks, EffectSetStartedAt)
			} else {
				d.To = model.ProjectCompleted
				d.Effects = append(d.Effects, EffectSetCompletedAt)
			}
			return d
		},
	},
	{
		from: model.ProjectInProgress, action: CompleteProject, role: model.RoleFreelancer, party: partyOwner,
		guard: func(s Snapshot) error {
			if len(s.Tasks) == 0 {
				return guardErr("complete project", "project has no tasks")
			}
			for _, t := range s.Tasks {
				if t.Status != model.TaskDone {
					return guardErr("complete project", "task %d is %s", t.ID, t.Status)
				}
			}
			if s.Project.PaymentMode == nil {
				return guardErr("complete project", "project has no payment mode")
			}
			return nil
		},
		next: func(s Snapshot) Decision {
			if *s.Project.PaymentMode == model.PaymentUpfront {
				return Decision{To: model.ProjectCompleted, Effects: []Effect{EffectSetCompletedAt}}
			}
			return Decision{To: model.ProjectPayment}
		},
	},
}

func to(status model.ProjectStatus) func(Snapshot) Decision {
	return func(Snapshot) Decision { return Decision{To: status} }
}

func (r rule) permits(p *model.Project, actor Actor) bool {
	if actor.Role != r.role {
		return false
	}
	if r.party == partyOwner {
		return p.IsOwner(actor.UserID)
	}
	return p.IsClient(actor.UserID)
}

func lookup(status model.ProjectStatus, action Action) (rule, bool) {
	for _, r := range rules {
		if r.from == status && r.action == action {
			return r, true
		}
	}
	return rule{}, false
}

// Decide 对快照执行一次动作；不修改快照
func Decide(s Snapshot, action Action, actor Actor) (Decision, error) {
	if s.Project == nil {
		return Decision{}, fmt.Errorf("%w: no project", ErrInvalidTransition)
	}
	from := s.Project.Status

	r, ok := lookup(from, action)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s is not allowed while project is %s", ErrInvalidTransition, action, from)
	}
	if !r.permits(s.Project, actor) {
		return Decision{}, fmt.Errorf("%w: user %d cannot %s", ErrForbidden, actor.UserID, action)
	}
	if err := r.guard(s); err != nil {
		return Decision{}, err
	}

	d := r.next(s)
	d.Action = action
	d.From = from
	return d, nil
}

// Allowed 列出 actor 当前可以执行的动作（guard 通过的）
func Allowed(s Snapshot, actor Actor) []Action {
	if s.Project == nil {
		return nil
	}
	var actions []Action
	for _, r := range rules {
		if r.from != s.Project.Status || !r.permits(s.Project, actor) {
			continue
		}
		if r.guard(s) == nil {
			actions = append(actions, r.action)
		}
	}
	return actions
}
