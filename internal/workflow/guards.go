package workflow

import (
	"fmt"
	"strings"

	"mochimo/internal/model"
)

func requireOwner(p *model.Project, actor Actor, op string) error {
	if !p.IsOwner(actor.UserID) {
		return fmt.Errorf("%w: only the project freelancer can %s", ErrForbidden, op)
	}
	return nil
}

func requireClient(p *model.Project, actor Actor, op string) error {
	if !p.IsClient(actor.UserID) {
		return fmt.Errorf("%w: only the project client can %s", ErrForbidden, op)
	}
	return nil
}

func requireStatus(p *model.Project, op string, allowed ...model.ProjectStatus) error {
	for _, s := range allowed {
		if p.Status == s {
			return nil
		}
	}
	return guardErr(op, "project is %s", p.Status)
}

// CanUpdateProject title/description 只能在 PENDING 或 REVIEW 时由 owner 修改
func CanUpdateProject(p *model.Project, actor Actor) error {
	if err := requireOwner(p, actor, "update the project"); err != nil {
		return err
	}
	return requireStatus(p, "update project", model.ProjectPending, model.ProjectReview)
}

func CanDeleteProject(p *model.Project, actor Actor) error {
	if err := requireOwner(p, actor, "delete the project"); err != nil {
		return err
	}
	return requireStatus(p, "delete project", model.ProjectPending)
}

// CanJoin client 通过邀请码加入尚无 client 的项目
func CanJoin(p *model.Project, actor Actor) error {
	if actor.Role != model.RoleClient {
		return fmt.Errorf("%w: only clients can join projects", ErrForbidden)
	}
	if p.IsOwner(actor.UserID) {
		return fmt.Errorf("%w: cannot join your own project", ErrForbidden)
	}
	if p.ClientID != nil {
		if *p.ClientID == actor.UserID {
			return guardErr("join", "already joined")
		}
		return guardErr("join", "project already has a client")
	}
	return nil
}

func CanRegenerateInvite(p *model.Project, actor Actor) error {
	if err := requireOwner(p, actor, "regenerate the invite code"); err != nil {
		return err
	}
	if p.ClientID != nil {
		return guardErr("regenerate invite", "a client has already joined")
	}
	return nil
}

// CanEditRequirements 覆盖新增、修改、删除
func CanEditRequirements(p *model.Project, actor Actor) error {
	if err := requireOwner(p, actor, "edit requirements"); err != nil {
		return err
	}
	return requireStatus(p, "edit requirements", model.ProjectPending)
}

// ApplyRequirementEdit 修改被拒绝的需求会重新变为 PROPOSED
func ApplyRequirementEdit(r *model.Requirement, title, description string) {
	r.Title = title
	r.Description = description
	if r.Status == model.RequirementRejected {
		r.Status = model.RequirementProposed
		r.ReviewNote = ""
	}
}

// ReviewRequirement 校验并应用 client 的审核结果；拒绝必须附带说明
func ReviewRequirement(p *model.Project, r *model.Requirement, actor Actor, approve bool, note string) error {
	if err := requireClient(p, actor, "review requirements"); err != nil {
		return err
	}
	if err := requireStatus(p, "review requirement", model.ProjectReview); err != nil {
		return err
	}
	note = strings.TrimSpace(note)
	if approve {
		r.Status = model.RequirementApproved
	} else {
		if note == "" {
			return guardErr("reject requirement", "a note is required")
		}
		r.Status = model.RequirementRejected
	}
	r.ReviewNote = note
	return nil
}

// CanDraftContract 新建或修改合同：APPROVED 状态下，合同不存在或处于 DRAFT/REVISION
func CanDraftContract(p *model.Project, c *model.Contract, actor Actor) error {
	if err := requireOwner(p, actor, "draft the contract"); err != nil {
		return err
	}
	if err := requireStatus(p, "draft contract", model.ProjectApproved); err != nil {
		return err
	}
	if c != nil && c.Status != model.ContractDraft && c.Status != model.ContractRevision {
		return guardErr("draft contract", "contract is %s", c.Status)
	}
	return nil
}

func ValidateContractTerms(price int64, currency string, mode model.PaymentMode) error {
	if price <= 0 {
		return guardErr("draft contract", "price must be positive")
	}
	if len(strings.TrimSpace(currency)) != 3 {
		return guardErr("draft contract", "currency must be a 3-letter code")
	}
	if !mode.Valid() {
		return guardErr("draft contract", "unknown payment mode %q", mode)
	}
	return nil
}

func CanSubmitContract(p *model.Project, c *model.Contract, actor Actor) error {
	if err := requireOwner(p, actor, "submit the contract"); err != nil {
		return err
	}
	if err := requireStatus(p, "submit contract", model.ProjectApproved); err != nil {
		return err
	}
	if c == nil {
		return guardErr("submit contract", "no contract drafted")
	}
	if c.Status != model.ContractDraft && c.Status != model.ContractRevision {
		return guardErr("submit contract", "contract is %s", c.Status)
	}
	return nil
}

func CanRequestRevision(p *model.Project, c *model.Contract, actor Actor, note string) error {
	if err := requireClient(p, actor, "request a contract revision"); err != nil {
		return err
	}
	if err := requireStatus(p, "request revision", model.ProjectApproved); err != nil {
		return err
	}
	if c == nil || c.Status != model.ContractSubmitted {
		return guardErr("request revision", "no submitted contract")
	}
	if strings.TrimSpace(note) == "" {
		return guardErr("request revision", "a note is required")
	}
	return nil
}

var taskMoves = map[model.TaskStatus][]model.TaskStatus{
	model.TaskTodo:       {model.TaskInProgress},
	model.TaskInProgress: {model.TaskDone, model.TaskTodo},
	model.TaskDone:       {model.TaskInProgress},
}

// CanUpdateTask 校验任务状态变化：TODO→INPROGRESS→DONE，允许回退一步
func CanUpdateTask(p *model.Project, t *model.Task, actor Actor, next model.TaskStatus) error {
	if err := requireOwner(p, actor, "update tasks"); err != nil {
		return err
	}
	if err := requireStatus(p, "update task", model.ProjectInProgress); err != nil {
		return err
	}
	if !next.Valid() {
		return guardErr("update task", "unknown status %q", next)
	}
	for _, allowed := range taskMoves[t.Status] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("%w: task cannot move from %s to %s", ErrInvalidTransition, t.Status, next)
}

func CanAttachTaskProof(p *model.Project, actor Actor) error {
	if err := requireOwner(p, actor, "attach task proofs"); err != nil {
		return err
	}
	return requireStatus(p, "attach task proof", model.ProjectInProgress)
}

// CanUploadPaymentProof 同一时间最多一个 PENDING 凭证
func CanUploadPaymentProof(p *model.Project, actor Actor, pending *model.PaymentProof) error {
	if err := requireClient(p, actor, "upload payment proofs"); err != nil {
		return err
	}
	if err := requireStatus(p, "upload payment proof", model.ProjectPayment); err != nil {
		return err
	}
	if pending != nil {
		return guardErr("upload payment proof", "proof %d is still awaiting review", pending.ID)
	}
	return nil
}

func CanRejectPaymentProof(p *model.Project, proof *model.PaymentProof, actor Actor, note string) error {
	if err := requireOwner(p, actor, "review payment proofs"); err != nil {
		return err
	}
	if err := requireStatus(p, "reject payment proof", model.ProjectPayment); err != nil {
		return err
	}
	if proof.Status != model.PaymentPending {
		return guardErr("reject payment proof", "proof is %s", proof.Status)
	}
	if strings.TrimSpace(note) == "" {
		return guardErr("reject payment proof", "a note is required")
	}
	return nil
}
