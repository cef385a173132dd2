package model

// Role 用户角色，与 rbac 中的角色常量一致
type Role string

const (
	RoleFreelancer Role = "FREELANCER"
	RoleClient     Role = "CLIENT"
	RoleAdmin      Role = "ADMIN"
)

// ProjectStatus 项目生命周期状态
type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "PENDING"
	ProjectReview     ProjectStatus = "REVIEW"
	ProjectApproved   ProjectStatus = "APPROVED"
	ProjectPayment    ProjectStatus = "PAYMENT"
	ProjectInProgress ProjectStatus = "INPROGRESS"
	ProjectCompleted  ProjectStatus = "COMPLETED"
)

// PaymentMode 付款方式
type PaymentMode string

const (
	PaymentUpfront     PaymentMode = "UPFRONT"      // 开工前付清
	PaymentHalfUpfront PaymentMode = "HALF_UPFRONT" // 开工前一半，完工后一半
	PaymentOnFinish    PaymentMode = "ON_FINISH"    // 完工后付清
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentUpfront, PaymentHalfUpfront, PaymentOnFinish:
		return true
	}
	return false
}

type RequirementStatus string

const (
	RequirementProposed RequirementStatus = "PROPOSED"
	RequirementApproved RequirementStatus = "APPROVED"
	RequirementRejected RequirementStatus = "REJECTED"
)

type ContractStatus string

const (
	ContractDraft     ContractStatus = "DRAFT"
	ContractSubmitted ContractStatus = "SUBMITTED"
	ContractApproved  ContractStatus = "APPROVED"
	ContractRevision  ContractStatus = "REVISION"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "INPROGRESS"
	TaskDone       TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentRejected PaymentStatus = "REJECTED"
)

// PaymentStage 付款阶段：开工前 / 完工后
type PaymentStage string

const (
	StageInitial PaymentStage = "INITIAL"
	StageFinal   PaymentStage = "FINAL"
)
