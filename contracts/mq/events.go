package mq

import "time"

// 生命周期事件的 routing key（exchange: events）
const (
	ProjectCreated            = "project.created"
	ProjectJoined             = "project.joined"
	ProjectStatusChanged      = "project.status_changed"
	RequirementReviewed       = "requirement.reviewed"
	ContractSubmitted         = "contract.submitted"
	ContractRevisionRequested = "contract.revision_requested"
	TaskGenerated             = "task.generated"
	TaskStatusChanged         = "task.status_changed"
	PaymentProofUploaded      = "payment.proof_uploaded"
	PaymentProofReviewed      = "payment.proof_reviewed"
)

// RoutingKeys 列出全部事件，worker 用它绑定队列
var RoutingKeys = []string{
	ProjectCreated,
	ProjectJoined,
	ProjectStatusChanged,
	RequirementReviewed,
	ContractSubmitted,
	ContractRevisionRequested,
	TaskGenerated,
	TaskStatusChanged,
	PaymentProofUploaded,
	PaymentProofReviewed,
}

// ProjectEvent 是所有生命周期事件共用的 payload
// Recipients 由发布方计算（项目成员中除操作者之外的人）
type ProjectEvent struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	ProjectID    int64     `json:"project_id"`
	ProjectTitle string    `json:"project_title"`
	ActorID      int64     `json:"actor_id"`
	Recipients   []int64   `json:"recipients"`
	Message      string    `json:"message"`
	OccurredAt   time.Time `json:"occurred_at"`
	TraceID      string    `json:"trace_id,omitempty"`

	Action     string `json:"action,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`

	RequirementID int64   `json:"requirement_id,omitempty"`
	TaskID        int64   `json:"task_id,omitempty"`
	TaskIDs       []int64 `json:"task_ids,omitempty"`
	ProofID       int64   `json:"proof_id,omitempty"`
	Stage         string  `json:"stage,omitempty"`
	Amount        int64   `json:"amount,omitempty"`
	Status        string  `json:"status,omitempty"`
	Note          string  `json:"note,omitempty"`
}
