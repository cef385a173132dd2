package model

import "time"

type Project struct {
	ID           int64         `json:"id"`
	FreelancerID int64         `json:"freelancer_id"`
	ClientID     *int64        `json:"client_id,omitempty"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	InviteCode   string        `json:"invite_code,omitempty"`
	Status       ProjectStatus `json:"status"`
	PaymentMode  *PaymentMode  `json:"payment_mode,omitempty"` // 合同批准后设置
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsOwner 判断用户是否为项目的 freelancer
func (p *Project) IsOwner(userID int64) bool {
	return p.FreelancerID == userID
}

// IsClient 判断用户是否为已加入的 client
func (p *Project) IsClient(userID int64) bool {
	return p.ClientID != nil && *p.ClientID == userID
}

func (p *Project) IsMember(userID int64) bool {
	return p.IsOwner(userID) || p.IsClient(userID)
}

// Members 返回项目成员 id，owner 在前
func (p *Project) Members() []int64 {
	members := []int64{p.FreelancerID}
	if p.ClientID != nil {
		members = append(members, *p.ClientID)
	}
	return members
}

type Requirement struct {
	ID          int64             `json:"id"`
	ProjectID   int64             `json:"project_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      RequirementStatus `json:"status"`
	ReviewNote  string            `json:"review_note,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type Contract struct {
	ID           int64          `json:"id"`
	ProjectID    int64          `json:"project_id"`
	Price        int64          `json:"price"` // 最小货币单位
	Currency     string         `json:"currency"`
	PaymentMode  PaymentMode    `json:"payment_mode"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	Terms        string         `json:"terms"`
	Body         string         `json:"body"`
	Status       ContractStatus `json:"status"`
	RevisionNote string         `json:"revision_note,omitempty"`
	SubmittedAt  *time.Time     `json:"submitted_at,omitempty"`
	ApprovedAt   *time.Time     `json:"approved_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Task struct {
	ID            int64      `json:"id"`
	ProjectID     int64      `json:"project_id"`
	RequirementID int64      `json:"requirement_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        TaskStatus `json:"status"`
	ProofURL      string     `json:"proof_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type PaymentProof struct {
	ID         int64         `json:"id"`
	ProjectID  int64         `json:"project_id"`
	ClientID   int64         `json:"client_id"`
	Stage      PaymentStage  `json:"stage"`
	Amount     int64         `json:"amount"`
	ImageURL   string        `json:"image_url"`
	Status     PaymentStatus `json:"status"`
	ReviewNote string        `json:"review_note,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ReviewedAt *time.Time    `json:"reviewed_at,omitempty"`
}

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProjectID int64     `json:"project_id"`
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
