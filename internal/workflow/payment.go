package workflow

import "mochimo/internal/model"

// ExpectedStage 项目尚未开工时收取 INITIAL，否则收取 FINAL
func ExpectedStage(p *model.Project) model.PaymentStage {
	if p.StartedAt == nil {
		return model.StageInitial
	}
	return model.StageFinal
}

// AmountDue 计算某阶段应付金额；HALF_UPFRONT 首期向下取整，尾款补足
func AmountDue(price int64, mode model.PaymentMode, stage model.PaymentStage) int64 {
	switch mode {
	case model.PaymentUpfront:
		if stage == model.StageInitial {
			return price
		}
	case model.PaymentHalfUpfront:
		initial := price / 2
		if stage == model.StageInitial {
			return initial
		}
		return price - initial
	case model.PaymentOnFinish:
		if stage == model.StageFinal {
			return price
		}
	}
	return 0
}

type StageSummary struct {
	Stage  model.PaymentStage `json:"stage"`
	Due    int64              `json:"due"`
	Paid   bool               `json:"paid"`
	Status string             `json:"status"` // UNPAID / PENDING / APPROVED
}

type PaymentSummary struct {
	Mode        model.PaymentMode `json:"payment_mode"`
	Price       int64             `json:"price"`
	Currency    string            `json:"currency"`
	Stages      []StageSummary    `json:"stages"`
	Paid        int64             `json:"paid"`
	Outstanding int64             `json:"outstanding"`
	NextStage   string            `json:"next_stage,omitempty"`
}

// Summarize 汇总付款进度；合同未批准时返回 nil
func Summarize(p *model.Project, c *model.Contract, proofs []*model.PaymentProof) *PaymentSummary {
	if c == nil || c.Status != model.ContractApproved {
		return nil
	}
	sum := &PaymentSummary{Mode: c.PaymentMode, Price: c.Price, Currency: c.Currency}

	for _, stage := range []model.PaymentStage{model.StageInitial, model.StageFinal} {
		due := AmountDue(c.Price, c.PaymentMode, stage)
		if due == 0 {
			continue
		}
		st := StageSummary{Stage: stage, Due: due, Status: "UNPAID"}
		for _, proof := range proofs {
			if proof.Stage != stage {
				continue
			}
			switch proof.Status {
			case model.PaymentApproved:
				st.Paid = true
				st.Status = string(model.PaymentApproved)
			case model.PaymentPending:
				if !st.Paid {
					st.Status = string(model.PaymentPending)
				}
			}
		}
		if st.Paid {
			sum.Paid += due
		}
		sum.Stages = append(sum.Stages, st)
	}

	sum.Outstanding = sum.Price - sum.Paid
	if p.Status == model.ProjectPayment {
		sum.NextStage = string(ExpectedStage(p))
	}
	return sum
}
