package service

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"mochimo/internal/model"
	"mochimo/internal/workflow"
)

const contractTemplate = `SERVICE AGREEMENT

Project: {{ .Project.Title }}
{{- with .Project.Description }}
{{ . }}
{{- end }}

1. SCOPE OF WORK
{{- range $i, $r := .Requirements }}
  {{ inc $i }}. {{ $r.Title }}{{ with $r.Description }} - {{ . }}{{ end }}
{{- end }}

2. PRICE
  Total: {{ money .Contract.Price }} {{ .Contract.Currency }}

3. PAYMENT SCHEDULE ({{ .Contract.PaymentMode }})
{{- range .Schedule }}
  {{ .Label }}: {{ money .Amount }} {{ $.Contract.Currency }}
{{- end }}

4. DEADLINE
  {{ if .Contract.Deadline }}{{ date .Contract.Deadline }}{{ else }}No fixed deadline{{ end }}
{{- with .Contract.Terms }}

5. ADDITIONAL TERMS
{{ . }}
{{- end }}
`

var contractTmpl = template.Must(template.New("contract").Funcs(template.FuncMap{
	"inc":   func(i int) int { return i + 1 },
	"money": formatMinor,
	"date":  func(t *time.Time) string { return t.UTC().Format("2006-01-02") },
}).Parse(contractTemplate))

type scheduleLine struct {
	Label  string
	Amount int64
}

// formatMinor 以两位小数显示最小货币单位
func formatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// renderContract 生成合同正文；只列出已批准的需求
func renderContract(p *model.Project, reqs []*model.Requirement, c *model.Contract) (string, error) {
	approved := make([]*model.Requirement, 0, len(reqs))
	for _, r := range reqs {
		if r.Status == model.RequirementApproved {
			approved = append(approved, r)
		}
	}

	var schedule []scheduleLine
	if due := workflow.AmountDue(c.Price, c.PaymentMode, model.StageInitial); due > 0 {
		schedule = append(schedule, scheduleLine{Label: "Before work starts", Amount: due})
	}
	if due := workflow.AmountDue(c.Price, c.PaymentMode, model.StageFinal); due > 0 {
		schedule = append(schedule, scheduleLine{Label: "On completion", Amount: due})
	}

	var buf bytes.Buffer
	err := contractTmpl.Execute(&buf, map[string]any{
		"Project":      p,
		"Requirements": approved,
		"Contract":     c,
		"Schedule":     schedule,
	})
	if err != nil {
		return "", fmt.Errorf("render contract: %w", err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}
