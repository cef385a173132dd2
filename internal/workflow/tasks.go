package workflow

import (
	"sort"

	"mochimo/internal/model"
)

// PlanTasks 为每个已批准且尚无任务的需求生成一个 TODO 任务，按需求 id 排序
func PlanTasks(projectID int64, reqs []*model.Requirement, existing []*model.Task) []*model.Task {
	covered := make(map[int64]bool, len(existing))
	for _, t := range existing {
		covered[t.RequirementID] = true
	}

	approved := make([]*model.Requirement, 0, len(reqs))
	for _, r := range reqs {
		if r.Status == model.RequirementApproved && !covered[r.ID] {
			approved = append(approved, r)
		}
	}
	sort.Slice(approved, func(i, j int) bool { return approved[i].ID < approved[j].ID })

	tasks := make([]*model.Task, 0, len(approved))
	for _, r := range approved {
		tasks = append(tasks, &model.Task{
			ProjectID:     projectID,
			RequirementID: r.ID,
			Title:         r.Title,
			Description:   r.Description,
			Status:        model.TaskTodo,
		})
	}
	return tasks
}
