package db

import (
	"context"
	"fmt"

	"gigmarket/internal/reconcile"
	"gigmarket/internal/repository"
	"gigmarket/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var taskColumns = []string{
	"title", "description", "budget", "total_amount", "remaining_amount", "currency", "bid_type",
	"bid_deadline", "task_deadline", "acceptance_criteria", "exit_criteria", "job_type", "experience_level",
	"communication_deadline", "communication_type", "status", "progress", "is_completed", "is_accepted",
	"is_worker_accepted", "is_fully_paid", "is_sub_contractors_only", "is_origin_organization",
	"origin_organization_id", "is_post_approved", "is_post_rejected", "post_approved_by", "post_approved_on",
	"is_worker_organization", "worker_organization_id", "assignee_id", "manager_id", "task_owner_id",
}

var (
	insertTaskQuery = namedInsert("task", columns(taskColumns, auditInsertColumns))
	updateTaskQuery = namedUpdate("task", columns(taskColumns, auditUpdateColumns))

	markTaskAcceptedQuery = `
        UPDATE task
        SET is_accepted = TRUE, status = :status, assignee_id = :assignee_id,
            total_amount = :total_amount, remaining_amount = :remaining_amount,
            is_worker_organization = :is_worker_organization, worker_organization_id = :worker_organization_id,
            updated_by = :updated_by, updated_on = :updated_on
        WHERE id = :id AND is_accepted = FALSE AND is_delete = FALSE`
)

func (s *Storage) CreateTask(ctx context.Context, t *models.Task) error {
	id, err := insertReturning(ctx, s.q, insertTaskQuery, t)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	return nil
}

func (s *Storage) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	t := &models.Task{}
	query := `SELECT * FROM task WHERE id = $1 AND ` + alive("")
	if err := get(ctx, s.q, t, query, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Storage) LockTask(ctx context.Context, id int64) (*models.Task, error) {
	t := &models.Task{}
	query := `SELECT * FROM task WHERE id = $1 AND ` + alive("") + ` FOR UPDATE`
	if err := get(ctx, s.q, t, query, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Storage) UpdateTask(ctx context.Context, t *models.Task) error {
	if err := execNamed(ctx, s.q, updateTaskQuery, t); err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return nil
}

func (s *Storage) MarkTaskAccepted(ctx context.Context, t *models.Task) (bool, error) {
	res, err := sqlx.NamedExecContext(ctx, s.q, markTaskAcceptedQuery, t)
	if err != nil {
		return false, fmt.Errorf("accept task %d: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func taskWhere(f models.TaskFilter) *where {
	w := &where{}
	w.add(alive("t"))

	if f.FindTask {
		w.add("t.is_accepted = FALSE")
		w.add("t.is_completed = FALSE")
		w.add("t.is_post_approved = TRUE")
		w.add("t.is_post_rejected = FALSE")
		w.add("t.bid_deadline >= %s", f.Now)
		w.add("(t.created_by IS NULL OR t.created_by <> %s)", f.Viewer)
		if f.ViewerOrg != nil {
			w.add("(t.origin_organization_id IS NULL OR t.origin_organization_id <> %s)", *f.ViewerOrg)
			w.add(`(t.is_sub_contractors_only = FALSE OR EXISTS (
                SELECT 1 FROM task_sub_organization so WHERE so.task_id = t.id AND so.organization_id = %s))`, *f.ViewerOrg)
		} else {
			w.add(`(t.is_sub_contractors_only = FALSE OR EXISTS (
                SELECT 1 FROM task_sub_contractor sc WHERE sc.task_id = t.id AND sc.user_id = %s))`, f.Viewer)
		}
	}

	if f.OriginOrganizationID != nil {
		w.add("t.origin_organization_id = %s", *f.OriginOrganizationID)
	}
	if f.CreatedBy != nil {
		w.add("t.created_by = %s", *f.CreatedBy)
	}
	if f.WorkerOrganizationID != nil {
		w.add("t.worker_organization_id = %s", *f.WorkerOrganizationID)
	}
	if f.AssigneeID != nil {
		w.add("t.assignee_id = %s", *f.AssigneeID)
	}
	if f.ManagerID != nil {
		w.add("t.manager_id = %s", *f.ManagerID)
	}
	if f.OnlyAccepted {
		w.add("t.is_accepted = TRUE")
	}

	switch f.Bucket {
	case models.BucketPending:
		w.add("t.is_accepted = FALSE")
	case models.BucketInProgress:
		w.add("t.is_accepted = TRUE AND t.is_completed = FALSE")
	case models.BucketCompleted:
		w.add("t.is_completed = TRUE")
	}

	if f.Keyword != "" {
		w.titleLike("t.title", f.Keyword)
	}
	if f.JobType != "" {
		w.add("t.job_type = %s", f.JobType)
	}
	if f.ExperienceLevel != "" {
		w.add("t.experience_level = %s", f.ExperienceLevel)
	}

	bidCount := "(SELECT COUNT(*) FROM bid b WHERE b.task_id = t.id AND " + alive("b") + ")"
	if f.MinBids != nil {
		w.add(bidCount+" >= %s", *f.MinBids)
	}
	if f.MaxBids != nil {
		w.add(bidCount+" <= %s", *f.MaxBids)
	}
	if f.IsPostApproved != nil {
		w.add("t.is_post_approved = %s", *f.IsPostApproved)
	}
	if f.IsPostRejected != nil {
		w.add("t.is_post_rejected = %s", *f.IsPostRejected)
	}
	if f.ManagerAssigned != nil {
		if *f.ManagerAssigned {
			w.add("t.manager_id IS NOT NULL")
		} else {
			w.add("t.manager_id IS NULL")
		}
	}
	if f.AssigneeAssigned != nil {
		if *f.AssigneeAssigned {
			w.add("t.assignee_id IS NOT NULL")
		} else {
			w.add("t.assignee_id IS NULL")
		}
	}
	return w
}

// ListTasks возвращает страницу задач (новые первыми) и общее число подходящих
func (s *Storage) ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, int, error) {
	w := taskWhere(f)

	var total int
	if err := get(ctx, s.q, &total, `SELECT COUNT(*) FROM task t WHERE `+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	limit, args := w.page(f.Limit, f.Offset())
	query := `SELECT t.* FROM task t WHERE ` + w.String() + ` ORDER BY t.id DESC` + limit
	var tasks []models.Task
	if err := sqlx.SelectContext(ctx, s.q, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

// replaceLinks заменяет набор связей задачи в таблице-связке
func (s *Storage) replaceLinks(ctx context.Context, table, column string, taskID int64, ids []int64) error {
	if _, err := s.q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id = $1`, table), taskID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (task_id, %s) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, table, column)
	if _, err := s.q.ExecContext(ctx, query, taskID, pq.Array(ids)); err != nil {
		return fmt.Errorf("fill %s: %w", table, mapErr(err))
	}
	return nil
}

func (s *Storage) links(ctx context.Context, table, column string, taskID int64) ([]int64, error) {
	var ids []int64
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE task_id = $1 ORDER BY %s`, column, table, column)
	if err := sqlx.SelectContext(ctx, s.q, &ids, query, taskID); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return ids, nil
}

func (s *Storage) SetTaskSkills(ctx context.Context, taskID int64, skillIDs []int64) error {
	return s.replaceLinks(ctx, "task_skill", "skill_id", taskID, skillIDs)
}

func (s *Storage) TaskSkills(ctx context.Context, taskID int64) ([]models.Skill, error) {
	var skills []models.Skill
	query := `
        SELECT sk.id, sk.skill FROM skill sk
        JOIN task_skill ts ON ts.skill_id = sk.id
        WHERE ts.task_id = $1 ORDER BY sk.id`
	if err := sqlx.SelectContext(ctx, s.q, &skills, query, taskID); err != nil {
		return nil, fmt.Errorf("task skills: %w", err)
	}
	return skills, nil
}

func (s *Storage) SetTaskSubContractors(ctx context.Context, taskID int64, userIDs []int64) error {
	return s.replaceLinks(ctx, "task_sub_contractor", "user_id", taskID, userIDs)
}

func (s *Storage) TaskSubContractors(ctx context.Context, taskID int64) ([]int64, error) {
	return s.links(ctx, "task_sub_contractor", "user_id", taskID)
}

func (s *Storage) SetTaskSubOrganizations(ctx context.Context, taskID int64, orgIDs []int64) error {
	return s.replaceLinks(ctx, "task_sub_organization", "organization_id", taskID, orgIDs)
}

func (s *Storage) TaskSubOrganizations(ctx context.Context, taskID int64) ([]int64, error) {
	return s.links(ctx, "task_sub_organization", "organization_id", taskID)
}

func (s *Storage) BidStats(ctx context.Context, taskID int64) (models.BidStats, error) {
	var st models.BidStats
	query := `
        SELECT COUNT(*) AS bid_count, MIN(amount) AS min_bid_value, MAX(amount) AS max_bid_value
        FROM bid WHERE task_id = $1 AND ` + alive("")
	if err := get(ctx, s.q, &st, query, taskID); err != nil {
		return st, fmt.Errorf("bid stats: %w", err)
	}
	return st, nil
}

func (s *Storage) Attachments() reconcile.Store[models.Attachment] {
	return &childTable[models.Attachment]{
		q:         s.q,
		table:     "attachment",
		parentCol: "task_id",
		insert:    namedInsert("attachment", columns([]string{"task_id", "file", "name"}, auditInsertColumns)),
		update:    namedUpdate("attachment", columns([]string{"file", "name"}, auditUpdateColumns)),
		setID:     func(a *models.Attachment, id int64) { a.ID = id },
	}
}

var _ repository.TaskRepository = (*Storage)(nil)
