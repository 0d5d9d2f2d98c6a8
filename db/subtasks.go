package db

import (
	"context"
	"fmt"

	"gigmarket/internal/reconcile"
	"gigmarket/internal/repository"
	"gigmarket/models"

	"github.com/jmoiron/sqlx"
)

var subTaskColumns = []string{
	"description", "from_date", "to_date", "time_logged", "amount", "revision",
	"is_completed", "is_invoiced", "is_paid",
}

var (
	insertSubTaskQuery = namedInsert("sub_task", columns([]string{"task_id"}, subTaskColumns, auditInsertColumns))
	updateSubTaskQuery = namedUpdate("sub_task", columns(subTaskColumns, auditUpdateColumns))
)

func (s *Storage) CreateSubTask(ctx context.Context, st *models.SubTask) error {
	id, err := insertReturning(ctx, s.q, insertSubTaskQuery, st)
	if err != nil {
		return fmt.Errorf("insert sub_task: %w", err)
	}
	st.ID = id
	return nil
}

func (s *Storage) GetSubTask(ctx context.Context, id int64) (*models.SubTask, error) {
	st := &models.SubTask{}
	query := `SELECT * FROM sub_task WHERE id = $1 AND ` + alive("")
	if err := get(ctx, s.q, st, query, id); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Storage) UpdateSubTask(ctx context.Context, st *models.SubTask) error {
	if err := execNamed(ctx, s.q, updateSubTaskQuery, st); err != nil {
		return fmt.Errorf("update sub_task %d: %w", st.ID, err)
	}
	return nil
}

func (s *Storage) ListSubTasks(ctx context.Context, taskID int64, p models.Page) ([]models.SubTask, int, error) {
	w := &where{}
	w.add(alive(""))
	w.add("task_id = %s", taskID)

	var total int
	if err := get(ctx, s.q, &total, `SELECT COUNT(*) FROM sub_task WHERE `+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count sub_tasks: %w", err)
	}
	limit, args := w.page(p.Limit, p.Offset())
	var out []models.SubTask
	if err := sqlx.SelectContext(ctx, s.q, &out, `SELECT * FROM sub_task WHERE `+w.String()+` ORDER BY id DESC`+limit, args...); err != nil {
		return nil, 0, fmt.Errorf("list sub_tasks: %w", err)
	}
	return out, total, nil
}

// CountOpenSubTasks считает живые незавершённые подзадачи
func (s *Storage) CountOpenSubTasks(ctx context.Context, taskID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM sub_task WHERE task_id = $1 AND is_completed = FALSE AND ` + alive("")
	if err := get(ctx, s.q, &n, query, taskID); err != nil {
		return 0, fmt.Errorf("count open sub_tasks: %w", err)
	}
	return n, nil
}

func (s *Storage) SubtaskFiles() reconcile.Store[models.SubtaskFile] {
	return &childTable[models.SubtaskFile]{
		q:         s.q,
		table:     "subtask_file",
		parentCol: "sub_task_id",
		insert:    namedInsert("subtask_file", columns([]string{"sub_task_id", "file", "name"}, auditInsertColumns)),
		update:    namedUpdate("subtask_file", columns([]string{"file", "name"}, auditUpdateColumns)),
		setID:     func(f *models.SubtaskFile, id int64) { f.ID = id },
	}
}

func (s *Storage) Invoices() reconcile.Store[models.Invoice] {
	cols := []string{"assignee_id", "client_id", "file", "amount", "is_accepted", "is_rejected", "is_paid", "date_paid"}
	return &childTable[models.Invoice]{
		q:         s.q,
		table:     "invoice",
		parentCol: "sub_task_id",
		insert:    namedInsert("invoice", columns([]string{"sub_task_id"}, cols, auditInsertColumns)),
		update:    namedUpdate("invoice", columns(cols, auditUpdateColumns)),
		setID:     func(inv *models.Invoice, id int64) { inv.ID = id },
	}
}

var _ repository.SubTaskRepository = (*Storage)(nil)
