package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout - формат from_date/to_date у подзадач
const TimestampLayout = "2006-01-02 15:04:05"

type SubTask struct {
	ID          int64               `db:"id" json:"id"`
	TaskID      int64               `db:"task_id" json:"task_id"`
	Description string              `db:"description" json:"description"`
	FromDate    string              `db:"from_date" json:"from_date"`
	ToDate      string              `db:"to_date" json:"to_date"`
	TimeLogged  *float64            `db:"time_logged" json:"time_logged"`
	Amount      decimal.NullDecimal `db:"amount" json:"amount"`
	Revision    int                 `db:"revision" json:"revision"`
	IsCompleted bool                `db:"is_completed" json:"is_completed"`
	IsInvoiced  bool                `db:"is_invoiced" json:"is_invoiced"`
	IsPaid      bool                `db:"is_paid" json:"is_paid"`
	Audit
}

// LogTime пересчитывает отработанные часы. Если даты не разбираются, поле сбрасывается.
func (s *SubTask) LogTime() {
	from, errFrom := time.Parse(TimestampLayout, s.FromDate)
	to, errTo := time.Parse(TimestampLayout, s.ToDate)
	if errFrom != nil || errTo != nil {
		s.TimeLogged = nil
		return
	}
	hours := to.Sub(from).Hours()
	s.TimeLogged = &hours
}

type SubtaskFile struct {
	ID        int64  `db:"id" json:"id"`
	SubTaskID int64  `db:"sub_task_id" json:"sub_task_id"`
	File      string `db:"file" json:"file"`
	Name      string `db:"name" json:"name"`
	Audit
}

type Invoice struct {
	ID         int64           `db:"id" json:"id"`
	SubTaskID  int64           `db:"sub_task_id" json:"sub_task_id"`
	AssigneeID *int64          `db:"assignee_id" json:"assignee"`
	ClientID   *int64          `db:"client_id" json:"client"`
	File       string          `db:"file" json:"file"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	IsAccepted bool            `db:"is_accepted" json:"is_accepted"`
	IsRejected bool            `db:"is_rejected" json:"is_rejected"`
	IsPaid     bool            `db:"is_paid" json:"is_paid"`
	DatePaid   *time.Time      `db:"date_paid" json:"date_paid"`
	Audit
}
