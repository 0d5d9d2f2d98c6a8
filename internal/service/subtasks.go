package service

import (
	"context"
	"strings"

	"gigmarket/internal/apperr"
	"gigmarket/internal/authz"
	"gigmarket/internal/projection"
	"gigmarket/internal/reconcile"
	"gigmarket/internal/repository"
	"gigmarket/models"
)

const (
	msgInvoiceBothDecisions = "An invoice cannot be both accepted and rejected."
	msgSettle               = "Only the client or billing can settle invoices"
)

// settles: запрос меняет расчётные поля подзадачи или её счетов
func (in *SubTaskInput) settles() bool {
	if in.IsPaid != nil {
		return true
	}
	for _, it := range in.Invoices {
		f := it.Fields
		if f.IsAccepted != nil || f.IsRejected != nil || f.IsPaid != nil || f.DatePaid != nil {
			return true
		}
	}
	return false
}

// canSettle: заказчик, менеджер задач заказчика или бухгалтерия одной из сторон
func canSettle(actor *models.User, t *models.Task) bool {
	return canManageTask(actor, t) || (actor.HasRole(models.RoleBilling) && memberOf(actor, t))
}

func validateInvoiceItems(items []reconcile.Item[InvoiceFields], errs map[string]string) {
	for _, it := range items {
		if it.IsDelete {
			continue
		}
		f := it.Fields
		switch {
		case it.ID == nil && f.Amount == nil:
			errs["invoices"] = "Each new invoice requires an amount."
		case f.Amount != nil && f.Amount.IsNegative():
			errs["invoices"] = "Invoice amount cannot be negative."
		case f.IsAccepted != nil && f.IsRejected != nil && *f.IsAccepted && *f.IsRejected:
			errs["invoices"] = msgInvoiceBothDecisions
		default:
			continue
		}
		return
	}
}

// applySubTaskFields переносит поля подзадачи и пересчитывает отработанное время
func applySubTaskFields(st *models.SubTask, in *SubTaskInput, creating bool) (bool, error) {
	errs := map[string]string{}
	changed := false

	if creating && in.TaskID == nil {
		errs["task_id"] = msgRequired
	}
	for _, f := range []struct {
		name string
		src  *string
		dst  *string
	}{
		{"description", in.Description, &st.Description},
		{"from_date", in.FromDate, &st.FromDate},
		{"to_date", in.ToDate, &st.ToDate},
	} {
		if f.src == nil {
			if creating {
				errs[f.name] = msgRequired
			}
			continue
		}
		v := strings.TrimSpace(*f.src)
		if v == "" {
			errs[f.name] = msgBlank
			continue
		}
		changed = reconcile.Set(f.dst, &v) || changed
	}
	if in.Amount != nil {
		if in.Amount.IsNegative() {
			errs["amount"] = "Amount cannot be negative."
		} else if !st.Amount.Valid || !st.Amount.Decimal.Equal(*in.Amount) {
			st.Amount.Decimal, st.Amount.Valid = *in.Amount, true
			changed = true
		}
	}
	changed = reconcile.Set(&st.IsCompleted, in.IsCompleted) || changed
	changed = reconcile.Set(&st.IsPaid, in.IsPaid) || changed

	validateFileItems("files", in.Files, errs)
	validateInvoiceItems(in.Invoices, errs)
	if err := invalid(errs); err != nil {
		return false, err
	}
	st.LogTime()
	return changed, nil
}

func (s *Service) uploadSubTaskFiles(ctx context.Context, in *SubTaskInput) (*uploads, error) {
	files, err := s.upload(ctx, "subtask_files", fileRefs(in.Files))
	if err != nil {
		return nil, err
	}
	invoices, err := s.upload(ctx, "invoices", invoiceRefs(in.Invoices))
	if err != nil {
		files.discard(ctx)
		return nil, err
	}
	return files.merge(invoices), nil
}

// reconcileSubTaskChildren сводит файлы и счета; новые счета помечают подзадачу выставленной
func (s *Service) reconcileSubTaskChildren(ctx context.Context, tx repository.Repo, st *models.SubTask, t *models.Task, in *SubTaskInput, actorID int64) (bool, error) {
	now := s.now()
	files, err := reconcile.Apply(ctx, tx.SubtaskFiles(), subtaskFileBinding, st.ID, in.Files, actorID, now)
	if err != nil {
		return false, err
	}
	invoices, err := reconcile.Apply(ctx, tx.Invoices(), invoiceBinding(st.CreatedBy, t.CreatedBy), st.ID, in.Invoices, actorID, now)
	if err != nil {
		return false, err
	}
	if invoices.Created > 0 && !st.IsInvoiced {
		st.IsInvoiced = true
		return true, nil
	}
	return files.Changed() || invoices.Changed(), nil
}

// CreateSubTask фиксирует отработанный исполнителем отрезок по принятой задаче
func (s *Service) CreateSubTask(ctx context.Context, actor *models.User, in SubTaskInput) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	now := s.now()
	st := &models.SubTask{Audit: models.NewAudit(actor.ID, now)}
	if _, err := applySubTaskFields(st, &in, true); err != nil {
		return nil, err
	}

	up, err := s.uploadSubTaskFiles(ctx, &in)
	if err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx repository.Repo) error {
		t, err := s.loadTask(ctx, tx, *in.TaskID, true)
		if err != nil {
			return err
		}
		if t.IsCompleted {
			return apperr.Validation("Task has already been completed.")
		}
		if !t.IsAccepted {
			return apperr.Validation("Task has not been awarded yet.")
		}
		if !canWork(actor, t) {
			return apperr.Forbidden("Only the assigned worker can log subtasks")
		}
		if in.settles() && !canSettle(actor, t) {
			return apperr.Forbidden(msgSettle)
		}

		st.TaskID = t.ID
		if err := tx.CreateSubTask(ctx, st); err != nil {
			return err
		}
		changed, err := s.reconcileSubTaskChildren(ctx, tx, st, t, &in, actor.ID)
		if err != nil || !changed {
			return err
		}
		return tx.UpdateSubTask(ctx, st)
	})
	if err != nil {
		up.discard(ctx)
		return nil, wrap("create subtask", err)
	}
	view, err := s.subTaskView(ctx, s.store, st, projection.Full, projection.RoleOf(actor))
	return view, wrap("create subtask", err)
}

// lockSubTask читает подзадачу под блокировкой её задачи
func (s *Service) lockSubTask(ctx context.Context, tx repository.Repo, id int64) (*models.SubTask, *models.Task, error) {
	st, err := tx.GetSubTask(ctx, id)
	if err != nil {
		return nil, nil, found(err, "SubTask")
	}
	t, err := s.loadTask(ctx, tx, st.TaskID, true)
	if err != nil {
		return nil, nil, err
	}
	if st, err = tx.GetSubTask(ctx, id); err != nil {
		return nil, nil, found(err, "SubTask")
	}
	return st, t, nil
}

// UpdateSubTask меняет подзадачу и её счета; после завершения задачи изменения запрещены
func (s *Service) UpdateSubTask(ctx context.Context, actor *models.User, id int64, in SubTaskInput) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	in.TaskID = nil

	up, err := s.uploadSubTaskFiles(ctx, &in)
	if err != nil {
		return nil, err
	}
	var st *models.SubTask
	err = s.store.InTx(ctx, func(tx repository.Repo) error {
		sub, t, err := s.lockSubTask(ctx, tx, id)
		if err != nil {
			return err
		}
		st = sub
		if t.IsCompleted {
			return apperr.Validation("Task has already been completed.")
		}
		settling := in.settles()
		if settling && !canSettle(actor, t) {
			return apperr.Forbidden(msgSettle)
		}
		// бухгалтерия приходит только за расчётами
		if !canWork(actor, t) && !canManageTask(actor, t) && !settling {
			return apperr.Forbidden("You cannot modify this subtask")
		}

		changed, err := applySubTaskFields(sub, &in, false)
		if err != nil {
			return err
		}
		childChanged, err := s.reconcileSubTaskChildren(ctx, tx, sub, t, &in, actor.ID)
		if err != nil {
			return err
		}
		if changed {
			sub.Revision++
		}
		if !changed && !childChanged {
			return nil
		}
		sub.Touch(actor.ID, s.now())
		return tx.UpdateSubTask(ctx, sub)
	})
	if err != nil {
		up.discard(ctx)
		return nil, wrap("update subtask", err)
	}
	view, err := s.subTaskView(ctx, s.store, st, projection.Full, projection.RoleOf(actor))
	return view, wrap("update subtask", err)
}

func (s *Service) DeleteSubTask(ctx context.Context, actor *models.User, id int64) error {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return err
	}
	err := s.store.InTx(ctx, func(tx repository.Repo) error {
		st, t, err := s.lockSubTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.IsCompleted {
			return apperr.Validation("Task has already been completed.")
		}
		if !canWork(actor, t) {
			return apperr.Forbidden("You cannot delete this subtask")
		}
		st.Tombstone(actor.ID, s.now())
		return tx.UpdateSubTask(ctx, st)
	})
	return wrap("delete subtask", err)
}

func (s *Service) ListSubTasks(ctx context.Context, actor *models.User, taskID int64, summary bool, page models.Page) (Listing, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return Listing{}, err
	}
	t, err := s.loadTask(ctx, s.store, taskID, false)
	if err != nil {
		return Listing{}, err
	}
	if !canWork(actor, t) && !canManageTask(actor, t) && !authz.Permit(actor, authz.Billing) {
		return Listing{}, apperr.Forbidden("You cannot view subtasks of this task")
	}

	subs, total, err := s.store.ListSubTasks(ctx, t.ID, page)
	if err != nil {
		return Listing{}, wrap("list subtasks", err)
	}
	mode := projection.Full
	if summary {
		mode = projection.Summary
	}
	role := projection.RoleOf(actor)
	out := Listing{Data: make([]projection.Fields, 0, len(subs)), Count: total}
	for i := range subs {
		view, err := s.subTaskView(ctx, s.store, &subs[i], mode, role)
		if err != nil {
			return Listing{}, wrap("list subtasks", err)
		}
		out.Data = append(out.Data, view)
	}
	return out, nil
}

func (s *Service) subTaskView(ctx context.Context, repo repository.Repo, st *models.SubTask, mode projection.Mode, role projection.Role) (projection.Fields, error) {
	v := projection.Fields{
		"id":           st.ID,
		"task_id":      st.TaskID,
		"description":  st.Description,
		"from_date":    st.FromDate,
		"to_date":      st.ToDate,
		"time_logged":  st.TimeLogged,
		"amount":       st.Amount,
		"revision":     st.Revision,
		"is_completed": st.IsCompleted,
		"is_invoiced":  st.IsInvoiced,
		"is_paid":      st.IsPaid,
		"created_by":   st.CreatedBy,
		"created_on":   st.CreatedOn,
		"updated_on":   st.UpdatedOn,
	}
	if projection.Wants(projection.SubTask, mode, role, "files") {
		files, err := repo.SubtaskFiles().List(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		v["files"] = files
	}
	if projection.Wants(projection.SubTask, mode, role, "invoices") {
		invoices, err := repo.Invoices().List(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		v["invoices"] = invoices
	}
	return projection.Project(projection.SubTask, mode, role, v), nil
}
