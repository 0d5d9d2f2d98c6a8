package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"gigmarket/internal/apperr"
	"gigmarket/internal/authz"
	"gigmarket/internal/notify"
	"gigmarket/internal/projection"
	"gigmarket/internal/reconcile"
	"gigmarket/internal/repository"
	"gigmarket/models"
)

const (
	msgRequired = "This field is required."
	msgBlank    = "This field may not be blank."
	msgChoice   = "Not a valid choice."
)

var deadlineLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// applyTaskFields проверяет и переносит в задачу содержательные поля запроса
func applyTaskFields(t *models.Task, in *TaskInput, creating bool, now time.Time) error {
	errs := map[string]string{}

	text := func(field string, src, dst *string, required bool) {
		if src == nil {
			if creating && required {
				errs[field] = msgRequired
			}
			return
		}
		v := strings.TrimSpace(*src)
		if v == "" && required {
			errs[field] = msgBlank
			return
		}
		*dst = v
	}
	choice := func(field string, src, dst *string, allowed []string, required bool) {
		if src == nil {
			if creating && required {
				errs[field] = msgRequired
			}
			return
		}
		if !slices.Contains(allowed, *src) {
			errs[field] = msgChoice
			return
		}
		*dst = *src
	}
	deadline := func(field string, src *string, dst *time.Time) bool {
		if src == nil {
			if creating {
				errs[field] = msgRequired
			}
			return false
		}
		v, ok := parseTime(*src)
		if !ok {
			errs[field] = "Invalid date format."
			return false
		}
		if v.Before(now) {
			errs[field] = "Deadline cannot be in the past."
			return false
		}
		*dst = v
		return true
	}

	text("title", in.Title, &t.Title, true)
	text("description", in.Description, &t.Description, true)
	text("acceptance_criteria", in.AcceptanceCriteria, &t.AcceptanceCriteria, true)
	text("exit_criteria", in.ExitCriteria, &t.ExitCriteria, false)

	if in.Budget == nil {
		if creating {
			errs["budget"] = msgRequired
		}
	} else if in.Budget.IsNegative() {
		errs["budget"] = "Budget cannot be negative."
	} else {
		t.Budget = *in.Budget
	}

	choice("currency", in.Currency, &t.Currency, models.Currencies, true)
	choice("job_type", in.JobType, &t.JobType, models.JobTypes, true)
	choice("experience_level", in.ExperienceLevel, &t.ExperienceLevel, models.ExperienceLevels, true)
	choice("communication_type", in.CommunicationType, &t.CommunicationType, models.CommunicationType, false)

	if in.BidType == nil {
		if creating {
			errs["bid_type"] = msgRequired
		}
	} else if bt := models.BidType(*in.BidType); !bt.Valid() {
		errs["bid_type"] = msgChoice
	} else {
		t.BidType = bt
	}

	bidSet := deadline("bid_deadline", in.BidDeadline, &t.BidDeadline)
	taskSet := deadline("task_deadline", in.TaskDeadline, &t.TaskDeadline)
	if (bidSet || taskSet) && errs["bid_deadline"] == "" && errs["task_deadline"] == "" &&
		t.TaskDeadline.Before(t.BidDeadline) {
		errs["task_deadline"] = "Task deadline must not be earlier than the bid deadline."
	}

	if in.CommunicationDeadline != nil {
		if v, ok := parseTime(*in.CommunicationDeadline); ok {
			t.CommunicationDeadline = &v
		} else {
			errs["communication_deadline"] = "Invalid date format."
		}
	}
	if in.IsSubContractorsOnly != nil {
		t.IsSubContractorsOnly = *in.IsSubContractorsOnly
	}
	return invalid(errs)
}

// editsContent - запрос меняет условия задачи, а не только её состояние
func (in *TaskInput) editsContent() bool {
	return in.Title != nil || in.Description != nil || in.Budget != nil || in.Currency != nil ||
		in.BidType != nil || in.BidDeadline != nil || in.TaskDeadline != nil || in.AcceptanceCriteria != nil ||
		in.ExitCriteria != nil || in.JobType != nil || in.ExperienceLevel != nil ||
		in.CommunicationDeadline != nil || in.CommunicationType != nil || in.IsSubContractorsOnly != nil ||
		len(in.Files) > 0 || len(in.RequiredSkills) > 0 || len(in.SubContractorIDs) > 0 || len(in.SubOrganizationIDs) > 0
}

// originManager - менеджер задач организации, разместившей задачу
func originManager(actor *models.User, t *models.Task) bool {
	org, ok := actor.Organization()
	return ok && sameID(t.OriginOrganizationID, org) && authz.Permit(actor, authz.TaskManager)
}

// canManageTask: автор, владелец или менеджер задач организации-заказчика
func canManageTask(actor *models.User, t *models.Task) bool {
	return sameID(t.CreatedBy, actor.ID) || sameID(t.TaskOwnerID, actor.ID) || originManager(actor, t)
}

// memberOf: пользователь состоит в организации-заказчике или организации-исполнителе
func memberOf(actor *models.User, t *models.Task) bool {
	org, ok := actor.Organization()
	return ok && (sameID(t.OriginOrganizationID, org) || sameID(t.WorkerOrganizationID, org))
}

// canWork: исполнитель, его организация или назначенный менеджер
func canWork(actor *models.User, t *models.Task) bool {
	if sameID(t.AssigneeID, actor.ID) || sameID(t.ManagerID, actor.ID) {
		return true
	}
	org, ok := actor.Organization()
	return ok && sameID(t.WorkerOrganizationID, org)
}

// CreateTask публикует задачу и отдаёт её полное представление для автора
func (s *Service) CreateTask(ctx context.Context, actor *models.User, in TaskInput) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	now := s.now()

	task := &models.Task{Status: models.StatusPending}
	if err := applyTaskFields(task, &in, true, now); err != nil {
		return nil, err
	}
	errs := map[string]string{}
	validateFileItems("files", in.Files, errs)
	if err := invalid(errs); err != nil {
		return nil, err
	}

	task.Audit = models.NewAudit(actor.ID, now)
	if org, ok := actor.Organization(); ok {
		task.IsOriginOrganization = true
		task.OriginOrganizationID = &org
	} else {
		task.IsPostApproved = true
		task.TaskOwnerID = ptr(actor.ID)
		task.PostApprovedBy = ptr(actor.ID)
		task.PostApprovedOn = &now
	}

	up, err := s.upload(ctx, "attachments", fileRefs(in.Files))
	if err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx repository.Repo) error {
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		return s.saveTaskRelations(ctx, tx, task, &in, actor.ID, now, true)
	})
	if err != nil {
		up.discard(ctx)
		return nil, wrap("create task", referenceErr(err))
	}
	view, err := s.taskView(ctx, s.store, task, projection.Full, projection.RoleOf(actor))
	return view, wrap("create task", err)
}

func (s *Service) saveTaskRelations(ctx context.Context, tx repository.Repo, t *models.Task, in *TaskInput, actorID int64, now time.Time, creating bool) error {
	if _, err := reconcile.Apply(ctx, tx.Attachments(), attachmentBinding, t.ID, in.Files, actorID, now); err != nil {
		return err
	}
	if creating || len(in.RequiredSkills) > 0 {
		if err := tx.SetTaskSkills(ctx, t.ID, in.RequiredSkills); err != nil {
			return err
		}
	}
	if creating || len(in.SubContractorIDs) > 0 {
		if err := tx.SetTaskSubContractors(ctx, t.ID, in.SubContractorIDs); err != nil {
			return err
		}
	}
	if creating || len(in.SubOrganizationIDs) > 0 {
		if err := tx.SetTaskSubOrganizations(ctx, t.ID, in.SubOrganizationIDs); err != nil {
			return err
		}
	}
	return nil
}

func referenceErr(err error) error {
	if errors.Is(err, repository.ErrReference) {
		return apperr.Validation("Request references an unknown record")
	}
	return err
}

// UpdateTask частично обновляет задачу. Права на привилегированные поля проверяются до чтения данных.
func (s *Service) UpdateTask(ctx context.Context, actor *models.User, id int64, in TaskInput) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	if in.IsPostApproved != nil || in.IsPostRejected != nil {
		if err := authz.Require(actor, authz.TaskManager); err != nil {
			return nil, err
		}
	}
	if in.ManagerID != nil {
		if err := authz.Require(actor, authz.Sales); err != nil {
			return nil, err
		}
	}
	if in.AssigneeID != nil {
		if err := authz.Require(actor, authz.ConsultantManager); err != nil {
			return nil, err
		}
	}
	if in.Progress != nil && (*in.Progress < 0 || *in.Progress > 100) {
		return nil, apperr.Invalid(map[string]string{"progress": "Progress must be between 0 and 100."})
	}
	errs := map[string]string{}
	validateFileItems("files", in.Files, errs)
	if err := invalid(errs); err != nil {
		return nil, err
	}

	now := s.now()
	up, err := s.upload(ctx, "attachments", fileRefs(in.Files))
	if err != nil {
		return nil, err
	}

	var (
		task     *models.Task
		reviewer *models.User
	)
	err = s.store.InTx(ctx, func(tx repository.Repo) error {
		t, err := s.loadTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		task = t
		if t.IsCompleted {
			return apperr.Validation("Task has already been completed.")
		}

		if in.editsContent() {
			if !canManageTask(actor, t) {
				return apperr.Forbidden("You cannot edit this task")
			}
			if t.IsAccepted {
				return apperr.Validation("Task has already been accepted and can no longer be edited.")
			}
			if err := applyTaskFields(t, &in, false, now); err != nil {
				return err
			}
		}

		if in.IsPostApproved != nil || in.IsPostRejected != nil {
			if err := reviewPost(actor, t, in.IsPostApproved, in.IsPostRejected, now); err != nil {
				return err
			}
			if t.CreatedBy != nil {
				creator, err := tx.GetUser(ctx, *t.CreatedBy)
				if err != nil && !errors.Is(err, repository.ErrNotFound) {
					return err
				}
				reviewer = creator
			}
		}

		if (in.ManagerID != nil || in.AssigneeID != nil) && !memberOf(actor, t) {
			return apperr.Forbidden("You can only staff tasks of your own organization")
		}
		if in.ManagerID != nil {
			if _, err := tx.GetUser(ctx, *in.ManagerID); err != nil {
				return found(err, "Manager")
			}
			t.ManagerID = in.ManagerID
		}
		if in.AssigneeID != nil {
			if t.IsAccepted && !sameID(t.AssigneeID, *in.AssigneeID) {
				return apperr.Validation("Assignee is fixed by the accepted bid.")
			}
			if _, err := tx.GetUser(ctx, *in.AssigneeID); err != nil {
				return found(err, "Assignee")
			}
			t.AssigneeID = in.AssigneeID
		}

		if in.IsWorkerAccepted != nil {
			if !t.IsAccepted || !sameID(t.AssigneeID, actor.ID) {
				return apperr.Forbidden("Only the assignee of an accepted task can confirm it")
			}
			t.IsWorkerAccepted = *in.IsWorkerAccepted
		}
		if in.Progress != nil {
			if !canManageTask(actor, t) && !canWork(actor, t) {
				return apperr.Forbidden("You cannot report progress on this task")
			}
			t.Progress = *in.Progress
		}
		if in.IsCompleted != nil && *in.IsCompleted {
			if err := s.completeTask(ctx, tx, actor, t, now); err != nil {
				return err
			}
		}

		t.Touch(actor.ID, now)
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		return s.saveTaskRelations(ctx, tx, t, &in, actor.ID, now, false)
	})
	if err != nil {
		up.discard(ctx)
		return nil, wrap("update task", referenceErr(err))
	}

	if reviewer != nil {
		s.afterCommit(notify.NewMessage(reviewer.Email, notify.TemplatePostReviewed, map[string]string{
			"name":   reviewer.FullName(),
			"task":   task.Title,
			"status": task.PostStatus(),
		}))
	}
	view, err := s.taskView(ctx, s.store, task, projection.Full, projection.RoleOf(actor))
	return view, wrap("update task", err)
}

// reviewPost одобряет или отклоняет публикацию задачи организации
func reviewPost(actor *models.User, t *models.Task, approve, reject *bool, now time.Time) error {
	if !t.IsOriginOrganization || !originManager(actor, t) {
		return apperr.Forbidden("Only a task manager of the posting organization can review this task")
	}
	if t.IsAccepted {
		return apperr.Validation("Task has already been accepted.")
	}
	approving := approve != nil && *approve
	rejecting := reject != nil && *reject
	switch {
	case approving && rejecting:
		return apperr.Validation("A task cannot be both approved and rejected.")
	case approving:
		t.IsPostApproved = true
		t.IsPostRejected = false
		t.TaskOwnerID = ptr(actor.ID)
		t.PostApprovedBy = ptr(actor.ID)
		t.PostApprovedOn = &now
	case rejecting:
		t.IsPostRejected = true
		t.IsPostApproved = false
		t.TaskOwnerID = nil
		t.PostApprovedBy = nil
		t.PostApprovedOn = nil
	default:
		// возврат на рассмотрение
		t.IsPostApproved = false
		t.IsPostRejected = false
	}
	return nil
}

// completeTask закрывает задачу, когда открытых подзадач не осталось
func (s *Service) completeTask(ctx context.Context, tx repository.Repo, actor *models.User, t *models.Task, now time.Time) error {
	if !canManageTask(actor, t) {
		return apperr.Forbidden("Only the task owner can complete this task")
	}
	if !t.IsAccepted {
		return apperr.Validation("Task has not been awarded yet.")
	}
	open, err := tx.CountOpenSubTasks(ctx, t.ID)
	if err != nil {
		return err
	}
	if open > 0 {
		return apperr.Validation("Task still has %d open subtasks.", open)
	}
	t.IsCompleted = true
	t.Status = models.StatusCompleted

	bid, err := tx.AcceptedBid(ctx, t.ID)
	if err != nil {
		return err
	}
	if bid != nil {
		bid.Status = models.StatusCompleted
		bid.Touch(actor.ID, now)
		return tx.UpdateBid(ctx, bid)
	}
	return nil
}

func (s *Service) DeleteTask(ctx context.Context, actor *models.User, id int64) error {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return err
	}
	now := s.now()
	err := s.store.InTx(ctx, func(tx repository.Repo) error {
		t, err := s.loadTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !canManageTask(actor, t) {
			return apperr.Forbidden("You cannot delete this task")
		}
		if t.IsAccepted && !t.IsCompleted {
			return apperr.Validation("A task in progress cannot be deleted.")
		}
		t.Tombstone(actor.ID, now)
		return tx.UpdateTask(ctx, t)
	})
	return wrap("delete task", err)
}

// GetTask отдаёт полную карточку участникам задачи и урезанную - тем, кто может на неё откликнуться
func (s *Service) GetTask(ctx context.Context, actor *models.User, id int64) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	t, err := s.loadTask(ctx, s.store, id, false)
	if err != nil {
		return nil, err
	}

	mode := projection.Full
	involved, err := s.involved(ctx, actor, t)
	if err != nil {
		return nil, wrap("get task", err)
	}
	if !involved {
		visible, err := s.visibleForBidding(ctx, s.store, actor, t)
		if err != nil {
			return nil, wrap("get task", err)
		}
		if !visible {
			return nil, apperr.NotFound("Task")
		}
		mode = projection.FindTask
	}
	view, err := s.taskView(ctx, s.store, t, mode, projection.RoleOf(actor))
	return view, wrap("get task", err)
}

func (s *Service) involved(ctx context.Context, actor *models.User, t *models.Task) (bool, error) {
	if canManageTask(actor, t) || canWork(actor, t) {
		return true, nil
	}
	if org, ok := actor.Organization(); ok && sameID(t.OriginOrganizationID, org) {
		return true, nil
	}
	return s.store.HasActiveBid(ctx, t.ID, actor.ID)
}

// biddingOrg - организация, от имени которой пользователь ищет задачи и подаёт заявки
func biddingOrg(actor *models.User) *int64 {
	if org, ok := actor.Organization(); ok && authz.PermitAny(actor, authz.Admin, authz.Sales) {
		return &org
	}
	return nil
}

func (s *Service) visibleForBidding(ctx context.Context, repo repository.Repo, actor *models.User, t *models.Task) (bool, error) {
	viewerOrg := biddingOrg(actor)
	var subContractors, subOrganizations []int64
	if t.IsSubContractorsOnly {
		var err error
		if subContractors, err = repo.TaskSubContractors(ctx, t.ID); err != nil {
			return false, err
		}
		if subOrganizations, err = repo.TaskSubOrganizations(ctx, t.ID); err != nil {
			return false, err
		}
	}
	return t.VisibleForBidding(actor.ID, viewerOrg, subContractors, subOrganizations, s.now()), nil
}

func (s *Service) ListTasks(ctx context.Context, actor *models.User, q TaskQuery) (Listing, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return Listing{}, err
	}
	f := models.TaskFilter{
		Keyword:          q.Keyword,
		JobType:          q.JobType,
		ExperienceLevel:  q.ExperienceLevel,
		MinBids:          q.MinBids,
		MaxBids:          q.MaxBids,
		IsPostApproved:   q.IsPostApproved,
		IsPostRejected:   q.IsPostRejected,
		ManagerAssigned:  q.ManagerAssigned,
		AssigneeAssigned: q.AssigneeAssigned,
		Page:             q.Page,
	}
	mode := projection.Full
	if q.Summary {
		mode = projection.Summary
	}

	org, inOrg := actor.Organization()
	switch {
	case q.Origin:
		if inOrg && authz.Permit(actor, authz.TaskManager) {
			f.OriginOrganizationID = &org
		} else {
			f.CreatedBy = ptr(actor.ID)
		}
	case q.Worker:
		f.OnlyAccepted = true
		switch {
		case inOrg && authz.PermitAny(actor, authz.Admin, authz.Billing, authz.Sales):
			f.WorkerOrganizationID = &org
		case authz.Permit(actor, authz.ConsultantManager):
			f.ManagerID = ptr(actor.ID)
		default:
			f.AssigneeID = ptr(actor.ID)
		}
	default:
		f.FindTask = true
		f.Viewer = actor.ID
		f.Now = s.now()
		f.ViewerOrg = biddingOrg(actor)
		mode = projection.FindTask
	}

	tasks, total, err := s.store.ListTasks(ctx, f)
	if err != nil {
		return Listing{}, wrap("list tasks", err)
	}
	role := projection.RoleOf(actor)
	out := Listing{Data: make([]projection.Fields, 0, len(tasks)), Count: total}
	for i := range tasks {
		view, err := s.taskView(ctx, s.store, &tasks[i], mode, role)
		if err != nil {
			return Listing{}, wrap("list tasks", err)
		}
		out.Data = append(out.Data, view)
	}
	return out, nil
}

// taskView собирает представление задачи; дорогие поля читаются, только если зрителю их покажут
func (s *Service) taskView(ctx context.Context, repo repository.Repo, t *models.Task, mode projection.Mode, role projection.Role) (projection.Fields, error) {
	want := func(field string) bool { return projection.Wants(projection.Task, mode, role, field) }

	v := projection.Fields{
		"id":                      t.ID,
		"title":                   t.Title,
		"description":             t.Description,
		"budget":                  t.Budget,
		"currency":                t.Currency,
		"bid_type":                t.BidType,
		"bid_deadline":            t.BidDeadline,
		"task_deadline":           t.TaskDeadline,
		"acceptance_criteria":     t.AcceptanceCriteria,
		"exit_criteria":           t.ExitCriteria,
		"job_type":                t.JobType,
		"experience_level":        t.ExperienceLevel,
		"communication_deadline":  t.CommunicationDeadline,
		"communication_type":      t.CommunicationType,
		"is_completed":            t.IsCompleted,
		"is_accepted":             t.IsAccepted,
		"is_worker_accepted":      t.IsWorkerAccepted,
		"is_fully_paid":           t.IsFullyPaid,
		"status":                  t.Status,
		"progress":                t.Progress,
		"total_amount":            t.TotalAmount,
		"remaining_amount":        t.RemainingAmount,
		"is_sub_contractors_only": t.IsSubContractorsOnly,
		"is_origin_organization":  t.IsOriginOrganization,
		"origin_organization":     t.OriginOrganizationID,
		"is_post_approved":        t.IsPostApproved,
		"is_post_rejected":        t.IsPostRejected,
		"post_approved_by":        t.PostApprovedBy,
		"post_approved_on":        t.PostApprovedOn,
		"is_worker_organization":  t.IsWorkerOrganization,
		"worker_organization":     t.WorkerOrganizationID,
		"assignee":                t.AssigneeID,
		"manager":                 t.ManagerID,
		"task_owner":              t.TaskOwnerID,
		"task_status":             t.TaskStatus(),
		"post_status":             t.PostStatus(),
		"has_manager":             t.ManagerID != nil,
		"has_assignee":            t.AssigneeID != nil,
		"created_by":              t.CreatedBy,
		"created_on":              t.CreatedOn,
		"updated_by":              t.UpdatedBy,
		"updated_on":              t.UpdatedOn,
	}

	if want("bid_count") || want("min_bid_value") || want("max_bid_value") {
		st, err := repo.BidStats(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		v["bid_count"], v["min_bid_value"], v["max_bid_value"] = st.Count, st.Min, st.Max
	}
	if want("skills") {
		skills, err := repo.TaskSkills(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(skills))
		for _, sk := range skills {
			names = append(names, sk.Skill)
		}
		v["skills"] = names
	}
	if want("attachments") {
		files, err := repo.Attachments().List(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		v["attachments"] = files
	}
	if want("sub_contractors") {
		ids, err := repo.TaskSubContractors(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		v["sub_contractors"] = ids
	}
	if want("sub_organizations") {
		ids, err := repo.TaskSubOrganizations(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		v["sub_organizations"] = ids
	}
	return projection.Project(projection.Task, mode, role, v), nil
}
