package service

import (
	"context"
	"errors"
	"strings"

	"gigmarket/internal/apperr"
	"gigmarket/internal/authz"
	"gigmarket/internal/notify"
	"gigmarket/internal/projection"
	"gigmarket/internal/reconcile"
	"gigmarket/internal/repository"
	"gigmarket/models"
)

const msgDuplicateBid = "You have already placed a bid for this task."

// applyBidFields проверяет и переносит поля заявки; при создании обязательны все
func applyBidFields(b *models.Bid, in *BidInput, creating bool) (bool, error) {
	errs := map[string]string{}
	changed := false

	if creating && in.TaskID == nil {
		errs["task_id"] = msgRequired
	}
	if in.Amount == nil {
		if creating {
			errs["amount"] = msgRequired
		}
	} else if !in.Amount.IsPositive() {
		errs["amount"] = "Amount must be greater than zero."
	} else {
		changed = reconcile.SetDecimal(&b.Amount, in.Amount) || changed
	}

	if in.Currency == nil {
		if creating {
			errs["currency"] = msgRequired
		}
	} else if !models.ValidCurrency(*in.Currency) {
		errs["currency"] = msgChoice
	} else {
		changed = reconcile.Set(&b.Currency, in.Currency) || changed
	}

	for _, f := range []struct {
		name string
		src  *string
		dst  *string
	}{
		{"description", in.Description, &b.Description},
		{"message", in.Message, &b.Message},
		{"cover_letter", in.CoverLetter, &b.CoverLetter},
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

	for _, it := range in.AdditionalCosts {
		if it.IsDelete {
			continue
		}
		if it.ID == nil && it.Fields.Cost == nil {
			errs["additional_costs"] = "Each new cost line requires a cost."
			break
		}
		if it.Fields.Cost != nil && it.Fields.Cost.IsNegative() {
			errs["additional_costs"] = "Cost cannot be negative."
			break
		}
		if it.Fields.Currency != nil && !models.ValidCurrency(*it.Fields.Currency) {
			errs["additional_costs"] = "Not a valid currency."
			break
		}
	}
	return changed, invalid(errs)
}

// SubmitBid создаёт заявку исполнителя на открытую задачу
func (s *Service) SubmitBid(ctx context.Context, actor *models.User, in BidInput) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	now := s.now()
	bid := &models.Bid{
		BidderID: actor.ID,
		Status:   models.StatusPending,
		Revision: 1,
		Audit:    models.NewAudit(actor.ID, now),
	}
	if _, err := applyBidFields(bid, &in, true); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(tx repository.Repo) error {
		// блокировка задачи упорядочивает подачу заявки и принятие
		task, err := tx.LockTask(ctx, *in.TaskID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Invalid(map[string]string{"task_id": "Invalid task."})
		}
		if err != nil {
			return err
		}
		switch {
		case task.IsAccepted:
			return apperr.Validation("This task has already been accepted.")
		case task.IsCompleted:
			return apperr.Validation("This task has already been completed.")
		case sameID(task.CreatedBy, actor.ID):
			return apperr.Validation("You cannot bid on your own task.")
		}
		visible, err := s.visibleForBidding(ctx, tx, actor, task)
		if err != nil {
			return err
		}
		if !visible {
			return apperr.Validation("This task is not open for bidding.")
		}

		dup, err := tx.HasActiveBid(ctx, task.ID, actor.ID)
		if err != nil {
			return err
		}
		if dup {
			return apperr.Validation(msgDuplicateBid)
		}

		bid.TaskID = task.ID
		bid.EmployerID = task.Owner()
		if err := tx.CreateBid(ctx, bid); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Validation(msgDuplicateBid)
			}
			return err
		}
		_, err = reconcile.Apply(ctx, tx.BidCosts(), costBinding(bid.Currency), bid.ID, in.AdditionalCosts, actor.ID, now)
		return err
	})
	if err != nil {
		return nil, wrap("submit bid", err)
	}
	return s.bidResponse(ctx, actor, bid.ID, "submit bid")
}

// lockBid блокирует задачу заявки и перечитывает заявку уже под блокировкой
func (s *Service) lockBid(ctx context.Context, tx repository.Repo, id int64) (*models.Bid, *models.Task, error) {
	bid, err := tx.GetBid(ctx, id)
	if err != nil {
		return nil, nil, found(err, "Bid")
	}
	task, err := s.loadTask(ctx, tx, bid.TaskID, true)
	if err != nil {
		return nil, nil, err
	}
	if bid, err = tx.GetBid(ctx, id); err != nil {
		return nil, nil, found(err, "Bid")
	}
	return bid, task, nil
}

func decidedErr(b *models.Bid) error {
	switch {
	case b.IsAccepted:
		return apperr.Validation("This bid has already been accepted.")
	case b.IsRejected:
		return apperr.Validation("This bid has already been rejected.")
	case b.Status == models.StatusCompleted:
		return apperr.Validation("This bid has already been completed.")
	}
	return nil
}

// UpdateBid меняет условия заявки, пока по ней нет решения
func (s *Service) UpdateBid(ctx context.Context, actor *models.User, id int64, in BidInput) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	now := s.now()
	var bid *models.Bid
	err := s.store.InTx(ctx, func(tx repository.Repo) error {
		b, task, err := s.lockBid(ctx, tx, id)
		if err != nil {
			return err
		}
		bid = b
		if b.BidderID != actor.ID {
			return apperr.Forbidden("Only the bidder can modify this bid")
		}
		if err := decidedErr(b); err != nil {
			return err
		}
		if task.IsAccepted {
			return apperr.Validation("This task has already been accepted.")
		}

		changed, err := applyBidFields(b, &in, false)
		if err != nil {
			return err
		}
		res, err := reconcile.Apply(ctx, tx.BidCosts(), costBinding(b.Currency), b.ID, in.AdditionalCosts, actor.ID, now)
		if err != nil {
			return err
		}
		if !changed && !res.Changed() {
			return nil
		}
		b.Revision++
		b.Touch(actor.ID, now)
		return tx.UpdateBid(ctx, b)
	})
	if err != nil {
		return nil, wrap("update bid", err)
	}
	return s.bidResponse(ctx, actor, bid.ID, "update bid")
}

func (s *Service) DeleteBid(ctx context.Context, actor *models.User, id int64) error {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return err
	}
	now := s.now()
	err := s.store.InTx(ctx, func(tx repository.Repo) error {
		b, _, err := s.lockBid(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.BidderID != actor.ID {
			return apperr.Forbidden("Only the bidder can delete this bid")
		}
		if b.IsAccepted {
			return apperr.Validation("An accepted bid cannot be deleted.")
		}
		b.Tombstone(actor.ID, now)
		return tx.UpdateBid(ctx, b)
	})
	return wrap("delete bid", err)
}

func (s *Service) AcceptBid(ctx context.Context, actor *models.User, id int64) (projection.Fields, error) {
	return s.DecideBid(ctx, actor, id, true)
}

func (s *Service) RejectBid(ctx context.Context, actor *models.User, id int64) (projection.Fields, error) {
	return s.DecideBid(ctx, actor, id, false)
}

// DecideBid принимает или отклоняет заявку. Принятие в одной транзакции закрепляет
// исполнителя за задачей и отклоняет все остальные заявки.
func (s *Service) DecideBid(ctx context.Context, actor *models.User, id int64, accept bool) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	now := s.now()
	var (
		bid    *models.Bid
		task   *models.Task
		bidder *models.User
	)
	err := s.store.InTx(ctx, func(tx repository.Repo) error {
		b, t, err := s.lockBid(ctx, tx, id)
		if err != nil {
			return err
		}
		bid, task = b, t
		if !canManageTask(actor, t) {
			return apperr.Forbidden("Only the task owner can decide on bids")
		}
		if accept && t.IsAccepted {
			return apperr.Conflict("Task has already been accepted, refresh and try again")
		}
		if err := decidedErr(b); err != nil {
			return err
		}
		if bidder, err = tx.GetUser(ctx, b.BidderID); err != nil {
			return found(err, "Bidder")
		}

		if !accept {
			b.Decide(false, actor.ID, now)
			return tx.UpdateBid(ctx, b)
		}

		t.Award(b, bidder, actor.ID, now)
		ok, err := tx.MarkTaskAccepted(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("Task has already been accepted, refresh and try again")
		}
		b.Decide(true, actor.ID, now)
		if err := tx.UpdateBid(ctx, b); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Conflict("Task has already been accepted, refresh and try again")
			}
			return err
		}
		_, err = tx.RejectOtherBids(ctx, t.ID, b.ID, actor.ID, now)
		return err
	})
	if err != nil {
		return nil, wrap("decide bid", err)
	}

	template := notify.TemplateBidRejected
	if accept {
		template = notify.TemplateBidAccepted
	}
	s.afterCommit(notify.NewMessage(bidder.Email, template, map[string]string{
		"name": bidder.FullName(),
		"task": task.Title,
	}))
	return s.bidResponse(ctx, actor, bid.ID, "decide bid")
}

// bidResponse перечитывает заявку после фиксации и отдаёт её в полном виде
func (s *Service) bidResponse(ctx context.Context, actor *models.User, id int64, op string) (projection.Fields, error) {
	b, err := s.store.GetBid(ctx, id)
	if err != nil {
		return nil, wrap(op, err)
	}
	view, err := s.bidView(ctx, s.store, b, projection.Full, projection.RoleOf(actor))
	return view, wrap(op, err)
}

// canSeeBid: сам исполнитель, руководство его организации или сторона заказчика
func canSeeBid(actor *models.User, b *models.Bid, t *models.Task, bidder *models.User) bool {
	if b.BidderID == actor.ID || canManageTask(actor, t) {
		return true
	}
	org, ok := actor.Organization()
	if !ok || !authz.PermitAny(actor, authz.Admin, authz.Sales) {
		return false
	}
	bidderOrg, ok := bidder.Organization()
	return ok && bidderOrg == org
}

func (s *Service) GetBid(ctx context.Context, actor *models.User, id int64) (projection.Fields, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return nil, err
	}
	b, err := s.store.GetBid(ctx, id)
	if err != nil {
		return nil, found(err, "Bid")
	}
	t, err := s.loadTask(ctx, s.store, b.TaskID, false)
	if err != nil {
		return nil, err
	}
	bidder, err := s.store.GetUser(ctx, b.BidderID)
	if err != nil {
		return nil, found(err, "Bidder")
	}
	if !canSeeBid(actor, b, t, bidder) {
		return nil, apperr.Forbidden("You cannot view this bid")
	}
	view, err := s.bidView(ctx, s.store, b, projection.Full, projection.RoleOf(actor))
	return view, wrap("get bid", err)
}

func (s *Service) ListBids(ctx context.Context, actor *models.User, q BidQuery) (Listing, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return Listing{}, err
	}
	switch q.Bucket {
	case models.BucketAll, models.BucketPending, models.BucketInProgress, models.BucketCompleted, models.BucketRejected:
	default:
		return Listing{}, apperr.Invalid(map[string]string{"bid_type": msgChoice})
	}

	f := models.BidFilter{Bucket: q.Bucket, Keyword: q.Keyword, Page: q.Page}
	org, inOrg := actor.Organization()
	switch {
	case q.Origin:
		if q.TaskID == nil {
			return Listing{}, apperr.Invalid(map[string]string{"task_id": msgRequired})
		}
		t, err := s.loadTask(ctx, s.store, *q.TaskID, false)
		if err != nil {
			return Listing{}, err
		}
		if !canManageTask(actor, t) {
			return Listing{}, apperr.Forbidden("You cannot view bids of this task")
		}
		f.TaskID = q.TaskID
	case q.Worker && inOrg && authz.PermitAny(actor, authz.Admin, authz.Sales):
		f.BidderOrganizationID = &org
		f.TaskID = q.TaskID
	default:
		f.BidderID = ptr(actor.ID)
		f.TaskID = q.TaskID
	}

	bids, total, err := s.store.ListBids(ctx, f)
	if err != nil {
		return Listing{}, wrap("list bids", err)
	}
	role := projection.RoleOf(actor)
	out := Listing{Data: make([]projection.Fields, 0, len(bids)), Count: total}
	for i := range bids {
		view, err := s.bidView(ctx, s.store, &bids[i], projection.Summary, role)
		if err != nil {
			return Listing{}, wrap("list bids", err)
		}
		out.Data = append(out.Data, view)
	}
	return out, nil
}

func (s *Service) bidView(ctx context.Context, repo repository.Repo, b *models.Bid, mode projection.Mode, role projection.Role) (projection.Fields, error) {
	v := projection.Fields{
		"id":             b.ID,
		"task_id":        b.TaskID,
		"task_title":     b.TaskTitle,
		"bidder_id":      b.BidderID,
		"bidder_name":    b.BidderName,
		"employer_id":    b.EmployerID,
		"employer_name":  b.EmployerName,
		"amount":         b.Amount,
		"currency":       b.Currency,
		"description":    b.Description,
		"message":        b.Message,
		"cover_letter":   b.CoverLetter,
		"revision":       b.Revision,
		"status":         b.Status,
		"is_accepted":    b.IsAccepted,
		"is_rejected":    b.IsRejected,
		"bid_status":     b.DecisionStatus(),
		"bid_updated_by": b.BidUpdatedBy,
		"bid_updated_on": b.BidUpdatedOn,
		"created_by":     b.CreatedBy,
		"created_on":     b.CreatedOn,
		"updated_on":     b.UpdatedOn,
	}
	if projection.Wants(projection.Bid, mode, role, "additional_costs") {
		costs, err := repo.BidCosts().List(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		v["additional_costs"] = costs
	}
	return projection.Project(projection.Bid, mode, role, v), nil
}

// ListBidSummary - задачи заказчика со сводкой по заявкам
func (s *Service) ListBidSummary(ctx context.Context, actor *models.User, q SummaryQuery) (Listing, error) {
	if err := authz.Require(actor, authz.Authenticated); err != nil {
		return Listing{}, err
	}
	switch q.Bucket {
	case models.BucketAll, models.BucketPending, models.BucketInProgress, models.BucketCompleted:
	default:
		return Listing{}, apperr.Invalid(map[string]string{"bid_type": msgChoice})
	}

	f := models.TaskFilter{Bucket: q.Bucket, Keyword: q.Keyword, Page: q.Page}
	if org, ok := actor.Organization(); ok && authz.Permit(actor, authz.TaskManager) {
		f.OriginOrganizationID = &org
	} else {
		f.CreatedBy = ptr(actor.ID)
	}

	tasks, total, err := s.store.ListTasks(ctx, f)
	if err != nil {
		return Listing{}, wrap("bid summary", err)
	}
	role := projection.RoleOf(actor)
	out := Listing{Data: make([]projection.Fields, 0, len(tasks)), Count: total}
	for i := range tasks {
		t := &tasks[i]
		st, err := s.store.BidStats(ctx, t.ID)
		if err != nil {
			return Listing{}, wrap("bid summary", err)
		}
		out.Data = append(out.Data, projection.Project(projection.BidSummary, projection.Summary, role, projection.Fields{
			"id":            t.ID,
			"title":         t.Title,
			"budget":        t.Budget,
			"currency":      t.Currency,
			"bid_deadline":  t.BidDeadline,
			"bid_status":    taskBidStatus(t),
			"bid_count":     st.Count,
			"min_bid_value": st.Min,
			"max_bid_value": st.Max,
		}))
	}
	return out, nil
}

func taskBidStatus(t *models.Task) string {
	switch {
	case t.IsAccepted && t.IsCompleted:
		return "Completed"
	case t.IsAccepted:
		return "In Progress"
	default:
		return "Pending"
	}
}
