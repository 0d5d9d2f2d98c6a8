package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigmarket/internal/reconcile"
	"gigmarket/internal/repository"
	"gigmarket/models"

	"github.com/jmoiron/sqlx"
)

var bidColumns = []string{
	"employer_id", "amount", "currency", "description", "message", "cover_letter", "revision", "status",
	"is_accepted", "is_rejected", "bid_updated_by", "bid_updated_on",
}

var (
	insertBidQuery = namedInsert("bid", columns([]string{"task_id", "bidder_id"}, bidColumns, auditInsertColumns))
	updateBidQuery = namedUpdate("bid", columns(bidColumns, auditUpdateColumns))

	// имя исполнителя: организация, если он в ней состоит, иначе полное имя
	bidSelect = `
        SELECT b.*, t.title AS task_title,
            COALESCE(bo.name, TRIM(bu.first_name || ' ' || bu.last_name)) AS bidder_name,
            COALESCE(oo.name, TRIM(cu.first_name || ' ' || cu.last_name), '') AS employer_name
        FROM bid b
        JOIN task t ON t.id = b.task_id
        JOIN app_user bu ON bu.id = b.bidder_id
        LEFT JOIN organization bo ON bo.id = bu.organization_id AND bu.has_organization
        LEFT JOIN organization oo ON oo.id = t.origin_organization_id AND t.is_origin_organization
        LEFT JOIN app_user cu ON cu.id = COALESCE(b.employer_id, t.created_by)`
)

func (s *Storage) CreateBid(ctx context.Context, b *models.Bid) error {
	id, err := insertReturning(ctx, s.q, insertBidQuery, b)
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}
	b.ID = id
	return nil
}

func (s *Storage) GetBid(ctx context.Context, id int64) (*models.Bid, error) {
	b := &models.Bid{}
	query := bidSelect + ` WHERE b.id = $1 AND ` + alive("b")
	if err := get(ctx, s.q, b, query, id); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Storage) UpdateBid(ctx context.Context, b *models.Bid) error {
	if err := execNamed(ctx, s.q, updateBidQuery, b); err != nil {
		return fmt.Errorf("update bid %d: %w", b.ID, err)
	}
	return nil
}

func (s *Storage) HasActiveBid(ctx context.Context, taskID, bidderID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM bid WHERE task_id = $1 AND bidder_id = $2 AND ` + alive("") + `)`
	err := get(ctx, s.q, &exists, query, taskID, bidderID)
	return exists, err
}

func (s *Storage) AcceptedBid(ctx context.Context, taskID int64) (*models.Bid, error) {
	b := &models.Bid{}
	query := bidSelect + ` WHERE b.task_id = $1 AND b.is_accepted = TRUE AND ` + alive("b")
	if err := get(ctx, s.q, b, query, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (s *Storage) RejectOtherBids(ctx context.Context, taskID, keepID, actorID int64, at time.Time) (int64, error) {
	query := `
        UPDATE bid
        SET is_rejected = TRUE, bid_updated_by = $3, bid_updated_on = $4, updated_by = $3, updated_on = $4
        WHERE task_id = $1 AND id <> $2 AND is_accepted = FALSE AND is_rejected = FALSE AND ` + alive("")
	res, err := s.q.ExecContext(ctx, query, taskID, keepID, actorID, at)
	if err != nil {
		return 0, fmt.Errorf("reject bids of task %d: %w", taskID, err)
	}
	return res.RowsAffected()
}

// ListBids отдаёт заявки по живым задачам, новые первыми
func (s *Storage) ListBids(ctx context.Context, f models.BidFilter) ([]models.Bid, int, error) {
	w := &where{}
	w.add(alive("b"))
	w.add(alive("t"))
	if f.TaskID != nil {
		w.add("b.task_id = %s", *f.TaskID)
	}
	if f.BidderID != nil {
		w.add("b.bidder_id = %s", *f.BidderID)
	}
	if f.BidderOrganizationID != nil {
		w.add("bu.organization_id = %s", *f.BidderOrganizationID)
	}
	switch f.Bucket {
	case models.BucketPending:
		w.add("b.is_accepted = FALSE AND b.is_rejected = FALSE")
	case models.BucketInProgress:
		w.add("b.is_accepted = TRUE AND b.is_rejected = FALSE AND b.status <> %s", string(models.StatusCompleted))
	case models.BucketCompleted:
		w.add("b.is_accepted = TRUE AND b.status = %s", string(models.StatusCompleted))
	case models.BucketRejected:
		w.add("b.is_rejected = TRUE")
	}
	if f.Keyword != "" {
		w.titleLike("t.title", f.Keyword)
	}

	var total int
	countQuery := `
        SELECT COUNT(*) FROM bid b
        JOIN task t ON t.id = b.task_id
        JOIN app_user bu ON bu.id = b.bidder_id
        WHERE ` + w.String()
	if err := get(ctx, s.q, &total, countQuery, w.args...); err != nil {
		return nil, 0, fmt.Errorf("count bids: %w", err)
	}

	limit, args := w.page(f.Limit, f.Offset())
	var bids []models.Bid
	if err := sqlx.SelectContext(ctx, s.q, &bids, bidSelect+` WHERE `+w.String()+` ORDER BY b.id DESC`+limit, args...); err != nil {
		return nil, 0, fmt.Errorf("list bids: %w", err)
	}
	return bids, total, nil
}

func (s *Storage) BidCosts() reconcile.Store[models.AdditionalCost] {
	return &childTable[models.AdditionalCost]{
		q:         s.q,
		table:     "additional_cost",
		parentCol: "bid_id",
		insert:    namedInsert("additional_cost", columns([]string{"bid_id", "cost", "description", "currency"}, auditInsertColumns)),
		update:    namedUpdate("additional_cost", columns([]string{"cost", "description", "currency"}, auditUpdateColumns)),
		setID:     func(c *models.AdditionalCost, id int64) { c.ID = id },
	}
}

var _ repository.BidRepository = (*Storage)(nil)
