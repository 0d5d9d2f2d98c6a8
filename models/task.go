package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type BidType string

const (
	BidTypeOpen     BidType = "open"
	BidTypeClosed   BidType = "closed"
	BidTypeMaxPrice BidType = "max_price"
)

func (b BidType) Valid() bool {
	return b == BidTypeOpen || b == BidTypeClosed || b == BidTypeMaxPrice
}

var (
	JobTypes          = []string{"remote", "hybrid", "onsite"}
	ExperienceLevels  = []string{"entry", "intermediate", "expert"}
	CommunicationType = []string{"open", "closed", "no"}
)

type WorkStatus string

const (
	StatusPending    WorkStatus = "pending"
	StatusInProgress WorkStatus = "in_progress"
	StatusCompleted  WorkStatus = "completed"
)

// Stage - производное состояние жизненного цикла задачи
type Stage string

const (
	StagePendingApproval Stage = "pending_approval"
	StagePostRejected    Stage = "post_rejected"
	StageOpenForBid      Stage = "open_for_bid"
	StageAccepted        Stage = "accepted"
	StageInProgress      Stage = "in_progress"
	StageCompleted       Stage = "completed"
)

// Сущность Задачи
type Task struct {
	ID                    int64               `db:"id" json:"id"`
	Title                 string              `db:"title" json:"title"`
	Description           string              `db:"description" json:"description"`
	Budget                decimal.Decimal     `db:"budget" json:"budget"`
	TotalAmount           decimal.NullDecimal `db:"total_amount" json:"total_amount"`
	RemainingAmount       decimal.NullDecimal `db:"remaining_amount" json:"remaining_amount"`
	Currency              string              `db:"currency" json:"currency"`
	BidType               BidType             `db:"bid_type" json:"bid_type"`
	BidDeadline           time.Time           `db:"bid_deadline" json:"bid_deadline"`
	TaskDeadline          time.Time           `db:"task_deadline" json:"task_deadline"`
	AcceptanceCriteria    string              `db:"acceptance_criteria" json:"acceptance_criteria"`
	ExitCriteria          string              `db:"exit_criteria" json:"exit_criteria"`
	JobType               string              `db:"job_type" json:"job_type"`
	ExperienceLevel       string              `db:"experience_level" json:"experience_level"`
	CommunicationDeadline *time.Time          `db:"communication_deadline" json:"communication_deadline"`
	CommunicationType     string              `db:"communication_type" json:"communication_type"`
	Status                WorkStatus          `db:"status" json:"status"`
	Progress              int                 `db:"progress" json:"progress"`
	IsCompleted           bool                `db:"is_completed" json:"is_completed"`
	IsAccepted            bool                `db:"is_accepted" json:"is_accepted"`
	IsWorkerAccepted      bool                `db:"is_worker_accepted" json:"is_worker_accepted"`
	IsFullyPaid           bool                `db:"is_fully_paid" json:"is_fully_paid"`
	IsSubContractorsOnly  bool                `db:"is_sub_contractors_only" json:"is_sub_contractors_only"`
	IsOriginOrganization  bool                `db:"is_origin_organization" json:"is_origin_organization"`
	OriginOrganizationID  *int64              `db:"origin_organization_id" json:"origin_organization"`
	IsPostApproved        bool                `db:"is_post_approved" json:"is_post_approved"`
	IsPostRejected        bool                `db:"is_post_rejected" json:"is_post_rejected"`
	PostApprovedBy        *int64              `db:"post_approved_by" json:"post_approved_by"`
	PostApprovedOn        *time.Time          `db:"post_approved_on" json:"post_approved_on"`
	IsWorkerOrganization  bool                `db:"is_worker_organization" json:"is_worker_organization"`
	WorkerOrganizationID  *int64              `db:"worker_organization_id" json:"worker_organization"`
	AssigneeID            *int64              `db:"assignee_id" json:"assignee"`
	ManagerID             *int64              `db:"manager_id" json:"manager"`
	TaskOwnerID           *int64              `db:"task_owner_id" json:"task_owner"`
	Audit
}

func (t *Task) Stage() Stage {
	switch {
	case t.IsCompleted:
		return StageCompleted
	case t.IsAccepted && t.IsWorkerAccepted:
		return StageInProgress
	case t.IsAccepted:
		return StageAccepted
	case t.IsPostRejected:
		return StagePostRejected
	case !t.IsPostApproved:
		return StagePendingApproval
	default:
		return StageOpenForBid
	}
}

func (t *Task) TaskStatus() string {
	switch t.Stage() {
	case StageCompleted:
		return "Completed"
	case StageInProgress:
		return "In Progress"
	case StageAccepted:
		return "Awaiting Acceptance"
	default:
		return "Pending"
	}
}

func (t *Task) PostStatus() string {
	switch {
	case t.IsPostApproved:
		return "Approved"
	case t.IsPostRejected:
		return "Rejected"
	default:
		return "Pending"
	}
}

// Owner - пользователь, от имени которого задача размещена
func (t *Task) Owner() *int64 {
	if t.TaskOwnerID != nil {
		return t.TaskOwnerID
	}
	return t.CreatedBy
}

// OpenForBidding: одобрена, не принята, приём заявок не закончился
func (t *Task) OpenForBidding(now time.Time) bool {
	return !t.IsDelete && t.Stage() == StageOpenForBid && !t.BidDeadline.Before(now)
}

// VisibleForBidding повторяет предикат выборки find-task из хранилища.
// viewerOrg задаётся, когда пользователь ищет задачи от имени организации.
func (t *Task) VisibleForBidding(viewerID int64, viewerOrg *int64, subContractors, subOrganizations []int64, now time.Time) bool {
	if !t.OpenForBidding(now) {
		return false
	}
	if t.CreatedBy != nil && *t.CreatedBy == viewerID {
		return false
	}
	if viewerOrg != nil {
		if t.OriginOrganizationID != nil && *t.OriginOrganizationID == *viewerOrg {
			return false
		}
		return !t.IsSubContractorsOnly || slices.Contains(subOrganizations, *viewerOrg)
	}
	return !t.IsSubContractorsOnly || slices.Contains(subContractors, viewerID)
}

// Award переносит условия принятой заявки в задачу
func (t *Task) Award(bid *Bid, bidder *User, actorID int64, now time.Time) {
	t.IsAccepted = true
	t.Status = StatusInProgress
	t.AssigneeID = &bid.BidderID
	t.TotalAmount = decimal.NewNullDecimal(bid.Amount)
	t.RemainingAmount = decimal.NewNullDecimal(bid.Amount)
	t.IsWorkerOrganization = false
	t.WorkerOrganizationID = nil
	if org, ok := bidder.Organization(); ok {
		t.IsWorkerOrganization = true
		t.WorkerOrganizationID = &org
	}
	t.Touch(actorID, now)
}

type Attachment struct {
	ID     int64  `db:"id" json:"id"`
	TaskID int64  `db:"task_id" json:"task_id"`
	File   string `db:"file" json:"file"`
	Name   string `db:"name" json:"name"`
	Audit
}

// BidStats - агрегаты по живым заявкам задачи
type BidStats struct {
	Count int                 `db:"bid_count"`
	Min   decimal.NullDecimal `db:"min_bid_value"`
	Max   decimal.NullDecimal `db:"max_bid_value"`
}
