package models

import "time"

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page - параметры постраничной выдачи, page начинается с 1
type Page struct {
	Page  int
	Limit int
}

func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Bucket - группа выдачи заявок и сводки по заявкам
type Bucket string

const (
	BucketAll        Bucket = ""
	BucketPending    Bucket = "pending"
	BucketInProgress Bucket = "in_progress"
	BucketCompleted  Bucket = "completed"
	BucketRejected   Bucket = "rejected"
)

// TaskFilter описывает выборку задач. Нулевые поля не ограничивают выборку.
type TaskFilter struct {
	// find-task: задачи, доступные зрителю для подачи заявок
	FindTask      bool
	Viewer        int64
	ViewerOrg     *int64
	Now           time.Time

	OriginOrganizationID *int64
	CreatedBy            *int64
	WorkerOrganizationID *int64
	AssigneeID           *int64
	ManagerID            *int64
	OnlyAccepted         bool
	Bucket               Bucket

	Keyword          string
	JobType          string
	ExperienceLevel  string
	MinBids          *int
	MaxBids          *int
	IsPostApproved   *bool
	IsPostRejected   *bool
	ManagerAssigned  *bool
	AssigneeAssigned *bool

	Page
}

type BidFilter struct {
	TaskID               *int64
	BidderID             *int64
	BidderOrganizationID *int64
	Bucket               Bucket
	Keyword              string
	Page
}
