// Package repository описывает контракты хранилища, которыми пользуется сервисный слой.
package repository

import (
	"context"
	"errors"
	"time"

	"gigmarket/internal/reconcile"
	"gigmarket/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrReference - ссылка на несуществующую запись
	ErrReference = errors.New("unknown reference")
)

type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, u *models.User) error
	GetOrganization(ctx context.Context, id int64) (*models.Organization, error)
	CreateOrganization(ctx context.Context, o *models.Organization) error
	CreateCoWorker(ctx context.Context, c *models.CoWorker) error
}

type TaskRepository interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	// LockTask читает задачу под блокировкой строки до конца транзакции
	LockTask(ctx context.Context, id int64) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	// MarkTaskAccepted сохраняет принятие, только если задача ещё не принята
	MarkTaskAccepted(ctx context.Context, t *models.Task) (bool, error)
	ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, int, error)

	SetTaskSkills(ctx context.Context, taskID int64, skillIDs []int64) error
	TaskSkills(ctx context.Context, taskID int64) ([]models.Skill, error)
	SetTaskSubContractors(ctx context.Context, taskID int64, userIDs []int64) error
	TaskSubContractors(ctx context.Context, taskID int64) ([]int64, error)
	SetTaskSubOrganizations(ctx context.Context, taskID int64, orgIDs []int64) error
	TaskSubOrganizations(ctx context.Context, taskID int64) ([]int64, error)
	BidStats(ctx context.Context, taskID int64) (models.BidStats, error)

	Attachments() reconcile.Store[models.Attachment]
}

type BidRepository interface {
	CreateBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id int64) (*models.Bid, error)
	UpdateBid(ctx context.Context, b *models.Bid) error
	HasActiveBid(ctx context.Context, taskID, bidderID int64) (bool, error)
	AcceptedBid(ctx context.Context, taskID int64) (*models.Bid, error)
	// RejectOtherBids отклоняет все живые нерешённые заявки задачи, кроме keepID
	RejectOtherBids(ctx context.Context, taskID, keepID, actorID int64, at time.Time) (int64, error)
	ListBids(ctx context.Context, f models.BidFilter) ([]models.Bid, int, error)

	BidCosts() reconcile.Store[models.AdditionalCost]
}

type SubTaskRepository interface {
	CreateSubTask(ctx context.Context, s *models.SubTask) error
	GetSubTask(ctx context.Context, id int64) (*models.SubTask, error)
	UpdateSubTask(ctx context.Context, s *models.SubTask) error
	ListSubTasks(ctx context.Context, taskID int64, p models.Page) ([]models.SubTask, int, error)
	CountOpenSubTasks(ctx context.Context, taskID int64) (int, error)

	SubtaskFiles() reconcile.Store[models.SubtaskFile]
	Invoices() reconcile.Store[models.Invoice]
}

type Repo interface {
	UserRepository
	TaskRepository
	BidRepository
	SubTaskRepository
}

// Store - хранилище с поддержкой транзакций. Внутри fn используется только переданный Repo.
type Store interface {
	Repo
	InTx(ctx context.Context, fn func(Repo) error) error
}
