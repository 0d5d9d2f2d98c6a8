package handlers

import (
	"context"

	"gigmarket/internal/projection"
	"gigmarket/internal/service"
	"gigmarket/models"
)

// ServiceInterface - операции, которые обработчики вызывают у сервиса
type ServiceInterface interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)

	CreateTask(ctx context.Context, actor *models.User, in service.TaskInput) (projection.Fields, error)
	UpdateTask(ctx context.Context, actor *models.User, id int64, in service.TaskInput) (projection.Fields, error)
	DeleteTask(ctx context.Context, actor *models.User, id int64) error
	GetTask(ctx context.Context, actor *models.User, id int64) (projection.Fields, error)
	ListTasks(ctx context.Context, actor *models.User, q service.TaskQuery) (service.Listing, error)

	SubmitBid(ctx context.Context, actor *models.User, in service.BidInput) (projection.Fields, error)
	UpdateBid(ctx context.Context, actor *models.User, id int64, in service.BidInput) (projection.Fields, error)
	DeleteBid(ctx context.Context, actor *models.User, id int64) error
	AcceptBid(ctx context.Context, actor *models.User, id int64) (projection.Fields, error)
	RejectBid(ctx context.Context, actor *models.User, id int64) (projection.Fields, error)
	GetBid(ctx context.Context, actor *models.User, id int64) (projection.Fields, error)
	ListBids(ctx context.Context, actor *models.User, q service.BidQuery) (service.Listing, error)
	ListBidSummary(ctx context.Context, actor *models.User, q service.SummaryQuery) (service.Listing, error)

	CreateSubTask(ctx context.Context, actor *models.User, in service.SubTaskInput) (projection.Fields, error)
	UpdateSubTask(ctx context.Context, actor *models.User, id int64, in service.SubTaskInput) (projection.Fields, error)
	DeleteSubTask(ctx context.Context, actor *models.User, id int64) error
	ListSubTasks(ctx context.Context, actor *models.User, taskID int64, summary bool, page models.Page) (service.Listing, error)
}

var _ ServiceInterface = (*service.Service)(nil)
