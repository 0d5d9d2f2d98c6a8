// Package service реализует жизненный цикл задач и заявок, учёт подзадач и регистрацию.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gigmarket/internal/apperr"
	"gigmarket/internal/notify"
	"gigmarket/internal/projection"
	"gigmarket/internal/repository"
	"gigmarket/models"
)

// BlobStore - внешнее хранилище файлов
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key, contentType string, data []byte) error
	Remove(ctx context.Context, key string) error
}

type Service struct {
	store    repository.Store
	blobs    BlobStore
	outbox   *notify.Background
	logger   *log.Logger
	webURL   string
	now      func() time.Time
}

type Option func(*Service)

func WithBlobStore(b BlobStore) Option {
	return func(s *Service) { s.blobs = b }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithWebURL(url string) Option {
	return func(s *Service) { s.webURL = strings.TrimRight(url, "/") }
}

func New(store repository.Store, notifier notify.Dispatcher, logger *log.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		outbox:   notify.NewBackground(logger, notifier),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listing - страница выдачи в форме {data, count}
type Listing struct {
	Data  []projection.Fields `json:"data"`
	Count int                 `json:"count"`
}

// found переводит отсутствие записи в NotFound
func found(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

// afterCommit отправляет уведомление вне транзакции; ошибка только логируется
func (s *Service) afterCommit(msg notify.Message) {
	s.outbox.Send(msg)
}

// Close дожидается уведомлений, отправка которых уже началась
func (s *Service) Close(ctx context.Context) error {
	return s.outbox.Drain(ctx)
}

func (s *Service) loadTask(ctx context.Context, repo repository.Repo, id int64, lock bool) (*models.Task, error) {
	var (
		task *models.Task
		err  error
	)
	if lock {
		task, err = repo.LockTask(ctx, id)
	} else {
		task, err = repo.GetTask(ctx, id)
	}
	if err != nil {
		return nil, found(err, "Task")
	}
	return task, nil
}

func sameID(a *int64, id int64) bool {
	return a != nil && *a == id
}

func ptr[T any](v T) *T {
	return &v
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
