package service_test

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"gigmarket/internal/apperr"
	"gigmarket/internal/notify"
	"gigmarket/internal/projection"
	"gigmarket/internal/service"
	"gigmarket/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Dispatch(ctx context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) sent(template string) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, m := range r.msgs {
		if m.Template == template {
			out = append(out, m)
		}
	}
	return out
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (b *fakeBlobs) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

func (b *fakeBlobs) Put(ctx context.Context, key, contentType string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBlobs) Remove(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.removed = append(b.removed, key)
	return nil
}

type fixture struct {
	svc   *service.Service
	store *memStore
	blobs *fakeBlobs
	sent  *recorder
	logs  *bytes.Buffer
	now   time.Time

	acme, gigco int64

	alice     *models.User // частный заказчик
	acmeAdmin *models.User
	acmeTM    *models.User
	acmeStaff *models.User
	bob       *models.User // частный исполнитель
	carol     *models.User
	gigAdmin  *models.User
	gigSales  *models.User
	gigCM     *models.User
	gigDev    *models.User
	billing   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		blobs: newFakeBlobs(),
		sent:  &recorder{},
		logs:  &bytes.Buffer{},
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = service.New(f.store, f.sent, log.New(f.logs, "", 0),
		service.WithBlobStore(f.blobs),
		service.WithClock(func() time.Time { return f.now }),
		service.WithWebURL("https://gigs.example.com/"),
	)

	f.acme = f.addOrg("Acme")
	f.gigco = f.addOrg("GigCo")

	f.alice = f.addUser("Alice", nil, models.RoleCustomer)
	f.acmeAdmin = f.addUser("Ann", &f.acme, models.RoleAdmin)
	f.acmeTM = f.addUser("Tom", &f.acme, models.RoleTaskManager)
	f.acmeStaff = f.addUser("Sam", &f.acme, models.RoleCustomer)
	f.bob = f.addUser("Bob", nil, models.RoleCustomer, models.RoleGigWorker)
	f.carol = f.addUser("Carol", nil, models.RoleCustomer, models.RoleGigWorker)
	f.gigAdmin = f.addUser("Gina", &f.gigco, models.RoleAdmin)
	f.gigSales = f.addUser("Sid", &f.gigco, models.RoleSales)
	f.gigCM = f.addUser("Cora", &f.gigco, models.RoleConsultantManager)
	f.gigDev = f.addUser("Dev", &f.gigco, models.RoleConsultant)
	f.billing = f.addUser("Bill", &f.gigco, models.RoleBilling)

	for _, name := range []string{"Go", "SQL", "Kafka"} {
		id := f.store.d.id()
		f.store.d.skills[id] = models.Skill{ID: id, Skill: name}
	}
	return f
}

func (f *fixture) addOrg(name string) int64 {
	id := f.store.d.id()
	f.store.d.orgs[id] = models.Organization{ID: id, Name: name, Audit: models.Audit{IsActive: true}}
	return id
}

func (f *fixture) addUser(name string, org *int64, roles ...models.Role) *models.User {
	u := models.User{
		ID:         f.store.d.id(),
		FirstName:  name,
		LastName:   "Test",
		Email:      name + "@example.com",
		IsActive:   true,
		IsVerified: true,
	}
	for _, r := range roles {
		u.Roles = append(u.Roles, string(r))
	}
	if org != nil {
		u.HasOrganization = true
		u.OrganizationID = org
	}
	f.store.d.users[u.ID] = u
	return &u
}

func (f *fixture) skillIDs() []int64 {
	return sortedIDs(f.store.d.skills, false)
}

func (f *fixture) date(days int) *string {
	v := f.now.AddDate(0, 0, days).Format("2006-01-02")
	return &v
}

func str(v string) *string { return &v }

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func (f *fixture) taskInput() service.TaskInput {
	return service.TaskInput{
		Title:              str("Build an API"),
		Description:        str("REST API for the billing system"),
		Budget:             dec("1000"),
		Currency:           str("USD"),
		BidType:            str("open"),
		BidDeadline:        f.date(7),
		TaskDeadline:       f.date(30),
		AcceptanceCriteria: str("All endpoints covered by tests"),
		JobType:            str("remote"),
		ExperienceLevel:    str("expert"),
	}
}

// openTask публикует задачу частного заказчика; такие задачи одобрены сразу
func (f *fixture) openTask(t *testing.T) *models.Task {
	t.Helper()
	view, err := f.svc.CreateTask(context.Background(), f.alice, f.taskInput())
	require.NoError(t, err)
	task := f.task(t, idOf(t, view))
	require.True(t, task.IsPostApproved)
	return task
}

// createTask публикует задачу от имени actor и возвращает сохранённую запись
func (f *fixture) createTask(t *testing.T, actor *models.User, in service.TaskInput) *models.Task {
	t.Helper()
	view, err := f.svc.CreateTask(context.Background(), actor, in)
	require.NoError(t, err)
	return f.task(t, idOf(t, view))
}

func idOf(t *testing.T, view projection.Fields) int64 {
	t.Helper()
	id, ok := view["id"].(int64)
	require.True(t, ok, "no id in %v", view)
	return id
}

func (f *fixture) bidInput(taskID int64, amount string) service.BidInput {
	return service.BidInput{
		TaskID:      &taskID,
		Amount:      dec(amount),
		Currency:    str("USD"),
		Description: str("I can do it"),
		Message:     str("Hello"),
		CoverLetter: str("Ten years of Go"),
	}
}

func (f *fixture) submit(t *testing.T, actor *models.User, taskID int64, amount string) *models.Bid {
	t.Helper()
	view, err := f.svc.SubmitBid(context.Background(), actor, f.bidInput(taskID, amount))
	require.NoError(t, err)
	return f.bid(t, idOf(t, view))
}

// task, bid и subTask отдают копию сохранённой записи
func (f *fixture) task(t *testing.T, id int64) *models.Task {
	t.Helper()
	task, ok := f.store.d.tasks[id]
	require.True(t, ok)
	return &task
}

func (f *fixture) bid(t *testing.T, id int64) *models.Bid {
	t.Helper()
	bid, ok := f.store.d.bids[id]
	require.True(t, ok)
	return &bid
}

func (f *fixture) subTask(t *testing.T, id int64) *models.SubTask {
	t.Helper()
	st, ok := f.store.d.subTasks[id]
	require.True(t, ok)
	return &st
}

// requireAwardConsistent проверяет, что принятие задачи и заявок согласовано
func (f *fixture) requireAwardConsistent(t *testing.T, taskID int64) {
	t.Helper()
	task := f.task(t, taskID)
	var accepted []models.Bid
	for _, b := range f.store.d.bids {
		if b.TaskID != taskID || b.IsDelete {
			continue
		}
		require.False(t, b.IsAccepted && b.IsRejected, "bid %d is both accepted and rejected", b.ID)
		if b.IsAccepted {
			accepted = append(accepted, b)
		}
	}
	require.LessOrEqual(t, len(accepted), 1)
	if !task.IsAccepted {
		require.Empty(t, accepted)
		return
	}
	require.Len(t, accepted, 1)
	require.NotNil(t, task.AssigneeID)
	require.Equal(t, accepted[0].BidderID, *task.AssigneeID)
	require.True(t, task.TotalAmount.Valid)
	require.True(t, accepted[0].Amount.Equal(task.TotalAmount.Decimal))
}

func (f *fixture) acceptBid(t *testing.T, b *models.Bid) *models.Bid {
	t.Helper()
	task := f.task(t, b.TaskID)
	_, err := f.svc.AcceptBid(context.Background(), f.userByID(t, *task.Owner()), b.ID)
	require.NoError(t, err)
	return f.bid(t, b.ID)
}

func (f *fixture) userByID(t *testing.T, id int64) *models.User {
	t.Helper()
	u, ok := f.store.d.users[id]
	require.True(t, ok)
	return &u
}

// logWork заводит открытую подзадачу по принятой задаче
func (f *fixture) logWork(t *testing.T, actor *models.User, taskID int64) *models.SubTask {
	t.Helper()
	view, err := f.svc.CreateSubTask(context.Background(), actor, service.SubTaskInput{
		TaskID:      &taskID,
		Description: str("Schema design"),
		FromDate:    str("2026-03-02 09:00:00"),
		ToDate:      str("2026-03-02 17:30:00"),
	})
	require.NoError(t, err)
	return f.subTask(t, idOf(t, view))
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}
