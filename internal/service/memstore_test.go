package service_test

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"gigmarket/internal/reconcile"
	"gigmarket/internal/repository"
	"gigmarket/models"

	"github.com/shopspring/decimal"
)

// memData - снимок всех таблиц; транзакция работает с копией и подменяет снимок при фиксации
type memData struct {
	nextID int64

	users          map[int64]models.User
	orgs           map[int64]models.Organization
	coWorkers      map[int64]models.CoWorker
	skills         map[int64]models.Skill
	tasks          map[int64]models.Task
	taskSkills     map[int64][]int64
	subContractors map[int64][]int64
	subOrgs        map[int64][]int64
	attachments    map[int64]models.Attachment
	bids           map[int64]models.Bid
	costs          map[int64]models.AdditionalCost
	subTasks       map[int64]models.SubTask
	subtaskFiles   map[int64]models.SubtaskFile
	invoices       map[int64]models.Invoice
}

func newMemData() *memData {
	return &memData{
		users:          map[int64]models.User{},
		orgs:           map[int64]models.Organization{},
		coWorkers:      map[int64]models.CoWorker{},
		skills:         map[int64]models.Skill{},
		tasks:          map[int64]models.Task{},
		taskSkills:     map[int64][]int64{},
		subContractors: map[int64][]int64{},
		subOrgs:        map[int64][]int64{},
		attachments:    map[int64]models.Attachment{},
		bids:           map[int64]models.Bid{},
		costs:          map[int64]models.AdditionalCost{},
		subTasks:       map[int64]models.SubTask{},
		subtaskFiles:   map[int64]models.SubtaskFile{},
		invoices:       map[int64]models.Invoice{},
	}
}

func cloneLinks(m map[int64][]int64) map[int64][]int64 {
	out := make(map[int64][]int64, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		nextID:         d.nextID,
		users:          maps.Clone(d.users),
		orgs:           maps.Clone(d.orgs),
		coWorkers:      maps.Clone(d.coWorkers),
		skills:         maps.Clone(d.skills),
		tasks:          maps.Clone(d.tasks),
		taskSkills:     cloneLinks(d.taskSkills),
		subContractors: cloneLinks(d.subContractors),
		subOrgs:        cloneLinks(d.subOrgs),
		attachments:    maps.Clone(d.attachments),
		bids:           maps.Clone(d.bids),
		costs:          maps.Clone(d.costs),
		subTasks:       maps.Clone(d.subTasks),
		subtaskFiles:   maps.Clone(d.subtaskFiles),
		invoices:       maps.Clone(d.invoices),
	}
}

func (d *memData) id() int64 {
	d.nextID++
	return d.nextID
}

func sortedIDs[V any](m map[int64]V, desc bool) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if desc {
			return ids[i] > ids[j]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func paginate[T any](rows []T, p models.Page) []T {
	p = models.NewPage(p.Page, p.Limit)
	start := min(p.Offset(), len(rows))
	end := min(start+p.Limit, len(rows))
	return rows[start:end]
}

// memRepo реализует repository.Repo поверх одного снимка
type memRepo struct {
	d      *memData
	faults map[string]error
}

func (r *memRepo) fault(op string) error {
	return r.faults[op]
}

func (r *memRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, ok := r.d.users[id]
	if !ok || u.IsDelete {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *memRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	for _, u := range r.d.users {
		if !u.IsDelete && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) CreateUser(ctx context.Context, u *models.User) error {
	if err := r.fault("CreateUser"); err != nil {
		return err
	}
	if taken, _ := r.EmailTaken(ctx, u.Email); taken {
		return repository.ErrDuplicate
	}
	u.ID = r.d.id()
	r.d.users[u.ID] = *u
	return nil
}

func (r *memRepo) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	o, ok := r.d.orgs[id]
	if !ok || o.IsDelete {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (r *memRepo) CreateOrganization(ctx context.Context, o *models.Organization) error {
	o.ID = r.d.id()
	r.d.orgs[o.ID] = *o
	return nil
}

func (r *memRepo) CreateCoWorker(ctx context.Context, c *models.CoWorker) error {
	if err := r.fault("CreateCoWorker"); err != nil {
		return err
	}
	c.ID = r.d.id()
	r.d.coWorkers[c.ID] = *c
	return nil
}

func (r *memRepo) CreateTask(ctx context.Context, t *models.Task) error {
	t.ID = r.d.id()
	r.d.tasks[t.ID] = *t
	return nil
}

func (r *memRepo) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	t, ok := r.d.tasks[id]
	if !ok || t.IsDelete {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *memRepo) LockTask(ctx context.Context, id int64) (*models.Task, error) {
	return r.GetTask(ctx, id)
}

func (r *memRepo) UpdateTask(ctx context.Context, t *models.Task) error {
	if _, ok := r.d.tasks[t.ID]; !ok {
		return repository.ErrNotFound
	}
	r.d.tasks[t.ID] = *t
	return nil
}

func (r *memRepo) MarkTaskAccepted(ctx context.Context, t *models.Task) (bool, error) {
	cur, ok := r.d.tasks[t.ID]
	if !ok || cur.IsDelete || cur.IsAccepted {
		return false, nil
	}
	cur.IsAccepted = true
	cur.Status = t.Status
	cur.AssigneeID = t.AssigneeID
	cur.TotalAmount = t.TotalAmount
	cur.RemainingAmount = t.RemainingAmount
	cur.IsWorkerOrganization = t.IsWorkerOrganization
	cur.WorkerOrganizationID = t.WorkerOrganizationID
	cur.UpdatedBy = t.UpdatedBy
	cur.UpdatedOn = t.UpdatedOn
	r.d.tasks[t.ID] = cur
	return true, nil
}

func (r *memRepo) liveBidCount(taskID int64) int {
	n := 0
	for _, b := range r.d.bids {
		if b.TaskID == taskID && !b.IsDelete {
			n++
		}
	}
	return n
}

func eqPtr(p *int64, v int64) bool {
	return p != nil && *p == v
}

func (r *memRepo) taskMatches(t *models.Task, f models.TaskFilter) bool {
	if t.IsDelete {
		return false
	}
	if f.FindTask && !t.VisibleForBidding(f.Viewer, f.ViewerOrg, r.d.subContractors[t.ID], r.d.subOrgs[t.ID], f.Now) {
		return false
	}
	if f.OriginOrganizationID != nil && !eqPtr(t.OriginOrganizationID, *f.OriginOrganizationID) {
		return false
	}
	if f.CreatedBy != nil && !eqPtr(t.CreatedBy, *f.CreatedBy) {
		return false
	}
	if f.WorkerOrganizationID != nil && !eqPtr(t.WorkerOrganizationID, *f.WorkerOrganizationID) {
		return false
	}
	if f.AssigneeID != nil && !eqPtr(t.AssigneeID, *f.AssigneeID) {
		return false
	}
	if f.ManagerID != nil && !eqPtr(t.ManagerID, *f.ManagerID) {
		return false
	}
	if f.OnlyAccepted && !t.IsAccepted {
		return false
	}
	switch f.Bucket {
	case models.BucketPending:
		if t.IsAccepted {
			return false
		}
	case models.BucketInProgress:
		if !t.IsAccepted || t.IsCompleted {
			return false
		}
	case models.BucketCompleted:
		if !t.IsCompleted {
			return false
		}
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Keyword)) {
		return false
	}
	if f.JobType != "" && t.JobType != f.JobType {
		return false
	}
	if f.ExperienceLevel != "" && t.ExperienceLevel != f.ExperienceLevel {
		return false
	}
	if f.MinBids != nil && r.liveBidCount(t.ID) < *f.MinBids {
		return false
	}
	if f.MaxBids != nil && r.liveBidCount(t.ID) > *f.MaxBids {
		return false
	}
	if f.IsPostApproved != nil && t.IsPostApproved != *f.IsPostApproved {
		return false
	}
	if f.IsPostRejected != nil && t.IsPostRejected != *f.IsPostRejected {
		return false
	}
	if f.ManagerAssigned != nil && (t.ManagerID != nil) != *f.ManagerAssigned {
		return false
	}
	if f.AssigneeAssigned != nil && (t.AssigneeID != nil) != *f.AssigneeAssigned {
		return false
	}
	return true
}

func (r *memRepo) ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, int, error) {
	var out []models.Task
	for _, id := range sortedIDs(r.d.tasks, true) {
		t := r.d.tasks[id]
		if r.taskMatches(&t, f) {
			out = append(out, t)
		}
	}
	return paginate(out, f.Page), len(out), nil
}

func (r *memRepo) SetTaskSkills(ctx context.Context, taskID int64, ids []int64) error {
	if err := r.fault("SetTaskSkills"); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := r.d.skills[id]; !ok {
			return repository.ErrReference
		}
	}
	r.d.taskSkills[taskID] = slices.Clone(ids)
	return nil
}

func (r *memRepo) TaskSkills(ctx context.Context, taskID int64) ([]models.Skill, error) {
	var out []models.Skill
	for _, id := range r.d.taskSkills[taskID] {
		out = append(out, r.d.skills[id])
	}
	return out, nil
}

func (r *memRepo) SetTaskSubContractors(ctx context.Context, taskID int64, ids []int64) error {
	r.d.subContractors[taskID] = slices.Clone(ids)
	return nil
}

func (r *memRepo) TaskSubContractors(ctx context.Context, taskID int64) ([]int64, error) {
	return slices.Clone(r.d.subContractors[taskID]), nil
}

func (r *memRepo) SetTaskSubOrganizations(ctx context.Context, taskID int64, ids []int64) error {
	r.d.subOrgs[taskID] = slices.Clone(ids)
	return nil
}

func (r *memRepo) TaskSubOrganizations(ctx context.Context, taskID int64) ([]int64, error) {
	return slices.Clone(r.d.subOrgs[taskID]), nil
}

func (r *memRepo) BidStats(ctx context.Context, taskID int64) (models.BidStats, error) {
	var st models.BidStats
	for _, b := range r.d.bids {
		if b.TaskID != taskID || b.IsDelete {
			continue
		}
		st.Count++
		if !st.Min.Valid || b.Amount.LessThan(st.Min.Decimal) {
			st.Min = decimal.NewNullDecimal(b.Amount)
		}
		if !st.Max.Valid || b.Amount.GreaterThan(st.Max.Decimal) {
			st.Max = decimal.NewNullDecimal(b.Amount)
		}
	}
	return st, nil
}

func (r *memRepo) Attachments() reconcile.Store[models.Attachment] {
	return &memChildren[models.Attachment]{
		rows:   r.d.attachments,
		nextID: r.d.id,
		parent: func(a *models.Attachment) int64 { return a.TaskID },
		ident:  func(a *models.Attachment) *int64 { return &a.ID },
		audit:  func(a *models.Attachment) *models.Audit { return &a.Audit },
	}
}

// decorate заполняет поля чтения так же, как join'ы в SQL
func (r *memRepo) decorate(b *models.Bid) {
	t := r.d.tasks[b.TaskID]
	b.TaskTitle = t.Title

	bidder := r.d.users[b.BidderID]
	b.BidderName = bidder.FullName()
	if org, ok := bidder.Organization(); ok {
		b.BidderName = r.d.orgs[org].Name
	}

	b.EmployerName = ""
	employer := b.EmployerID
	if employer == nil {
		employer = t.CreatedBy
	}
	if t.IsOriginOrganization && t.OriginOrganizationID != nil {
		b.EmployerName = r.d.orgs[*t.OriginOrganizationID].Name
	} else if employer != nil {
		u := r.d.users[*employer]
		b.EmployerName = u.FullName()
	}
}

func (r *memRepo) CreateBid(ctx context.Context, b *models.Bid) error {
	if has, _ := r.HasActiveBid(ctx, b.TaskID, b.BidderID); has {
		return repository.ErrDuplicate
	}
	b.ID = r.d.id()
	r.d.bids[b.ID] = *b
	return nil
}

func (r *memRepo) GetBid(ctx context.Context, id int64) (*models.Bid, error) {
	b, ok := r.d.bids[id]
	if !ok || b.IsDelete {
		return nil, repository.ErrNotFound
	}
	r.decorate(&b)
	return &b, nil
}

func (r *memRepo) UpdateBid(ctx context.Context, b *models.Bid) error {
	if _, ok := r.d.bids[b.ID]; !ok {
		return repository.ErrNotFound
	}
	if b.IsAccepted && !b.IsDelete {
		for id, other := range r.d.bids {
			if id != b.ID && other.TaskID == b.TaskID && other.IsAccepted && !other.IsDelete {
				return repository.ErrDuplicate
			}
		}
	}
	r.d.bids[b.ID] = *b
	return nil
}

func (r *memRepo) HasActiveBid(ctx context.Context, taskID, bidderID int64) (bool, error) {
	for _, b := range r.d.bids {
		if b.TaskID == taskID && b.BidderID == bidderID && !b.IsDelete {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) AcceptedBid(ctx context.Context, taskID int64) (*models.Bid, error) {
	for _, id := range sortedIDs(r.d.bids, false) {
		b := r.d.bids[id]
		if b.TaskID == taskID && b.IsAccepted && !b.IsDelete {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *memRepo) RejectOtherBids(ctx context.Context, taskID, keepID, actorID int64, at time.Time) (int64, error) {
	if err := r.fault("RejectOtherBids"); err != nil {
		return 0, err
	}
	var n int64
	for id, b := range r.d.bids {
		if b.TaskID != taskID || id == keepID || b.IsDelete || b.IsAccepted || b.IsRejected {
			continue
		}
		b.IsRejected = true
		b.BidUpdatedBy, b.BidUpdatedOn = &actorID, &at
		b.UpdatedBy, b.UpdatedOn = &actorID, &at
		r.d.bids[id] = b
		n++
	}
	return n, nil
}

func (r *memRepo) bidMatches(b *models.Bid, f models.BidFilter) bool {
	t := r.d.tasks[b.TaskID]
	if b.IsDelete || t.IsDelete {
		return false
	}
	if f.TaskID != nil && b.TaskID != *f.TaskID {
		return false
	}
	if f.BidderID != nil && b.BidderID != *f.BidderID {
		return false
	}
	if f.BidderOrganizationID != nil && !eqPtr(r.d.users[b.BidderID].OrganizationID, *f.BidderOrganizationID) {
		return false
	}
	switch f.Bucket {
	case models.BucketPending:
		if b.IsAccepted || b.IsRejected {
			return false
		}
	case models.BucketInProgress:
		if !b.IsAccepted || b.IsRejected || b.Status == models.StatusCompleted {
			return false
		}
	case models.BucketCompleted:
		if !b.IsAccepted || b.Status != models.StatusCompleted {
			return false
		}
	case models.BucketRejected:
		if !b.IsRejected {
			return false
		}
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Keyword)) {
		return false
	}
	return true
}

func (r *memRepo) ListBids(ctx context.Context, f models.BidFilter) ([]models.Bid, int, error) {
	var out []models.Bid
	for _, id := range sortedIDs(r.d.bids, true) {
		b := r.d.bids[id]
		if r.bidMatches(&b, f) {
			r.decorate(&b)
			out = append(out, b)
		}
	}
	return paginate(out, f.Page), len(out), nil
}

func (r *memRepo) BidCosts() reconcile.Store[models.AdditionalCost] {
	return &memChildren[models.AdditionalCost]{
		rows:   r.d.costs,
		nextID: r.d.id,
		parent: func(c *models.AdditionalCost) int64 { return c.BidID },
		ident:  func(c *models.AdditionalCost) *int64 { return &c.ID },
		audit:  func(c *models.AdditionalCost) *models.Audit { return &c.Audit },
	}
}

func (r *memRepo) CreateSubTask(ctx context.Context, st *models.SubTask) error {
	st.ID = r.d.id()
	r.d.subTasks[st.ID] = *st
	return nil
}

func (r *memRepo) GetSubTask(ctx context.Context, id int64) (*models.SubTask, error) {
	st, ok := r.d.subTasks[id]
	if !ok || st.IsDelete {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (r *memRepo) UpdateSubTask(ctx context.Context, st *models.SubTask) error {
	if _, ok := r.d.subTasks[st.ID]; !ok {
		return repository.ErrNotFound
	}
	r.d.subTasks[st.ID] = *st
	return nil
}

func (r *memRepo) ListSubTasks(ctx context.Context, taskID int64, p models.Page) ([]models.SubTask, int, error) {
	var out []models.SubTask
	for _, id := range sortedIDs(r.d.subTasks, true) {
		st := r.d.subTasks[id]
		if st.TaskID == taskID && !st.IsDelete {
			out = append(out, st)
		}
	}
	return paginate(out, p), len(out), nil
}

func (r *memRepo) CountOpenSubTasks(ctx context.Context, taskID int64) (int, error) {
	n := 0
	for _, st := range r.d.subTasks {
		if st.TaskID == taskID && !st.IsDelete && !st.IsCompleted {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) SubtaskFiles() reconcile.Store[models.SubtaskFile] {
	return &memChildren[models.SubtaskFile]{
		rows:   r.d.subtaskFiles,
		nextID: r.d.id,
		parent: func(f *models.SubtaskFile) int64 { return f.SubTaskID },
		ident:  func(f *models.SubtaskFile) *int64 { return &f.ID },
		audit:  func(f *models.SubtaskFile) *models.Audit { return &f.Audit },
	}
}

func (r *memRepo) Invoices() reconcile.Store[models.Invoice] {
	return &memChildren[models.Invoice]{
		rows:   r.d.invoices,
		nextID: r.d.id,
		parent: func(inv *models.Invoice) int64 { return inv.SubTaskID },
		ident:  func(inv *models.Invoice) *int64 { return &inv.ID },
		audit:  func(inv *models.Invoice) *models.Audit { return &inv.Audit },
	}
}

type memChildren[C any] struct {
	rows   map[int64]C
	nextID func() int64
	parent func(*C) int64
	ident  func(*C) *int64
	audit  func(*C) *models.Audit
}

func (m *memChildren[C]) List(ctx context.Context, parentID int64) ([]C, error) {
	var out []C
	for _, id := range sortedIDs(m.rows, false) {
		c := m.rows[id]
		if m.parent(&c) == parentID && !m.audit(&c).IsDelete {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memChildren[C]) Find(ctx context.Context, parentID, id int64) (*C, error) {
	c, ok := m.rows[id]
	if !ok || m.parent(&c) != parentID {
		return nil, nil
	}
	return &c, nil
}

func (m *memChildren[C]) Insert(ctx context.Context, c *C) error {
	*m.ident(c) = m.nextID()
	m.rows[*m.ident(c)] = *c
	return nil
}

func (m *memChildren[C]) Save(ctx context.Context, c *C) error {
	m.rows[*m.ident(c)] = *c
	return nil
}

// memStore сериализует транзакции одним мьютексом, что заменяет блокировку строк
type memStore struct {
	mu sync.Mutex
	*memRepo
}

func newMemStore() *memStore {
	return &memStore{memRepo: &memRepo{d: newMemData(), faults: map[string]error{}}}
}

var errInjected = errors.New("injected failure")

func (m *memStore) failOn(op string) {
	m.faults[op] = errInjected
}

func (m *memStore) InTx(ctx context.Context, fn func(repository.Repo) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memRepo{d: m.d.clone(), faults: m.faults}
	if err := fn(tx); err != nil {
		return err
	}
	m.d = tx.d
	return nil
}

var _ repository.Store = (*memStore)(nil)
