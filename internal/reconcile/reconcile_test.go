package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gigmarket/internal/reconcile"
	"gigmarket/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type costFields struct {
	Cost        *decimal.Decimal `json:"cost"`
	Description *string          `json:"description"`
}

type memCosts struct {
	rows   map[int64]*models.AdditionalCost
	nextID int64
	saves  int
}

func newMemCosts() *memCosts {
	return &memCosts{rows: map[int64]*models.AdditionalCost{}}
}

func (m *memCosts) List(ctx context.Context, parentID int64) ([]models.AdditionalCost, error) {
	var out []models.AdditionalCost
	for id := int64(1); id <= m.nextID; id++ {
		if c, ok := m.rows[id]; ok && c.BidID == parentID && !c.IsDelete {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memCosts) Find(ctx context.Context, parentID, id int64) (*models.AdditionalCost, error) {
	c, ok := m.rows[id]
	if !ok || c.BidID != parentID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCosts) Insert(ctx context.Context, c *models.AdditionalCost) error {
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

func (m *memCosts) Save(ctx context.Context, c *models.AdditionalCost) error {
	m.saves++
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

var binding = reconcile.Binding[models.AdditionalCost, costFields]{
	New: func(bidID int64, f costFields) models.AdditionalCost {
		c := models.AdditionalCost{BidID: bidID}
		reconcile.SetDecimal(&c.Cost, f.Cost)
		reconcile.Set(&c.Description, f.Description)
		return c
	},
	Apply: func(c *models.AdditionalCost, f costFields) bool {
		changed := reconcile.SetDecimal(&c.Cost, f.Cost)
		return reconcile.Set(&c.Description, f.Description) || changed
	},
	Audit: func(c *models.AdditionalCost) *models.Audit { return &c.Audit },
	Match: func(c *models.AdditionalCost, f costFields) bool {
		return reconcile.SameDecimal(c.Cost, f.Cost) && reconcile.Same(c.Description, f.Description)
	},
}

func items(t *testing.T, raw string) []reconcile.Item[costFields] {
	t.Helper()
	var out []reconcile.Item[costFields]
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := newMemCosts()

	res, err := reconcile.Apply(ctx, store, binding, 10, items(t, `[
		{"cost": "5", "description": "travel"},
		{"cost": "7.50", "description": "licence"}
	]`), 3, now)
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)
	require.Equal(t, int64(3), *store.rows[1].CreatedBy)
	require.True(t, store.rows[1].IsActive)

	later := now.Add(time.Hour)
	res, err = reconcile.Apply(ctx, store, binding, 10, items(t, `[
		{"id": 1, "cost": "6"},
		{"id": 2, "is_delete": true},
		{"cost": "1", "description": "parking"}
	]`), 4, later)
	require.NoError(t, err)
	require.Equal(t, reconcile.Result{Created: 1, Updated: 1, Deleted: 1}, res)

	require.True(t, store.rows[1].Cost.Equal(decimal.NewFromInt(6)))
	require.Equal(t, "travel", store.rows[1].Description)
	require.Equal(t, int64(4), *store.rows[1].UpdatedBy)

	require.True(t, store.rows[2].IsDelete)
	require.Equal(t, int64(4), *store.rows[2].DeletedBy)
	require.Equal(t, later, *store.rows[2].DeletedOn)

	live, _ := store.List(ctx, 10)
	require.Len(t, live, 2)
}

func TestUnknownOrForeignIDIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := newMemCosts()
	_, err := reconcile.Apply(ctx, store, binding, 10, items(t, `[{"cost": "5", "description": "a"}]`), 1, now)
	require.NoError(t, err)

	res, err := reconcile.Apply(ctx, store, binding, 11, items(t, `[
		{"id": 1, "cost": "100"},
		{"id": 99, "is_delete": true},
		{"is_delete": true}
	]`), 1, now)
	require.NoError(t, err)
	require.Equal(t, 3, res.Skipped)
	require.False(t, res.Changed())
	require.True(t, store.rows[1].Cost.Equal(decimal.NewFromInt(5)))
}

func TestReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemCosts()
	payload := `[
		{"cost": "5", "description": "same"},
		{"cost": "5", "description": "same"}
	]`

	res, err := reconcile.Apply(ctx, store, binding, 10, items(t, payload), 1, now)
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)

	res, err = reconcile.Apply(ctx, store, binding, 10, items(t, payload), 1, now)
	require.NoError(t, err)
	require.Equal(t, 0, res.Created)
	require.Len(t, store.rows, 2)

	del := items(t, `[{"id": 1, "is_delete": true}]`)
	_, err = reconcile.Apply(ctx, store, binding, 10, del, 1, now)
	require.NoError(t, err)
	saves := store.saves
	res, err = reconcile.Apply(ctx, store, binding, 10, del, 2, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, saves, store.saves)
	require.Equal(t, int64(1), *store.rows[1].DeletedBy)
}

func TestUnchangedFieldsDoNotStamp(t *testing.T) {
	ctx := context.Background()
	store := newMemCosts()
	_, err := reconcile.Apply(ctx, store, binding, 10, items(t, `[{"cost": "5", "description": "a"}]`), 1, now)
	require.NoError(t, err)

	res, err := reconcile.Apply(ctx, store, binding, 10, items(t, `[{"id": 1, "cost": "5.00"}]`), 2, now)
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Nil(t, store.rows[1].UpdatedBy)
}

func TestDeliberateDuplicateIsCreated(t *testing.T) {
	ctx := context.Background()
	store := newMemCosts()
	_, err := reconcile.Apply(ctx, store, binding, 10, items(t, `[{"cost": "5", "description": "taxi"}]`), 1, now)
	require.NoError(t, err)

	// второй такой же расход вместе с новым - это не повтор прошлого запроса
	payload := `[
		{"cost": "5", "description": "taxi"},
		{"cost": "5", "description": "taxi"}
	]`
	res, err := reconcile.Apply(ctx, store, binding, 10, items(t, payload), 1, now)
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)
	live, _ := store.List(ctx, 10)
	require.Len(t, live, 3)

	res, err = reconcile.Apply(ctx, store, binding, 10, items(t, payload), 1, now)
	require.NoError(t, err)
	require.Equal(t, 0, res.Created)
	require.Equal(t, 2, res.Skipped)
}

func TestSameFieldsFromAnotherActorAreCreated(t *testing.T) {
	ctx := context.Background()
	store := newMemCosts()
	payload := items(t, `[{"cost": "5", "description": "taxi"}]`)
	_, err := reconcile.Apply(ctx, store, binding, 10, payload, 1, now)
	require.NoError(t, err)

	res, err := reconcile.Apply(ctx, store, binding, 10, payload, 2, now)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Equal(t, int64(2), *store.rows[2].CreatedBy)
}

var errTooExpensive = errors.New("cost over limit")

func TestCheckRunsOnMergedRecord(t *testing.T) {
	ctx := context.Background()
	store := newMemCosts()
	limited := binding
	limited.Check = func(c *models.AdditionalCost) error {
		if c.Cost.GreaterThan(decimal.NewFromInt(100)) {
			return errTooExpensive
		}
		return nil
	}

	_, err := reconcile.Apply(ctx, store, limited, 10, items(t, `[{"cost": "500", "description": "flight"}]`), 1, now)
	require.ErrorIs(t, err, errTooExpensive)
	require.Empty(t, store.rows)

	_, err = reconcile.Apply(ctx, store, limited, 10, items(t, `[{"cost": "50", "description": "train"}]`), 1, now)
	require.NoError(t, err)

	// сохранённое описание плюс новая сумма дают недопустимую запись
	_, err = reconcile.Apply(ctx, store, limited, 10, items(t, `[{"id": 1, "cost": "150"}]`), 1, now)
	require.ErrorIs(t, err, errTooExpensive)
	require.True(t, store.rows[1].Cost.Equal(decimal.NewFromInt(50)))
	require.Zero(t, store.saves)
}
