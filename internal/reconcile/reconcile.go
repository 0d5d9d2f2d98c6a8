// Package reconcile сводит список вложенных элементов из запроса с дочерними
// записями родителя: создаёт, обновляет по полям и помечает удалёнными.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gigmarket/models"

	"github.com/shopspring/decimal"
)

// Item - элемент вложенной коллекции. Без ID это новая запись,
// с ID и IsDelete - удаление, с ID без IsDelete - обновление присланных полей.
type Item[P any] struct {
	ID       *int64
	IsDelete bool
	Fields   P
}

func (it *Item[P]) UnmarshalJSON(data []byte) error {
	var head struct {
		ID       *int64 `json:"id"`
		IsDelete bool   `json:"is_delete"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var fields P
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	it.ID, it.IsDelete, it.Fields = head.ID, head.IsDelete, fields
	return nil
}

// Store - хранилище дочерних записей одного вида
type Store[C any] interface {
	// List возвращает неудалённые записи родителя
	List(ctx context.Context, parentID int64) ([]C, error)
	// Find возвращает nil, nil если записи нет или она принадлежит другому родителю
	Find(ctx context.Context, parentID, id int64) (*C, error)
	Insert(ctx context.Context, child *C) error
	Save(ctx context.Context, child *C) error
}

// Binding связывает тип записи C с типом полей запроса P
type Binding[C, P any] struct {
	New   func(parentID int64, fields P) C
	Apply func(child *C, fields P) bool
	Audit func(child *C) *models.Audit
	// Match сравнивает живую запись с полями нового элемента. Если все новые
	// элементы запроса совпали с записями того же автора, запрос считается
	// повтором и ничего не создаёт. Необязательно.
	Match func(child *C, fields P) bool
	// Check проверяет запись после слияния полей, до сохранения. Необязательно.
	Check func(child *C) error
}

type Result struct {
	Created int
	Updated int
	Deleted int
	Skipped int
}

func (r Result) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

func Apply[C, P any](ctx context.Context, store Store[C], b Binding[C, P], parentID int64, items []Item[P], actorID int64, now time.Time) (Result, error) {
	var res Result
	if len(items) == 0 {
		return res, nil
	}

	replay := false
	if b.Match != nil && hasNew(items) {
		existing, err := store.List(ctx, parentID)
		if err != nil {
			return res, fmt.Errorf("list children of %d: %w", parentID, err)
		}
		replay = replayed(existing, b, items, actorID)
	}

	for _, it := range items {
		if it.ID == nil {
			if it.IsDelete || replay {
				res.Skipped++
				continue
			}
			child := b.New(parentID, it.Fields)
			if err := check(b, &child); err != nil {
				return res, err
			}
			*b.Audit(&child) = models.NewAudit(actorID, now)
			if err := store.Insert(ctx, &child); err != nil {
				return res, fmt.Errorf("insert child of %d: %w", parentID, err)
			}
			res.Created++
			continue
		}

		child, err := store.Find(ctx, parentID, *it.ID)
		if err != nil {
			return res, fmt.Errorf("find child %d: %w", *it.ID, err)
		}
		if child == nil || b.Audit(child).IsDelete {
			res.Skipped++
			continue
		}

		audit := b.Audit(child)
		if it.IsDelete {
			audit.Tombstone(actorID, now)
			res.Deleted++
		} else if b.Apply(child, it.Fields) {
			if err := check(b, child); err != nil {
				return res, err
			}
			audit.Touch(actorID, now)
			res.Updated++
		} else {
			res.Skipped++
			continue
		}
		if err := store.Save(ctx, child); err != nil {
			return res, fmt.Errorf("save child %d: %w", *it.ID, err)
		}
	}
	return res, nil
}

func check[C, P any](b Binding[C, P], child *C) error {
	if b.Check == nil {
		return nil
	}
	return b.Check(child)
}

func hasNew[P any](items []Item[P]) bool {
	for _, it := range items {
		if it.ID == nil && !it.IsDelete {
			return true
		}
	}
	return false
}

// replayed: каждому новому элементу нашлась своя запись, созданная тем же автором
func replayed[C, P any](pool []C, b Binding[C, P], items []Item[P], actorID int64) bool {
	claimed := make([]bool, len(pool))
	for _, it := range items {
		if it.ID != nil || it.IsDelete {
			continue
		}
		found := false
		for i := range pool {
			by := b.Audit(&pool[i]).CreatedBy
			if claimed[i] || by == nil || *by != actorID || !b.Match(&pool[i], it.Fields) {
				continue
			}
			claimed[i], found = true, true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

// Set записывает присланное значение, если оно есть и отличается
func Set[T comparable](dst *T, src *T) bool {
	if src == nil || *dst == *src {
		return false
	}
	*dst = *src
	return true
}

func SetDecimal(dst *decimal.Decimal, src *decimal.Decimal) bool {
	if src == nil || dst.Equal(*src) {
		return false
	}
	*dst = *src
	return true
}

// Same сравнивает присланное значение с текущим; отсутствующее поле не мешает совпадению
func Same[T comparable](cur T, src *T) bool {
	return src == nil || cur == *src
}

func SameDecimal(cur decimal.Decimal, src *decimal.Decimal) bool {
	return src == nil || cur.Equal(*src)
}
