package db

import (
	"context"
	"errors"
	"fmt"

	"gigmarket/internal/repository"

	"github.com/jmoiron/sqlx"
)

// childTable - таблица дочерних записей, которые сводятся через reconcile
type childTable[C any] struct {
	q         sqlx.ExtContext
	table     string
	parentCol string
	insert    string
	update    string
	setID     func(*C, int64)
}

func (c *childTable[C]) List(ctx context.Context, parentID int64) ([]C, error) {
	var out []C
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1 AND %s ORDER BY id`, c.table, c.parentCol, alive(""))
	if err := sqlx.SelectContext(ctx, c.q, &out, query, parentID); err != nil {
		return nil, fmt.Errorf("list %s: %w", c.table, err)
	}
	return out, nil
}

func (c *childTable[C]) Find(ctx context.Context, parentID, id int64) (*C, error) {
	child := new(C)
	query := fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 AND %s = $2`, c.table, c.parentCol)
	if err := get(ctx, c.q, child, query, id, parentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s %d: %w", c.table, id, err)
	}
	return child, nil
}

func (c *childTable[C]) Insert(ctx context.Context, child *C) error {
	id, err := insertReturning(ctx, c.q, c.insert, child)
	if err != nil {
		return fmt.Errorf("insert %s: %w", c.table, err)
	}
	c.setID(child, id)
	return nil
}

func (c *childTable[C]) Save(ctx context.Context, child *C) error {
	if err := execNamed(ctx, c.q, c.update, child); err != nil {
		return fmt.Errorf("update %s: %w", c.table, err)
	}
	return nil
}
