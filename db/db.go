package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gigmarket/internal/repository"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Storage реализует repository.Store поверх PostgreSQL.
// Экземпляр, созданный внутри InTx, работает в рамках транзакции.
type Storage struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db, q: db}
}

var _ repository.Store = (*Storage)(nil)

// InTx выполняет fn в одной транзакции; ошибка fn откатывает все изменения
func (s *Storage) InTx(ctx context.Context, fn func(repository.Repo) error) (err error) {
	if s.db == nil {
		// уже внутри транзакции
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Storage{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapErr(err))
	}
	return nil
}

// alive - единое условие отсечения мягко удалённых строк
func alive(alias string) string {
	if alias == "" {
		return "is_delete = FALSE"
	}
	return alias + ".is_delete = FALSE"
}

var (
	auditInsertColumns = []string{"is_active", "is_delete", "created_by", "created_on",
		"updated_by", "updated_on", "deleted_by", "deleted_on"}
	auditUpdateColumns = []string{"is_active", "is_delete", "updated_by", "updated_on", "deleted_by", "deleted_on"}
)

func columns(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func namedInsert(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s) RETURNING id",
		table, strings.Join(cols, ", "), strings.Join(cols, ", :"))
}

func namedUpdate(table string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = :" + c
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = :id", table, strings.Join(sets, ", "))
}

// insertReturning выполняет именованный INSERT ... RETURNING id
func insertReturning(ctx context.Context, q sqlx.ExtContext, query string, arg any) (int64, error) {
	rows, err := sqlx.NamedQueryContext(ctx, q, query, arg)
	if err != nil {
		return 0, mapErr(err)
	}
	defer rows.Close()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, mapErr(rows.Err())
}

// execNamed выполняет именованный UPDATE и сообщает ErrNotFound, если строка не найдена
func execNamed(ctx context.Context, q sqlx.ExtContext, query string, arg any) error {
	res, err := sqlx.NamedExecContext(ctx, q, query, arg)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func get(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	if err := sqlx.GetContext(ctx, q, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	return nil
}

func mapErr(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, pqErr.Constraint)
	case "23503":
		return fmt.Errorf("%w: %s", repository.ErrReference, pqErr.Constraint)
	}
	return err
}

// where собирает условия выборки с плейсхолдерами $n
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	if len(args) == 0 {
		w.conds = append(w.conds, cond)
		return
	}
	ph := make([]any, len(args))
	for i, a := range args {
		w.args = append(w.args, a)
		ph[i] = fmt.Sprintf("$%d", len(w.args))
	}
	w.conds = append(w.conds, fmt.Sprintf(cond, ph...))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// titleLike добавляет поиск подстроки в заголовке; спецсимволы LIKE из запроса ищутся буквально
func (w *where) titleLike(column, keyword string) {
	w.add(column+` ILIKE %s ESCAPE '\'`, "%"+likeEscaper.Replace(keyword)+"%")
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(w.conds, " AND ")
}

// page добавляет LIMIT/OFFSET как последние аргументы
func (w *where) page(limit, offset int) (string, []any) {
	n := len(w.args)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), append(append([]any{}, w.args...), limit, offset)
}
