package db

import (
	"context"
	"fmt"

	"gigmarket/models"
)

var (
	insertUserQuery = namedInsert("app_user", []string{"first_name", "last_name", "email", "country", "roles",
		"is_active", "is_verified", "is_locked", "is_super_admin", "has_organization", "organization_id",
		"verification_token", "created_on"})
	insertOrganizationQuery = namedInsert("organization", columns([]string{"name", "country", "description"}, auditInsertColumns))
	insertCoWorkerQuery     = namedInsert("co_worker", columns([]string{"user_id", "organization_id", "manager_id",
		"is_external", "is_accepted"}, auditInsertColumns))
)

func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	query := `SELECT * FROM app_user WHERE id = $1 AND ` + alive("")
	if err := get(ctx, s.q, u, query, id); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Storage) EmailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	query := `SELECT EXISTS (SELECT 1 FROM app_user WHERE lower(email) = lower($1) AND ` + alive("") + `)`
	err := get(ctx, s.q, &taken, query, email)
	return taken, err
}

func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	id, err := insertReturning(ctx, s.q, insertUserQuery, u)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

func (s *Storage) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	o := &models.Organization{}
	query := `SELECT * FROM organization WHERE id = $1 AND ` + alive("")
	if err := get(ctx, s.q, o, query, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Storage) CreateOrganization(ctx context.Context, o *models.Organization) error {
	id, err := insertReturning(ctx, s.q, insertOrganizationQuery, o)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	o.ID = id
	return nil
}

func (s *Storage) CreateCoWorker(ctx context.Context, c *models.CoWorker) error {
	id, err := insertReturning(ctx, s.q, insertCoWorkerQuery, c)
	if err != nil {
		return fmt.Errorf("insert co_worker: %w", err)
	}
	c.ID = id
	return nil
}
