package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Audit - общий конверт мягкого удаления и аудита для всех сущностей
type Audit struct {
	IsActive  bool       `db:"is_active" json:"is_active"`
	IsDelete  bool       `db:"is_delete" json:"-"`
	CreatedBy *int64     `db:"created_by" json:"created_by"`
	CreatedOn time.Time  `db:"created_on" json:"created_on"`
	UpdatedBy *int64     `db:"updated_by" json:"updated_by"`
	UpdatedOn *time.Time `db:"updated_on" json:"updated_on"`
	DeletedBy *int64     `db:"deleted_by" json:"-"`
	DeletedOn *time.Time `db:"deleted_on" json:"-"`
}

func NewAudit(actorID int64, now time.Time) Audit {
	return Audit{IsActive: true, CreatedBy: &actorID, CreatedOn: now}
}

// Touch проставляет отметку обновления
func (a *Audit) Touch(actorID int64, now time.Time) {
	a.UpdatedBy = &actorID
	a.UpdatedOn = &now
}

// Tombstone помечает запись удалённой. Повторный вызов ничего не меняет.
func (a *Audit) Tombstone(actorID int64, now time.Time) bool {
	if a.IsDelete {
		return false
	}
	a.IsDelete = true
	a.DeletedBy = &actorID
	a.DeletedOn = &now
	return true
}

type Role string

const (
	RoleAdmin             Role = "admin"
	RoleCustomer          Role = "customer"
	RoleConsultant        Role = "consultant"
	RoleConsultantManager Role = "consultant_manager"
	RoleTaskManager       Role = "task_manager"
	RoleBilling           Role = "billing"
	RoleSales             Role = "sales"
	RoleGigWorker         Role = "gig_worker"
	RoleOverEmployee      Role = "over_employee"
)

// Сущность Пользователя
type User struct {
	ID                int64          `db:"id" json:"id"`
	FirstName         string         `db:"first_name" json:"first_name"`
	LastName          string         `db:"last_name" json:"last_name"`
	Email             string         `db:"email" json:"email"`
	Country           string         `db:"country" json:"country"`
	Roles             pq.StringArray `db:"roles" json:"roles"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	IsVerified        bool           `db:"is_verified" json:"is_verified"`
	IsLocked          bool           `db:"is_locked" json:"is_locked"`
	IsSuperAdmin      bool           `db:"is_super_admin" json:"is_super_admin"`
	IsDelete          bool           `db:"is_delete" json:"-"`
	HasOrganization   bool           `db:"has_organization" json:"has_organization"`
	OrganizationID    *int64         `db:"organization_id" json:"organization_id"`
	VerificationToken string         `db:"verification_token" json:"-"`
	CreatedOn         time.Time      `db:"created_on" json:"created_on"`
}

func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

func (u *User) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

// Organization возвращает id организации пользователя, если он в ней состоит
func (u *User) Organization() (int64, bool) {
	if !u.HasOrganization || u.OrganizationID == nil {
		return 0, false
	}
	return *u.OrganizationID, true
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Сущность Организации
type Organization struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Country     string `db:"country" json:"country"`
	Description string `db:"description" json:"description"`
	Audit
}

// CoWorker - членство пользователя в организации
type CoWorker struct {
	ID             int64  `db:"id" json:"id"`
	UserID         int64  `db:"user_id" json:"user_id"`
	OrganizationID int64  `db:"organization_id" json:"organization_id"`
	ManagerID      *int64 `db:"manager_id" json:"manager_id"`
	IsExternal     bool   `db:"is_external" json:"is_external"`
	IsAccepted     bool   `db:"is_accepted" json:"is_accepted"`
	Audit
}

type Skill struct {
	ID    int64  `db:"id" json:"id"`
	Skill string `db:"skill" json:"skill"`
}
