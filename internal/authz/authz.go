// Package authz проверяет права пользователя по именованным правилам.
package authz

import (
	"gigmarket/internal/apperr"
	"gigmarket/models"
)

// Capability - именованное правило доступа. Пустой список ролей означает
// любого пользователя в хорошем состоянии учётной записи.
type Capability struct {
	Name  string
	Roles []models.Role
	Super bool
}

func Exactly(name string, role models.Role) Capability {
	return Capability{Name: name, Roles: []models.Role{role}}
}

func AnyOf(name string, roles ...models.Role) Capability {
	return Capability{Name: name, Roles: roles}
}

var (
	Authenticated = Capability{Name: "authenticated"}

	Admin        = Exactly("admin", models.RoleAdmin)
	GigWorker    = Exactly("gig_worker", models.RoleGigWorker)
	Customer     = Exactly("customer", models.RoleCustomer)
	OverEmployee = Exactly("over_employee", models.RoleOverEmployee)

	Consultant        = AnyOf("consultant", models.RoleConsultant, models.RoleConsultantManager, models.RoleAdmin)
	TaskManager       = AnyOf("task_manager", models.RoleTaskManager, models.RoleAdmin)
	ConsultantManager = AnyOf("consultant_manager", models.RoleConsultantManager, models.RoleAdmin)
	Billing           = AnyOf("billing", models.RoleBilling, models.RoleAdmin)
	Sales             = AnyOf("sales", models.RoleSales, models.RoleAdmin)

	SuperAdmin = Capability{Name: "super_admin", Super: true}
)

// InGoodStanding: активен, подтверждён, не заблокирован и не удалён
func InGoodStanding(actor *models.User) bool {
	return actor != nil && actor.IsActive && actor.IsVerified && !actor.IsLocked && !actor.IsDelete
}

func Permit(actor *models.User, c Capability) bool {
	if !InGoodStanding(actor) {
		return false
	}
	if c.Super {
		return actor.IsSuperAdmin
	}
	if len(c.Roles) == 0 {
		return true
	}
	return actor.HasAnyRole(c.Roles...)
}

func PermitAny(actor *models.User, caps ...Capability) bool {
	for _, c := range caps {
		if Permit(actor, c) {
			return true
		}
	}
	return false
}

// Require возвращает ошибку авторизации, если ни одно правило не выполнено
func Require(actor *models.User, caps ...Capability) error {
	if PermitAny(actor, caps...) {
		return nil
	}
	if !InGoodStanding(actor) {
		return apperr.Forbidden("Account is not active, not verified or locked")
	}
	return apperr.Forbidden("You do not have permission to perform this action")
}
