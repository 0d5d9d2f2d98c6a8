// Package projection отбирает поля ответа по виду сущности, режиму выдачи и роли зрителя.
package projection

import (
	"slices"

	"gigmarket/models"
)

type Entity string

const (
	Task       Entity = "task"
	Bid        Entity = "bid"
	BidSummary Entity = "bid_summary"
	SubTask    Entity = "sub_task"
)

type Mode string

const (
	Summary  Mode = "summary"
	Full     Mode = "full"
	FindTask Mode = "find_task"
)

type Role string

const (
	Manager           Role = "manager"
	Sales             Role = "sales"
	ConsultantManager Role = "consultant_manager"
	Consultant        Role = "consultant"
	Member            Role = "member"
)

// Fields - полностью собранное представление сущности
type Fields map[string]any

// RoleOf выбирает роль зрителя по приоритету: manager > sales > consultant_manager > consultant > member
func RoleOf(u *models.User) Role {
	switch {
	case u == nil:
		return Member
	case u.HasAnyRole(models.RoleAdmin, models.RoleTaskManager):
		return Manager
	case u.HasRole(models.RoleSales):
		return Sales
	case u.HasRole(models.RoleConsultantManager):
		return ConsultantManager
	case u.HasRole(models.RoleConsultant):
		return Consultant
	default:
		return Member
	}
}

var taskFull = []string{
	"id", "title", "description", "budget", "currency", "bid_type", "bid_deadline", "task_deadline",
	"acceptance_criteria", "exit_criteria", "job_type", "experience_level", "communication_deadline",
	"communication_type", "attachments", "skills", "sub_contractors", "sub_organizations",
	"is_completed", "is_accepted", "is_worker_accepted", "is_fully_paid", "status", "progress",
	"total_amount", "remaining_amount", "min_bid_value", "max_bid_value", "bid_count",
	"is_sub_contractors_only", "is_origin_organization", "origin_organization",
	"is_post_approved", "is_post_rejected", "post_approved_by", "post_approved_on",
	"is_worker_organization", "worker_organization", "assignee", "manager", "task_owner",
	"task_status", "post_status", "has_manager", "has_assignee",
	"created_by", "created_on", "updated_by", "updated_on",
}

var bidFull = []string{
	"id", "task_id", "task_title", "bidder_id", "bidder_name", "employer_id", "employer_name",
	"amount", "currency", "description", "message", "cover_letter", "revision", "status",
	"is_accepted", "is_rejected", "bid_status", "bid_updated_by", "bid_updated_on",
	"additional_costs", "created_by", "created_on", "updated_on",
}

var subTaskFull = []string{
	"id", "task_id", "description", "from_date", "to_date", "time_logged", "amount", "revision",
	"is_completed", "is_invoiced", "is_paid", "files", "invoices", "created_by", "created_on", "updated_on",
}

var bidSummary = []string{
	"id", "title", "budget", "currency", "bid_deadline", "bid_status",
	"bid_count", "min_bid_value", "max_bid_value",
}

var allRoles = []Role{Manager, Sales, ConsultantManager, Consultant, Member}

var table = map[Entity]map[Mode]map[Role][]string{
	Task: {
		Summary: {
			Manager: {"id", "title", "budget", "currency", "bid_deadline", "is_accepted",
				"is_worker_accepted", "task_status", "created_on", "post_status",
				"has_manager", "has_assignee", "exit_criteria"},
			Sales: {"id", "title", "budget", "currency", "bid_type", "bid_deadline", "task_status",
				"task_deadline", "is_completed", "has_manager", "created_on", "is_accepted",
				"is_worker_accepted", "exit_criteria"},
			ConsultantManager: {"id", "title", "task_status", "task_deadline", "is_completed",
				"has_assignee", "created_on"},
			Consultant: {"id", "title", "task_status", "task_deadline", "is_completed",
				"has_assignee", "created_on"},
			Member: {"id", "title", "budget", "currency", "bid_type", "bid_deadline", "task_deadline",
				"is_completed", "task_status", "created_on"},
		},
		// кто одобрил публикацию, видят только менеджеры
		Full: everyone(taskFull, func(r Role) []string {
			if r == Manager {
				return nil
			}
			return []string{"post_approved_by"}
		}),
		FindTask: everyone([]string{"id", "title", "budget", "currency", "description",
			"bid_deadline", "task_deadline", "skills"}, nil),
	},
	Bid: {
		Summary: everyone([]string{"id", "task_id", "task_title", "bidder_id", "bidder_name",
			"employer_name", "amount", "currency", "is_accepted", "is_rejected", "bid_status"}, nil),
		Full: everyone(bidFull, nil),
	},
	BidSummary: {
		Summary: everyone(bidSummary, nil),
	},
	SubTask: {
		Summary: everyone(subTaskFull, func(r Role) []string { return []string{"files", "invoices"} }),
		Full:    everyone(subTaskFull, nil),
	},
}

// everyone раздаёт один список всем ролям, убирая поля, скрытые от конкретной роли
func everyone(fields []string, hidden func(Role) []string) map[Role][]string {
	out := make(map[Role][]string, len(allRoles))
	for _, r := range allRoles {
		var skip []string
		if hidden != nil {
			skip = hidden(r)
		}
		list := make([]string, 0, len(fields))
		for _, f := range fields {
			if !slices.Contains(skip, f) {
				list = append(list, f)
			}
		}
		out[r] = list
	}
	return out
}

// Allowed возвращает разрешённые поля; неизвестное сочетание не открывает ничего
func Allowed(e Entity, m Mode, r Role) []string {
	return table[e][m][r]
}

// Wants сообщает, нужно ли вообще собирать поле для этого зрителя
func Wants(e Entity, m Mode, r Role, field string) bool {
	return slices.Contains(Allowed(e, m, r), field)
}

// Project оставляет в представлении только разрешённые поля
func Project(e Entity, m Mode, r Role, full Fields) Fields {
	allowed := Allowed(e, m, r)
	out := make(Fields, len(allowed))
	for _, f := range allowed {
		if v, ok := full[f]; ok {
			out[f] = v
		}
	}
	return out
}
