package service

import (
	"time"

	"gigmarket/internal/apperr"
	"gigmarket/internal/reconcile"
	"gigmarket/models"

	"github.com/shopspring/decimal"
)

type FileFields struct {
	File *string `json:"file"`
	Name *string `json:"name"`
}

type CostFields struct {
	Cost        *decimal.Decimal `json:"cost"`
	Description *string          `json:"description"`
	Currency    *string          `json:"currency"`
}

type InvoiceFields struct {
	File       *string          `json:"file"`
	Amount     *decimal.Decimal `json:"amount"`
	IsAccepted *bool            `json:"is_accepted"`
	IsRejected *bool            `json:"is_rejected"`
	IsPaid     *bool            `json:"is_paid"`
	DatePaid   *time.Time       `json:"date_paid"`
}

// TaskInput - поля создания и частичного обновления задачи; nil означает «не менять»
type TaskInput struct {
	Title                 *string          `json:"title"`
	Description           *string          `json:"description"`
	Budget                *decimal.Decimal `json:"budget"`
	Currency              *string          `json:"currency"`
	BidType               *string          `json:"bid_type"`
	BidDeadline           *string          `json:"bid_deadline"`
	TaskDeadline          *string          `json:"task_deadline"`
	AcceptanceCriteria    *string          `json:"acceptance_criteria"`
	ExitCriteria          *string          `json:"exit_criteria"`
	JobType               *string          `json:"job_type"`
	ExperienceLevel       *string          `json:"experience_level"`
	CommunicationDeadline *string          `json:"communication_deadline"`
	CommunicationType     *string          `json:"communication_type"`
	IsSubContractorsOnly  *bool            `json:"is_sub_contractors_only"`
	Progress              *int             `json:"progress"`

	IsPostApproved   *bool  `json:"is_post_approved"`
	IsPostRejected   *bool  `json:"is_post_rejected"`
	ManagerID        *int64 `json:"manager_id"`
	AssigneeID       *int64 `json:"assignee_id"`
	IsWorkerAccepted *bool  `json:"is_worker_accepted"`
	IsCompleted      *bool  `json:"is_completed"`

	Files              []reconcile.Item[FileFields] `json:"files"`
	RequiredSkills     []int64                      `json:"required_skills"`
	SubContractorIDs   []int64                      `json:"sub_contractor_ids"`
	SubOrganizationIDs []int64                      `json:"sub_organization_ids"`
}

type BidInput struct {
	TaskID          *int64                       `json:"task_id"`
	Amount          *decimal.Decimal             `json:"amount"`
	Currency        *string                      `json:"currency"`
	Description     *string                      `json:"description"`
	Message         *string                      `json:"message"`
	CoverLetter     *string                      `json:"cover_letter"`
	AdditionalCosts []reconcile.Item[CostFields] `json:"additional_costs"`
}

type SubTaskInput struct {
	TaskID      *int64                          `json:"task_id"`
	Description *string                         `json:"description"`
	FromDate    *string                         `json:"from_date"`
	ToDate      *string                         `json:"to_date"`
	Amount      *decimal.Decimal                `json:"amount"`
	IsCompleted *bool                           `json:"is_completed"`
	IsPaid      *bool                           `json:"is_paid"`
	Files       []reconcile.Item[FileFields]    `json:"files"`
	Invoices    []reconcile.Item[InvoiceFields] `json:"invoices"`
}

type RegisterInput struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Country          string `json:"country"`
	UserType         string `json:"user_type"`
	OrganizationName string `json:"organization_name"`
}

// TaskQuery - параметры выдачи списка задач
type TaskQuery struct {
	Origin  bool
	Worker  bool
	Summary bool

	Keyword          string
	JobType          string
	ExperienceLevel  string
	MinBids          *int
	MaxBids          *int
	IsPostApproved   *bool
	IsPostRejected   *bool
	ManagerAssigned  *bool
	AssigneeAssigned *bool

	models.Page
}

type BidQuery struct {
	Origin  bool
	Worker  bool
	TaskID  *int64
	Bucket  models.Bucket
	Keyword string
	models.Page
}

type SummaryQuery struct {
	Bucket  models.Bucket
	Keyword string
	models.Page
}

var attachmentBinding = reconcile.Binding[models.Attachment, FileFields]{
	New: func(taskID int64, f FileFields) models.Attachment {
		a := models.Attachment{TaskID: taskID}
		reconcile.Set(&a.File, f.File)
		reconcile.Set(&a.Name, f.Name)
		return a
	},
	Apply: func(a *models.Attachment, f FileFields) bool {
		changed := reconcile.Set(&a.File, f.File)
		return reconcile.Set(&a.Name, f.Name) || changed
	},
	Audit: func(a *models.Attachment) *models.Audit { return &a.Audit },
	Match: func(a *models.Attachment, f FileFields) bool {
		return reconcile.Same(a.File, f.File) && reconcile.Same(a.Name, f.Name)
	},
}

var subtaskFileBinding = reconcile.Binding[models.SubtaskFile, FileFields]{
	New: func(subTaskID int64, f FileFields) models.SubtaskFile {
		sf := models.SubtaskFile{SubTaskID: subTaskID}
		reconcile.Set(&sf.File, f.File)
		reconcile.Set(&sf.Name, f.Name)
		return sf
	},
	Apply: func(sf *models.SubtaskFile, f FileFields) bool {
		changed := reconcile.Set(&sf.File, f.File)
		return reconcile.Set(&sf.Name, f.Name) || changed
	},
	Audit: func(sf *models.SubtaskFile) *models.Audit { return &sf.Audit },
	Match: func(sf *models.SubtaskFile, f FileFields) bool {
		return reconcile.Same(sf.File, f.File) && reconcile.Same(sf.Name, f.Name)
	},
}

// costBinding подставляет валюту заявки, если у строки своя не указана
func costBinding(currency string) reconcile.Binding[models.AdditionalCost, CostFields] {
	return reconcile.Binding[models.AdditionalCost, CostFields]{
		New: func(bidID int64, f CostFields) models.AdditionalCost {
			c := models.AdditionalCost{BidID: bidID, Currency: currency}
			reconcile.SetDecimal(&c.Cost, f.Cost)
			reconcile.Set(&c.Description, f.Description)
			reconcile.Set(&c.Currency, f.Currency)
			return c
		},
		Apply: func(c *models.AdditionalCost, f CostFields) bool {
			changed := reconcile.SetDecimal(&c.Cost, f.Cost)
			changed = reconcile.Set(&c.Description, f.Description) || changed
			return reconcile.Set(&c.Currency, f.Currency) || changed
		},
		Audit: func(c *models.AdditionalCost) *models.Audit { return &c.Audit },
		Match: func(c *models.AdditionalCost, f CostFields) bool {
			cur := f.Currency
			if cur == nil {
				cur = &currency
			}
			return reconcile.SameDecimal(c.Cost, f.Cost) && reconcile.Same(c.Description, f.Description) &&
				reconcile.Same(c.Currency, cur)
		},
	}
}

// invoiceBinding проставляет исполнителя и заказчика каждому новому счёту
func invoiceBinding(assignee, client *int64) reconcile.Binding[models.Invoice, InvoiceFields] {
	apply := func(inv *models.Invoice, f InvoiceFields) bool {
		changed := reconcile.Set(&inv.File, f.File)
		changed = reconcile.SetDecimal(&inv.Amount, f.Amount) || changed
		changed = reconcile.Set(&inv.IsAccepted, f.IsAccepted) || changed
		changed = reconcile.Set(&inv.IsRejected, f.IsRejected) || changed
		changed = reconcile.Set(&inv.IsPaid, f.IsPaid) || changed
		if f.DatePaid != nil && (inv.DatePaid == nil || !inv.DatePaid.Equal(*f.DatePaid)) {
			inv.DatePaid = f.DatePaid
			changed = true
		}
		return changed
	}
	return reconcile.Binding[models.Invoice, InvoiceFields]{
		New: func(subTaskID int64, f InvoiceFields) models.Invoice {
			inv := models.Invoice{SubTaskID: subTaskID, AssigneeID: assignee, ClientID: client}
			apply(&inv, f)
			return inv
		},
		Apply: apply,
		Audit: func(inv *models.Invoice) *models.Audit { return &inv.Audit },
		Check: func(inv *models.Invoice) error {
			if inv.IsAccepted && inv.IsRejected {
				return apperr.Invalid(map[string]string{"invoices": msgInvoiceBothDecisions})
			}
			return nil
		},
		Match: func(inv *models.Invoice, f InvoiceFields) bool {
			return reconcile.Same(inv.File, f.File) && reconcile.SameDecimal(inv.Amount, f.Amount) &&
				reconcile.Same(inv.IsAccepted, f.IsAccepted) && reconcile.Same(inv.IsRejected, f.IsRejected) &&
				reconcile.Same(inv.IsPaid, f.IsPaid)
		},
	}
}
