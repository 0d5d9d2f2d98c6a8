package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var Currencies = []string{"USD", "EUR", "GBP", "INR", "SEK"}

func ValidCurrency(c string) bool {
	for _, v := range Currencies {
		if v == c {
			return true
		}
	}
	return false
}

// Сущность Заявки
type Bid struct {
	ID           int64           `db:"id" json:"id"`
	TaskID       int64           `db:"task_id" json:"task_id"`
	BidderID     int64           `db:"bidder_id" json:"bidder_id"`
	EmployerID   *int64          `db:"employer_id" json:"employer_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Currency     string          `db:"currency" json:"currency"`
	Description  string          `db:"description" json:"description"`
	Message      string          `db:"message" json:"message"`
	CoverLetter  string          `db:"cover_letter" json:"cover_letter"`
	Revision     int             `db:"revision" json:"revision"`
	Status       WorkStatus      `db:"status" json:"status"`
	IsAccepted   bool            `db:"is_accepted" json:"is_accepted"`
	IsRejected   bool            `db:"is_rejected" json:"is_rejected"`
	BidUpdatedBy *int64          `db:"bid_updated_by" json:"bid_updated_by"`
	BidUpdatedOn *time.Time      `db:"bid_updated_on" json:"bid_updated_on"`
	Audit

	// Поля чтения, заполняются join'ами
	TaskTitle    string `db:"task_title" json:"task_title"`
	BidderName   string `db:"bidder_name" json:"bidder_name"`
	EmployerName string `db:"employer_name" json:"employer_name"`
}

func (b *Bid) Decided() bool {
	return b.IsAccepted || b.IsRejected
}

func (b *Bid) DecisionStatus() string {
	switch {
	case b.IsAccepted:
		return "Approved"
	case b.IsRejected:
		return "Rejected"
	default:
		return "Pending"
	}
}

// Decide фиксирует решение владельца задачи по заявке
func (b *Bid) Decide(accept bool, actorID int64, now time.Time) {
	if accept {
		b.IsAccepted = true
		b.Status = StatusInProgress
	} else {
		b.IsRejected = true
	}
	b.BidUpdatedBy = &actorID
	b.BidUpdatedOn = &now
	b.Touch(actorID, now)
}

type AdditionalCost struct {
	ID          int64           `db:"id" json:"id"`
	BidID       int64           `db:"bid_id" json:"bid_id"`
	Cost        decimal.Decimal `db:"cost" json:"cost"`
	Description string          `db:"description" json:"description"`
	Currency    string          `db:"currency" json:"currency"`
	Audit
}
