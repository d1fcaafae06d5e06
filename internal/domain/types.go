package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type TicketStatus string

const (
	TicketPendingPayment TicketStatus = "PENDING_PAYMENT"
	TicketPaid           TicketStatus = "PAID"
	TicketValidated      TicketStatus = "VALIDATED"
	TicketCancelled      TicketStatus = "CANCELLED"
)

// Terminal reports whether no transition may leave s.
func (s TicketStatus) Terminal() bool {
	return s == TicketValidated || s == TicketCancelled
}

// CanTransition reports whether the ticket state machine allows s -> to.
func (s TicketStatus) CanTransition(to TicketStatus) bool {
	if s.Terminal() {
		return false
	}

	switch to {
	case TicketPaid:
		return s == TicketPendingPayment
	case TicketValidated:
		return s == TicketPaid
	case TicketCancelled:
		return true
	}

	return false
}

// CanonicalStatus is the provider-independent payment outcome.
type CanonicalStatus string

const (
	StatusApproved CanonicalStatus = "APPROVED"
	StatusPending  CanonicalStatus = "PENDING"
	StatusRejected CanonicalStatus = "REJECTED"
	StatusRefunded CanonicalStatus = "REFUNDED"
)

func (s CanonicalStatus) Valid() bool {
	switch s {
	case StatusApproved, StatusPending, StatusRejected, StatusRefunded:
		return true
	}
	return false
}

// Source identifies which trigger produced a confirmation.
type Source string

const (
	SourcePush  Source = "push"
	SourcePoll  Source = "poll"
	SourceSweep Source = "sweep"
)

type Order struct {
	ID                uuid.UUID
	BuyerName         string
	BuyerEmail        string
	BuyerPhone        string
	Quantity          int
	UnitPrice         decimal.Decimal
	TotalPrice        decimal.Decimal
	PaymentStatus     PaymentStatus
	ProviderPaymentID string
	ProviderStatus    string
	AccessToken       string // empty until issued
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Ticket struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	Code           string
	CredentialHash string
	Status         TicketStatus
	ValidatedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ValidationRecord struct {
	ID          uuid.UUID
	TicketID    uuid.UUID
	OperatorID  string
	ValidatedAt time.Time
	IP          string
	UserAgent   string
}

type OrderWithTickets struct {
	Order   Order
	Tickets []Ticket
}

// ConfirmationRequest is what every ingestion source hands to the
// reconciliation engine.
type ConfirmationRequest struct {
	OrderID           uuid.UUID
	ProviderPaymentID string
	Status            CanonicalStatus
	RawStatus         string
	Source            Source
}
