package domain

import (
	"time"
)

// PaymentKind is the contribution type of a payment.
type PaymentKind string

const (
	// KindTithe is a fixed-proportion recurring contribution.
	KindTithe PaymentKind = "tithe"
	// KindOffering is a discretionary contribution, optionally sub-categorized.
	KindOffering PaymentKind = "offering"
)

// Valid reports whether k is a known payment kind.
func (k PaymentKind) Valid() bool {
	return k == KindTithe || k == KindOffering
}

// PaymentStatus is the lifecycle state of a payment.
// A payment starts pending and moves exactly once to validated or rejected.
type PaymentStatus string

const (
	// StatusPending indicates the payment awaits a treasurer decision.
	StatusPending PaymentStatus = "pending"
	// StatusValidated indicates a treasurer approved the payment. Terminal.
	StatusValidated PaymentStatus = "validated"
	// StatusRejected indicates a treasurer rejected the payment. Terminal.
	StatusRejected PaymentStatus = "rejected"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	return s == StatusPending || s == StatusValidated || s == StatusRejected
}

// Terminal reports whether s is a terminal status.
func (s PaymentStatus) Terminal() bool {
	return s == StatusValidated || s == StatusRejected
}

// BlobRef identifies a stored proof-of-payment file.
type BlobRef struct {
	// Name is the generated object name in the blob store.
	Name string `json:"filename"`
	// OriginalName is the filename supplied by the uploader.
	OriginalName string `json:"originalName"`
	ContentType  string `json:"mimetype"`
	Size         int64  `json:"size"`
}

// Payment is a tithe or offering submitted by a member.
//
// Field immutability rules: Kind, Amount and Proof are fixed at creation.
// Validator, ValidatedAt, ValidationNotes, ReceiptIssued and ReceiptName are
// written exactly once, atomically with the pending-to-terminal status change.
// Payments are never deleted; the collection is the audit trail.
type Payment struct {
	ID       string      `json:"id"`
	MemberID string      `json:"memberId"`
	Kind     PaymentKind `json:"type"`

	// OfferingCategory optionally sub-categorizes an offering. Empty for tithes.
	OfferingCategory string `json:"offeringCategory,omitempty"`

	Amount      Money   `json:"amount"`
	Description string  `json:"description,omitempty"`
	Comments    string  `json:"comments,omitempty"`
	Proof       BlobRef `json:"proofFile"`

	Status          PaymentStatus `json:"status"`
	ValidatorID     string        `json:"validatedBy,omitempty"`
	ValidatedAt     *time.Time    `json:"validatedAt,omitempty"`
	ValidationNotes string        `json:"validationNotes,omitempty"`

	ReceiptIssued bool   `json:"receiptIssued"`
	ReceiptName   string `json:"receiptFile,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Member and Validator are denormalized for display and populated on
	// read paths; they are never persisted with the payment.
	Member    *Member `json:"member,omitempty"`
	Validator *Member `json:"validator,omitempty"`
}

// MaxDescriptionLen and MaxCommentsLen bound the free-text fields on submission.
const (
	MaxDescriptionLen     = 500
	MaxCommentsLen        = 1000
	MaxValidationNotesLen = 1000
)
