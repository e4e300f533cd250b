package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/gracechapel/treasury/internal/domain"
)

// PaymentRow maps the treasury.payments table. Amount is NUMERIC; the table
// is partitioned by created_date.
type PaymentRow struct {
	PaymentID string `bigquery:"payment_id"` // REQUIRED
	MemberID  string `bigquery:"member_id"`  // REQUIRED
	Kind      string `bigquery:"kind"`       // REQUIRED

	OfferingCategory bigquery.NullString `bigquery:"offering_category"` // NULLABLE

	Amount      *big.Rat            `bigquery:"amount"` // REQUIRED NUMERIC
	Description bigquery.NullString `bigquery:"description"`
	Comments    bigquery.NullString `bigquery:"comments"`

	ProofName         string `bigquery:"proof_name"`
	ProofOriginalName string `bigquery:"proof_original_name"`
	ProofContentType  string `bigquery:"proof_content_type"`
	ProofSize         int64  `bigquery:"proof_size"`

	Status          string                 `bigquery:"status"` // REQUIRED
	ValidatorID     bigquery.NullString    `bigquery:"validator_id"`
	ValidatedAt     bigquery.NullTimestamp `bigquery:"validated_at"`
	ValidationNotes bigquery.NullString    `bigquery:"validation_notes"`

	ReceiptIssued bool                `bigquery:"receipt_issued"`
	ReceiptName   bigquery.NullString `bigquery:"receipt_name"`

	CreatedDate civil.Date `bigquery:"created_date"` // partition column
	CreatedTS   time.Time  `bigquery:"created_ts"`
	UpdatedTS   time.Time  `bigquery:"updated_ts"`
}

// paymentColumns lists the payment columns in PaymentRow order, for SELECTs.
const paymentColumns = `payment_id, member_id, kind, offering_category, amount,
	description, comments, proof_name, proof_original_name, proof_content_type,
	proof_size, status, validator_id, validated_at, validation_notes,
	receipt_issued, receipt_name, created_date, created_ts, updated_ts`

// toDomain converts a row to the domain payment.
func (row *PaymentRow) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:               row.PaymentID,
		MemberID:         row.MemberID,
		Kind:             domain.PaymentKind(row.Kind),
		OfferingCategory: row.OfferingCategory.StringVal,
		Amount:           domain.MoneyFromRat(row.Amount),
		Description:      row.Description.StringVal,
		Comments:         row.Comments.StringVal,
		Proof: domain.BlobRef{
			Name:         row.ProofName,
			OriginalName: row.ProofOriginalName,
			ContentType:  row.ProofContentType,
			Size:         row.ProofSize,
		},
		Status:          domain.PaymentStatus(row.Status),
		ValidatorID:     row.ValidatorID.StringVal,
		ValidatedAt:     nullTime(row.ValidatedAt),
		ValidationNotes: row.ValidationNotes.StringVal,
		ReceiptIssued:   row.ReceiptIssued,
		ReceiptName:     row.ReceiptName.StringVal,
		CreatedAt:       row.CreatedTS,
		UpdatedAt:       row.UpdatedTS,
	}
}

// MemberRow maps the treasury.members table.
type MemberRow struct {
	MemberID  string              `bigquery:"member_id"` // REQUIRED
	Name      string              `bigquery:"name"`      // REQUIRED
	Email     string              `bigquery:"email"`     // REQUIRED
	Phone     bigquery.NullString `bigquery:"phone"`
	Role      string              `bigquery:"role"` // REQUIRED
	Active    bool                `bigquery:"active"`
	APIToken  bigquery.NullString `bigquery:"api_token"`
	CreatedTS time.Time           `bigquery:"created_ts"`
}

const memberColumns = `member_id, name, email, phone, role, active, api_token, created_ts`

func (row *MemberRow) toDomain() *domain.Member {
	return &domain.Member{
		ID:        row.MemberID,
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone.StringVal,
		Role:      domain.Role(row.Role),
		Active:    row.Active,
		APIToken:  row.APIToken.StringVal,
		CreatedAt: row.CreatedTS,
	}
}

func memberToRow(m *domain.Member) *MemberRow {
	return &MemberRow{
		MemberID:  m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     bigquery.NullString{StringVal: m.Phone, Valid: m.Phone != ""},
		Role:      string(m.Role),
		Active:    m.Active,
		APIToken:  bigquery.NullString{StringVal: m.APIToken, Valid: m.APIToken != ""},
		CreatedTS: m.CreatedAt,
	}
}
