// Package treasury implements the payment lifecycle: member submission with
// proof upload, and the one-time treasurer validation/rejection transition.
package treasury

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gracechapel/treasury/internal/blob"
	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/repo"
)

// Service coordinates payments, members and the proof blob store.
type Service struct {
	payments repo.PaymentRepository
	members  repo.MemberRepository
	blobs    blob.Store
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates the workflow service.
func NewService(payments repo.PaymentRepository, members repo.MemberRepository, blobs blob.Store, log zerolog.Logger) *Service {
	return &Service{
		payments: payments,
		members:  members,
		blobs:    blobs,
		now:      time.Now,
		log:      log,
	}
}

// SubmitInput carries a member's payment submission.
type SubmitInput struct {
	Kind             domain.PaymentKind
	OfferingCategory string
	Amount           domain.Money
	Description      string
	Comments         string
	Upload           blob.Upload
}

// Submit validates the input, stores the proof file, and persists a new
// pending payment. If anything fails after the proof was stored, the stored
// blob is deleted so no orphaned files remain.
func (s *Service) Submit(ctx context.Context, member *domain.Member, in SubmitInput) (*domain.Payment, error) {
	if member.Role != domain.RoleMember {
		return nil, domain.Errf(domain.ErrForbidden, "only members can submit payments")
	}
	if !in.Kind.Valid() {
		return nil, domain.Errf(domain.ErrValidationFailed, "type must be tithe or offering")
	}
	if !in.Amount.Positive() {
		return nil, domain.Errf(domain.ErrValidationFailed, "amount must be greater than 0")
	}
	if len(in.Description) > domain.MaxDescriptionLen {
		return nil, domain.Errf(domain.ErrValidationFailed, "description exceeds %d characters", domain.MaxDescriptionLen)
	}
	if len(in.Comments) > domain.MaxCommentsLen {
		return nil, domain.Errf(domain.ErrValidationFailed, "comments exceed %d characters", domain.MaxCommentsLen)
	}
	if in.Kind != domain.KindOffering {
		// Sub-categories only apply to offerings.
		in.OfferingCategory = ""
	}

	ref, err := s.blobs.Store(ctx, in.Upload)
	if err != nil {
		return nil, fmt.Errorf("Submit: storing proof: %w", err)
	}

	now := s.now().UTC()
	p := &domain.Payment{
		ID:               uuid.NewString(),
		MemberID:         member.ID,
		Kind:             in.Kind,
		OfferingCategory: in.OfferingCategory,
		Amount:           in.Amount,
		Description:      strings.TrimSpace(in.Description),
		Comments:         strings.TrimSpace(in.Comments),
		Proof:            ref,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.payments.Insert(ctx, p); err != nil {
		// The proof is already stored; remove it so it does not orphan.
		if delErr := s.blobs.Delete(ctx, ref.Name); delErr != nil {
			s.log.Error().Err(delErr).Str("proof", ref.Name).Msg("Failed to clean up proof after insert failure")
		}
		return nil, fmt.Errorf("Submit: inserting payment: %w", err)
	}

	s.log.Info().
		Str("payment_id", p.ID).
		Str("member_id", member.ID).
		Str("kind", string(p.Kind)).
		Str("amount", p.Amount.String()).
		Msg("Payment submitted")

	m := *member
	p.Member = &m
	return p, nil
}

// Resolve transitions a pending payment to validated or rejected. Only
// treasurers may resolve; rejections require notes. The underlying
// conditional write guarantees that at most one resolve call succeeds per
// payment, no matter how many race.
func (s *Service) Resolve(ctx context.Context, principal *domain.Member, paymentID string, decision domain.PaymentStatus, notes string) (*domain.Payment, error) {
	if principal.Role != domain.RoleTreasurer {
		return nil, domain.Errf(domain.ErrForbidden, "only treasurers can resolve payments")
	}
	if !decision.Terminal() {
		return nil, domain.Errf(domain.ErrValidationFailed, "decision must be validated or rejected")
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > domain.MaxValidationNotesLen {
		return nil, domain.Errf(domain.ErrValidationFailed, "validation notes exceed %d characters", domain.MaxValidationNotesLen)
	}
	if decision == domain.StatusRejected && notes == "" {
		return nil, domain.Errf(domain.ErrValidationFailed, "validation notes are required when rejecting")
	}

	now := s.now().UTC()
	res := repo.Resolution{
		Status:      decision,
		ValidatorID: principal.ID,
		ValidatedAt: now,
		Notes:       notes,
	}
	if decision == domain.StatusValidated {
		res.ReceiptIssued = true
		res.ReceiptName = fmt.Sprintf("receipts/receipt-%s-%d.pdf", paymentID, now.UnixMilli())
	}

	p, err := s.payments.ResolvePending(ctx, paymentID, res)
	if err != nil {
		return nil, fmt.Errorf("Resolve: payment %s: %w", paymentID, err)
	}

	if err := s.attachMembers(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("payment_id", p.ID).
		Str("validator_id", principal.ID).
		Str("decision", string(decision)).
		Msg("Payment resolved")
	return p, nil
}

// ListOwnParams filters a member's own payment listing.
type ListOwnParams struct {
	Page     int
	PageSize int
	Status   domain.PaymentStatus
}

// ListOwn returns the calling member's payments, newest first.
func (s *Service) ListOwn(ctx context.Context, principal *domain.Member, params ListOwnParams) (*repo.PaymentPage, error) {
	if principal.Role != domain.RoleMember {
		return nil, domain.Errf(domain.ErrForbidden, "only members have an own-payments listing")
	}
	if params.Status != "" && !params.Status.Valid() {
		return nil, domain.Errf(domain.ErrValidationFailed, "unknown status %q", params.Status)
	}

	page, err := s.payments.List(ctx, repo.PaymentFilter{
		MemberID: principal.ID,
		Status:   params.Status,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("ListOwn: %w", err)
	}
	if err := s.attachMembers(ctx, page.Payments...); err != nil {
		return nil, err
	}
	return page, nil
}

// ListAllParams filters the full payment listing.
type ListAllParams struct {
	Page       int
	PageSize   int
	Status     domain.PaymentStatus
	Kind       domain.PaymentKind
	MemberName string
}

// ListAll returns payments across all members. Treasurers and pastors only.
func (s *Service) ListAll(ctx context.Context, principal *domain.Member, params ListAllParams) (*repo.PaymentPage, error) {
	if principal.Role != domain.RoleTreasurer && principal.Role != domain.RolePastor {
		return nil, domain.Errf(domain.ErrForbidden, "access denied")
	}
	if params.Status != "" && !params.Status.Valid() {
		return nil, domain.Errf(domain.ErrValidationFailed, "unknown status %q", params.Status)
	}
	if params.Kind != "" && !params.Kind.Valid() {
		return nil, domain.Errf(domain.ErrValidationFailed, "unknown type %q", params.Kind)
	}

	page, err := s.payments.List(ctx, repo.PaymentFilter{
		Status:     params.Status,
		Kind:       params.Kind,
		MemberName: params.MemberName,
		Page:       params.Page,
		PageSize:   params.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("ListAll: %w", err)
	}
	if err := s.attachMembers(ctx, page.Payments...); err != nil {
		return nil, err
	}
	return page, nil
}

// Get returns one payment. Members see only their own records.
func (s *Service) Get(ctx context.Context, principal *domain.Member, id string) (*domain.Payment, error) {
	p, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if principal.Role == domain.RoleMember && p.MemberID != principal.ID {
		return nil, domain.Errf(domain.ErrForbidden, "access denied")
	}
	if err := s.attachMembers(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReceiptInfo describes an issued receipt. Rendering the actual document is
// out of scope; the reference identifies it.
type ReceiptInfo struct {
	PaymentID   string             `json:"paymentId"`
	Amount      domain.Money       `json:"amount"`
	Kind        domain.PaymentKind `json:"type"`
	ValidatedAt *time.Time         `json:"validatedAt"`
	ReceiptName string             `json:"receiptFile"`
}

// Receipt returns the receipt reference for a member's validated payment.
func (s *Service) Receipt(ctx context.Context, principal *domain.Member, id string) (*ReceiptInfo, error) {
	if principal.Role != domain.RoleMember {
		return nil, domain.Errf(domain.ErrForbidden, "only members can fetch their receipts")
	}
	p, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Receipt: %w", err)
	}
	if p.MemberID != principal.ID {
		return nil, domain.Errf(domain.ErrForbidden, "access denied")
	}
	if p.Status != domain.StatusValidated || !p.ReceiptIssued {
		return nil, domain.Errf(domain.ErrInvalidState, "receipt not available")
	}
	return &ReceiptInfo{
		PaymentID:   p.ID,
		Amount:      p.Amount,
		Kind:        p.Kind,
		ValidatedAt: p.ValidatedAt,
		ReceiptName: p.ReceiptName,
	}, nil
}

// Proof returns the stored proof file for a payment, with its content type.
// Members can fetch only their own proofs.
func (s *Service) Proof(ctx context.Context, principal *domain.Member, id string) ([]byte, string, error) {
	p, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("Proof: %w", err)
	}
	if principal.Role == domain.RoleMember && p.MemberID != principal.ID {
		return nil, "", domain.Errf(domain.ErrForbidden, "access denied")
	}
	data, err := s.blobs.Fetch(ctx, p.Proof.Name)
	if err != nil {
		return nil, "", fmt.Errorf("Proof: fetching %s: %w", p.Proof.Name, err)
	}
	return data, p.Proof.ContentType, nil
}

// attachMembers populates the denormalized Member and Validator fields.
func (s *Service) attachMembers(ctx context.Context, payments ...*domain.Payment) error {
	idSet := make(map[string]bool)
	for _, p := range payments {
		if p.MemberID != "" {
			idSet[p.MemberID] = true
		}
		if p.ValidatorID != "" {
			idSet[p.ValidatorID] = true
		}
	}
	if len(idSet) == 0 {
		return nil
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	members, err := s.members.GetMembers(ctx, ids)
	if err != nil {
		return fmt.Errorf("attachMembers: %w", err)
	}
	for _, p := range payments {
		p.Member = members[p.MemberID]
		p.Validator = members[p.ValidatorID]
	}
	return nil
}
