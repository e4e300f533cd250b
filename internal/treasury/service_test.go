package treasury

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gracechapel/treasury/internal/blob"
	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/repo"
	"github.com/gracechapel/treasury/internal/repo/inmemory"
)

type fixture struct {
	svc       *Service
	store     *inmemory.Store
	blobs     *blob.MemoryStore
	member    *domain.Member
	treasurer *domain.Member
	pastor    *domain.Member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := inmemory.NewStore()
	blobs := blob.NewMemoryStore()

	member := &domain.Member{ID: "m1", Name: "Alice Mendes", Email: "alice@example.org", Role: domain.RoleMember, Active: true}
	treasurer := &domain.Member{ID: "t1", Name: "Bruno Costa", Email: "bruno@example.org", Role: domain.RoleTreasurer, Active: true}
	pastor := &domain.Member{ID: "p1", Name: "Carla Dias", Email: "carla@example.org", Role: domain.RolePastor, Active: true}
	for _, m := range []*domain.Member{member, treasurer, pastor} {
		if err := store.InsertMember(ctx, m); err != nil {
			t.Fatalf("InsertMember(%s): %v", m.ID, err)
		}
	}

	return &fixture{
		svc:       NewService(store, store, blobs, zerolog.Nop()),
		store:     store,
		blobs:     blobs,
		member:    member,
		treasurer: treasurer,
		pastor:    pastor,
	}
}

func pdfUpload() blob.Upload {
	return blob.Upload{
		Filename:    "receipt.pdf",
		ContentType: "application/pdf",
		Size:        9,
		Content:     strings.NewReader("%PDF-1.4\n"),
	}
}

func money(t *testing.T, s string) domain.Money {
	t.Helper()
	m, err := domain.ParseMoney(s)
	if err != nil {
		t.Fatalf("ParseMoney(%q): %v", s, err)
	}
	return m
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, f.member, SubmitInput{
		Kind:        domain.KindTithe,
		Amount:      money(t, "100.50"),
		Description: "September tithe",
		Upload:      pdfUpload(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.Status != domain.StatusPending {
		t.Errorf("status = %q, want pending", p.Status)
	}
	if p.ID == "" {
		t.Error("expected a generated payment id")
	}
	if got := p.Amount.String(); got != "100.50" {
		t.Errorf("amount = %q, want 100.50", got)
	}
	if p.Member == nil || p.Member.Name != "Alice Mendes" {
		t.Errorf("member not attached: %+v", p.Member)
	}
	if f.blobs.Len() != 1 {
		t.Errorf("blob store has %d objects, want 1", f.blobs.Len())
	}

	// The proof must be retrievable under the generated name.
	data, err := f.blobs.Fetch(ctx, p.Proof.Name)
	if err != nil {
		t.Fatalf("Fetch(%s): %v", p.Proof.Name, err)
	}
	if string(data) != "%PDF-1.4\n" {
		t.Errorf("proof content = %q", data)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		who  *domain.Member
		in   SubmitInput
		kind domain.ErrorKind
	}{
		{
			name: "treasurer cannot submit",
			who:  f.treasurer,
			in:   SubmitInput{Kind: domain.KindTithe, Amount: money(t, "10"), Upload: pdfUpload()},
			kind: domain.ErrForbidden,
		},
		{
			name: "bad kind",
			who:  f.member,
			in:   SubmitInput{Kind: "donation", Amount: money(t, "10"), Upload: pdfUpload()},
			kind: domain.ErrValidationFailed,
		},
		{
			name: "zero amount",
			who:  f.member,
			in:   SubmitInput{Kind: domain.KindTithe, Amount: domain.Money{}, Upload: pdfUpload()},
			kind: domain.ErrValidationFailed,
		},
		{
			name: "negative amount",
			who:  f.member,
			in:   SubmitInput{Kind: domain.KindTithe, Amount: money(t, "-5"), Upload: pdfUpload()},
			kind: domain.ErrValidationFailed,
		},
		{
			name: "description too long",
			who:  f.member,
			in: SubmitInput{
				Kind:        domain.KindTithe,
				Amount:      money(t, "10"),
				Description: strings.Repeat("x", domain.MaxDescriptionLen+1),
				Upload:      pdfUpload(),
			},
			kind: domain.ErrValidationFailed,
		},
		{
			name: "bad content type",
			who:  f.member,
			in: SubmitInput{
				Kind:   domain.KindTithe,
				Amount: money(t, "10"),
				Upload: blob.Upload{Filename: "x.exe", ContentType: "application/octet-stream", Size: 4, Content: strings.NewReader("abcd")},
			},
			kind: domain.ErrValidationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.who, tt.in)
			if !domain.IsKind(err, tt.kind) {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
	if f.blobs.Len() != 0 {
		t.Errorf("blob store has %d objects after failed submissions, want 0", f.blobs.Len())
	}
}

// failingPaymentRepo wraps the in-memory store but fails every Insert.
type failingPaymentRepo struct {
	repo.PaymentRepository
}

func (f *failingPaymentRepo) Insert(ctx context.Context, p *domain.Payment) error {
	return errors.New("insert rejected")
}

func TestSubmitCleansUpProofOnInsertFailure(t *testing.T) {
	f := newFixture(t)
	failing := &failingPaymentRepo{PaymentRepository: f.store}
	svc := NewService(failing, f.store, f.blobs, zerolog.Nop())

	_, err := svc.Submit(context.Background(), f.member, SubmitInput{
		Kind:   domain.KindOffering,
		Amount: money(t, "25"),
		Upload: pdfUpload(),
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.blobs.Len() != 0 {
		t.Errorf("blob store has %d objects, want 0 after cleanup", f.blobs.Len())
	}
}

func TestSubmitClearsCategoryForTithes(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Submit(context.Background(), f.member, SubmitInput{
		Kind:             domain.KindTithe,
		OfferingCategory: "missions",
		Amount:           money(t, "10"),
		Upload:           pdfUpload(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.OfferingCategory != "" {
		t.Errorf("offering category = %q, want empty for tithe", p.OfferingCategory)
	}
}

func (f *fixture) submit(t *testing.T) *domain.Payment {
	t.Helper()
	p, err := f.svc.Submit(context.Background(), f.member, SubmitInput{
		Kind:   domain.KindTithe,
		Amount: money(t, "100.50"),
		Upload: pdfUpload(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return p
}

func TestResolveValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t)

	f.svc.now = func() time.Time { return time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC) }
	got, err := f.svc.Resolve(ctx, f.treasurer, p.ID, domain.StatusValidated, "checked against bank statement")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != domain.StatusValidated {
		t.Errorf("status = %q, want validated", got.Status)
	}
	if got.ValidatorID != f.treasurer.ID {
		t.Errorf("validator = %q, want %q", got.ValidatorID, f.treasurer.ID)
	}
	if got.ValidatedAt == nil {
		t.Fatal("ValidatedAt not set")
	}
	if !got.ReceiptIssued {
		t.Error("receipt not issued on validation")
	}
	want := "receipts/receipt-" + p.ID + "-1757937600000.pdf"
	if got.ReceiptName != want {
		t.Errorf("receipt name = %q, want %q", got.ReceiptName, want)
	}
	if got.Validator == nil || got.Validator.Name != "Bruno Costa" {
		t.Errorf("validator not attached: %+v", got.Validator)
	}
}

func TestResolveReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t)

	got, err := f.svc.Resolve(ctx, f.treasurer, p.ID, domain.StatusRejected, "  amount does not match the proof  ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != domain.StatusRejected {
		t.Errorf("status = %q, want rejected", got.Status)
	}
	if got.ValidationNotes != "amount does not match the proof" {
		t.Errorf("notes = %q, want trimmed", got.ValidationNotes)
	}
	if got.ReceiptIssued || got.ReceiptName != "" {
		t.Error("rejected payment must not carry a receipt")
	}
}

func TestResolveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t)

	tests := []struct {
		name     string
		who      *domain.Member
		id       string
		decision domain.PaymentStatus
		notes    string
		kind     domain.ErrorKind
	}{
		{"member cannot resolve", f.member, p.ID, domain.StatusValidated, "", domain.ErrForbidden},
		{"pastor cannot resolve", f.pastor, p.ID, domain.StatusValidated, "", domain.ErrForbidden},
		{"pending is not a decision", f.treasurer, p.ID, domain.StatusPending, "", domain.ErrValidationFailed},
		{"unknown decision", f.treasurer, p.ID, "approved", "", domain.ErrValidationFailed},
		{"reject needs notes", f.treasurer, p.ID, domain.StatusRejected, "   ", domain.ErrValidationFailed},
		{"unknown payment", f.treasurer, "nope", domain.StatusValidated, "", domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Resolve(ctx, tt.who, tt.id, tt.decision, tt.notes)
			if !domain.IsKind(err, tt.kind) {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestResolveIsOneShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t)

	if _, err := f.svc.Resolve(ctx, f.treasurer, p.ID, domain.StatusValidated, ""); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	_, err := f.svc.Resolve(ctx, f.treasurer, p.ID, domain.StatusRejected, "second attempt")
	if !domain.IsKind(err, domain.ErrInvalidState) {
		t.Errorf("second resolve error = %v, want invalid_state", err)
	}
}

func TestResolveConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := domain.StatusValidated
			notes := ""
			if i%2 == 1 {
				decision = domain.StatusRejected
				notes = "no"
			}
			_, errs[i] = f.svc.Resolve(ctx, f.treasurer, p.ID, decision, notes)
		}(i)
	}
	wg.Wait()

	var winners, losers int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case domain.IsKind(err, domain.ErrInvalidState):
			losers++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 || losers != workers-1 {
		t.Errorf("winners = %d, losers = %d, want 1 and %d", winners, losers, workers-1)
	}
}

func TestListOwn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &domain.Member{ID: "m2", Name: "Outro", Role: domain.RoleMember, Active: true}
	if err := f.store.InsertMember(ctx, other); err != nil {
		t.Fatal(err)
	}

	f.submit(t)
	f.submit(t)
	if _, err := f.svc.Submit(ctx, other, SubmitInput{Kind: domain.KindOffering, Amount: money(t, "5"), Upload: pdfUpload()}); err != nil {
		t.Fatal(err)
	}

	page, err := f.svc.ListOwn(ctx, f.member, ListOwnParams{})
	if err != nil {
		t.Fatalf("ListOwn: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
	for _, p := range page.Payments {
		if p.MemberID != f.member.ID {
			t.Errorf("foreign payment %s in own listing", p.ID)
		}
		if p.Member == nil {
			t.Errorf("payment %s missing attached member", p.ID)
		}
	}

	if _, err := f.svc.ListOwn(ctx, f.treasurer, ListOwnParams{}); !domain.IsKind(err, domain.ErrForbidden) {
		t.Errorf("treasurer ListOwn error = %v, want forbidden", err)
	}
	if _, err := f.svc.ListOwn(ctx, f.member, ListOwnParams{Status: "bogus"}); !domain.IsKind(err, domain.ErrValidationFailed) {
		t.Errorf("bad status error = %v, want validation_failed", err)
	}
}

func TestListAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t)

	for _, who := range []*domain.Member{f.treasurer, f.pastor} {
		page, err := f.svc.ListAll(ctx, who, ListAllParams{})
		if err != nil {
			t.Fatalf("ListAll as %s: %v", who.Role, err)
		}
		if page.Total != 1 {
			t.Errorf("total = %d, want 1", page.Total)
		}
	}

	if _, err := f.svc.ListAll(ctx, f.member, ListAllParams{}); !domain.IsKind(err, domain.ErrForbidden) {
		t.Errorf("member ListAll error = %v, want forbidden", err)
	}

	page, err := f.svc.ListAll(ctx, f.treasurer, ListAllParams{MemberName: "alice"})
	if err != nil {
		t.Fatalf("ListAll by name: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("name search total = %d, want 1", page.Total)
	}
	page, err = f.svc.ListAll(ctx, f.treasurer, ListAllParams{MemberName: "zzz"})
	if err != nil {
		t.Fatalf("ListAll by name: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("name search total = %d, want 0", page.Total)
	}
}

func TestGetAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &domain.Member{ID: "m2", Name: "Outro", Role: domain.RoleMember, Active: true}
	if err := f.store.InsertMember(ctx, other); err != nil {
		t.Fatal(err)
	}
	p := f.submit(t)

	if _, err := f.svc.Get(ctx, f.member, p.ID); err != nil {
		t.Errorf("owner Get: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.treasurer, p.ID); err != nil {
		t.Errorf("treasurer Get: %v", err)
	}
	if _, err := f.svc.Get(ctx, other, p.ID); !domain.IsKind(err, domain.ErrForbidden) {
		t.Errorf("foreign member Get error = %v, want forbidden", err)
	}
	if _, err := f.svc.Get(ctx, f.member, "nope"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Errorf("missing Get error = %v, want not_found", err)
	}
}

func TestReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.submit(t)

	// Pending payment has no receipt yet.
	if _, err := f.svc.Receipt(ctx, f.member, p.ID); !domain.IsKind(err, domain.ErrInvalidState) {
		t.Errorf("pending receipt error = %v, want invalid_state", err)
	}

	if _, err := f.svc.Resolve(ctx, f.treasurer, p.ID, domain.StatusValidated, ""); err != nil {
		t.Fatal(err)
	}
	info, err := f.svc.Receipt(ctx, f.member, p.ID)
	if err != nil {
		t.Fatalf("Receipt: %v", err)
	}
	if info.PaymentID != p.ID || info.ReceiptName == "" {
		t.Errorf("receipt info = %+v", info)
	}
	if got := info.Amount.String(); got != "100.50" {
		t.Errorf("receipt amount = %q, want 100.50", got)
	}

	if _, err := f.svc.Receipt(ctx, f.treasurer, p.ID); !domain.IsKind(err, domain.ErrForbidden) {
		t.Errorf("treasurer receipt error = %v, want forbidden", err)
	}

	rejected := f.submit(t)
	if _, err := f.svc.Resolve(ctx, f.treasurer, rejected.ID, domain.StatusRejected, "no"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Receipt(ctx, f.member, rejected.ID); !domain.IsKind(err, domain.ErrInvalidState) {
		t.Errorf("rejected receipt error = %v, want invalid_state", err)
	}
}

func TestProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &domain.Member{ID: "m2", Name: "Outro", Role: domain.RoleMember, Active: true}
	if err := f.store.InsertMember(ctx, other); err != nil {
		t.Fatal(err)
	}
	p := f.submit(t)

	data, ct, err := f.svc.Proof(ctx, f.member, p.ID)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	if ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if string(data) != "%PDF-1.4\n" {
		t.Errorf("proof content = %q", data)
	}

	if _, _, err := f.svc.Proof(ctx, f.treasurer, p.ID); err != nil {
		t.Errorf("treasurer Proof: %v", err)
	}
	if _, _, err := f.svc.Proof(ctx, other, p.ID); !domain.IsKind(err, domain.ErrForbidden) {
		t.Errorf("foreign Proof error = %v, want forbidden", err)
	}
}
