package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gracechapel/treasury/internal/api/middleware"
	"github.com/gracechapel/treasury/internal/blob"
	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/report"
	"github.com/gracechapel/treasury/internal/repo"
	"github.com/gracechapel/treasury/internal/repo/inmemory"
	"github.com/gracechapel/treasury/internal/treasury"
)

type harness struct {
	payments *PaymentsHandler
	reports  *ReportsHandler
	store    *inmemory.Store
	blobs    *blob.MemoryStore
	svc      *treasury.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := inmemory.NewStore()
	blobs := blob.NewMemoryStore()

	members := []*domain.Member{
		{ID: "m1", Name: "Alice Mendes", Email: "alice@example.org", Role: domain.RoleMember, Active: true, APIToken: "tok-member"},
		{ID: "t1", Name: "Bruno Costa", Email: "bruno@example.org", Role: domain.RoleTreasurer, Active: true, APIToken: "tok-treasurer"},
		{ID: "p1", Name: "Carla Dias", Email: "carla@example.org", Role: domain.RolePastor, Active: true, APIToken: "tok-pastor"},
	}
	for _, m := range members {
		if err := store.InsertMember(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	svc := treasury.NewService(store, store, blobs, zerolog.Nop())
	return &harness{
		payments: NewPaymentsHandler(svc, zerolog.Nop()),
		reports:  NewReportsHandler(report.NewService(store, store), zerolog.Nop()),
		store:    store,
		blobs:    blobs,
		svc:      svc,
	}
}

// do routes the request through the auth middleware so handlers see a real
// principal, mirroring the server wiring.
func (h *harness) do(t *testing.T, handler func(http.ResponseWriter, *http.Request), req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	middleware.Auth(h.store)(http.HandlerFunc(handler)).ServeHTTP(rec, req)
	return rec
}

func multipartSubmission(t *testing.T, fields map[string]string, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		hdr := make(map[string][]string)
		hdr["Content-Disposition"] = []string{`form-data; name="proofFile"; filename="` + filename + `"`}
		hdr["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (h *harness) submit(t *testing.T) domain.Payment {
	t.Helper()
	body, ct := multipartSubmission(t, map[string]string{
		"type":        "tithe",
		"amount":      "100.50",
		"description": "September tithe",
	}, "proof.pdf", "application/pdf", []byte("%PDF-1.4\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)

	rec := h.do(t, h.payments.Submit, req, "tok-member")
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body)
	}
	var p domain.Payment
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSubmitEndpoint(t *testing.T) {
	h := newHarness(t)
	p := h.submit(t)

	if p.Status != domain.StatusPending {
		t.Errorf("status = %q, want pending", p.Status)
	}
	if got := p.Amount.String(); got != "100.50" {
		t.Errorf("amount = %q, want 100.50", got)
	}
	if p.Proof.OriginalName != "proof.pdf" {
		t.Errorf("proof original name = %q", p.Proof.OriginalName)
	}
	if h.blobs.Len() != 1 {
		t.Errorf("blob count = %d, want 1", h.blobs.Len())
	}
}

func TestSubmitEndpointErrors(t *testing.T) {
	h := newHarness(t)

	// Missing proof file.
	body, ct := multipartSubmission(t, map[string]string{"type": "tithe", "amount": "10"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)
	if rec := h.do(t, h.payments.Submit, req, "tok-member"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file status = %d, want 400", rec.Code)
	}

	// Unparseable amount.
	body, ct = multipartSubmission(t, map[string]string{"type": "tithe", "amount": "ten"}, "p.pdf", "application/pdf", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)
	if rec := h.do(t, h.payments.Submit, req, "tok-member"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad amount status = %d, want 400", rec.Code)
	}

	// Rational and exponent notation are not valid amounts.
	for _, amount := range []string{"10/3", "1e6"} {
		body, ct = multipartSubmission(t, map[string]string{"type": "tithe", "amount": amount}, "p.pdf", "application/pdf", []byte("x"))
		req = httptest.NewRequest(http.MethodPost, "/api/payments", body)
		req.Header.Set("Content-Type", ct)
		if rec := h.do(t, h.payments.Submit, req, "tok-member"); rec.Code != http.StatusBadRequest {
			t.Errorf("amount %q status = %d, want 400", amount, rec.Code)
		}
	}

	// A body past the size cap is cut off at the transport.
	huge := bytes.Repeat([]byte("a"), blob.MaxProofSize+multipartMemory)
	body, ct = multipartSubmission(t, map[string]string{"type": "tithe", "amount": "10"}, "big.pdf", "application/pdf", huge)
	req = httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)
	if rec := h.do(t, h.payments.Submit, req, "tok-member"); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want 400", rec.Code)
	}
	if n := h.blobs.Len(); n != 0 {
		t.Errorf("stored blobs after rejected submissions = %d, want 0", n)
	}

	// Treasurers cannot submit.
	body, ct = multipartSubmission(t, map[string]string{"type": "tithe", "amount": "10"}, "p.pdf", "application/pdf", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)
	if rec := h.do(t, h.payments.Submit, req, "tok-treasurer"); rec.Code != http.StatusForbidden {
		t.Errorf("treasurer submit status = %d, want 403", rec.Code)
	}

	// No token at all.
	body, ct = multipartSubmission(t, map[string]string{"type": "tithe", "amount": "10"}, "p.pdf", "application/pdf", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)
	if rec := h.do(t, h.payments.Submit, req, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
}

func TestListMineEndpoint(t *testing.T) {
	h := newHarness(t)
	h.submit(t)
	h.submit(t)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/mine?limit=1&page=2", nil)
	rec := h.do(t, h.payments.ListMine, req, "tok-member")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var page struct {
		Payments []domain.Payment `json:"payments"`
		Total    int64            `json:"total"`
		Page     int              `json:"currentPage"`
		Pages    int64            `json:"totalPages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || page.Page != 2 || page.Pages != 2 || len(page.Payments) != 1 {
		t.Errorf("page = total %d, page %d, pages %d, items %d", page.Total, page.Page, page.Pages, len(page.Payments))
	}
}

func TestListAllEndpoint(t *testing.T) {
	h := newHarness(t)
	h.submit(t)

	req := httptest.NewRequest(http.MethodGet, "/api/payments?member=alice", nil)
	rec := h.do(t, h.payments.ListAll, req, "tok-treasurer")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	if rec := h.do(t, h.payments.ListAll, req, "tok-member"); rec.Code != http.StatusForbidden {
		t.Errorf("member ListAll status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/payments?status=bogus", nil)
	if rec := h.do(t, h.payments.ListAll, req, "tok-treasurer"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", rec.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	h := newHarness(t)
	p := h.submit(t)

	body := strings.NewReader(`{"status":"validated"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/payments/"+p.ID+"/resolve", body)
	rec := h.do(t, func(w http.ResponseWriter, r *http.Request) {
		h.payments.Resolve(w, r, p.ID)
	}, req, "tok-treasurer")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got domain.Payment
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusValidated || !got.ReceiptIssued {
		t.Errorf("resolved payment = status %q, receipt %v", got.Status, got.ReceiptIssued)
	}

	// A second resolve conflicts.
	req = httptest.NewRequest(http.MethodPut, "/api/payments/"+p.ID+"/resolve", strings.NewReader(`{"status":"rejected","validationNotes":"late"}`))
	rec = h.do(t, func(w http.ResponseWriter, r *http.Request) {
		h.payments.Resolve(w, r, p.ID)
	}, req, "tok-treasurer")
	if rec.Code != http.StatusConflict {
		t.Errorf("second resolve status = %d, want 409", rec.Code)
	}

	// Members cannot resolve.
	req = httptest.NewRequest(http.MethodPut, "/api/payments/"+p.ID+"/resolve", strings.NewReader(`{"status":"validated"}`))
	rec = h.do(t, func(w http.ResponseWriter, r *http.Request) {
		h.payments.Resolve(w, r, p.ID)
	}, req, "tok-member")
	if rec.Code != http.StatusForbidden {
		t.Errorf("member resolve status = %d, want 403", rec.Code)
	}
}

func TestReceiptEndpoint(t *testing.T) {
	h := newHarness(t)
	p := h.submit(t)

	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/payments/"+p.ID+"/receipt", nil)
		return h.do(t, func(w http.ResponseWriter, r *http.Request) {
			h.payments.Receipt(w, r, p.ID)
		}, req, token)
	}

	if rec := get("tok-member"); rec.Code != http.StatusConflict {
		t.Errorf("pending receipt status = %d, want 409", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/payments/"+p.ID+"/resolve", strings.NewReader(`{"status":"validated"}`))
	if rec := h.do(t, func(w http.ResponseWriter, r *http.Request) {
		h.payments.Resolve(w, r, p.ID)
	}, req, "tok-treasurer"); rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}

	rec := get("tok-member")
	if rec.Code != http.StatusOK {
		t.Fatalf("receipt status = %d, body %s", rec.Code, rec.Body)
	}
	var info struct {
		PaymentID   string `json:"paymentId"`
		ReceiptFile string `json:"receiptFile"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.PaymentID != p.ID || info.ReceiptFile == "" {
		t.Errorf("receipt info = %+v", info)
	}
}

func TestProofEndpoint(t *testing.T) {
	h := newHarness(t)
	p := h.submit(t)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/"+p.ID+"/proof", nil)
	rec := h.do(t, func(w http.ResponseWriter, r *http.Request) {
		h.payments.Proof(w, r, p.ID)
	}, req, "tok-member")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	data, _ := io.ReadAll(rec.Body)
	if string(data) != "%PDF-1.4\n" {
		t.Errorf("proof body = %q", data)
	}
}

func seedValidated(t *testing.T, h *harness, memberID, kind, amount string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	m, err := domain.ParseMoney(amount)
	if err != nil {
		t.Fatal(err)
	}
	p := &domain.Payment{
		ID:        "pay-" + kind + "-" + at.Format("20060102-150405.000000000"),
		MemberID:  memberID,
		Kind:      domain.PaymentKind(kind),
		Amount:    m,
		Status:    domain.StatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := h.store.Insert(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.ResolvePending(ctx, p.ID, repoResolution(at)); err != nil {
		t.Fatal(err)
	}
}

func repoResolution(at time.Time) repo.Resolution {
	return repo.Resolution{
		Status:        domain.StatusValidated,
		ValidatorID:   "t1",
		ValidatedAt:   at,
		ReceiptIssued: true,
		ReceiptName:   "receipts/r.pdf",
	}
}

func TestFinancialSummaryEndpoint(t *testing.T) {
	h := newHarness(t)
	seedValidated(t, h, "m1", "tithe", "100.00", time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC))
	seedValidated(t, h, "m1", "offering", "40.00", time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodGet, "/api/reports/financial-summary?startDate=2025-09-01&endDate=2025-09-30", nil)
	rec := h.do(t, h.reports.FinancialSummary, req, "tok-pastor")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var sum struct {
		Tithes struct {
			TotalAmount string `json:"totalAmount"`
			Count       int64  `json:"count"`
		} `json:"tithes"`
		GrandTotal string `json:"grandTotal"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum.Tithes.TotalAmount != "100.00" || sum.Tithes.Count != 1 {
		t.Errorf("tithes = %+v", sum.Tithes)
	}
	if sum.GrandTotal != "100.00" {
		t.Errorf("grand total = %q, august offering leaked into range", sum.GrandTotal)
	}

	// Members may not read reports.
	req = httptest.NewRequest(http.MethodGet, "/api/reports/financial-summary", nil)
	if rec := h.do(t, h.reports.FinancialSummary, req, "tok-member"); rec.Code != http.StatusForbidden {
		t.Errorf("member report status = %d, want 403", rec.Code)
	}

	// Malformed dates are rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/reports/financial-summary?startDate=09-01-2025", nil)
	if rec := h.do(t, h.reports.FinancialSummary, req, "tok-treasurer"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", rec.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	h := newHarness(t)
	h.submit(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	rec := h.do(t, h.reports.Dashboard, req, "tok-treasurer")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var overview struct {
		Stats struct {
			PendingCount int64 `json:"pendingCount"`
		} `json:"stats"`
		PaymentStatus struct {
			Pending []domain.Payment `json:"pendingPayments"`
		} `json:"paymentStatus"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&overview); err != nil {
		t.Fatal(err)
	}
	if overview.Stats.PendingCount != 1 {
		t.Errorf("pending count = %d, want 1", overview.Stats.PendingCount)
	}
	if len(overview.PaymentStatus.Pending) != 1 {
		t.Errorf("pending list = %d, want 1", len(overview.PaymentStatus.Pending))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	if rec := h.do(t, h.reports.Dashboard, req, "tok-member"); rec.Code != http.StatusForbidden {
		t.Errorf("member dashboard status = %d, want 403", rec.Code)
	}
}
