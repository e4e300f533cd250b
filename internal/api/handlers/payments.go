package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/gracechapel/treasury/internal/api/middleware"
	"github.com/gracechapel/treasury/internal/blob"
	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/treasury"
)

// multipartMemory bounds how much of a submission is buffered in memory
// before spilling to disk.
const multipartMemory = 1 << 20

// PaymentsHandler handles payment endpoints.
type PaymentsHandler struct {
	svc *treasury.Service
	log zerolog.Logger
}

// NewPaymentsHandler creates a new payments handler.
func NewPaymentsHandler(svc *treasury.Service, log zerolog.Logger) *PaymentsHandler {
	return &PaymentsHandler{svc: svc, log: log}
}

// Submit handles POST /api/payments. The body is multipart form data with
// the payment fields and the proof file under "proofFile".
func (h *PaymentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "not authenticated")
		return
	}

	// Cut oversized bodies off at the transport instead of buffering them
	// to temp disk only for validateUpload to reject the size later. The
	// slack covers the non-file form fields and multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, blob.MaxProofSize+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, domain.ErrValidationFailed, "expected multipart form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("proofFile")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, domain.ErrValidationFailed, "proof file is required")
		return
	}
	defer file.Close()

	var amount domain.Money
	if raw := r.FormValue("amount"); raw != "" {
		amount, err = domain.ParseMoney(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, domain.ErrValidationFailed, "invalid amount")
			return
		}
	}

	payment, err := h.svc.Submit(r.Context(), principal, treasury.SubmitInput{
		Kind:             domain.PaymentKind(r.FormValue("type")),
		OfferingCategory: r.FormValue("offeringCategory"),
		Amount:           amount,
		Description:      r.FormValue("description"),
		Comments:         r.FormValue("comments"),
		Upload: blob.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     file,
		},
	})
	if err != nil {
		h.log.Error().Err(err).Str("member_id", principal.ID).Msg("Failed to submit payment")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, payment)
}

// ListMine handles GET /api/payments/mine.
func (h *PaymentsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "not authenticated")
		return
	}

	q := r.URL.Query()
	page, err := h.svc.ListOwn(r.Context(), principal, treasury.ListOwnParams{
		Page:     intParam(q.Get("page")),
		PageSize: intParam(q.Get("limit")),
		Status:   domain.PaymentStatus(q.Get("status")),
	})
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// ListAll handles GET /api/payments.
func (h *PaymentsHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "not authenticated")
		return
	}

	q := r.URL.Query()
	page, err := h.svc.ListAll(r.Context(), principal, treasury.ListAllParams{
		Page:       intParam(q.Get("page")),
		PageSize:   intParam(q.Get("limit")),
		Status:     domain.PaymentStatus(q.Get("status")),
		Kind:       domain.PaymentKind(q.Get("type")),
		MemberName: q.Get("member"),
	})
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// Get handles GET /api/payments/:id.
func (h *PaymentsHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "not authenticated")
		return
	}

	payment, err := h.svc.Get(r.Context(), principal, id)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, payment)
}

// Resolve handles PUT /api/payments/:id/resolve.
func (h *PaymentsHandler) Resolve(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "not authenticated")
		return
	}

	var req struct {
		Status          domain.PaymentStatus `json:"status"`
		ValidationNotes string               `json:"validationNotes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, domain.ErrValidationFailed, "invalid request body")
		return
	}

	payment, err := h.svc.Resolve(r.Context(), principal, id, req.Status, req.ValidationNotes)
	if err != nil {
		h.log.Error().Err(err).Str("payment_id", id).Msg("Failed to resolve payment")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, payment)
}

// Receipt handles GET /api/payments/:id/receipt.
func (h *PaymentsHandler) Receipt(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "not authenticated")
		return
	}

	info, err := h.svc.Receipt(r.Context(), principal, id)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, info)
}

// Proof handles GET /api/payments/:id/proof, streaming the stored proof
// file back with its original content type.
func (h *PaymentsHandler) Proof(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "not authenticated")
		return
	}

	data, contentType, err := h.svc.Proof(r.Context(), principal, id)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// intParam parses a positive integer query parameter; anything else is 0 so
// the service applies its defaults.
func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
