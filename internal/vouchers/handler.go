package vouchers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tallybook/tallybook/internal/accounts"
	"github.com/tallybook/tallybook/internal/money"
	"github.com/tallybook/tallybook/internal/payees"
	"github.com/tallybook/tallybook/internal/platform/httpx"
	"github.com/tallybook/tallybook/internal/shared"
)

// Handler wires the voucher HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers voucher routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/search", h.search)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/void", h.void)
}

type lineRequest struct {
	AccountCode string `json:"account_code" validate:"required"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

type createRequest struct {
	Kind        string        `json:"kind" validate:"required,oneof=VP CV"`
	PayeeRef    string        `json:"payee_ref" validate:"required"`
	Description string        `json:"description"`
	Lines       []lineRequest `json:"lines" validate:"dive"`
}

type updateRequest struct {
	PayeeRef    string        `json:"payee_ref" validate:"required"`
	Description string        `json:"description"`
	Lines       []lineRequest `json:"lines" validate:"dive"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines, err := parseLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	voucher, err := h.service.Create(r.Context(), actor, CreateInput{
		Kind:        Kind(req.Kind),
		PayeeRef:    req.PayeeRef,
		Description: req.Description,
		Lines:       lines,
	}, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, voucher)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines, err := parseLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	voucher, err := h.service.UpdateDraft(r.Context(), actor, id, UpdateInput{
		PayeeRef:    req.PayeeRef,
		Description: req.Description,
		Lines:       lines,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, voucher)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	voucher, err := h.service.SubmitForPosting(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, voucher)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req voidRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
	}
	voucher, err := h.service.Void(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, voucher)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	voucher, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, voucher)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		Status:   Status(q.Get("status")),
		Kind:     Kind(q.Get("kind")),
		PayeeRef: q.Get("payee"),
	}
	if v := q.Get("owner"); v != "" {
		filter.OwnerID, _ = strconv.ParseInt(v, 10, 64)
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	vouchers, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vouchers)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	vouchers, err := h.service.Search(r.Context(), actor, r.URL.Query().Get("q"), Kind(r.URL.Query().Get("kind")))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vouchers)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseLines(reqs []lineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		line := LineInput{AccountCode: lr.AccountCode}
		if lr.Debit != "" {
			amount, err := money.ParseNonNegative(lr.Debit)
			if err != nil {
				return nil, err
			}
			line.Debit = amount
		}
		if lr.Credit != "" {
			amount, err := money.ParseNonNegative(lr.Credit)
			if err != nil {
				return nil, err
			}
			line.Credit = amount
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotEditable):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrTooFewLines),
		errors.Is(err, ErrMixedLine),
		errors.Is(err, ErrNegativeLine),
		errors.Is(err, ErrEmptyLine),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrVoidReasonRequired),
		errors.Is(err, accounts.ErrNotFound),
		errors.Is(err, accounts.ErrInactive),
		errors.Is(err, accounts.ErrInvalidCode),
		errors.Is(err, payees.ErrNotFound),
		errors.Is(err, payees.ErrInactive),
		errors.Is(err, money.ErrInvalidAmount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error("vouchers handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
