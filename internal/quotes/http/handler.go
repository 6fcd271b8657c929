package quoteshttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/studio-ops/quotation-engine/internal/platform/httpx"
	"github.com/studio-ops/quotation-engine/internal/quotes"
	"github.com/studio-ops/quotation-engine/internal/structure"
)

type lifecycleService interface {
	Get(ctx context.Context, id int64) (*quotes.Quotation, error)
	ListByDeal(ctx context.Context, dealID int64) ([]quotes.Summary, error)
	Structure(ctx context.Context, id int64, opts structure.Options) (structure.Hierarchy, error)
	CanonicalOrder(ctx context.Context, id int64) ([]int64, error)
	Create(ctx context.Context, in quotes.CreateInput) (quotes.Summary, error)
	Update(ctx context.Context, id int64, in quotes.QuotationInput) (quotes.Summary, error)
	SyncPricing(ctx context.Context, id int64) (quotes.Summary, error)
	Authorize(ctx context.Context, in quotes.AuthorizeInput) (quotes.Summary, error)
	ConfirmContract(ctx context.Context, id int64) (quotes.Summary, error)
	Cancel(ctx context.Context, id int64) (quotes.Ack, error)
	PassToClosing(ctx context.Context, id int64, opts *quotes.ClosingOptions) (quotes.Ack, error)
	CancelClosing(ctx context.Context, id int64, restoreSiblings bool) (quotes.Ack, error)
	Negotiate(ctx context.Context, in quotes.NegotiationInput) (quotes.Summary, error)
	CreateNegotiationVersion(ctx context.Context, originalID int64, in quotes.NegotiationVersionInput) (quotes.Summary, error)
	CreateRevision(ctx context.Context, in quotes.RevisionInput) (quotes.Summary, error)
	AuthorizeRevision(ctx context.Context, in quotes.AuthorizeRevisionInput) (quotes.Summary, error)
}

// Handler exposes the quotation engine as a JSON API. Every response body is a quotes.Result.
type Handler struct {
	logger    *slog.Logger
	service   lifecycleService
	validator *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service lifecycleService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotations", func(r chi.Router) {
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Put("/", h.update)
			r.Get("/structure", h.structure)
			r.Get("/canonical-order", h.canonicalOrder)
			r.Post("/sync-pricing", h.syncPricing)
			r.Post("/authorize", h.authorize)
			r.Post("/confirm-contract", h.confirmContract)
			r.Post("/cancel", h.cancel)
			r.Post("/closing", h.passToClosing)
			r.Post("/closing/cancel", h.cancelClosing)
			r.Post("/negotiate", h.negotiate)
			r.Post("/negotiation-versions", h.negotiationVersion)
			r.Post("/revisions", h.createRevision)
			r.Post("/authorize-revision", h.authorizeRevision)
		})
	})
	r.Get("/deals/{dealID}/quotations", h.listByDeal)
	r.Post("/structure", h.buildHierarchy)
	r.Post("/structure/flatten", h.flatten)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		respond(h, w, r, quotes.Quotation{}, err)
		return
	}
	respond(h, w, r, *q, nil)
}

func (h *Handler) listByDeal(w http.ResponseWriter, r *http.Request) {
	dealID, ok := h.pathID(w, r, "dealID")
	if !ok {
		return
	}
	list, err := h.service.ListByDeal(r.Context(), dealID)
	respond(h, w, r, list, err)
}

func (h *Handler) structure(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	query := r.URL.Query()
	opts := structure.Options{
		OrderBy:             structure.ParseOrderBy(query.Get("order_by")),
		IncludePrices:       queryBool(query.Get("prices")),
		IncludeDescriptions: queryBool(query.Get("descriptions")),
	}
	hierarchy, err := h.service.Structure(r.Context(), id, opts)
	respond(h, w, r, hierarchy, err)
}

func (h *Handler) canonicalOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	ids, err := h.service.CanonicalOrder(r.Context(), id)
	respond(h, w, r, ids, err)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in quotes.CreateInput
	if err := h.decode(w, r, &in); err != nil {
		respond(h, w, r, quotes.Summary{}, err)
		return
	}
	summary, err := h.service.Create(r.Context(), in)
	respondCreated(h, w, r, summary, err)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in quotes.QuotationInput
	if err := h.decode(w, r, &in); err != nil {
		respond(h, w, r, quotes.Summary{}, err)
		return
	}
	summary, err := h.service.Update(r.Context(), id, in)
	respond(h, w, r, summary, err)
}

func (h *Handler) syncPricing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	summary, err := h.service.SyncPricing(r.Context(), id)
	respond(h, w, r, summary, err)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in quotes.AuthorizeInput
	if err := h.decode(w, r, &in); err != nil {
		respond(h, w, r, quotes.Summary{}, err)
		return
	}
	in.QuotationID = id
	summary, err := h.service.Authorize(r.Context(), in)
	respond(h, w, r, summary, err)
}

func (h *Handler) confirmContract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	summary, err := h.service.ConfirmContract(r.Context(), id)
	respond(h, w, r, summary, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	ack, err := h.service.Cancel(r.Context(), id)
	respond(h, w, r, ack, err)
}

func (h *Handler) passToClosing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var opts quotes.ClosingOptions
	present, err := h.decodeOptional(w, r, &opts)
	if err != nil {
		respond(h, w, r, quotes.Ack{}, err)
		return
	}
	var optsPtr *quotes.ClosingOptions
	if present {
		optsPtr = &opts
	}
	ack, err := h.service.PassToClosing(r.Context(), id, optsPtr)
	respond(h, w, r, ack, err)
}

func (h *Handler) cancelClosing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req cancelClosingRequest
	if _, err := h.decodeOptional(w, r, &req); err != nil {
		respond(h, w, r, quotes.Ack{}, err)
		return
	}
	ack, err := h.service.CancelClosing(r.Context(), id, req.RestoreSiblings)
	respond(h, w, r, ack, err)
}

func (h *Handler) negotiate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in quotes.NegotiationInput
	if err := h.decode(w, r, &in); err != nil {
		respond(h, w, r, quotes.Summary{}, err)
		return
	}
	in.QuotationID = id
	summary, err := h.service.Negotiate(r.Context(), in)
	respond(h, w, r, summary, err)
}

func (h *Handler) negotiationVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in quotes.NegotiationVersionInput
	if err := h.decode(w, r, &in); err != nil {
		respond(h, w, r, quotes.Summary{}, err)
		return
	}
	summary, err := h.service.CreateNegotiationVersion(r.Context(), id, in)
	respondCreated(h, w, r, summary, err)
}

func (h *Handler) createRevision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in quotes.RevisionInput
	if _, err := h.decodeOptional(w, r, &in); err != nil {
		respond(h, w, r, quotes.Summary{}, err)
		return
	}
	in.OriginalID = id
	summary, err := h.service.CreateRevision(r.Context(), in)
	respondCreated(h, w, r, summary, err)
}

func (h *Handler) authorizeRevision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in quotes.AuthorizeRevisionInput
	if err := h.decode(w, r, &in); err != nil {
		respond(h, w, r, quotes.Summary{}, err)
		return
	}
	in.RevisionID = id
	summary, err := h.service.AuthorizeRevision(r.Context(), in)
	respond(h, w, r, summary, err)
}

func (h *Handler) buildHierarchy(w http.ResponseWriter, r *http.Request) {
	var req buildHierarchyRequest
	if err := h.decode(w, r, &req); err != nil {
		respond(h, w, r, structure.Hierarchy{}, err)
		return
	}
	opts := req.Options.toOptions()
	respond(h, w, r, structure.Build(req.Items, opts), nil)
}

func (h *Handler) flatten(w http.ResponseWriter, r *http.Request) {
	var req flattenRequest
	if err := h.decode(w, r, &req); err != nil {
		respond(h, w, r, []int64{}, err)
		return
	}
	respond(h, w, r, structure.Flatten(req.Hierarchy), nil)
}

// decode reads a required JSON body and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	present, err := h.decodeOptional(w, r, dst)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: request body is required", quotes.ErrValidation)
	}
	return nil
}

// decodeOptional reads a JSON body when one is sent and validates it. It reports whether a
// body was present.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) (bool, error) {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("%w: malformed request body", quotes.ErrValidation)
	}
	if err := h.validator.Struct(dst); err != nil {
		return true, validationError(err)
	}
	return true, nil
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.JSON(w, http.StatusBadRequest, quotes.Result[struct{}]{
			Code:   quotes.CodeValidation,
			Reason: fmt.Sprintf("invalid %s", param),
		})
		return 0, false
	}
	return id, true
}

func respond[T any](h *Handler, w http.ResponseWriter, r *http.Request, value T, err error) {
	writeResult(h, w, r, http.StatusOK, value, err)
}

func respondCreated[T any](h *Handler, w http.ResponseWriter, r *http.Request, value T, err error) {
	writeResult(h, w, r, http.StatusCreated, value, err)
}

func writeResult[T any](h *Handler, w http.ResponseWriter, r *http.Request, okStatus int, value T, err error) {
	res := quotes.NewResult(value, err)
	status := okStatus
	if !res.OK {
		status = statusFor(res.Code)
		if res.Code == quotes.CodeInternal {
			h.logger.Error("quotation request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
		}
	}
	httpx.JSON(w, status, res)
}

func statusFor(code string) int {
	switch code {
	case quotes.CodeNotFound:
		return http.StatusNotFound
	case quotes.CodeInvalidState, quotes.CodeDependencyUnresolved:
		return http.StatusConflict
	case quotes.CodeValidation, quotes.CodeConfigurationMissing:
		return http.StatusUnprocessableEntity
	case quotes.CodeExternalSync:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", quotes.ErrValidation, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", quotes.ErrValidation, strings.Join(parts, "; "))
}

func queryBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
