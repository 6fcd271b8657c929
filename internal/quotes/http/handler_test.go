package quoteshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studio-ops/quotation-engine/internal/quotes"
	"github.com/studio-ops/quotation-engine/internal/structure"
)

type stubQuoteService struct {
	lifecycleService

	createFn        func(ctx context.Context, in quotes.CreateInput) (quotes.Summary, error)
	authorizeFn     func(ctx context.Context, in quotes.AuthorizeInput) (quotes.Summary, error)
	passToClosingFn func(ctx context.Context, id int64, opts *quotes.ClosingOptions) (quotes.Ack, error)
	cancelClosingFn func(ctx context.Context, id int64, restore bool) (quotes.Ack, error)
	structureFn     func(ctx context.Context, id int64, opts structure.Options) (structure.Hierarchy, error)
	syncFn          func(ctx context.Context, id int64) (quotes.Summary, error)
}

func (s *stubQuoteService) Create(ctx context.Context, in quotes.CreateInput) (quotes.Summary, error) {
	return s.createFn(ctx, in)
}

func (s *stubQuoteService) Authorize(ctx context.Context, in quotes.AuthorizeInput) (quotes.Summary, error) {
	return s.authorizeFn(ctx, in)
}

func (s *stubQuoteService) PassToClosing(ctx context.Context, id int64, opts *quotes.ClosingOptions) (quotes.Ack, error) {
	return s.passToClosingFn(ctx, id, opts)
}

func (s *stubQuoteService) CancelClosing(ctx context.Context, id int64, restore bool) (quotes.Ack, error) {
	return s.cancelClosingFn(ctx, id, restore)
}

func (s *stubQuoteService) Structure(ctx context.Context, id int64, opts structure.Options) (structure.Hierarchy, error) {
	return s.structureFn(ctx, id, opts)
}

func (s *stubQuoteService) SyncPricing(ctx context.Context, id int64) (quotes.Summary, error) {
	return s.syncFn(ctx, id)
}

func newTestRouter(t *testing.T, svc lifecycleService) http.Handler {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResult[T any](t *testing.T, rr *httptest.ResponseRecorder) quotes.Result[T] {
	t.Helper()
	var res quotes.Result[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res
}

func TestCreateReturnsCreatedSummary(t *testing.T) {
	var captured quotes.CreateInput
	svc := &stubQuoteService{createFn: func(ctx context.Context, in quotes.CreateInput) (quotes.Summary, error) {
		captured = in
		return quotes.Summary{ID: 9, DealID: in.DealID, Name: in.Name, Status: quotes.StatusPending, ListPrice: 273}, nil
	}}
	router := newTestRouter(t, svc)

	rr := do(t, router, http.MethodPost, "/quotations/", `{"deal_id":1,"name":"Paquete Boda","catalog_selections":[{"item_id":100,"quantity":2}]}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	res := decodeResult[quotes.Summary](t, rr)
	assert.True(t, res.OK)
	assert.Equal(t, int64(9), res.Data.ID)
	assert.Equal(t, 273.0, res.Data.ListPrice)
	assert.Equal(t, "Paquete Boda", captured.Name)
	require.Len(t, captured.CatalogSelections, 1)
	assert.Equal(t, int64(100), captured.CatalogSelections[0].ItemID)
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	svc := &stubQuoteService{createFn: func(ctx context.Context, in quotes.CreateInput) (quotes.Summary, error) {
		t.Fatal("service must not be called")
		return quotes.Summary{}, nil
	}}
	router := newTestRouter(t, svc)

	cases := map[string]string{
		"malformed":     `{"deal_id":`,
		"missing deal":  `{"name":"A"}`,
		"bad selection": `{"deal_id":1,"name":"A","catalog_selections":[{"item_id":0,"quantity":1}]}`,
		"empty body":    ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, router, http.MethodPost, "/quotations/", body)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			res := decodeResult[quotes.Summary](t, rr)
			assert.False(t, res.OK)
			assert.Equal(t, quotes.CodeValidation, res.Code)
		})
	}
}

func TestErrorCodesMapToStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: quotation 4", quotes.ErrNotFound), http.StatusNotFound, quotes.CodeNotFound},
		{fmt.Errorf("%w: cannot authorize", quotes.ErrInvalidState), http.StatusConflict, quotes.CodeInvalidState},
		{fmt.Errorf("%w: studio 10", quotes.ErrConfigurationMissing), http.StatusUnprocessableEntity, quotes.CodeConfigurationMissing},
		{fmt.Errorf("%w: calendar", quotes.ErrExternalSync), http.StatusBadGateway, quotes.CodeExternalSync},
		{fmt.Errorf("pq: connection refused"), http.StatusInternalServerError, quotes.CodeInternal},
	}
	for _, tc := range cases {
		svc := &stubQuoteService{syncFn: func(ctx context.Context, id int64) (quotes.Summary, error) {
			return quotes.Summary{}, tc.err
		}}
		rr := do(t, newTestRouter(t, svc), http.MethodPost, "/quotations/4/sync-pricing", "")
		assert.Equal(t, tc.status, rr.Code, tc.code)
		res := decodeResult[quotes.Summary](t, rr)
		assert.Equal(t, tc.code, res.Code)
		assert.Nil(t, res.Data)
		assert.NotContains(t, res.Reason, "connection refused")
	}
}

func TestAuthorizeUsesPathID(t *testing.T) {
	var captured quotes.AuthorizeInput
	svc := &stubQuoteService{authorizeFn: func(ctx context.Context, in quotes.AuthorizeInput) (quotes.Summary, error) {
		captured = in
		return quotes.Summary{ID: in.QuotationID, Status: quotes.StatusContractPending, Price: in.Amount}, nil
	}}

	rr := do(t, newTestRouter(t, svc), http.MethodPost, "/quotations/12/authorize", `{"quotation_id":99,"deal_id":3,"amount":250}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(12), captured.QuotationID)
	assert.Equal(t, int64(3), captured.DealID)
	assert.Equal(t, 250.0, captured.Amount)
}

func TestInvalidPathID(t *testing.T) {
	rr := do(t, newTestRouter(t, &stubQuoteService{}), http.MethodPost, "/quotations/abc/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	res := decodeResult[struct{}](t, rr)
	assert.Equal(t, quotes.CodeValidation, res.Code)
}

func TestPassToClosingBodyIsOptional(t *testing.T) {
	var got []*quotes.ClosingOptions
	svc := &stubQuoteService{passToClosingFn: func(ctx context.Context, id int64, opts *quotes.ClosingOptions) (quotes.Ack, error) {
		got = append(got, opts)
		return quotes.Ack{ID: id}, nil
	}}
	router := newTestRouter(t, svc)

	rr := do(t, router, http.MethodPost, "/quotations/5/closing", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, router, http.MethodPost, "/quotations/5/closing", `{"notes":"firma"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, got, 2)
	assert.Nil(t, got[0])
	require.NotNil(t, got[1])
	assert.Equal(t, "firma", *got[1].Notes)
}

func TestCancelClosingRestoreFlag(t *testing.T) {
	var restore bool
	svc := &stubQuoteService{cancelClosingFn: func(ctx context.Context, id int64, r bool) (quotes.Ack, error) {
		restore = r
		return quotes.Ack{ID: id}, nil
	}}

	rr := do(t, newTestRouter(t, svc), http.MethodPost, "/quotations/5/closing/cancel", `{"restore_siblings":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, restore)
}

func TestStructureQueryOptions(t *testing.T) {
	var captured structure.Options
	svc := &stubQuoteService{structureFn: func(ctx context.Context, id int64, opts structure.Options) (structure.Hierarchy, error) {
		captured = opts
		return structure.Hierarchy{Total: 10}, nil
	}}

	rr := do(t, newTestRouter(t, svc), http.MethodGet, "/quotations/5/structure?order_by=catalogo&prices=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, structure.Options{OrderBy: structure.OrderCatalog, IncludePrices: true}, captured)
}

func TestBuildAndFlattenStructure(t *testing.T) {
	router := newTestRouter(t, &stubQuoteService{})

	body := `{"items":[
		{"id":1,"live":{"section":"Video","category":"Edición","name":"Clip"},"quantity":1,"subtotal":50},
		{"id":2,"live":{"section":"Foto","category":"Cobertura","name":"Sesión"},"quantity":1,"subtotal":100.5}
	],"options":{"include_prices":true}}`
	rr := do(t, router, http.MethodPost, "/structure", body)
	require.Equal(t, http.StatusOK, rr.Code)
	built := decodeResult[structure.Hierarchy](t, rr)
	require.True(t, built.OK)
	assert.Equal(t, 150.5, built.Data.Total)
	require.Len(t, built.Data.Sections, 2)
	assert.Equal(t, "Video", built.Data.Sections[0].Name)

	payload, err := json.Marshal(map[string]any{"hierarchy": built.Data})
	require.NoError(t, err)
	rr = do(t, router, http.MethodPost, "/structure/flatten", string(payload))
	require.Equal(t, http.StatusOK, rr.Code)
	flat := decodeResult[[]int64](t, rr)
	assert.Equal(t, []int64{1, 2}, *flat.Data)
}

func TestBuildStructureRejectsUnknownOrder(t *testing.T) {
	rr := do(t, newTestRouter(t, &stubQuoteService{}), http.MethodPost, "/structure", `{"items":[],"options":{"order_by":"random"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
