package procurement

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	repo := newMemRepo()
	svc, _, _ := newTestService(repo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	NewHandler(logger, svc).MountRoutes(router)
	return router, svc
}

func confirmedReceipt(t *testing.T, svc *Service) (GoodsReceiveNote, ConfirmResult) {
	t.Helper()
	po := approvedPO(t, svc)
	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{POID: po.ID, ActorID: 9})
	require.NoError(t, err)
	result, err := svc.ConfirmGoodsReceipt(context.Background(), grn.ID, "", 9)
	require.NoError(t, err)
	return grn, result
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateReturnOverdrawAnswersConflict(t *testing.T) {
	router, svc := newTestRouter(t)
	grn, result := confirmedReceipt(t, svc)

	rec := postJSON(t, router, "/supplier-returns", map[string]any{
		"supplier_id": 5,
		"grn_id":      grn.ID,
		"items": []map[string]any{
			{"product_id": 1, "batch_id": result.Batches[0].BatchID, "quantity": 99, "unit_cost": "4"},
		},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateReturnUnknownBatchAnswersNotFound(t *testing.T) {
	router, svc := newTestRouter(t)
	grn, _ := confirmedReceipt(t, svc)

	rec := postJSON(t, router, "/supplier-returns", map[string]any{
		"supplier_id": 5,
		"grn_id":      grn.ID,
		"items": []map[string]any{
			{"product_id": 1, "batch_id": 424242, "quantity": 1, "unit_cost": "4"},
		},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
