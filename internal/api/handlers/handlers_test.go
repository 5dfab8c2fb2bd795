package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pharmacy-platform/pharmacy-service/internal/application"
	"github.com/pharmacy-platform/pharmacy-service/internal/application/apptest"
	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/internal/infrastructure/export"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/middleware"
)

type mockReportService struct {
	summaryFn func(ctx context.Context) (*application.SummaryDTO, error)
}

func (m *mockReportService) Summary(ctx context.Context) (*application.SummaryDTO, error) {
	if m.summaryFn == nil {
		panic("Summary not implemented")
	}
	return m.summaryFn(ctx)
}

type testServer struct {
	router    *gin.Engine
	medicines *apptest.MedicineRepository
	orders    *apptest.OrderRepository
	recorder  *apptest.Recorder
}

func newTestServer(t *testing.T, reports ReportService, meds ...*domain.Medicine) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewNop()
	s := &testServer{
		medicines: apptest.NewMedicineRepository(meds...),
		orders:    apptest.NewOrderRepository(),
		recorder:  &apptest.Recorder{},
	}

	medicineService := application.NewMedicineApplicationService(
		s.medicines, s.recorder, export.NewInventoryWorkbook(5), logger, nil, 5)
	orderService := application.NewOrderApplicationService(
		s.orders, s.medicines, s.recorder, nil, logger, nil)
	if reports == nil {
		reports = &mockReportService{}
	}

	s.router = gin.New()
	middleware.Setup(s.router, middleware.DefaultConfig("pharmacy-test", logger.Logger))
	s.router.Use(middleware.Identify())

	v1 := s.router.Group("/api/v1")
	NewMedicineHandlers(medicineService, logger).RegisterRoutes(v1)
	NewOrderHandlers(orderService, logger).RegisterRoutes(v1)
	NewReportHandlers(reports, logger).RegisterRoutes(v1)
	return s
}

type caller struct {
	userID string
	role   string
}

var (
	admin = caller{userID: "admin-1", role: middleware.RoleAdmin}
	alice = caller{userID: "alice", role: middleware.RoleUser}
	bob   = caller{userID: "bob", role: middleware.RoleUser}
)

func (s *testServer) do(as caller, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as.userID != "" {
		req.Header.Set(middleware.HeaderUserID, as.userID)
	}
	if as.role != "" {
		req.Header.Set(middleware.HeaderUserRole, as.role)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.APIErrorResponse {
	return decode[middleware.APIErrorResponse](t, w)
}

func medicine(id string, stock int) *domain.Medicine {
	return &domain.Medicine{
		ID: id, Name: "Med " + id, Category: "Analgesic", Origin: "DE", Stock: stock,
		History: []domain.StockHistoryEntry{{ID: "hist-seed", Quantity: stock, Type: domain.StockIncrease}},
	}
}

func TestRoleGating(t *testing.T) {
	s := newTestServer(t, nil, medicine("med-1", 10))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"create medicine", http.MethodPost, "/api/v1/medicines", map[string]any{"id": "x"}},
		{"update medicine", http.MethodPut, "/api/v1/medicines/med-1", map[string]any{"name": "x"}},
		{"adjust stock", http.MethodPatch, "/api/v1/medicines/med-1/stock", map[string]any{"quantity": 1, "type": "increase"}},
		{"delete medicine", http.MethodDelete, "/api/v1/medicines/med-1", nil},
		{"export", http.MethodGet, "/api/v1/medicines/export", nil},
		{"list orders", http.MethodGet, "/api/v1/orders", nil},
		{"update status", http.MethodPatch, "/api/v1/orders/ORD1/status", map[string]any{"status": "completed"}},
		{"update notes", http.MethodPatch, "/api/v1/orders/ORD1/notes", map[string]any{"notes": "x"}},
		{"delete order", http.MethodDelete, "/api/v1/orders/ORD1", nil},
		{"summary", http.MethodGet, "/api/v1/reports/summary", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(alice, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
			require.Equal(t, "FORBIDDEN", decodeError(t, w).Code)

			anonymous := s.do(caller{}, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusForbidden, anonymous.Code, "a missing role is a regular user")
		})
	}

	require.Equal(t, 10, s.medicines.Stock("med-1"))
}
