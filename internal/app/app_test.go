package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shiftlabv1 "github.com/vladislavdragonenkov/shiftlab/api/shiftlab/v1"
	"github.com/vladislavdragonenkov/shiftlab/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
	log.SetLevel(log.WarnLevel)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.SeedFile = filepath.Join("testdata", "seed.json")
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func workerNames(a *App) []string {
	names := make([]string, 0, len(a.workers))
	for _, w := range a.workers {
		names = append(names, w.name)
	}
	return names
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageDriver = "invalid-driver"

	_, err := New(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestNew_MissingSeedFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.SeedFile = filepath.Join(t.TempDir(), "absent.json")

	_, err := New(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "load seed") {
		t.Fatalf("expected seed error, got %v", err)
	}
}

func TestNew_MemoryWithoutKafka(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	assert.Nil(t, a.producer)
	assert.Nil(t, a.consumer)
	assert.ElementsMatch(t, []string{"idempotency-cleanup", "reminder-scanner"}, workerNames(a))
	assert.Equal(t, []string{"storage"}, a.health.Names())
}

func TestNew_ReminderDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReminderEnabled = false

	a := newTestApp(t, cfg)
	assert.Equal(t, []string{"idempotency-cleanup"}, workerNames(a))
}

func TestApp_RESTCreatesOrderAndOutboxEvent(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	body, err := json.Marshal(shiftlabv1.CreateOrderRequest{Order: shiftlabv1.OrderInput{
		VehicleID:         "veh-1",
		OilID:             "oil-5w30",
		OilLitres:         decimal.RequireFromString("4.5"),
		Parts:             []shiftlabv1.PartInput{{PartID: "flt-101", Quantity: decimal.NewFromInt(1)}},
		ServiceFee:        decimal.RequireFromString("150"),
		OdometerAtService: 48500,
		ServiceDate:       time.Now().In(a.cfg.Location()).Format(time.DateOnly),
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "app-test-1")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp shiftlabv1.CreateOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// 4.5 * 180 + 95.50 + 150
	assert.Equal(t, "1055.50", resp.Order.Totals.Total)

	store, ok := a.deps.store.(*memory.Store)
	require.True(t, ok)
	item, err := store.GetCatalogItem(context.Background(), "oil-5w30")
	require.NoError(t, err)
	assert.Equal(t, "35.50", item.StockQuantity.String())
	assert.NotEmpty(t, store.Outbox().AllPending())
}

func TestApp_MetricsAndHealthEndpoints(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	handler := a.metricsHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "grpc_server_started_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storage"`)
}

func TestRun_GracefulShutdown(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	client := &http.Client{Timeout: time.Second}
	metricsURL := "http://" + a.metricsLis.Addr().String() + "/livez"
	require.Eventually(t, func() bool {
		resp, err := client.Get(metricsURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := client.Get("http://" + a.httpLis.Addr().String() + "/api/v1/orders")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.GRPCAddr = "256.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "listen grpc") {
		t.Fatalf("expected listen error, got %v", err)
	}
}
