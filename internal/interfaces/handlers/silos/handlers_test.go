package silos

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	ledgersvc "arrozal-backend/internal/application/ledger"
	transfersvc "arrozal-backend/internal/application/transfers"
	"arrozal-backend/internal/domain"
	"arrozal-backend/internal/pkg/provenance"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupSiloTest(t *testing.T) (*Handlers, *ledgersvc.Service) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Silo{}, &domain.Batch{}, &domain.TransferRecord{}, &domain.Reservation{},
	))
	ledgerService := &ledgersvc.Service{DB: db}
	transferService := &transfersvc.Service{DB: db, Ledger: ledgerService}
	h := &Handlers{
		Ledger:    ledgerService,
		Transfers: transferService,
		Plots: provenance.StaticResolver{
			"plot-7": {Ref: "plot-7", Name: "La Arrocera Norte", Establishment: "Estancia Santa Rita"},
		},
	}
	return h, ledgerService
}

func newApp(h *Handlers) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/silos")
	group.Post("/", h.CreateSilo)
	group.Get("/", h.ListSilos)
	group.Get("/:silo_id", h.GetSilo)
	group.Post("/:silo_id/preview-withdrawal", h.PreviewWithdrawal)
	return app
}

func TestCreateSilo(t *testing.T) {
	h, _ := setupSiloTest(t)
	app := newApp(h)

	body, _ := json.Marshal(map[string]interface{}{
		"name": "Silo A", "type": "storage", "max_capacity": 100.0, "diameter_m": 8.5,
	})
	req := httptest.NewRequest("POST", "/api/v1/silos/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	assert.Equal(t, "success", result["status"])
}

func TestCreateSilo_Invalid(t *testing.T) {
	h, _ := setupSiloTest(t)
	app := newApp(h)

	for _, body := range []map[string]interface{}{
		{},
		{"name": "Silo A", "max_capacity": 0},
		{"name": "Silo A", "max_capacity": 50, "type": "swimming-pool"},
	} {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest("POST", "/api/v1/silos/", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	}
}

func TestGetSilo_NotFound(t *testing.T) {
	h, _ := setupSiloTest(t)
	app := newApp(h)

	req := httptest.NewRequest("GET", "/api/v1/silos/"+uuid.New().String(), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/v1/silos/not-a-uuid", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetSilo_ResolvesPlotNames(t *testing.T) {
	h, l := setupSiloTest(t)
	app := newApp(h)
	ctx := context.Background()

	silo, err := l.CreateSilo(ctx, "Silo A", domain.SiloTypeStorage, 100, 8.5)
	require.NoError(t, err)
	_, err = l.AcceptDelivery(ctx, silo.SiloID, domain.Provenance{
		PlotRef: "plot-7", Variety: "X", Certification: domain.CertOrganic,
	}, 10)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/silos/"+silo.SiloID.String(), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	meta, _ := result["metadata"].(map[string]interface{})
	plots, _ := meta["plots"].(map[string]interface{})
	require.Contains(t, plots, "plot-7")
	plot, _ := plots["plot-7"].(map[string]interface{})
	assert.Equal(t, "La Arrocera Norte", plot["name"])
}

func TestPreviewWithdrawal_Idempotent(t *testing.T) {
	h, l := setupSiloTest(t)
	app := newApp(h)
	ctx := context.Background()

	silo, err := l.CreateSilo(ctx, "Silo A", domain.SiloTypeStorage, 100, 8.5)
	require.NoError(t, err)
	_, err = l.AcceptDelivery(ctx, silo.SiloID, domain.Provenance{Variety: "X"}, 25.5)
	require.NoError(t, err)
	_, err = l.AcceptDelivery(ctx, silo.SiloID, domain.Provenance{Variety: "Y"}, 28.0)
	require.NoError(t, err)

	preview := func() string {
		body, _ := json.Marshal(map[string]interface{}{
			"amount": 20.0, "policy": domain.PolicyProportionalMix,
		})
		req := httptest.NewRequest("POST", "/api/v1/silos/"+silo.SiloID.String()+"/preview-withdrawal", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		return buf.String()
	}

	assert.Equal(t, preview(), preview())

	state, err := l.GetSiloState(ctx, silo.SiloID)
	require.NoError(t, err)
	assert.Equal(t, 53.5, state.Silo.Occupancy)
}

func TestPreviewWithdrawal_InvalidPolicy(t *testing.T) {
	h, l := setupSiloTest(t)
	app := newApp(h)

	silo, err := l.CreateSilo(context.Background(), "Silo A", domain.SiloTypeStorage, 100, 8.5)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]interface{}{"amount": 5.0, "policy": "lifo"})
	req := httptest.NewRequest("POST", "/api/v1/silos/"+silo.SiloID.String()+"/preview-withdrawal", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
