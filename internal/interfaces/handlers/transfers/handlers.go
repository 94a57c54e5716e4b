package transfers

import (
	compatsvc "arrozal-backend/internal/application/compat"
	ledgersvc "arrozal-backend/internal/application/ledger"
	transfersvc "arrozal-backend/internal/application/transfers"
	"arrozal-backend/internal/domain"
	"arrozal-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service  *transfersvc.Service
	Ledger   *ledgersvc.Service
	Analyzer *compatsvc.Analyzer
}

// SiloToSilo POST /api/v1/transfers/silo-to-silo
func (h *Handlers) SiloToSilo(c *fiber.Ctx) error {
	var body struct {
		SourceSiloID string  `json:"source_silo_id"`
		DestSiloID   string  `json:"dest_silo_id"`
		Amount       float64 `json:"amount"`
		Policy       string  `json:"policy"`
		Notes        string  `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.SourceSiloID == "" || body.DestSiloID == "" || body.Amount == 0 {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	sourceID, err := uuid.Parse(body.SourceSiloID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for source_silo_id", 400, nil)
	}
	destID, err := uuid.Parse(body.DestSiloID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for dest_silo_id", 400, nil)
	}
	if sourceID == destID {
		return response.Error(c, "Cannot transfer a silo into itself", 400, nil)
	}
	if !domain.ValidPolicy(body.Policy) {
		return response.Error(c, "Invalid extraction policy", 400, nil)
	}

	record, err := h.Service.ExecuteSiloToSilo(c.Context(), sourceID, destID, body.Amount, body.Policy, body.Notes)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Transfer executed", record, nil)
}

// AssignToSale POST /api/v1/transfers/assign-to-sale
func (h *Handlers) AssignToSale(c *fiber.Ctx) error {
	var body struct {
		SourceSiloID  string  `json:"source_silo_id"`
		Amount        float64 `json:"amount"`
		Policy        string  `json:"policy"`
		SalesOrderRef string  `json:"sales_order_ref"`
		Notes         string  `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.SourceSiloID == "" || body.Amount == 0 || body.SalesOrderRef == "" {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	sourceID, err := uuid.Parse(body.SourceSiloID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for source_silo_id", 400, nil)
	}
	if !domain.ValidPolicy(body.Policy) {
		return response.Error(c, "Invalid extraction policy", 400, nil)
	}

	set, err := h.Service.ExecuteSaleReservation(c.Context(), sourceID, body.Amount, body.Policy, body.SalesOrderRef, body.Notes)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Stock assigned to sale", set, nil)
}

// AnalyzeCompatibility POST /api/v1/transfers/analyze-compatibility —
// advisory only; a conflict in the report never blocks the transfer.
func (h *Handlers) AnalyzeCompatibility(c *fiber.Ctx) error {
	var body struct {
		SourceSiloID string  `json:"source_silo_id"`
		DestSiloID   string  `json:"dest_silo_id"`
		Amount       float64 `json:"amount"`
		Policy       string  `json:"policy"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.SourceSiloID == "" || body.DestSiloID == "" || body.Amount == 0 {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	sourceID, err := uuid.Parse(body.SourceSiloID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for source_silo_id", 400, nil)
	}
	destID, err := uuid.Parse(body.DestSiloID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for dest_silo_id", 400, nil)
	}
	if !domain.ValidPolicy(body.Policy) {
		return response.Error(c, "Invalid extraction policy", 400, nil)
	}

	report, err := h.Analyzer.Analyze(c.Context(), sourceID, destID, body.Amount, body.Policy)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Compatibility analyzed", report, nil)
}

// ListTransfers GET /api/v1/transfers?silo_id=
func (h *Handlers) ListTransfers(c *fiber.Ctx) error {
	siloID, err := uuid.Parse(c.Query("silo_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for silo_id", 400, nil)
	}
	records, err := h.Ledger.ListTransfers(c.Context(), siloID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transfers retrieved", records, nil)
}

// ListReservations GET /api/v1/reservations?sales_order_ref=
func (h *Handlers) ListReservations(c *fiber.Ctx) error {
	ref := c.Query("sales_order_ref")
	if ref == "" {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	reservations, err := h.Ledger.ListReservations(c.Context(), ref)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Reservations retrieved", reservations, nil)
}
