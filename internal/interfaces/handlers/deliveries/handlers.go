package deliveries

import (
	ledgersvc "arrozal-backend/internal/application/ledger"
	"arrozal-backend/internal/domain"
	"arrozal-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Ledger *ledgersvc.Service
}

// Accept POST /api/v1/deliveries/accept — the intake event fired when an
// upstream transport document is marked as unloaded into a silo.
func (h *Handlers) Accept(c *fiber.Ctx) error {
	var body struct {
		SiloID        string  `json:"silo_id"`
		DeliveryRef   string  `json:"delivery_ref"`
		PlotRef       string  `json:"plot_ref"`
		Variety       string  `json:"variety"`
		Certification string  `json:"certification"`
		MoisturePct   float64 `json:"moisture_pct"`
		BrokenPct     float64 `json:"broken_pct"`
		Tonnage       float64 `json:"tonnage"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.SiloID == "" || body.Variety == "" || body.Tonnage == 0 {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	siloID, err := uuid.Parse(body.SiloID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for silo_id", 400, nil)
	}
	if body.Certification == "" {
		body.Certification = domain.CertConventional
	}

	batch, err := h.Ledger.AcceptDelivery(c.Context(), siloID, domain.Provenance{
		DeliveryRef:   body.DeliveryRef,
		PlotRef:       body.PlotRef,
		Variety:       body.Variety,
		Certification: body.Certification,
		MoisturePct:   body.MoisturePct,
		BrokenPct:     body.BrokenPct,
	}, body.Tonnage)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Delivery accepted", batch, nil)
}
