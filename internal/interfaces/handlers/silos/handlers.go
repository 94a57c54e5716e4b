package silos

import (
	ledgersvc "arrozal-backend/internal/application/ledger"
	transfersvc "arrozal-backend/internal/application/transfers"
	"arrozal-backend/internal/domain"
	"arrozal-backend/internal/pkg/provenance"
	"arrozal-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Ledger    *ledgersvc.Service
	Transfers *transfersvc.Service
	Plots     provenance.Resolver
}

// CreateSilo POST /api/v1/silos — administrative silo registration.
func (h *Handlers) CreateSilo(c *fiber.Ctx) error {
	var body struct {
		Name        string  `json:"name"`
		Type        string  `json:"type"`
		MaxCapacity float64 `json:"max_capacity"`
		DiameterM   float64 `json:"diameter_m"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.Name == "" || body.MaxCapacity <= 0 {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.Type != "" && !domain.ValidSiloType(body.Type) {
		return response.Error(c, "Invalid silo type", 400, nil)
	}

	silo, err := h.Ledger.CreateSilo(c.Context(), body.Name, body.Type, body.MaxCapacity, body.DiameterM)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Silo created", silo, nil)
}

// ListSilos GET /api/v1/silos
func (h *Handlers) ListSilos(c *fiber.Ctx) error {
	silos, err := h.Ledger.ListSilos(c.Context())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Silos retrieved", silos, nil)
}

// GetSilo GET /api/v1/silos/:silo_id — silo state with live batches. Plot
// names are resolved best-effort into metadata; a failed lookup never
// fails the request.
func (h *Handlers) GetSilo(c *fiber.Ctx) error {
	siloID, err := uuid.Parse(c.Params("silo_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for silo_id", 400, nil)
	}

	state, err := h.Ledger.GetSiloState(c.Context(), siloID)
	if err != nil {
		return response.FromError(c, err)
	}

	var metadata interface{}
	if h.Plots != nil {
		plots := map[string]*provenance.Plot{}
		for _, b := range state.Batches {
			if b.PlotRef == "" {
				continue
			}
			if _, seen := plots[b.PlotRef]; seen {
				continue
			}
			if p, err := h.Plots.Resolve(c.Context(), b.PlotRef); err == nil {
				plots[b.PlotRef] = p
			}
		}
		if len(plots) > 0 {
			metadata = fiber.Map{"plots": plots}
		}
	}
	return response.Success(c, "Silo state retrieved", state, metadata)
}

// PreviewWithdrawal POST /api/v1/silos/:silo_id/preview-withdrawal —
// read-only what-if; calling it twice with unchanged stock yields the
// identical plan.
func (h *Handlers) PreviewWithdrawal(c *fiber.Ctx) error {
	siloID, err := uuid.Parse(c.Params("silo_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for silo_id", 400, nil)
	}

	var body struct {
		Amount float64 `json:"amount"`
		Policy string  `json:"policy"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if !domain.ValidPolicy(body.Policy) {
		return response.Error(c, "Invalid extraction policy", 400, nil)
	}

	plan, err := h.Transfers.PreviewWithdrawal(c.Context(), siloID, body.Amount, body.Policy)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Withdrawal plan computed", plan, nil)
}
