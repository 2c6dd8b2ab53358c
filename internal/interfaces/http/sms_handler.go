package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/smsbudget"
	"github.com/jhoicas/Salones-api/internal/domain"
)

// SMSHandler cupo de SMS y decisión de canal para el despachador de notificaciones.
type SMSHandler struct {
	svc *smsbudget.Service
	log zerolog.Logger
}

// NewSMSHandler construye el handler.
func NewSMSHandler(svc *smsbudget.Service, log zerolog.Logger) *SMSHandler {
	return &SMSHandler{svc: svc, log: log}
}

// Allowance cupo mensual del salón.
// GET /api/sms/allowance
func (h *SMSHandler) Allowance(c *fiber.Ctx) error {
	a, err := h.svc.MonthlyAllowance(c.UserContext(), GetSalonID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SMSAllowanceResponse{
		SalonID:    a.SalonID,
		Tier:       string(a.Tier),
		StaffCount: a.StaffCount,
		Allowance:  a.Allowance,
	})
}

// Decision canal (sms o email) para una notificación; priority explícita opcional.
// POST /api/sms/decision
func (h *SMSHandler) Decision(c *fiber.Ctx) error {
	var in dto.SMSDecisionRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	d, err := h.svc.Decide(c.UserContext(), GetSalonID(c), smsbudget.DecisionInput{
		NotificationType: in.NotificationType,
		Priority:         in.Priority,
		Remaining:        in.Remaining,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SMSDecisionResponse{
		NotificationType: d.NotificationType,
		Priority:         string(d.Priority),
		SendSMS:          d.SendSMS,
		Channel:          d.Channel(),
		Allowance:        d.Allowance,
		Remaining:        d.Remaining,
	})
}

// Overage coste del excedente para el consumo indicado.
// GET /api/sms/overage?used=N
func (h *SMSHandler) Overage(c *fiber.Ctx) error {
	used, err := strconv.Atoi(c.Query("used"))
	if err != nil {
		return writeError(c, h.log, domain.NewValidationError("used", "debe ser un entero", nil))
	}
	o, err := h.svc.OverageCost(c.UserContext(), GetSalonID(c), used)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SMSOverageResponse{
		Used:      o.Used,
		Allowance: o.Allowance,
		Excess:    o.Excess,
		Cost:      o.Cost,
		Currency:  "EUR",
	})
}
