package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// ConfirmHandler redeems signed confirmation links. The endpoint is public;
// the token itself is the capability.
type ConfirmHandler struct {
	workflow *service.WorkflowService
	cfg      config.ConfirmConfig
}

// NewConfirmHandler constructs handler.
func NewConfirmHandler(workflow *service.WorkflowService, cfg config.ConfirmConfig) *ConfirmHandler {
	return &ConfirmHandler{workflow: workflow, cfg: cfg}
}

// Redeem handles GET and POST /confirm?token=...&a=confirm|not_confirm.
// Browsers following a mail link get a redirect to the outcome page; API
// clients asking for JSON get the structured result.
func (h *ConfirmHandler) Redeem(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		return apperrors.NewValidationError("token required", nil)
	}
	action := c.Query("a", service.RedeemConfirm)

	var reason *string
	if r := strings.TrimSpace(c.Query("reason")); r != "" {
		reason = &r
	}

	result, err := h.workflow.Redeem(c.Context(), tokenStr, action, reason)
	if err != nil {
		if wantsJSON(c) {
			return err
		}
		return c.Redirect(h.cfg.FailureURL, fiber.StatusSeeOther)
	}

	if wantsJSON(c) {
		return c.JSON(fiber.Map{"data": result})
	}
	return c.Redirect(h.cfg.SuccessURL, fiber.StatusSeeOther)
}

func wantsJSON(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}
