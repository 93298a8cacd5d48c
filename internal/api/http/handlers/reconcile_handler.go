package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/leanrobert/telegram-jira-bot/internal/api/dto"
	"github.com/leanrobert/telegram-jira-bot/internal/repository"
	"github.com/leanrobert/telegram-jira-bot/internal/service"
)

// ReconcileHandler lets operators trigger and inspect reconciliation.
type ReconcileHandler struct {
	reconciler *service.Reconciler
	changes    repository.StatusChangeRepository
}

// NewReconcileHandler constructs handler.
func NewReconcileHandler(reconciler *service.Reconciler, changes repository.StatusChangeRepository) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, changes: changes}
}

// Run POST /reconcile. Runs one cycle synchronously; safe to call while the
// timer-driven worker is mid-cycle.
func (h *ReconcileHandler) Run(c *fiber.Ctx) error {
	if err := h.reconciler.RunReconciliationCycle(c.Context()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "completed"}})
}

// Unsent GET /reconcile/unsent.
func (h *ReconcileHandler) Unsent(c *fiber.Ctx) error {
	count, err := h.changes.CountUnsent(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UnsentResponse{Unsent: count}})
}
