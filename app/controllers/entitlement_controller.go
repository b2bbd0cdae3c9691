package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pmuprofit/coursegate/app/models"
	"github.com/pmuprofit/coursegate/app/repository"
	"github.com/pmuprofit/coursegate/internal/pkg/billing"
	"github.com/pmuprofit/coursegate/internal/pkg/constants"
	"github.com/pmuprofit/coursegate/internal/pkg/entitlements"
	"github.com/pmuprofit/coursegate/internal/pkg/products"
	"github.com/pmuprofit/coursegate/internal/pkg/usercontext"
)

// EntitlementReader is the read side used by the entitlement endpoints.
type EntitlementReader interface {
	entitlements.Checker
	ListActive(ctx context.Context, userID string) ([]entitlements.Grant, error)
}

// EntitlementGranter creates grants outside the payment flow.
type EntitlementGranter interface {
	GrantEntitlement(ctx context.Context, in billing.GrantInput) (*models.Entitlement, error)
}

type EntitlementController struct {
	reader       EntitlementReader
	granter      EntitlementGranter
	entitlements repository.EntitlementRepository
	purchases    repository.PurchaseRepository
}

func NewEntitlementController(reader EntitlementReader, granter EntitlementGranter, repos *repository.Repositories) *EntitlementController {
	return &EntitlementController{
		reader:       reader,
		granter:      granter,
		entitlements: repos.Entitlement,
		purchases:    repos.Purchase,
	}
}

// HandleListEntitlements returns the caller's active entitlements.
func (ec *EntitlementController) HandleListEntitlements(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	grants, err := ec.reader.ListActive(c.UserContext(), userID)
	if err != nil {
		log.Errorf("[entitlements] list for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusServiceUnavailable, "entitlements_unavailable", "Entitlements could not be loaded")
	}
	return c.JSON(fiber.Map{
		"userId":       userID,
		"entitlements": grants,
		"count":        len(grants),
	})
}

// HandleListPurchases returns the caller's purchases, newest first.
func (ec *EntitlementController) HandleListPurchases(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	rows, err := ec.purchases.ListByUser(c.UserContext(), userID)
	if err != nil {
		log.Errorf("[entitlements] purchases for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusServiceUnavailable, "purchases_unavailable", "Purchases could not be loaded")
	}
	return c.JSON(fiber.Map{
		"userId":    userID,
		"purchases": rows,
	})
}

func (ec *EntitlementController) HandleCheckEntitlement(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}
	raw := strings.TrimSpace(c.Query(constants.QueryProductID))
	if raw == "" {
		return jsonError(c, fiber.StatusBadRequest, "missing_product", "productId is required")
	}
	productID, err := products.Normalize(raw)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "unknown_product", err.Error())
	}

	ok, err := ec.reader.HasProductAccess(c.UserContext(), userID, productID)
	if err != nil {
		log.Errorf("[entitlements] check %s for %s failed: %v", productID, userID, err)
		return jsonError(c, fiber.StatusServiceUnavailable, "entitlements_unavailable", "Entitlements could not be checked")
	}
	return c.JSON(fiber.Map{
		"userId":    userID,
		"productId": productID,
		"hasAccess": ok,
	})
}

type adminGrantRequest struct {
	UserID     string `json:"userId" validate:"required,uuid"`
	ProductID  string `json:"productId" validate:"required,max=100"`
	SourceType string `json:"sourceType" validate:"omitempty,oneof=manual gift promotion bundle"`
	SourceID   string `json:"sourceId" validate:"omitempty,max=255"`
}

func (ec *EntitlementController) HandleAdminGrant(c *fiber.Ctx) error {
	var req adminGrantRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body must be JSON")
	}
	req.SourceType = strings.ToLower(strings.TrimSpace(req.SourceType))
	if err := validate.Struct(req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", validationMessage(err))
	}

	ent, err := ec.granter.GrantEntitlement(c.UserContext(), billing.GrantInput{
		UserID:     req.UserID,
		ProductID:  req.ProductID,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
	})
	switch {
	case errors.Is(err, products.ErrUnknownProduct):
		return jsonError(c, fiber.StatusBadRequest, "unknown_product", err.Error())
	case errors.Is(err, billing.ErrMissingPrincipal):
		return jsonError(c, fiber.StatusBadRequest, "invalid_user", err.Error())
	case err != nil:
		log.Errorf("[admin] grant %s to %s failed: %v", req.ProductID, req.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "grant_failed", "Entitlement could not be granted")
	}
	return c.Status(fiber.StatusCreated).JSON(ent)
}

func (ec *EntitlementController) HandleAdminRevoke(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	ent, err := ec.entitlements.Deactivate(c.UserContext(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Entitlement not found")
	case err != nil:
		log.Errorf("[admin] revoke %s failed: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "revoke_failed", "Entitlement could not be revoked")
	}
	log.Infof("[admin] revoked entitlement %s (user=%s product=%s)", ent.ID, ent.UserID, ent.ProductID)
	return c.JSON(ent)
}

func (ec *EntitlementController) HandleAdminDeletePurchase(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	err := ec.purchases.Delete(c.UserContext(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Purchase not found")
	case err != nil:
		log.Errorf("[admin] delete purchase %s failed: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "delete_failed", "Purchase could not be deleted")
	}
	log.Infof("[admin] deleted purchase %s", id)
	return c.SendStatus(fiber.StatusNoContent)
}
