// internal/handlers/scheme.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

// SchemeHandler serves the public read side of government schemes.
type SchemeHandler struct {
	adminService *services.AdminService
}

func NewSchemeHandler(adminService *services.AdminService) *SchemeHandler {
	return &SchemeHandler{adminService: adminService}
}

// GET /schemes
func (h *SchemeHandler) ListSchemes(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	schemes, total, err := h.adminService.ListSchemes(c.Request.Context(), params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(schemes, total, params))
}

// GET /schemes/:id
func (h *SchemeHandler) GetScheme(c *gin.Context) {
	schemeID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	scheme, err := h.adminService.GetScheme(c.Request.Context(), schemeID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "", scheme)
}
