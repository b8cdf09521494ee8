// internal/handlers/crop.go
package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

const maxUploadMemory = 32 << 20

type CropHandler struct {
	cropService    *services.CropService
	storageService *services.StorageService
}

func NewCropHandler(cropService *services.CropService, storageService *services.StorageService) *CropHandler {
	return &CropHandler{
		cropService:    cropService,
		storageService: storageService,
	}
}

// GET /crops
func (h *CropHandler) SearchCrops(c *gin.Context) {
	params := services.CropSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
		Category:         c.Query("category"),
		Location:         c.Query("location"),
		Viewer:           cropViewer(c),
	}

	if farmerID := c.Query("farmer_id"); farmerID != "" {
		id, err := uuid.Parse(farmerID)
		if err != nil {
			utils.BadRequestResponse(c, "invalid farmer_id", nil)
			return
		}
		params.FarmerID = &id
	}

	for key, dest := range map[string]**decimal.Decimal{"price_min": &params.PriceMin, "price_max": &params.PriceMax} {
		if raw := c.Query(key); raw != "" {
			value, err := decimal.NewFromString(raw)
			if err != nil {
				utils.BadRequestResponse(c, "invalid "+key, nil)
				return
			}
			*dest = &value
		}
	}

	if inStock, err := strconv.ParseBool(c.DefaultQuery("in_stock", "false")); err == nil {
		params.InStock = inStock
	}

	crops, total, err := h.cropService.SearchCrops(c.Request.Context(), params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(crops, total, params.PaginationParams))
}

// GET /crops/:id
func (h *CropHandler) GetCrop(c *gin.Context) {
	cropID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	crop, err := h.cropService.GetListing(c.Request.Context(), cropID, cropViewer(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "", crop)
}

// cropViewer reads the caller that OptionalAuth may have identified.
func cropViewer(c *gin.Context) services.CropViewer {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return services.CropViewer{}
	}
	role, _ := utils.GetUserRoleFromContext(c)
	return services.CropViewer{UserID: &userID, IsAdmin: role == string(models.RoleAdmin)}
}

// GET /farmer/crops
func (h *CropHandler) ListMyCrops(c *gin.Context) {
	farmerID, _ := utils.GetUserIDFromContext(c)
	params := utils.GetPaginationParams(c)

	crops, total, err := h.cropService.ListFarmerCrops(c.Request.Context(), farmerID, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(crops, total, params))
}

// POST /crops
func (h *CropHandler) CreateCrop(c *gin.Context) {
	farmerID, _ := utils.GetUserIDFromContext(c)

	var req services.CreateCropRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	crop, err := h.cropService.CreateCrop(c.Request.Context(), farmerID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, "Crop listed", crop)
}

// PUT /crops/:id
func (h *CropHandler) UpdateCrop(c *gin.Context) {
	farmerID, _ := utils.GetUserIDFromContext(c)
	cropID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateCropRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	crop, err := h.cropService.UpdateCrop(c.Request.Context(), cropID, farmerID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Crop updated", crop)
}

// DELETE /crops/:id
func (h *CropHandler) DeleteCrop(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)
	role, _ := utils.GetUserRoleFromContext(c)
	cropID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.cropService.DeleteCrop(c.Request.Context(), cropID, userID, role == string(models.RoleAdmin)); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Crop deleted", nil)
}

// POST /crops/:id/images
func (h *CropHandler) UploadImages(c *gin.Context) {
	farmerID, _ := utils.GetUserIDFromContext(c)
	cropID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		utils.BadRequestResponse(c, "expected multipart form data", err.Error())
		return
	}
	files := c.Request.MultipartForm.File["images"]
	if len(files) == 0 {
		utils.BadRequestResponse(c, "no images uploaded", nil)
		return
	}

	// Ownership is checked before anything is stored.
	if err := h.cropService.EnsureOwner(c.Request.Context(), cropID, farmerID); err != nil {
		utils.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	uploaded := make([]*services.UploadResult, 0, len(files))
	for _, header := range files {
		result, err := h.storageService.UploadImage(ctx, header, "crops/"+cropID.String())
		if err != nil {
			h.discardUploads(ctx, uploaded)
			utils.HandleError(c, err)
			return
		}
		uploaded = append(uploaded, result)
	}

	urls := make([]string, 0, len(uploaded))
	for _, result := range uploaded {
		urls = append(urls, result.URL)
	}

	crop, err := h.cropService.AddImages(ctx, cropID, farmerID, urls)
	if err != nil {
		h.discardUploads(ctx, uploaded)
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Images uploaded", crop)
}

// discardUploads removes files stored for a request that did not complete.
func (h *CropHandler) discardUploads(ctx context.Context, uploaded []*services.UploadResult) {
	for _, result := range uploaded {
		if err := h.storageService.DeleteFile(ctx, result.Key); err != nil {
			logrus.WithError(err).WithField("key", result.Key).Warn("Failed to remove orphaned upload")
		}
	}
}
