// internal/handlers/user.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GET /users/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "", user)
}

// PUT /users/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)

	var req services.UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Profile updated", user)
}

// PUT /users/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)

	var req services.ChangePasswordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	if err := h.userService.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Password updated", nil)
}

// GET /farmers/:id
func (h *UserHandler) GetFarmer(c *gin.Context) {
	farmerID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	farmer, err := h.userService.GetFarmerPublicProfile(c.Request.Context(), farmerID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "", farmer)
}

// GET /users/wishlist
func (h *UserHandler) GetWishlist(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)

	crops, err := h.userService.GetWishlist(c.Request.Context(), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "", crops)
}

// POST /users/wishlist/:id
func (h *UserHandler) AddToWishlist(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)
	cropID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.userService.AddToWishlist(c.Request.Context(), userID, cropID); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Added to wishlist", nil)
}

// DELETE /users/wishlist/:id
func (h *UserHandler) RemoveFromWishlist(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)
	cropID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.userService.RemoveFromWishlist(c.Request.Context(), userID, cropID); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Removed from wishlist", nil)
}
