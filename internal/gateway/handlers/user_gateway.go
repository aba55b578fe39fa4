package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/gateway/middleware"
	users "warehouse-system/internal/services/user/handler"
)

type UserHTTPHandler struct {
	users  *users.UserHandler
	logger *zap.Logger
}

func NewUserHTTPHandler(svc *users.UserHandler, logger *zap.Logger) *UserHTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHTTPHandler{
		users:  svc,
		logger: logger,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	RoleID    int32  `json:"role_id"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

type WarehouseAssignmentRequest struct {
	UserID      int32 `json:"user_id" binding:"required"`
	WarehouseID int32 `json:"warehouse_id" binding:"required"`
}

type SendVerificationCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

func (h *UserHTTPHandler) userID(c *gin.Context) (int32, bool) {
	id, err := parseIntParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return 0, false
	}
	return id, true
}

// selfOrAdmin lets a user act on their own account and admins act on any.
func selfOrAdmin(c *gin.Context, id int32) bool {
	claims, ok := middleware.Claims(c)
	if ok && (claims.UserId == id || claims.Role == string(models.RoleAdmin)) {
		return true
	}
	c.JSON(http.StatusForbidden, errorResponse("Insufficient permissions"))
	return false
}

// --- Authentication ---

func (h *UserHTTPHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Login successful", map[string]interface{}{
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"user":       result.User,
	}))
}

func (h *UserHTTPHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.Register(ctx, users.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.RoleID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("User registered successfully", user))
}

func (h *UserHTTPHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.users.ResetPassword(ctx, users.ResetPasswordInput{
		Email:    req.Email,
		Token:    req.Token,
		Password: req.Password,
	}); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Password reset successfully", nil))
}

func (h *UserHTTPHandler) SendVerificationCode(c *gin.Context) {
	var req SendVerificationCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.users.SendVerificationCode(ctx, req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Verification code sent", nil))
}

func (h *UserHTTPHandler) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.users.VerifyEmail(ctx, req.Email, req.Code); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Email verified successfully", nil))
}

// --- User Management ---

func (h *UserHTTPHandler) GetUser(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.GetUser(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("User retrieved successfully", user))
}

func (h *UserHTTPHandler) ListUsers(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.users.ListUsers(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Users retrieved successfully", list, ListMeta{Total: len(list)}))
}

func (h *UserHTTPHandler) UpdateProfile(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok || !selfOrAdmin(c, id) {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.UpdateProfile(ctx, id, users.ProfilePatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Profile updated successfully", user))
}

func (h *UserHTTPHandler) DeleteUser(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.users.DeleteUser(ctx, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("User deleted successfully", nil))
}

// GeneratePasswordResetToken emails a reset token to the user. The token is
// never returned in the response.
func (h *UserHTTPHandler) GeneratePasswordResetToken(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok || !selfOrAdmin(c, id) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.users.GeneratePasswordResetToken(ctx, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Password reset token sent", nil))
}

// UpdatePassword changes the password of the authenticated user.
func (h *UserHTTPHandler) UpdatePassword(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication required"))
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.users.UpdatePassword(ctx, claims.Email, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Password updated successfully", nil))
}

func (h *UserHTTPHandler) AssignWarehouse(c *gin.Context) {
	var req WarehouseAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.users.AssignWarehouse(ctx, req.UserID, req.WarehouseID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Warehouse assigned successfully", nil))
}

func (h *UserHTTPHandler) RemoveWarehouse(c *gin.Context) {
	var req WarehouseAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.users.RemoveWarehouse(ctx, req.UserID, req.WarehouseID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Warehouse removed successfully", nil))
}
