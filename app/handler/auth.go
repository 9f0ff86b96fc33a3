package handler

import (
	"net/http"
	"time"

	"reelforge/app/auth"
	"reelforge/app/config"
	"reelforge/app/database"
	"reelforge/app/model"
	"reelforge/app/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication.
type AuthHandler struct {
	config     *config.Config
	jwtService *auth.JWTService
}

// NewAuthHandler creates the authentication handler.
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		config:     cfg,
		jwtService: auth.NewJWTService(cfg),
	}
}

// LoginRequest is the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the login response body.
type LoginResponse struct {
	Token    string      `json:"token"`
	User     *model.User `json:"user"`
	ExpireAt int64       `json:"expire_at"`
}

// RegisterRequest is the registration request body.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"required,email"`
}

// Login authenticates a user.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	// Look up the user
	var user model.User
	db := database.GetDB()
	result := db.Where("username = ?", req.Username).First(&user)
	if result.Error != nil {
		fail(c, http.StatusUnauthorized, 401, "wrong username or password")
		return
	}

	// Verify the password
	if !utils.VerifyPassword(req.Password, user.Password) {
		fail(c, http.StatusUnauthorized, 401, "wrong username or password")
		return
	}

	// The account must be active
	if !user.IsActive {
		fail(c, http.StatusForbidden, 403, "account is disabled")
		return
	}

	// Issue the JWT
	token, err := h.jwtService.GenerateToken(user.ID, user.Username)
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "failed to issue token")
		return
	}

	// Record the login time
	now := time.Now()
	user.LastLogin = &now
	db.Save(&user)

	expireAt := time.Now().Add(time.Duration(h.config.JWT.ExpireTime) * time.Hour).Unix()

	success(c, LoginResponse{
		Token:    token,
		User:     &user,
		ExpireAt: expireAt,
	}, "logged in")
}

// Register creates a new account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	db := database.GetDB()

	// The username must be free
	var existing model.User
	if db.Where("username = ?", req.Username).First(&existing).Error == nil {
		fail(c, http.StatusConflict, 409, "username is already taken")
		return
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "failed to hash password")
		return
	}

	user := model.User{
		Username: req.Username,
		Password: hashedPassword,
		Email:    req.Email,
		IsActive: true,
	}
	if err := db.Create(&user).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "failed to create account")
		return
	}

	success(c, &user, "account created")
}

// RefreshToken reissues a token close to expiry.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "invalid request: "+err.Error())
		return
	}

	token, err := h.jwtService.RefreshToken(req.Token)
	if err != nil {
		fail(c, http.StatusUnauthorized, 401, "failed to refresh token: "+err.Error())
		return
	}

	success(c, gin.H{"token": token}, "token refreshed")
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetUint("user_id")

	var user model.User
	if err := database.GetDB().First(&user, userID).Error; err != nil {
		fail(c, http.StatusNotFound, 404, "user not found")
		return
	}

	success(c, &user, "ok")
}
