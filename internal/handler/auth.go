package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalmarket/internal/auth"
	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

type AuthHandler struct {
	Repo   repository.Repository
	JWT    auth.JWT
	Logger *zap.Logger
}

func (h *AuthHandler) Register(r *gin.Engine) {
	group := r.Group("/api/auth")
	group.POST("/register", h.register)
	group.POST("/login", h.login)
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

func (h *AuthHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != models.RoleSeller {
		role = models.RoleBuyer
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	existing, err := h.Repo.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	if existing != nil {
		Error(c, http.StatusConflict, "email already registered", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
	}
	if err := h.Repo.InsertUser(c.Request.Context(), user); err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}

	token, expiresAt, err := h.JWT.Sign(user.ID, user.Role)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	Ok(c, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      gin.H{"id": user.ID, "email": user.Email, "role": user.Role},
	}, nil)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	user, err := h.Repo.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		Error(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	token, expiresAt, err := h.JWT.Sign(user.ID, user.Role)
	if err != nil {
		Error(c, http.StatusInternalServerError, "server error", nil)
		return
	}
	Ok(c, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      gin.H{"id": user.ID, "email": user.Email, "role": user.Role},
	}, nil)
}
