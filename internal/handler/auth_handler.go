package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/response"
	"github.com/campustest/testgate/internal/service"
	"github.com/campustest/testgate/internal/validator"
)

// AuthHandler issues gateway session tokens.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// ExchangeToken godoc
// POST /api/v1/auth/session
// Trades a test service credential for a short-lived gateway JWT. The
// upstream credential is embedded in the gateway token so every session
// call can reach the test service without re-sending it.
func (h *AuthHandler) ExchangeToken(c *gin.Context) {
	var req model.ExchangeTokenRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, err := h.authService.GenerateToken(req.StudentID, req.TestServiceToken)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token})
}
