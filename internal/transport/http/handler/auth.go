package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finrag/internal/app"
	"finrag/internal/transport/http/response"
)

type TokenIssuer interface {
	IssueToken(input app.TokenInput) (*app.AuthResult, error)
}

type AuthHandler struct {
	issuer TokenIssuer
}

type TokenRequest struct {
	Subject  string `json:"subject" binding:"required,min=2,max=64"`
	AdminKey string `json:"admin_key" binding:"required,min=16,max=256"`
}

func NewAuthHandler(issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.issuer.IssueToken(app.TokenInput{
		Subject:  req.Subject,
		AdminKey: req.AdminKey,
	})
	if err != nil {
		writeError(c, err, "issue token failed")
		return
	}
	response.OK(c, result)
}
