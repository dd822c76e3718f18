package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"finrag/internal/app"
	"finrag/internal/retrieval"
	"finrag/internal/transport/http/response"
)

// retryAfterSeconds is sent with 503s so clients back off before retrying.
const retryAfterSeconds = "1"

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, retrieval.ErrInvalidArgument):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidQuery, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredential):
		response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
	case errors.Is(err, app.ErrAuthDisabled):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrFilingNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	case errors.Is(err, app.ErrJobNotFound):
		response.Error(c, http.StatusNotFound, response.CodeJobNotFound, err.Error())
	case errors.Is(err, retrieval.ErrUnavailable), errors.Is(err, app.ErrJobEnqueue):
		c.Header("Retry-After", retryAfterSeconds)
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "service temporarily unavailable")
	case errors.Is(err, app.ErrEmbeddingFailed):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, "embedding provider failed")
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
