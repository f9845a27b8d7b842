package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/apperr"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError переводит доменную ошибку в HTTP-ответ. Внутренние детали наружу не отдаются.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || statusOf(appErr.Kind) == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal Server Error",
			Details: "An unexpected error occurred. Please try again later.",
		})
		return
	}

	logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(statusOf(appErr.Kind), ErrorResponse{
		Message: string(appErr.Kind),
		Details: err.Error(),
		Reason:  string(appErr.Reason),
	})
}

// badRequest: запрос не разобрался (JSON, uuid, формат даты).
func badRequest(c *gin.Context, details string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Message: "bad request",
		Details: details,
	})
}
