package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"promptswap/internal/rebalance"
	"promptswap/internal/review"
	"promptswap/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps a domain error to its HTTP status and writes it.
func Fail(c *gin.Context, err error) {
	var (
		policy  *rebalance.PolicyError
		xerr    *rebalance.ExchangeError
		invalid *service.InvalidAgentError
	)
	switch {
	case errors.Is(err, review.ErrAgentNotFound),
		errors.Is(err, service.ErrAgentNotFound),
		errors.Is(err, service.ErrReviewResultNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, review.ErrAlreadyReviewing),
		errors.Is(err, rebalance.ErrDuplicateOrder):
		Error(c, http.StatusConflict, err.Error(), nil)
	case errors.As(err, &policy), errors.As(err, &invalid):
		Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.As(err, &xerr):
		Error(c, http.StatusBadGateway, xerr.Message, nil)
	default:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
