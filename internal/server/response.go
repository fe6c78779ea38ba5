// internal/server/response.go
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mcp-meal-snap/internal/service"
)

// ApiResponse is the envelope every JSON endpoint answers with.
type ApiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *ApiError `json:"error,omitempty"`
}

type ApiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, ApiResponse{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	status, apiErr := describe(err)
	c.AbortWithStatusJSON(status, ApiResponse{Error: apiErr})
}

// describe maps a service error to an HTTP status and a client-safe error.
func describe(err error) (int, *ApiError) {
	code := service.Code(err)
	switch {
	case service.IsValidation(err):
		return http.StatusBadRequest, &ApiError{Code: code, Message: message(err)}
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, &ApiError{Code: code, Message: "authentication required"}
	case errors.Is(err, service.ErrAnalysisFailed):
		return http.StatusBadGateway, &ApiError{Code: code, Message: "image analysis is unavailable, please try again"}
	case errors.Is(err, service.ErrStorage):
		return http.StatusInternalServerError, &ApiError{Code: code, Message: "failed to access meal records"}
	default:
		return http.StatusInternalServerError, &ApiError{Code: code, Message: "internal server error"}
	}
}

// message drops the operation prefix from validation errors.
func message(err error) string {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return svcErr.Err.Error()
	}
	return err.Error()
}
