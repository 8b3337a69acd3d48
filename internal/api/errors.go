package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type errorCode string

const (
	errCodeBadRequest errorCode = "bad_request"
	errCodeNotFound   errorCode = "not_found"
	errCodeInternal   errorCode = "internal_error"
)

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

func respondWithError(c *gin.Context, status int, code errorCode, message string) {
	c.JSON(status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

func respondBadRequest(c *gin.Context, message string) {
	respondWithError(c, http.StatusBadRequest, errCodeBadRequest, message)
}

func respondNotFound(c *gin.Context, message string) {
	respondWithError(c, http.StatusNotFound, errCodeNotFound, message)
}
