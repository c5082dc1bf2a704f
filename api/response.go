package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Resp is the envelope of every JSON reply: code 0 on success, -1 on error.
type Resp[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func JSON[T any](c *gin.Context, httpStatus int, code int, message string, data T) {
	c.AbortWithStatusJSON(httpStatus, Resp[T]{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func Success[T any](c *gin.Context, data T) {
	JSON(c, http.StatusOK, 0, "ok", data)
}

func Error(c *gin.Context, httpStatus int, message string) {
	JSON(c, httpStatus, -1, message, struct{}{})
}
