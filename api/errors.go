package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

var (
	ErrNotFound   = errors.New("download not found")
	ErrBadRequest = errors.New("bad request")
)

func statusOf(err error) int {
	switch errors.Cause(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	Error(c, statusOf(err), err.Error())
}
