package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/api/middleware"
	"github.com/nuevpro/ventas/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func errorBody(err error) *APIError {
	var ae *utils.AppError
	if errors.As(err, &ae) {
		return &APIError{Code: ae.Code, Message: ae.Message}
	}
	return &APIError{Code: utils.CodeInternal, Message: http.StatusText(utils.HTTPStatus(err))}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(utils.HTTPStatus(err), errorBody(err))
}

func requireUserID(c *gin.Context) (string, bool) {
	if s := c.GetString(middleware.CtxUserID); s != "" {
		return s, true
	}
	writeError(c, utils.Unauthenticated("Auth"))
	return "", false
}

// bindJSON decodes the body into dst; an empty body leaves dst untouched when
// optional is set.
func bindJSON(c *gin.Context, op string, dst any, optional bool) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
	return false
}
