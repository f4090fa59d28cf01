// Package handlers implements the HTTP endpoints of the catalog API.
package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cloudvista/geocatalog/pkg/errors"
)

// errorResponse is the wire shape of every error the API returns.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// respondError maps a typed error to its HTTP status and JSON body. Untyped
// errors are masked as internal errors so internals never leak to clients.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	resp := errorResponse{
		Code:    code.String(),
		Message: errors.DefaultMessageForCode(code),
	}
	if appErr, ok := err.(*errors.AppError); ok {
		resp.Message = appErr.Message
		resp.Detail = appErr.Detail
	}
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(code), resp)
}

// csvParam splits a comma-separated query parameter, dropping empty entries.
func csvParam(c *gin.Context, name string) []string {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// intParam parses an integer query parameter, returning def when absent.
func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeValidation, "%s must be an integer, got %q", name, raw)
	}
	return v, nil
}

// optionalIntParam parses an integer query parameter, returning nil when
// absent so zero stays distinguishable from "not given".
func optionalIntParam(c *gin.Context, name string) (*int, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.Newf(errors.ErrCodeValidation, "%s must be an integer, got %q", name, raw)
	}
	return &v, nil
}
