package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest(fmt.Sprintf("decode request: %v", err))
	}
	return out, nil
}

func newForwardID() string {
	return "lin_" + uuid.NewString()
}

// validate requires operand lengths to match the shape exactly.
func (r *ForwardRequest) validate() error {
	if err := r.Shape.Validate(); err != nil {
		return newInvalidParam("shape", err.Error())
	}
	checks := []struct {
		param string
		got   int
		want  int
	}{
		{"input", len(r.Input), r.Shape.InputLen()},
		{"weight", len(r.Weight), r.Shape.WeightLen()},
	}
	if r.Bias != nil {
		checks = append(checks, struct {
			param string
			got   int
			want  int
		}{"bias", len(r.Bias), r.Shape.BiasLen()})
	}
	for _, c := range checks {
		if c.got != c.want {
			return newInvalidParam(c.param, fmt.Sprintf("%s: got %d elements, want %d for %s", c.param, c.got, c.want, r.Shape))
		}
	}
	return nil
}
