package api

import (
	"github.com/samcharles93/matfwd/internal/linear"
	"github.com/samcharles93/matfwd/internal/tensor"
)

type ForwardRequest struct {
	Shape  tensor.Shape `json:"shape"`
	Input  []float32    `json:"input"`
	Weight []float32    `json:"weight"`
	Bias   []float32    `json:"bias,omitempty"`
	Mode   string       `json:"mode,omitempty"`
}

type ForwardResponse struct {
	ID         string       `json:"id"`
	Object     string       `json:"object"`
	CreatedAt  int64        `json:"created_at"`
	Mode       linear.Mode  `json:"mode"`
	Backend    string       `json:"backend"`
	Shape      tensor.Shape `json:"shape"`
	Output     []float32    `json:"output"`
	DurationMS float64      `json:"duration_ms"`
}

type BackendInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Active    bool   `json:"active"`
}

type BackendsResponse struct {
	Object string        `json:"object"`
	Active string        `json:"active"`
	Mode   linear.Mode   `json:"mode"`
	Data   []BackendInfo `json:"data"`
	Stats  linear.Stats  `json:"stats"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type DeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}
