// Package chart builds Vega-Lite specifications for the latest query result.
package chart

import (
	"errors"
	"slices"
	"strings"
)

// Messages returned to the model verbatim.
var (
	ErrInvalidMark = errors.New("Incorrect Mark Type Specified")
	ErrInvalidType = errors.New("Incorrect Type Parameter Specified")
)

const SchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

var (
	Marks = []string{"bar", "line", "point"}
	Types = []string{"quantitative", "temporal", "ordinal", "nominal"}
)

// Axis describes one positional channel.
type Axis struct {
	Field     string `json:"field,omitempty"`
	Type      string `json:"type,omitempty"`
	Aggregate string `json:"aggregate,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

func (a Axis) empty() bool {
	return a == Axis{}
}

type Request struct {
	MarkType     string
	X            Axis
	Y            Axis
	Color        map[string]any
	Size         map[string]any
	Column       map[string]any
	Row          map[string]any
	Theta        map[string]any
	GlobalFilter string
}

type Mark struct {
	Type string `json:"type"`
}

type Encoding struct {
	X      *Axis          `json:"x,omitempty"`
	Y      *Axis          `json:"y,omitempty"`
	Color  map[string]any `json:"color,omitempty"`
	Size   map[string]any `json:"size,omitempty"`
	Column map[string]any `json:"column,omitempty"`
	Row    map[string]any `json:"row,omitempty"`
	Theta  map[string]any `json:"theta,omitempty"`
}

type Transform struct {
	Filter string `json:"filter"`
}

type Spec struct {
	Mark      Mark        `json:"mark"`
	Encoding  Encoding    `json:"encoding"`
	Transform []Transform `json:"transform"`
}

// Build validates req and assembles the specification. The mark is checked
// before the axis types.
func Build(req Request) (*Spec, error) {
	if !slices.Contains(Marks, req.MarkType) {
		return nil, ErrInvalidMark
	}
	for _, a := range []Axis{req.X, req.Y} {
		if a.Type != "" && !slices.Contains(Types, a.Type) {
			return nil, ErrInvalidType
		}
	}

	spec := &Spec{
		Mark:      Mark{Type: req.MarkType},
		Transform: []Transform{},
		Encoding: Encoding{
			Color:  req.Color,
			Size:   req.Size,
			Column: req.Column,
			Row:    req.Row,
			Theta:  req.Theta,
		},
	}
	if !req.X.empty() {
		x := req.X
		spec.Encoding.X = &x
	}
	if !req.Y.empty() {
		y := req.Y
		spec.Encoding.Y = &y
	}
	if f := strings.TrimSpace(req.GlobalFilter); f != "" {
		spec.Transform = append(spec.Transform, Transform{Filter: f})
	}
	return spec, nil
}

// Fields lists the data fields the spec's positional channels reference.
func (s *Spec) Fields() []string {
	var out []string
	for _, a := range []*Axis{s.Encoding.X, s.Encoding.Y} {
		if a != nil && a.Field != "" && !slices.Contains(out, a.Field) {
			out = append(out, a.Field)
		}
	}
	return out
}
