// Package linmodel is a small gradient-descent trainer for linear, logistic
// and softmax models. It is the built-in training function of the CLI and
// gives scans a real artifact to select, evaluate and deploy.
package linmodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hyperscan/internal/scan"
)

// Kind selects the output activation and loss.
type Kind string

const (
	Linear   Kind = "linear"   // identity, mean squared error
	Logistic Kind = "logistic" // sigmoid per output, binary cross-entropy
	Softmax  Kind = "softmax"  // softmax over outputs, cross-entropy
)

// ErrShape reports inputs whose dimensions do not match the model.
var ErrShape = errors.New("shape mismatch")

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Linear, Logistic, Softmax:
		return k, nil
	}
	return "", fmt.Errorf("unknown model kind %q", s)
}

// Model is a trained single-layer model: act(x·W + b).
type Model struct {
	Kind Kind
	W    *mat.Dense // inputs x outputs
	B    *mat.Dense // 1 x outputs
}

// New returns a zero-initialized model.
func New(kind Kind, inputs, outputs int) *Model {
	return &Model{
		Kind: kind,
		W:    mat.NewDense(inputs, outputs, nil),
		B:    mat.NewDense(1, outputs, nil),
	}
}

// Dims returns the number of inputs and outputs.
func (m *Model) Dims() (inputs, outputs int) { return m.W.Dims() }

// Predict returns act(x·W + b), one row per input row.
func (m *Model) Predict(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	in, out := m.Dims()
	if c != in {
		return nil, fmt.Errorf("%w: x has %d columns, model takes %d", ErrShape, c, in)
	}
	z := mat.NewDense(r, out, nil)
	z.Mul(x, m.W)
	bias := m.B.RawRowView(0)
	z.Apply(func(_, j int, v float64) float64 { return v + bias[j] }, z)
	activate(m.Kind, z)
	return z, nil
}

func activate(kind Kind, z *mat.Dense) {
	switch kind {
	case Logistic:
		z.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, z)
	case Softmax:
		r, _ := z.Dims()
		for i := 0; i < r; i++ {
			row := z.RawRowView(i)
			peak := math.Inf(-1)
			for _, v := range row {
				peak = math.Max(peak, v)
			}
			var sum float64
			for j, v := range row {
				row[j] = math.Exp(v - peak)
				sum += row[j]
			}
			for j := range row {
				row[j] /= sum
			}
		}
	}
}

type description struct {
	Kind    Kind `json:"kind"`
	Inputs  int  `json:"inputs"`
	Outputs int  `json:"outputs"`
}

// MarshalModel describes the architecture as JSON.
func (m *Model) MarshalModel() ([]byte, error) {
	in, out := m.Dims()
	return json.Marshal(description{Kind: m.Kind, Inputs: in, Outputs: out})
}

// MarshalWeights writes W then b in gonum's binary matrix format.
func (m *Model) MarshalWeights() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.W.MarshalBinaryTo(&buf); err != nil {
		return nil, fmt.Errorf("marshal weights: %w", err)
	}
	if _, err := m.B.MarshalBinaryTo(&buf); err != nil {
		return nil, fmt.Errorf("marshal bias: %w", err)
	}
	return buf.Bytes(), nil
}

// Load rebuilds a model from MarshalModel and MarshalWeights output.
func Load(model, weights []byte) (*Model, error) {
	var d description
	if err := json.Unmarshal(model, &d); err != nil {
		return nil, fmt.Errorf("decode model description: %w", err)
	}
	if _, err := ParseKind(string(d.Kind)); err != nil {
		return nil, err
	}
	r := bytes.NewReader(weights)
	var w, b mat.Dense
	if _, err := w.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	if _, err := b.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("decode bias: %w", err)
	}
	wr, wc := w.Dims()
	br, bc := b.Dims()
	if wr != d.Inputs || wc != d.Outputs || br != 1 || bc != d.Outputs {
		return nil, fmt.Errorf("%w: weights %dx%d and bias %dx%d for %d inputs, %d outputs", ErrShape, wr, wc, br, bc, d.Inputs, d.Outputs)
	}
	return &Model{Kind: d.Kind, W: &w, B: &b}, nil
}

// LoadArtifact is Load typed for restoring deploy packages.
func LoadArtifact(model, weights []byte) (scan.Artifact, error) {
	m, err := Load(model, weights)
	if err != nil {
		return nil, err
	}
	return m, nil
}
