package audionet

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/tensor"
)

// ParamStore holds named weight tensors in registration order. The order
// is the construction order of the network, which keeps checkpoints
// stable across runs.
type ParamStore struct {
	names  []string
	values map[string]*tensor.Dense
}

// NewParamStore creates an empty ParamStore.
func NewParamStore() *ParamStore {
	return &ParamStore{values: make(map[string]*tensor.Dense)}
}

// Register adds a named tensor. Registering the same name twice panics,
// that is a construction bug.
func (ps *ParamStore) Register(name string, t *tensor.Dense) {
	if _, exists := ps.values[name]; exists {
		panic(fmt.Sprintf("parameter registered twice: %s", name))
	}
	ps.names = append(ps.names, name)
	ps.values[name] = t
}

// Get returns the tensor registered under name.
func (ps *ParamStore) Get(name string) (*tensor.Dense, bool) {
	t, ok := ps.values[name]
	return t, ok
}

// Set replaces the tensor registered under name. The replacement must
// match the registered shape.
func (ps *ParamStore) Set(name string, t *tensor.Dense) error {
	current, ok := ps.values[name]
	if !ok {
		return fmt.Errorf("unknown parameter: %s", name)
	}
	if !current.Shape().Eq(t.Shape()) {
		return fmt.Errorf("shape mismatch for %s: have %v, want %v", name, t.Shape(), current.Shape())
	}
	ps.values[name] = t
	return nil
}

// Names returns the parameter names in registration order.
func (ps *ParamStore) Names() []string {
	out := make([]string, len(ps.names))
	copy(out, ps.names)
	return out
}

// Len returns the number of registered parameters.
func (ps *ParamStore) Len() int {
	return len(ps.names)
}

// ScalarCount returns the total number of weight scalars.
func (ps *ParamStore) ScalarCount() int {
	var total int
	for _, name := range ps.names {
		total += ps.values[name].Shape().TotalSize()
	}
	return total
}

// heNormal initializes a conv weight tensor with Kaiming-normal values,
// fan-in taken over all non-leading dimensions.
func heNormal(rng *rand.Rand, shape ...int) *tensor.Dense {
	fanIn := 1
	for _, d := range shape[1:] {
		fanIn *= d
	}
	std := math.Sqrt(2.0 / float64(fanIn))

	size := 1
	for _, d := range shape {
		size *= d
	}
	backing := make([]float32, size)
	for i := range backing {
		backing[i] = float32(rng.NormFloat64() * std)
	}
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(shape...), tensor.WithBacking(backing))
}

// glorotUniform initializes a linear weight tensor with Glorot-uniform
// values.
func glorotUniform(rng *rand.Rand, fanIn, fanOut int) *tensor.Dense {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	backing := make([]float32, fanIn*fanOut)
	for i := range backing {
		backing[i] = float32((rng.Float64()*2 - 1) * limit)
	}
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(fanIn, fanOut), tensor.WithBacking(backing))
}

// filled returns a 1D tensor of the given length filled with v.
func filled(n int, v float32) *tensor.Dense {
	backing := make([]float32, n)
	for i := range backing {
		backing[i] = v
	}
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(n), tensor.WithBacking(backing))
}

// zeros2D returns a zero tensor shaped (rows, cols).
func zeros2D(rows, cols int) *tensor.Dense {
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(rows, cols), tensor.WithBacking(make([]float32, rows*cols)))
}
