package step

import (
	"fmt"
	"math"
	"sort"
)

// Operation reduces the input values of a step to its result. Values are
// passed in the step's input order.
type Operation func(values []int64) (int64, error)

// Registry maps function names to operations.
type Registry map[string]Operation

// DefaultRegistry returns the built-in operations.
func DefaultRegistry() Registry {
	return Registry{
		"add":      Add,
		"multiply": Multiply,
	}
}

// Lookup returns the named operation.
func (r Registry) Lookup(name string) (Operation, error) {
	op, ok := r[name]
	if !ok {
		return nil, unknownOperation(name)
	}
	return op, nil
}

// Names lists the registered operations, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Add sums all values. A sum outside the int64 range fails with
// ErrOverflow.
func Add(values []int64) (int64, error) {
	var sum int64
	for _, v := range values {
		next := sum + v
		if (v > 0 && next < sum) || (v < 0 && next > sum) {
			return 0, fmt.Errorf("add: %w", ErrOverflow)
		}
		sum = next
	}
	return sum, nil
}

// Multiply returns the product of all values. A product outside the int64
// range fails with ErrOverflow.
func Multiply(values []int64) (int64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("multiply: no inputs")
	}
	prod := int64(1)
	for _, v := range values {
		if prod == 0 || v == 0 {
			prod = 0
			continue
		}
		next := prod * v
		if next/v != prod || (prod == -1 && v == math.MinInt64) || (v == -1 && prod == math.MinInt64) {
			return 0, fmt.Errorf("multiply: %w", ErrOverflow)
		}
		prod = next
	}
	return prod, nil
}
