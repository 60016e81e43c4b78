package matrix

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// CircuitMatrix is the MNA system: node rows 1..Nodes, then branch rows.
// Vectors are 1-based; index 0 is ground.
type CircuitMatrix struct {
	Size     int
	Nodes    int
	matrix   *sparse.Matrix
	rhs      []float64
	solution []float64
	err      error
}

func NewMatrix(size, nodes int) (*CircuitMatrix, error) {
	config := &sparse.Configuration{
		Real:           true,
		Expandable:     true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
		PrinterWidth:   140,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %w", err)
	}

	return &CircuitMatrix{
		Size:     size,
		Nodes:    nodes,
		matrix:   mat,
		rhs:      make([]float64, size+1),
		solution: make([]float64, size+1),
	}, nil
}

// SetupElements allocates every element once so the structure does not change
// between factorizations.
func (m *CircuitMatrix) SetupElements() {
	for i := 1; i <= m.Size; i++ {
		for j := 1; j <= m.Size; j++ {
			m.matrix.GetElement(int64(i), int64(j))
		}
	}
}

func (m *CircuitMatrix) AddElement(i, j int, value float64) {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		m.fail(fmt.Errorf("matrix index out of bounds (i=%d, j=%d, size=%d)", i, j, m.Size))
		return
	}
	m.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (m *CircuitMatrix) AddRHS(i int, value float64) {
	if i <= 0 || i > m.Size {
		m.fail(fmt.Errorf("rhs index out of bounds (i=%d, size=%d)", i, m.Size))
		return
	}
	m.rhs[i] += value
}

// LoadGmin adds gmin to node diagonals only; branch rows carry exact constraints.
func (m *CircuitMatrix) LoadGmin(gmin float64) {
	for i := 1; i <= m.Nodes; i++ {
		if diag := m.matrix.Diags[i]; diag != nil {
			diag.Real += gmin
		}
	}
}

func (m *CircuitMatrix) Clear() {
	m.matrix.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
	m.err = nil
}

func (m *CircuitMatrix) Solve() error {
	if m.err != nil {
		return m.err
	}

	if err := m.matrix.Factor(); err != nil {
		return fmt.Errorf("matrix factorization failed: %w", err)
	}

	solution, err := m.matrix.Solve(m.rhs)
	if err != nil {
		return fmt.Errorf("matrix solve failed: %w", err)
	}
	m.solution = solution
	return nil
}

func (m *CircuitMatrix) RHS() []float64 {
	return m.rhs
}

func (m *CircuitMatrix) Solution() []float64 {
	return m.solution
}

func (m *CircuitMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}

func (m *CircuitMatrix) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}
