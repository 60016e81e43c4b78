package circuit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/edp1096/mcspice/internal/consts"
	"github.com/edp1096/mcspice/pkg/device"
	"github.com/edp1096/mcspice/pkg/matrix"
	"github.com/edp1096/mcspice/pkg/netlist"
)

type Circuit struct {
	name      string
	nodeMap   map[string]int
	branchMap map[string]int
	devices   []device.Device
	numNodes  int
	matrix    *matrix.CircuitMatrix
	temp      float64 // Kelvin
}

func New(name string) *Circuit {
	return &Circuit{
		name:      name,
		nodeMap:   make(map[string]int),
		branchMap: make(map[string]int),
		devices:   make([]device.Device, 0),
		temp:      consts.TNOM + consts.KELVIN,
	}
}

// SetTemperature sets the circuit temperature in Celsius.
func (c *Circuit) SetTemperature(celsius float64) {
	c.temp = celsius + consts.KELVIN
}

func (c *Circuit) Temperature() float64 { return c.temp }

func isGround(node string) bool {
	return node == "0" || strings.EqualFold(node, "gnd")
}

// AssignNodeBranchMaps numbers nodes in order of appearance, then gives every
// voltage source and inductor a branch row.
func (c *Circuit) AssignNodeBranchMaps(elements []netlist.Element) error {
	for _, elem := range elements {
		for _, nodeName := range elem.Nodes {
			if isGround(nodeName) {
				continue
			}
			if _, exists := c.nodeMap[nodeName]; !exists {
				c.nodeMap[nodeName] = len(c.nodeMap) + 1
			}
		}
	}

	branchStart := len(c.nodeMap) + 1
	for _, elem := range elements {
		if elem.Type == "V" || elem.Type == "L" {
			if _, dup := c.branchMap[elem.Name]; dup {
				return fmt.Errorf("duplicate element name %s", elem.Name)
			}
			c.branchMap[elem.Name] = branchStart
			branchStart++
		}
	}

	c.numNodes = len(c.nodeMap)
	if c.numNodes == 0 {
		return fmt.Errorf("circuit %q has no non-ground nodes", c.name)
	}
	return nil
}

func (c *Circuit) CreateMatrix() error {
	matrixSize := len(c.nodeMap) + len(c.branchMap)
	m, err := matrix.NewMatrix(matrixSize, len(c.nodeMap))
	if err != nil {
		return err
	}
	c.matrix = m
	return nil
}

func (c *Circuit) SetupDevices(elements []netlist.Element) error {
	for _, elem := range elements {
		dev, err := CreateDevice(elem)
		if err != nil {
			return fmt.Errorf("creating device %s: %w", elem.Name, err)
		}

		// Node index
		nodeIndices := make([]int, len(elem.Nodes))
		for i, nodeName := range elem.Nodes {
			if isGround(nodeName) {
				nodeIndices[i] = 0
				continue
			}
			nodeIndices[i] = c.nodeMap[nodeName]
		}
		dev.SetNodes(nodeIndices)

		if b, ok := dev.(device.BranchDevice); ok {
			b.SetBranchIndex(c.branchMap[elem.Name])
		}

		c.devices = append(c.devices, dev)
	}

	// Initial stamp
	if err := c.Stamp(&device.CircuitStatus{Mode: device.OperatingPointAnalysis, Temp: c.temp}); err != nil {
		return fmt.Errorf("initial stamping failed: %w", err)
	}
	c.matrix.SetupElements()

	return nil
}

func (c *Circuit) Stamp(status *device.CircuitStatus) error {
	for _, dev := range c.devices {
		if err := dev.Stamp(c.matrix, status); err != nil {
			return fmt.Errorf("stamping device %s: %w", dev.GetName(), err)
		}
	}
	return nil
}

// Solve assembles and solves the system for one time point. The circuit
// temperature overrides status.Temp.
func (c *Circuit) Solve(status *device.CircuitStatus) error {
	status.Temp = c.temp
	if status.Gmin == 0 {
		status.Gmin = consts.GMIN
	}

	c.matrix.Clear()
	if err := c.Stamp(status); err != nil {
		return err
	}
	c.matrix.LoadGmin(status.Gmin)

	return c.matrix.Solve()
}

// Accept commits the last solution into device history.
func (c *Circuit) Accept(status *device.CircuitStatus) {
	solution := c.matrix.Solution()
	for _, dev := range c.devices {
		if td, ok := dev.(device.TimeDependent); ok {
			td.UpdateState(solution, status)
		}
	}
}

// ApplyInitialConditions seeds reactive devices from their IC= values.
func (c *Circuit) ApplyInitialConditions() {
	for _, dev := range c.devices {
		if td, ok := dev.(device.TimeDependent); ok {
			td.SetInitialCondition()
		}
	}
}

func (c *Circuit) GetNodeMap() map[string]int {
	return c.nodeMap
}

func (c *Circuit) GetBranchMap() map[string]int {
	return c.branchMap
}

func (c *Circuit) GetDevices() []device.Device {
	return c.devices
}

// OutputNames lists every key GetSolution produces, sorted.
func (c *Circuit) OutputNames() []string {
	names := make([]string, 0, len(c.nodeMap)+len(c.devices))
	for name := range c.GetSolution() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSolution returns V(node) for every node, I(name) for every branch device
// and I(R) for every resistor.
func (c *Circuit) GetSolution() map[string]float64 {
	solution := make(map[string]float64)
	matrixSolution := c.matrix.Solution()

	// Node voltage
	for name, idx := range c.nodeMap {
		solution[fmt.Sprintf("V(%s)", name)] = matrixSolution[idx]
	}

	// Branch current, positive into the first node
	for name, idx := range c.branchMap {
		solution[fmt.Sprintf("I(%s)", name)] = matrixSolution[idx]
	}

	// V = IR -> I = V/R
	for _, dev := range c.devices {
		if r, ok := dev.(*device.Resistor); ok {
			solution[fmt.Sprintf("I(%s)", r.GetName())] = r.Current(matrixSolution, c.temp)
		}
	}

	return solution
}

func (c *Circuit) Destroy() {
	if c.matrix != nil {
		c.matrix.Destroy()
	}
}

func (c *Circuit) Name() string {
	return c.name
}

func (c *Circuit) GetNumNodes() int {
	return c.numNodes
}
