package graph

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type compiledInput struct {
	src int // index into Program.nodes, -1 for a literal
	lit mgl32.Vec4
}

type compiledNode struct {
	id     NodeID
	kind   Kind
	inputs []compiledInput
	noise  NoiseSettings
}

// Program is an immutable compiled prototype. It holds only the nodes the
// output depends on, in dependency order, and is safe to share between
// goroutines.
type Program struct {
	id     uuid.UUID
	name   string
	nodes  []compiledNode
	output int
	noise  []int
}

func (p *Program) ID() uuid.UUID { return p.id }

func (p *Program) Name() string { return p.name }

// Len is the number of nodes evaluated per cell.
func (p *Program) Len() int { return len(p.nodes) }

// Compile validates the prototype and freezes it into a Program. Links are
// checked again, cycles are rejected and unreachable nodes are dropped.
func (p *Prototype) Compile() (*Program, error) {
	if p.output == NoNode {
		return nil, ErrNoOutput
	}

	count := len(p.nodes)
	indegree := make([]int, count)
	consumers := make([][]NodeID, count)
	for i, n := range p.nodes {
		id := NodeID(i)
		info := kindTable[n.kind]
		if len(n.inputs) != len(info.inputs) {
			return nil, nodeErr(id, n.kind, ErrSlotOutOfRange)
		}
		if n.kind.IsNoise() {
			if err := n.noise.validate(); err != nil {
				return nil, nodeErr(id, n.kind, err)
			}
		}
		for slot, in := range n.inputs {
			if !in.Linked() {
				continue
			}
			if in.Source < 0 || int(in.Source) >= count {
				return nil, nodeErr(id, n.kind, fmt.Errorf("%w: slot %q links %d", ErrUnknownNode, info.inputs[slot].Name, in.Source))
			}
			if in.Source == id {
				return nil, nodeErr(id, n.kind, ErrSelfLink)
			}
			src := p.nodes[in.Source].kind
			if src == KindOutput || !src.Output().AssignableTo(info.inputs[slot].Type) {
				return nil, nodeErr(id, n.kind, fmt.Errorf("%w: slot %q", ErrTypeMismatch, info.inputs[slot].Name))
			}
			indegree[id]++
			consumers[in.Source] = append(consumers[in.Source], id)
		}
	}

	// Kahn: nodes whose producers are all placed become ready.
	order := make([]NodeID, 0, count)
	ready := make([]NodeID, 0, count)
	for i := 0; i < count; i++ {
		if indegree[i] == 0 {
			ready = append(ready, NodeID(i))
		}
	}
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, c := range consumers[id] {
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(order) != count {
		for i := 0; i < count; i++ {
			if indegree[i] > 0 {
				return nil, nodeErr(NodeID(i), p.nodes[i].kind, ErrCycle)
			}
		}
		return nil, ErrCycle
	}

	reachable := make([]bool, count)
	stack := []NodeID{p.output}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		for _, in := range p.nodes[id].inputs {
			if in.Linked() && !reachable[in.Source] {
				stack = append(stack, in.Source)
			}
		}
	}

	prog := &Program{id: p.ID, name: p.Name}
	index := make([]int, count)
	for _, id := range order {
		if !reachable[id] {
			continue
		}
		n := p.nodes[id]
		cn := compiledNode{id: id, kind: n.kind, noise: n.noise, inputs: make([]compiledInput, len(n.inputs))}
		for slot, in := range n.inputs {
			if in.Linked() {
				cn.inputs[slot] = compiledInput{src: index[in.Source]}
			} else {
				cn.inputs[slot] = compiledInput{src: -1, lit: in.Literal.V}
			}
		}
		index[id] = len(prog.nodes)
		if n.kind.IsNoise() {
			prog.noise = append(prog.noise, len(prog.nodes))
		}
		if id == p.output {
			prog.output = len(prog.nodes)
		}
		prog.nodes = append(prog.nodes, cn)
	}
	return prog, nil
}
