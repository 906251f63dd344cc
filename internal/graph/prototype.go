package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeID is a dense handle into a prototype's node arena.
type NodeID int32

// NoNode marks an input that holds a literal rather than a link.
const NoNode NodeID = -1

// NoiseSettings parameterise a noise source node.
type NoiseSettings struct {
	Frequency   float64 `yaml:"frequency" json:"frequency"`
	Octaves     int     `yaml:"octaves" json:"octaves"`
	Persistence float64 `yaml:"persistence" json:"persistence"`
	Lacunarity  float64 `yaml:"lacunarity" json:"lacunarity"`
	SeedOffset  int64   `yaml:"seedOffset" json:"seedOffset"`
}

// DefaultNoiseSettings returns the settings a fresh noise node starts with.
func DefaultNoiseSettings() NoiseSettings {
	return NoiseSettings{Frequency: 1, Octaves: 4, Persistence: 0.5, Lacunarity: 2}
}

func (n NoiseSettings) validate() error {
	if n.Frequency <= 0 {
		return fmt.Errorf("%w: noise frequency must be positive", ErrMisconfigured)
	}
	if n.Octaves <= 0 || n.Octaves > 16 {
		return fmt.Errorf("%w: noise octaves must be in 1..16", ErrMisconfigured)
	}
	if n.Persistence <= 0 {
		return fmt.Errorf("%w: noise persistence must be positive", ErrMisconfigured)
	}
	if n.Lacunarity <= 0 {
		return fmt.Errorf("%w: noise lacunarity must be positive", ErrMisconfigured)
	}
	return nil
}

// InputLink holds either a literal or the producer feeding a slot.
type InputLink struct {
	Source  NodeID
	Literal Value
}

// Linked reports whether the slot is fed by another node.
func (l InputLink) Linked() bool {
	return l.Source != NoNode
}

type node struct {
	kind   Kind
	inputs []InputLink
	noise  NoiseSettings
}

// Prototype is the mutable authoring form of a terrain graph. It is not safe
// for concurrent use; compile it into a Program to share it between workers.
type Prototype struct {
	ID     uuid.UUID
	Name   string
	nodes  []node
	output NodeID
}

func NewPrototype(name string) *Prototype {
	return &Prototype{ID: uuid.New(), Name: name, output: NoNode}
}

// AddNode appends a node with default literals on every input. The first
// output node becomes the graph output; a second one is rejected.
func (p *Prototype) AddNode(kind Kind) (NodeID, error) {
	if !kind.valid() {
		return NoNode, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	if kind == KindOutput && p.output != NoNode {
		return NoNode, nodeErr(p.output, KindOutput, ErrDuplicateOutput)
	}

	info := kindTable[kind]
	n := node{kind: kind, inputs: make([]InputLink, len(info.inputs))}
	for i, slot := range info.inputs {
		n.inputs[i] = InputLink{Source: NoNode, Literal: slot.Default}
	}
	if info.noise {
		n.noise = DefaultNoiseSettings()
	}

	id := NodeID(len(p.nodes))
	p.nodes = append(p.nodes, n)
	if kind == KindOutput {
		p.output = id
	}
	return id, nil
}

// Len returns the number of nodes in the arena.
func (p *Prototype) Len() int {
	return len(p.nodes)
}

// Output returns the output node, or NoNode.
func (p *Prototype) Output() NodeID {
	return p.output
}

// Kind returns the kind of a node.
func (p *Prototype) Kind(id NodeID) (Kind, error) {
	n, err := p.node(id)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// Input returns the current link of a slot.
func (p *Prototype) Input(id NodeID, slot int) (InputLink, error) {
	n, err := p.slot(id, slot)
	if err != nil {
		return InputLink{}, err
	}
	return n.inputs[slot], nil
}

// Noise returns the noise settings of a noise node.
func (p *Prototype) Noise(id NodeID) (NoiseSettings, error) {
	n, err := p.node(id)
	if err != nil {
		return NoiseSettings{}, err
	}
	if !n.kind.IsNoise() {
		return NoiseSettings{}, nodeErr(id, n.kind, ErrNotNoise)
	}
	return n.noise, nil
}

// SetLinkInput feeds slot of node from source.
func (p *Prototype) SetLinkInput(id NodeID, slot int, source NodeID) error {
	n, err := p.slot(id, slot)
	if err != nil {
		return err
	}
	src, err := p.node(source)
	if err != nil {
		return err
	}
	if source == id {
		return nodeErr(id, n.kind, ErrSelfLink)
	}
	if src.kind == KindOutput {
		return nodeErr(source, src.kind, fmt.Errorf("%w: output node cannot feed other nodes", ErrTypeMismatch))
	}
	want := kindTable[n.kind].inputs[slot]
	if !src.kind.Output().AssignableTo(want.Type) {
		return nodeErr(id, n.kind, fmt.Errorf("%w: slot %q wants %s, node %d produces %s",
			ErrTypeMismatch, want.Name, want.Type, source, src.kind.Output()))
	}
	n.inputs[slot] = InputLink{Source: source, Literal: want.Default}
	return nil
}

// SetLiteral replaces slot of node with a literal, dropping any link.
func (p *Prototype) SetLiteral(id NodeID, slot int, v Value) error {
	n, err := p.slot(id, slot)
	if err != nil {
		return err
	}
	want := kindTable[n.kind].inputs[slot]
	if !v.Type.AssignableTo(want.Type) {
		return nodeErr(id, n.kind, fmt.Errorf("%w: slot %q wants %s, got %s", ErrTypeMismatch, want.Name, want.Type, v.Type))
	}
	if !finite(v.V, 4) {
		return nodeErr(id, n.kind, ErrNonFinite)
	}
	n.inputs[slot] = InputLink{Source: NoNode, Literal: v.convert(want.Type)}
	return nil
}

// RemoveLink restores the slot's default literal.
func (p *Prototype) RemoveLink(id NodeID, slot int) error {
	n, err := p.slot(id, slot)
	if err != nil {
		return err
	}
	n.inputs[slot] = InputLink{Source: NoNode, Literal: kindTable[n.kind].inputs[slot].Default}
	return nil
}

// SetNoise updates the settings of a noise node.
func (p *Prototype) SetNoise(id NodeID, settings NoiseSettings) error {
	n, err := p.node(id)
	if err != nil {
		return err
	}
	if !n.kind.IsNoise() {
		return nodeErr(id, n.kind, ErrNotNoise)
	}
	if err := settings.validate(); err != nil {
		return nodeErr(id, n.kind, err)
	}
	n.noise = settings
	return nil
}

// Validate reports whether the prototype would compile.
func (p *Prototype) Validate() error {
	_, err := p.Compile()
	return err
}

func (p *Prototype) node(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(p.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return &p.nodes[id], nil
}

func (p *Prototype) slot(id NodeID, slot int) (*node, error) {
	n, err := p.node(id)
	if err != nil {
		return nil, err
	}
	if slot < 0 || slot >= len(n.inputs) {
		return nil, nodeErr(id, n.kind, fmt.Errorf("%w: slot %d, %s has %d inputs", ErrSlotOutOfRange, slot, n.kind, len(n.inputs)))
	}
	return n, nil
}
