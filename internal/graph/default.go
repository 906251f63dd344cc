package graph

import "fmt"

// builder chains prototype edits and keeps the first error.
type builder struct {
	p   *Prototype
	err error
}

func (b *builder) add(kind Kind) NodeID {
	if b.err != nil {
		return NoNode
	}
	id, err := b.p.AddNode(kind)
	b.err = err
	return id
}

func (b *builder) link(id NodeID, slot string, source NodeID) {
	if b.err != nil {
		return
	}
	i, ok := b.p.nodes[id].kind.slotIndex(slot)
	if !ok {
		b.err = fmt.Errorf("%w: %q", ErrSlotOutOfRange, slot)
		return
	}
	b.err = b.p.SetLinkInput(id, i, source)
}

func (b *builder) literal(id NodeID, slot string, v Value) {
	if b.err != nil {
		return
	}
	i, ok := b.p.nodes[id].kind.slotIndex(slot)
	if !ok {
		b.err = fmt.Errorf("%w: %q", ErrSlotOutOfRange, slot)
		return
	}
	b.err = b.p.SetLiteral(id, i, v)
}

func (b *builder) noise(id NodeID, s NoiseSettings) {
	if b.err != nil {
		return
	}
	b.err = b.p.SetNoise(id, s)
}

func (b *builder) band(control NodeID, lower, upper float32) NodeID {
	sel := b.add(KindSelector)
	b.literal(sel, "a", Float(0))
	b.literal(sel, "b", Float(1))
	b.link(sel, "control", control)
	b.literal(sel, "lower", Float(lower))
	b.literal(sel, "upper", Float(upper))
	b.literal(sel, "falloff", Float(0.1))
	return sel
}

// DefaultPrototype builds the graph used when no stored graph is configured:
// rolling fractal terrain with perlin detail, splatted sand/grass/rock by
// height.
func DefaultPrototype() *Prototype {
	b := &builder{p: NewPrototype("default terrain")}

	out := b.add(KindOutput)

	base := b.add(KindFractalNoise)
	b.noise(base, NoiseSettings{Frequency: 0.5, Octaves: 5, Persistence: 0.5, Lacunarity: 2})

	detail := b.add(KindPerlinNoise)
	b.noise(detail, NoiseSettings{Frequency: 4, Octaves: 3, Persistence: 0.5, Lacunarity: 2, SeedOffset: 1})

	baseScaled := b.add(KindMultiply)
	b.link(baseScaled, "a", base)
	b.literal(baseScaled, "b", Float(0.8))

	detailScaled := b.add(KindMultiply)
	b.link(detailScaled, "a", detail)
	b.literal(detailScaled, "b", Float(0.2))

	height := b.add(KindAdd)
	b.link(height, "a", baseScaled)
	b.link(height, "b", detailScaled)
	b.link(out, "height", height)

	sand := b.band(height, -1.5, -0.2)
	grass := b.band(height, -0.2, 0.35)
	rock := b.band(height, 0.35, 1.5)

	splat := b.add(KindColorCompose)
	b.link(splat, "r", grass)
	b.link(splat, "g", rock)
	b.link(splat, "b", sand)
	b.link(out, "splat", splat)

	if b.err != nil {
		panic(fmt.Sprintf("default terrain graph: %v", b.err))
	}
	return b.p
}

// DefaultProgram compiles DefaultPrototype.
func DefaultProgram() *Program {
	prog, err := DefaultPrototype().Compile()
	if err != nil {
		panic(fmt.Sprintf("default terrain graph: %v", err))
	}
	return prog
}
