package graph

import "fmt"

// Kind enumerates the node operations.
type Kind uint8

const (
	KindOutput Kind = iota
	KindConstFloat
	KindConstInt
	KindConstVec2
	KindConstVec3
	KindConstVec4
	KindAdd
	KindSubtract
	KindMultiply
	KindDivide
	KindPower
	KindMin
	KindMax
	KindAbs
	KindBlend
	KindClamp
	KindSelector
	KindValueNoise
	KindPerlinNoise
	KindSimplexNoise
	KindFractalNoise
	KindCellNoise
	KindWhiteNoise
	KindColorCompose
	kindCount
)

// Slot describes one input of a kind.
type Slot struct {
	Name    string
	Type    ValueType
	Default Value
}

type kindInfo struct {
	name   string
	inputs []Slot
	output ValueType
	noise  bool
}

func floatSlot(name string, def float32) Slot {
	return Slot{Name: name, Type: TypeFloat, Default: Float(def)}
}

var kindTable = [kindCount]kindInfo{
	KindOutput: {name: "output", inputs: []Slot{
		floatSlot("height", 0),
		{Name: "splat", Type: TypeVec4, Default: Vec4(1, 0, 0, 0)},
	}, output: TypeVec4},
	KindConstFloat: {name: "const_float", inputs: []Slot{floatSlot("value", 0)}, output: TypeFloat},
	KindConstInt:   {name: "const_int", inputs: []Slot{{Name: "value", Type: TypeInt, Default: Int(0)}}, output: TypeInt},
	KindConstVec2:  {name: "const_vec2", inputs: []Slot{{Name: "value", Type: TypeVec2, Default: Vec2(0, 0)}}, output: TypeVec2},
	KindConstVec3:  {name: "const_vec3", inputs: []Slot{{Name: "value", Type: TypeVec3, Default: Vec3(0, 0, 0)}}, output: TypeVec3},
	KindConstVec4:  {name: "const_vec4", inputs: []Slot{{Name: "value", Type: TypeVec4, Default: Vec4(0, 0, 0, 0)}}, output: TypeVec4},
	KindAdd:        {name: "add", inputs: []Slot{floatSlot("a", 0), floatSlot("b", 0)}, output: TypeFloat},
	KindSubtract:   {name: "subtract", inputs: []Slot{floatSlot("a", 0), floatSlot("b", 0)}, output: TypeFloat},
	KindMultiply:   {name: "multiply", inputs: []Slot{floatSlot("a", 1), floatSlot("b", 1)}, output: TypeFloat},
	KindDivide:     {name: "divide", inputs: []Slot{floatSlot("a", 0), floatSlot("b", 1)}, output: TypeFloat},
	KindPower:      {name: "power", inputs: []Slot{floatSlot("base", 0), floatSlot("exponent", 1)}, output: TypeFloat},
	KindMin:        {name: "min", inputs: []Slot{floatSlot("a", 0), floatSlot("b", 0)}, output: TypeFloat},
	KindMax:        {name: "max", inputs: []Slot{floatSlot("a", 0), floatSlot("b", 0)}, output: TypeFloat},
	KindAbs:        {name: "abs", inputs: []Slot{floatSlot("value", 0)}, output: TypeFloat},
	KindBlend: {name: "blend", inputs: []Slot{
		floatSlot("a", 0), floatSlot("b", 0), floatSlot("factor", 0.5),
	}, output: TypeFloat},
	KindClamp: {name: "clamp", inputs: []Slot{
		floatSlot("value", 0), floatSlot("min", -1), floatSlot("max", 1),
	}, output: TypeFloat},
	KindSelector: {name: "selector", inputs: []Slot{
		floatSlot("a", 0), floatSlot("b", 0), floatSlot("control", 0),
		floatSlot("lower", 0), floatSlot("upper", 1), floatSlot("falloff", 0),
	}, output: TypeFloat},
	KindValueNoise:   {name: "value_noise", output: TypeFloat, noise: true},
	KindPerlinNoise:  {name: "perlin_noise", output: TypeFloat, noise: true},
	KindSimplexNoise: {name: "simplex_noise", output: TypeFloat, noise: true},
	KindFractalNoise: {name: "fractal_noise", output: TypeFloat, noise: true},
	KindCellNoise:    {name: "cell_noise", output: TypeFloat, noise: true},
	KindWhiteNoise:   {name: "white_noise", output: TypeFloat, noise: true},
	KindColorCompose: {name: "color_compose", inputs: []Slot{
		floatSlot("r", 0), floatSlot("g", 0), floatSlot("b", 0), floatSlot("a", 0),
	}, output: TypeVec4},
}

func (k Kind) valid() bool {
	return k < kindCount
}

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindTable[k].name
}

// Inputs returns a copy of the kind's input slot table.
func (k Kind) Inputs() []Slot {
	if !k.valid() {
		return nil
	}
	return append([]Slot(nil), kindTable[k].inputs...)
}

// Output is the kind's declared output type.
func (k Kind) Output() ValueType {
	if !k.valid() {
		return TypeFloat
	}
	return kindTable[k].output
}

// IsNoise reports whether the kind is a noise source.
func (k Kind) IsNoise() bool {
	return k.valid() && kindTable[k].noise
}

// ParseKind resolves a kind by its document name.
func ParseKind(name string) (Kind, error) {
	for k := Kind(0); k < kindCount; k++ {
		if kindTable[k].name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

func (k Kind) slotIndex(name string) (int, bool) {
	for i, s := range kindTable[k].inputs {
		if s.Name == name {
			return i, true
		}
	}
	return 0, false
}
