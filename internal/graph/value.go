package graph

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ValueType is the declared type of a node output or input slot.
type ValueType uint8

const (
	TypeFloat ValueType = iota
	TypeInt
	TypeVec2
	TypeVec3
	TypeVec4
)

func (t ValueType) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeInt:
		return "int"
	case TypeVec2:
		return "vec2"
	case TypeVec3:
		return "vec3"
	case TypeVec4:
		return "vec4"
	default:
		return fmt.Sprintf("ValueType(%d)", uint8(t))
	}
}

// Components is the number of meaningful vector lanes for the type.
func (t ValueType) Components() int {
	switch t {
	case TypeVec2:
		return 2
	case TypeVec3:
		return 3
	case TypeVec4:
		return 4
	default:
		return 1
	}
}

func (t ValueType) scalar() bool {
	return t == TypeFloat || t == TypeInt
}

// AssignableTo reports whether a value of type t may feed a slot of type dst.
// Scalars convert freely; vectors must match exactly.
func (t ValueType) AssignableTo(dst ValueType) bool {
	if t.scalar() && dst.scalar() {
		return true
	}
	return t == dst
}

// Value is a typed literal. Scalars live in the X lane.
type Value struct {
	Type ValueType
	V    mgl32.Vec4
}

func Float(f float32) Value { return Value{Type: TypeFloat, V: mgl32.Vec4{f}} }

func Int(i int32) Value { return Value{Type: TypeInt, V: mgl32.Vec4{float32(i)}} }

func Vec2(x, y float32) Value { return Value{Type: TypeVec2, V: mgl32.Vec4{x, y}} }

func Vec3(x, y, z float32) Value { return Value{Type: TypeVec3, V: mgl32.Vec4{x, y, z}} }

func Vec4(x, y, z, w float32) Value { return Value{Type: TypeVec4, V: mgl32.Vec4{x, y, z, w}} }

// Scalar returns the X lane.
func (v Value) Scalar() float32 {
	return v.V[0]
}

// convert coerces v into slot type dst. The caller has already checked
// assignability.
func (v Value) convert(dst ValueType) Value {
	out := Value{Type: dst}
	switch {
	case dst == TypeInt:
		out.V[0] = float32(math.Trunc(float64(v.V[0])))
	case dst.scalar():
		out.V[0] = v.V[0]
	default:
		n := dst.Components()
		for i := 0; i < n; i++ {
			out.V[i] = v.V[i]
		}
	}
	return out
}

// components returns the meaningful lanes of v.
func (v Value) components() []float32 {
	n := v.Type.Components()
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = v.V[i]
	}
	return out
}

func valueFromComponents(t ValueType, c []float32) (Value, error) {
	if len(c) != t.Components() {
		return Value{}, fmt.Errorf("%w: %s literal needs %d components, got %d", ErrTypeMismatch, t, t.Components(), len(c))
	}
	v := Value{Type: t}
	copy(v.V[:], c)
	return v.convert(t), nil
}

func finite(v mgl32.Vec4, n int) bool {
	for i := 0; i < n; i++ {
		f := float64(v[i])
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
