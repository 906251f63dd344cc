package graph

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"reflect"
	"strings"
	"testing"
)

func evaluate(t *testing.T, p *Prototype, params TileParams) (*Result, error) {
	t.Helper()
	prog, err := p.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	u, err := NewUser(prog, params)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	return u.Evaluate(context.Background())
}

func tile(res int) TileParams {
	return TileParams{Seed: 7, Resolution: res, Scale: 1 / float64(res-1)}
}

func TestEvaluateConstantGraph(t *testing.T) {
	p := NewPrototype("flat")
	out := mustAdd(t, p, KindOutput)
	c := mustAdd(t, p, KindConstFloat)
	if err := p.SetLiteral(c, 0, Float(0.5)); err != nil {
		t.Fatalf("SetLiteral: %v", err)
	}
	if err := p.SetLinkInput(out, 0, c); err != nil {
		t.Fatalf("link: %v", err)
	}

	res, err := evaluate(t, p, tile(4))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Height) != 16 || len(res.Splat) != 64 {
		t.Fatalf("result sizes %d/%d", len(res.Height), len(res.Splat))
	}
	for i, h := range res.Height {
		if h != 0.5 {
			t.Fatalf("height[%d] = %v, want 0.5", i, h)
		}
	}
	if got := res.SplatAt(3, 3); got != [4]uint8{255, 0, 0, 0} {
		t.Fatalf("default splat = %v", got)
	}
}

func TestEvaluateClampsAndQuantisesOutput(t *testing.T) {
	p := NewPrototype("clamped")
	out := mustAdd(t, p, KindOutput)
	if err := p.SetLiteral(out, 0, Float(3)); err != nil {
		t.Fatalf("SetLiteral height: %v", err)
	}
	if err := p.SetLiteral(out, 1, Vec4(2, -1, 0.5, 0.25)); err != nil {
		t.Fatalf("SetLiteral splat: %v", err)
	}

	res, err := evaluate(t, p, tile(2))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.HeightAt(0, 0) != 1 {
		t.Fatalf("height = %v, want clamp to 1", res.HeightAt(0, 0))
	}
	if got := res.SplatAt(1, 0); got != [4]uint8{255, 0, 128, 64} {
		t.Fatalf("splat = %v", got)
	}
}

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		kind Kind
		a, b float32
		want float32
	}{
		{KindAdd, 0.25, 0.5, 0.75},
		{KindSubtract, 0.25, 0.5, -0.25},
		{KindMultiply, 0.5, -0.5, -0.25},
		{KindDivide, 0.5, 4, 0.125},
		{KindPower, 0.5, 2, 0.25},
		{KindMin, 0.5, -0.75, -0.75},
		{KindMax, 0.5, -0.75, 0.5},
		{KindAbs, -0.75, 0, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			p := NewPrototype("op")
			out := mustAdd(t, p, KindOutput)
			op := mustAdd(t, p, tt.kind)
			if err := p.SetLiteral(op, 0, Float(tt.a)); err != nil {
				t.Fatalf("SetLiteral a: %v", err)
			}
			if len(tt.kind.Inputs()) > 1 {
				if err := p.SetLiteral(op, 1, Float(tt.b)); err != nil {
					t.Fatalf("SetLiteral b: %v", err)
				}
			}
			if err := p.SetLinkInput(out, 0, op); err != nil {
				t.Fatalf("link: %v", err)
			}
			res, err := evaluate(t, p, tile(2))
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got := res.HeightAt(0, 0); got != tt.want {
				t.Fatalf("%s(%v, %v) = %v, want %v", tt.kind, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestEvaluateDivideByZeroNamesNode(t *testing.T) {
	p := NewPrototype("div")
	out := mustAdd(t, p, KindOutput)
	div := mustAdd(t, p, KindDivide)
	if err := p.SetLiteral(div, 0, Float(1)); err != nil {
		t.Fatalf("SetLiteral: %v", err)
	}
	if err := p.SetLiteral(div, 1, Float(0)); err != nil {
		t.Fatalf("SetLiteral: %v", err)
	}
	if err := p.SetLinkInput(out, 0, div); err != nil {
		t.Fatalf("link: %v", err)
	}

	_, err := evaluate(t, p, tile(3))
	if !errors.Is(err, ErrDivideByZero) || !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("error = %v, want ErrDivideByZero", err)
	}
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.Node != div || nodeErr.Kind != KindDivide {
		t.Fatalf("error does not name the divide node: %v", err)
	}
}

func TestEvaluateRejectsNonFinite(t *testing.T) {
	p := NewPrototype("nan")
	out := mustAdd(t, p, KindOutput)
	pow := mustAdd(t, p, KindPower)
	_ = p.SetLiteral(pow, 0, Float(-1))
	_ = p.SetLiteral(pow, 1, Float(0.5))
	if err := p.SetLinkInput(out, 0, pow); err != nil {
		t.Fatalf("link: %v", err)
	}
	_, err := evaluate(t, p, tile(2))
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("error = %v, want ErrNonFinite", err)
	}
}

func TestSelectValue(t *testing.T) {
	tests := []struct {
		name                                 string
		control, lower, upper, falloff, want float32
	}{
		{"inside hard band", 0.5, 0, 1, 0, 1},
		{"on lower bound", 0, 0, 1, 0, 1},
		{"on upper bound", 1, 0, 1, 0, 1},
		{"below hard band", -0.01, 0, 1, 0, 0},
		{"above hard band", 1.01, 0, 1, 0, 0},
		{"swapped bounds", 0.5, 1, 0, 0, 1},
		{"centre of lower fade", 0, 0, 1, 0.1, 0.5},
		{"centre of upper fade", 1, 0, 1, 0.1, 0.5},
		{"inside soft band", 0.5, 0, 1, 0.1, 1},
		{"outside soft band", -0.2, 0, 1, 0.1, 0},
		{"falloff wider than band", 0.5, 0, 1, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectValue(0, 1, tt.control, tt.lower, tt.upper, tt.falloff)
			if math.Abs(float64(got-tt.want)) > 1e-5 {
				t.Fatalf("selectValue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateIsDeterministicAndInRange(t *testing.T) {
	prog := DefaultProgram()
	params := TileParams{Seed: 99, Resolution: 17, Origin: [2]int{-16, 32}, Scale: 1.0 / 16}

	run := func() *Result {
		u, err := NewUser(prog, params)
		if err != nil {
			t.Fatalf("NewUser: %v", err)
		}
		res, err := u.Evaluate(context.Background())
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		return res
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("evaluations of the same tile differ")
	}
	for i, h := range first.Height {
		if math.IsNaN(float64(h)) || h < -1 || h > 1 {
			t.Fatalf("height[%d] = %v out of range", i, h)
		}
	}

	other := params
	other.Seed = 100
	u, _ := NewUser(prog, other)
	third, err := u.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if reflect.DeepEqual(first.Height, third.Height) {
		t.Fatalf("different seeds produced identical heightmaps")
	}
}

func TestAdjacentTilesShareBorders(t *testing.T) {
	prog := DefaultProgram()
	const res = 9
	scale := 1.0 / (res - 1)

	left, err := mustUser(t, prog, TileParams{Seed: 3, Resolution: res, Origin: [2]int{0, 0}, Scale: scale}).Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate left: %v", err)
	}
	right, err := mustUser(t, prog, TileParams{Seed: 3, Resolution: res, Origin: [2]int{res - 1, 0}, Scale: scale}).Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate right: %v", err)
	}
	for z := 0; z < res; z++ {
		if left.HeightAt(res-1, z) != right.HeightAt(0, z) {
			t.Fatalf("row %d: border %v != %v", z, left.HeightAt(res-1, z), right.HeightAt(0, z))
		}
	}
}

func mustUser(t *testing.T, prog *Program, params TileParams) *User {
	t.Helper()
	u, err := NewUser(prog, params)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	return u
}

func TestEvaluateObservesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mustUser(t, DefaultProgram(), tile(5)).Evaluate(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestEvaluateLogsProgress(t *testing.T) {
	var buf bytes.Buffer
	params := tile(5)
	params.Logger = log.New(&buf, "", 0)
	if _, err := mustUser(t, DefaultProgram(), params).Evaluate(context.Background()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, marker := range []string{"25%", "50%", "75%", "100%"} {
		if !strings.Contains(buf.String(), marker) {
			t.Fatalf("expected progress %s, got: %s", marker, buf.String())
		}
	}
}

func TestNewUserValidatesParams(t *testing.T) {
	prog := DefaultProgram()
	if _, err := NewUser(nil, tile(3)); err == nil {
		t.Fatalf("expected error for nil program")
	}
	if _, err := NewUser(prog, TileParams{Resolution: 0, Scale: 1}); err == nil {
		t.Fatalf("expected error for zero resolution")
	}
	if _, err := NewUser(prog, TileParams{Resolution: 4, Scale: 0}); err == nil {
		t.Fatalf("expected error for zero scale")
	}
}

func TestNoiseImagesAreCachedPerNode(t *testing.T) {
	p := NewPrototype("noise")
	out := mustAdd(t, p, KindOutput)
	n := mustAdd(t, p, KindWhiteNoise)
	if err := p.SetLinkInput(out, 0, n); err != nil {
		t.Fatalf("link: %v", err)
	}
	prog, err := p.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	u := mustUser(t, prog, tile(6))
	res, err := u.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	img, ok := u.NoiseImage(n)
	if !ok {
		t.Fatalf("no cached image for noise node")
	}
	for z := 0; z < 6; z++ {
		for x := 0; x < 6; x++ {
			if img.At(x, z) != res.HeightAt(x, z) {
				t.Fatalf("cache (%d,%d) = %v, height %v", x, z, img.At(x, z), res.HeightAt(x, z))
			}
		}
	}
	if _, ok := u.NoiseImage(out); ok {
		t.Fatalf("output node should have no noise image")
	}
}

func TestSampleHeightInterpolates(t *testing.T) {
	r := &Result{Resolution: 2, Height: []float32{0, 1, 2, 3}}
	tests := []struct {
		u, v, want float32
	}{
		{0, 0, 0},
		{1, 0, 1},
		{0, 1, 2},
		{1, 1, 3},
		{0.5, 0.5, 1.5},
		{-1, 2, 2},
	}
	for _, tt := range tests {
		if got := r.SampleHeight(tt.u, tt.v); got != tt.want {
			t.Fatalf("SampleHeight(%v,%v) = %v, want %v", tt.u, tt.v, got, tt.want)
		}
	}
}
