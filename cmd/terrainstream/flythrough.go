package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// flythrough moves the camera along +X while weaving across Z, so the
// streamed window both advances and shifts sideways.
type flythrough struct {
	speed  float32
	weave  float32
	period float64
}

func newFlythrough(speed, tileWidth float32) flythrough {
	return flythrough{speed: speed, weave: 2 * tileWidth, period: 60}
}

// Position returns the camera position t seconds into the flight.
func (f flythrough) Position(t float64) mgl32.Vec3 {
	x := f.speed * float32(t)
	z := f.weave * float32(math.Sin(2*math.Pi*t/f.period))
	return mgl32.Vec3{x, 0, z}
}
