package chunkbuffer

// SlotState is the lifecycle state of one chunk slot. The concrete types are
// Free, Allocated, Written and Ready.
type SlotState interface {
	slotState()
	String() string
}

// Free slots may be handed out by Allocate.
type Free struct{}

// Allocated slots belong to exactly one producer, which may write the slot's
// staging bytes.
type Allocated struct{}

// Written slots hold a complete staged payload waiting for UpdateChunks.
type Written struct {
	VertexCount int
	IndexCount  int
}

// Ready slots are resident on the device and drawn.
type Ready struct {
	VertexCount int
	IndexCount  int
}

func (Free) slotState()      {}
func (Allocated) slotState() {}
func (Written) slotState()   {}
func (Ready) slotState()     {}

func (Free) String() string      { return "free" }
func (Allocated) String() string { return "allocated" }
func (Written) String() string   { return "written" }
func (Ready) String() string     { return "ready" }
