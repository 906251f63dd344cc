package chunkbuffer

import (
	"errors"
	"fmt"
	"sync"
)

// IndexSize is the size of one uint32 index in bytes.
const IndexSize = 4

var (
	// ErrResourceExhausted is returned by Allocate when every slot is in use.
	ErrResourceExhausted = errors.New("chunk buffer exhausted")
	ErrInvalidSlot       = errors.New("invalid chunk slot")
	// ErrSlotState is returned when a slot is not in the state an operation
	// requires.
	ErrSlotState = errors.New("chunk slot in wrong state")
	// ErrDevice wraps failures reported by the Device. It is fatal for the
	// frame loop.
	ErrDevice = errors.New("device error")
)

// Layout sizes the pool. Every slot reserves room for VerticesPerSlot
// vertices and IndicesPerSlot indices.
type Layout struct {
	MaxSlots        int
	VerticesPerSlot int
	IndicesPerSlot  int
	VertexStride    int
}

func (l Layout) validate() error {
	if l.MaxSlots <= 0 {
		return fmt.Errorf("layout: maxSlots must be positive, got %d", l.MaxSlots)
	}
	if l.VerticesPerSlot <= 0 || l.IndicesPerSlot <= 0 || l.VertexStride <= 0 {
		return fmt.Errorf("layout: per-slot sizes must be positive: %+v", l)
	}
	return nil
}

// VertexSlotBytes is the staging space reserved for one slot's vertices.
func (l Layout) VertexSlotBytes() int { return l.VerticesPerSlot * l.VertexStride }

// IndexSlotBytes is the staging space reserved for one slot's indices.
func (l Layout) IndexSlotBytes() int { return l.IndicesPerSlot * IndexSize }

// VertexOffset is the byte offset of slot i's vertex region. Staging and
// resident buffers share the layout: all vertex regions first, then all
// index regions.
func (l Layout) VertexOffset(i int) int { return i * l.VertexSlotBytes() }

// IndexOffset is the byte offset of slot i's index region.
func (l Layout) IndexOffset(i int) int {
	return l.MaxSlots*l.VertexSlotBytes() + i*l.IndexSlotBytes()
}

// TotalBytes is the size of the staging and of the resident buffer.
func (l Layout) TotalBytes() int {
	return l.MaxSlots * (l.VertexSlotBytes() + l.IndexSlotBytes())
}

// SlotInfo describes one slot for diagnostics.
type SlotInfo struct {
	Index       int    `json:"index"`
	State       string `json:"state"`
	VertexCount int    `json:"vertexCount,omitempty"`
	IndexCount  int    `json:"indexCount,omitempty"`
}

// Buffer is a fixed-capacity pool of chunk slots backed by one persistently
// mapped staging buffer and one device-resident buffer. Slot state is guarded
// by a single mutex; payload bytes are not, because only the owner of an
// Allocated slot writes them.
type Buffer struct {
	device   Device
	layout   Layout
	staging  BufferHandle
	resident BufferHandle
	mapped   []byte

	mu      sync.Mutex
	slots   []SlotState
	used    int
	uploads int
}

func New(device Device, layout Layout) (*Buffer, error) {
	if device == nil {
		return nil, errors.New("chunk buffer: device is nil")
	}
	if err := layout.validate(); err != nil {
		return nil, err
	}
	size := layout.TotalBytes()
	staging, err := device.AllocateBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate staging: %w", ErrDevice, err)
	}
	resident, err := device.AllocateBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate resident: %w", ErrDevice, err)
	}
	mapped, err := device.Map(staging)
	if err != nil {
		return nil, fmt.Errorf("%w: map staging: %w", ErrDevice, err)
	}
	if len(mapped) < size {
		return nil, fmt.Errorf("%w: mapped staging holds %d bytes, need %d", ErrDevice, len(mapped), size)
	}

	b := &Buffer{
		device:   device,
		layout:   layout,
		staging:  staging,
		resident: resident,
		mapped:   mapped[:size],
		slots:    make([]SlotState, layout.MaxSlots),
	}
	for i := range b.slots {
		b.slots[i] = Free{}
	}
	return b, nil
}

func (b *Buffer) Layout() Layout { return b.layout }

func (b *Buffer) Capacity() int { return b.layout.MaxSlots }

// ResidentHandle is the device buffer that draws read from.
func (b *Buffer) ResidentHandle() BufferHandle { return b.resident }

// Used is the number of non-free slots.
func (b *Buffer) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Uploads is the number of batched copies submitted so far.
func (b *Buffer) Uploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads
}

// Allocate claims the lowest free slot.
func (b *Buffer) Allocate() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.slots {
		if _, ok := s.(Free); ok {
			b.slots[i] = Allocated{}
			b.used++
			return i, nil
		}
	}
	return -1, ErrResourceExhausted
}

// Free returns a non-free slot to the pool.
func (b *Buffer) Free(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkIndex(i); err != nil {
		return err
	}
	if _, ok := b.slots[i].(Free); ok {
		return fmt.Errorf("%w: free slot %d: already free", ErrSlotState, i)
	}
	b.slots[i] = Free{}
	b.used--
	return nil
}

// State returns the current state of slot i.
func (b *Buffer) State(i int) (SlotState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkIndex(i); err != nil {
		return nil, err
	}
	return b.slots[i], nil
}

// VertexStaging returns slot i's vertex region of the mapped staging buffer.
func (b *Buffer) VertexStaging(i int) ([]byte, error) {
	if err := b.requireAllocated(i); err != nil {
		return nil, err
	}
	off := b.layout.VertexOffset(i)
	end := off + b.layout.VertexSlotBytes()
	return b.mapped[off:end:end], nil
}

// IndexStaging returns slot i's index region of the mapped staging buffer.
func (b *Buffer) IndexStaging(i int) ([]byte, error) {
	if err := b.requireAllocated(i); err != nil {
		return nil, err
	}
	off := b.layout.IndexOffset(i)
	end := off + b.layout.IndexSlotBytes()
	return b.mapped[off:end:end], nil
}

// SetChunkWritten hands a fully staged slot to the main thread.
func (b *Buffer) SetChunkWritten(i, vertexCount, indexCount int) error {
	if vertexCount < 0 || vertexCount > b.layout.VerticesPerSlot {
		return fmt.Errorf("%w: slot %d: %d vertices exceed capacity %d", ErrInvalidSlot, i, vertexCount, b.layout.VerticesPerSlot)
	}
	if indexCount < 0 || indexCount > b.layout.IndicesPerSlot {
		return fmt.Errorf("%w: slot %d: %d indices exceed capacity %d", ErrInvalidSlot, i, indexCount, b.layout.IndicesPerSlot)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkIndex(i); err != nil {
		return err
	}
	if _, ok := b.slots[i].(Allocated); !ok {
		return fmt.Errorf("%w: mark slot %d written: slot is %s", ErrSlotState, i, b.slots[i])
	}
	b.slots[i] = Written{VertexCount: vertexCount, IndexCount: indexCount}
	return nil
}

// UpdateChunks uploads every written slot in one batched copy and marks them
// ready. It must only be called from the main thread. On a device failure
// the slots stay written and the error wraps ErrDevice.
func (b *Buffer) UpdateChunks() error {
	b.mu.Lock()
	var (
		regions []CopyRegion
		pending []int
	)
	for i, s := range b.slots {
		w, ok := s.(Written)
		if !ok {
			continue
		}
		pending = append(pending, i)
		if n := w.VertexCount * b.layout.VertexStride; n > 0 {
			off := b.layout.VertexOffset(i)
			regions = append(regions, CopyRegion{SrcOffset: off, DstOffset: off, Size: n})
		}
		if n := w.IndexCount * IndexSize; n > 0 {
			off := b.layout.IndexOffset(i)
			regions = append(regions, CopyRegion{SrcOffset: off, DstOffset: off, Size: n})
		}
	}
	b.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	// Written slots only change on the main thread, so they are still
	// written once the copy completes.
	if err := b.device.SubmitCopy(b.staging, b.resident, regions); err != nil {
		return fmt.Errorf("%w: submit copy of %d slots: %w", ErrDevice, len(pending), err)
	}
	if err := b.device.WaitIdle(); err != nil {
		return fmt.Errorf("%w: wait idle: %w", ErrDevice, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, i := range pending {
		if w, ok := b.slots[i].(Written); ok {
			b.slots[i] = Ready{VertexCount: w.VertexCount, IndexCount: w.IndexCount}
		}
	}
	b.uploads++
	return nil
}

// Draw emits one indexed draw per ready slot in slot order.
func (b *Buffer) Draw(r Renderer) {
	type draw struct{ slot, count int }
	b.mu.Lock()
	draws := make([]draw, 0, b.used)
	for i, s := range b.slots {
		if ready, ok := s.(Ready); ok && ready.IndexCount > 0 {
			draws = append(draws, draw{slot: i, count: ready.IndexCount})
		}
	}
	b.mu.Unlock()

	for _, d := range draws {
		r.DrawIndexed(d.slot, d.count)
	}
}

// Snapshot reports every slot.
func (b *Buffer) Snapshot() []SlotInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SlotInfo, len(b.slots))
	for i, s := range b.slots {
		info := SlotInfo{Index: i, State: s.String()}
		switch st := s.(type) {
		case Written:
			info.VertexCount, info.IndexCount = st.VertexCount, st.IndexCount
		case Ready:
			info.VertexCount, info.IndexCount = st.VertexCount, st.IndexCount
		}
		out[i] = info
	}
	return out
}

// Reset frees every slot.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.slots {
		b.slots[i] = Free{}
	}
	b.used = 0
}

func (b *Buffer) checkIndex(i int) error {
	if i < 0 || i >= len(b.slots) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidSlot, i, len(b.slots))
	}
	return nil
}

func (b *Buffer) requireAllocated(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkIndex(i); err != nil {
		return err
	}
	if _, ok := b.slots[i].(Allocated); !ok {
		return fmt.Errorf("%w: staging for slot %d: slot is %s", ErrSlotState, i, b.slots[i])
	}
	return nil
}
