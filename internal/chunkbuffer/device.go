package chunkbuffer

import (
	"errors"
	"fmt"
	"sync"
)

// BufferHandle names a buffer owned by a Device.
type BufferHandle uint32

// CopyRegion is one byte range of a batched staging upload.
type CopyRegion struct {
	SrcOffset int
	DstOffset int
	Size      int
}

// Device is the GPU upload surface the chunk buffer needs.
type Device interface {
	AllocateBuffer(size int) (BufferHandle, error)
	// Map returns a persistent CPU view of a host-visible buffer.
	Map(h BufferHandle) ([]byte, error)
	SubmitCopy(src, dst BufferHandle, regions []CopyRegion) error
	WaitIdle() error
}

// Renderer receives one draw per ready slot.
type Renderer interface {
	DrawIndexed(slot, indexCount int)
}

// Submission records one SubmitCopy call on a MemoryDevice.
type Submission struct {
	Src     BufferHandle
	Dst     BufferHandle
	Regions []CopyRegion
}

// MemoryDevice is a headless Device backed by byte slices. Copies complete
// synchronously.
type MemoryDevice struct {
	mu          sync.Mutex
	buffers     map[BufferHandle][]byte
	next        BufferHandle
	submissions []Submission
	failNext    error
	waits       int
}

func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{buffers: make(map[BufferHandle][]byte), next: 1}
}

func (d *MemoryDevice) AllocateBuffer(size int) (BufferHandle, error) {
	if size <= 0 {
		return 0, fmt.Errorf("allocate buffer: invalid size %d", size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.next
	d.next++
	d.buffers[h] = make([]byte, size)
	return h, nil
}

func (d *MemoryDevice) Map(h BufferHandle) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("map buffer %d: unknown handle", h)
	}
	return buf, nil
}

func (d *MemoryDevice) SubmitCopy(src, dst BufferHandle, regions []CopyRegion) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failNext; err != nil {
		d.failNext = nil
		return err
	}
	from, ok := d.buffers[src]
	if !ok {
		return fmt.Errorf("submit copy: unknown source %d", src)
	}
	to, ok := d.buffers[dst]
	if !ok {
		return fmt.Errorf("submit copy: unknown destination %d", dst)
	}
	for _, r := range regions {
		if r.Size < 0 || r.SrcOffset < 0 || r.DstOffset < 0 ||
			r.SrcOffset+r.Size > len(from) || r.DstOffset+r.Size > len(to) {
			return fmt.Errorf("submit copy: region %+v out of bounds", r)
		}
	}
	for _, r := range regions {
		copy(to[r.DstOffset:r.DstOffset+r.Size], from[r.SrcOffset:r.SrcOffset+r.Size])
	}
	d.submissions = append(d.submissions, Submission{Src: src, Dst: dst, Regions: append([]CopyRegion(nil), regions...)})
	return nil
}

func (d *MemoryDevice) WaitIdle() error {
	d.mu.Lock()
	d.waits++
	d.mu.Unlock()
	return nil
}

// FailNextSubmit makes the next SubmitCopy return err.
func (d *MemoryDevice) FailNextSubmit(err error) {
	if err == nil {
		err = errors.New("device lost")
	}
	d.mu.Lock()
	d.failNext = err
	d.mu.Unlock()
}

// Submissions returns the successful submissions so far.
func (d *MemoryDevice) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

// Contents returns a copy of a buffer's bytes.
func (d *MemoryDevice) Contents(h BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buffers[h]...)
}
