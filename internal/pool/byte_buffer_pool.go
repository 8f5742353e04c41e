package pool

import "sync"

// Block content buffers: most control blocks fit in a few KiB, data
// block payloads commonly run to a few hundred KiB. Oversized buffers
// are dropped instead of being returned to the pool.
const (
	BlockBufferDefaultSize  = 1024 * 8        // 8KiB
	BlockBufferMaxThreshold = 1024 * 1024 * 4 // 4MiB
)

// ByteBuffer is an append-oriented byte buffer reused through a pool.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a new ByteBuffer with the specified default size.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{
		B: make([]byte, 0, defaultSize),
	}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Reset resets the buffer to be empty, but retains the allocated memory for reuse.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Len returns the length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Cap returns the capacity of the buffer.
func (bb *ByteBuffer) Cap() int {
	return cap(bb.B)
}

// MustWrite writes data to the buffer, growing it if necessary.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

// Grow grows the buffer to ensure it can hold requiredBytes more bytes
// without reallocating. For small buffers growth is a fixed step; for
// larger ones it is 25% of the current capacity.
func (bb *ByteBuffer) Grow(requiredBytes int) {
	available := cap(bb.B) - len(bb.B)
	if available >= requiredBytes {
		return
	}

	growBy := BlockBufferDefaultSize
	if cap(bb.B) > 4*BlockBufferDefaultSize {
		growBy = cap(bb.B) / 4
	}
	if growBy < requiredBytes {
		growBy = requiredBytes
	}

	newBuf := make([]byte, len(bb.B), cap(bb.B)+growBy)
	copy(newBuf, bb.B)
	bb.B = newBuf
}

var blockBufferPool = sync.Pool{
	New: func() any {
		return NewByteBuffer(BlockBufferDefaultSize)
	},
}

// GetBlockBuffer returns a reset ByteBuffer from the pool.
func GetBlockBuffer() *ByteBuffer {
	bb, _ := blockBufferPool.Get().(*ByteBuffer)
	bb.Reset()

	return bb
}

// PutBlockBuffer returns a ByteBuffer to the pool. Buffers that grew
// past the threshold are dropped so the pool does not pin large
// allocations.
func PutBlockBuffer(bb *ByteBuffer) {
	if bb == nil || bb.Cap() > BlockBufferMaxThreshold {
		return
	}

	blockBufferPool.Put(bb)
}
