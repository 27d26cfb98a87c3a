package hw

// BufferFlags carries per-buffer metadata through the graph.
type BufferFlags uint32

const (
	// FlagEOS marks the last buffer of a burst. The raw path tags the
	// converted frame it submits to the splitter with this flag.
	FlagEOS BufferFlags = 1 << iota
	// FlagSideInfo marks a buffer carrying receiver metadata instead of
	// image payload. Such buffers report zero length.
	FlagSideInfo
)

// Buffer is a frame buffer header: a handle to backing memory plus
// metadata, circulated through pools and connections. The header is
// distinct from its payload; Length is the valid byte count, which may be
// smaller than cap(Data) and may legitimately be zero (side-info buffers,
// and a transient capture-port hardware quirk).
type Buffer struct {
	Data   []byte
	Length int
	Flags  BufferFlags
	// Seq is the producer-assigned delivery sequence number.
	Seq uint64

	release func(*Buffer)
}

// NewBuffer builds a buffer header over the given backing memory. The
// release hook returns the header to its owning pool; drivers install it
// at pool creation.
func NewBuffer(data []byte, release func(*Buffer)) *Buffer {
	return &Buffer{Data: data, release: release}
}

// Release returns the buffer to its owning pool and resets metadata.
// The caller must not touch the header afterwards.
func (b *Buffer) Release() {
	b.Length = 0
	b.Flags = 0
	if b.release != nil {
		b.release(b)
	}
}

// Payload returns the valid region of the backing memory.
func (b *Buffer) Payload() []byte {
	return b.Data[:b.Length]
}
