package fileio

const (
	// DefaultBufferSize is the size of pooled buffers.
	DefaultBufferSize = 2048

	// DefaultPoolCapacity is the number of buffers the default pool retains.
	DefaultPoolCapacity = 10

	// MinBufferSize is the smallest window a cursor works with.
	MinBufferSize = 16
)

// Pool is a bounded set of equally sized byte buffers.
// It is safe for concurrent use.
type Pool struct {
	bufs chan []byte
	size int
}

// NewPool creates a pool retaining at most capacity buffers of bufferSize bytes.
func NewPool(capacity, bufferSize int) *Pool {
	if capacity < 0 {
		capacity = 0
	}
	if bufferSize < MinBufferSize {
		bufferSize = MinBufferSize
	}
	return &Pool{
		bufs: make(chan []byte, capacity),
		size: bufferSize,
	}
}

var defaultPool = NewPool(DefaultPoolCapacity, DefaultBufferSize)

// DefaultPool returns the process-wide buffer pool.
func DefaultPool() *Pool { return defaultPool }

// BufferSize returns the size of the buffers handed out by p.
func (p *Pool) BufferSize() int { return p.size }

// Len returns the number of idle buffers.
func (p *Pool) Len() int { return len(p.bufs) }

// Get returns an idle buffer or allocates a new one. It never blocks.
func (p *Pool) Get() []byte {
	select {
	case b := <-p.bufs:
		return b
	default:
		return make([]byte, p.size)
	}
}

// Put returns b to the pool. Buffers of a different size, or buffers
// returned while the pool is full, are dropped. b must not be used afterwards.
func (p *Pool) Put(b []byte) {
	if cap(b) != p.size {
		return
	}
	select {
	case p.bufs <- b[:p.size]:
	default:
	}
}
