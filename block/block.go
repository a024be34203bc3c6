// Package block implements a fixed-size byte-block FIFO. No other
// package of the server uses it: the Telnet engine queues its command
// and data output in plain byte slices.
package block

import "sync"

// Size is the fixed capacity of a single block, matching the
// original server's BlockSize constant.
const Size = 1024

type chunk struct {
	next   *chunk
	data   []byte // reset by getChunk, otherwise unused; unread bytes are buf[read:free]
	free   int    // write offset within buf
	read   int    // read offset within buf (data consumed up to here)
	buf    [Size]byte
}

var chunkPool = sync.Pool{New: func() any { return new(chunk) }}

func getChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.next = nil
	c.free = 0
	c.read = 0
	c.data = c.buf[:0]
	return c
}

func putChunk(c *chunk) {
	c.next = nil
	chunkPool.Put(c)
}

// Buffer is an ordered FIFO of fixed-size blocks. A Buffer is used by
// one goroutine at a time; it provides no synchronization of its own.
type Buffer struct {
	head *chunk
	tail *chunk
	size int
}

// Len reports the number of unread bytes currently buffered.
func (b *Buffer) Len() int { return b.size }

// Empty reports whether the buffer holds no unread bytes.
func (b *Buffer) Empty() bool { return b.size == 0 }

// Write appends bytes to the tail of the buffer, allocating new
// blocks from the shared pool as needed.
func (b *Buffer) Write(p []byte) {
	for len(p) > 0 {
		if b.tail == nil || b.tail.free >= Size {
			c := getChunk()
			if b.tail == nil {
				b.head = c
			} else {
				b.tail.next = c
			}
			b.tail = c
		}
		n := copy(b.tail.buf[b.tail.free:], p)
		b.tail.free += n
		b.size += n
		p = p[n:]
	}
}

// WriteByte appends a single byte to the buffer.
func (b *Buffer) WriteByte(c byte) {
	b.Write([]byte{c})
}

// Read consumes up to len(p) bytes from the head of the buffer,
// returning the number of bytes copied. Exhausted blocks are
// returned to the shared pool.
func (b *Buffer) Read(p []byte) int {
	n := 0
	for n < len(p) && b.head != nil {
		h := b.head
		avail := h.free - h.read
		if avail == 0 {
			b.head = h.next
			if b.head == nil {
				b.tail = nil
			}
			putChunk(h)
			continue
		}
		c := copy(p[n:], h.buf[h.read:h.free])
		h.read += c
		n += c
		b.size -= c
	}
	return n
}

// Flatten drains the entire buffer into a single contiguous string,
// freeing every block back to the pool.
func (b *Buffer) Flatten() string {
	if b.size == 0 {
		return ""
	}
	out := make([]byte, b.size)
	n := b.Read(out)
	return string(out[:n])
}

// Reset discards all buffered bytes, returning every block to the
// shared pool.
func (b *Buffer) Reset() {
	for b.head != nil {
		h := b.head
		b.head = h.next
		putChunk(h)
	}
	b.tail = nil
	b.size = 0
}
