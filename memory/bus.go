package memory

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/mhjnchetan/vn18/word"
)

// BufferDepth is the capacity of the write buffer.
const BufferDepth = 4

// Element is a single pending write: the target address, the word to
// persist, and the tag of the cache line that produced it.
type Element struct {
	Address int
	Word    word.Word
	LineTag int
}

// Bus is the execution engine's view of storage. It owns the main
// memory, the L1 cache, and the write buffer, and runs the memory
// controller on its own goroutine.
//
// One mutex serializes the cache and the buffer queue. The controller
// writes main memory outside the mutex; the dirty-line rule guarantees
// no read miss ever touches an address with a write still in flight.
type Bus struct {
	Verbose bool

	mem   *Memory
	cache *Cache

	mu       sync.Mutex
	notEmpty *sync.Cond // controller waits here for work
	flushed  *sync.Cond // producer waits here for space or clean lines
	queue    []Element
	pending  int // enqueued but not yet durable
	stopping bool
	done     chan struct{}
}

// NewBus creates the storage hierarchy and starts the memory
// controller.
func NewBus() (b *Bus) {
	b = &Bus{
		mem:   &Memory{},
		cache: NewCache(rand.New(rand.NewSource(time.Now().UnixNano()))),
		done:  make(chan struct{}),
	}
	b.notEmpty = sync.NewCond(&b.mu)
	b.flushed = sync.NewCond(&b.mu)

	go b.controller()

	return
}

// controller drains the write buffer: dequeue, persist to main memory,
// mark the cache line one write cleaner, wake anyone waiting on the
// flush. Exits once stopped and empty.
func (b *Bus) controller() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.stopping {
			b.notEmpty.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			close(b.done)
			return
		}
		e := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		if b.Verbose {
			log.Printf("memctl: flushing %v to address %v", e.Word, e.Address)
		}
		b.mem.Write(e.Word, e.Address)

		b.mu.Lock()
		b.cache.UpdateWrites(e.Address, -1)
		b.pending--
		b.flushed.Broadcast()
		b.mu.Unlock()
	}
}

// fill fetches the block containing addr from main memory and inserts
// it as a clean cache line, stalling while every line is dirty.
func (b *Bus) fill(addr int) (line *Line, err error) {
	block, tag, err := b.mem.Block(addr)
	if err != nil {
		return
	}
	line = &Line{Tag: tag, Words: block}

	b.mu.Lock()
	for !b.cache.Add(line) {
		if b.Verbose {
			log.Printf("cache: all lines dirty, stalling for a flush")
		}
		b.flushed.Wait()
	}
	b.mu.Unlock()

	return
}

// Read returns the word at addr, filling the cache on a miss.
func (b *Bus) Read(addr int) (w word.Word, err error) {
	if addr < 0 || addr > MaxAddr {
		err = ErrAddressRange(addr)
		return
	}

	b.mu.Lock()
	w, ok := b.cache.Read(addr)
	b.mu.Unlock()
	if ok {
		return
	}

	if b.Verbose {
		log.Printf("cache: read miss at address %v", addr)
	}
	line, err := b.fill(addr)
	if err != nil {
		return
	}
	w = line.Words[addr-line.Tag]
	return
}

// Write stores a word at addr through the cache and write buffer. On a
// miss the block is filled first, then the write retried. Blocks while
// the buffer is full.
func (b *Bus) Write(w word.Word, addr int) (err error) {
	if addr < 0 || addr > MaxAddr {
		err = ErrAddressRange(addr)
		return
	}

	for {
		b.mu.Lock()
		for len(b.queue) >= BufferDepth {
			if b.Verbose {
				log.Printf("writebuffer: full, stalling for a flush")
			}
			b.flushed.Wait()
		}
		if line := b.cache.lookup(addr); line != nil {
			line.Words[addr-line.Tag] = w
			line.writes++
			b.queue = append(b.queue, Element{Address: addr, Word: w, LineTag: line.Tag})
			b.pending++
			b.notEmpty.Signal()
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		if b.Verbose {
			log.Printf("cache: write miss at address %v", addr)
		}
		_, err = b.fill(addr)
		if err != nil {
			return
		}
	}
}

// Inspect reads main memory directly, bypassing the cache. External
// observers using it may lag the program by up to the buffer depth.
func (b *Bus) Inspect(addr int) (word.Word, error) {
	return b.mem.Read(addr)
}

// Cache exposes the L1 cache for inspection.
func (b *Bus) Cache() *Cache {
	return b.cache
}

// Pending returns the number of writes not yet durable.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Drain blocks until every buffered write has reached main memory.
func (b *Bus) Drain() {
	b.mu.Lock()
	for b.pending > 0 {
		b.flushed.Wait()
	}
	b.mu.Unlock()
}

// Stop tells the controller to finish draining and exit, then waits for
// it.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopping = true
	b.notEmpty.Signal()
	b.mu.Unlock()
	<-b.done
	if b.Verbose {
		log.Printf("memctl: shut down")
	}
}
