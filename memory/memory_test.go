package memory

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mhjnchetan/vn18/word"
)

func TestMemoryReadWrite(t *testing.T) {
	assert := assert.New(t)

	mem := &Memory{}

	w, err := mem.Read(0)
	assert.NoError(err)
	assert.True(w.IsZero())

	assert.NoError(mem.Write(word.FromUnsigned(42), 200))
	w, err = mem.Read(200)
	assert.NoError(err)
	assert.Equal(uint32(42), w.Unsigned())
}

func TestMemoryRange(t *testing.T) {
	assert := assert.New(t)

	mem := &Memory{}

	_, err := mem.Read(-1)
	assert.True(errors.Is(err, ErrAddressRange(-1)))

	_, err = mem.Read(Size)
	assert.Error(err)

	err = mem.Write(word.FromUnsigned(1), Size)
	assert.Error(err)

	_, _, err = mem.Block(-5)
	assert.Error(err)
}

func TestMemoryBlock(t *testing.T) {
	assert := assert.New(t)

	mem := &Memory{}
	for n := range 8 {
		mem.Write(word.FromUnsigned(uint32(100+n)), 40+n)
	}

	block, tag, err := mem.Block(43)
	assert.NoError(err)
	assert.Equal(40, tag)
	for n := range 8 {
		assert.Equal(uint32(100+n), block[n].Unsigned())
	}
}

func TestCacheReadMissAndHit(t *testing.T) {
	assert := assert.New(t)

	cache := NewCache(rand.New(rand.NewSource(1)))

	_, ok := cache.Read(10)
	assert.False(ok)

	line := &Line{Tag: 8}
	line.Words[2] = word.FromUnsigned(7)
	assert.True(cache.Add(line))

	w, ok := cache.Read(10)
	assert.True(ok)
	assert.Equal(uint32(7), w.Unsigned())

	// Addresses outside the line still miss.
	_, ok = cache.Read(16)
	assert.False(ok)
}

func TestCacheWrite(t *testing.T) {
	assert := assert.New(t)

	cache := NewCache(rand.New(rand.NewSource(1)))

	assert.False(cache.Write(word.FromUnsigned(9), 10))

	line := &Line{Tag: 8}
	cache.Add(line)
	assert.True(cache.Write(word.FromUnsigned(9), 10))

	w, ok := cache.Read(10)
	assert.True(ok)
	assert.Equal(uint32(9), w.Unsigned())
	assert.True(line.Dirty())
	assert.Equal(1, line.Writes())

	cache.UpdateWrites(10, -1)
	assert.False(line.Dirty())
}

func TestCacheEvictionSparesDirtyLines(t *testing.T) {
	assert := assert.New(t)

	cache := NewCache(rand.New(rand.NewSource(1)))

	// Fill all sixteen slots; every line but one is dirty.
	var clean *Line
	for n := range CacheLines {
		line := &Line{Tag: n * WordsPerLine}
		if n == 5 {
			clean = line
		} else {
			line.writes = 1
		}
		assert.True(cache.Add(line))
	}

	// Repeated adds may only ever replace the clean slot.
	for n := range 32 {
		line := &Line{Tag: (CacheLines + n) * WordsPerLine}
		assert.True(cache.Add(line))
		for _, l := range cache.Lines() {
			if l.Dirty() {
				assert.NotEqual(line.Tag, l.Tag)
			}
		}
		assert.NotContains(cache.Lines(), clean)
		clean = line
	}
}

func TestCacheAllDirtyRefusesAdd(t *testing.T) {
	assert := assert.New(t)

	cache := NewCache(rand.New(rand.NewSource(1)))
	for n := range CacheLines {
		cache.Add(&Line{Tag: n * WordsPerLine, writes: 1})
	}

	assert.False(cache.Add(&Line{Tag: 512}))

	cache.UpdateWrites(3*WordsPerLine, -1)
	assert.True(cache.Add(&Line{Tag: 512}))
}

func TestBusRoundTrip(t *testing.T) {
	assert := assert.New(t)

	bus := NewBus()
	defer bus.Stop()

	for _, addr := range []int{0, 7, 8, 200, MaxAddr} {
		w := word.FromUnsigned(uint32(addr*3 + 1))
		assert.NoError(bus.Write(w, addr))
		bus.Drain()

		got, err := bus.Read(addr)
		assert.NoError(err)
		assert.Equal(w, got)

		// After a drain the backing store agrees with the cache.
		direct, err := bus.Inspect(addr)
		assert.NoError(err)
		assert.Equal(w, direct)
	}
}

func TestBusRange(t *testing.T) {
	assert := assert.New(t)

	bus := NewBus()
	defer bus.Stop()

	_, err := bus.Read(-1)
	assert.Error(err)
	assert.Error(bus.Write(word.FromUnsigned(1), Size))
}

func TestBusLastWriteWins(t *testing.T) {
	assert := assert.New(t)

	bus := NewBus()
	defer bus.Stop()

	for n := range uint32(64) {
		assert.NoError(bus.Write(word.FromUnsigned(n), 100))
	}
	bus.Drain()

	w, err := bus.Inspect(100)
	assert.NoError(err)
	assert.Equal(uint32(63), w.Unsigned())
}

func TestBusWritesCounterMatchesQueue(t *testing.T) {
	assert := assert.New(t)

	bus := NewBus()
	defer bus.Stop()

	// Burst writes across several lines, then drain; every line must
	// come back clean and coherent with main memory.
	for n := range 256 {
		addr := (n * 13) % 512
		assert.NoError(bus.Write(word.FromUnsigned(uint32(n)), addr))
	}
	bus.Drain()

	assert.Equal(0, bus.Pending())
	for _, line := range bus.Cache().Lines() {
		assert.Equal(0, line.Writes(), "line tag %v", line.Tag)
		for n, w := range line.Words {
			direct, err := bus.Inspect(line.Tag + n)
			assert.NoError(err)
			assert.Equal(direct, w, "address %v", line.Tag+n)
		}
	}
}

func TestBusStopDrains(t *testing.T) {
	assert := assert.New(t)

	bus := NewBus()
	for n := range 32 {
		assert.NoError(bus.Write(word.FromUnsigned(uint32(n)), n))
	}
	bus.Stop()

	for n := range 32 {
		w, err := bus.Inspect(n)
		assert.NoError(err)
		assert.Equal(uint32(n), w.Unsigned())
	}
}
