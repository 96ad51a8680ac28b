package tracer

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"sync"
)

// IDGenerator produces the random identifiers used for trace and span IDs.
// It is an external collaborator so tests can substitute a deterministic
// sequence.
type IDGenerator interface {
	// GenerateID returns a new 64-bit identifier, never zero.
	GenerateID() uint64
}

// randIDGenerator mirrors ddtrace/tracer/rand.go's pooled *rand.Rand
// approach: a fresh, crypto-seeded source per pool slot avoids both the
// cost of a mutex-guarded global source and the correlation risk of a
// single shared seed across goroutines.
type randIDGenerator struct {
	pool sync.Pool
}

func newRandIDGenerator() *randIDGenerator {
	return &randIDGenerator{
		pool: sync.Pool{
			New: func() interface{} {
				return mathrand.New(mathrand.NewSource(cryptoSeed()))
			},
		},
	}
}

func (g *randIDGenerator) GenerateID() uint64 {
	r := g.pool.Get().(*mathrand.Rand)
	defer g.pool.Put(r)
	id := r.Uint64()
	for id == 0 {
		id = r.Uint64()
	}
	return id
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return 1
	}
	v := int64(binary.BigEndian.Uint64(b[:]))
	if v < 0 {
		v = -v
	}
	if v == 0 {
		v = 1
	}
	return v
}
