package formula

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/they4kman/experimentation/machine-learning/genetic-programming/pgp"
)

// Compiler compiles programs, reusing formulas of structurally equal
// programs. Safe for concurrent use.
type Compiler struct {
	cache *lru.Cache
}

// NewCompiler keeps up to size compiled formulas
func NewCompiler(size int) (*Compiler, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Compiler{cache: cache}, nil
}

func (c *Compiler) Compile(p *pgp.Program) (*Formula, error) {
	source, err := render(p, func(v pgp.Variable) string { return identifier(v.Index) })
	if err != nil {
		return nil, err
	}

	// Names are part of the key as the same columns may be named differently
	key := source + "\x00" + p.String()
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*Formula), nil
	}

	f, err := compile(p, source)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, f)
	return f, nil
}

// Len is the number of cached formulas
func (c *Compiler) Len() int {
	return c.cache.Len()
}
