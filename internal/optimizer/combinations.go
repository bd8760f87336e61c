package optimizer

// Combinations walks every k-element subset of {0, ..., n-1} in lexicographic
// order of ascending index sets. It allocates once; the slice returned by
// Indices is overwritten by the next call to Next.
type Combinations struct {
	n, k    int
	idx     []int
	started bool
	done    bool
}

func NewCombinations(n, k int) *Combinations {
	c := &Combinations{n: n, k: k}
	if k > 0 {
		c.idx = make([]int, k)
	}
	return c
}

// Next advances to the following subset and reports whether one exists.
func (c *Combinations) Next() bool {
	if c.done {
		return false
	}
	if !c.started {
		c.started = true
		if c.k <= 0 || c.k > c.n {
			c.done = true
			return false
		}
		for i := range c.idx {
			c.idx[i] = i
		}
		return true
	}

	// rightmost position that can still move right
	i := c.k - 1
	for i >= 0 && c.idx[i] == c.n-c.k+i {
		i--
	}
	if i < 0 {
		c.done = true
		return false
	}
	c.idx[i]++
	for j := i + 1; j < c.k; j++ {
		c.idx[j] = c.idx[j-1] + 1
	}
	return true
}

func (c *Combinations) Indices() []int { return c.idx }

// Reset restarts the sequence from the first subset.
func (c *Combinations) Reset() {
	c.started = false
	c.done = false
}
