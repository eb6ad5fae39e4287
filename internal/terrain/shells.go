package terrain

import "iter"

// ShellCursor enumerates chunk coordinates around a center in increasing
// Chebyshev shells, r = 0 up to and including maxRadius. Within a shell it
// walks x, then y, then z in ascending order and skips the shell's
// interior. The cursor keeps its position between calls, so a caller can
// pull a few coordinates per tick and resume on the next.
type ShellCursor struct {
	center    ChunkCoord
	maxRadius int

	r       int
	x, y, z int
	done    bool
}

// NewShellCursor creates a cursor positioned at center.
func NewShellCursor(center ChunkCoord, maxRadius int) *ShellCursor {
	c := &ShellCursor{}
	c.Reset(center, maxRadius)
	return c
}

// Reset restarts the enumeration around a new center.
func (c *ShellCursor) Reset(center ChunkCoord, maxRadius int) {
	c.center = center
	c.maxRadius = maxRadius
	c.r = 0
	c.x, c.y, c.z = 0, 0, 0
	c.done = maxRadius < 0
}

// Center returns the coordinate the shells are built around.
func (c *ShellCursor) Center() ChunkCoord { return c.center }

// Radius returns the shell the cursor is currently in.
func (c *ShellCursor) Radius() int { return c.r }

// Done reports whether every shell has been produced.
func (c *ShellCursor) Done() bool { return c.done }

// Next returns the next coordinate, or false once all shells are exhausted.
func (c *ShellCursor) Next() (ChunkCoord, bool) {
	if c.done {
		return ChunkCoord{}, false
	}
	out := c.center.Add(ChunkCoord{X: c.x, Y: c.y, Z: c.z})
	c.advance()
	return out, true
}

func (c *ShellCursor) advance() {
	r := c.r
	switch {
	case c.z < r:
		// cells strictly inside the shell in x and y only exist on the z faces
		if abs(c.x) < r && abs(c.y) < r {
			c.z = r
		} else {
			c.z++
		}
		return
	case c.y < r:
		c.y++
	case c.x < r:
		c.x++
		c.y = -r
	default:
		c.r++
		if c.r > c.maxRadius {
			c.done = true
			return
		}
		r = c.r
		c.x, c.y = -r, -r
	}
	c.z = -r
}

// Remaining yields the coordinates the cursor has not produced yet,
// advancing it as they are consumed.
func (c *ShellCursor) Remaining() iter.Seq[ChunkCoord] {
	return func(yield func(ChunkCoord) bool) {
		for {
			coord, ok := c.Next()
			if !ok || !yield(coord) {
				return
			}
		}
	}
}

// ShellSize is the number of coordinates in shell r.
func ShellSize(r int) int {
	if r == 0 {
		return 1
	}
	outer := 2*r + 1
	inner := 2*r - 1
	return outer*outer*outer - inner*inner*inner
}
