package ocean

import "oceancl/internal/compute"

// PingPong alternates two images. Read is the current source and Write the
// destination; Swap flips them.
type PingPong struct {
	imgs   [2]compute.Image
	parity uint8
}

// NewPingPong starts with a as the read side.
func NewPingPong(a, b compute.Image) PingPong {
	return PingPong{imgs: [2]compute.Image{a, b}}
}

func (p *PingPong) Read() compute.Image  { return p.imgs[p.parity] }
func (p *PingPong) Write() compute.Image { return p.imgs[p.parity^1] }
func (p *PingPong) Swap()                { p.parity ^= 1 }
func (p *PingPong) Reset()               { p.parity = 0 }

// Parity is the index of the read side.
func (p *PingPong) Parity() int { return int(p.parity) }

// At returns image i of the pair.
func (p *PingPong) At(i int) compute.Image { return p.imgs[i&1] }
