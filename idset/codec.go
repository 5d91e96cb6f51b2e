package idset

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//GLOBSET commands
const (
	cmdEnd     = 0x00
	cmdPush1   = 0x01
	cmdPush6   = 0x06
	cmdBitmask = 0x42
	cmdPop     = 0x50
	cmdRange   = 0x52
)

//commonBytes is the stack of high-order bytes shared by the commands that follow a Push.
//A push that completes a GLOBCNT is emitted as a value and never lands on the stack,
//so five bytes is the most it holds.
type commonBytes struct {
	buf    [GLOBCNTSize - 1]byte
	depth  int
	pushes [GLOBCNTSize - 1]int
	n      int
}

func (c *commonBytes) push(b []byte) {
	copy(c.buf[c.depth:], b)
	c.depth += len(b)
	c.pushes[c.n] = len(b)
	c.n++
}

func (c *commonBytes) pop() {
	c.n--
	c.depth -= c.pushes[c.n]
}

//value joins the stacked bytes with the low-order bytes in low
func (c *commonBytes) value(low []byte) GLOBCNT {
	var g GLOBCNT
	copy(g[:], c.buf[:c.depth])
	copy(g[c.depth:], low)
	return g
}

type globsetReader struct {
	buf   []byte
	stack commonBytes
	out   GLOBSET
	//sorted stays true while emitted ranges arrive in ascending, non overlapping order
	sorted bool
}

func (r *globsetReader) read(pos, n int) ([]byte, int, error) {
	if n > len(r.buf)-pos {
		return nil, pos, truncated(pos)
	}
	return r.buf[pos : pos+n], pos + n, nil
}

func (r *globsetReader) emit(rg Range) {
	if len(r.out) > 0 {
		last := &r.out[len(r.out)-1]
		switch {
		case rg.Start.Compare(last.End) <= 0:
			r.sorted = false
		case adjacent(*last, rg):
			last.End = rg.End
			return
		}
	}
	r.out = append(r.out, rg)
}

//DecodeGLOBSET replays the GLOBSET commands starting at pos up to and including End.
//It returns the formatted set and the position after End.
func DecodeGLOBSET(buf []byte, pos int, opts Options) (GLOBSET, int, error) {
	opts = opts.normalize()
	r := &globsetReader{buf: buf, sorted: true, out: GLOBSET{}}
	for {
		start := pos
		if pos >= len(buf) {
			return nil, start, truncated(pos)
		}
		cmd := buf[pos]
		pos++
		switch {
		case cmd >= cmdPush1 && cmd <= cmdPush6:
			n := int(cmd)
			if r.stack.depth+n > GLOBCNTSize {
				return nil, start, invalidCommand(start, "push %d onto %d stacked bytes", n, r.stack.depth)
			}
			b, next, err := r.read(pos, n)
			if err != nil {
				return nil, start, err
			}
			pos = next
			if r.stack.depth+n == GLOBCNTSize {
				r.emit(Singleton(r.stack.value(b)))
				continue
			}
			r.stack.push(b)
		case cmd == cmdPop:
			if r.stack.n == 0 {
				return nil, start, invalidCommand(start, "pop on an empty stack")
			}
			r.stack.pop()
		case cmd == cmdBitmask:
			if r.stack.depth != GLOBCNTSize-1 {
				return nil, start, invalidCommand(start, "bitmask needs 5 stacked bytes, have %d", r.stack.depth)
			}
			b, next, err := r.read(pos, 2)
			if err != nil {
				return nil, start, err
			}
			pos = next
			low, mask := b[0], b[1]
			r.emit(Singleton(r.stack.value([]byte{low})))
			for j := uint(0); j < 8; j++ {
				if mask&(1<<j) == 0 {
					continue
				}
				v := int(low) + int(j) + 1
				if v > 0xFF {
					return nil, start, invalidCommand(start, "bitmask 0x%02X from 0x%02X runs past the low byte", mask, low)
				}
				r.emit(Singleton(r.stack.value([]byte{byte(v)})))
			}
		case cmd == cmdRange:
			n := GLOBCNTSize - r.stack.depth
			lowb, next, err := r.read(pos, n)
			if err != nil {
				return nil, start, err
			}
			highb, next, err := r.read(next, n)
			if err != nil {
				return nil, start, err
			}
			pos = next
			rg := Range{Start: r.stack.value(lowb), End: r.stack.value(highb)}
			if rg.Start.Compare(rg.End) > 0 {
				return nil, start, invalidCommand(start, "range low %s above high %s", rg.Start, rg.End)
			}
			r.emit(rg)
		case cmd == cmdEnd:
			if r.stack.n != 0 {
				if opts.Strict {
					return nil, start, invalidCommand(start, "end with %d bytes on the stack", r.stack.depth)
				}
				opts.Logger.Warn("GLOBSET ends with bytes on the stack", zap.Int("offset", start), zap.Int("depth", r.stack.depth))
			}
			if !r.sorted {
				if opts.Strict {
					return nil, start, errors.Wrapf(ErrUnformattedGLOBSET, "offset %d: ranges out of order or overlapping", start)
				}
				opts.Logger.Warn("normalizing unformatted GLOBSET", zap.Int("offset", start), zap.Int("ranges", len(r.out)))
				r.out = r.out.Normalize()
			}
			return r.out, pos, nil
		default:
			return nil, start, invalidCommand(start, "unknown command 0x%02X", cmd)
		}
	}
}

//ParseGLOBSET decodes a buffer holding exactly one GLOBSET
func ParseGLOBSET(buf []byte, opts Options) (GLOBSET, error) {
	set, pos, err := DecodeGLOBSET(buf, 0, opts)
	if err != nil {
		return nil, err
	}
	if pos != len(buf) {
		return nil, invalidCommand(pos, "end is followed by %d bytes", len(buf)-pos)
	}
	return set, nil
}

//EncodeGLOBSET writes the command form of a formatted set
func EncodeGLOBSET(set GLOBSET) ([]byte, error) {
	return AppendGLOBSET(nil, set)
}

//AppendGLOBSET appends the command form of a formatted set to dst
func AppendGLOBSET(dst []byte, set GLOBSET) ([]byte, error) {
	if err := set.CheckFormatted(); err != nil {
		return nil, err
	}
	dst = encodeRanges(dst, set, 0)
	return append(dst, cmdEnd), nil
}

//encodeRanges writes ranges that all share their first depth bytes, which are already on the stack
func encodeRanges(dst []byte, set GLOBSET, depth int) []byte {
	if depth == GLOBCNTSize-1 {
		return encodeLowBytes(dst, set)
	}
	for i := 0; i < len(set); {
		r := set[i]
		if r.Start[depth] != r.End[depth] {
			dst = appendRange(dst, r, depth)
			i++
			continue
		}
		//ranges from i to j share the byte at depth
		j := i + 1
		for j < len(set) && set[j].Start[depth] == r.Start[depth] && set[j].End[depth] == r.Start[depth] {
			j++
		}
		group := set[i:j]
		common := commonPrefix(group, depth)
		switch {
		case depth+common == GLOBCNTSize:
			dst = append(dst, byte(common))
			dst = append(dst, r.Start[depth:]...)
		case len(group) == 1:
			dst = appendRange(dst, r, depth)
		default:
			dst = append(dst, byte(common))
			dst = append(dst, r.Start[depth:depth+common]...)
			dst = encodeRanges(dst, group, depth+common)
			dst = append(dst, cmdPop)
		}
		i = j
	}
	return dst
}

//encodeLowBytes writes ranges that differ only in the last byte, using a bitmask for clusters within 9 values
func encodeLowBytes(dst []byte, set GLOBSET) []byte {
	const last = GLOBCNTSize - 1
	for i := 0; i < len(set); {
		low := int(set[i].Start[last])
		j := i
		for j < len(set) && int(set[j].End[last]) <= low+8 {
			j++
		}
		if j-i >= 2 {
			var mask byte
			for _, r := range set[i:j] {
				for v := int(r.Start[last]); v <= int(r.End[last]); v++ {
					if v > low {
						mask |= 1 << uint(v-low-1)
					}
				}
			}
			dst = append(dst, cmdBitmask, byte(low), mask)
			i = j
			continue
		}
		r := set[i]
		if r.Start == r.End {
			dst = append(dst, cmdPush1, r.Start[last])
		} else {
			dst = append(dst, cmdRange, r.Start[last], r.End[last])
		}
		i++
	}
	return dst
}

func appendRange(dst []byte, r Range, depth int) []byte {
	dst = append(dst, cmdRange)
	dst = append(dst, r.Start[depth:]...)
	return append(dst, r.End[depth:]...)
}

//commonPrefix counts the bytes from depth on that every bound in the group shares
func commonPrefix(group GLOBSET, depth int) int {
	first := group[0].Start
	n := 0
	for k := depth; k < GLOBCNTSize; k++ {
		for _, r := range group {
			if r.Start[k] != first[k] || r.End[k] != first[k] {
				return n
			}
		}
		n++
	}
	return n
}
