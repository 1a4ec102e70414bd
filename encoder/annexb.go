package encoder

import "go2tv.app/screenpump/internal/fifo"

const (
	nalTypeHEVCAUD = 35
	nalTypeH264AUD = 9
)

// startCode finds the next 00 00 01 at or after from. It returns the index of
// the first byte of the start code, widened to include a leading zero of a
// four-byte start code, and the offset of the NAL header byte. pos is -1 when
// no complete start code plus header byte is present.
func startCode(b []byte, from int) (pos, header int) {
	for i := from; i+3 < len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 || b[i+2] != 1 {
			continue
		}
		pos = i
		if i > from && b[i-1] == 0 {
			pos = i - 1
		}
		return pos, i + 3
	}
	return -1, -1
}

func nalType(codec Codec, header byte) int {
	if codec == CodecH264 {
		return int(header & 0x1f)
	}
	return int(header>>1) & 0x3f
}

func isAUD(codec Codec, header byte) bool {
	if codec == CodecH264 {
		return nalType(codec, header) == nalTypeH264AUD
	}
	return nalType(codec, header) == nalTypeHEVCAUD
}

// SplitNALUnits splits an Annex B byte stream into NAL units, each keeping its
// start code. Bytes before the first start code are dropped.
func SplitNALUnits(b []byte) [][]byte {
	var units [][]byte
	pos, header := startCode(b, 0)
	for pos >= 0 {
		next, nextHeader := startCode(b, header)
		if next < 0 {
			units = append(units, b[pos:])
			break
		}
		units = append(units, b[pos:next])
		pos, header = next, nextHeader
	}
	return units
}

// auCutter buffers an Annex B stream and cuts it into access units at access
// unit delimiters.
type auCutter struct {
	codec Codec
	buf   *fifo.FIFO
	// scan resumes here; bytes before it hold no AUD after the first one
	scan int
}

func newAUCutter(codec Codec) *auCutter {
	return &auCutter{codec: codec, buf: fifo.New(256 * 1024)}
}

func (c *auCutter) Push(b []byte) {
	c.buf.Push(b)
}

// Next returns the next complete access unit: everything from one AUD up to
// the following AUD. ok is false until a following AUD has arrived.
func (c *auCutter) Next() ([]byte, bool) {
	data := c.buf.Peek()

	first, firstHeader := c.findAUD(data, 0)
	if first < 0 {
		return nil, false
	}
	if first > 0 {
		// Leading bytes without a delimiter belong to no unit we can time.
		c.buf.Pop(first, make([]byte, first))
		c.scan = 0
		data = c.buf.Peek()
		firstHeader -= first
	}

	from := firstHeader
	if c.scan > from {
		from = c.scan
	}
	next, _ := c.findAUD(data, from)
	if next < 0 {
		// keep a few bytes of overlap for a start code split across pushes
		c.scan = max(firstHeader, len(data)-5)
		return nil, false
	}

	c.scan = 0
	return c.buf.Next(next), true
}

// Drain returns whatever is left, the final access unit of the stream.
func (c *auCutter) Drain() []byte {
	c.scan = 0
	if c.buf.Len() == 0 {
		return nil
	}
	return c.buf.Next(c.buf.Len())
}

func (c *auCutter) findAUD(data []byte, from int) (int, int) {
	for {
		pos, header := startCode(data, from)
		if pos < 0 {
			return -1, -1
		}
		if isAUD(c.codec, data[header]) {
			return pos, header
		}
		from = header
	}
}
