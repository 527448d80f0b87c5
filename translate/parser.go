package translate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/seamline/ingest/errors"
)

// Packet sentinels. A well-formed feed file opens with Begin and closes
// with End; anything after End is ignored.
const (
	PacketBegin = "--==Begin==--"
	PacketEnd   = "--==End==--"

	// MaxLineBytes bounds a single packet line. Feed items are one JSON
	// object per line and partners have shipped lines approaching 100 KiB.
	MaxLineBytes = 120 * 1024
)

// PacketItem is one decoded feed line: the raw record plus its source
// descriptor.
type PacketItem struct {
	Data   map[string]interface{}
	Source map[string]interface{}

	// Position is the 1-based item index within the packet.
	Position int
}

// PacketParser reads a sentinel-framed, line-oriented feed file.
// Completeness is verified at construction: a file missing its End
// sentinel is rejected before any item is handed out, so a partial
// delivery never half-processes.
type PacketParser struct {
	scanner  *bufio.Scanner
	closer   io.Closer
	position int
	done     bool
}

// OpenPacket opens a feed file and verifies its framing.
func OpenPacket(path string) (*PacketParser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening packet %s", path)
	}

	if err := verifyComplete(f); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "rewinding packet")
	}

	parser, err := NewPacketParser(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	parser.closer = f
	return parser, nil
}

// NewPacketParser wraps an already-verified reader positioned at the top
// of the file and consumes the Begin sentinel.
func NewPacketParser(r io.Reader) (*PacketParser, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == PacketBegin {
			return &PacketParser{scanner: scanner}, nil
		}
		return nil, errors.Wrapf(errors.ErrIncompleteFile, "expected %s, found data", PacketBegin)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading packet")
	}
	return nil, errors.Wrap(errors.ErrIncompleteFile, "empty packet")
}

// verifyComplete scans the tail of the file for the End sentinel.
func verifyComplete(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "verifying packet")
	}

	// the sentinel plus trailing whitespace always fits in the last 4 KiB
	tailSize := int64(4096)
	offset := info.Size() - tailSize
	if offset < 0 {
		offset = 0
	}
	tail := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(tail, offset); err != nil && err != io.EOF {
		return errors.Wrap(err, "verifying packet")
	}

	if !bytes.Contains(tail, []byte(PacketEnd)) {
		return errors.Wrap(errors.ErrIncompleteFile, "missing end sentinel")
	}
	return nil
}

// Next returns the next item, or io.EOF at the End sentinel or end of
// input. A line that is not a JSON object with data and source keys is an
// invalid-input error.
func (p *PacketParser) Next() (*PacketItem, error) {
	if p.done {
		return nil, io.EOF
	}

	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" || line == PacketEnd {
			p.done = true
			return nil, io.EOF
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			return nil, errors.WrapInvalidInput(err, "malformed packet line")
		}

		data, ok := decoded["data"].(map[string]interface{})
		if !ok {
			return nil, errors.NewInvalidInputError("packet line missing data object")
		}
		source, _ := decoded["source"].(map[string]interface{})
		if source == nil {
			return nil, errors.NewInvalidInputError("packet line missing source object")
		}

		p.position++
		return &PacketItem{Data: data, Source: source, Position: p.position}, nil
	}

	p.done = true
	if err := p.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, errors.WrapInvalidInput(err, "packet line exceeds maximum length")
		}
		return nil, errors.Wrap(err, "reading packet")
	}
	return nil, io.EOF
}

// Count returns how many items have been handed out so far.
func (p *PacketParser) Count() int { return p.position }

// Close releases the underlying file when the parser owns one.
func (p *PacketParser) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
