package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"time"
)

// DefaultMaxFrameSize bounds the data of a single event.
const DefaultMaxFrameSize = 1 << 20

// readBufferSize is the bufio buffer; longer lines are read in pieces.
const readBufferSize = 64 << 10

// Framing errors.
var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Frame is one server-sent event.
type Frame struct {
	// Event is the event type ("" for the default type).
	Event string

	// ID is the event id, or "" when the event carried none.
	ID string

	// Data holds the data lines joined with '\n'.
	Data []byte

	// Retry is the reconnect hint, or 0 when absent.
	Retry time.Duration
}

// FrameReader reads server-sent events from a stream body.
//
// Events are delimited by blank lines. "data:" lines are joined with
// newlines, "event:", "id:" and "retry:" set the matching fields, and
// comment lines starting with ':' are ignored. An event cut off by EOF is
// discarded.
type FrameReader struct {
	br      *bufio.Reader
	maxSize int
	line    []byte
}

// NewFrameReader creates a reader. A maxSize of 0 uses DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{
		br:      bufio.NewReaderSize(r, readBufferSize),
		maxSize: maxSize,
	}
}

// ReadFrame returns the next event. It returns io.EOF at the end of the
// stream and ErrFrameTooLarge when an event's data or a single line
// exceeds the size limit; the reader is unusable after that.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	var f Frame
	var data []byte
	hasData := false
	hasField := false

	for {
		line, err := fr.readLine()
		if err != nil {
			return Frame{}, err
		}

		if len(line) == 0 {
			if !hasField {
				continue
			}
			f.Data = data
			return f, nil
		}
		if line[0] == ':' {
			continue
		}

		field, value, found := bytes.Cut(line, []byte(":"))
		if found {
			value = bytes.TrimPrefix(value, []byte(" "))
		}

		switch string(field) {
		case "data":
			if hasData {
				data = append(data, '\n')
			}
			data = append(data, value...)
			hasData = true
			if len(data) > fr.maxSize {
				return Frame{}, ErrFrameTooLarge
			}
		case "event":
			f.Event = string(value)
		case "id":
			if bytes.IndexByte(value, 0) < 0 {
				f.ID = string(value)
			}
		case "retry":
			ms, err := strconv.Atoi(string(value))
			if err != nil || ms < 0 {
				continue
			}
			f.Retry = time.Duration(ms) * time.Millisecond
		default:
			continue
		}
		hasField = true
	}
}

// readLine returns the next line without its terminator. The returned
// slice is valid until the next call.
func (fr *FrameReader) readLine() ([]byte, error) {
	fr.line = fr.line[:0]
	for {
		chunk, err := fr.br.ReadSlice('\n')
		if len(fr.line)+len(chunk) > fr.maxSize+2 {
			return nil, ErrFrameTooLarge
		}
		fr.line = append(fr.line, chunk...)

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			// A final line without terminator still ends at EOF; the
			// event it belongs to is incomplete and gets dropped.
			return nil, err
		}
		return trimEOL(fr.line), nil
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
