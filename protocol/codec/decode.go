package codec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/anidbgo/anidbclient/protocol/perr"
)

// DecoderState is the response decoder's state machine (spec §4.6.2).
type DecoderState int

const (
	Idle DecoderState = iota
	Buffering
	Complete
)

func (s DecoderState) String() string {
	switch s {
	case Buffering:
		return "buffering"
	case Complete:
		return "complete"
	default:
		return "idle"
	}
}

var headerLine = regexp.MustCompile(`^(\d{3}) (.*)$`)

// loginPrefix is the literal truncated start of "200 LOGIN ACCEPTED"
// that must never be mistaken for a complete response on its own
// (spec §4.6.2).
const loginPrefix = "200 LOGIN"

// Response is one fully decoded AniDB reply.
type Response struct {
	Code    int
	Message string
	Fields  []string
}

// Decoder accumulates raw bytes across datagrams and emits Responses
// once a complete one has been recognized (spec §4.6.2). It is not
// safe for concurrent use; the protocol client drives one Decoder per
// connection serially (spec §5 "strict request-response").
type Decoder struct {
	state DecoderState
	buf   []byte
	max   int // bound: 10x MaxPacketSize
}

// NewDecoder builds a Decoder with the spec's default 10x-MaxPacketSize bound.
func NewDecoder() *Decoder {
	return &Decoder{max: 10 * MaxPacketSize}
}

// State returns the decoder's current state.
func (d *Decoder) State() DecoderState { return d.state }

// Feed appends p to the buffer and attempts to recognize a complete
// response. It returns (resp, true, nil) once one is complete, or
// (zero, false, nil) if more bytes are needed. A hard error is
// returned for buffer overflow or an invalid-and-complete byte
// sequence.
func (d *Decoder) Feed(p []byte) (Response, bool, error) {
	d.buf = append(d.buf, p...)
	if len(d.buf) > d.max {
		d.state = Idle
		d.buf = nil
		return Response{}, false, perr.ErrBufferOverflow
	}
	d.state = Buffering

	if !utf8.Valid(d.buf) {
		if !incompleteUTF8Tail(d.buf) {
			d.state = Idle
			bad := d.buf
			d.buf = nil
			return Response{}, false, &perr.DecodingError{Msg: fmt.Sprintf("invalid UTF-8 in %q", bad)}
		}
		// Incomplete trailing sequence: wait for more bytes.
		return Response{}, false, nil
	}

	text := string(d.buf)
	complete, headerEnd := isComplete(text)
	if !complete {
		return Response{}, false, nil
	}

	resp, err := parseResponse(text[:headerEnd])
	d.state = Idle
	d.buf = nil
	if err != nil {
		return Response{}, false, err
	}
	d.state = Complete
	return resp, true, nil
}

// incompleteUTF8Tail reports whether the invalid UTF-8 in buf is
// explained entirely by a multi-byte sequence truncated at the end of
// the buffer (spec §4.6.2: "invalid-but-incomplete ... buffer and
// wait"), as opposed to a genuinely malformed sequence earlier on.
func incompleteUTF8Tail(buf []byte) bool {
	valid := buf
	for len(valid) > 0 && !utf8.Valid(valid) {
		valid = valid[:len(valid)-1]
	}
	trimmed := len(buf) - len(valid)
	return trimmed > 0 && trimmed < utf8.UTFMax
}

// isComplete reports whether text (valid UTF-8, possibly multi-line)
// represents a complete response, and where the logical end of that
// response falls (spec §4.6.2: ends in \n, or is a well-formed header
// not equal to the bare "200 LOGIN" truncation).
//
// A header-only response (no pipe-delimited data lines) is recognized
// by its own trailing newline. A response that carries data lines
// (spec §4.6.4's 200/210/220/230/etc.) arrives, by wire convention,
// without a final trailing newline; such a response is recognized
// once its header line is well-formed and at least one more line has
// begun to arrive — i.e. text holds more than just the header. This
// mirrors the worked example in spec §8 (a two-part "200 LOGIN" /
// " ACCEPTED\ndata" feed) but does not re-verify completeness if the
// data line itself is split across further Feed calls; see DESIGN.md.
func isComplete(text string) (bool, int) {
	if strings.HasSuffix(text, "\n") {
		return true, len(strings.TrimSuffix(text, "\n"))
	}
	if text == loginPrefix {
		return false, 0
	}
	first := firstLine(text)
	if first != text && headerLine.MatchString(first) {
		return true, len(text)
	}
	return false, 0
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func parseResponse(text string) (Response, error) {
	lines := strings.Split(text, "\n")
	m := headerLine.FindStringSubmatch(lines[0])
	if m == nil {
		return Response{}, &perr.DecodingError{Msg: fmt.Sprintf("malformed header %q", lines[0])}
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return Response{}, &perr.DecodingError{Msg: fmt.Sprintf("bad response code %q", m[1])}
	}

	resp := Response{Code: code, Message: m[2]}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		resp.Fields = append(resp.Fields, strings.Split(line, "|")...)
	}
	return resp, nil
}
