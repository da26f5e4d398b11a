// Package codec implements the AniDB UDP wire format from spec §4.6:
// command encoding, the stateful response decoder, and fragment
// assembly. Grounded on the original Rust source's protocol/codec
// package and cross-checked against the example pack's own hand-rolled
// UDP client for the line-protocol framing idiom.
package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/anidbgo/anidbclient/protocol/perr"
)

// MaxPacketSize is the maximum UDP datagram payload AniDB accepts
// (spec §4.6.1, §6.1).
const MaxPacketSize = 1400

// Command is a single outgoing request: a name plus ordered
// parameters. Params preserves insertion order so encoding is
// deterministic and matches whatever order the caller built the
// command in (spec §8's round-trip property is modulo ordering-
// insignificant keys, not a specific serialization order).
type Command struct {
	Name    string
	Params  []Param
	Session string // appended as s=<session> when non-empty
}

// Param is one key=value pair of a Command.
type Param struct {
	Key   string
	Value string
}

// NewCommand builds a Command with no parameters yet.
func NewCommand(name string) *Command {
	return &Command{Name: name}
}

// Add appends a parameter, returning the Command for chaining.
func (c *Command) Add(key, value string) *Command {
	c.Params = append(c.Params, Param{Key: key, Value: value})
	return c
}

// WithSession sets the session tag appended as the final parameter.
func (c *Command) WithSession(session string) *Command {
	c.Session = session
	return c
}

// Encode serializes c as "NAME k=v&k=v[&s=session]\n", percent-
// encoding '&', '=', and '\n' in values (spec §6.1's minimum escape
// set). It returns PacketTooLargeError if the result exceeds
// MaxPacketSize.
func Encode(c *Command) ([]byte, error) {
	var b strings.Builder
	b.WriteString(c.Name)
	if len(c.Params) > 0 || c.Session != "" {
		b.WriteByte(' ')
	}
	for i, p := range c.Params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(escape(p.Value))
	}
	if c.Session != "" {
		if len(c.Params) > 0 {
			b.WriteByte('&')
		}
		b.WriteString("s=")
		b.WriteString(escape(c.Session))
	}
	b.WriteByte('\n')

	out := []byte(b.String())
	if len(out) > MaxPacketSize {
		return nil, &perr.PacketTooLargeError{Size: len(out), Limit: MaxPacketSize}
	}
	return out, nil
}

var escaper = strings.NewReplacer(
	"&", "%26",
	"=", "%3D",
	"\n", "%0A",
)

func escape(v string) string {
	return escaper.Replace(v)
}

var unescaper = strings.NewReplacer(
	"%26", "&",
	"%3D", "=",
	"%0A", "\n",
)

func unescape(v string) string {
	return unescaper.Replace(v)
}

// Decode parses raw (without its trailing newline) back into a
// parameter map, for the encode/decode round-trip property (spec §8).
// The command name is returned separately; "s" is included in the map
// like any other parameter.
func Decode(raw []byte) (name string, params map[string]string, err error) {
	s := strings.TrimSuffix(string(raw), "\n")
	sp := strings.IndexByte(s, ' ')
	if sp < 0 {
		return s, map[string]string{}, nil
	}
	name = s[:sp]
	params = map[string]string{}
	for _, kv := range strings.Split(s[sp+1:], "&") {
		if kv == "" {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return "", nil, fmt.Errorf("codec: malformed parameter %q", kv)
		}
		params[kv[:eq]] = unescape(kv[eq+1:])
	}
	return name, params, nil
}

// paramKeys returns m's keys sorted.
func paramKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
