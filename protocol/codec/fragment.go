package codec

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/anidbgo/anidbclient/protocol/perr"
)

// 701 and 702 fragment markers are treated identically by the
// assembler (spec §4.6.3); the distinction between them belongs to
// the codes the wire actually uses and carries no assembly-relevant
// difference here.
const (
	fragmentExpiry      = 30 * time.Second
	defaultMaxAssemblies = 10
)

type assembly struct {
	total   int
	parts   map[int]string
	started time.Time
}

// Assembler reassembles responses split across multiple 701/702
// fragment datagrams (spec §4.6.3). Fragments for a given msgid may
// arrive in any order; once all of a msgid's fragments have arrived
// they are joined in sequence order and the msgid's state is dropped.
// Assemblies older than 30s, or started once MaxAssemblies are already
// in flight, are rejected so a peer cannot exhaust memory with
// never-completed sequences.
type Assembler struct {
	MaxAssemblies int
	assemblies    map[string]*assembly
	now           func() time.Time
}

// NewAssembler builds an Assembler with the spec default cap of 10
// concurrent in-flight assemblies.
func NewAssembler() *Assembler {
	return &Assembler{
		MaxAssemblies: defaultMaxAssemblies,
		assemblies:    make(map[string]*assembly),
		now:           time.Now,
	}
}

// Feed parses raw as one fragment datagram and returns the joined
// response text once every fragment of its msgid has arrived, along
// with true. It returns ("", false, nil) while a msgid is still
// incomplete.
func (a *Assembler) Feed(raw string) (string, bool, error) {
	a.evictExpired()

	msgid, n, total, body, err := parseFragment(raw)
	if err != nil {
		return "", false, err
	}

	as, ok := a.assemblies[msgid]
	if !ok {
		if len(a.assemblies) >= a.MaxAssemblies {
			return "", false, &perr.FragmentationError{Msg: "too many concurrent fragment assemblies"}
		}
		as = &assembly{total: total, parts: make(map[int]string), started: a.now()}
		a.assemblies[msgid] = as
	}
	if as.total != total {
		delete(a.assemblies, msgid)
		return "", false, &perr.FragmentationError{Msg: "fragment total changed mid-assembly for msgid " + msgid}
	}
	as.parts[n] = body

	if len(as.parts) < as.total {
		return "", false, nil
	}

	ordered := make([]string, as.total)
	for i := 0; i < as.total; i++ {
		part, ok := as.parts[i]
		if !ok {
			return "", false, nil
		}
		ordered[i] = part
	}
	delete(a.assemblies, msgid)
	return strings.Join(ordered, "\n"), true, nil
}

func (a *Assembler) evictExpired() {
	cutoff := a.now().Add(-fragmentExpiry)
	for id, as := range a.assemblies {
		if as.started.Before(cutoff) {
			delete(a.assemblies, id)
		}
	}
}

// parseFragment splits a raw fragment datagram into its msgid,
// position, total fragment count, and body (everything after the
// marker's own header line). The wire form is
// "701 FRAGMENT <msgid> <n>/<total>\n<body>".
func parseFragment(raw string) (msgid string, n, total int, body string, err error) {
	nl := strings.IndexByte(raw, '\n')
	header := raw
	if nl >= 0 {
		header = raw[:nl]
		body = raw[nl+1:]
	}

	fields := strings.Fields(header)
	if len(fields) != 4 || fields[1] != "FRAGMENT" {
		return "", 0, 0, "", &perr.FragmentationError{Msg: "malformed fragment header " + strconv.Quote(header)}
	}
	msgid = fields[2]
	nTotal := strings.SplitN(fields[3], "/", 2)
	if len(nTotal) != 2 {
		return "", 0, 0, "", &perr.FragmentationError{Msg: "malformed fragment index " + strconv.Quote(fields[3])}
	}
	n, err1 := strconv.Atoi(nTotal[0])
	total, err2 := strconv.Atoi(nTotal[1])
	if err1 != nil || err2 != nil || total <= 0 || n < 0 || n >= total {
		return "", 0, 0, "", &perr.FragmentationError{Msg: "malformed fragment index " + strconv.Quote(fields[3])}
	}
	return msgid, n, total, body, nil
}

// pendingMsgids returns the msgids currently mid-assembly, sorted, for
// tests asserting eviction behavior.
func (a *Assembler) pendingMsgids() []string {
	ids := make([]string, 0, len(a.assemblies))
	for id := range a.assemblies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
