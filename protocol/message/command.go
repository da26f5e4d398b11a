// Package message builds AniDB commands on top of protocol/codec and
// parses their typed responses (spec §4.6.4, §4.8). Grounded on
// _examples/original_source/anidb_client_core/src/protocol/messages/
// {file,mylist,response}.rs for the command builders, field masks, and
// the response-code routing table.
package message

import (
	"strconv"

	"github.com/anidbgo/anidbclient/protocol/codec"
)

// Default field masks (spec §4.8): fmask selects the FILE response's
// field set, amask selects the anime/episode name fields folded into
// it.
const (
	DefaultFmask = "78C8FEF8"
	DefaultAmask = "00E03000"
)

// NewAuth builds an AUTH command (spec §4.6.4: 200/201 on success).
func NewAuth(username, password, clientName string, clientVersion int) *codec.Command {
	return codec.NewCommand("AUTH").
		Add("user", username).
		Add("pass", password).
		Add("protover", "3").
		Add("client", clientName).
		Add("clientver", strconv.Itoa(clientVersion)).
		Add("enc", "UTF8")
}

// NewLogout builds a LOGOUT command (spec §4.6.4: 203 on success).
func NewLogout(session string) *codec.Command {
	return codec.NewCommand("LOGOUT").WithSession(session)
}

// NewPing builds a PING command, not requiring a session.
func NewPing() *codec.Command {
	return codec.NewCommand("PING").Add("nat", "1")
}

// FileQuery is the identifying key for a FILE command: either a file
// ID, or a (size, ed2k) pair (spec §4.9's "path source").
type FileQuery struct {
	FID  uint64
	Size uint64
	ED2K string
}

// ByID builds a FileQuery addressing a file by its AniDB file ID.
func ByID(fid uint64) FileQuery { return FileQuery{FID: fid} }

// ByHash builds a FileQuery addressing a file by size and ED2K hash.
func ByHash(size uint64, ed2k string) FileQuery { return FileQuery{Size: size, ED2K: ed2k} }

// NewFile builds a FILE command for q, using fmask/amask (the spec
// §4.8 defaults if empty).
func NewFile(session string, q FileQuery, fmask, amask string) *codec.Command {
	if fmask == "" {
		fmask = DefaultFmask
	}
	if amask == "" {
		amask = DefaultAmask
	}
	cmd := codec.NewCommand("FILE").WithSession(session)
	if q.FID != 0 {
		cmd.Add("fid", strconv.FormatUint(q.FID, 10))
	} else {
		cmd.Add("size", strconv.FormatUint(q.Size, 10))
		cmd.Add("ed2k", q.ED2K)
	}
	return cmd.Add("fmask", fmask).Add("amask", amask)
}

// MyListAddOptions configures an optional MYLISTADD command (spec
// §4.8, §4.10's sync queue entries).
type MyListAddOptions struct {
	State   int // 0=unknown, 1=on HDD, 2=on CD, 3=deleted
	Viewed  bool
	Edit    bool // update an existing entry instead of adding a new one
	Source  string
	Storage string
}

// NewMyListAdd builds a MYLISTADD command addressing q.
func NewMyListAdd(session string, q FileQuery, opts MyListAddOptions) *codec.Command {
	cmd := codec.NewCommand("MYLISTADD").WithSession(session)
	if q.FID != 0 {
		cmd.Add("fid", strconv.FormatUint(q.FID, 10))
	} else {
		cmd.Add("size", strconv.FormatUint(q.Size, 10))
		cmd.Add("ed2k", q.ED2K)
	}
	cmd.Add("state", strconv.Itoa(opts.State))
	if opts.Viewed {
		cmd.Add("viewed", "1")
	}
	if opts.Edit {
		cmd.Add("edit", "1")
	}
	if opts.Source != "" {
		cmd.Add("source", opts.Source)
	}
	if opts.Storage != "" {
		cmd.Add("storage", opts.Storage)
	}
	return cmd
}

// NewMyListDel builds a MYLISTDEL command removing a MyList entry by
// its lid.
func NewMyListDel(session string, lid uint64) *codec.Command {
	return codec.NewCommand("MYLISTDEL").WithSession(session).Add("lid", strconv.FormatUint(lid, 10))
}
