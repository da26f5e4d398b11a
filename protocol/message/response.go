package message

import (
	"strconv"

	"github.com/anidbgo/anidbclient/protocol/codec"
	"github.com/anidbgo/anidbclient/protocol/perr"
)

// Outcome classifies a decoded response the way the identification
// service and sync engine need to branch on (spec §4.6.4, §4.9, §4.10):
// distinct from the raw response code, since several codes share the
// same handling.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNotFound
	OutcomeSessionInvalid // 501, 506: re-auth once and retry
	OutcomeFatal          // 500, 503, 504, 505, 555, 598
	OutcomeTransient       // 600-604: retry with backoff
)

// AuthResult is the parsed outcome of an AUTH command (spec §4.6.4:
// 200/201 success, 500/503/504/505 fatal).
type AuthResult struct {
	Outcome    Outcome
	Session    string
	NewVersion string // set on 201 ("LOGIN ACCEPTED - NEW VERSION AVAILABLE")
	Message    string
}

// ParseAuth routes an AUTH response.
func ParseAuth(r codec.Response) (AuthResult, error) {
	res := AuthResult{Message: r.Message}
	switch r.Code {
	case 200, 201:
		res.Outcome = OutcomeSuccess
		if len(r.Fields) > 0 {
			res.Session = r.Fields[0]
		}
		if r.Code == 201 && len(r.Fields) > 1 {
			res.NewVersion = r.Fields[1]
		}
		return res, nil
	case 500, 503, 504, 505:
		res.Outcome = OutcomeFatal
		return res, &perr.AuthenticationFailedError{Code: r.Code, Message: r.Message}
	default:
		return classifyGeneric(r, &res.Outcome)
	}
}

// FileInfo is the parsed outcome of a FILE command (spec §4.6.4: 220
// found, 320 not found), fields ordered per DefaultFmask (78C8FEF8).
type FileInfo struct {
	Found bool

	FID, AID, EID, GID uint64
	State              uint32
	Size               uint64
	ED2K, CRC32        string
	Quality, Source    string
	AudioCodec         string
	AudioBitrate       string
	VideoCodec         string
	VideoBitrate       string
	VideoResolution    string
	DubLanguage        string
	SubLanguage        string
	Length             uint32
	Description        string
	AiredDate          uint64
}

// ParseFile routes a FILE response.
func ParseFile(r codec.Response) (FileInfo, Outcome, error) {
	switch r.Code {
	case 220:
		return parseFileFound(r.Fields), OutcomeSuccess, nil
	case 320:
		return FileInfo{}, OutcomeNotFound, nil
	default:
		var outcome Outcome
		_, err := classifyGeneric(r, &outcome)
		return FileInfo{}, outcome, err
	}
}

func parseFileFound(fields []string) FileInfo {
	var fi FileInfo
	fi.Found = true
	get := fieldCursor(fields)
	fi.FID = get.uint()
	fi.AID = get.uint()
	fi.EID = get.uint()
	fi.GID = get.uint()
	fi.State = uint32(get.uint())
	fi.Size = get.uint()
	fi.ED2K = get.str()
	fi.CRC32 = get.str()
	fi.Quality = get.str()
	fi.Source = get.str()
	fi.AudioCodec = get.str()
	fi.AudioBitrate = get.str()
	fi.VideoCodec = get.str()
	fi.VideoBitrate = get.str()
	fi.VideoResolution = get.str()
	fi.DubLanguage = get.str()
	fi.SubLanguage = get.str()
	fi.Length = uint32(get.uint())
	fi.Description = get.str()
	fi.AiredDate = get.uint()
	return fi
}

// AnimeInfo is the parsed outcome of an ANIME command folded into a
// FILE response's amask fields (spec §4.6.4: 230 found, 330 not
// found), ordered per DefaultAmask (00E03000).
type AnimeInfo struct {
	Found              bool
	RomajiName         string
	KanjiName          string
	EnglishName        string
	EpisodeRomajiName  string
	EpisodeKanjiName   string
}

// ParseAnime routes an ANIME response.
func ParseAnime(r codec.Response) (AnimeInfo, Outcome, error) {
	switch r.Code {
	case 230:
		get := fieldCursor(r.Fields)
		return AnimeInfo{
			Found:             true,
			RomajiName:        get.str(),
			KanjiName:         get.str(),
			EnglishName:       get.str(),
			EpisodeRomajiName: get.str(),
			EpisodeKanjiName:  get.str(),
		}, OutcomeSuccess, nil
	case 330:
		return AnimeInfo{}, OutcomeNotFound, nil
	default:
		var outcome Outcome
		_, err := classifyGeneric(r, &outcome)
		return AnimeInfo{}, outcome, err
	}
}

// EpisodeInfo is the parsed outcome of an EPISODE command (spec
// §4.6.4: 240 found, 340 not found).
type EpisodeInfo struct {
	Found      bool
	EID        uint64
	AID        uint64
	Length     uint32
	EpisodeNo  string
	EnglishName string
}

// ParseEpisode routes an EPISODE response.
func ParseEpisode(r codec.Response) (EpisodeInfo, Outcome, error) {
	switch r.Code {
	case 240:
		get := fieldCursor(r.Fields)
		return EpisodeInfo{
			Found:       true,
			EID:         get.uint(),
			AID:         get.uint(),
			Length:      uint32(get.uint()),
			EpisodeNo:   get.str(),
			EnglishName: get.str(),
		}, OutcomeSuccess, nil
	case 340:
		return EpisodeInfo{}, OutcomeNotFound, nil
	default:
		var outcome Outcome
		_, err := classifyGeneric(r, &outcome)
		return EpisodeInfo{}, outcome, err
	}
}

// GroupInfo is the parsed outcome of a GROUP command (spec §4.6.4: 250
// found, 350 not found).
type GroupInfo struct {
	Found     bool
	GID       uint64
	Name      string
	ShortName string
}

// ParseGroup routes a GROUP response.
func ParseGroup(r codec.Response) (GroupInfo, Outcome, error) {
	switch r.Code {
	case 250:
		get := fieldCursor(r.Fields)
		return GroupInfo{
			Found:     true,
			GID:       get.uint(),
			Name:      get.str(),
			ShortName: get.str(),
		}, OutcomeSuccess, nil
	case 350:
		return GroupInfo{}, OutcomeNotFound, nil
	default:
		var outcome Outcome
		_, err := classifyGeneric(r, &outcome)
		return GroupInfo{}, outcome, err
	}
}

// MyListResult is the parsed outcome of a MYLISTADD command (spec
// §4.6.4, §4.10: 210 added, 310 already present, 311 added via
// generic file match).
type MyListResult struct {
	LID           uint64
	AlreadyInList bool
}

// ParseMyListAdd routes a MYLISTADD response.
func ParseMyListAdd(r codec.Response) (MyListResult, Outcome, error) {
	switch r.Code {
	case 210, 311:
		get := fieldCursor(r.Fields)
		return MyListResult{LID: get.uint()}, OutcomeSuccess, nil
	case 310:
		get := fieldCursor(r.Fields)
		return MyListResult{LID: get.uint(), AlreadyInList: true}, OutcomeSuccess, nil
	case 411, 320:
		return MyListResult{}, OutcomeNotFound, nil
	default:
		var outcome Outcome
		_, err := classifyGeneric(r, &outcome)
		return MyListResult{}, outcome, err
	}
}

// ParseMyListDel routes a MYLISTDEL response (spec §4.10: 211 deleted,
// 411 no such entry).
func ParseMyListDel(r codec.Response) (Outcome, error) {
	switch r.Code {
	case 211:
		return OutcomeSuccess, nil
	case 411:
		return OutcomeNotFound, nil
	default:
		var outcome Outcome
		_, err := classifyGeneric(r, &outcome)
		return outcome, err
	}
}

// ParseLogout routes a LOGOUT response (spec §4.6.4: 203 success).
func ParseLogout(r codec.Response) (Outcome, error) {
	if r.Code == 203 {
		return OutcomeSuccess, nil
	}
	var outcome Outcome
	_, err := classifyGeneric(r, &outcome)
	return outcome, err
}

// classifyGeneric routes the response codes common to every command
// (spec §7, §4.8): session-invalid, fatal, and transient codes.
func classifyGeneric(r codec.Response, outcome *Outcome) (struct{}, error) {
	switch {
	case perr.SessionExpiredCode(r.Code):
		*outcome = OutcomeSessionInvalid
		return struct{}{}, perr.ErrSessionExpired
	case perr.Retriable(r.Code):
		*outcome = OutcomeTransient
		return struct{}{}, &perr.ServerError{Code: r.Code, Message: r.Message}
	case r.Code >= 500:
		*outcome = OutcomeFatal
		return struct{}{}, &perr.ServerError{Code: r.Code, Message: r.Message}
	default:
		*outcome = OutcomeFatal
		return struct{}{}, &perr.ServerError{Code: r.Code, Message: r.Message}
	}
}

// cursor walks a response's pipe-delimited fields positionally,
// tolerating a short field list the way the original parser does
// (spec §4.6.4's fmask-ordered fields are a prefix of the full set
// whenever trailing optional fields are empty).
type cursor struct {
	fields []string
	idx    int
}

func fieldCursor(fields []string) *cursor { return &cursor{fields: fields} }

func (c *cursor) str() string {
	if c.idx >= len(c.fields) {
		return ""
	}
	v := c.fields[c.idx]
	c.idx++
	return v
}

func (c *cursor) uint() uint64 {
	v := c.str()
	n, _ := strconv.ParseUint(v, 10, 64)
	return n
}
