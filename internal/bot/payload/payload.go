// Package payload encodes inline button actions into callback data.
package payload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/util"
)

// MaxLen is the callback data limit of the chat platform.
const MaxLen = 64

const (
	tagPage      = "p"
	tagCancel    = "c"
	tagFormat    = "f"
	tagAdRemoval = "sb"
	tagRetry     = "rt"
	tagAll       = "rf"
	tagNoop      = "noop"

	sep = ":"
)

// Payload is one of Page, Cancel, FormatChosen, AdRemovalChoice, Retry,
// ShowAllFormats or Noop.
type Payload interface {
	fields() []string
}

type Page struct {
	SID  string
	Page int
}

type Cancel struct {
	SID string
}

type FormatChosen struct {
	SID    string
	Format string
}

type AdRemovalChoice struct {
	SID    string
	Format string
	Remove bool
}

type Retry struct {
	SID    string
	Format string
	Remove bool
}

type ShowAllFormats struct {
	SID string
}

type Noop struct{}

func (p Page) fields() []string            { return []string{tagPage, p.SID, strconv.Itoa(p.Page)} }
func (p Cancel) fields() []string          { return []string{tagCancel, p.SID} }
func (p FormatChosen) fields() []string    { return []string{tagFormat, p.SID, p.Format} }
func (p AdRemovalChoice) fields() []string { return []string{tagAdRemoval, p.SID, p.Format, flag(p.Remove)} }
func (p Retry) fields() []string           { return []string{tagRetry, p.SID, p.Format, flag(p.Remove)} }
func (p ShowAllFormats) fields() []string  { return []string{tagAll, p.SID} }
func (Noop) fields() []string              { return []string{tagNoop} }

// SessionID returns the session a payload refers to, empty for Noop.
func SessionID(p Payload) string {
	f := p.fields()
	if len(f) < 2 {
		return ""
	}

	return f[1]
}

func flag(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

func Encode(p Payload) (string, error) {
	f := p.fields()
	for _, v := range f[1:] {
		if strings.Contains(v, sep) {
			return "", fmt.Errorf("%w: field %q contains separator", common.ErrBadPayload, v)
		}
	}

	s := strings.Join(f, sep)
	if len(s) > MaxLen {
		return "", fmt.Errorf("%w: %d bytes", common.ErrPayloadTooLong, len(s))
	}

	return s, nil
}

// MustEncode is Encode for payloads built from validated values.
func MustEncode(p Payload) string {
	s, err := Encode(p)
	if err != nil {
		panic(err)
	}

	return s
}

func Decode(s string) (Payload, error) {
	if s == tagNoop {
		return Noop{}, nil
	}

	parts := strings.Split(s, sep)
	if len(parts) < 2 || !util.IsSessionID(parts[1]) {
		return nil, fmt.Errorf("%w: %q", common.ErrBadPayload, s)
	}

	sid := parts[1]

	switch {
	case parts[0] == tagPage && len(parts) == 3:
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad page %q", common.ErrBadPayload, parts[2])
		}

		return Page{SID: sid, Page: n}, nil
	case parts[0] == tagCancel && len(parts) == 2:
		return Cancel{SID: sid}, nil
	case parts[0] == tagAll && len(parts) == 2:
		return ShowAllFormats{SID: sid}, nil
	case parts[0] == tagFormat && len(parts) == 3 && parts[2] != "":
		return FormatChosen{SID: sid, Format: parts[2]}, nil
	case (parts[0] == tagAdRemoval || parts[0] == tagRetry) && len(parts) == 4 && parts[2] != "":
		remove, err := parseFlag(parts[3])
		if err != nil {
			return nil, err
		}

		if parts[0] == tagRetry {
			return Retry{SID: sid, Format: parts[2], Remove: remove}, nil
		}

		return AdRemovalChoice{SID: sid, Format: parts[2], Remove: remove}, nil
	}

	return nil, fmt.Errorf("%w: %q", common.ErrBadPayload, s)
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}

	return false, fmt.Errorf("%w: bad flag %q", common.ErrBadPayload, s)
}
