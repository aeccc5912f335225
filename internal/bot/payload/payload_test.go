package payload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/fetchbot/internal/common"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		in   Payload
		want string
	}{
		{Page{SID: "0a1b2c3d", Page: 2}, "p:0a1b2c3d:2"},
		{Cancel{SID: "0a1b2c3d"}, "c:0a1b2c3d"},
		{FormatChosen{SID: "0a1b2c3d", Format: "137"}, "f:0a1b2c3d:137"},
		{AdRemovalChoice{SID: "0a1b2c3d", Format: "bestvideo+bestaudio", Remove: true}, "sb:0a1b2c3d:bestvideo+bestaudio:1"},
		{Retry{SID: "0a1b2c3d", Format: "18", Remove: false}, "rt:0a1b2c3d:18:0"},
		{ShowAllFormats{SID: "0a1b2c3d"}, "rf:0a1b2c3d"},
		{Noop{}, "noop"},
	}

	for _, tt := range tests {
		got, err := Encode(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, got)

		back, err := Decode(got)
		require.NoError(t, err)
		require.Equal(t, tt.in, back)
	}
}

func TestEncodeTooLong(t *testing.T) {
	_, err := Encode(AdRemovalChoice{SID: "0a1b2c3d", Format: strings.Repeat("1", 60)})
	require.ErrorIs(t, err, common.ErrPayloadTooLong)
}

func TestEncodeSeparator(t *testing.T) {
	_, err := Encode(FormatChosen{SID: "0a1b2c3d", Format: "a:b"})
	require.ErrorIs(t, err, common.ErrBadPayload)
}

func TestDecodeRejects(t *testing.T) {
	for _, s := range []string{
		"",
		"x:0a1b2c3d",
		"p:0a1b2c3d",
		"p:0a1b2c3d:-1",
		"p:0a1b2c3d:two",
		"c:ZZZZZZZZ",
		"c:0a1b2c3d:extra",
		"f:0a1b2c3d:",
		"sb:0a1b2c3d:18:2",
		"rt:0a1b2c3d:18",
	} {
		_, err := Decode(s)
		require.ErrorIs(t, err, common.ErrBadPayload, s)
	}
}

func TestSessionID(t *testing.T) {
	require.Equal(t, "0a1b2c3d", SessionID(Retry{SID: "0a1b2c3d"}))
	require.Empty(t, SessionID(Noop{}))
}
