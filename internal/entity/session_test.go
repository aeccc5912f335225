package entity

import (
	"errors"
	"testing"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/stretchr/testify/require"
)

func TestSessionTransitions(t *testing.T) {
	testCases := []struct {
		name    string
		from    State
		ev      Event
		want    State
		illegal bool
	}{
		{name: "page keeps selection", from: StateAwaitingFormatSelection, ev: EventPage, want: StateAwaitingFormatSelection},
		{name: "page leaves custom input", from: StateAwaitingCustomFormatInput, ev: EventPage, want: StateAwaitingFormatSelection},
		{name: "raw table", from: StateAwaitingFormatSelection, ev: EventShowAllFormats, want: StateAwaitingCustomFormatInput},
		{name: "button pick", from: StateAwaitingFormatSelection, ev: EventFormatChosen, want: StateAwaitingAdRemovalChoice},
		{name: "typed pick", from: StateAwaitingCustomFormatInput, ev: EventCustomFormatText, want: StateAwaitingAdRemovalChoice},
		{name: "typed pick without prompt", from: StateAwaitingFormatSelection, ev: EventCustomFormatText, illegal: true},
		{name: "ad choice starts download", from: StateAwaitingAdRemovalChoice, ev: EventAdRemovalChoice, want: StateDownloading},
		{name: "ad choice twice", from: StateDownloading, ev: EventAdRemovalChoice, illegal: true},
		{name: "failure", from: StateDownloading, ev: EventDownloadFailed, want: StateRetryPending},
		{name: "retry", from: StateRetryPending, ev: EventRetry, want: StateDownloading},
		{name: "retry while running", from: StateDownloading, ev: EventRetry, illegal: true},
		{name: "page while running", from: StateDownloading, ev: EventPage, illegal: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Session{State: tc.from}
			require.Equal(t, !tc.illegal, s.Can(tc.ev))

			err := s.Transition(tc.ev)
			if tc.illegal {
				require.True(t, errors.Is(err, common.ErrIllegalTransition))
				require.Equal(t, tc.from, s.State)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, s.State)
		})
	}
}

func TestFormatGroupsFind(t *testing.T) {
	g := FormatGroups{
		CategoryVideoOnly: {{ID: "137"}},
		CategoryAudioOnly: {{ID: "140"}},
	}

	f, cat, ok := g.Find("137")
	require.True(t, ok)
	require.Equal(t, CategoryVideoOnly, cat)
	require.Equal(t, "137", f.ID)

	_, _, ok = g.Find("999")
	require.False(t, ok)
	require.Equal(t, 2, g.Total())
}
