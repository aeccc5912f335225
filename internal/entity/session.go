package entity

import (
	"fmt"
	"time"

	"github.com/jgivc/fetchbot/internal/common"
)

// State is the step an interaction is waiting on.
type State int

const (
	StateAwaitingFormatSelection State = iota
	StateAwaitingCustomFormatInput
	StateAwaitingAdRemovalChoice
	StateDownloading
	StateRetryPending
)

func (s State) String() string {
	return [...]string{"AwaitingFormatSelection", "AwaitingCustomFormatInput", "AwaitingAdRemovalChoice", "Downloading", "RetryPending"}[s]
}

// Event drives session transitions.
type Event int

const (
	EventPage Event = iota
	EventShowAllFormats
	EventFormatChosen
	EventCustomFormatText
	EventAdRemovalChoice
	EventRetry
	EventDownloadFailed
)

func (e Event) String() string {
	return [...]string{"Page", "ShowAllFormats", "FormatChosen", "CustomFormatText", "AdRemovalChoice", "Retry", "DownloadFailed"}[e]
}

type transitionKey struct {
	from State
	ev   Event
}

var transitions = map[transitionKey]State{
	{StateAwaitingFormatSelection, EventPage}:               StateAwaitingFormatSelection,
	{StateAwaitingCustomFormatInput, EventPage}:             StateAwaitingFormatSelection,
	{StateAwaitingFormatSelection, EventShowAllFormats}:     StateAwaitingCustomFormatInput,
	{StateAwaitingCustomFormatInput, EventShowAllFormats}:   StateAwaitingCustomFormatInput,
	{StateAwaitingFormatSelection, EventFormatChosen}:       StateAwaitingAdRemovalChoice,
	{StateAwaitingCustomFormatInput, EventFormatChosen}:     StateAwaitingAdRemovalChoice,
	{StateAwaitingCustomFormatInput, EventCustomFormatText}: StateAwaitingAdRemovalChoice,
	{StateAwaitingAdRemovalChoice, EventAdRemovalChoice}:    StateDownloading,
	{StateRetryPending, EventRetry}:                         StateDownloading,
	{StateDownloading, EventDownloadFailed}:                 StateRetryPending,
}

// Selection is the format and ad-removal choice a download runs with.
type Selection struct {
	Format    string
	AdRemoval bool
	Custom    bool
}

// Session is one user's in-progress or retry-pending interaction.
type Session struct {
	ID          string
	SourceURL   string
	MediaID     string
	Title       string
	Duration    float64
	Groups      FormatGroups
	RawFormats  []FormatDescriptor
	OwnerUserID int64
	ChatID      int64
	MessageID   int
	CreatedAt   time.Time
	State       State
	Selection   Selection
}

func (s *Session) OwnedBy(userID int64) bool {
	return s.OwnerUserID == userID
}

// Can reports whether ev is legal in the current state.
func (s *Session) Can(ev Event) bool {
	_, ok := transitions[transitionKey{s.State, ev}]

	return ok
}

// Transition applies ev or returns ErrIllegalTransition leaving the state untouched.
func (s *Session) Transition(ev Event) error {
	next, ok := transitions[transitionKey{s.State, ev}]
	if !ok {
		return fmt.Errorf("%w: %s on %s", common.ErrIllegalTransition, ev, s.State)
	}

	s.State = next

	return nil
}

// Clone returns a copy safe to read outside the store lock. Format slices are
// shared since nothing mutates them after creation.
func (s *Session) Clone() *Session {
	c := *s

	return &c
}
