package pipeline

import (
	"github.com/YesIKnowIT/SODump/internal/extract"
)

// Command is the closed set of messages understood by the controller.
// Every cross-worker interaction goes through this inbox; the controller
// is the only component with mutable orchestration state.
type Command interface{ isCommand() }

// Check asks whether a capture still needs processing. Sent by a
// paginator after acquiring one admission permit for the capture.
type Check struct{ Key, URL string }

// Load reports that the store has no successful row for the key; the
// capture enters the fetch stage with a fresh attempt budget.
type Load struct{ Key, URL string }

// Discard reports that the store already holds the key; the admission
// permit is returned without fetching.
type Discard struct{ Key, URL string }

// Retry reports a failed fetch attempt; the capture is re-enqueued until
// its attempt budget runs out.
type Retry struct{ Key, URL string }

// Parse hands fetched page content to the extraction stage.
type Parse struct {
	Key  string
	Text []byte
}

// StoreResult appends one processing outcome to the write batch.
// FromFetch marks classifications made by the fetch stage itself, which
// carry no extraction obligation.
type StoreResult struct {
	Key       string
	Status    extract.Status
	Records   []extract.Record
	FromFetch bool
}

// Done is the terminal transition for a capture: drop it from the
// pending set and release its admission permit.
type Done struct{ Key string }

// Follow reports a redirected capture: the source key is finished, an
// alias is recorded, and the target is admitted under the permit the
// source already holds.
type Follow struct{ From, Key, URL string }

// Unlock returns the pagination turn token so the next paginator may
// query the index.
type Unlock struct{}

// Cdx signals that the capture index is exhausted; sent exactly once.
type Cdx struct{}

func (Check) isCommand()       {}
func (Load) isCommand()        {}
func (Discard) isCommand()     {}
func (Retry) isCommand()       {}
func (Parse) isCommand()       {}
func (StoreResult) isCommand() {}
func (Done) isCommand()        {}
func (Follow) isCommand()      {}
func (Unlock) isCommand()      {}
func (Cdx) isCommand()         {}
