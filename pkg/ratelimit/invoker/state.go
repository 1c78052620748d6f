package invoker

// State is a state of the invoker's admission loop.
type State int

const (
	// Checking asks the accountant for admission.
	Checking State = iota

	// Waiting sleeps one retry interval before checking again.
	Waiting

	// Done is terminal; the Outcome tells how the call ended.
	Done
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Waiting:
		return "waiting"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome describes how a call reached Done.
type Outcome int

const (
	// Pending is the outcome of every non-terminal transition.
	Pending Outcome = iota

	// Completed means the work was admitted and ran. Its own error, if any,
	// is returned to the caller unchanged.
	Completed

	// Exhausted means the retry limit was spent without admission.
	Exhausted

	// Aborted means the store failed or the context ended before admission.
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Exhausted:
		return "exhausted"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transition is reported to Config.Observer on every state change.
type Transition struct {
	From    State
	To      State
	Outcome Outcome

	// Retries is the number of denied checks so far.
	Retries int

	// Timestamp is the Unix time of the admission check that caused the transition.
	Timestamp int64

	// Err is set for Exhausted and Aborted outcomes and for completed work that failed.
	Err error
}
