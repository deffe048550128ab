package batch

// EventKind identifies a task notification.
type EventKind int

const (
	// EventStateChanged fires once per accepted lifecycle transition.
	EventStateChanged EventKind = iota + 1

	// EventProgress fires as items complete. Observers re-read the task counters.
	EventProgress

	// EventSaveError fires when persisting a completed task fails.
	EventSaveError
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventProgress:
		return "progress"
	case EventSaveError:
		return "save_error"
	default:
		return "unknown"
	}
}

// Event is a task notification. State is set for EventStateChanged, Err for
// EventSaveError (one of the persist save errors, matched with errors.Is).
type Event struct {
	Kind   EventKind
	TaskID string
	State  State
	Err    error
}

// Notifier receives task events. Notify is called from the task's own
// goroutines, never while the task holds its lock, so observers may read the
// task from inside Notify. It should return quickly.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

// Notify calls f(e).
func (f NotifierFunc) Notify(e Event) { f(e) }

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

// Notify delivers e to every non-nil notifier.
func (ns Notifiers) Notify(e Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(e)
		}
	}
}
