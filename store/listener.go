package store

// Listener observes changes of a RowStore. Callbacks run synchronously on
// the goroutine that caused the change.
type Listener interface {
	// OnCleared is called after Clear.
	OnCleared()
	// OnRowsAdded is called after an append session added rows [from, to)
	// and every attached index was rebuilt.
	OnRowsAdded(from, to int)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Cleared   func()
	RowsAdded func(from, to int)
}

func (l ListenerFuncs) OnCleared() {
	if l.Cleared != nil {
		l.Cleared()
	}
}

func (l ListenerFuncs) OnRowsAdded(from, to int) {
	if l.RowsAdded != nil {
		l.RowsAdded(from, to)
	}
}
