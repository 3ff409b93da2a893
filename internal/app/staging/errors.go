package staging

import "errors"

// ErrQueueClosed is returned when adding an action to a queue whose unit of
// work has already started committing or rolling back.
var ErrQueueClosed = errors.New("staging queue closed")
