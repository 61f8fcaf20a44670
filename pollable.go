package tcp

import "context"

// Pollable is implemented by resources with an asynchronous suspension
// point: a socket mid-connect, or a listening socket with no connection yet
// queued. Ready blocks until the resource's next state transition becomes
// available, or until ctx is cancelled. It never blocks on behalf of a
// resource that has nothing pending - those implementations return
// immediately.
type Pollable interface {
	Ready(ctx context.Context) error
}
