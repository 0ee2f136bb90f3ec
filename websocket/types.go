package websocket

import "streamspace/types"

// Channel is a persistent connection to one observer. The hub only needs to
// push messages, close the connection, and know whether it is still open.
type Channel interface {
	// Send queues a message. It must not block; it returns
	// types.ErrSendBufferFull when the observer is too slow and
	// types.ErrChannelClosed after Close.
	Send(msg types.ProgressMessage) error
	// Close ends the connection with a normal closure. Safe to call twice.
	Close() error
	IsOpen() bool
}
