package types

import "errors"

var (
	// ErrMalformedDescriptor is returned when descriptor bytes do not decode to
	// a dictionary holding an info dictionary.
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// ErrJobNotFound is returned when an operation names a job id that has no
	// engine handle.
	ErrJobNotFound = errors.New("job not found")

	// ErrTransientEngine wraps engine construction and resume failures.
	ErrTransientEngine = errors.New("transient engine error")

	// ErrChannelUnavailable marks a publish with no registered channel.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrChannelClosed is returned when sending to a closed channel.
	ErrChannelClosed = errors.New("channel closed")

	// ErrSendBufferFull is returned when a channel cannot accept more messages.
	ErrSendBufferFull = errors.New("send buffer full")
)
