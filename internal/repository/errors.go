package repository

import "errors"

var (
	// ErrRemoteUnavailable is a transient failure talking to the metadata store; retrying may succeed.
	ErrRemoteUnavailable = errors.New("remote metadata store unavailable")
	// ErrRemoteRejected is a durable refusal (payload too large, expired auth); retrying will not help.
	ErrRemoteRejected = errors.New("remote metadata store rejected the write")
)
