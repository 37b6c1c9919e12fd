package types

import "errors"

var (
	// Lock errors
	ErrLockTimeout = errors.New("timed out waiting for lock")
	ErrLockBusy    = errors.New("lock is held by another process")

	// Peer coordination errors
	ErrPermissionTimeout = errors.New("timed out waiting for peer permissions")
	ErrPeerUnreachable   = errors.New("peer is unreachable")
	ErrMalformedMessage  = errors.New("malformed peer message")
)

// reports whether err is one of the recoverable wait failures
// the caller gave up waiting and has not touched the resource
func IsTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrLockBusy) ||
		errors.Is(err, ErrPermissionTimeout)
}
