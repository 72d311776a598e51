package core

import (
	"errors"
	"fmt"
)

// The coordination layer classifies every failure so adapters can decide
// between a soft JSON error reply and a hard close. None of these are ever
// allowed to crash a room.
var (
	// ErrNotFound: a referenced room/peer/transport/producer/consumer is absent.
	ErrNotFound = errors.New("not found")
	// ErrOffline: the peer or room is not currently registered.
	ErrOffline = errors.New("offline")
	// ErrCapabilityMismatch: the engine refuses a subscription.
	ErrCapabilityMismatch = errors.New("capability mismatch")
	// ErrEngineFailure: an underlying media engine call rejected.
	ErrEngineFailure = errors.New("engine failure")
	// ErrRecordingFailure: recorder subprocess failed to start or exited early.
	ErrRecordingFailure = errors.New("recording failure")
)

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func EngineFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrEngineFailure, err)
}
