// Package core defines sentinel errors and the typed decode error shared by
// the transport, framing and decoding stages.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	// Transport errors
	ErrTransportOpen   = errors.New("busctl: transport open failed")
	ErrTransportWrite  = errors.New("busctl: transport write failed")
	ErrTransportClosed = errors.New("busctl: transport closed")

	// Session errors
	ErrTimeout   = errors.New("busctl: timeout")
	ErrLinkBusy  = errors.New("busctl: link already has an active session")
	ErrHandshake = errors.New("busctl: inspect handshake rejected")

	// Decoding errors
	ErrMalformedHeader = errors.New("busctl: malformed header")
	ErrOverDelivery    = errors.New("busctl: payload exceeds declared size")
	ErrStructural      = errors.New("busctl: service record without owning node")
	ErrTruncatedTable  = errors.New("busctl: routing table truncated before clear tag")
	ErrUnparsableText  = errors.New("busctl: unparsable text payload")
)

// Stage names the pipeline step a decode failure happened in.
type Stage string

const (
	StageSync       Stage = "sync"
	StageReassembly Stage = "reassembly"
	StageTable      Stage = "table"
	StageInspect    Stage = "inspect"
	StageDiscover   Stage = "discover"
)

// DecodeError reports which stage failed and the byte offset at which it
// failed. Offsets are relative to the stage input: the session byte stream
// for sync and reassembly, the payload for table, the delimited frame for
// inspect.
type DecodeError struct {
	Stage  Stage
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: offset %d: %v", e.Stage, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError wraps err with its stage and offset.
func NewDecodeError(stage Stage, offset int, err error) error {
	return &DecodeError{Stage: stage, Offset: offset, Err: err}
}

// StageOf returns the stage of the first DecodeError in err's chain.
func StageOf(err error) (Stage, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Stage, true
	}
	return "", false
}
