/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import "errors"

// Error taxonomy. Callers distinguish kinds with errors.Is rather than
// string matching.
var (
	// ErrConfig covers an unknown URL scheme, an invalid recording
	// format, or a missing URL. Surfaced to the caller; the receiver
	// never enters Starting.
	ErrConfig = errors.New("videoreceiver: configuration error")

	// ErrBuild covers element-factory or sub-graph linking failures.
	// Partial constructs are released and the receiver returns to Idle.
	ErrBuild = errors.New("videoreceiver: pipeline build error")

	// ErrPipeline covers a bus ERROR message. The receiver stops,
	// enters Fault, and schedules a restart.
	ErrPipeline = errors.New("videoreceiver: pipeline error")

	// ErrUnexpectedEOS covers a bus EOS with no pending detach or stop.
	// Treated identically to ErrPipeline.
	ErrUnexpectedEOS = errors.New("videoreceiver: unexpected end of stream")

	// ErrBranchDetachFailure covers an idle-probe firing without the
	// branch's matching forwarded EOS arriving within detachTimeout.
	ErrBranchDetachFailure = errors.New("videoreceiver: branch detach failed")

	// ErrStallTimeout covers no frames arriving for the configured
	// timeout while streaming.
	ErrStallTimeout = errors.New("videoreceiver: stream stalled")
)

// buildError wraps ErrBuild with the factory stage that failed, so logs
// can name the element without a new sentinel per element kind.
type buildError struct {
	stage string
	err   error
}

func (e *buildError) Error() string {
	return "videoreceiver: build " + e.stage + ": " + e.err.Error()
}

func (e *buildError) Unwrap() error { return ErrBuild }

func wrapBuild(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &buildError{stage: stage, err: err}
}
