/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import "time"

// State is the global lifecycle state of a Receiver.
type State int

const (
	Idle State = iota
	Starting
	Streaming
	Stopping
	Fault
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// BranchState is the sub-state of a decoding or recording branch.
type BranchState int

const (
	BranchAbsent BranchState = iota
	BranchAttaching
	BranchActive
	BranchDetaching
)

func (s BranchState) String() string {
	switch s {
	case BranchAbsent:
		return "absent"
	case BranchAttaching:
		return "attaching"
	case BranchActive:
		return "active"
	case BranchDetaching:
		return "detaching"
	default:
		return "unknown"
	}
}

// FileFormat is one of the small closed set of container tags the
// recording branch may write.
type FileFormat int

const (
	FormatMKV FileFormat = iota
	FormatMOV
	FormatMP4
)

func (f FileFormat) String() string {
	switch f {
	case FormatMKV:
		return "mkv"
	case FormatMOV:
		return "mov"
	case FormatMP4:
		return "mp4"
	default:
		return "unknown"
	}
}

// muxerFactory returns the GStreamer factory name for a container format.
func (f FileFormat) muxerFactory() (string, bool) {
	switch f {
	case FormatMKV:
		return "matroskamux", true
	case FormatMOV:
		return "qtmux", true
	case FormatMP4:
		return "mp4mux", true
	default:
		return "", false
	}
}

// VideoSize is the width/height reported once the decoding branch's
// terminal pad exposes raw caps.
type VideoSize struct {
	Width  int
	Height int
}

// restartCooldown is the single-shot restart token delay after a fatal
// pipeline error.
const restartCooldown = 1389 * time.Millisecond

// detachTimeout bounds how long a branch may sit in BranchDetaching
// waiting for its forwarded EOS to arrive on the bus before the receiver
// gives up and escalates to a fatal error.
const detachTimeout = 5 * time.Second

// defaultPollInterval is the liveness monitor's tick rate.
const defaultPollInterval = 1 * time.Second
