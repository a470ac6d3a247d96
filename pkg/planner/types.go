package planner

import (
	"github.com/bulksync/bulksync/pkg/manifest"
)

// Action is the decided operation for one unit.
type Action string

const (
	ActionUpload   Action = "upload"
	ActionSkip     Action = "skip"
	ActionReupload Action = "reupload"
)

// Transfer reports whether the action moves bytes to the destination.
func (a Action) Transfer() bool {
	return a == ActionUpload || a == ActionReupload
}

// Operation pairs a unit with the planned action. Every manifest unit maps
// to exactly one Operation; the plan preserves manifest order.
type Operation struct {
	Unit   manifest.Unit
	Action Action
	Reason string

	// ChecksumSHA256 is the unit's content digest, filled for transfers.
	ChecksumSHA256 string
}

// Options tunes the comparison policy.
type Options struct {
	// Checksum forces content-hash comparison for same-size files.
	// Off trusts size alone, which is cheaper but weaker.
	Checksum bool
}

// ChecksumPair holds both sides' digests for one same-size candidate.
type ChecksumPair struct {
	Source string
	Dest   string
}
