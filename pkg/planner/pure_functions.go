package planner

import (
	"github.com/bulksync/bulksync/pkg/manifest"
	"github.com/bulksync/bulksync/pkg/remote"
)

// NeedsVerification returns the units whose destination object matches in
// size, so only a content comparison can settle them. Only meaningful when
// checksum verification is enabled.
func NeedsVerification(units []manifest.Unit, inventory map[string]remote.Object) []manifest.Unit {
	var need []manifest.Unit
	for _, unit := range units {
		obj, exists := inventory[unit.Path]
		if exists && obj.Size == unit.Size {
			need = append(need, unit)
		}
	}
	return need
}

// BuildPlan decides one Operation per unit, in manifest order. It is a pure
// function: identical inputs always produce identical plans.
//
// Policy: Upload when the path is absent remotely; Reupload when size
// differs; with checksum verification off, a size match is trusted and
// skipped; with it on, digests decide, and an unobtainable remote digest
// falls back to Reupload. The conservative fallback trades bandwidth for
// certainty and is the documented default for opaque destinations.
func BuildPlan(units []manifest.Unit, inventory map[string]remote.Object, checksums map[string]ChecksumPair, opts Options) []Operation {
	operations := make([]Operation, 0, len(units))

	for _, unit := range units {
		obj, exists := inventory[unit.Path]

		switch {
		case !exists:
			operations = append(operations, Operation{
				Unit:   unit,
				Action: ActionUpload,
				Reason: "new file",
			})

		case obj.Size != unit.Size:
			operations = append(operations, Operation{
				Unit:   unit,
				Action: ActionReupload,
				Reason: "size differs",
			})

		case !opts.Checksum:
			operations = append(operations, Operation{
				Unit:   unit,
				Action: ActionSkip,
				Reason: "size matches",
			})

		default:
			operations = append(operations, checksumOperation(unit, checksums))
		}
	}

	return operations
}

func checksumOperation(unit manifest.Unit, checksums map[string]ChecksumPair) Operation {
	pair, ok := checksums[unit.Path]
	if !ok || pair.Dest == "" {
		return Operation{
			Unit:           unit,
			Action:         ActionReupload,
			Reason:         "remote checksum unavailable",
			ChecksumSHA256: pair.Source,
		}
	}
	if pair.Source != pair.Dest {
		return Operation{
			Unit:           unit,
			Action:         ActionReupload,
			Reason:         "checksum differs",
			ChecksumSHA256: pair.Source,
		}
	}
	return Operation{
		Unit:   unit,
		Action: ActionSkip,
		Reason: "checksum matches",
	}
}
