package metaspace

import (
	"fmt"

	"github.com/vmkit/metaspace/chunklevel"
)

// Settings configures a Context. Zero values mean "unset"; New applies
// the defaults below before validating. Different presets trade commit
// footprint against allocation throughput.
type Settings struct {
	// CommitGranuleWords is the unit of committing and uncommitting
	// memory. Must be a power of two between the smallest chunk size
	// and the root chunk size. Default 64 KiB worth of words.
	CommitGranuleWords int

	// MaxCommittedWords caps the total committed memory across both
	// categories. Zero means unlimited.
	MaxCommittedWords int64

	// NodeWords is the reservation size of one region-list node on the
	// growable list. Must be a multiple of the root chunk size.
	// Default four root chunks.
	NodeWords int

	// ClassSpaceWords, when non-zero, sets up the separate class
	// category backed by a single bounded reservation of this size.
	// Rounded up to a multiple of the root chunk size.
	ClassSpaceWords int

	// UncommitOnReturn sheds the memory of returned free chunks of at
	// least UncommitMinWords (after buddy merging). UncommitMinWords
	// defaults to one commit granule.
	UncommitOnReturn bool
	UncommitMinWords int

	// EnlargeInPlace lets an arena fuse its current chunk with a free
	// buddy instead of retiring it, for chunks up to EnlargeMaxWords
	// after doubling. EnlargeMaxWords defaults to 256 KiB worth.
	EnlargeInPlace  bool
	EnlargeMaxWords int

	// NewChunkCommitWords pre-commits this much of every freshly
	// handed-out chunk (best effort).
	NewChunkCommitWords int

	// PoisonBlocks overwrites deallocated blocks with a recognizable
	// pattern. Debug aid, off by default.
	PoisonBlocks bool
}

// SettingsDefault is the general-purpose preset: growable reservation,
// no commit cap, in-place enlargement on, returned memory kept
// committed for quick reuse.
func SettingsDefault() Settings {
	return Settings{
		EnlargeInPlace: true,
	}
}

// SettingsBounded is the constrained preset: a hard commit cap and
// eager uncommitting of returned chunks, for hosts where metadata
// competes with the application heap.
func SettingsBounded(maxCommittedWords int64) Settings {
	return Settings{
		MaxCommittedWords: maxCommittedWords,
		UncommitOnReturn:  true,
	}
}

// SettingsMicro is tuned for many short-lived owners with tiny
// footprints: small granules, aggressive uncommit, no in-place
// enlargement.
func SettingsMicro() Settings {
	return Settings{
		CommitGranuleWords: 16 * 1024 / chunklevel.BytesPerWord,
		UncommitOnReturn:   true,
		UncommitMinWords:   chunklevel.SmallestChunkWords,
	}
}

const (
	defaultGranuleWords    = 64 * 1024 / chunklevel.BytesPerWord
	defaultEnlargeMaxWords = 256 * 1024 / chunklevel.BytesPerWord
)

// withDefaults fills unset fields. It does not validate.
func (s Settings) withDefaults() Settings {
	if s.CommitGranuleWords == 0 {
		s.CommitGranuleWords = defaultGranuleWords
	}
	if s.NodeWords == 0 {
		s.NodeWords = 4 * chunklevel.RootChunkWords
	}
	if s.UncommitMinWords == 0 {
		s.UncommitMinWords = s.CommitGranuleWords
	}
	if s.EnlargeMaxWords == 0 {
		s.EnlargeMaxWords = defaultEnlargeMaxWords
	}
	if s.ClassSpaceWords != 0 {
		if rem := s.ClassSpaceWords % chunklevel.RootChunkWords; rem != 0 {
			s.ClassSpaceWords += chunklevel.RootChunkWords - rem
		}
	}
	return s
}

func (s Settings) validate() error {
	g := s.CommitGranuleWords
	if g < chunklevel.SmallestChunkWords || g > chunklevel.RootChunkWords || g&(g-1) != 0 {
		return fmt.Errorf("%w: commit granule %d words", ErrBadSettings, g)
	}
	if s.NodeWords%chunklevel.RootChunkWords != 0 || s.NodeWords <= 0 {
		return fmt.Errorf("%w: node size %d words not a root chunk multiple", ErrBadSettings, s.NodeWords)
	}
	if s.MaxCommittedWords < 0 {
		return fmt.Errorf("%w: negative commit cap", ErrBadSettings)
	}
	return nil
}
