package types

import (
	"errors"
	"fmt"
)

var ErrWrongVersionLength = errors.New("version must be 3 bytes")

// Version is the semantic version reported by the device application.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

func ParseVersion(data []byte) (Version, error) {
	if len(data) != 3 {
		return Version{}, fmt.Errorf("%w, got %d", ErrWrongVersionLength, len(data))
	}

	return Version{Major: data[0], Minor: data[1], Patch: data[2]}, nil
}

func (v Version) Bytes() []byte {
	return []byte{v.Major, v.Minor, v.Patch}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is greater or equal to other.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}

	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}

	return v.Patch >= other.Patch
}
