package version

import "fmt"

const (
	Major = 0
	Minor = 1
	Patch = 0
)

var (
	// Version is the version of the rigging module and its tool.
	Version = SemVer{Major, Minor, Patch}
)

type SemVer struct {
	Major int
	Minor int
	Patch int
}

func (v SemVer) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}
