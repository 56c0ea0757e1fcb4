// Package semverfilter evaluates a semver requirement against a
// workspace version string, the gate the applicator uses to decide
// whether a patch's meta.version_range applies.
package semverfilter

import (
	"github.com/Masterminds/semver/v3"

	"patchkit.dev/patcherr"
)

// Matches reports whether version satisfies requirement. An empty
// requirement always matches (spec.md §4.8). An invalid version or
// requirement is reported as a typed error, never as a false match.
func Matches(version, requirement string) (bool, error) {
	if requirement == "" {
		return true, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, patcherr.Wrap(patcherr.VersionParse, "parsing workspace version "+version, err)
	}
	c, err := semver.NewConstraint(requirement)
	if err != nil {
		return false, patcherr.Wrap(patcherr.VersionRequirement, "parsing version requirement "+requirement, err)
	}
	return c.Check(v), nil
}
