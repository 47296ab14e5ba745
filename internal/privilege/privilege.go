// Package privilege checks whether the process may change system drivers.
package privilege

import "errors"

// ElevationMessage is shown when the process lacks administrator rights.
const ElevationMessage = "This program must be run as administrator."

// Require returns an error carrying ElevationMessage when the process is not
// elevated. Dry runs change nothing and are always allowed.
func Require(dryRun bool) error {
	return require(dryRun, IsElevated)
}

func require(dryRun bool, elevated func() bool) error {
	if dryRun || elevated() {
		return nil
	}
	return errors.New(ElevationMessage)
}
