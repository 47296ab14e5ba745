// Package uninstall runs driver package uninstallers and tracks them, and
// any worker process they delegate to, until the removal is complete.
package uninstall

import (
	"github.com/juju/errors"
)

// Method selects how a matched driver package is removed.
type Method int

const (
	// Normal launches the uninstaller and waits for it to exit.
	Normal Method = iota
	// Deferred launches the uninstaller, then also waits for the worker
	// process it hands the removal off to.
	Deferred
	// RegistryOnly deletes the package's uninstall registration without
	// running anything.
	RegistryOnly
)

var methodNames = map[Method]string{
	Normal:       "Normal",
	Deferred:     "Deferred",
	RegistryOnly: "RegistryOnly",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	name, ok := methodNames[m]
	if !ok {
		return nil, errors.NotValidf("uninstall method %d", int(m))
	}
	return []byte(name), nil
}

// UnmarshalText accepts the exact method names only.
func (m *Method) UnmarshalText(text []byte) error {
	for method, name := range methodNames {
		if string(text) == name {
			*m = method
			return nil
		}
	}
	return errors.NotValidf("uninstall method %q", text)
}
