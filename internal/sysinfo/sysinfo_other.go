//go:build !windows

package sysinfo

import (
	"context"

	"github.com/juju/errors"
)

func Devices(context.Context) ([]Device, error) {
	return nil, errors.NotSupportedf("device enumeration on this platform")
}

func Drivers(context.Context) ([]Driver, error) {
	return nil, errors.NotSupportedf("driver enumeration on this platform")
}

func DriverPackages(context.Context) ([]DriverPackage, error) {
	return nil, errors.NotSupportedf("driver package enumeration on this platform")
}

func UninstallDevice(string) (bool, error) {
	return false, errors.NotSupportedf("device removal on this platform")
}

func UninstallDriver(Driver) (bool, error) {
	return false, errors.NotSupportedf("driver removal on this platform")
}

func DeleteUninstallKey(DriverPackage) error {
	return errors.NotSupportedf("uninstall registrations on this platform")
}

func Reboot(context.Context) error {
	return errors.NotSupportedf("reboot on this platform")
}
