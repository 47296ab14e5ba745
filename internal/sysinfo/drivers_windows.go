//go:build windows

package sysinfo

import (
	"context"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

const (
	infStyleOldNT = 0x1
	infStyleWin4  = 0x2

	errorLineNotFound = windows.Errno(0xE0000102)
)

// Drivers lists the oem*.inf files staged under %WINDIR%\INF.
func Drivers(ctx context.Context) ([]Driver, error) {
	names, err := oemInfNames()
	if err != nil {
		return nil, err
	}

	drivers := make([]Driver, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := readDriver(name)
		if err != nil {
			return nil, errors.Annotatef(err, "driver %s", name)
		}
		drivers = append(drivers, d)
	}
	log.Debug("drivers enumerated", "count", len(drivers))
	return drivers, nil
}

func oemInfNames() ([]string, error) {
	windir, err := windows.GetWindowsDirectory()
	if err != nil {
		return nil, errors.Annotate(err, "cannot locate the Windows directory")
	}
	entries, err := os.ReadDir(filepath.Join(windir, "INF"))
	if err != nil {
		return nil, errors.Annotate(err, "cannot list INF directory")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && OEMInfPattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func readDriver(name string) (Driver, error) {
	inf, err := openInf(name)
	if err != nil {
		return Driver{}, err
	}
	defer procSetupCloseInfFile.Call(inf)

	d := Driver{InfName: name}
	loc, err := infDriverStoreLocation(name)
	if err != nil {
		return Driver{}, errors.Annotate(err, "failed to get inf original name")
	}
	d.DriverStoreLocation, d.InfOriginalName = splitStorePath(loc)

	if d.Provider, err = infLine(inf, "Version", "Provider"); err != nil {
		return Driver{}, errors.Annotate(err, "failed to get inf property 'Provider' in section 'Version'")
	}
	if d.Class, err = infLine(inf, "Version", "Class"); err != nil {
		return Driver{}, errors.Annotate(err, "failed to get inf property 'Class' in section 'Version'")
	}
	guid, err := infLine(inf, "Version", "ClassGUID")
	if err != nil {
		return Driver{}, errors.Annotate(err, "failed to get inf property 'ClassGUID' in section 'Version'")
	}
	if guid != nil {
		d.ClassGUID = parseGUID(*guid)
	}
	return d, nil
}

func openInf(name string) (uintptr, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, errors.Trace(err)
	}
	h, _, callErr := procSetupOpenInfFileW.Call(uintptr(unsafe.Pointer(p)), 0, infStyleOldNT|infStyleWin4, 0)
	if windows.Handle(h) == windows.InvalidHandle {
		return 0, errors.Annotatef(callErr, "failed to get a file handle to '%s'", name)
	}
	return h, nil
}

// infLine reads a key of an INF section. A missing line is absent.
func infLine(inf uintptr, section, key string) (*string, error) {
	s, err := windows.UTF16PtrFromString(section)
	if err != nil {
		return nil, errors.Trace(err)
	}
	k, err := windows.UTF16PtrFromString(key)
	if err != nil {
		return nil, errors.Trace(err)
	}

	buf := make([]uint16, 256)
	for {
		var required uint32
		r, _, callErr := procSetupGetLineTextW.Call(
			0, inf,
			uintptr(unsafe.Pointer(s)),
			uintptr(unsafe.Pointer(k)),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(len(buf)),
			uintptr(unsafe.Pointer(&required)),
		)
		if r != 0 {
			return optional(windows.UTF16ToString(buf)), nil
		}
		switch {
		case errors.Is(callErr, windows.ERROR_INSUFFICIENT_BUFFER) && int(required) > len(buf):
			buf = make([]uint16, required)
		case errors.Is(callErr, errorLineNotFound):
			return nil, nil
		default:
			return nil, callErr
		}
	}
}

// infDriverStoreLocation returns the path of name inside the driver store,
// or "" when the INF is not in the store.
func infDriverStoreLocation(name string) (string, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return "", errors.Trace(err)
	}

	buf := make([]uint16, windows.MAX_PATH)
	for {
		var required uint32
		r, _, callErr := procSetupGetInfDriverStoreLocW.Call(
			uintptr(unsafe.Pointer(p)),
			0, 0,
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(len(buf)),
			uintptr(unsafe.Pointer(&required)),
		)
		if r != 0 {
			return windows.UTF16ToString(buf), nil
		}
		switch {
		case errors.Is(callErr, windows.ERROR_INSUFFICIENT_BUFFER) && int(required) > len(buf):
			buf = make([]uint16, required)
		case errors.Is(callErr, windows.ERROR_NOT_FOUND), errors.Is(callErr, windows.ERROR_FILE_NOT_FOUND):
			return "", nil
		default:
			return "", callErr
		}
	}
}
