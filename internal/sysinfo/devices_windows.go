//go:build windows

package sysinfo

import (
	"context"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

var (
	setupapi                       = windows.NewLazySystemDLL("setupapi.dll")
	newdev                         = windows.NewLazySystemDLL("newdev.dll")
	procSetupDiOpenDeviceInfoW     = setupapi.NewProc("SetupDiOpenDeviceInfoW")
	procSetupDiGetDevicePropertyW  = setupapi.NewProc("SetupDiGetDevicePropertyW")
	procDiUninstallDevice          = newdev.NewProc("DiUninstallDevice")
	procDiUninstallDriverW         = newdev.NewProc("DiUninstallDriverW")
	procSetupGetInfDriverStoreLocW = setupapi.NewProc("SetupGetInfDriverStoreLocationW")
	procSetupOpenInfFileW          = setupapi.NewProc("SetupOpenInfFileW")
	procSetupGetLineTextW          = setupapi.NewProc("SetupGetLineTextW")
	procSetupCloseInfFile          = setupapi.NewProc("SetupCloseInfFile")
)

// Device property keys from devpkey.h.
var (
	devpkeyFmtID = windows.DEVPROPGUID{
		Data1: 0xa8b865dd, Data2: 0x2e3d, Data3: 0x4094,
		Data4: [8]byte{0xad, 0x97, 0xe5, 0x93, 0xa7, 0x0c, 0x75, 0xd6},
	}
	devpkeyDriverInfPath          = windows.DEVPROPKEY{FmtID: devpkeyFmtID, PID: 5}
	devpkeyDriverInfSection       = windows.DEVPROPKEY{FmtID: devpkeyFmtID, PID: 6}
	devpkeyDriverProvider         = windows.DEVPROPKEY{FmtID: devpkeyFmtID, PID: 9}
	devpkeyGenericDriverInstalled = windows.DEVPROPKEY{FmtID: devpkeyFmtID, PID: 18}
)

// spDevinfoData mirrors SP_DEVINFO_DATA for calls x/sys does not wrap.
type spDevinfoData struct {
	size      uint32
	classGUID windows.GUID
	devInst   uint32
	reserved  uintptr
}

// Devices lists the present devices of every class.
func Devices(ctx context.Context) ([]Device, error) {
	set, err := windows.SetupDiGetClassDevsEx(nil, "", 0, windows.DIGCF_ALLCLASSES|windows.DIGCF_PRESENT, 0, "")
	if err != nil {
		return nil, errors.Annotate(err, "cannot create device info set")
	}
	defer set.Close()

	var devices []Device
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := set.EnumDeviceInfo(i)
		if errors.Is(err, windows.ERROR_NO_MORE_ITEMS) {
			break
		}
		if err != nil {
			return nil, errors.Annotatef(err, "cannot enumerate device %d", i)
		}
		d, err := readDevice(set, data)
		if err != nil {
			return nil, errors.Annotatef(err, "device %d", i)
		}
		devices = append(devices, d)
	}
	log.Debug("devices enumerated", "count", len(devices))
	return devices, nil
}

func readDevice(set windows.DevInfo, data *windows.DevInfoData) (Device, error) {
	id, err := set.DeviceInstanceID(data)
	if err != nil {
		return Device{}, errors.Annotate(err, "cannot read instance id")
	}
	d := Device{InstanceID: id, ClassGUID: parseGUID(data.ClassGUID.String())}

	d.IsGeneric, err = deviceBool(set, data, &devpkeyGenericDriverInstalled)
	if err != nil {
		return Device{}, errors.Annotatef(err, "%s: generic driver property", id)
	}

	d.HardwareIDs, err = registryStrings(set, data, windows.SPDRP_HARDWAREID)
	if err != nil {
		return Device{}, errors.Annotatef(err, "%s: hardware ids", id)
	}
	for _, p := range []struct {
		prop windows.SPDRP
		dst  **string
	}{
		{windows.SPDRP_FRIENDLYNAME, &d.FriendlyName},
		{windows.SPDRP_DEVICEDESC, &d.Description},
		{windows.SPDRP_MFG, &d.Manufacturer},
		{windows.SPDRP_DRIVER, &d.DriverName},
		{windows.SPDRP_CLASS, &d.Class},
	} {
		if *p.dst, err = registryString(set, data, p.prop); err != nil {
			return Device{}, errors.Annotatef(err, "%s: registry property %d", id, p.prop)
		}
	}

	for _, p := range []struct {
		key *windows.DEVPROPKEY
		dst **string
	}{
		{&devpkeyDriverInfPath, &d.InfName},
		{&devpkeyDriverInfSection, &d.InfSection},
		{&devpkeyDriverProvider, &d.InfProvider},
	} {
		if *p.dst, err = deviceString(set, data, p.key); err != nil {
			return Device{}, errors.Annotatef(err, "%s: device property %d", id, p.key.PID)
		}
	}

	if d.InfName != nil {
		loc, err := infDriverStoreLocation(*d.InfName)
		if err != nil {
			return Device{}, errors.Annotatef(err, "%s: driver store location of %s", id, *d.InfName)
		}
		d.DriverStoreLocation, d.InfOriginalName = splitStorePath(loc)
	}
	return d, nil
}

func isAbsent(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_FOUND) ||
		errors.Is(err, windows.ERROR_INVALID_DATA) ||
		errors.Is(err, windows.ERROR_FILE_NOT_FOUND)
}

func registryString(set windows.DevInfo, data *windows.DevInfoData, prop windows.SPDRP) (*string, error) {
	v, err := set.DeviceRegistryProperty(data, prop)
	if isAbsent(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case string:
		return optional(v), nil
	case []string:
		if len(v) > 0 {
			return optional(v[0]), nil
		}
		return nil, nil
	default:
		return nil, errors.Errorf("unexpected property type %T", v)
	}
}

func registryStrings(set windows.DevInfo, data *windows.DevInfoData, prop windows.SPDRP) ([]string, error) {
	v, err := set.DeviceRegistryProperty(data, prop)
	if isAbsent(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	default:
		return nil, errors.Errorf("unexpected property type %T", v)
	}
}

func deviceString(set windows.DevInfo, data *windows.DevInfoData, key *windows.DEVPROPKEY) (*string, error) {
	v, err := windows.SetupDiGetDeviceProperty(set, data, key)
	if isAbsent(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.Errorf("unexpected property type %T", v)
	}
	return optional(s), nil
}

func deviceBool(set windows.DevInfo, data *windows.DevInfoData, key *windows.DEVPROPKEY) (bool, error) {
	var (
		typ      windows.DEVPROPTYPE
		value    byte
		required uint32
	)
	r, _, err := procSetupDiGetDevicePropertyW.Call(
		uintptr(set),
		uintptr(unsafe.Pointer(data)),
		uintptr(unsafe.Pointer(key)),
		uintptr(unsafe.Pointer(&typ)),
		uintptr(unsafe.Pointer(&value)),
		1,
		uintptr(unsafe.Pointer(&required)),
		0,
	)
	if r == 0 {
		if isAbsent(err) {
			return false, nil
		}
		return false, err
	}
	if typ != windows.DEVPROP_TYPE_BOOLEAN {
		return false, errors.Errorf("unexpected property type %#x", typ)
	}
	// DEVPROP_TRUE is 0xFF.
	return value == 0xff, nil
}

// UninstallDevice removes the device node with the given instance id.
func UninstallDevice(instanceID string) (rebootRequired bool, err error) {
	set, err := windows.SetupDiCreateDeviceInfoListEx(nil, 0, "")
	if err != nil {
		return false, errors.Annotate(err, "cannot create a device list")
	}
	defer set.Close()

	id, err := windows.UTF16PtrFromString(instanceID)
	if err != nil {
		return false, errors.Trace(err)
	}
	data := spDevinfoData{size: uint32(unsafe.Sizeof(spDevinfoData{}))}
	r, _, callErr := procSetupDiOpenDeviceInfoW.Call(
		uintptr(set),
		uintptr(unsafe.Pointer(id)),
		0,
		0,
		uintptr(unsafe.Pointer(&data)),
	)
	if r == 0 {
		return false, errors.Annotatef(callErr, "failed to open device info of %s", instanceID)
	}

	var reboot int32
	r, _, callErr = procDiUninstallDevice.Call(
		0,
		uintptr(set),
		uintptr(unsafe.Pointer(&data)),
		0,
		uintptr(unsafe.Pointer(&reboot)),
	)
	if r == 0 {
		return false, errors.Annotatef(callErr, "failed to uninstall device %s", instanceID)
	}
	log.Info("device uninstalled", "instanceId", instanceID, "rebootRequired", reboot != 0)
	return reboot != 0, nil
}

// UninstallDriver removes a driver store INF and the devices using it.
func UninstallDriver(d Driver) (rebootRequired bool, err error) {
	path, ok := d.StorePath()
	if !ok {
		return false, errors.NotFoundf("driver store location of %s", d.InfName)
	}
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, errors.Trace(err)
	}

	var reboot int32
	r, _, callErr := procDiUninstallDriverW.Call(0, uintptr(unsafe.Pointer(p)), 0, uintptr(unsafe.Pointer(&reboot)))
	if r == 0 {
		return false, errors.Annotatef(callErr, "failed to uninstall inf: %s", path)
	}
	log.Info("driver uninstalled", "inf", d.InfName, "path", path, "rebootRequired", reboot != 0)
	return reboot != 0, nil
}
