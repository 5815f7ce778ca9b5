//go:build windows

package windows

import win "golang.org/x/sys/windows"

// hidInterfaceGUID is GUID_DEVINTERFACE_HID.
var hidInterfaceGUID = win.GUID{
	Data1: 0x4D1E55B2,
	Data2: 0xF16F,
	Data3: 0x11CF,
	Data4: [8]byte{0x88, 0xCB, 0x00, 0x11, 0x11, 0x00, 0x00, 0x30},
}

// reportIDSize is the leading report id byte on every HID read and write.
const reportIDSize = 1

// Configuration manager notification values (cfgmgr32.h).
const (
	crSuccess = 0

	cmNotifyFilterTypeDeviceInterface = 0

	cmNotifyActionDeviceInterfaceArrival = 0
	cmNotifyActionDeviceInterfaceRemoval = 1

	// Offset of SymbolicLink within CM_NOTIFY_EVENT_DATA for interface
	// events: FilterType, Reserved, ClassGuid.
	cmNotifyEventSymlinkOffset = 24

	maxDeviceIDLen = 200
)

// hidpStatusSuccess is HIDP_STATUS_SUCCESS.
const hidpStatusSuccess = 0x00110000

// Wait set indices.
const (
	waitCommand = iota
	waitNotify
	waitRead
	waitWrite
)
