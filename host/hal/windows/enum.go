//go:build windows

package windows

import (
	"fmt"
	"strings"
	"unsafe"

	win "golang.org/x/sys/windows"

	"github.com/ardnew/softhid/host/hal"
)

var (
	modhid = win.NewLazySystemDLL("hid.dll")

	procHidDGetAttributes     = modhid.NewProc("HidD_GetAttributes")
	procHidDGetPreparsedData  = modhid.NewProc("HidD_GetPreparsedData")
	procHidDFreePreparsedData = modhid.NewProc("HidD_FreePreparsedData")
	procHidPGetCaps           = modhid.NewProc("HidP_GetCaps")
)

// hidAttributes matches HIDD_ATTRIBUTES.
type hidAttributes struct {
	Size          uint32
	VendorID      uint16
	ProductID     uint16
	VersionNumber uint16
	_             uint16
}

// hidCaps matches HIDP_CAPS.
type hidCaps struct {
	Usage                     uint16
	UsagePage                 uint16
	InputReportByteLength     uint16
	OutputReportByteLength    uint16
	FeatureReportByteLength   uint16
	Reserved                  [17]uint16
	NumberLinkCollectionNodes uint16
	NumberInputButtonCaps     uint16
	NumberInputValueCaps      uint16
	NumberInputDataIndices    uint16
	NumberOutputButtonCaps    uint16
	NumberOutputValueCaps     uint16
	NumberOutputDataIndices   uint16
	NumberFeatureButtonCaps   uint16
	NumberFeatureValueCaps    uint16
	NumberFeatureDataIndices  uint16
}

// listInterfaces returns the paths of every present HID interface.
func listInterfaces() ([]string, error) {
	return win.CM_Get_Device_Interface_List("", &hidInterfaceGUID, win.CM_GET_DEVICE_INTERFACE_LIST_PRESENT)
}

// openInterface opens a HID interface for overlapped I/O.
func openInterface(path string) (win.Handle, error) {
	name, err := win.UTF16PtrFromString(path)
	if err != nil {
		return win.InvalidHandle, err
	}
	return win.CreateFile(
		name,
		win.GENERIC_READ|win.GENERIC_WRITE,
		win.FILE_SHARE_READ|win.FILE_SHARE_WRITE,
		nil,
		win.OPEN_EXISTING,
		win.FILE_FLAG_OVERLAPPED,
		0,
	)
}

// attributes returns the vendor and product id of an open interface.
func attributes(h win.Handle) (uint16, uint16, error) {
	attr := hidAttributes{Size: uint32(unsafe.Sizeof(hidAttributes{}))}
	r, _, err := procHidDGetAttributes.Call(uintptr(h), uintptr(unsafe.Pointer(&attr)))
	if r == 0 {
		return 0, 0, fmt.Errorf("HidD_GetAttributes: %w", err)
	}
	return attr.VendorID, attr.ProductID, nil
}

// reportLengths returns the input and output report sizes of an open
// interface, report id included.
func reportLengths(h win.Handle) (int, int, error) {
	var preparsed uintptr
	r, _, err := procHidDGetPreparsedData.Call(uintptr(h), uintptr(unsafe.Pointer(&preparsed)))
	if r == 0 {
		return 0, 0, fmt.Errorf("HidD_GetPreparsedData: %w", err)
	}
	defer procHidDFreePreparsedData.Call(preparsed)

	var caps hidCaps
	status, _, _ := procHidPGetCaps.Call(preparsed, uintptr(unsafe.Pointer(&caps)))
	if status != hidpStatusSuccess {
		return 0, 0, fmt.Errorf("HidP_GetCaps: status 0x%08x", status)
	}
	return int(caps.InputReportByteLength), int(caps.OutputReportByteLength), nil
}

// pathMayMatch reports whether an interface path names the vendor/product
// pair of one of variants. Interface paths embed "VID_xxxx&PID_xxxx".
func pathMayMatch(variants []hal.Variant, path string) bool {
	upper := strings.ToUpper(path)
	for _, v := range variants {
		if v.VendorID == 0 {
			continue
		}
		if strings.Contains(upper, fmt.Sprintf("VID_%04X&PID_%04X", v.VendorID, v.ProductID)) {
			return true
		}
	}
	return false
}

// variantIndex returns the position of the variant with the given ids.
func variantIndex(variants []hal.Variant, vendorID, productID uint16) int {
	for i, v := range variants {
		if v.MatchesID(vendorID, productID) {
			return i
		}
	}
	return -1
}
