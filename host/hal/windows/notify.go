//go:build windows

package windows

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	win "golang.org/x/sys/windows"

	"github.com/ardnew/softhid/host/hal"
)

var (
	modcfgmgr32 = win.NewLazySystemDLL("cfgmgr32.dll")

	procCMRegisterNotification   = modcfgmgr32.NewProc("CM_Register_Notification")
	procCMUnregisterNotification = modcfgmgr32.NewProc("CM_Unregister_Notification")
)

// cmNotifyFilter matches CM_NOTIFY_FILTER for an interface class filter.
type cmNotifyFilter struct {
	Size       uint32
	Flags      uint32
	FilterType uint32
	Reserved   uint32
	ClassGUID  win.GUID
	_          [maxDeviceIDLen*2 - 16]byte
}

// Callbacks are process-wide and limited in number, so one trampoline
// dispatches to platforms by registration id.
var (
	notifyOnce     sync.Once
	notifyCallback uintptr
	notifyNextID   atomic.Uintptr
	notifyTargets  sync.Map // uintptr -> *notifier
)

// notifier records configuration manager events for one platform. The
// callback runs on an OS thread pool; it only records the event and signals
// the platform's wait object.
type notifier struct {
	id     uintptr
	handle uintptr // HCMNOTIFICATION
	event  win.Handle

	mu      sync.Mutex
	pending []hal.Event
}

// onNotify is the CM_NOTIFY_CALLBACK trampoline.
func onNotify(hNotify uintptr, context uintptr, action uint32, data *byte, size uint32) uintptr {
	v, ok := notifyTargets.Load(context)
	if !ok || data == nil || size <= cmNotifyEventSymlinkOffset {
		return 0
	}
	n := v.(*notifier)

	var kind hal.EventKind
	switch action {
	case cmNotifyActionDeviceInterfaceArrival:
		kind = hal.EventArrival
	case cmNotifyActionDeviceInterfaceRemoval:
		kind = hal.EventRemoval
	default:
		return 0
	}
	link := (*uint16)(unsafe.Add(unsafe.Pointer(data), cmNotifyEventSymlinkOffset))
	name := win.UTF16PtrToString(link)

	n.mu.Lock()
	n.pending = append(n.pending, hal.Event{Kind: kind, Name: name})
	n.mu.Unlock()
	win.SetEvent(n.event)
	return 0
}

// newNotifier registers for HID interface arrival and removal.
func newNotifier() (*notifier, error) {
	event, err := win.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, err
	}

	notifyOnce.Do(func() {
		notifyCallback = win.NewCallback(onNotify)
	})

	n := &notifier{id: notifyNextID.Add(1), event: event}
	notifyTargets.Store(n.id, n)

	filter := cmNotifyFilter{
		FilterType: cmNotifyFilterTypeDeviceInterface,
		ClassGUID:  hidInterfaceGUID,
	}
	filter.Size = uint32(unsafe.Sizeof(filter))

	r, _, _ := procCMRegisterNotification.Call(
		uintptr(unsafe.Pointer(&filter)),
		n.id,
		notifyCallback,
		uintptr(unsafe.Pointer(&n.handle)),
	)
	if r != crSuccess {
		notifyTargets.Delete(n.id)
		win.CloseHandle(event)
		return nil, &configRetError{op: "CM_Register_Notification", code: r}
	}
	return n, nil
}

// take returns and clears the recorded events.
func (n *notifier) take() []hal.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.pending
	n.pending = nil
	return out
}

// close unregisters the callback. CM_Unregister_Notification waits for
// running callbacks to return.
func (n *notifier) close() error {
	procCMUnregisterNotification.Call(n.handle)
	notifyTargets.Delete(n.id)
	return win.CloseHandle(n.event)
}

// configRetError reports a failing CONFIGRET.
type configRetError struct {
	op   string
	code uintptr
}

func (e *configRetError) Error() string {
	return fmt.Sprintf("%s: CONFIGRET 0x%x", e.op, e.code)
}
