// Package windows provides the completion-based platform for the softhid
// engine using overlapped HID I/O.
//
// The engine's single wait is WaitForMultipleObjects over a fixed set of
// events: one signaled by [Platform.Wake], one signaled by the configuration
// manager notification callback, and one per direction of the open device.
// A read is always outstanding; [Device.Service] harvests completed reads
// and writes with GetOverlappedResult and issues the next ones.
//
// Devices are identified by vendor/product id (HidD_GetAttributes). Among
// the HID collections of a matching device the raw channel is the one whose
// input and output report lengths equal the frame size plus the report id.
//
// Arrival and removal are delivered by CM_Register_Notification. The
// callback runs on a system thread and only records the event; all
// connection state changes happen on the engine goroutine.
package windows
