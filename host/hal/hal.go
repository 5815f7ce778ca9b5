package hal

import (
	"fmt"
	"slices"
)

// =============================================================================
// Device Variants
// =============================================================================

// Variant describes one known physical device identity. Readiness backends
// recognize a variant by its device node name, completion backends by its
// vendor/product identifier pair.
type Variant struct {
	Name      string // Short identifier used in configuration and logs
	DevName   string // Device node name (e.g. "signet-hc" for /dev/signet-hc)
	VendorID  uint16 // USB vendor id
	ProductID uint16 // USB product id
}

// String returns a human-readable variant description.
func (v Variant) String() string {
	if v.DevName != "" {
		return fmt.Sprintf("%s (%s %04x:%04x)", v.Name, v.DevName, v.VendorID, v.ProductID)
	}
	return fmt.Sprintf("%s (%04x:%04x)", v.Name, v.VendorID, v.ProductID)
}

// IsZero reports whether v is the zero variant.
func (v Variant) IsZero() bool {
	return v == Variant{}
}

// MatchesNode reports whether a device node named name is this variant.
func (v Variant) MatchesNode(name string) bool {
	return v.DevName != "" && v.DevName == name
}

// MatchesID reports whether a device with the given identifiers is this
// variant.
func (v Variant) MatchesID(vendorID, productID uint16) bool {
	return v.VendorID != 0 && v.VendorID == vendorID && v.ProductID == productID
}

// DefaultVariants returns the known device variants in preferred open order.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "hc", DevName: "signet-hc", VendorID: 0x5E2A, ProductID: 0x0002},
		{Name: "original", DevName: "signet", VendorID: 0x5E2A, ProductID: 0x0001},
	}
}

// MatchNode returns the first variant whose node name is name.
func MatchNode(variants []Variant, name string) (Variant, bool) {
	i := slices.IndexFunc(variants, func(v Variant) bool { return v.MatchesNode(name) })
	if i < 0 {
		return Variant{}, false
	}
	return variants[i], true
}

// MatchID returns the first variant with the given identifiers.
func MatchID(variants []Variant, vendorID, productID uint16) (Variant, bool) {
	i := slices.IndexFunc(variants, func(v Variant) bool { return v.MatchesID(vendorID, productID) })
	if i < 0 {
		return Variant{}, false
	}
	return variants[i], true
}

// Select returns the variants named in names, in the order given. An empty
// names list selects every variant.
func Select(variants []Variant, names ...string) ([]Variant, error) {
	if len(names) == 0 {
		return slices.Clone(variants), nil
	}
	out := make([]Variant, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(variants, func(v Variant) bool { return v.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown variant %q", name)
		}
		out = append(out, variants[i])
	}
	return out, nil
}

// =============================================================================
// Events
// =============================================================================

// EventKind identifies what woke a [Platform.Wait] call.
type EventKind uint8

// Event kinds.
const (
	EventCommand     EventKind = iota // Wake was called
	EventIO                           // The open device may be serviced
	EventArrival                      // A candidate device appeared
	EventRemoval                      // The open device went away
	EventDeviceError                  // The open device reported an error condition
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventIO:
		return "io"
	case EventArrival:
		return "arrival"
	case EventRemoval:
		return "removal"
	case EventDeviceError:
		return "device-error"
	default:
		return "unknown"
	}
}

// Event is one notification returned by [Platform.Wait].
type Event struct {
	Kind EventKind
	Name string // Device node or interface path for arrival and removal
}

// =============================================================================
// Transport Interfaces
// =============================================================================

// PacketHandler is the engine side of a device service pass. All methods are
// called on the engine goroutine from within [Device.Service].
type PacketHandler interface {
	// NextPacket returns the next logical packet to write, or nil when there
	// is nothing to send. It is a peek: a device whose write would block
	// must not keep the packet, and the next call may return a different
	// one if the staged message was cancelled meanwhile.
	NextPacket() []byte

	// PacketSent reports that the transport took ownership of the packet
	// last returned by NextPacket. Completion backends call it when the
	// write is issued, not when it completes.
	PacketSent()

	// PacketReceived delivers one logical packet read from the device. The
	// slice is only valid for the duration of the call. A non-nil error
	// aborts the service pass and is returned from Service.
	PacketReceived(pkt []byte) error
}

// Device is an open device handle.
type Device interface {
	// Service drains the device: it reads every packet that is available and
	// writes packets from h until nothing is left or the transport would
	// block. Any returned error is fatal to the connection.
	Service(h PacketHandler) error

	// Close releases the device handle. Closing twice is a no-op.
	Close() error
}

// Platform is the OS-specific event source of the engine. A platform is
// driven by a single goroutine, except for Wake which may be called from any
// goroutine.
//
// Implementations:
//   - Linux: epoll readiness with inotify device discovery
//   - Windows: overlapped I/O with configuration manager notifications
//   - fifo: in-memory simulated device for tests
type Platform interface {
	// Open opens the first present device matching variants, in order.
	// frameSize is the logical packet size including the frame header.
	// It returns an error wrapping pkg.ErrNoDevice if none is present.
	Open(variants []Variant, frameSize int) (Device, Variant, error)

	// Wake causes a blocked or subsequent Wait to return an EventCommand.
	Wake() error

	// Wait blocks until at least one event is available and stores up to
	// len(events) of them, returning the count.
	Wait(events []Event) (int, error)

	// Close releases platform resources. Any open device must be closed
	// first.
	Close() error
}
