//go:build windows

package windows

import (
	"testing"
	"unsafe"

	"github.com/ardnew/softhid/host/hal"
)

func TestStructLayouts(t *testing.T) {
	if got := unsafe.Sizeof(cmNotifyFilter{}); got != 416 {
		t.Errorf("sizeof(CM_NOTIFY_FILTER) = %d, want 416", got)
	}
	if got := unsafe.Sizeof(hidAttributes{}); got != 12 {
		t.Errorf("sizeof(HIDD_ATTRIBUTES) = %d, want 12", got)
	}
	if got := unsafe.Sizeof(hidCaps{}); got != 64 {
		t.Errorf("sizeof(HIDP_CAPS) = %d, want 64", got)
	}
}

func TestPathMayMatch(t *testing.T) {
	variants := hal.DefaultVariants()

	tests := []struct {
		path string
		want bool
	}{
		{`\\?\hid#vid_5e2a&pid_0002&mi_01#7&1a2b&0&0000#{4d1e55b2-f16f-11cf-88cb-001111000030}`, true},
		{`\\?\HID#VID_5E2A&PID_0001#6&abc&0&0000#{4d1e55b2-f16f-11cf-88cb-001111000030}`, true},
		{`\\?\hid#vid_046d&pid_c52b&mi_00#7&1&0&0000#{4d1e55b2-f16f-11cf-88cb-001111000030}`, false},
		{``, false},
	}

	for _, tt := range tests {
		if got := pathMayMatch(variants, tt.path); got != tt.want {
			t.Errorf("pathMayMatch(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestVariantIndex(t *testing.T) {
	variants := hal.DefaultVariants()
	if i := variantIndex(variants, 0x5E2A, 0x0002); i != 0 {
		t.Errorf("variantIndex(hc) = %d, want 0", i)
	}
	if i := variantIndex(variants, 0x5E2A, 0x0001); i != 1 {
		t.Errorf("variantIndex(original) = %d, want 1", i)
	}
	if i := variantIndex(variants, 0x5E2A, 0x0003); i != -1 {
		t.Errorf("variantIndex(unknown) = %d, want -1", i)
	}
}

func TestPlatform_Wake(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Skipf("platform unavailable: %v", err)
	}
	defer p.Close()

	if err := p.Wake(); err != nil {
		t.Fatalf("Wake failed: %v", err)
	}
	events := make([]hal.Event, 4)
	n, err := p.Wait(events)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if n != 1 || events[0].Kind != hal.EventCommand {
		t.Errorf("Wait = %v, want one command event", events[:n])
	}
}
