//go:build windows && amd64

package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/proxi-pad/proxi/device/xbox360"
)

// ViGEm client DLL and error codes (ViGEm/Client.h).
const (
	vigemErrorNone        = 0x20000000
	vigemErrorBusNotFound = 0xE0000001
	vigemErrorNoFreeSlot  = 0xE0000002
	vigemErrorBusVersion  = 0xE0000015
)

var (
	vigemDLL = windows.NewLazyDLL("ViGEmClient.dll")

	procAlloc          = vigemDLL.NewProc("vigem_alloc")
	procFree           = vigemDLL.NewProc("vigem_free")
	procConnect        = vigemDLL.NewProc("vigem_connect")
	procDisconnect     = vigemDLL.NewProc("vigem_disconnect")
	procX360Alloc      = vigemDLL.NewProc("vigem_target_x360_alloc")
	procTargetAdd      = vigemDLL.NewProc("vigem_target_add")
	procTargetRemove   = vigemDLL.NewProc("vigem_target_remove")
	procTargetFree     = vigemDLL.NewProc("vigem_target_free")
	procX360Update     = vigemDLL.NewProc("vigem_target_x360_update")
	procX360Register   = vigemDLL.NewProc("vigem_target_x360_register_notification")
	procX360Unregister = vigemDLL.NewProc("vigem_target_x360_unregister_notification")
)

type vigemError uintptr

func (e vigemError) Error() string {
	switch e {
	case vigemErrorBusNotFound:
		return "ViGEmBus driver not installed"
	case vigemErrorNoFreeSlot:
		return "no free ViGEm target slot"
	case vigemErrorBusVersion:
		return "ViGEmBus driver version mismatch"
	}
	return fmt.Sprintf("vigem error 0x%08x", uintptr(e))
}

func vigemCheck(r uintptr) error {
	if r == vigemErrorNone {
		return nil
	}
	return vigemError(r)
}

// Notification callbacks cannot be freed, so one trampoline serves every
// target and dispatches by target handle.
var (
	notifyOnce sync.Once
	notifyCB   uintptr
	notifyMu   sync.Mutex
	notifyMap  = map[uintptr]*ViGEm{}
)

func x360Notification(client, target, large, small, led, user uintptr) uintptr {
	notifyMu.Lock()
	defer notifyMu.Unlock()
	if v := notifyMap[target]; v != nil {
		pushRumble(v.rumble, xbox360.XRumbleState{LeftMotor: uint8(large), RightMotor: uint8(small)})
	}
	return 0
}

// ViGEm emulates the pad through the ViGEmBus driver.
type ViGEm struct {
	logger *slog.Logger
	client uintptr
	target uintptr
	rumble chan xbox360.XRumbleState
	mu     sync.Mutex
	closed bool
}

// OpenViGEm connects to ViGEmBus and plugs in a wired Xbox 360 target.
func OpenViGEm(logger *slog.Logger) (Sink, error) {
	if err := vigemDLL.Load(); err != nil {
		return nil, fmt.Errorf("load ViGEmClient.dll: %w", err)
	}
	client, _, _ := procAlloc.Call()
	if client == 0 {
		return nil, fmt.Errorf("vigem_alloc failed")
	}
	if r, _, _ := procConnect.Call(client); vigemCheck(r) != nil {
		procFree.Call(client)
		return nil, fmt.Errorf("vigem connect: %w", vigemCheck(r))
	}
	target, _, _ := procX360Alloc.Call()
	if target == 0 {
		procDisconnect.Call(client)
		procFree.Call(client)
		return nil, fmt.Errorf("vigem_target_x360_alloc failed")
	}
	if r, _, _ := procTargetAdd.Call(client, target); vigemCheck(r) != nil {
		procTargetFree.Call(target)
		procDisconnect.Call(client)
		procFree.Call(client)
		return nil, fmt.Errorf("vigem target add: %w", vigemCheck(r))
	}

	v := &ViGEm{logger: logger, client: client, target: target, rumble: make(chan xbox360.XRumbleState, 1)}

	notifyOnce.Do(func() { notifyCB = windows.NewCallback(x360Notification) })
	notifyMu.Lock()
	notifyMap[target] = v
	notifyMu.Unlock()
	if r, _, _ := procX360Register.Call(client, target, notifyCB, 0); vigemCheck(r) != nil {
		logger.Warn("ViGEm rumble notifications unavailable", "error", vigemCheck(r))
	}

	logger.Info("ViGEm Xbox 360 target plugged in")
	return v, nil
}

func (v *ViGEm) Name() string { return KindViGEm }

func (v *ViGEm) Update(_ context.Context, st xbox360.InputState) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fmt.Errorf("vigem: closed")
	}
	// XUSB_REPORT is 12 bytes, passed by reference under the x64 ABI.
	rep := st.ToXUSB()
	r, _, _ := procX360Update.Call(v.client, v.target, uintptr(unsafe.Pointer(&rep)))
	return vigemCheck(r)
}

func (v *ViGEm) Rumble() <-chan xbox360.XRumbleState { return v.rumble }

func (v *ViGEm) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true

	procX360Unregister.Call(v.target)
	notifyMu.Lock()
	delete(notifyMap, v.target)
	notifyMu.Unlock()

	r, _, _ := procTargetRemove.Call(v.client, v.target)
	procTargetFree.Call(v.target)
	procDisconnect.Call(v.client)
	procFree.Call(v.client)
	close(v.rumble)
	v.logger.Info("ViGEm Xbox 360 target removed")
	return vigemCheck(r)
}
