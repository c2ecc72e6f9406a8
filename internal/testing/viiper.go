package testing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/proxi-pad/proxi/apitypes"
	"github.com/proxi-pad/proxi/device/xbox360"
	"github.com/proxi-pad/proxi/internal/server/api"
)

// FakeViiper is an in-process VIIPER server that accepts xbox360 devices
// and records the input frames streamed to them.
type FakeViiper struct {
	Addr string

	mu      sync.Mutex
	buses   map[uint32][]string
	nextDev int
	streams map[string]net.Conn
	frames  chan []byte
}

// StartFakeViiper starts a fake with the given buses already created. It is
// closed with the test.
func StartFakeViiper(t *testing.T, buses ...uint32) *FakeViiper {
	t.Helper()
	f := &FakeViiper{
		buses:   map[uint32][]string{},
		streams: map[string]net.Conn{},
		frames:  make(chan []byte, 1024),
	}
	for _, b := range buses {
		f.buses[b] = nil
	}
	addr, done := StartAPIServer(t, f.register)
	f.Addr = addr
	t.Cleanup(done)
	return f
}

func (f *FakeViiper) register(r *api.Router) {
	r.Register("bus/list", f.busList)
	r.Register("bus/create", f.busCreate)
	r.Register("bus/remove", f.busRemove)
	r.Register("bus/{id}/add", f.deviceAdd)
	r.Register("bus/{id}/remove", f.deviceRemove)
	r.Register("bus/{id}/list", f.deviceList)
	r.RegisterStream("bus/{busId}/{deviceid}", f.stream)
}

// Buses returns the existing bus ids in ascending order.
func (f *FakeViiper) Buses() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, 0, len(f.buses))
	for b := range f.buses {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
}

// Devices returns the device ids on bus.
func (f *FakeViiper) Devices(bus uint32) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.buses[bus])
}

// Frames delivers every input frame received on any device stream.
func (f *FakeViiper) Frames() <-chan []byte { return f.frames }

// Connected reports whether a stream is open for devID.
func (f *FakeViiper) Connected(devID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.streams[devID]
	return ok
}

// SendRumble writes a rumble frame to the device stream of devID.
func (f *FakeViiper) SendRumble(devID string, r xbox360.XRumbleState) error {
	f.mu.Lock()
	conn, ok := f.streams[devID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("no stream for device %s", devID)
	}
	b, _ := r.MarshalBinary()
	_, err := conn.Write(b)
	return err
}

// Disconnect closes the device stream of devID, as a server shutdown would.
func (f *FakeViiper) Disconnect(devID string) {
	f.mu.Lock()
	conn, ok := f.streams[devID]
	f.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

func reply(res *api.Response, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res.JSON = string(b)
	return nil
}

func parseBus(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	return uint32(id), err
}

func (f *FakeViiper) busList(_ *api.Request, res *api.Response, _ *slog.Logger) error {
	return reply(res, apitypes.BusListResponse{Buses: f.Buses()})
}

func (f *FakeViiper) busCreate(req *api.Request, res *api.Response, _ *slog.Logger) error {
	if len(req.Args) < 1 {
		return errors.New("missing bus number")
	}
	id, err := parseBus(req.Args[0])
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buses[id]; ok {
		return fmt.Errorf("bus number %d already allocated", id)
	}
	f.buses[id] = nil
	return reply(res, apitypes.BusCreateResponse{BusID: id})
}

func (f *FakeViiper) busRemove(req *api.Request, res *api.Response, _ *slog.Logger) error {
	if len(req.Args) < 1 {
		return errors.New("missing bus number")
	}
	id, err := parseBus(req.Args[0])
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buses[id]; !ok {
		return fmt.Errorf("bus %d not found", id)
	}
	delete(f.buses, id)
	return reply(res, apitypes.BusRemoveResponse{BusID: id})
}

func (f *FakeViiper) deviceAdd(req *api.Request, res *api.Response, _ *slog.Logger) error {
	id, err := parseBus(req.Params["id"])
	if err != nil {
		return err
	}
	if len(req.Args) < 1 || req.Args[0] != "xbox360" {
		return errors.New("unknown device type")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buses[id]; !ok {
		return fmt.Errorf("bus %d not found", id)
	}
	f.nextDev++
	devID := strconv.Itoa(f.nextDev)
	f.buses[id] = append(f.buses[id], devID)
	return reply(res, apitypes.Device{BusID: id, DevId: devID, Vid: "0x045e", Pid: "0x028e", Type: "xbox360"})
}

func (f *FakeViiper) deviceRemove(req *api.Request, res *api.Response, _ *slog.Logger) error {
	id, err := parseBus(req.Params["id"])
	if err != nil {
		return err
	}
	if len(req.Args) < 1 {
		return errors.New("missing device id")
	}
	devID := req.Args[0]
	f.mu.Lock()
	defer f.mu.Unlock()
	devs := f.buses[id]
	i := slices.Index(devs, devID)
	if i < 0 {
		return fmt.Errorf("device %s not found", devID)
	}
	f.buses[id] = slices.Delete(devs, i, i+1)
	if conn, ok := f.streams[devID]; ok {
		_ = conn.Close()
	}
	return reply(res, apitypes.DeviceRemoveResponse{BusID: id, DevId: devID})
}

func (f *FakeViiper) deviceList(req *api.Request, res *api.Response, _ *slog.Logger) error {
	id, err := parseBus(req.Params["id"])
	if err != nil {
		return err
	}
	out := apitypes.DevicesListResponse{Devices: []apitypes.Device{}}
	for _, d := range f.Devices(id) {
		out.Devices = append(out.Devices, apitypes.Device{BusID: id, DevId: d, Vid: "0x045e", Pid: "0x028e", Type: "xbox360"})
	}
	return reply(res, out)
}

func (f *FakeViiper) stream(conn net.Conn, params map[string]string, _ *slog.Logger) error {
	id, err := parseBus(params["busId"])
	if err != nil {
		api.WriteError(conn, err.Error())
		return err
	}
	devID := params["deviceid"]
	if !slices.Contains(f.Devices(id), devID) {
		api.WriteError(conn, "device not found")
		return errors.New("device not found")
	}

	f.mu.Lock()
	f.streams[devID] = conn
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.streams, devID)
		f.mu.Unlock()
	}()

	for {
		buf := make([]byte, xbox360.InputStateSize)
		if _, err := io.ReadFull(conn, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		select {
		case f.frames <- buf:
		default:
		}
	}
}
