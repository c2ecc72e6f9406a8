// Package apitypes holds the JSON payloads of the VIIPER API (consumed by the
// virtual pad sink) and of the PROXI control API.
package apitypes

// ApiError is the error line returned by both APIs.
type ApiError struct {
	Error string `json:"error"`
}

type PingResponse struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

type BusListResponse struct {
	Buses []uint32 `json:"buses"`
}

type BusCreateResponse struct {
	BusID uint32 `json:"busId"`
}

type BusRemoveResponse struct {
	BusID uint32 `json:"busId"`
}

type Device struct {
	BusID uint32 `json:"busId"`
	DevId string `json:"devId"`
	Vid   string `json:"vid"`
	Pid   string `json:"pid"`
	Type  string `json:"type"`
}

type DevicesListResponse struct {
	Devices []Device `json:"devices"`
}

type DeviceRemoveResponse struct {
	BusID uint32 `json:"busId"`
	DevId string `json:"devId"`
}

// Control API.

type Stick struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
}

type StatusResponse struct {
	State        string   `json:"state"`
	Device       string   `json:"device"`
	Sink         string   `json:"sink"`
	Battery      uint8    `json:"battery"`
	Charging     bool     `json:"charging"`
	Reports      uint64   `json:"reports"`
	Updates      uint64   `json:"updates"`
	Dropped      uint64   `json:"dropped"`
	Reconnects   uint64   `json:"reconnects"`
	Buttons      []string `json:"buttons"`
	LeftStick    Stick    `json:"leftStick"`
	RightStick   Stick    `json:"rightStick"`
	LeftTrigger  uint8    `json:"leftTrigger"`
	RightTrigger uint8    `json:"rightTrigger"`
	RumbleLarge  uint8    `json:"rumbleLarge"`
	RumbleSmall  uint8    `json:"rumbleSmall"`
	LastError    string   `json:"lastError,omitempty"`
}

type LEDsResponse struct {
	Lights uint8 `json:"lights"`
}

type StickCalibration struct {
	XMaxAbove uint16 `json:"xMaxAbove" yaml:"xMaxAbove" toml:"xMaxAbove"`
	YMaxAbove uint16 `json:"yMaxAbove" yaml:"yMaxAbove" toml:"yMaxAbove"`
	XCenter   uint16 `json:"xCenter" yaml:"xCenter" toml:"xCenter"`
	YCenter   uint16 `json:"yCenter" yaml:"yCenter" toml:"yCenter"`
	XMinBelow uint16 `json:"xMinBelow" yaml:"xMinBelow" toml:"xMinBelow"`
	YMinBelow uint16 `json:"yMinBelow" yaml:"yMinBelow" toml:"yMinBelow"`
	Deadzone  uint16 `json:"deadzone" yaml:"deadzone" toml:"deadzone"`
}

type CalibrationResponse struct {
	Left  StickCalibration `json:"left" yaml:"left" toml:"left"`
	Right StickCalibration `json:"right" yaml:"right" toml:"right"`
}
