package xbox360

// XInput button bits (XINPUT_GAMEPAD wButtons).
const (
	ButtonDPadUp    uint32 = 0x0001
	ButtonDPadDown  uint32 = 0x0002
	ButtonDPadLeft  uint32 = 0x0004
	ButtonDPadRight uint32 = 0x0008
	ButtonStart     uint32 = 0x0010
	ButtonBack      uint32 = 0x0020
	ButtonLThumb    uint32 = 0x0040
	ButtonRThumb    uint32 = 0x0080
	ButtonLShoulder uint32 = 0x0100
	ButtonRShoulder uint32 = 0x0200
	ButtonGuide     uint32 = 0x0400
	ButtonA         uint32 = 0x1000
	ButtonB         uint32 = 0x2000
	ButtonX         uint32 = 0x4000
	ButtonY         uint32 = 0x8000
)

var buttonNames = []struct {
	bit  uint32
	name string
}{
	{ButtonDPadUp, "up"},
	{ButtonDPadDown, "down"},
	{ButtonDPadLeft, "left"},
	{ButtonDPadRight, "right"},
	{ButtonStart, "start"},
	{ButtonBack, "back"},
	{ButtonLThumb, "lthumb"},
	{ButtonRThumb, "rthumb"},
	{ButtonLShoulder, "lb"},
	{ButtonRShoulder, "rb"},
	{ButtonGuide, "guide"},
	{ButtonA, "a"},
	{ButtonB, "b"},
	{ButtonX, "x"},
	{ButtonY, "y"},
}

// ButtonNames lists the names of the pressed buttons in bit order.
func ButtonNames(buttons uint32) []string {
	var out []string
	for _, bn := range buttonNames {
		if buttons&bn.bit != 0 {
			out = append(out, bn.name)
		}
	}
	return out
}
