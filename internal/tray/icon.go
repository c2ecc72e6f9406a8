package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
)

// iconSize is the edge length of the generated tray icon.
const iconSize = 32

// renderIcon draws a gamepad silhouette: a rounded body with two grips.
func renderIcon(fill color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	in := func(x, y, cx, cy, r int) bool {
		dx, dy := x-cx, y-cy
		return dx*dx+dy*dy <= r*r
	}
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			body := y >= 9 && y <= 20 && x >= 5 && x <= 26
			grips := in(x, y, 8, 19, 6) || in(x, y, 23, 19, 6)
			buttons := in(x, y, 10, 14, 2) || in(x, y, 22, 14, 2)
			if (body || grips) && !buttons {
				img.Set(x, y, fill)
			}
		}
	}
	return img
}

// encodePNG returns the icon as PNG bytes.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapICO embeds a PNG in a single-image ICO container, which the Windows
// tray requires.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	// ICONDIRENTRY
	buf.Write([]byte{dim, dim, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint16{1, 32})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint32{uint32(len(pngData)), 6 + 16})
	buf.Write(pngData)
	return buf.Bytes()
}

// Icon returns tray icon bytes in the format the platform expects.
func Icon(fill color.Color) ([]byte, error) {
	data, err := encodePNG(renderIcon(fill))
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "windows" {
		return wrapICO(data, iconSize), nil
	}
	return data, nil
}
