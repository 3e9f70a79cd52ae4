package imaging

import (
	"bufio"
	"encoding/binary"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"
)

// decodeWithOrientation opens path and returns its pixels rotated/flipped
// according to the JPEG EXIF Orientation tag: the returned image always
// has the rotation baked in, as if no orientation metadata existed.
// Formats without EXIF (PNG) are returned unmodified.
func decodeWithOrientation(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(extOf(path), "png") {
		return png.Decode(f)
	}

	orientation := readJPEGOrientation(f)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, err
	}
	return applyOrientation(img, orientation), nil
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i+1:]
}

// readJPEGOrientation scans the JPEG APP1 (Exif) segment for tag 0x0112
// and returns its value, or 1 (no transform) if absent or unparsable.
// The orientation tag is the only EXIF field this service ever needs, so
// a full EXIF decoder isn't worth carrying.
func readJPEGOrientation(r io.Reader) int {
	br := bufio.NewReader(r)

	var marker [2]byte
	if _, err := io.ReadFull(br, marker[:]); err != nil || marker[0] != 0xFF || marker[1] != 0xD8 {
		return 1
	}

	for {
		if _, err := io.ReadFull(br, marker[:]); err != nil {
			return 1
		}
		if marker[0] != 0xFF {
			return 1
		}
		if marker[1] == 0xD9 || marker[1] == 0xDA {
			return 1 // end of image or start of scan: no more metadata segments
		}

		var lenBytes [2]byte
		if _, err := io.ReadFull(br, lenBytes[:]); err != nil {
			return 1
		}
		segLen := int(binary.BigEndian.Uint16(lenBytes[:])) - 2
		if segLen <= 0 {
			return 1
		}
		segment := make([]byte, segLen)
		if _, err := io.ReadFull(br, segment); err != nil {
			return 1
		}

		if marker[1] == 0xE1 { // APP1
			if orientation, ok := parseExifOrientation(segment); ok {
				return orientation
			}
		}
	}
}

func parseExifOrientation(segment []byte) (int, bool) {
	if len(segment) < 10 || string(segment[:6]) != "Exif\x00\x00" {
		return 0, false
	}
	tiff := segment[6:]
	if len(tiff) < 8 {
		return 0, false
	}

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, false
	}

	ifdOffset := order.Uint32(tiff[4:8])
	if int(ifdOffset)+2 > len(tiff) {
		return 0, false
	}

	entryCount := int(order.Uint16(tiff[ifdOffset : ifdOffset+2]))
	base := int(ifdOffset) + 2
	for i := 0; i < entryCount; i++ {
		offset := base + i*12
		if offset+12 > len(tiff) {
			break
		}
		tag := order.Uint16(tiff[offset : offset+2])
		if tag == 0x0112 { // Orientation
			value := order.Uint16(tiff[offset+8 : offset+10])
			if value >= 1 && value <= 8 {
				return int(value), true
			}
			return 0, false
		}
	}
	return 0, false
}

// applyOrientation rotates/flips img so the result matches what a viewer
// respecting EXIF orientation would show, then discards the orientation
// (the caller never re-embeds EXIF into generated artifacts).
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 1, 0:
		return img
	case 2:
		return flipHorizontal(img)
	case 3:
		return rotate180(img)
	case 4:
		return flipVertical(img)
	case 5:
		return flipHorizontal(rotate90(img))
	case 6:
		return rotate90(img)
	case 7:
		return flipHorizontal(rotate270(img))
	case 8:
		return rotate270(img)
	default:
		return img
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

func rotate90(img image.Image) image.Image {
	src := toRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.Y-1-y, x, src.At(x, y))
		}
	}
	return out
}

func rotate180(img image.Image) image.Image {
	src := toRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.X-1-x, b.Max.Y-1-y, src.At(x, y))
		}
	}
	return out
}

func rotate270(img image.Image) image.Image {
	src := toRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(y, b.Max.X-1-x, src.At(x, y))
		}
	}
	return out
}

func flipHorizontal(img image.Image) image.Image {
	src := toRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.X-1-x, y, src.At(x, y))
		}
	}
	return out
}

func flipVertical(img image.Image) image.Image {
	src := toRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, b.Max.Y-1-y, src.At(x, y))
		}
	}
	return out
}
