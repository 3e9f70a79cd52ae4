// Package imaging is the thin contract the Playlist Server uses to ask
// for portrait detection, per-image reframing, and portrait splicing.
// Landscape images are blurred-background letterboxed to 16:9, portrait
// images are center-cropped to half that width, and a Crop/Blur mode
// table governs which strategy applies to which orientation.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// Mode selects how an image is fit to its target aspect ratio.
type Mode int

const (
	// Crop removes edges of the image to fit the target aspect ratio.
	Crop Mode = iota
	// Blur fills the target aspect ratio with a blurred copy of the image
	// as a background, centering the unmodified image on top.
	Blur
)

const aspectRatio720p = 1280.0 / 720.0

var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Facade is a pure-function image transformer over file paths. A single
// instance is safe for concurrent use; it holds no mutable state other
// than the configured max output height.
type Facade struct {
	MaxImageHeightPixels int
	LandscapeMode        Mode
	PortraitMode         Mode
}

// New creates a Facade with the default mode table: landscape images
// are blurred, portraits are cropped.
func New(maxImageHeightPixels int) *Facade {
	return &Facade{
		MaxImageHeightPixels: maxImageHeightPixels,
		LandscapeMode:        Blur,
		PortraitMode:         Crop,
	}
}

// IsPortrait opens path, applies its EXIF orientation, and reports
// whether the resulting (rotated) image is taller than it is wide.
func (f *Facade) IsPortrait(path string) (bool, error) {
	img, err := decodeWithOrientation(path)
	if err != nil {
		return false, err
	}
	b := img.Bounds()
	return b.Dx() < b.Dy(), nil
}

// ProcessFile reframes/blurs/resizes the image at inputPath per the mode
// table and writes it to desiredOutputPath, substituting a ".jpeg"
// extension if desiredOutputPath's extension is not one of
// .jpg/.jpeg/.png. It returns the path actually written. Calling
// ProcessFile twice with the same inputs overwrites the same output path
// with the same bytes, satisfying the idempotence requirement.
func (f *Facade) ProcessFile(inputPath, desiredOutputPath string) (string, error) {
	img, err := decodeWithOrientation(inputPath)
	if err != nil {
		return "", fmt.Errorf("opening %q: %w", inputPath, err)
	}

	result := f.process(img)

	actualPath := withSupportedExtension(desiredOutputPath)
	if err := save(result, actualPath); err != nil {
		return "", fmt.Errorf("saving %q: %w", actualPath, err)
	}
	return actualPath, nil
}

// Splice composites two portrait images side by side into a single
// landscape artifact at outputPath, resizing the larger one down to
// match the smaller one's dimensions. Both inputs are assumed to already
// be portrait.
func (f *Facade) Splice(portraitA, portraitB, outputPath string) error {
	imgA, err := decodeWithOrientation(portraitA)
	if err != nil {
		return fmt.Errorf("opening %q: %w", portraitA, err)
	}
	imgB, err := decodeWithOrientation(portraitB)
	if err != nil {
		return fmt.Errorf("opening %q: %w", portraitB, err)
	}

	procA := f.process(imgA)
	procB := f.process(imgB)

	boundsA := procA.Bounds()
	boundsB := procB.Bounds()
	if boundsA.Dx() > boundsB.Dx() {
		procA = resize(procA, boundsB.Dx(), boundsB.Dy())
	} else if boundsB.Dx() > boundsA.Dx() {
		procB = resize(procB, boundsA.Dx(), boundsA.Dy())
	}

	width := procA.Bounds().Dx()
	height := procA.Bounds().Dy()

	canvas := image.NewRGBA(image.Rect(0, 0, width*2, height))
	draw.Draw(canvas, image.Rect(0, 0, width, height), procA, procA.Bounds().Min, draw.Src)
	draw.Draw(canvas, image.Rect(width, 0, width*2, height), procB, procB.Bounds().Min, draw.Src)

	if err := save(canvas, outputPath); err != nil {
		return fmt.Errorf("saving %q: %w", outputPath, err)
	}
	return nil
}

// process applies the crop/blur-to-aspect-ratio step for the image's
// orientation, then the final bounding resize.
func (f *Facade) process(img image.Image) image.Image {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	var targetAspectRatio float64
	var maxWidth int
	var mode Mode

	if width >= height {
		targetAspectRatio = aspectRatio720p
		maxWidth = int(float64(f.MaxImageHeightPixels) * aspectRatio720p)
		mode = f.LandscapeMode
	} else {
		targetAspectRatio = aspectRatio720p / 2
		maxWidth = int(float64(f.MaxImageHeightPixels) * aspectRatio720p / 2)
		mode = f.PortraitMode
	}

	imageAspectRatio := float64(width) / float64(height)

	var fitted image.Image
	switch mode {
	case Crop:
		if imageAspectRatio > targetAspectRatio {
			fitted = cropPreserveHeight(img, targetAspectRatio)
		} else {
			fitted = cropPreserveWidth(img, targetAspectRatio)
		}
	case Blur:
		fitted = blurComposite(img, targetAspectRatio)
	}

	if f.MaxImageHeightPixels > 0 {
		fitted = resize(fitted, maxWidth, f.MaxImageHeightPixels)
	}
	return fitted
}

func cropPreserveWidth(img image.Image, targetAspectRatio float64) image.Image {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	targetHeight := int(float64(width) / targetAspectRatio)
	verticalCropHalf := (height - targetHeight) / 2
	return cropRect(img, 0, verticalCropHalf, width, verticalCropHalf+targetHeight)
}

func cropPreserveHeight(img image.Image, targetAspectRatio float64) image.Image {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	targetWidth := int(float64(height) * targetAspectRatio)
	horizontalCropHalf := (width - targetWidth) / 2
	return cropRect(img, horizontalCropHalf, 0, horizontalCropHalf+targetWidth, height)
}

// cropRect crops to the given rect relative to the image's origin,
// clamping to the source bounds (a crop target may fall partly outside
// the source when the source is extremely wide or tall).
func cropRect(img image.Image, x0, y0, x1, y1 int) image.Image {
	b := img.Bounds()
	rect := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x1, b.Min.Y+y1).Intersect(b)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

func blurComposite(img image.Image, targetAspectRatio float64) image.Image {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	imageAspectRatio := float64(width) / float64(height)

	var background image.Image
	if imageAspectRatio > targetAspectRatio {
		background = cropPreserveHeight(img, targetAspectRatio)
		background = resize(background, width, int(float64(width)/targetAspectRatio))
	} else {
		background = cropPreserveWidth(img, targetAspectRatio)
		background = resize(background, int(float64(height)*targetAspectRatio), height)
	}

	background = boxBlur(background, 16)

	bgBounds := background.Bounds()
	deltaX := (bgBounds.Dx() - width) / 2
	deltaY := (bgBounds.Dy() - height) / 2

	canvas := image.NewRGBA(bgBounds)
	draw.Draw(canvas, canvas.Bounds(), background, bgBounds.Min, draw.Src)
	draw.Draw(canvas, image.Rect(deltaX, deltaY, deltaX+width, deltaY+height), img, b.Min, draw.Src)
	return canvas
}

// boxBlur applies a separable box filter of the given radius.
func boxBlur(img image.Image, radius int) image.Image {
	b := img.Bounds()
	src := image.NewRGBA(b)
	draw.Draw(src, b, img, b.Min, draw.Src)

	horizontal := boxBlurPass(src, radius, true)
	return boxBlurPass(horizontal, radius, false)
}

func boxBlurPass(src *image.RGBA, radius int, horizontal bool) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var rSum, gSum, bSum, aSum, n uint32
			for d := -radius; d <= radius; d++ {
				sx, sy := x, y
				if horizontal {
					sx += d
				} else {
					sy += d
				}
				if sx < b.Min.X || sx >= b.Max.X || sy < b.Min.Y || sy >= b.Max.Y {
					continue
				}
				r, g, bl, a := src.At(sx, sy).RGBA()
				rSum += r
				gSum += g
				bSum += bl
				aSum += a
				n++
			}
			if n == 0 {
				n = 1
			}
			out.Set(x, y, color.RGBA64{
				R: uint16(rSum / n),
				G: uint16(gSum / n),
				B: uint16(bSum / n),
				A: uint16(aSum / n),
			})
		}
	}
	return out
}

func resize(img image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func withSupportedExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if supportedExtensions[ext] {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".jpeg"
}

func save(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode(f, img)
	default:
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	}
}
