package extraction

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WEBP decoder
)

const (
	// Base64 encoding grows the payload by ~33%, so the raw threshold
	// stays well under the provider's request size limit.
	DefaultMaxImageSize = 1 << 20
	DefaultMaxDimension = 2048

	startQuality = 60
	qualityStep  = 15
	floorQuality = 40
)

// pdfToImage renders the first page of a PDF as a PNG image. Most
// receipts are single page.
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// isHEICFormat checks the ftyp box brand for HEIC/HEIF magic bytes.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// Prepare converts uploads the providers cannot ingest (PDF, HEIC)
// into an image format they accept and normalizes the MIME type.
// JPEG, PNG, GIF and WEBP pass through unchanged. A failure to decode
// the source is a DecodeError.
func Prepare(data []byte, contentType string) ([]byte, string, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	if mimeType == "application/pdf" {
		pngData, err := pdfToImage(data)
		if err != nil {
			return nil, "", &DecodeError{Err: err}
		}
		return pngData, "image/png", nil
	}

	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", &DecodeError{Err: fmt.Errorf("decoding HEIC/HEIF image: %w", err)}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, "", fmt.Errorf("encoding JPEG: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	}

	return data, mimeType, nil
}

// resizeToLimit scales the image down so its longest edge is at most
// maxDimension, preserving aspect ratio. Smaller images are returned
// as-is.
func resizeToLimit(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDimension {
		return img
	}

	scale := float64(maxDimension) / float64(longest)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// Normalize recompresses an image until it fits under maxSize bytes.
// Inputs already under the threshold are returned unchanged. Otherwise
// the longest edge is capped at maxDimension and the image is
// re-encoded as JPEG at decreasing quality (60, then steps of 15) until
// it fits or quality reaches the floor of 40; the final attempt is
// accepted even if still oversized. The second return value reports
// whether recompression happened, in which case the data is JPEG.
func Normalize(data []byte, maxSize, maxDimension int) ([]byte, bool, error) {
	if len(data) <= maxSize {
		return data, false, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, &DecodeError{Err: err}
	}
	img = resizeToLimit(img, maxDimension)

	// Scratch file for the encode attempts, released when done.
	tmp, err := os.CreateTemp("", "receipt-*.jpg")
	if err != nil {
		return nil, false, fmt.Errorf("creating scratch file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	quality := startQuality
	for {
		if err := tmp.Truncate(0); err != nil {
			return nil, false, fmt.Errorf("resetting scratch file: %w", err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return nil, false, fmt.Errorf("resetting scratch file: %w", err)
		}
		if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, false, fmt.Errorf("encoding JPEG: %w", err)
		}

		info, err := tmp.Stat()
		if err != nil {
			return nil, false, fmt.Errorf("sizing scratch file: %w", err)
		}

		if info.Size() <= int64(maxSize) || quality <= floorQuality {
			if _, err := tmp.Seek(0, io.SeekStart); err != nil {
				return nil, false, fmt.Errorf("reading scratch file: %w", err)
			}
			out, err := io.ReadAll(tmp)
			if err != nil {
				return nil, false, fmt.Errorf("reading scratch file: %w", err)
			}
			return out, true, nil
		}

		quality -= qualityStep
	}
}
