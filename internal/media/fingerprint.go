package media

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"lectern/internal/hash"
	"lectern/internal/services"
)

// FingerprintFile decodes the image at path and computes its perceptual
// fingerprint. A frame that cannot be decoded is reported as an external
// tool failure; the caller decides whether to skip or abort.
func FingerprintFile(path string) (hash.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "extract", "fingerprint", "open frame "+path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "extract", "fingerprint", "decode frame "+path, err)
	}
	return hash.Compute(img), nil
}
