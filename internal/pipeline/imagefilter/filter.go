package imagefilter

import (
	"fmt"
	"image"
	"math"
	"os"

	// Decoders for the image formats the parser extracts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"DocFlow/internal/models"
	"DocFlow/pkg/logger"
)

// Config holds the relevance filter thresholds.
type Config struct {
	MinFileSizeBytes int     // skip files smaller than this, default 30KB
	MinDimension     int     // skip images narrower/shorter than this, default 200px
	MinAspectRatio   float64 // skip images thinner than this, default 0.2
	MaxAspectRatio   float64 // skip images wider than this, default 5.0
	MinEntropy       float64 // skip images below this entropy, default 4.0 bits
	HashSize         int     // perceptual hash edge length, default 8
	DisableDedup     bool
}

// DefaultConfig returns the thresholds used in production.
func DefaultConfig() Config {
	return Config{
		MinFileSizeBytes: 30 * 1024,
		MinDimension:     200,
		MinAspectRatio:   0.2,
		MaxAspectRatio:   5.0,
		MinEntropy:       4.0,
		HashSize:         8,
	}
}

// Filter discards decorative and duplicate images before they reach the
// vision provider. Heuristics run cheapest-first and the first matching skip
// reason wins. An image the filter cannot decode is kept: a processed
// decorative image costs less than dropped meaningful content.
type Filter struct {
	cfg Config
	log *logger.Logger
}

// New creates a Filter. Zero config values fall back to defaults.
func New(cfg Config, log *logger.Logger) *Filter {
	def := DefaultConfig()
	if cfg.MinFileSizeBytes <= 0 {
		cfg.MinFileSizeBytes = def.MinFileSizeBytes
	}
	if cfg.MinDimension <= 0 {
		cfg.MinDimension = def.MinDimension
	}
	if cfg.MinAspectRatio <= 0 {
		cfg.MinAspectRatio = def.MinAspectRatio
	}
	if cfg.MaxAspectRatio <= 0 {
		cfg.MaxAspectRatio = def.MaxAspectRatio
	}
	if cfg.MinEntropy <= 0 {
		cfg.MinEntropy = def.MinEntropy
	}
	if cfg.HashSize <= 0 {
		cfg.HashSize = def.HashSize
	}
	return &Filter{cfg: cfg, log: log}
}

// Filter applies the heuristics to the paths in order and returns the kept
// paths (input order preserved) plus per-reason skip counts. The duplicate
// hash set is scoped to this call, so repeated letterheads are caught within
// one document but state never leaks across documents.
func (f *Filter) Filter(paths []string) *models.FilterResult {
	result := &models.FilterResult{
		KeptPaths: make([]string, 0, len(paths)),
		SkipReasons: map[models.SkipReason]int{
			models.SkipFileNotFound:   0,
			models.SkipTooSmallBytes:  0,
			models.SkipTooSmallDims:   0,
			models.SkipBadAspectRatio: 0,
			models.SkipLowEntropy:     0,
			models.SkipDuplicate:      0,
		},
	}

	seenHashes := make(map[uint64]struct{})

	for _, path := range paths {
		if reason, skip := f.shouldSkip(path, seenHashes); skip {
			result.SkipReasons[reason]++
			result.SkippedCount++
			if f.log != nil {
				f.log.WithPayload(map[string]interface{}{
					"path":   path,
					"reason": string(reason),
				}).Debug("Skipping image")
			}
			continue
		}
		result.KeptPaths = append(result.KeptPaths, path)
	}

	if f.log != nil {
		reasons := make(map[string]interface{}, len(result.SkipReasons))
		for r, n := range result.SkipReasons {
			reasons[string(r)] = n
		}
		f.log.WithPayload(map[string]interface{}{
			"kept":    len(result.KeptPaths),
			"skipped": result.SkippedCount,
			"reasons": reasons,
		}).Info("Image filtering complete")
	}
	return result
}

// shouldSkip runs the heuristic sequence for one path.
func (f *Filter) shouldSkip(path string, seenHashes map[uint64]struct{}) (models.SkipReason, bool) {
	if path == "" {
		return models.SkipFileNotFound, true
	}
	info, err := os.Stat(path)
	if err != nil {
		return models.SkipFileNotFound, true
	}

	if info.Size() < int64(f.cfg.MinFileSizeBytes) {
		return models.SkipTooSmallBytes, true
	}

	img, err := decodeImage(path)
	if err != nil {
		// Fail open: an undecodable image goes through to the vision model.
		return "", false
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < f.cfg.MinDimension || height < f.cfg.MinDimension {
		return models.SkipTooSmallDims, true
	}

	if height > 0 {
		aspect := float64(width) / float64(height)
		if aspect < f.cfg.MinAspectRatio || aspect > f.cfg.MaxAspectRatio {
			return models.SkipBadAspectRatio, true
		}
	}

	gray := toGray(img)

	if entropy(gray) < f.cfg.MinEntropy {
		return models.SkipLowEntropy, true
	}

	if !f.cfg.DisableDedup {
		h := averageHash(gray, f.cfg.HashSize)
		if _, dup := seenHashes[h]; dup {
			return models.SkipDuplicate, true
		}
		seenHashes[h] = struct{}{}
	}

	return "", false
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// entropy computes the Shannon entropy of the 256-bin grayscale histogram,
// in bits. Solid fills and simple logos land well below 4.0.
func entropy(gray *image.Gray) float64 {
	var hist [256]int
	bounds := gray.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}

	var e float64
	for _, count := range hist {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(total)
		e -= p * math.Log2(p)
	}
	return e
}

// averageHash computes an average-hash fingerprint: downscale to
// hashSize x hashSize, then set one bit per pixel above the mean intensity.
// Near-identical images (repeated watermarks, letterheads) collide.
func averageHash(gray *image.Gray, hashSize int) uint64 {
	small := image.NewGray(image.Rect(0, 0, hashSize, hashSize))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	n := hashSize * hashSize
	var sum int
	for i := 0; i < n; i++ {
		sum += int(small.Pix[i])
	}
	mean := uint8(sum / n)

	var hash uint64
	for i := 0; i < n && i < 64; i++ {
		if small.Pix[i] > mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}
