// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest loads a scan, a directory of 2D slice images plus
// optional spacing metadata, into a Volume.
package ingest

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
	"golang.org/x/image/tiff"

	// Register stdlib decoders for PNG and JPEG slices; TIFF comes
	// from golang.org/x/image.
	_ "image/jpeg"
	_ "image/png"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

const spacingFile = "spacing.yaml"

func init() {
	image.RegisterFormat("tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff", "MM\x00*", tiff.Decode, tiff.DecodeConfig)
}

// spacingDoc is the optional per-scan spacing sidecar.
type spacingDoc struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// LoadScan reads all slice images from dir, ordered by the numeric
// part of their filenames, and returns them stacked into a single
// volume. Spacing comes from dir/spacing.yaml; when the sidecar is
// absent the default of (1, 1, 1) mm applies and a notice is written
// to w.
func LoadScan(dir string, w io.Writer) (*types.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scan directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".tif", ".tiff", ".png", ".jpg", ".jpeg":
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, &types.InvalidInputError{Reason: fmt.Sprintf("no slice images in %s", dir)}
	}

	// Numeric filename sort keeps the anatomical slice order
	// (slice_2 before slice_10).
	sort.Slice(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	spacing, err := loadSpacing(dir, w)
	if err != nil {
		return nil, err
	}

	var vol *types.Volume
	for z, name := range names {
		img, err := loadSlice(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading slice %s: %w", name, err)
		}
		if vol == nil {
			vol = types.NewVolume(img.Width, img.Height, len(names), spacing)
		} else if img.Width != vol.Width || img.Height != vol.Height {
			return nil, &types.InvalidInputError{
				Reason: fmt.Sprintf("slice %s is %dx%d, expected %dx%d", name, img.Width, img.Height, vol.Width, vol.Height),
			}
		}
		copy(vol.Data[z*vol.Width*vol.Height:], img.Pix)
	}

	fmt.Fprintf(w, "loaded %d slices of %dx%d, spacing (%g, %g, %g) mm\n",
		vol.Depth, vol.Width, vol.Height, spacing.X, spacing.Y, spacing.Z)
	return vol, nil
}

// loadSpacing reads the spacing sidecar, falling back to the
// documented (1, 1, 1) default when it does not exist.
func loadSpacing(dir string, w io.Writer) (types.Spacing, error) {
	path := filepath.Join(dir, spacingFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(w, "no %s, using default spacing (1, 1, 1) mm\n", spacingFile)
			return types.DefaultSpacing(), nil
		}
		return types.Spacing{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc spacingDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.Spacing{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	sp := types.Spacing{X: doc.X, Y: doc.Y, Z: doc.Z}
	if !sp.Valid() {
		return types.Spacing{}, &types.InvalidInputError{
			Reason: fmt.Sprintf("%s: spacing components must be positive, got (%g, %g, %g)", path, sp.X, sp.Y, sp.Z),
		}
	}
	return sp, nil
}

// loadSlice decodes one slice image into grayscale intensities on the
// 16-bit scale.
func loadSlice(path string) (*types.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	bounds := src.Bounds()
	out := types.NewImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			g := color.Gray16Model.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			out.Set(x, y, float64(g.Y))
		}
	}
	return out, nil
}

// extractNumber pulls the numeric part out of a slice filename, zero
// when none is present.
func extractNumber(name string) int {
	var digits strings.Builder
	for _, c := range name {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
