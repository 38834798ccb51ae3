// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package nrrd reads and writes volumes in the NRRD raster format with
// spacing metadata: a detached-style text header followed by a raw
// little-endian payload. Only the fields the pipeline produces are
// supported (3-dimensional, raw encoding, double or int payloads).
package nrrd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

const magic = "NRRD0004"

// WriteVolume writes v as a type: double NRRD file. The file is
// written to a temporary name and renamed into place on success.
func WriteVolume(path string, v *types.Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return writeRaw(path, "double", v.Width, v.Height, v.Depth, v.Spacing, func(w *bufio.Writer) error {
		return binary.Write(w, binary.LittleEndian, v.Data)
	})
}

// ReadVolume reads a type: double NRRD file written by WriteVolume.
func ReadVolume(path string) (*types.Volume, error) {
	h, f, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if h.valueType != "double" {
		return nil, fmt.Errorf("reading %s: expected double payload, got %q", path, h.valueType)
	}
	v := types.NewVolume(h.sizes[0], h.sizes[1], h.sizes[2], h.spacing)
	if err := binary.Read(f, binary.LittleEndian, v.Data); err != nil {
		return nil, fmt.Errorf("reading %s payload: %w", path, err)
	}
	return v, nil
}

// WriteLabels writes lv as a type: int NRRD file.
func WriteLabels(path string, lv *types.LabelVolume) error {
	if !lv.Spacing.Valid() {
		return &types.InvalidInputError{Reason: "non-positive spacing on label volume"}
	}
	return writeRaw(path, "int", lv.Width, lv.Height, lv.Depth, lv.Spacing, func(w *bufio.Writer) error {
		return binary.Write(w, binary.LittleEndian, lv.Labels)
	})
}

// ReadLabels reads a type: int NRRD file written by WriteLabels.
func ReadLabels(path string) (*types.LabelVolume, error) {
	h, f, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if h.valueType != "int" {
		return nil, fmt.Errorf("reading %s: expected int payload, got %q", path, h.valueType)
	}
	lv := types.NewLabelVolume(h.sizes[0], h.sizes[1], h.sizes[2], h.spacing)
	if err := binary.Read(f, binary.LittleEndian, lv.Labels); err != nil {
		return nil, fmt.Errorf("reading %s payload: %w", path, err)
	}
	return lv, nil
}

func writeRaw(path, valueType string, width, height, depth int, sp types.Spacing, payload func(*bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nrrd-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "%s\n", magic)
	fmt.Fprintf(w, "type: %s\n", valueType)
	fmt.Fprintf(w, "dimension: 3\n")
	fmt.Fprintf(w, "sizes: %d %d %d\n", width, height, depth)
	fmt.Fprintf(w, "spacings: %g %g %g\n", sp.X, sp.Y, sp.Z)
	fmt.Fprintf(w, "endian: little\n")
	fmt.Fprintf(w, "encoding: raw\n")
	fmt.Fprintf(w, "\n")

	writeErr := payload(w)
	if writeErr == nil {
		writeErr = w.Flush()
	}
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", path, closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

type header struct {
	valueType string
	sizes     [3]int
	spacing   types.Spacing
}

// readHeader parses the NRRD header and leaves the returned reader
// positioned at the start of the payload.
func readHeader(path string) (header, payloadReader, error) {
	h := header{spacing: types.DefaultSpacing()}

	f, err := os.Open(path)
	if err != nil {
		return h, payloadReader{}, fmt.Errorf("opening %s: %w", path, err)
	}
	r := bufio.NewReader(f)

	line, err := r.ReadString('\n')
	if err != nil {
		f.Close()
		return h, payloadReader{}, fmt.Errorf("reading %s magic: %w", path, err)
	}
	if strings.TrimSpace(line) != magic {
		f.Close()
		return h, payloadReader{}, fmt.Errorf("%s is not an NRRD file", path)
	}

	dimension := 0
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			f.Close()
			return h, payloadReader{}, fmt.Errorf("reading %s header: %w", path, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break // end of header, payload follows
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			f.Close()
			return h, payloadReader{}, fmt.Errorf("%s: malformed header line %q", path, line)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "type":
			h.valueType = value
		case "dimension":
			dimension, err = strconv.Atoi(value)
			if err == nil && dimension != 3 {
				err = fmt.Errorf("dimension %d unsupported", dimension)
			}
		case "sizes":
			err = parseInts(value, h.sizes[:])
		case "spacings":
			var sp [3]float64
			if err = parseFloats(value, sp[:]); err == nil {
				h.spacing = types.Spacing{X: sp[0], Y: sp[1], Z: sp[2]}
			}
		case "encoding":
			if value != "raw" {
				err = fmt.Errorf("encoding %q unsupported", value)
			}
		case "endian":
			if value != "little" {
				err = fmt.Errorf("endian %q unsupported", value)
			}
		}
		if err != nil {
			f.Close()
			return h, payloadReader{}, fmt.Errorf("%s: header line %q: %w", path, line, err)
		}
	}

	if h.sizes[0] <= 0 || h.sizes[1] <= 0 || h.sizes[2] <= 0 {
		f.Close()
		return h, payloadReader{}, fmt.Errorf("%s: missing or invalid sizes field", path)
	}
	return h, payloadReader{Reader: r, f: f}, nil
}

// payloadReader exposes Close on the header reader's underlying file.
type payloadReader struct {
	*bufio.Reader
	f *os.File
}

func (p payloadReader) Close() error { return p.f.Close() }

func parseInts(s string, out []int) error {
	fields := strings.Fields(s)
	if len(fields) != len(out) {
		return fmt.Errorf("expected %d values, got %d", len(out), len(fields))
	}
	for i, fld := range fields {
		v, err := strconv.Atoi(fld)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

func parseFloats(s string, out []float64) error {
	fields := strings.Fields(s)
	if len(fields) != len(out) {
		return fmt.Errorf("expected %d values, got %d", len(out), len(fields))
	}
	for i, fld := range fields {
		v, err := strconv.ParseFloat(fld, 64)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}
