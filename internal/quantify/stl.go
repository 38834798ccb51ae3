// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quantify

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// WriteSTL writes a binary STL file: 80-byte header, uint32 triangle
// count, then per triangle a normal, three vertices (all float32
// little-endian) and a zero attribute word.
func WriteSTL(path string, tris []Triangle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating STL file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	var header [80]byte
	copy(header[:], "scan-pipeline surface mesh")
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing STL header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(tris))); err != nil {
		return fmt.Errorf("writing triangle count: %w", err)
	}

	for _, t := range tris {
		rec := [12]float32{}
		n := normal(t)
		rec[0], rec[1], rec[2] = n[0], n[1], n[2]
		for i := 0; i < 3; i++ {
			rec[3+i*3] = float32(t.V[i][0])
			rec[4+i*3] = float32(t.V[i][1])
			rec[5+i*3] = float32(t.V[i][2])
		}
		if err := binary.Write(w, binary.LittleEndian, rec); err != nil {
			return fmt.Errorf("writing triangle: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(0)); err != nil {
			return fmt.Errorf("writing attribute: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing STL file: %w", err)
	}
	return nil
}

// normal returns the unit normal of t from its vertex winding.
func normal(t Triangle) [3]float32 {
	ux := t.V[1][0] - t.V[0][0]
	uy := t.V[1][1] - t.V[0][1]
	uz := t.V[1][2] - t.V[0][2]
	vx := t.V[2][0] - t.V[0][0]
	vy := t.V[2][1] - t.V[0][1]
	vz := t.V[2][2] - t.V[0][2]

	cx := uy*vz - uz*vy
	cy := uz*vx - ux*vz
	cz := ux*vy - uy*vx
	mag := math.Sqrt(cx*cx + cy*cy + cz*cz)
	if mag == 0 {
		return [3]float32{}
	}
	return [3]float32{float32(cx / mag), float32(cy / mag), float32(cz / mag)}
}
