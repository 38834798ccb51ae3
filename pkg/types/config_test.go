// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "testing"

func TestFingerprintStable(t *testing.T) {
	a, err := DefaultConfig().Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	b, err := DefaultConfig().Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("identical configs produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintChangesWithConfig(t *testing.T) {
	base, err := DefaultConfig().Fingerprint()
	if err != nil {
		t.Fatal(err)
	}

	mutations := map[string]func(*PipelineConfig){
		"detection threshold": func(c *PipelineConfig) { c.Detection.MinConfidence = 0.5 },
		"padding":             func(c *PipelineConfig) { c.Aggregation.Padding = 7 },
		"patch size":          func(c *PipelineConfig) { c.Segmentation.PatchSize = [3]int{32, 32, 32} },
		"segmenter version":   func(c *PipelineConfig) { c.Models.SegmenterVersion = "v2" },
		"normalization upper": func(c *PipelineConfig) { c.Normalization.Upper = 4095 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			got, err := cfg.Fingerprint()
			if err != nil {
				t.Fatal(err)
			}
			if got == base {
				t.Error("fingerprint unchanged after config mutation")
			}
		})
	}
}
