// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Result directory layout. Each stage owns exactly one artifact file
// under <data_dir>/results/<scan_id>/; a stage is considered done only
// when both its database record and its file exist.
const (
	scansDir   = "scans"
	resultsDir = "results"

	detectionsFile = "detections.yaml"
	roiFile        = "roi.yaml"
	normalizedFile = "normalized.nrrd"
	labelsFile     = "labels.nrrd"
	metricsFile    = "metrics.json"
)

// ScanDir returns the slice image directory for a scan.
func ScanDir(dataDir, scanID string) string {
	return filepath.Join(dataDir, scansDir, scanID)
}

// ResultDir returns the artifact directory for a scan.
func ResultDir(dataDir, scanID string) string {
	return filepath.Join(dataDir, resultsDir, scanID)
}

// artifactFile maps a stage to its artifact filename.
func artifactFile(stage types.Stage) string {
	switch stage {
	case types.StageDetecting:
		return detectionsFile
	case types.StageAggregating:
		return roiFile
	case types.StageNormalizing:
		return normalizedFile
	case types.StageSegmenting:
		return labelsFile
	case types.StageQuantifying:
		return metricsFile
	}
	return ""
}

// detectionsDoc is the detection stage artifact.
type detectionsDoc struct {
	ScanID       string            `yaml:"scan_id"`
	ModelVersion string            `yaml:"model_version"`
	Detections   []types.Detection `yaml:"detections"`
}

// roiDoc is the aggregation stage artifact. Extents record the volume
// the ROI was clamped against.
type roiDoc struct {
	ScanID string    `yaml:"scan_id"`
	ROI    types.ROI `yaml:"roi"`
	Width  int       `yaml:"width"`
	Height int       `yaml:"height"`
	Depth  int       `yaml:"depth"`
}

// metricsDoc is the quantification stage artifact.
type metricsDoc struct {
	ScanID       string               `json:"scan_id"`
	ModelVersion string               `json:"model_version"`
	Organs       []types.OrganMetrics `json:"organs"`

	// Failed lists labels whose surface extraction failed and were
	// omitted from Organs.
	Failed map[int32]string `json:"failed_labels,omitempty"`
}

func writeDetections(path, scanID, modelVersion string, dets []types.Detection) error {
	return writeYAML(path, detectionsDoc{ScanID: scanID, ModelVersion: modelVersion, Detections: dets})
}

func readDetections(path string) ([]types.Detection, error) {
	var doc detectionsDoc
	if err := readYAML(path, &doc); err != nil {
		return nil, err
	}
	return doc.Detections, nil
}

func writeROI(path, scanID string, roi types.ROI, width, height, depth int) error {
	return writeYAML(path, roiDoc{ScanID: scanID, ROI: roi, Width: width, Height: height, Depth: depth})
}

func readROI(path string) (types.ROI, error) {
	var doc roiDoc
	if err := readYAML(path, &doc); err != nil {
		return types.ROI{}, err
	}
	return doc.ROI, nil
}

// writeMetrics assigns each organ record a fresh document id, stamps
// the segmenter version, and writes the metrics document.
func writeMetrics(path, scanID, modelVersion string, organs []types.OrganMetrics, failures map[int32]error) error {
	doc := metricsDoc{ScanID: scanID, ModelVersion: modelVersion}
	for _, m := range organs {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("generating metrics document id: %w", err)
		}
		m.ID = id.String()
		m.ModelVersion = modelVersion
		doc.Organs = append(doc.Organs, m)
	}
	if len(failures) > 0 {
		doc.Failed = make(map[int32]string, len(failures))
		for label, err := range failures {
			doc.Failed[label] = err.Error()
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func writeYAML(path string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

func readYAML(path string, doc any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes to a temporary name and renames into place so
// an interrupted run never leaves a truncated artifact behind.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
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
