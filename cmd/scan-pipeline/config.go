// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// loadConfig builds the pipeline configuration: documented defaults,
// overridden by the config file and SCAN_PIPELINE_* environment
// variables via viper, overridden by command-line flags.
func loadConfig(cmd *cobra.Command) types.PipelineConfig {
	cfg := types.DefaultConfig()

	if viper.IsSet("detection.min_confidence") {
		cfg.Detection.MinConfidence = viper.GetFloat64("detection.min_confidence")
	}
	if viper.IsSet("aggregation.padding") {
		cfg.Aggregation.Padding = viper.GetInt("aggregation.padding")
	}
	if viper.IsSet("normalization.lower") {
		cfg.Normalization.Lower = viper.GetFloat64("normalization.lower")
	}
	if viper.IsSet("normalization.upper") {
		cfg.Normalization.Upper = viper.GetFloat64("normalization.upper")
	}
	if viper.IsSet("normalization.auto_percentile") {
		cfg.Normalization.AutoPercentile = viper.GetFloat64("normalization.auto_percentile")
	}
	if viper.IsSet("segmentation.patch_size") {
		if s := viper.GetIntSlice("segmentation.patch_size"); len(s) == 3 {
			cfg.Segmentation.PatchSize = [3]int{s[0], s[1], s[2]}
		}
	}
	if viper.IsSet("segmentation.overlap_fraction") {
		cfg.Segmentation.OverlapFraction = viper.GetFloat64("segmentation.overlap_fraction")
	}
	if viper.IsSet("segmentation.blend_sigma") {
		cfg.Segmentation.BlendSigma = viper.GetFloat64("segmentation.blend_sigma")
	}
	if viper.IsSet("segmentation.workers") {
		cfg.Segmentation.Workers = viper.GetInt("segmentation.workers")
	}
	if viper.IsSet("segmentation.cleanup_largest_component") {
		cfg.Segmentation.CleanupLargestComponent = viper.GetBool("segmentation.cleanup_largest_component")
	}
	if viper.IsSet("quantification.surface_method") {
		cfg.Quantification.SurfaceMethod = types.SurfaceMethod(viper.GetString("quantification.surface_method"))
	}
	if viper.IsSet("quantification.export_meshes") {
		cfg.Quantification.ExportMeshes = viper.GetBool("quantification.export_meshes")
	}
	if viper.IsSet("quantification.organ_names") {
		names := make(map[int32]string)
		for label, name := range viper.GetStringMapString("quantification.organ_names") {
			if l, err := strconv.ParseInt(label, 10, 32); err == nil {
				names[int32(l)] = name
			}
		}
		if len(names) > 0 {
			cfg.Quantification.OrganNames = names
		}
	}
	if viper.IsSet("models.kind") {
		cfg.Models.Kind = types.ModelKind(viper.GetString("models.kind"))
	}
	if viper.IsSet("models.base_url") {
		cfg.Models.BaseURL = viper.GetString("models.base_url")
	}
	if viper.IsSet("models.timeout") {
		cfg.Models.Timeout = viper.GetDuration("models.timeout")
	}
	if viper.IsSet("models.max_retries") {
		cfg.Models.MaxRetries = viper.GetInt("models.max_retries")
	}
	if viper.IsSet("models.detector_version") {
		cfg.Models.DetectorVersion = viper.GetString("models.detector_version")
	}
	if viper.IsSet("models.segmenter_version") {
		cfg.Models.SegmenterVersion = viper.GetString("models.segmenter_version")
	}
	if viper.IsSet("models.classes") {
		cfg.Models.Classes = viper.GetInt("models.classes")
	}
	if viper.IsSet("models.threshold") {
		cfg.Models.Threshold = viper.GetFloat64("models.threshold")
	}
	if viper.IsSet("storage.data_dir") {
		cfg.Storage.DataDir = viper.GetString("storage.data_dir")
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	return cfg
}
