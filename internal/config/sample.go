package config

import (
	"graph-loader/pkg/types"
)

// SampleVariant returns a copy of cfg rewritten to read sample files from
// sampleDir. The original config is not modified, so a sample run and a
// later full run can share one loaded configuration without any
// restore-on-exit bookkeeping.
func SampleVariant(cfg *types.Config, sampleDir string) *types.Config {
	derived := *cfg
	derived.Input.Dir = sampleDir
	derived.Entities = sampleSpecs(cfg.Entities)
	derived.Relationships = sampleSpecs(cfg.Relationships)
	return &derived
}

func sampleSpecs(specs []types.FileSpec) []types.FileSpec {
	out := make([]types.FileSpec, len(specs))
	for i, spec := range specs {
		out[i] = spec
		out[i].File = SampleFileName(spec.File)
	}
	return out
}

// SampleFileName is the name a sample of the given source file is written under.
func SampleFileName(file string) string {
	return "sample_" + file
}
