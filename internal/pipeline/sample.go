package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"graph-loader/internal/config"
	"graph-loader/internal/reader"
	"graph-loader/pkg/types"

	"github.com/sirupsen/logrus"
)

// WriteSamples extracts the first N rows of every enabled file into the
// sample directory and returns a config pointed at the samples. A sample run
// exercises the whole pipeline on a fraction of the data before committing
// to a multi-hour load.
func WriteSamples(cfg *types.Config, log *logrus.Entry) (*types.Config, error) {
	sampleDir := cfg.Processing.SampleDir
	if err := os.MkdirAll(sampleDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sample directory: %w", err)
	}

	opts := reader.Options{
		Delimiter: delimiterRune(cfg.Input.Delimiter),
		Encoding:  cfg.Input.Encoding,
		Logger:    log,
	}

	for _, spec := range append(enabledSpecs(cfg.Entities), enabledSpecs(cfg.Relationships)...) {
		src := filepath.Join(cfg.Input.Dir, spec.File)
		dst := filepath.Join(sampleDir, config.SampleFileName(spec.File))
		rows, err := reader.WriteSample(src, dst, cfg.Processing.SampleRows, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to sample %s: %w", spec.File, err)
		}
		log.Infof("Wrote %d sample rows from %s to %s", rows, spec.File, dst)
	}

	return config.SampleVariant(cfg, sampleDir), nil
}
