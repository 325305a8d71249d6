package reader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// WriteSample copies the header and up to maxRows data records from srcPath
// into dstPath, using the same delimiter. Null values are written as empty
// fields. It returns the number of records written. Sample files let a test
// run exercise the full pipeline without touching multi-gigabyte inputs.
func WriteSample(srcPath, dstPath string, maxRows int, opts Options) (int, error) {
	opts.BatchSize = min(maxRows, defaultBatchSize)
	r, err := Open(srcPath, opts)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create sample file %s: %w", dstPath, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	w.Comma = r.opts.Delimiter
	if err := w.Write(r.Columns()); err != nil {
		return 0, fmt.Errorf("failed to write sample header: %w", err)
	}

	written := 0
	row := make([]string, len(r.Columns()))
	for written < maxRows {
		batch, err := r.ReadBatch()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
		for _, rec := range batch {
			if written >= maxRows {
				break
			}
			for i, col := range r.Columns() {
				if v, ok := rec.Get(col); ok {
					row[i] = v
				} else {
					row[i] = ""
				}
			}
			if err := w.Write(row); err != nil {
				return written, fmt.Errorf("failed to write sample row: %w", err)
			}
			written++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return written, fmt.Errorf("failed to flush sample file: %w", err)
	}
	return written, nil
}
