package reader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// sampleBytes is how much of the file is scanned to estimate the row count.
const sampleBytes = 1 << 20

// Info describes an input file without reading it fully.
type Info struct {
	Path      string
	SizeBytes int64
	// EstimatedRows extrapolates the newline density of the first 1 MiB
	// across the whole file. It is an approximation, not an exact count;
	// callers must treat it as a hint for progress reporting only.
	EstimatedRows int64
	Columns       []string
}

// FileInfo estimates the size and row count of the file. It opens its own
// handle so the main iteration is not disturbed.
func (r *Reader) FileInfo() (Info, error) {
	st, err := os.Stat(r.path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat %s: %w", r.path, err)
	}

	f, err := os.Open(r.path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	defer f.Close()

	lines, sampled, err := countSampleLines(f)
	if err != nil {
		return Info{}, fmt.Errorf("failed to sample %s: %w", r.path, err)
	}

	size := st.Size()
	estimated := int64(lines)
	if sampled > 0 && size > sampled {
		estimated = size * int64(lines) / sampled
	}
	// Do not count the header as a data row.
	estimated -= int64(r.cursor.HeaderLines)
	if estimated < 0 {
		estimated = 0
	}

	return Info{
		Path:          r.path,
		SizeBytes:     size,
		EstimatedRows: estimated,
		Columns:       r.columns,
	}, nil
}

// countSampleLines counts newlines in the first sampleBytes of f and returns
// the number of bytes actually read.
func countSampleLines(f io.Reader) (lines int, read int64, err error) {
	br := bufio.NewReaderSize(io.LimitReader(f, sampleBytes), 64<<10)
	buf := make([]byte, 32<<10)
	for {
		n, rerr := br.Read(buf)
		lines += bytes.Count(buf[:n], []byte{'\n'})
		read += int64(n)
		if rerr == io.EOF {
			return lines, read, nil
		}
		if rerr != nil {
			return 0, 0, rerr
		}
	}
}
