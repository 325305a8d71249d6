package reader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	// maxDropLogs caps how many dropped lines are logged per file so a
	// pathological file cannot flood the log. Later drops are only counted.
	maxDropLogs = 5

	// dropPreviewBytes limits how much of an offending line is logged.
	dropPreviewBytes = 200

	defaultBatchSize = 1000
	maxLineBytes     = 4 << 20
)

// Options configures a Reader.
type Options struct {
	Delimiter rune   // default '\t'
	Encoding  string // utf-8 (default), latin-1, windows-1252
	BatchSize int    // records per batch, default 1000

	// DropOverflow drops lines with more fields than the header instead of
	// merging the excess into the last column. Merging can silently
	// concatenate unrelated data, so strict deployments may prefer to drop.
	DropOverflow bool

	Logger *logrus.Entry
}

// Cursor tracks position within the file during iteration.
type Cursor struct {
	HeaderLines int   // lines consumed by the header
	Line        int   // last line touched (1-based, header is line 1)
	Processed   int64 // records emitted
	Skipped     int64 // malformed lines dropped
}

// Reader decodes one delimited file into batches of Records. It first runs a
// structured CSV decode; if that decoder reaches an unrecoverable tokenizer
// state it switches permanently to a line-oriented recovery decoder for the
// remainder of the file. Individual malformed lines never abort the read:
// over-long lines are merged (or dropped, per Options.DropOverflow),
// short lines are right-padded with nulls, and irreconcilable lines are
// dropped and counted.
//
// A Reader is a single pass over the file; restarting requires reopening.
type Reader struct {
	path string
	opts Options
	log  *logrus.Entry

	file     *os.File
	csv      *csv.Reader   // structured path; nil once recovery is engaged
	rec      *bufio.Reader // recovery path
	columns  []string
	expected int
	delim    string
	cursor   Cursor
	dropLogs int
	eof      bool
}

// Open opens path and reads its header line to establish the column set.
// It returns *NotFoundError when the path does not exist and *DecodeError
// when the header cannot be decoded under the configured encoding.
func Open(path string, opts Options) (*Reader, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = '\t'
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	dec, err := decodeStream(f, opts.Encoding)
	if err != nil {
		f.Close()
		return nil, err
	}

	br := bufio.NewReaderSize(dec, 64<<10)
	header, err := readHeaderLine(br)
	if err != nil {
		f.Close()
		return nil, &DecodeError{Path: path, Line: 1, Err: err}
	}
	if isUTF8(opts.Encoding) && !utf8.ValidString(header) {
		f.Close()
		return nil, &DecodeError{Path: path, Line: 1, Err: errors.New("header is not valid UTF-8")}
	}

	columns, err := splitQuoted(header, opts.Delimiter)
	if err != nil {
		// A quote glitch in the header should not make the file unreadable;
		// fall back to a plain split.
		columns = strings.Split(header, string(opts.Delimiter))
	}
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "") {
		f.Close()
		return nil, &DecodeError{Path: path, Line: 1, Err: errors.New("empty header")}
	}

	cr := csv.NewReader(br)
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = false

	return &Reader{
		path:     path,
		opts:     opts,
		log:      log,
		file:     f,
		csv:      cr,
		columns:  columns,
		expected: len(columns),
		delim:    string(opts.Delimiter),
		cursor:   Cursor{HeaderLines: 1, Line: 1},
	}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Path returns the file path this reader was opened on.
func (r *Reader) Path() string { return r.path }

// Columns returns the header columns in file order.
func (r *Reader) Columns() []string { return r.columns }

// Cursor returns the current position and line counters.
func (r *Reader) Cursor() Cursor { return r.cursor }

// ReadBatch returns the next batch of records, at most Options.BatchSize
// long. The final batch of a file may be shorter but is never empty; after
// the last batch ReadBatch returns io.EOF.
func (r *Reader) ReadBatch() ([]Record, error) {
	if r.eof {
		return nil, io.EOF
	}

	batch := make([]Record, 0, r.opts.BatchSize)
	for len(batch) < r.opts.BatchSize {
		var (
			rec Record
			ok  bool
			err error
		)
		if r.csv != nil {
			rec, ok, err = r.nextStructured()
		} else {
			rec, ok, err = r.nextRecovered()
		}
		if err == io.EOF {
			r.eof = true
			break
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		batch = append(batch, rec)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// nextStructured reads one record via the structured CSV decoder. An
// unrecoverable parse error triggers the permanent switch to the recovery
// decoder; field-count mismatches are reconciled in place.
func (r *Reader) nextStructured() (Record, bool, error) {
	fields, err := r.csv.Read()
	if err == io.EOF {
		return Record{}, false, io.EOF
	}
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		if serr := r.switchToRecovery(perr.StartLine, perr.Err); serr != nil {
			return Record{}, false, serr
		}
		return r.nextRecovered()
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read %s: %w", r.path, err)
	}

	line, _ := r.csv.FieldPos(0)
	r.cursor.Line = r.cursor.HeaderLines + line
	return r.reconcile(fields)
}

// switchToRecovery abandons the structured decoder and reopens the file for
// line-oriented recovery, skipping everything already delivered. startLine
// is 1-based and counted after the header, as reported by csv.ParseError.
func (r *Reader) switchToRecovery(startLine int, cause error) error {
	r.log.Warnf("Structured decoder failed at line %d of %s (%v), switching to line-oriented recovery for the remainder of the file",
		r.cursor.HeaderLines+startLine, r.path, cause)

	if r.file != nil {
		r.file.Close()
	}
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to reopen %s for recovery: %w", r.path, err)
	}
	dec, err := decodeStream(f, r.opts.Encoding)
	if err != nil {
		f.Close()
		return err
	}

	br := bufio.NewReaderSize(dec, 64<<10)

	// Skip the header and every line consumed before the failing record.
	skip := r.cursor.HeaderLines + startLine - 1
	for i := 0; i < skip; i++ {
		if _, _, err := readLongLine(br); err != nil {
			break
		}
	}

	r.file = f
	r.rec = br
	r.csv = nil
	r.cursor.Line = skip
	return nil
}

// nextRecovered reads one record via the line-oriented recovery decoder.
func (r *Reader) nextRecovered() (Record, bool, error) {
	for {
		line, tooLong, err := readLongLine(r.rec)
		if err == io.EOF {
			return Record{}, false, io.EOF
		}
		if err != nil {
			return Record{}, false, &DecodeError{Path: r.path, Line: r.cursor.Line, Err: err}
		}
		r.cursor.Line++
		if tooLong {
			r.drop(line, fmt.Sprintf("line exceeds %d bytes", maxLineBytes))
			return Record{}, false, nil
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if isUTF8(r.opts.Encoding) && !utf8.ValidString(line) {
			return Record{}, false, &DecodeError{Path: r.path, Line: r.cursor.Line, Err: errors.New("line is not valid UTF-8")}
		}

		fields, err := splitQuoted(line, r.opts.Delimiter)
		if err != nil {
			// Quote structure is ambiguous; splitting blind would produce an
			// arbitrary token count, so the line is dropped.
			r.drop(line, err.Error())
			return Record{}, false, nil
		}
		return r.reconcile(fields)
	}
}

// readLongLine reads one line without the newline, keeping at most
// maxLineBytes of it. When the line is longer the remainder is consumed and
// discarded and tooLong is set, so an oversized line costs one drop rather
// than aborting the file. io.EOF is returned only when nothing was read.
func readLongLine(br *bufio.Reader) (line string, tooLong bool, err error) {
	var b strings.Builder
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			if b.Len()+len(chunk) > maxLineBytes {
				b.Write(chunk[:maxLineBytes-b.Len()])
				tooLong = true
			} else {
				b.Write(chunk)
			}
		}
		switch rerr {
		case nil:
			s := strings.TrimSuffix(b.String(), "\n")
			return s, tooLong, nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if b.Len() == 0 {
				return "", false, io.EOF
			}
			return b.String(), tooLong, nil
		default:
			return "", false, rerr
		}
	}
}

// reconcile turns a tokenized line into a Record, repairing field-count
// mismatches: excess trailing fields are merged back into the last column
// (rejoined with the original delimiter) and missing trailing fields are
// right-padded with null.
func (r *Reader) reconcile(fields []string) (Record, bool, error) {
	switch {
	case len(fields) == r.expected:
		// well-formed

	case len(fields) > r.expected:
		if r.opts.DropOverflow {
			r.drop(strings.Join(fields, r.delim),
				fmt.Sprintf("expected %d fields, got %d", r.expected, len(fields)))
			return Record{}, false, nil
		}
		merged := make([]string, r.expected)
		copy(merged, fields[:r.expected-1])
		merged[r.expected-1] = strings.Join(fields[r.expected-1:], r.delim)
		fields = merged

	default: // len(fields) < r.expected
		padded := make([]string, r.expected)
		copy(padded, fields)
		fields = padded
	}

	r.cursor.Processed++
	return NewRecord(r.columns, fields), true, nil
}

// drop counts a malformed line and logs the first few occurrences.
func (r *Reader) drop(line, reason string) {
	r.cursor.Skipped++
	if r.dropLogs < maxDropLogs {
		r.dropLogs++
		preview := line
		if len(preview) > dropPreviewBytes {
			preview = preview[:dropPreviewBytes] + "..."
		}
		r.log.Warnf("Line %d of %s dropped (%s): %s", r.cursor.Line, r.path, reason, preview)
		if r.dropLogs == maxDropLogs {
			r.log.Warnf("Further malformed lines in %s will be counted but not logged", r.path)
		}
	}
}

// splitQuoted tokenizes a single line honoring the quote character and the
// configured delimiter.
func splitQuoted(line string, delimiter rune) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	return cr.Read()
}

// readHeaderLine reads the first line, tolerating a missing trailing newline
// and stripping a UTF-8 BOM.
func readHeaderLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimPrefix(line, "\uFEFF")
	if line == "" {
		return "", io.ErrUnexpectedEOF
	}
	return line, nil
}

func isUTF8(encoding string) bool {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// decodeStream wraps f with a decoder for the configured encoding. UTF-8
// input is passed through untouched.
func decodeStream(f io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return f, nil
	case "latin-1", "latin1", "iso-8859-1":
		return transform.NewReader(f, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(f, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
