package bytecode

import (
	"fmt"
	"io"
	"os"

	"github.com/loqalabs/phonex/internal/phoneme"
)

// ReadFile decodes a PHX file.
func ReadFile(path string) (phoneme.Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bytecode %s: %w", path, err)
	}
	seq, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seq, nil
}

// WriteFile encodes seq into path. Nothing is written when encoding fails.
func WriteFile(path string, seq phoneme.Sequence) error {
	data, err := Encode(seq)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write bytecode %s: %w", path, err)
	}
	return nil
}

// File gives random access to the records of an open PHX file.
type File struct {
	r     io.ReaderAt
	count int
}

// NewFile validates the size of r and returns a record reader over it.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	if size%RecordSize != 0 {
		return nil, &CorruptError{Record: -1, Reason: fmt.Sprintf("length %d is not a multiple of %d", size, RecordSize)}
	}
	return &File{r: r, count: int(size / RecordSize)}, nil
}

// Len is the number of records.
func (f *File) Len() int { return f.count }

// Record reads and decodes record n.
func (f *File) Record(n int) (phoneme.Spec, error) {
	if n < 0 || n >= f.count {
		return phoneme.Spec{}, fmt.Errorf("record %d out of range [0, %d)", n, f.count)
	}
	rec := make([]byte, RecordSize)
	if _, err := f.r.ReadAt(rec, int64(n)*RecordSize); err != nil {
		return phoneme.Spec{}, fmt.Errorf("read record %d: %w", n, err)
	}
	return decodeRecord(rec, n)
}
