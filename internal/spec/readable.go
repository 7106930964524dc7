package spec

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/loqalabs/phonex/internal/phoneme"
)

// ToReadable renders seq as one `PHONEME DURATION PITCH...` line per spec.
// Numbers use the shortest exact form so that parsing the output reproduces
// seq; formants are not written and come back from the voice table.
func ToReadable(seq phoneme.Sequence) string {
	var b strings.Builder
	for _, sp := range seq {
		fmt.Fprintf(&b, "%-3s %s", sp.Phoneme, formatNumber(sp.Duration, 3))
		contour := sp.PitchContour
		if len(contour) == 0 {
			contour = []float64{0}
		}
		for _, hz := range contour {
			b.WriteByte(' ')
			b.WriteString(formatNumber(hz, 1))
		}
		if sp.Voiced != sp.Phoneme.Voiced() {
			if sp.Voiced {
				b.WriteString(" +V")
			} else {
				b.WriteString(" -V")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// formatNumber prints v exactly with at least minDecimals decimals.
func formatNumber(v float64, minDecimals int) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s + "." + strings.Repeat("0", minDecimals)
	}
	if decimals := len(s) - dot - 1; decimals < minDecimals {
		s += strings.Repeat("0", minDecimals-decimals)
	}
	return s
}

// Load reads spec text from disk.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read spec %s: %w", path, err)
	}
	return string(data), nil
}

// Save writes spec text to disk.
func Save(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write spec %s: %w", path, err)
	}
	return nil
}
