package g2p

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loqalabs/phonex/internal/phoneme"
)

// LoadDictionary reads a YAML map of word to phoneme tokens, e.g.
//
//	phonex: [F, OW, N, EH, K, S]
func LoadDictionary(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dictionary %s: %w", path, err)
	}
	dict := make(map[string][]string, len(raw))
	for word, tokens := range raw {
		phs := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			tok = strings.ToUpper(strings.TrimSpace(tok))
			if _, ok := phoneme.Lookup(tok); !ok {
				return nil, fmt.Errorf("dictionary %s: word %q: unknown phoneme %q", path, word, tok)
			}
			phs = append(phs, tok)
		}
		dict[strings.ToLower(word)] = phs
	}
	return dict, nil
}
