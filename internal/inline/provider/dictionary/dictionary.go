// Package dictionary provides word completion from a prefix trie.
package dictionary

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/dshills/ghostline/internal/inline/compute"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/variant"
	"github.com/dshills/ghostline/internal/logging"
)

const (
	// DefaultLimit is the default number of variants per request.
	DefaultLimit = 5

	// DefaultMinPrefix is the default minimum word prefix length.
	DefaultMinPrefix = 2
)

// Dictionary suggests completions of the word before the caret. Each
// candidate word becomes one variant; more frequent words come first.
type Dictionary struct {
	mu        sync.RWMutex
	trie      *patricia.Trie
	words     int
	limit     int
	minPrefix int
	logger    *log.Logger
}

// Option configures a Dictionary.
type Option func(*Dictionary)

// WithLimit sets the maximum number of variants per request.
func WithLimit(n int) Option {
	return func(d *Dictionary) {
		if n > 0 {
			d.limit = n
		}
	}
}

// WithMinPrefix sets how many word characters must precede the caret.
func WithMinPrefix(n int) Option {
	return func(d *Dictionary) {
		if n > 0 {
			d.minPrefix = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dictionary) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates an empty dictionary.
func New(opts ...Option) *Dictionary {
	d := &Dictionary{
		trie:      patricia.NewTrie(),
		limit:     DefaultLimit,
		minPrefix: DefaultMinPrefix,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddWord inserts or replaces a word.
func (d *Dictionary) AddWord(word string, frequency int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.trie.Insert(patricia.Prefix(word), frequency) {
		d.words++
		return
	}
	d.trie.Set(patricia.Prefix(word), frequency)
}

// Len returns the number of words.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.words
}

// Load reads one word per line, optionally followed by a frequency.
// Blank lines and lines starting with '#' are skipped.
func (d *Dictionary) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		freq := 1
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return fmt.Errorf("dictionary line %d: bad frequency %q: %w", line, fields[1], err)
			}
			freq = n
		}
		d.AddWord(fields[0], freq)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("dictionary: %w", err)
	}
	d.logger.Debug("dictionary loaded", "words", d.Len())
	return nil
}

// Match is one completion candidate.
type Match struct {
	Word      string
	Frequency int
}

// Complete returns up to limit words that extend prefix, most frequent first.
func (d *Dictionary) Complete(prefix string, limit int) []Match {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matches []Match
	err := d.trie.VisitSubtree(patricia.Prefix(prefix), func(p patricia.Prefix, item patricia.Item) error {
		word := string(p)
		if word == prefix {
			return nil
		}
		freq, ok := item.(int)
		if !ok {
			d.logger.Errorf("unknown item type %T for word %s", item, word)
			return nil
		}
		matches = append(matches, Match{Word: word, Frequency: freq})
		return nil
	})
	if err != nil {
		d.logger.Error("trie visit failed", "prefix", prefix, "err", err)
		return nil
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if a.Frequency != b.Frequency {
			return b.Frequency - a.Frequency
		}
		return strings.Compare(a.Word, b.Word)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ID implements provider.Provider.
func (d *Dictionary) ID() string {
	return "dictionary"
}

// IsEnabled implements provider.Provider.
func (d *Dictionary) IsEnabled(req provider.Request) bool {
	return len([]rune(WordBefore(req.Prefix()))) >= d.minPrefix
}

// Suggest implements provider.Provider.
func (d *Dictionary) Suggest(ctx context.Context, req provider.Request) (*compute.Source, error) {
	prefix := WordBefore(req.Prefix())
	src := compute.NewSource()
	for _, m := range d.Complete(prefix, d.limit) {
		if err := src.Add(compute.Elements(variant.Insertable(m.Word[len(prefix):]))); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// WordBefore returns the run of letters, digits and underscores at the end
// of text.
func WordBefore(text string) string {
	i := len(text)
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		i -= size
	}
	return text[i:]
}
