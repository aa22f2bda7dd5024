package chunking

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize is the maximum number of words per chunk.
	DefaultChunkSize = 512

	// DefaultOverlapSize is the number of trailing words of a chunk repeated
	// at the start of the next one.
	DefaultOverlapSize = 50
)

// ErrInvalidConfig is returned when a chunking configuration cannot be used.
var ErrInvalidConfig = errors.New("chunking: invalid configuration")

// Config holds the chunk sizing parameters. Both values are measured in
// words (whitespace-delimited tokens).
type Config struct {
	// ChunkSize is the maximum number of words in a single chunk.
	ChunkSize int

	// OverlapSize is the number of words shared between consecutive chunks.
	// Must be smaller than ChunkSize.
	OverlapSize int
}

// DefaultConfig returns the 512/50 configuration used when the caller does
// not supply one.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize, OverlapSize: DefaultOverlapSize}
}

// Override returns a per-call chunk sizing. A half-specified override takes
// the missing value from the defaults, keeping the overlap below the size.
// Zero for both returns the zero Config, meaning no override.
func Override(size, overlap int) Config {
	if size == 0 && overlap == 0 {
		return Config{}
	}
	if size == 0 {
		size = DefaultChunkSize
	}
	if overlap == 0 {
		overlap = min(DefaultOverlapSize, size-1)
	}
	return Config{ChunkSize: size, OverlapSize: overlap}
}

// Validate reports whether c can be used to split text.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.OverlapSize <= 0 {
		return fmt.Errorf("%w: overlap size must be positive, got %d", ErrInvalidConfig, c.OverlapSize)
	}
	if c.OverlapSize >= c.ChunkSize {
		return fmt.Errorf("%w: overlap size %d must be smaller than chunk size %d",
			ErrInvalidConfig, c.OverlapSize, c.ChunkSize)
	}
	return nil
}

// Chunker splits normalized text into overlapping chunks bounded by a word
// budget. A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	// cfg is the validated sizing configuration.
	cfg Config
}

// NewChunker validates cfg and returns a ready-to-use Chunker.
func NewChunker(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the sizing configuration of c.
func (c *Chunker) Config() Config { return c.cfg }

// Split cuts text into chunks of at most ChunkSize words. Text that already
// fits is returned as a single trimmed chunk; empty text yields no chunks.
// Every chunk after the first starts with trailing words of its predecessor.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(strings.Fields(text)) <= c.cfg.ChunkSize {
		return []string{text}
	}

	w := &window{size: c.cfg.ChunkSize, overlap: c.cfg.OverlapSize}
	for _, seg := range Segment(text) {
		words := strings.Fields(seg)
		if len(words) == 0 {
			continue
		}
		if len(words) > w.size {
			w.flush()
			w.hardSplit(words)
			continue
		}
		if len(w.buf)+len(words) > w.size {
			w.flush()
			if len(words) == w.size {
				// No room for even one seed word next to the segment.
				w.hardSplit(words)
				continue
			}
			w.shrinkSeed(w.size - len(words))
		}
		w.buf = append(w.buf, words...)
		w.fresh = true
	}
	w.flush()

	return w.chunks
}

// window is the running buffer used by a single Split call.
type window struct {
	// size and overlap mirror the Chunker configuration.
	size, overlap int
	// buf holds the words of the chunk being built, starting with the seed
	// carried over from the previous chunk.
	buf []string
	// fresh is true once buf holds words beyond the carried-over seed.
	fresh bool
	// chunks collects the emitted chunks in order.
	chunks []string
}

// flush emits the buffered chunk, if it holds anything new, and seeds the
// buffer with its trailing overlap words.
func (w *window) flush() {
	if !w.fresh {
		return
	}
	w.emit(w.buf)
}

// emit appends words as a chunk and reseeds the buffer from its tail.
func (w *window) emit(words []string) {
	w.chunks = append(w.chunks, strings.Join(words, " "))
	w.buf = tail(words, w.overlap)
	w.fresh = false
}

// shrinkSeed keeps at most n trailing words of the seed so that the seed plus
// the next segment still fits in one chunk.
func (w *window) shrinkSeed(n int) {
	if len(w.buf) > n {
		w.buf = tail(w.buf, n)
	}
}

// hardSplit cuts an oversized segment, prefixed by the current seed, into
// word windows advancing by size-overlap words per step.
func (w *window) hardSplit(words []string) {
	stream := append(append([]string(nil), w.buf...), words...)
	step := w.size - w.overlap
	if step < 1 {
		step = 1
	}
	for start := 0; ; start += step {
		end := min(start+w.size, len(stream))
		w.emit(stream[start:end])
		if end == len(stream) {
			return
		}
	}
}

// tail returns a copy of the last n words of words.
func tail(words []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(words) {
		n = len(words)
	}
	return append([]string(nil), words[len(words)-n:]...)
}
