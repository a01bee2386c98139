package mock

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"
)

// VocabularyEmbedder maps text onto a small set of named concept axes.
// Each axis lists the words that count towards it, so synonyms such as
// "theft" and "stealing" land on the same axis. Text with no known word
// embeds to the zero vector.
type VocabularyEmbedder struct {
	axes      []string
	wordAxis  map[string]int
	callCount atomic.Int64
}

// NewVocabularyEmbedder creates an embedder over vocabulary, which maps an
// axis name to the words belonging to it. Axes are ordered by name.
func NewVocabularyEmbedder(vocabulary map[string][]string) *VocabularyEmbedder {
	axes := make([]string, 0, len(vocabulary))
	for axis := range vocabulary {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	wordAxis := make(map[string]int)
	for i, axis := range axes {
		for _, word := range vocabulary[axis] {
			wordAxis[strings.ToLower(word)] = i
		}
	}
	return &VocabularyEmbedder{axes: axes, wordAxis: wordAxis}
}

// Dimension returns the number of axes.
func (v *VocabularyEmbedder) Dimension() int {
	return len(v.axes)
}

// EmbedText counts the words of text on each axis.
func (v *VocabularyEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	v.callCount.Add(1)
	vector := make([]float32, len(v.axes))
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, word := range words {
		if axis, ok := v.wordAxis[word]; ok {
			vector[axis]++
		}
	}
	return vector, nil
}

// EmbedTexts embeds each text in order.
func (v *VocabularyEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := v.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vector
	}
	return out, nil
}

// CallCount returns the number of EmbedText calls.
func (v *VocabularyEmbedder) CallCount() int {
	return int(v.callCount.Load())
}

// LegalVocabulary is a small vocabulary over criminal and contract law terms.
func LegalVocabulary() map[string][]string {
	return map[string][]string{
		"theft":     {"theft", "thefts", "steal", "stealing", "stolen", "larceny", "robbery"},
		"crime":     {"crime", "crimes", "criminal", "felony", "misdemeanor", "offense"},
		"contract":  {"contract", "contracts", "agreement", "obligation", "breach"},
		"procedure": {"procedure", "procedural", "charges", "charge", "trial", "arraignment"},
		"property":  {"property", "real", "estate", "deed", "tenant"},
	}
}
