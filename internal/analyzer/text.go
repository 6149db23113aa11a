package analyzer

import (
	"context"
	"strings"
	"unicode"

	"github.com/pemistahl/lingua-go"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Text computes a frequency distribution, naive named entities and
// lexicon-based sentiment over extracted page text. The language
// detector is built once at process start and injected; it is
// read-only after construction.
type Text struct {
	detector lingua.LanguageDetector
}

// NewText constructs the text analyzer.
func NewText(detector lingua.LanguageDetector) *Text {
	return &Text{detector: detector}
}

// NewLanguageDetector builds the process-wide language detector. Model
// loading is the expensive part, so callers should do this once.
func NewLanguageDetector() lingua.LanguageDetector {
	return lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.English, lingua.German, lingua.French, lingua.Spanish, lingua.Russian).
		Build()
}

// Analyze never fails: with no usable text it returns zero-value data
// plus one advisory recommendation.
func (t *Text) Analyze(_ context.Context, content string) (analysis.TextData, []analysis.Recommendation) {
	data := analysis.TextData{
		FrequencyDistribution: map[string]int{},
		Sentiment:             analysis.Sentiment{Neutral: 1},
	}

	tokens := tokenize(content)
	if len(tokens) == 0 {
		return data, []analysis.Recommendation{{
			Message:  "page has no extractable text content",
			Category: analysis.CategoryText,
		}}
	}

	language := ""
	stop := map[string]struct{}{}
	if t.detector != nil {
		if lang, ok := t.detector.DetectLanguageOf(content); ok {
			language = strings.ToLower(lang.IsoCode639_1().String())
			if lang == lingua.English {
				stop = englishStopwords
			}
		}
	}
	data.Language = language

	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if _, isStop := stop[lower]; isStop {
			continue
		}
		data.FrequencyDistribution[lower]++
	}

	data.Entities = extractEntities(content)
	data.Sentiment = scoreSentiment(tokens)

	var recs []analysis.Recommendation
	if len(tokens) < 50 {
		recs = append(recs, analysis.Recommendation{
			Message:  "page has very little text content; consider adding descriptive copy",
			Category: analysis.CategoryText,
		})
	}
	return data, recs
}

func tokenize(content string) []string {
	return strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// extractEntities collects runs of capitalized words that do not open a
// sentence, a cheap stand-in for model-based NER. The tagging strategy
// is intentionally coarse; the field contract is what downstream code
// relies on.
func extractEntities(content string) []analysis.Entity {
	var entities []analysis.Entity
	seen := map[string]struct{}{}

	sentences := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	for _, sentence := range sentences {
		words := strings.Fields(sentence)
		var run []string
		flush := func() {
			if len(run) == 0 {
				return
			}
			name := strings.Join(run, " ")
			run = nil
			if _, dup := seen[name]; dup {
				return
			}
			seen[name] = struct{}{}
			entities = append(entities, analysis.Entity{Name: name, Type: "MISC"})
		}
		for i, word := range words {
			trimmed := strings.Trim(word, ",;:()\"'")
			if i > 0 && isCapitalized(trimmed) {
				run = append(run, trimmed)
				continue
			}
			flush()
		}
		flush()
	}
	return entities
}

func isCapitalized(word string) bool {
	if len(word) < 2 {
		return false
	}
	runes := []rune(word)
	return unicode.IsUpper(runes[0]) && unicode.IsLetter(runes[0])
}

// scoreSentiment does lexicon counting over tokens. Positive, Negative
// and Neutral land in [0,1] and sum to 1; Compound lands in [-1,1].
func scoreSentiment(tokens []string) analysis.Sentiment {
	var pos, neg int
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if _, ok := positiveWords[lower]; ok {
			pos++
		}
		if _, ok := negativeWords[lower]; ok {
			neg++
		}
	}
	total := float64(len(tokens))
	s := analysis.Sentiment{
		Positive: float64(pos) / total,
		Negative: float64(neg) / total,
	}
	s.Neutral = 1 - s.Positive - s.Negative
	if pos+neg > 0 {
		s.Compound = float64(pos-neg) / float64(pos+neg)
	}
	return s
}

var englishStopwords = toSet(
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"from", "has", "have", "he", "her", "his", "i", "if", "in", "is",
	"it", "its", "my", "no", "not", "of", "on", "or", "our", "she",
	"so", "that", "the", "their", "them", "then", "there", "these",
	"they", "this", "to", "was", "we", "were", "will", "with", "you",
	"your",
)

var positiveWords = toSet(
	"good", "great", "excellent", "amazing", "love", "best", "happy",
	"wonderful", "fantastic", "awesome", "easy", "fast", "reliable",
	"beautiful", "perfect", "helpful", "trusted", "free", "win",
	"success", "improve", "better",
)

var negativeWords = toSet(
	"bad", "worst", "terrible", "awful", "hate", "slow", "broken",
	"error", "fail", "failure", "problem", "difficult", "poor",
	"ugly", "wrong", "scam", "spam", "lose", "loss", "unsafe",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
