package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Intent Classifier
// =============================================================================
//
// Classifier turns free-text requests into (intent category, confidence)
// pairs through an external text-generation collaborator. The categorization
// prompt lists the fixed category set with one-line descriptions and asks for
// a JSON reply. An unparseable reply, unknown category, or non-numeric
// confidence degrades to the general/0.5 fallback; only an outright
// generator failure propagates to the caller.

// Fallback classification applied when a reply cannot be trusted.
const (
	FallbackIntent     = "general"
	FallbackConfidence = 0.5
)

// TextGenerator is the narrow text-generation contract the classifier
// consumes.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, modelHint string) (string, error)
}

// TTLProvider supplies per-intent cache lifetimes for classification
// results.
type TTLProvider interface {
	CacheTTL(intent string) time.Duration
}

// Classification is one (intent, confidence) assignment.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Outcome is the explicit result of parsing a classifier reply. Fallback is
// a first-class branch, not an exception path: it is true when the reply
// could not be used and the default classification was substituted.
type Outcome struct {
	Classification
	Fallback bool
	Raw      string
}

// DefaultCategories is the fixed supported category set with the one-line
// descriptions used in the categorization prompt.
func DefaultCategories() map[string]string {
	return map[string]string{
		"general":         "everyday questions with no specialist domain",
		"technical":       "software, hardware, or engineering questions",
		"pricing":         "costs, rates, plans, or price comparisons",
		"availability":    "stock, capacity, scheduling, or uptime questions",
		"billing":         "invoices, payments, refunds, or account charges",
		"legal":           "contracts, compliance, or regulatory questions",
		"medical":         "health, treatment, or clinical questions",
		"financial":       "investment, tax, or accounting questions",
		"comparison":      "requests to weigh multiple options against each other",
		"troubleshooting": "diagnosing something that is broken or misbehaving",
	}
}

// Config configures the classifier.
type Config struct {
	// Model is the hint forwarded to the text generator.
	Model string

	// Categories overrides the supported category set; nil uses
	// DefaultCategories.
	Categories map[string]string

	// CacheSize bounds the classification cache; 0 disables caching.
	CacheSize int

	// CacheTTL is the upper bound on cached entry age. Per-intent
	// lifetimes from a TTLProvider tighten it further.
	CacheTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:     "claude-haiku-4-5-20251001",
		CacheSize: 512,
		CacheTTL:  24 * time.Hour,
	}
}

// Classifier classifies request text via a text generator.
type Classifier struct {
	gen        TextGenerator
	config     Config
	categories map[string]string
	prompt     string
	cache      *resultCache
}

// NewClassifier creates a classifier. The ttls provider is optional; when
// nil, cached entries live for the full configured CacheTTL.
func NewClassifier(gen TextGenerator, cfg Config, ttls TTLProvider) *Classifier {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	categories := cfg.Categories
	if categories == nil {
		categories = DefaultCategories()
	}

	c := &Classifier{
		gen:        gen,
		config:     cfg,
		categories: categories,
		prompt:     buildPrompt(categories),
	}
	if cfg.CacheSize > 0 {
		c.cache = newResultCache(cfg.CacheSize, cfg.CacheTTL, ttls)
	}
	return c
}

// Classify classifies request text. Generator failure is the only error
// path; every parse problem resolves to the fallback classification.
func (c *Classifier) Classify(ctx context.Context, text string) (Outcome, error) {
	key := normalizeInput(text)
	if c.cache != nil {
		if outcome, ok := c.cache.get(key); ok {
			return outcome, nil
		}
	}

	reply, err := c.gen.Generate(ctx, c.prompt+"\n\nRequest: "+text, c.config.Model)
	if err != nil {
		return Outcome{}, fmt.Errorf("classification request failed: %w", err)
	}

	outcome := ParseReply(reply, c.categories)
	if c.cache != nil {
		c.cache.put(key, outcome)
	}
	return outcome, nil
}

func normalizeInput(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func buildPrompt(categories map[string]string) string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Classify the user request into exactly one category:\n")
	for _, name := range names {
		sb.WriteString("- ")
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(categories[name])
		sb.WriteString("\n")
	}
	sb.WriteString("\nReply with JSON only: {\"intent\": \"<category>\", \"confidence\": <0.0-1.0>}")
	return sb.String()
}

// =============================================================================
// Reply Parsing
// =============================================================================

// ParseReply extracts a classification from a generator reply. Parsing is
// deterministic: identical replies always yield identical outcomes.
func ParseReply(reply string, categories map[string]string) Outcome {
	fallback := Outcome{
		Classification: Classification{Intent: FallbackIntent, Confidence: FallbackConfidence},
		Fallback:       true,
		Raw:            reply,
	}

	jsonStr := extractJSONBlock(reply)
	if jsonStr == "" {
		return fallback
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return fallback
	}

	intent, ok := raw["intent"].(string)
	if !ok {
		return fallback
	}
	intent = strings.ToLower(strings.TrimSpace(intent))
	if _, known := categories[intent]; !known {
		return fallback
	}

	conf, ok := raw["confidence"].(float64)
	if !ok {
		return fallback
	}

	return Outcome{
		Classification: Classification{Intent: intent, Confidence: ClampConfidence(conf)},
		Raw:            reply,
	}
}

// ClampConfidence clamps a confidence score to [0, 1].
func ClampConfidence(conf float64) float64 {
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

func extractJSONBlock(text string) string {
	start, end := findJSONBounds(text)
	if start == -1 || end == -1 {
		return ""
	}
	return text[start:end]
}

func findJSONBounds(text string) (int, int) {
	start := -1
	braceCount := 0
	for i, r := range text {
		if r == '{' {
			if start == -1 {
				start = i
			}
			braceCount++
			continue
		}
		if r == '}' && start != -1 {
			braceCount--
			if braceCount == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}
