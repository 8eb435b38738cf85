// Package scan walks arbitrary analysis results produced by the AI server and
// turns them into a bounded, categorized field tree for display. Results come
// from an uncontrolled external process, so every entry point tolerates any
// shape without panicking or hanging.
package scan

import (
	"context"
	"sort"
	"time"
)

const (
	// DefaultMaxDepth is how far nested objects are descended into.
	DefaultMaxDepth = 5
	// DefaultMaxFields caps the total number of fields emitted per scan.
	DefaultMaxFields = 100
	// DefaultTimeout bounds the wall-clock time of a single scan.
	DefaultTimeout = 3 * time.Second

	longStringThreshold = 100
)

// Field is one key/value pair discovered while walking an analysis result.
type Field struct {
	Path           string   `json:"path"`
	Name           string   `json:"name"`
	Value          any      `json:"value"`
	Type           string   `json:"type"`
	Category       Category `json:"category"`
	SuggestedLabel string   `json:"suggestedLabel"`
	Confidence     float64  `json:"confidence"`
	IsArray        bool     `json:"isArray"`
	IsObject       bool     `json:"isObject"`
	Children       []Field  `json:"children,omitempty"`
}

// Scanner converts JSON-like values into Field trees within fixed safety
// bounds. The zero value is not usable; call NewScanner.
type Scanner struct {
	MaxDepth  int
	MaxFields int
	Timeout   time.Duration
}

// NewScanner returns a Scanner with the default bounds.
func NewScanner() *Scanner {
	return &Scanner{
		MaxDepth:  DefaultMaxDepth,
		MaxFields: DefaultMaxFields,
		Timeout:   DefaultTimeout,
	}
}

// Scan walks data and returns the discovered fields. It never panics and
// never blocks past the scanner's timeout: pathological input yields an
// empty slice. Output ordering is deterministic for equivalent input.
func (s *Scanner) Scan(ctx context.Context, data any) []Field {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	done := make(chan []Field, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- nil
			}
		}()
		w := &walker{maxDepth: s.maxDepth(), budget: s.maxFields()}
		done <- w.walk(data, "", 0)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fields := <-done:
		if fields == nil {
			return []Field{}
		}
		return fields
	case <-timer.C:
		return []Field{}
	case <-ctx.Done():
		return []Field{}
	}
}

// Scan walks data with the default bounds.
func Scan(ctx context.Context, data any) []Field {
	return NewScanner().Scan(ctx, data)
}

func (s *Scanner) maxDepth() int {
	if s.MaxDepth > 0 {
		return s.MaxDepth
	}
	return DefaultMaxDepth
}

func (s *Scanner) maxFields() int {
	if s.MaxFields > 0 {
		return s.MaxFields
	}
	return DefaultMaxFields
}

type walker struct {
	maxDepth int
	budget   int
	emitted  int
}

// walk enumerates the keys of data in sorted order. Non-object input is the
// terminal case and yields no fields.
func (w *walker) walk(data any, basePath string, depth int) []Field {
	obj, ok := data.(map[string]any)
	if !ok || obj == nil {
		return []Field{}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, key := range keys {
		if w.emitted >= w.budget {
			break
		}
		field, ok := w.processKey(obj, key, basePath, depth)
		if !ok {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

// processKey builds a single field. A panic while handling one key skips
// that key only; the rest of the scan continues.
func (w *walker) processKey(obj map[string]any, key, basePath string, depth int) (field Field, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			field, ok = Field{}, false
		}
	}()

	value := obj[key]
	currentPath := key
	if basePath != "" {
		currentPath = basePath + "." + key
	}

	field = Field{
		Path:           currentPath,
		Name:           key,
		Value:          value,
		Type:           typeOf(value),
		Category:       Categorize(key, value),
		SuggestedLabel: Label(key, Categorize(key, value)),
		Confidence:     Confidence(key, value),
		IsArray:        isArray(value),
		IsObject:       isObject(value),
	}
	w.emitted++

	if field.IsObject && !isSimpleObject(value) && depth < w.maxDepth {
		field.Children = w.walk(value, currentPath, depth+1)
	}

	return field, true
}

// IsComplexDisplay reports whether a field needs a dedicated renderer rather
// than a slot in the metrics grid: arrays, objects, and long text.
func IsComplexDisplay(f Field) bool {
	if f.IsArray || f.IsObject {
		return true
	}
	if s, ok := f.Value.(string); ok && len(s) > longStringThreshold {
		return true
	}
	return false
}

func typeOf(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	default:
		return "object"
	}
}

func isArray(value any) bool {
	_, ok := value.([]any)
	return ok
}

func isObject(value any) bool {
	m, ok := value.(map[string]any)
	return ok && m != nil
}

// isSimpleObject reports whether every direct value of an object is a
// primitive or nil. Simple objects are rendered flat, without children.
func isSimpleObject(value any) bool {
	obj, ok := value.(map[string]any)
	if !ok {
		return false
	}
	for _, v := range obj {
		switch v.(type) {
		case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		default:
			return false
		}
	}
	return true
}
