package scan

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestScanStopsDescendingAtMaxDepth(t *testing.T) {
	// Build a 12-level chain: level.level.level...
	leaf := map[string]any{"value": "bottom", "extra": map[string]any{"deep": true}}
	data := any(leaf)
	for i := 0; i < 12; i++ {
		data = map[string]any{"level": data}
	}

	start := time.Now()
	fields := Scan(context.Background(), data)
	if elapsed := time.Since(start); elapsed > DefaultTimeout {
		t.Fatalf("scan took %v, want under %v", elapsed, DefaultTimeout)
	}

	depth := 0
	current := fields
	for len(current) > 0 {
		depth++
		current = current[0].Children
	}
	if depth > DefaultMaxDepth+1 {
		t.Fatalf("children populated to depth %d, want at most %d", depth, DefaultMaxDepth+1)
	}
}

func TestScanFieldCap(t *testing.T) {
	data := make(map[string]any, 500)
	for i := 0; i < 500; i++ {
		data[fmt.Sprintf("key_%03d", i)] = i
	}

	fields := Scan(context.Background(), data)
	if len(fields) > DefaultMaxFields {
		t.Fatalf("got %d fields, want at most %d", len(fields), DefaultMaxFields)
	}
}

func TestScanNeverPanicsOnHostileInput(t *testing.T) {
	circular := map[string]any{}
	circular["self"] = circular

	inputs := []any{
		nil,
		42,
		"just a string",
		true,
		[]any{1, 2, 3},
		map[string]any{"nil_value": nil},
		map[string]any{"fn": func() {}},
		circular,
	}

	for i, input := range inputs {
		fields := Scan(context.Background(), input)
		if fields == nil {
			t.Fatalf("input %d: got nil, want a (possibly empty) slice", i)
		}
	}
}

func TestScanTerminatesOnCircularInput(t *testing.T) {
	circular := map[string]any{"name": "loop"}
	circular["self"] = circular

	done := make(chan []Field, 1)
	go func() { done <- Scan(context.Background(), circular) }()

	select {
	case fields := <-done:
		if fields == nil {
			t.Fatal("got nil fields")
		}
	case <-time.After(DefaultTimeout + time.Second):
		t.Fatal("scan did not terminate on circular input")
	}
}

func TestScanDeterministicForEquivalentInput(t *testing.T) {
	data := map[string]any{
		"revenue":  "10M",
		"clients":  []any{"a", "b"},
		"metadata": map[string]any{"nested": map[string]any{"x": 1.0}},
		"alpha":    true,
	}

	first := Scan(context.Background(), data)
	second := Scan(context.Background(), data)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("scan not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestScanTimeoutReturnsEmpty(t *testing.T) {
	s := &Scanner{MaxDepth: DefaultMaxDepth, MaxFields: 1 << 20, Timeout: time.Nanosecond}
	data := make(map[string]any, 2000)
	for i := 0; i < 2000; i++ {
		data[fmt.Sprintf("k%04d", i)] = map[string]any{"a": map[string]any{"b": i}}
	}

	fields := s.Scan(context.Background(), data)
	if len(fields) != 0 {
		t.Fatalf("got %d fields after timeout, want 0", len(fields))
	}
}

func TestScanNonObjectInputIsEmpty(t *testing.T) {
	for _, input := range []any{nil, "text", 3.14, true, []any{"a"}} {
		fields := Scan(context.Background(), input)
		if len(fields) != 0 {
			t.Fatalf("input %v: got %d fields, want 0", input, len(fields))
		}
	}
}

func TestScanPaths(t *testing.T) {
	data := map[string]any{
		"financial_metrics": map[string]any{
			"details": map[string]any{
				"breakdown": map[string]any{"revenue_cagr": "15%"},
			},
		},
	}
	fields := Scan(context.Background(), data)
	if len(fields) != 1 {
		t.Fatalf("got %d top fields, want 1", len(fields))
	}
	top := fields[0]
	if top.Path != "financial_metrics" {
		t.Fatalf("top path = %q", top.Path)
	}
	if len(top.Children) != 1 || top.Children[0].Path != "financial_metrics.details" {
		t.Fatalf("unexpected children: %+v", top.Children)
	}
	grand := top.Children[0].Children
	if len(grand) != 1 || grand[0].Path != "financial_metrics.details.breakdown" {
		t.Fatalf("unexpected grandchildren: %+v", grand)
	}
}

func TestScanSimpleObjectHasNoChildren(t *testing.T) {
	data := map[string]any{
		"summary": map[string]any{"headline": "strong", "score": 8.0, "note": nil},
	}
	fields := Scan(context.Background(), data)
	if len(fields) != 1 {
		t.Fatalf("got %d fields, want 1", len(fields))
	}
	if !fields[0].IsObject {
		t.Fatal("expected IsObject")
	}
	if len(fields[0].Children) != 0 {
		t.Fatalf("simple object should not have children, got %+v", fields[0].Children)
	}
}

func TestScanEndToEndExample(t *testing.T) {
	data := map[string]any{
		"financial_metrics": map[string]any{
			"revenue_cagr":  "15%",
			"ebitda_margin": "22%",
		},
		"key_risks":      []any{"supplier concentration"},
		"recommendation": map[string]any{"action": "Pursue"},
	}

	fields := Scan(context.Background(), data)
	sections := GroupSections(fields)
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3: %+v", len(sections), sections)
	}

	wantTitles := []string{"Financial Metrics", "Investment Recommendation", "Key Information"}
	for i, want := range wantTitles {
		if sections[i].Title != want {
			t.Fatalf("section %d = %q, want %q", i, sections[i].Title, want)
		}
	}

	if n := len(sections[2].Fields); n != 1 || !sections[2].Fields[0].IsArray {
		t.Fatalf("Key Information: got %d fields (array=%v), want 1 array field", n, sections[2].Fields)
	}
	if n := len(sections[1].Fields); n != 1 || !sections[1].Fields[0].IsObject {
		t.Fatalf("Investment Recommendation: got %d fields, want 1 object field", n)
	}

	// The metrics inside financial_metrics carry strong key and value signals.
	for _, key := range []string{"revenue_cagr", "ebitda_margin"} {
		if c := Confidence(key, "15%"); c <= 0.7 {
			t.Fatalf("Confidence(%q) = %v, want > 0.7", key, c)
		}
	}
}

func TestIsComplexDisplay(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name  string
		field Field
		want  bool
	}{
		{"array", Field{IsArray: true}, true},
		{"object", Field{IsObject: true}, true},
		{"long string", Field{Value: string(long)}, true},
		{"short string", Field{Value: "22%"}, false},
		{"number", Field{Value: 42.0}, false},
	}
	for _, tc := range cases {
		if got := IsComplexDisplay(tc.field); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
