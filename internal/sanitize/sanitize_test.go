package sanitize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("payload does not parse: %v\n%s", err, s)
	}
	return v
}

func TestSanitizeValidPassthrough(t *testing.T) {
	in := "Here is the breakdown:\n```json\n{\"title\": \"Login\", \"story_points\": 5}\n```\nLet me know if you need more."
	got, ok := Sanitize(in)
	if !ok {
		t.Fatal("expected a payload")
	}
	want := `{"title": "Login", "story_points": 5}`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeNoPayload(t *testing.T) {
	for _, in := range []string{"", "no json here at all", "only an opener {", "} only a closer"} {
		if got, ok := Sanitize(in); ok {
			t.Errorf("Sanitize(%q) = %q, expected no payload", in, got)
		}
	}
}

func TestSanitizeArrayPayload(t *testing.T) {
	in := "Sure! [{\"title\": \"A\"}, {\"title\": \"B\"}] done."
	got, ok := Sanitize(in)
	if !ok {
		t.Fatal("expected a payload")
	}
	v := mustParse(t, got).([]any)
	if len(v) != 2 {
		t.Errorf("expected 2 elements, got %d", len(v))
	}
}

func TestSanitizeRepairs(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string // well-formed equivalent
	}{
		{
			name: "unquoted keys",
			in:   `{title: "Login", complexity: "High"}`,
			want: `{"title": "Login", "complexity": "High"}`,
		},
		{
			name: "trailing comma in object",
			in:   `{"title": "Login", "story_points": 5,}`,
			want: `{"title": "Login", "story_points": 5}`,
		},
		{
			name: "trailing comma in array",
			in:   `{"skills": ["go", "sql",]}`,
			want: `{"skills": ["go", "sql"]}`,
		},
		{
			name: "bare scalar value",
			in:   `{"complexity": High, "business_value": Medium}`,
			want: `{"complexity": "High", "business_value": "Medium"}`,
		},
		{
			name: "bare literals stay literal",
			in:   `{"done": true, "note": null,}`,
			want: `{"done": true, "note": null}`,
		},
		{
			name: "embedded newline in string",
			in:   "{\"description\": \"first line\nsecond line\"}",
			want: `{"description": "first line second line"}`,
		},
		{
			name: "stray inner quote pair",
			in:   `{"title": "the "auth" service"}`,
			want: `{"title": "the \"auth\" service"}`,
		},
		{
			name: "single stray inner quote",
			in:   `{"title": "say "hi"}`,
			want: `{"title": "say \"hi"}`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := Sanitize(c.in)
			if !ok {
				t.Fatal("expected a payload")
			}
			if diff := cmp.Diff(mustParse(t, c.want), mustParse(t, got)); diff != "" {
				t.Errorf("parsed value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSanitizeCombinedDamage(t *testing.T) {
	in := "```json\n" +
		"[{title: \"Setup CI\", complexity: High, \"skills\": [\"go\",],\n" +
		"\"description\": \"install\nconfigure\"},]\n" +
		"```"
	got, ok := Sanitize(in)
	if !ok {
		t.Fatal("expected a payload")
	}
	arr, okCast := mustParse(t, got).([]any)
	if !okCast || len(arr) != 1 {
		t.Fatalf("expected single-element array, got %v", got)
	}
	obj := arr[0].(map[string]any)
	if obj["complexity"] != "High" {
		t.Errorf("complexity = %v, want High", obj["complexity"])
	}
	if !strings.Contains(obj["description"].(string), "install configure") {
		t.Errorf("newline not collapsed: %q", obj["description"])
	}
}
