package llm

import "testing"

func TestRoute(t *testing.T) {
	cases := []struct {
		model string
		want  Kind
	}{
		{"llama3:8b", KindLocal},
		{"claude-sonnet-4", KindAnthropic},
		{"gpt-4o", KindOpenAI},
		{"some-other-model", KindGeneric},
	}
	for _, c := range cases {
		if got := Route(c.model, KindGeneric); got != c.want {
			t.Errorf("Route(%q) = %q, want %q", c.model, got, c.want)
		}
	}
}

func TestParseJSONFence(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}
	cases := []string{
		`{"title":"x"}`,
		"```json\n{\"title\":\"x\"}\n```",
		"```\n{\"title\":\"x\"}\n```",
		"  ```json\n{\"title\":\"x\"}\n```  ",
	}
	for _, raw := range cases {
		var p payload
		if err := ParseJSONFence(raw, &p); err != nil {
			t.Fatalf("ParseJSONFence(%q): %v", raw, err)
		}
		if p.Title != "x" {
			t.Errorf("ParseJSONFence(%q) = %+v, want title=x", raw, p)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if isTransient(nil) {
		t.Errorf("nil error should not be transient")
	}
}
