package vision

import "testing"

type variantsPayload struct {
	Variants []struct {
		Variant string `json:"variant"`
	} `json:"variants"`
}

func TestExtractJSONFragment(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"bare array", `[1,2]`, `[1,2]`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here is the JSON you asked for: {"a":1} Hope that helps.`, `{"a":1}`},
		{"empty", "   ", ""},
		{"no json at all", "plain prose", "plain prose"},
	}
	for _, tc := range cases {
		if got := ExtractJSONFragment(tc.in); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestParsePayload(t *testing.T) {
	raw := "```json\n{\"variants\":[{\"variant\":\"v1-faithful\"}]}\n```"
	payload, err := ParsePayload[variantsPayload](raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(payload.Variants) != 1 || payload.Variants[0].Variant != "v1-faithful" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestParsePayloadErrors(t *testing.T) {
	if _, err := ParsePayload[variantsPayload](""); err == nil {
		t.Fatalf("empty input must error")
	}
	if _, err := ParsePayload[variantsPayload]("the model rambled instead of answering"); err == nil {
		t.Fatalf("non-JSON input must error")
	}
}
