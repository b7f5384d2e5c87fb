package vision

import (
	"context"
	"fmt"
	"strings"
)

// StaticAnalyst is the deterministic no-key fallback. It recognizes the
// studio's three analysis prompts by their system instructions and returns
// canned, schema-correct responses so the whole pipeline stays exercisable
// without external credentials.
type StaticAnalyst struct{}

// NewStaticAnalyst builds the fallback analyst.
func NewStaticAnalyst() *StaticAnalyst {
	return &StaticAnalyst{}
}

func (*StaticAnalyst) Name() string { return "static" }

func (*StaticAnalyst) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case strings.Contains(req.System, "prompt engineer"):
		return staticPrompts(req.Prompt), nil
	case strings.Contains(req.System, "art critic"):
		return staticCritique(req.Prompt, len(req.Images)), nil
	default:
		return staticResearch(req.Prompt), nil
	}
}

func staticResearch(prompt string) string {
	subject := firstLine(prompt)
	return fmt.Sprintf(`STYLE ANALYSIS:
Clean contemporary digital illustration suited to %q.
COLOR PALETTE:
- warm neutral
- deep teal
- soft amber
COMPOSITION NOTES:
Centered subject with generous negative space.
MOOD:
Calm and confident.
KEY ELEMENTS:
- primary subject
- supporting background texture`, subject)
}

var staticVariantOrder = []struct {
	id, label, angle string
}{
	{"v1-faithful", "Faithful", "rendered exactly as described"},
	{"v2-enhanced", "Enhanced", "with richer lighting and finer detail"},
	{"v3-alt-composition", "Alt Composition", "seen from a low three-quarter angle"},
	{"v4-style-variation", "Style Variation", "reimagined as a gouache painting"},
	{"v5-bold-creative", "Bold Creative", "pushed into a surreal interpretation"},
	{"v6-reference-copy", "Reference Copy", "mirroring the reference material closely"},
}

func staticPrompts(prompt string) string {
	subject := firstLine(prompt)
	var b strings.Builder
	b.WriteString(`{"variants":[`)
	for i, v := range staticVariantOrder {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b,
			`{"variant":%q,"label":%q,"narrative_prompt":"An image of %s, %s.","rationale":"static fallback"}`,
			v.id, v.label, jsonEscape(subject), v.angle)
	}
	b.WriteString(`]}`)
	return b.String()
}

func staticCritique(prompt string, imageCount int) string {
	var b strings.Builder
	b.WriteString(`{"evaluations":[`)
	n := 0
	for _, v := range staticVariantOrder {
		if !strings.Contains(prompt, v.id) {
			continue
		}
		if n > 0 {
			b.WriteString(",")
		}
		score := 8.0 - float64(n)*0.5
		fmt.Fprintf(&b,
			`{"variant":%q,"scores":{"faithfulness":%.1f,"conciseness":%.1f,"readability":%.1f,"aesthetics":%.1f},"review":"static fallback review"}`,
			v.id, score, score, score, score)
		n++
	}
	fmt.Fprintf(&b, `],"summary":"Static fallback critique of %d image(s).","winner":""}`, imageCount)
	return b.String()
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	if len(text) > 120 {
		text = text[:120]
	}
	return text
}

func jsonEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

var _ Analyst = (*StaticAnalyst)(nil)
