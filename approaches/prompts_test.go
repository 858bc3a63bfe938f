package approaches

import (
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	got := renderTemplate("a {x} c {y}", map[string]string{"x": "b", "y": "d"})
	if got != "a b c d" {
		t.Errorf("renderTemplate() = %q", got)
	}
}

func TestBuildAnswerSystemPromptDefault(t *testing.T) {
	got := buildAnswerSystemPrompt("", false)

	if !strings.Contains(got, "Answer ONLY with the facts") {
		t.Errorf("default prompt missing grounding instruction:\n%s", got)
	}
	if strings.Contains(got, "{injected_prompt}") || strings.Contains(got, "{follow_up_questions_prompt}") {
		t.Errorf("placeholders left in prompt:\n%s", got)
	}
	if strings.Contains(got, "double angle brackets") {
		t.Errorf("follow-up instruction present without the override:\n%s", got)
	}
}

func TestBuildAnswerSystemPromptFollowup(t *testing.T) {
	got := buildAnswerSystemPrompt("", true)
	if !strings.Contains(got, "double angle brackets") {
		t.Errorf("follow-up instruction missing:\n%s", got)
	}
}

func TestBuildAnswerSystemPromptInjected(t *testing.T) {
	got := buildAnswerSystemPrompt(">>>Always answer in French.", false)

	if !strings.Contains(got, "Answer ONLY with the facts") {
		t.Errorf("injection dropped the default prompt:\n%s", got)
	}
	if !strings.Contains(got, "Always answer in French.") {
		t.Errorf("injected instructions missing:\n%s", got)
	}
	if strings.Contains(got, ">>>") {
		t.Errorf("injection marker left in prompt:\n%s", got)
	}
}

func TestBuildAnswerSystemPromptReplacement(t *testing.T) {
	got := buildAnswerSystemPrompt("You answer only in haiku.\n{follow_up_questions_prompt}", true)

	if !strings.HasPrefix(got, "You answer only in haiku.") {
		t.Errorf("replacement prompt not used:\n%s", got)
	}
	if strings.Contains(got, "Answer ONLY with the facts") {
		t.Errorf("default prompt leaked into replacement:\n%s", got)
	}
	if !strings.Contains(got, "double angle brackets") {
		t.Errorf("follow-up placeholder not rendered in replacement:\n%s", got)
	}
}
