package parse_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prepworks/examimport/internal/parse"
)

// answerKeyText builds a key like "1 a 2 b 3 c ..." cycling through a-d.
func answerKeyText(n int) string {
	letters := []string{"a", "b", "c", "d"}
	var sb strings.Builder
	sb.WriteString("ANSWER KEY\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "%d %s\n", i, letters[(i-1)%4])
	}
	return sb.String()
}

func TestParseAnswerKey_Full80(t *testing.T) {
	answers, err := parse.ParseAnswerKey(answerKeyText(80))
	if err != nil {
		t.Fatalf("ParseAnswerKey() error = %v", err)
	}

	if len(answers) != 80 {
		t.Fatalf("len(answers) = %d, want 80", len(answers))
	}
	for i := 1; i <= 80; i++ {
		if _, ok := answers[i]; !ok {
			t.Errorf("answers missing question %d", i)
		}
	}
	if answers[1] != "a" || answers[2] != "b" || answers[80] != "d" {
		t.Errorf("unexpected letters: 1=%q 2=%q 80=%q", answers[1], answers[2], answers[80])
	}
}

func TestParseAnswerKey_SeparatorVariants(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[int]string
	}{
		{"dot", "1. a 2. b", map[int]string{1: "a", 2: "b"}},
		{"paren", "1) c 2) d", map[int]string{1: "c", 2: "d"}},
		{"colon", "1: b 2: a", map[int]string{1: "b", 2: "a"}},
		{"dash", "1 - d 2 - c", map[int]string{1: "d", 2: "c"}},
		{"adjacent", "1a 2b", map[int]string{1: "a", 2: "b"}},
		{"uppercase", "1 A 2 B", map[int]string{1: "a", 2: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers, err := parse.ParseAnswerKey(tt.text)
			if err != nil {
				t.Fatalf("ParseAnswerKey() error = %v", err)
			}
			for number, letter := range tt.want {
				if answers[number] != letter {
					t.Errorf("answers[%d] = %q, want %q", number, answers[number], letter)
				}
			}
		})
	}
}

func TestParseAnswerKey_MissingQuestion(t *testing.T) {
	text := strings.Replace(answerKeyText(80), "37 a\n", "", 1)

	_, err := parse.ParseAnswerKey(text)
	if err == nil {
		t.Fatal("ParseAnswerKey() should fail when question 37 is absent")
	}
	if !strings.Contains(err.Error(), "37") {
		t.Errorf("error %q should name the missing question 37", err)
	}
}

func TestParseAnswerKey_DuplicateAnswer(t *testing.T) {
	_, err := parse.ParseAnswerKey("1 a 2 b 2 c 3 d")
	if err == nil {
		t.Fatal("ParseAnswerKey() should fail on a duplicated question number")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error %q should mention the duplicate", err)
	}
}

func TestParseAnswerKey_LetterOutOfRange(t *testing.T) {
	_, err := parse.ParseAnswerKey("1 a 2 e 3 b")
	if err == nil {
		t.Fatal("ParseAnswerKey() should fail on answer letter e")
	}
	if !strings.Contains(err.Error(), "e") && !strings.Contains(err.Error(), "2") {
		t.Errorf("error %q should identify the bad entry", err)
	}
}

func TestParseAnswerKey_NoAnswers(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"prose only", "This document intentionally left blank."},
		{"zero ignored", "0 a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse.ParseAnswerKey(tt.text); err == nil {
				t.Error("ParseAnswerKey() should fail when no answers are found")
			}
		})
	}
}
