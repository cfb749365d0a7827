package parse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/prepworks/examimport/internal/pdfdoc"
	"github.com/prepworks/examimport/internal/profile"
)

// Choices is the four-way multiple-choice text of a question.
type Choices struct {
	A string
	B string
	C string
	D string
}

// ParsedQuestion is one question recovered from the booklet text.
// Choices is nil when the four markers could not all be located.
// SourcePage is 0 when the page mapping did not see the question.
type ParsedQuestion struct {
	Number     int
	Stem       string
	Choices    *Choices
	SourcePage int
}

// questionMarker anchors a question: "Q12." at a word boundary.
var questionMarker = regexp.MustCompile(`(?i)\bQ(\d{1,3})\.`)

// choiceMarker anchors a choice inside a question chunk: "a)" through "d)".
var choiceMarker = regexp.MustCompile(`(?i)\b([a-d])\)`)

// candidate is one occurrence of a question number in the booklet text,
// before duplicate resolution. Candidates keep marker-scan order, which acts
// as the final stable tie-break.
type candidate struct {
	number  int
	stem    string
	choices *Choices
	sample  bool // chunk sits inside an illustrative "sample question" block
}

// ParseQuestions extracts every question of the booklet from its flattened
// text, using the page-by-page layout only to map each question number to
// the first page it appears on. The result is sorted by question number and
// covers exactly 1..prof.MaxQuestions, or the call fails.
func ParseQuestions(text string, layout []pdfdoc.PageText, prof profile.Profile) ([]ParsedQuestion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text extracted from question document")
	}

	pageOf := mapQuestionPages(layout)

	candidates := scanChunks(text, prof)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no question markers found in question document")
	}

	byNumber := make(map[int][]candidate)
	for _, c := range candidates {
		if c.number < 1 || c.number > prof.MaxQuestions {
			continue // outside the document family's range
		}
		byNumber[c.number] = append(byNumber[c.number], c)
	}

	questions := make([]ParsedQuestion, 0, len(byNumber))
	for number, cands := range byNumber {
		best := resolveDuplicates(cands)
		questions = append(questions, ParsedQuestion{
			Number:     number,
			Stem:       best.stem,
			Choices:    best.choices,
			SourcePage: pageOf[number],
		})
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Number < questions[j].Number })

	var missing []int
	for number := 1; number <= prof.MaxQuestions; number++ {
		if _, ok := byNumber[number]; !ok {
			missing = append(missing, number)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("question document is missing questions %s", joinInts(missing))
	}
	if len(questions) != prof.MaxQuestions {
		return nil, fmt.Errorf("parsed %d questions, want %d", len(questions), prof.MaxQuestions)
	}

	return questions, nil
}

// mapQuestionPages records, per question number, the first page its marker
// appears on. First occurrence wins.
func mapQuestionPages(layout []pdfdoc.PageText) map[int]int {
	pageOf := make(map[int]int)
	for _, page := range layout {
		for _, line := range page.Lines {
			for _, m := range questionMarker.FindAllStringSubmatch(line.Text, -1) {
				number, err := strconv.Atoi(m[1])
				if err != nil {
					continue
				}
				if _, seen := pageOf[number]; !seen {
					pageOf[number] = page.Number
				}
			}
		}
	}
	return pageOf
}

// scanChunks splits the flattened text at question markers. Each marker's end
// to the next marker's start (or end of text) is one question chunk.
func scanChunks(text string, prof profile.Profile) []candidate {
	matches := questionMarker.FindAllStringSubmatchIndex(text, -1)
	sampleMarker := strings.ToLower(prof.SampleMarker)

	var candidates []candidate
	for i, m := range matches {
		number, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		chunk := text[m[1]:end]

		stem, choices := splitChunk(chunk)
		candidates = append(candidates, candidate{
			number:  number,
			stem:    stem,
			choices: choices,
			sample:  sampleMarker != "" && strings.Contains(strings.ToLower(chunk), sampleMarker),
		})
	}
	return candidates
}

// splitChunk separates a question chunk into its stem and, when all four
// choice markers are present and every slice is non-empty, its choices.
func splitChunk(chunk string) (string, *Choices) {
	type mark struct {
		letter string
		start  int // marker start, bounds the previous slice and the stem
		end    int // marker end, the choice text starts here
	}

	firstByLetter := make(map[string]mark, 4)
	for _, m := range choiceMarker.FindAllStringSubmatchIndex(chunk, -1) {
		letter := strings.ToLower(chunk[m[2]:m[3]])
		if _, seen := firstByLetter[letter]; !seen {
			firstByLetter[letter] = mark{letter: letter, start: m[0], end: m[1]}
		}
	}

	if len(firstByLetter) < 4 {
		return Normalize(chunk), nil
	}

	marks := make([]mark, 0, 4)
	for _, mk := range firstByLetter {
		marks = append(marks, mk)
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].start < marks[j].start })

	stem := Normalize(chunk[:marks[0].start])

	texts := make(map[string]string, 4)
	for i, mk := range marks {
		end := len(chunk)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		slice := Normalize(chunk[mk.end:end])
		if slice == "" {
			return stem, nil // a hollow choice invalidates the whole set
		}
		texts[mk.letter] = slice
	}

	return stem, &Choices{A: texts["a"], B: texts["b"], C: texts["c"], D: texts["d"]}
}

// resolveDuplicates picks the surviving candidate for a question number that
// appears more than once: real chunks beat sample-block chunks, then chunks
// with choices beat chunks without, then the longer stem wins.
func resolveDuplicates(cands []candidate) candidate {
	pool := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if !c.sample {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = cands
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best
}

func better(a, b candidate) bool {
	aHas, bHas := a.choices != nil, b.choices != nil
	if aHas != bHas {
		return aHas
	}
	if len(a.stem) != len(b.stem) {
		return len(a.stem) > len(b.stem)
	}
	return false // equal on all criteria: keep the earlier occurrence
}
