package parse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// AnswerMap maps a question number to its answer letter (a-d). Keys always
// form the contiguous range 1..N; ParseAnswerKey never returns a map with
// gaps or duplicates.
type AnswerMap map[int]string

// answerToken matches "<1-3 digit number> <single letter>", with optional
// punctuation between number and letter. The letter set is deliberately wider
// than a-d so an out-of-set letter is reported instead of silently skipped.
var answerToken = regexp.MustCompile(`\b(\d{1,3})\s*[.)\-:]?\s*([a-z])\b`)

// ParseAnswerKey extracts the question-number to answer-letter mapping from
// the flattened text of the answer document. Any malformation is fatal to the
// call and reported as a single descriptive error.
func ParseAnswerKey(text string) (AnswerMap, error) {
	normalized := strings.ToLower(Normalize(text))

	answers := make(AnswerMap)
	for _, m := range answerToken.FindAllStringSubmatch(normalized, -1) {
		number, err := strconv.Atoi(m[1])
		if err != nil || number < 1 {
			continue
		}

		letter := m[2]
		if letter < "a" || letter > "d" {
			return nil, fmt.Errorf("question %d: answer letter %q is outside a-d", number, letter)
		}
		if prev, ok := answers[number]; ok {
			return nil, fmt.Errorf("question %d: duplicate answer (%q and %q)", number, prev, letter)
		}
		answers[number] = letter
	}

	if len(answers) == 0 {
		return nil, fmt.Errorf("no answers found in answer document")
	}

	max := 0
	for number := range answers {
		if number > max {
			max = number
		}
	}

	var missing []int
	for number := 1; number <= max; number++ {
		if _, ok := answers[number]; !ok {
			missing = append(missing, number)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return nil, fmt.Errorf("answer key is missing questions %s", joinInts(missing))
	}

	return answers, nil
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
