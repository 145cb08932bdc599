package challenge

import (
	"strconv"
	"strings"

	"lingobot/internal/review"
)

// fallbackPracticePrompt is sent when the generation backend is unavailable,
// so the user still receives something.
const fallbackPracticePrompt = "Write three sentences about what you did today. " +
	"Try to use at least one new word or expression you learned recently."

func renderReview(cands []review.Candidate) string {
	var b strings.Builder
	b.WriteString("📚 Review time! Practice these phrases:\n")
	for i, c := range cands {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(c.Original)
		b.WriteString(" → ")
		b.WriteString(c.Improved)
		b.WriteString("\n   ")
		b.WriteString(string(c.Category))
		b.WriteString(" · ")
		b.WriteString(importanceStars(c.Importance))
		b.WriteString("\n")
	}
	b.WriteString("\nWrite a sentence using each improved phrase and send it back.")
	return b.String()
}

func renderPractice(exercise string) string {
	return "✍️ Practice time!\n\n" + strings.TrimSpace(exercise)
}

func importanceStars(n int) string {
	if n < 1 {
		n = 1
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}
