package detector

import (
	"strings"
)

const baseDetectPrompt = `
You are an inspection assistant that finds hand tools in a photo of a tool tray.

Report every tool you can see that belongs to this list of classes:
%CLASSES%

Rules:
- Use ONLY the class names above, spelled exactly as given.
- Report each visible instance separately, even if a class appears twice.
- Skip anything that is not in the list.
- "box_2d" is [ymin, xmin, ymax, xmax] scaled to 0-1000.
- "confidence" is your certainty between 0 and 1.

Answer with a JSON array and nothing else, for example:
[{"label": "pliers", "confidence": 0.93, "box_2d": [120, 340, 410, 620]}]
`

// BuildDetectPrompt renders the instruction for the given catalog classes.
func BuildDetectPrompt(classes []string) string {
	var list strings.Builder
	for _, cl := range classes {
		list.WriteString("- ")
		list.WriteString(cl)
		list.WriteString("\n")
	}
	return strings.TrimSpace(strings.Replace(baseDetectPrompt, "%CLASSES%", strings.TrimRight(list.String(), "\n"), 1))
}
