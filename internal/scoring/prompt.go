package scoring

import (
	"fmt"
	"strings"
)

const reviewSystemPrompt = `You are the quality reviewer for a collaborative film studio.
Evaluate the contributor's submitted work against the task it was claimed for.
Respond with JSON only, exactly this shape:
{"score": <integer 0-100>, "feedback": "<one or two sentences>", "verdict": "approved" | "flagged"}
Score reflects craft, completeness and fit for the task. Flag anything incomplete, off-brief or low effort.`

func reviewUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", in.TaskTitle)
	if in.TaskPhase != "" {
		fmt.Fprintf(&b, "Phase: %s\n", in.TaskPhase)
	}
	if in.TaskDescription != "" {
		fmt.Fprintf(&b, "Brief: %s\n", in.TaskDescription)
	}
	if in.AttachmentRef != "" {
		fmt.Fprintf(&b, "Attachment: %s\n", in.AttachmentRef)
	}
	fmt.Fprintf(&b, "Submission notes:\n%s\n", in.Notes)
	return b.String()
}
