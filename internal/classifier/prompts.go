package classifier

import "fmt"

const classificationPromptTemplate = `You moderate comments left on a creator's videos.
Classify the viewer comment in the user message and respond with a single JSON object:

{
  "category": "positive" | "question" | "constructive" | "toxic",
  "toxicity_score": number between 0 and 1 (0 = harmless, 1 = severely harmful),
  "mild_text": string,
  "reason": short string
}

Categories:
- positive: praise, thanks or enthusiasm.
- question: asks the creator something.
- constructive: feedback, criticism or suggestions stated without hostility.
- toxic: insults, harassment, hate, threats or profanity aimed at someone.

mild_text rules:
- For non-toxic comments, return the comment cleaned up: same meaning, neutral tone, no links.
- For toxic comments: %s

Respond with JSON only.`

const replyPromptTemplate = `You write replies on behalf of a video creator.
Reply to the viewer comment in the user message. Style: %s
Respond with the reply text only, without quotes or a signature.`

func classificationPrompt(toxicStyle string) string {
	return fmt.Sprintf(classificationPromptTemplate, toxicStyle)
}

func replyPrompt(style string) string {
	return fmt.Sprintf(replyPromptTemplate, style)
}
