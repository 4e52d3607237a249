package usecase

import (
	"fmt"
	"strings"

	"fitcoach-agent/internal/domain"
)

// metadataNotesKey is the vector-metadata field carrying the log's free text.
const metadataNotesKey = "originalNotes"

// Fixed sentences substituted when a context section has nothing to say.
const (
	noProfileContext    = "No user profile was found."
	noActivityContext   = "No relevant recent activities."
	firstMessageContext = "This is the first question in this session."
)

// composePrompt assembles the single augmented prompt sent to the chat
// model: persona preamble, profile section, retrieved-activity section,
// conversation history, the literal question, and the answer instruction.
func composePrompt(profileCtx, activityCtx, historyCtx, question string) string {
	var b strings.Builder
	b.WriteString("You are an expert and friendly fitness and nutrition coach.\n")
	b.WriteString("Analyze the following information about the user and answer their question concisely and helpfully.\n")
	b.WriteString("\n---\nUser Profile Context:\n")
	b.WriteString(profileCtx)
	b.WriteString("\n---\nRelevant Recent Activities:\n- ")
	b.WriteString(activityCtx)
	b.WriteString("\n---\nCurrent Conversation History:\n")
	b.WriteString(historyCtx)
	b.WriteString("\n---\n\nUser Question: \"")
	b.WriteString(question)
	b.WriteString("\"\n\n")
	b.WriteString("Answer in the user's language, clearly and concisely, with practical and motivating recommendations.\n")
	b.WriteString("Answer:")
	return b.String()
}

// profileContext renders the profile record into one sentence, or the fixed
// fallback when the user never saved a profile.
func profileContext(p *domain.Profile) string {
	if p == nil {
		return noProfileContext
	}
	return fmt.Sprintf("Goals: %s, Weight: %gkg, Age: %d years.", p.FitnessGoals, p.Weight, p.Age)
}

// activityContext joins the retrieved logs' free text. Matches whose
// metadata lacks the notes field are dropped; retrieval is best-effort.
func activityContext(matches []domain.VectorMatch) string {
	notes := make([]string, 0, len(matches))
	for _, m := range matches {
		text, ok := m.Metadata[metadataNotesKey].(string)
		if !ok || text == "" {
			continue
		}
		notes = append(notes, text)
	}
	if len(notes) == 0 {
		return noActivityContext
	}
	return strings.Join(notes, "\n- ")
}

// historyContext renders prior turns as "role: content" lines, oldest first.
func historyContext(msgs []domain.StoredMessage) string {
	if len(msgs) == 0 {
		return firstMessageContext
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// sessionTitle derives a session title from the opening question, capped at
// 50 characters.
func sessionTitle(question string) string {
	const maxTitleLen = 50
	runes := []rune(question)
	if len(runes) <= maxTitleLen {
		return question
	}
	return string(runes[:maxTitleLen])
}
