package game

import "strings"

// Prompt placeholders replaced by Settings.
const (
	placeholderGenre   = "[GENRE]"
	placeholderTheme   = "[THEME]"
	placeholderSetting = "[SETTING]"
)

// OpeningInput is sent as the first player turn.
const OpeningInput = "Start the adventure."

// SystemPromptTemplate makes the model act as game master.
const SystemPromptTemplate = `You are an advanced text adventure game like AI Dungeon. You will act as the game master and narrator.
Follow these rules:
1. Write vivid, engaging descriptions of scenes and actions
2. Allow the player complete freedom of action - they can try anything
3. Include elements of danger, mystery, and wonder
4. Maintain continuity with previous actions and descriptions
5. Never break character or mention that you are an AI
6. Never explain game mechanics or mention prompts/instructions
7. Respond to player actions with realistic consequences
8. Include sensory details in descriptions
9. Allow for both success and failure based on context
10. Keep track of player status, inventory, and world state
11. Present occasional challenges and obstacles
12. React to player choices in ways that make the world feel dynamic

Format:
- Describe the scene and situation
- Wait for player input
- Respond with what happens based on their action
- Continue the story based on those consequences

The tone should be [GENRE] with elements of [THEME].
Current setting: [SETTING]

Begin by describing the opening scene and asking the player what they want to do.`

// SystemPrompt fills the template from s.
func SystemPrompt(s Settings) string {
	return strings.NewReplacer(
		placeholderGenre, s.Genre,
		placeholderTheme, s.Theme,
		placeholderSetting, s.Setting,
	).Replace(SystemPromptTemplate)
}

// Message is one entry of the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// buildPrompt joins every history entry with newlines.
func buildPrompt(history []Message) string {
	parts := make([]string, len(history))
	for i, m := range history {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}
