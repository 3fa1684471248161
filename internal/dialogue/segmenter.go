package dialogue

import "github.com/MikeSquared-Agency/stepwise/internal/transcript"

// Segment splits an ordered turn log into dialogues.
//
// A dialogue is closed after every chatbot turn, after a user turn that is
// followed by a chatbot turn, and after the final turn. Consecutive user turns
// accumulate into the same dialogue. Every turn appears in exactly one
// dialogue and order is preserved.
func Segment(turns []transcript.Turn) []Dialogue {
	if len(turns) == 0 {
		return nil
	}

	var dialogues []Dialogue
	var chatbot, user []Message

	flush := func() {
		dialogues = append(dialogues, Dialogue{
			ChatbotMessages: chatbot,
			UserMessages:    user,
		})
		chatbot, user = nil, nil
	}

	last := len(turns) - 1
	for i, turn := range turns {
		if turn.IsChatbot {
			chatbot = append(chatbot, Message{Role: RoleResponse, Text: turn.Text})
		} else {
			user = append(user, Message{Role: RoleRequest, Text: turn.Text})
		}

		switch {
		case i == last:
			flush()
		case turn.IsChatbot:
			flush()
		case turns[i+1].IsChatbot:
			flush()
		}
	}

	return dialogues
}
