package reconcile

import "parlor.chat/widget/internal/model"

// Display strings for the transient agent-status indicator.
const (
	thinkingText = "Thinking..."
	typingText   = "Typing..."
)

// statusIndicator derives the single transient status message from the
// latest status event. It disappears the moment a real agent message lands
// after it or the agent reports ready. Caller must hold e.mu.
func (e *Engine) statusIndicator() *model.StatusIndicator {
	if e.latestStatus == nil {
		return nil
	}
	if e.agentMsgOffset > e.latestStatus.offset {
		return nil
	}

	data := e.latestStatus.data
	switch data.Status {
	case model.BotStatusProcessing:
		text := thinkingText
		if data.Stage != "" {
			text = data.Stage + "..."
		}
		return &model.StatusIndicator{Phase: model.BotStatusProcessing, Text: text}
	case model.BotStatusTyping:
		return &model.StatusIndicator{Phase: model.BotStatusTyping, Text: typingText}
	default:
		return nil
	}
}
