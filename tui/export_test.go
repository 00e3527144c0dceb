package tui

// Truncate exports truncate for testing.
func Truncate(s string, width int) string {
	return truncate(s, width)
}

// PadLeft exports padLeft for testing.
func PadLeft(s string, width int) string {
	return padLeft(s, width)
}

// FailedReplyText exports failedReplyText for testing.
const FailedReplyText = failedReplyText
