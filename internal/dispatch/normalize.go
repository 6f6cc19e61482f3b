package dispatch

import "strings"

// normalizeText trims the message and strips one leading "@<botName> " mention.
func normalizeText(text, botName string) string {
	text = strings.TrimSpace(text)
	if botName == "" {
		return text
	}
	mention := "@" + botName + " "
	if strings.HasPrefix(text, mention) {
		text = strings.TrimSpace(text[len(mention):])
	}
	return text
}

// splitCommand tokenizes a slash command into the command token and its arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
