package telegram

import "strings"

const messageLimit = 4096

// SplitMessage делит текст на сообщения не длиннее лимита Telegram.
func SplitMessage(text string) []string {
	var parts []string
	rest := []rune(strings.TrimSpace(text))
	for len(rest) > 0 {
		var head []rune
		head, rest = cut(rest, messageLimit)
		if part := strings.TrimSpace(string(head)); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// splitCaption отделяет подпись к фото, остаток делится на обычные сообщения.
func splitCaption(text string) (string, []string) {
	head, tail := cut([]rune(strings.TrimSpace(text)), captionLimit)
	return strings.TrimSpace(string(head)), SplitMessage(string(tail))
}

// cut отрезает от начала не больше limit рун: по последнему переводу строки,
// затем по пробелу, иначе ровно по лимиту. Разделители в начале хвоста отбрасываются.
func cut(text []rune, limit int) (head, tail []rune) {
	if len(text) <= limit {
		return text, nil
	}
	at := limit
	for _, sep := range []rune{'\n', ' '} {
		if i := lastRune(text[:limit], sep); i > 0 {
			at = i + 1
			break
		}
	}
	head, tail = text[:at], text[at:]
	for len(tail) > 0 && (tail[0] == '\n' || tail[0] == ' ') {
		tail = tail[1:]
	}
	return head, tail
}

func lastRune(text []rune, r rune) int {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == r {
			return i
		}
	}
	return -1
}
