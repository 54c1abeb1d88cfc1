package download

import (
	"regexp"
	"strings"
)

const filenameLimit = 200

var (
	filenameUnsafe = regexp.MustCompile(`[^\p{L}\p{N}.\-_\[\]{}\s]`)
	filenameSpaces = regexp.MustCompile(`\s+`)
)

// SanitizeFilename оставляет в шаблоне имени файла только безопасные символы.
// Подстановки вида {Author.Name} сохраняются, их разбирает сервис загрузки.
func SanitizeFilename(name string) string {
	name = strings.NewReplacer("/", "", "\\", "").Replace(name)
	name = filenameUnsafe.ReplaceAllString(name, "")
	name = filenameSpaces.ReplaceAllString(name, " ")
	name = strings.Trim(name, "_. ")
	runes := []rune(name)
	if len(runes) > filenameLimit {
		name = strings.TrimSpace(string(runes[:filenameLimit]))
	}
	return name
}
