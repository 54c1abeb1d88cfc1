package download

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var linkMask = regexp.MustCompile(`https?://(?:www\.|m\.|ru\.)*(?P<site>[^/\s]+)/\S+`)

// ParseLink ищет в тексте первую ссылку и определяет сайт.
func ParseLink(text string) (link, site string, ok bool) {
	m := linkMask.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	site = strings.ToLower(m[linkMask.SubexpIndex("site")])
	if i := strings.IndexByte(site, ':'); i >= 0 {
		site = site[:i]
	}
	return m[0], site, site != ""
}

// SiteDisplayName возвращает имя сайта в Unicode, если оно в punycode.
func SiteDisplayName(site string) string {
	name, err := idna.ToUnicode(site)
	if err != nil || name == "" {
		return site
	}
	return name
}
