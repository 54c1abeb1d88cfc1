package download

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidProxy — прокси не соответствует формату scheme://host:port/.
var ErrInvalidProxy = errors.New("Неверный формат прокси. Пример: socks5://10.0.0.1:1080/")

var proxyPattern = regexp.MustCompile(`^(?:https?|socks[45])://((?:\d{1,3}\.){3}\d{1,3}|[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*):(\d{1,5})/$`)

// ValidateProxy проверяет адрес прокси и возвращает его без пробелов.
func ValidateProxy(raw string) (string, error) {
	proxy := strings.TrimSpace(raw)
	m := proxyPattern.FindStringSubmatch(proxy)
	if m == nil {
		return "", ErrInvalidProxy
	}
	if isDottedQuad(m[1]) {
		for _, octet := range strings.Split(m[1], ".") {
			if n, _ := strconv.Atoi(octet); n > 255 {
				return "", ErrInvalidProxy
			}
		}
	}
	port, _ := strconv.Atoi(m[2])
	if port < 1 || port > 65535 {
		return "", ErrInvalidProxy
	}
	return proxy, nil
}

func isDottedQuad(host string) bool {
	return strings.Count(host, ".") == 3 && strings.Trim(host, "0123456789.") == ""
}
