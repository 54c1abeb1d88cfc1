package download

import "testing"

func TestParseLink(t *testing.T) {
	cases := []struct {
		in, link, site string
		ok             bool
	}{
		{"вот https://www.example.org/book/1 ещё", "https://www.example.org/book/1", "example.org", true},
		{"http://m.ru.Site.com/a", "http://m.ru.Site.com/a", "site.com", true},
		{"https://host.org:8080/x", "https://host.org:8080/x", "host.org", true},
		{"https://example.org/", "", "", false},
		{"просто текст", "", "", false},
	}
	for _, c := range cases {
		link, site, ok := ParseLink(c.in)
		if ok != c.ok || link != c.link || site != c.site {
			t.Fatalf("%q: ожидали (%q, %q, %v), получили (%q, %q, %v)", c.in, c.link, c.site, c.ok, link, site, ok)
		}
	}
}

func TestSiteDisplayName(t *testing.T) {
	if got := SiteDisplayName("xn--e1afmkfd.xn--p1ai"); got != "пример.рф" {
		t.Fatalf("ожидали пример.рф, получили %q", got)
	}
	if got := SiteDisplayName("example.org"); got != "example.org" {
		t.Fatalf("ожидали example.org, получили %q", got)
	}
}

func TestValidateProxy(t *testing.T) {
	accepted := []string{"http://1.2.3.4:8080/", "socks5://10.0.0.1:1080/", "https://proxy.example.org:443/", " socks4://host:1/ "}
	for _, p := range accepted {
		if _, err := ValidateProxy(p); err != nil {
			t.Fatalf("ожидали принять %q: %v", p, err)
		}
	}
	rejected := []string{"ftp://x:80/", "http://nohost/", "http://1.2.3.4:8080", "socks6://a:1/", "http://1.2.3.400:80/", "http://a:70000/", "http://a:0/", ""}
	for _, p := range rejected {
		if _, err := ValidateProxy(p); err != ErrInvalidProxy {
			t.Fatalf("ожидали отклонить %q, получили %v", p, err)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"{Author.Name} - {Book.Title}": "{Author.Name} - {Book.Title}",
		"../../etc/passwd":             "etcpasswd",
		"  Война   и мир?*  ":          "Война и мир",
		"__name__":                     "name",
		"a<b>c|d":                      "abcd",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Fatalf("%q: ожидали %q, получили %q", in, want, got)
		}
	}
}
