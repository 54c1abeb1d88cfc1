package queueclient

import (
	"context"

	"github.com/goccy/go-json"

	"tg-download-bot/internal/domain"
)

const (
	keyActiveSites  = "queue:sites:active"
	keyGroupedSites = "queue:sites:grouped"
	keyAuthSites    = "queue:sites:auths"
	keySitePrefix   = "queue:site:"
	keyLinkPrefix   = "queue:link:"
)

type siteList struct {
	Sites []string `json:"sites"`
}

type groupedSites struct {
	Sites map[string][]string `json:"sites"`
}

type siteCheckRequest struct {
	Site string `json:"site"`
}

// GetActiveSites возвращает активные сайты. Пустой результат означает «неизвестно».
func (c *Client) GetActiveSites(ctx context.Context) []string {
	return c.siteList(ctx, keyActiveSites, "sites/active")
}

// GetSitesWithAuth возвращает сайты, поддерживающие авторизацию.
func (c *Client) GetSitesWithAuth(ctx context.Context) []string {
	return c.siteList(ctx, keyAuthSites, "sites/auths")
}

// GetActiveSitesGrouped возвращает активные сайты по группам.
func (c *Client) GetActiveSitesGrouped(ctx context.Context) map[string][]string {
	data, ok := c.cached(ctx, keyGroupedSites, c.sitesTTL, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, "sites_active_grouped", "POST", "sites/active_grouped", struct{}{})
	})
	if !ok {
		return map[string][]string{}
	}
	var resp groupedSites
	if err := json.Unmarshal(data, &resp); err != nil || resp.Sites == nil {
		c.log.Error().Err(err).Msg("неожиданный ответ sites/active_grouped")
		return map[string][]string{}
	}
	return resp.Sites
}

func (c *Client) siteList(ctx context.Context, key, endpoint string) []string {
	data, ok := c.cached(ctx, key, c.sitesTTL, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, endpoint, "POST", endpoint, struct{}{})
	})
	if !ok {
		return []string{}
	}
	var resp siteList
	if err := json.Unmarshal(data, &resp); err != nil || resp.Sites == nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("неожиданный ответ со списком сайтов")
		return []string{}
	}
	return resp.Sites
}

// GetSiteData возвращает возможности сайта. ok=false, если сервис недоступен.
func (c *Client) GetSiteData(ctx context.Context, site string) (domain.SiteData, bool) {
	data, ok := c.cached(ctx, keySitePrefix+site, c.sitesTTL, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, "sites_check", "POST", "sites/check", siteCheckRequest{Site: site})
	})
	if !ok {
		return domain.SiteData{}, false
	}
	var sd domain.SiteData
	if err := json.Unmarshal(data, &sd); err != nil {
		c.log.Error().Err(err).Str("site", site).Msg("неожиданный ответ sites/check")
		return domain.SiteData{}, false
	}
	if sd.Formats == nil {
		sd.Formats = map[string][]string{}
	}
	return sd, true
}

// IsLinkAllowed проверяет ссылку по возможностям сайта. Положительный ответ кэшируется на сутки.
func (c *Client) IsLinkAllowed(ctx context.Context, link, site string) bool {
	key := keyLinkPrefix + link
	if data, err := c.cache.Get(ctx, key); err == nil {
		return string(data) == "1"
	}
	sd, ok := c.GetSiteData(ctx, site)
	if !ok || !sd.Allowed {
		return false
	}
	if err := c.cache.Set(ctx, key, []byte("1"), c.linkTTL); err != nil {
		c.log.Warn().Err(err).Msg("не удалось закэшировать проверку ссылки")
	}
	return true
}
