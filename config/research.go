package config

import (
	"strings"
)

type ResearchConfig struct {
	FirecrawlAPIKey string `env:"FIRECRAWL_API_KEY"`
	FirecrawlAPIUrl string `env:"FIRECRAWL_API_URL"`

	// Feeds is a comma-separated list of RSS/Atom feed URLs scanned for
	// material related to the current topic.
	Feeds string `env:"DUET_RESEARCH_FEEDS"`

	MaxFindings int `env:"DUET_RESEARCH_MAX_FINDINGS"`
}

func (c *ResearchConfig) FeedURLs() []string {
	if c.Feeds == "" {
		return nil
	}
	parts := strings.Split(c.Feeds, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

func NewResearchConfig() *ResearchConfig {
	config := &ResearchConfig{
		FirecrawlAPIUrl: "https://api.firecrawl.dev",
		MaxFindings:     3,
	}
	if err := resolveConfig(config); err != nil {
		return config
	}
	return config
}
