package research

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/internal/textutils"
	firecrawl "github.com/mendableai/firecrawl-go"
	"github.com/mmcdole/gofeed"
)

const (
	feedTimeout    = 30 * time.Second
	excerptRunes   = 600
	scrapeMinScore = 0.25
)

type (
	// Finding is one piece of feed material relevant to the current topic.
	Finding struct {
		Title   string  `json:"title"`
		Summary string  `json:"summary"`
		Link    string  `json:"link"`
		Score   float64 `json:"score"`
	}

	// Brief is the research handed to a host before speaking. A failed
	// brief is an empty brief; research never blocks a turn.
	Brief struct {
		Query    string
		Text     string
		Findings []Finding
	}

	scraper interface {
		ScrapeURL(url string, params *firecrawl.ScrapeParams) (*firecrawl.FirecrawlDocument, error)
	}

	// Service gathers topical material from RSS/Atom feeds, optionally
	// enriched with a scraped page for the strongest finding.
	Service struct {
		logger  *slog.Logger
		config  *config.ResearchConfig
		parser  *gofeed.Parser
		scraper scraper
	}
)

func NewService(logger *slog.Logger, cfg *config.ResearchConfig) *Service {
	s := &Service{
		logger: logger,
		config: cfg,
		parser: gofeed.NewParser(),
	}
	if cfg.FirecrawlAPIKey != "" {
		app, err := firecrawl.NewFirecrawlApp(cfg.FirecrawlAPIKey, cfg.FirecrawlAPIUrl)
		if err != nil {
			logger.Warn("firecrawl unavailable, feed summaries only", "error", err)
		} else {
			s.scraper = app
		}
	}
	return s
}

// Gather produces a brief for the topic. Every failure path degrades to an
// empty brief.
func (s *Service) Gather(ctx context.Context, topic string) *Brief {
	brief := &Brief{Query: topic}

	feeds := s.config.FeedURLs()
	if len(feeds) == 0 {
		return brief
	}

	brief.Findings = rankFindings(s.fetchAll(ctx, feeds), topic, s.config.MaxFindings)
	if len(brief.Findings) == 0 {
		return brief
	}

	var b strings.Builder
	for _, f := range brief.Findings {
		fmt.Fprintf(&b, "- %s: %s\n", f.Title, textutils.Truncate(f.Summary, 200))
	}
	if excerpt := s.scrapeTop(brief.Findings); excerpt != "" {
		b.WriteString("Detail: ")
		b.WriteString(excerpt)
		b.WriteString("\n")
	}
	brief.Text = strings.TrimSpace(b.String())
	return brief
}

// Meta describes a brief for persistence alongside the exchange it fed.
func (b *Brief) Meta() *entity.ResearchMeta {
	if b == nil || len(b.Findings) == 0 {
		return nil
	}
	meta := &entity.ResearchMeta{
		Query:    b.Query,
		Findings: len(b.Findings),
	}
	for _, f := range b.Findings {
		if f.Link != "" {
			meta.Sources = append(meta.Sources, f.Link)
		}
	}
	return meta
}

func (s *Service) fetchAll(ctx context.Context, feeds []string) []*gofeed.Item {
	ctx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	type result struct {
		feed *gofeed.Feed
		err  error
	}
	ch := make(chan result, len(feeds))
	for _, url := range feeds {
		go func(feedURL string) {
			feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
			ch <- result{feed: feed, err: err}
		}(url)
	}

	var items []*gofeed.Item
	for range feeds {
		r := <-ch
		if r.err != nil {
			s.logger.Warn("feed unavailable", "error", r.err)
			continue
		}
		items = append(items, r.feed.Items...)
	}
	return items
}

func (s *Service) scrapeTop(findings []Finding) string {
	if s.scraper == nil {
		return ""
	}
	top := findings[0]
	if top.Link == "" || top.Score < scrapeMinScore {
		return ""
	}
	doc, err := s.scraper.ScrapeURL(top.Link, &firecrawl.ScrapeParams{
		Formats: []string{"markdown"},
	})
	if err != nil {
		s.logger.Warn("scrape failed, feed summary only", "url", top.Link, "error", err)
		return ""
	}
	return textutils.Truncate(strings.TrimSpace(doc.Markdown), excerptRunes)
}

// rankFindings scores items by how many of the topic's terms they cover.
// Items touching none of them are dropped.
func rankFindings(items []*gofeed.Item, topic string, limit int) []Finding {
	topicTerms := textutils.TermSet(topic)
	if len(topicTerms) == 0 {
		return nil
	}
	findings := make([]Finding, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		itemTerms := textutils.TermSet(item.Title + " " + item.Description)
		common := 0
		for t := range topicTerms {
			if _, ok := itemTerms[t]; ok {
				common++
			}
		}
		if common == 0 {
			continue
		}
		score := float64(common) / float64(len(topicTerms))
		findings = append(findings, Finding{
			Title:   item.Title,
			Summary: strings.TrimSpace(item.Description),
			Link:    item.Link,
			Score:   score,
		})
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Score > findings[j].Score
	})
	if limit > 0 && len(findings) > limit {
		findings = findings[:limit]
	}
	return findings
}
