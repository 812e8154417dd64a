package robots

import (
	"time"

	"github.com/temoto/robotstxt"
)

// Rules is the parsed policy of one domain's robots.txt for all agents.
type Rules struct {
	data *robotstxt.RobotsData
}

// ParseRules parses a robots.txt body. An empty body yields allow-all with
// no crawl delay. Parsing never fails hard: a malformed body degrades to
// whatever robotstxt salvages from it.
func ParseRules(body string) Rules {
	data, err := robotstxt.FromBytes([]byte(body))
	if err != nil || data == nil {
		// an empty file parses to allow-all
		data, _ = robotstxt.FromBytes(nil)
	}
	return Rules{data: data}
}

// Allowed reports whether agent may fetch path.
func (r Rules) Allowed(agent string, path string) bool {
	if r.data == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	group := r.data.FindGroup(agent)
	if group == nil {
		return true
	}
	return group.Test(path)
}

// CrawlDelay returns the crawl-delay directive for agent, or zero when none
// is specified.
func (r Rules) CrawlDelay(agent string) time.Duration {
	if r.data == nil {
		return 0
	}
	group := r.data.FindGroup(agent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// Sitemaps returns any sitemap URLs listed in the file. The crawl loops do
// not read them.
func (r Rules) Sitemaps() []string {
	if r.data == nil {
		return nil
	}
	return r.data.Sitemaps
}
