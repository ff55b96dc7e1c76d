package normalize

import (
	"log"
	"regexp"
	"strings"

	"github.com/atom-ai-labs/cataloger/internal/crawler"
)

var (
	tagRE        = regexp.MustCompile(`<[^>]+>`)
	bareURLRE    = regexp.MustCompile(`https?://\S+`)
	mdImageRE    = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	mdLinkRE     = regexp.MustCompile(`\[.*?\]\(.*?\)`)
	controlWSRE  = regexp.MustCompile("[\n\r\t ]")
	multiSpaceRE = regexp.MustCompile(` +`)
)

// CleanHTML reduces raw markup to plain prose: HTML tags, bare URLs, markdown
// image/link syntax and control whitespace collapse to single spaces. Numbers,
// names and currency symbols pass through untouched.
func CleanHTML(raw string) string {
	s := tagRE.ReplaceAllString(raw, " ")
	s = bareURLRE.ReplaceAllString(s, " ")
	s = mdImageRE.ReplaceAllString(s, " ")
	s = mdLinkRE.ReplaceAllString(s, " ")
	s = controlWSRE.ReplaceAllString(s, " ")
	s = multiSpaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CollectBlocks cleans every crawled page into one text block. Pages whose
// raw content is not a string are logged and skipped, never fatal.
func CollectBlocks(results []crawler.Result, logger *log.Logger) []string {
	if logger == nil {
		logger = log.New(log.Writer(), "[CLEAN] ", log.LstdFlags)
	}
	blocks := make([]string, 0, len(results))
	for _, res := range results {
		raw, ok := res.RawContent.(string)
		if !ok {
			logger.Printf("skipping non-string raw_content (%T) from %s", res.RawContent, res.URL)
			continue
		}
		blocks = append(blocks, CleanHTML(raw))
	}
	return blocks
}
