package crawler

import "context"

// Request describes one crawl of a listing site.
type Request struct {
	URL          string
	Instructions string
	Limit        int
	MaxDepth     int
	SelectPaths  []string
}

// Result is one crawled page. RawContent is kept loosely typed: crawl
// services occasionally return null or structured payloads in that slot, and
// the normalizer is responsible for skipping anything that is not text.
type Result struct {
	URL        string `json:"url"`
	RawContent any    `json:"raw_content"`
}

// Response is the set of pages a crawl produced.
type Response struct {
	Results []Result `json:"results"`
}

// Provider abstracts the crawling service.
type Provider interface {
	Crawl(ctx context.Context, req Request) (Response, error)
}

// InstructionsFor returns the crawl-service extraction instructions for an
// industry type. Unknown industries fall back to the generic template.
func InstructionsFor(industry string) string {
	switch industry {
	case "automotive":
		return "Find and extract all the information about used cars, " +
			"including model, year, price, mileage, engine, fuel type, transmission, drive type, and unit number."
	case "education":
		return "Find and extract all the information about university programs, " +
			"including program name, duration, modality, tuition fees, degree level, admission criteria, and the name of the university."
	case "retail":
		return "Find and extract all the information about clothing and accessories, " +
			"including item name, brand, category (e.g., shirts, pants), size options, colors, price, discount, and availability."
	default:
		return "Find and extract all the relevant information about items or services, " +
			"including name, category or type, description, price (if available), availability, " +
			"and any other useful attributes such as brand, specifications, or contact details."
	}
}
