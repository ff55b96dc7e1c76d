package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CrawlRuns counts crawl-to-store pipeline executions.
	CrawlRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cataloger_crawl_runs_total",
		Help: "Number of crawl pipeline runs started.",
	})

	// BlocksExtracted counts text blocks the extraction oracle parsed successfully.
	BlocksExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cataloger_blocks_extracted_total",
		Help: "Number of content blocks successfully extracted.",
	})

	// BlocksSkipped counts blocks dropped for oracle or parse failures.
	BlocksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cataloger_blocks_skipped_total",
		Help: "Number of content blocks skipped due to per-block failures.",
	})

	// RowsInserted counts records appended to warehouse tables.
	RowsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cataloger_rows_inserted_total",
		Help: "Number of rows written to the warehouse.",
	})

	// ToolInvocations counts chat tool calls executed on the model's behalf.
	ToolInvocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cataloger_tool_invocations_total",
		Help: "Number of tool calls executed during chat turns.",
	})
)
