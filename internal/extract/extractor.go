package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/atom-ai-labs/cataloger/internal/record"
	"github.com/atom-ai-labs/cataloger/internal/telemetry"
	"github.com/atom-ai-labs/cataloger/provider"
)

// invalidEscapeRE matches backslash escapes that are not legal JSON. Models
// occasionally emit things like \$ or \% inside strings; the whole sequence is
// removed before decoding.
var invalidEscapeRE = regexp.MustCompile(`\\[^\\"/bfnrtu]`)

// TokenUsage records the measured token counts for one processed block.
// Diagnostic only, never authoritative.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Extractor converts normalized text blocks into validated records through
// the extraction oracle, one call per block.
type Extractor struct {
	Provider   provider.Provider
	ReportPath string
	Logger     *log.Logger
}

// New builds an Extractor. reportPath may be empty to disable the token report.
func New(p provider.Provider, reportPath string) *Extractor {
	return &Extractor{
		Provider:   p,
		ReportPath: reportPath,
		Logger:     log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
	}
}

// BuildPrompt renders the extraction instructions for one field schema. The
// JSON example carries a type hint per field; only the designated numeric
// field is hinted as float.
func BuildPrompt(schema record.FieldSchema, baseURL string) string {
	lines := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		hint := "str"
		if field == schema.NumericField {
			hint = "float"
		}
		lines = append(lines, fmt.Sprintf("    %q: %s", field, hint))
	}
	jsonExample := "{\n" + strings.Join(lines, ",\n") + "\n}"

	return fmt.Sprintf(`Extract information about every product you find in the text below and return a JSON list of one or more objects shaped like this:

%s

Important instructions:

1. Only include products that have every field populated.
2. If the text only mentions a brand without a model or price, do not include it.
3. Any reference-URL field such as url_ref must be built from the base %s plus the path of the specific item, so the product can be opened on the web. Never return the bare base URL.
4. Return only the JSON list. Nothing else. Do not add any surrounding text.
5. Fold every descriptive attribute of the product into the description field when one is present.
`, jsonExample, baseURL)
}

// Run processes blocks sequentially and returns the flattened union of all
// per-block record lists, preserving block order and within-block order. Any
// per-block failure is logged and skipped; Run never fails as a whole.
func (e *Extractor) Run(ctx context.Context, blocks []string, schema record.FieldSchema, baseURL string) []record.Record {
	logger := e.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags)
	}
	instructions := BuildPrompt(schema, baseURL)

	var out []record.Record
	report := make([]TokenUsage, 0, len(blocks))
	for i, block := range blocks {
		prompt := instructions + "\n\n" + block
		reply, inTok, outTok, err := e.Provider.Generate(ctx, prompt)
		if err != nil {
			logger.Printf("block %d: oracle call failed: %v", i, err)
			telemetry.BlocksSkipped.Inc()
			continue
		}
		report = append(report, TokenUsage{InputTokens: inTok, OutputTokens: outTok})

		rows, err := ParseReply(reply)
		if err != nil {
			logger.Printf("block %d: unparsable reply: %v", i, err)
			telemetry.BlocksSkipped.Inc()
			continue
		}
		for _, row := range rows {
			if err := schema.Validate(row); err != nil {
				logger.Printf("block %d: rejected record: %v", i, err)
				continue
			}
			out = append(out, row)
		}
		telemetry.BlocksExtracted.Inc()
	}

	e.writeReport(report, logger)
	return out
}

// ParseReply decodes an oracle reply into records. It tolerates a fenced-code
// wrapper and stray invalid escapes, and accepts a single object or a list.
func ParseReply(reply string) ([]record.Record, error) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.ReplaceAll(s, "```json", "")
		s = strings.ReplaceAll(s, "```", "")
		s = strings.TrimSpace(s)
	}
	s = invalidEscapeRE.ReplaceAllString(s, "")
	if s == "" {
		return nil, fmt.Errorf("empty reply")
	}

	if strings.HasPrefix(s, "{") {
		var one record.Record
		if err := json.Unmarshal([]byte(s), &one); err != nil {
			return nil, err
		}
		return []record.Record{one}, nil
	}
	var many []record.Record
	if err := json.Unmarshal([]byte(s), &many); err != nil {
		return nil, err
	}
	return many, nil
}

// writeReport persists the per-block token counts, overwriting any previous
// run's file. Best effort.
func (e *Extractor) writeReport(report []TokenUsage, logger *log.Logger) {
	if e.ReportPath == "" {
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Printf("token report marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(e.ReportPath, data, 0o644); err != nil {
		logger.Printf("token report write failed: %v", err)
	}
}
