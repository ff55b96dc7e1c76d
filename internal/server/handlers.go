package server

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/atom-ai-labs/cataloger/config"
	"github.com/atom-ai-labs/cataloger/internal/catalog"
	"github.com/atom-ai-labs/cataloger/internal/chat"
	"github.com/atom-ai-labs/cataloger/internal/chat/session"
	"github.com/atom-ai-labs/cataloger/internal/crawler"
	"github.com/atom-ai-labs/cataloger/internal/extract"
	"github.com/atom-ai-labs/cataloger/internal/normalize"
	"github.com/atom-ai-labs/cataloger/internal/record"
	"github.com/atom-ai-labs/cataloger/internal/telemetry"
	"github.com/atom-ai-labs/cataloger/internal/warehouse"
	"github.com/atom-ai-labs/cataloger/provider"
)

// Deps carries everything the handlers need. All collaborators are injected
// so tests can swap any of them for fakes.
type Deps struct {
	Config    *config.Config
	Crawler   crawler.Provider
	Extractor *extract.Extractor
	Writer    *warehouse.Writer
	Reader    *warehouse.Reader
	Provider  provider.Provider
	Sessions  session.Store
	Shopify   *catalog.ShopifyClient
	Autoland  *catalog.AutolandClient
	Logger    *log.Logger
}

// Register wires the API routes onto the echo instance.
func (d *Deps) Register(e *echo.Echo) {
	e.POST("/crawl-web", d.handleCrawlWeb)
	e.POST("/chat_with_db", d.handleChatWithDB)
	e.POST("/shopify-to-bigquery", d.handleShopifySync)
	e.POST("/autoland-to-bigquery", d.handleAutolandSync)
}

type crawlRequest struct {
	URL          string   `json:"url"`
	ProjectID    string   `json:"project_id"`
	DatasetID    string   `json:"dataset_id"`
	IndustryType string   `json:"industry_type"`
	Fields       []string `json:"fields"`
}

type crawlResponse struct {
	Records []record.Record `json:"records"`
	TableID string          `json:"table_id"`
}

func (d *Deps) handleCrawlWeb(c echo.Context) error {
	var req crawlRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required field: url")
	}
	if req.ProjectID == "" || req.DatasetID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields: project_id, dataset_id")
	}
	if len(req.Fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required field: fields")
	}
	schema := record.NewFieldSchema(req.Fields, "")

	ctx := c.Request().Context()
	telemetry.CrawlRuns.Inc()
	d.Logger.Printf("crawl starting: %s", req.URL)

	cfg := d.Config.Crawler
	resp, err := d.Crawler.Crawl(ctx, crawler.Request{
		URL:          req.URL,
		Instructions: crawler.InstructionsFor(req.IndustryType),
		Limit:        cfg.Limit,
		MaxDepth:     cfg.MaxDepth,
		SelectPaths:  cfg.SelectPaths,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("crawl failed: %v", err))
	}

	blocks := normalize.CollectBlocks(resp.Results, d.Logger)
	d.Logger.Printf("crawl finished: %d clean blocks", len(blocks))

	records := d.Extractor.Run(ctx, blocks, schema, baseURLOf(req.URL))
	d.Logger.Printf("extraction finished: %d records", len(records))

	ref, err := d.Writer.Save(ctx, records, req.ProjectID, req.DatasetID, "")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("warehouse save failed: %v", err))
	}
	d.Logger.Printf("saved %d records into %s", len(records), ref.FQN())

	return c.JSON(http.StatusOK, crawlResponse{Records: records, TableID: ref.Table})
}

type chatRequest struct {
	Message      string             `json:"message"`
	SystemPrompt string             `json:"system_prompt"`
	ProjectID    string             `json:"project_id"`
	DatasetID    string             `json:"dataset_id"`
	TableID      string             `json:"table_id"`
	SessionID    string             `json:"session_id"`
	HistoryChat  []provider.Message `json:"history_chat"`
}

type chatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
}

func (d *Deps) handleChatWithDB(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" || req.SystemPrompt == "" || req.ProjectID == "" || req.DatasetID == "" || req.TableID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields")
	}

	ctx := c.Request().Context()
	ref := warehouse.TableRef{Project: req.ProjectID, Dataset: req.DatasetID, Table: req.TableID}

	sess, err := d.Sessions.EnsureSession(ctx, req.SessionID, d.Config.Chat.SessionTTL, ref)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("session: %v", err))
	}

	// Client-supplied history wins over the stored transcript, matching the
	// stateless contract; the session keeps accumulating either way.
	history := req.HistoryChat
	if len(history) == 0 {
		history, err = sess.History(ctx)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("session history: %v", err))
		}
	}

	orch := chat.New(d.Provider, chat.QueryInventoryTool(d.Reader, sess.Table()))
	orch.MaxToolTurns = d.Config.Chat.MaxToolTurns
	orch.Logger = d.Logger

	text, appended, err := orch.Respond(ctx, req.SystemPrompt, history, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("chat failed: %v", err))
	}
	if err := sess.Append(ctx, appended...); err != nil {
		d.Logger.Printf("session append failed: %v", err)
	}

	return c.JSON(http.StatusOK, chatResponse{
		Response:  text,
		Timestamp: time.Now().Format("15:04:05"),
		SessionID: sess.ID(),
	})
}

type shopifySyncRequest struct {
	ShopifyDomain string `json:"shopify_domain"`
	AccessToken   string `json:"access_token"`
	APIVersion    string `json:"api_version"`
	ProjectID     string `json:"project_id"`
	DatasetID     string `json:"dataset_id"`
}

type syncResponse struct {
	Message string `json:"message"`
	TableID string `json:"table_id"`
}

func (d *Deps) handleShopifySync(c echo.Context) error {
	var req shopifySyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ShopifyDomain == "" || req.AccessToken == "" || req.ProjectID == "" || req.DatasetID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields")
	}

	ctx := c.Request().Context()
	client := d.Shopify
	if client == nil {
		client = catalog.NewShopifyClient(req.ShopifyDomain, req.AccessToken, req.APIVersion, d.Config.Sync.Shopify.Timeout)
	}

	records, err := client.FetchProducts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("shopify fetch failed: %v", err))
	}

	ref, err := d.Writer.Save(ctx, records, req.ProjectID, req.DatasetID, "")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("warehouse save failed: %v", err))
	}

	return c.JSON(http.StatusOK, syncResponse{
		Message: fmt.Sprintf("uploaded %d products", len(records)),
		TableID: ref.Table,
	})
}

type autolandSyncRequest struct {
	ProjectID string `json:"project_id"`
	DatasetID string `json:"dataset_id"`
}

func (d *Deps) handleAutolandSync(c echo.Context) error {
	var req autolandSyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ProjectID == "" || req.DatasetID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields")
	}

	ctx := c.Request().Context()
	records, err := d.Autoland.FetchVehicles(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("autoland fetch failed: %v", err))
	}

	ref, err := d.Writer.Save(ctx, records, req.ProjectID, req.DatasetID, catalog.AutolandTable)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("warehouse save failed: %v", err))
	}

	return c.JSON(http.StatusOK, syncResponse{
		Message: fmt.Sprintf("uploaded %d vehicles", len(records)),
		TableID: ref.Table,
	})
}

// baseURLOf reduces a page URL to scheme://host for prompt context.
func baseURLOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
