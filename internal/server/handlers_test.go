package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/atom-ai-labs/cataloger/config"
	"github.com/atom-ai-labs/cataloger/internal/catalog"
	"github.com/atom-ai-labs/cataloger/internal/chat/session/inmemory"
	"github.com/atom-ai-labs/cataloger/internal/crawler"
	"github.com/atom-ai-labs/cataloger/internal/extract"
	"github.com/atom-ai-labs/cataloger/internal/record"
	"github.com/atom-ai-labs/cataloger/internal/warehouse"
	"github.com/atom-ai-labs/cataloger/provider"
)

// memWarehouse is an in-memory Warehouse for handler tests.
type memWarehouse struct {
	tables map[string]warehouse.Schema
	rows   map[string][]record.Record
}

func newMemWarehouse() *memWarehouse {
	return &memWarehouse{tables: map[string]warehouse.Schema{}, rows: map[string][]record.Record{}}
}

func (m *memWarehouse) TableExists(ctx context.Context, ref warehouse.TableRef) (warehouse.Existence, error) {
	if _, ok := m.tables[ref.FQN()]; ok {
		return warehouse.Exists, nil
	}
	return warehouse.Absent, nil
}

func (m *memWarehouse) CreateTable(ctx context.Context, ref warehouse.TableRef, schema warehouse.Schema) error {
	m.tables[ref.FQN()] = schema
	return nil
}

func (m *memWarehouse) InsertRows(ctx context.Context, ref warehouse.TableRef, records []record.Record) error {
	m.rows[ref.FQN()] = append(m.rows[ref.FQN()], records...)
	return nil
}

func (m *memWarehouse) QueryAll(ctx context.Context, ref warehouse.TableRef) ([]map[string]any, error) {
	var out []map[string]any
	for _, rec := range m.rows[ref.FQN()] {
		row := map[string]any{}
		for _, f := range rec.Fields() {
			row[f.Name] = f.Value
		}
		out = append(out, row)
	}
	return out, nil
}

// stubOracle serves both the extraction and the chat paths from scripts.
type stubOracle struct {
	generateReply string
	generateErr   error
	chatTurns     []provider.Turn
	chatCalls     int
}

func (s *stubOracle) Generate(ctx context.Context, prompt string) (string, int64, int64, error) {
	if s.generateErr != nil {
		return "", 0, 0, s.generateErr
	}
	return s.generateReply, 10, 5, nil
}

func (s *stubOracle) Chat(ctx context.Context, system string, messages []provider.Message, tools []provider.ToolSpec) (provider.Turn, error) {
	if s.chatCalls >= len(s.chatTurns) {
		return provider.Turn{}, fmt.Errorf("chat script exhausted")
	}
	turn := s.chatTurns[s.chatCalls]
	s.chatCalls++
	return turn, nil
}

type stubCrawler struct {
	resp crawler.Response
	err  error
}

func (s *stubCrawler) Crawl(ctx context.Context, req crawler.Request) (crawler.Response, error) {
	return s.resp, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		Crawler: config.CrawlerConfig{Limit: 200, MaxDepth: 5, SelectPaths: []string{"/seminuevo"}},
		Chat:    config.ChatConfig{MaxToolTurns: 5, SessionTTL: time.Minute},
	}
}

func newTestDeps(wh warehouse.Warehouse, oracle *stubOracle, crawl crawler.Provider) *Deps {
	logger := log.New(io.Discard, "", 0)
	ext := extract.New(oracle, "")
	ext.Logger = logger
	return &Deps{
		Config:    testConfig(),
		Crawler:   crawl,
		Extractor: ext,
		Writer:    &warehouse.Writer{Warehouse: wh, Logger: logger, Now: time.Now},
		Reader:    &warehouse.Reader{Warehouse: wh, Logger: logger},
		Provider:  oracle,
		Sessions:  inmemory.NewInMemorySessionStore(),
		Autoland:  catalog.NewAutolandClient(time.Second),
		Logger:    logger,
	}
}

func doJSON(t *testing.T, deps *Deps, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := NewEcho(log.New(io.Discard, "", 0))
	deps.Register(e)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCrawlWebRequiresURL(t *testing.T) {
	deps := newTestDeps(newMemWarehouse(), &stubOracle{}, &stubCrawler{})
	rec := doJSON(t, deps, http.MethodPost, "/crawl-web", `{"fields":["model","price"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("error payload missing: %s", rec.Body.String())
	}
}

func TestCrawlWebExtractsAndSaves(t *testing.T) {
	wh := newMemWarehouse()
	oracle := &stubOracle{
		generateReply: `[{"model":"Corolla","price":12000.0,"url_ref":"https://cars.example.com/1"}]`,
	}
	crawl := &stubCrawler{resp: crawler.Response{Results: []crawler.Result{
		{URL: "https://cars.example.com/a", RawContent: "<p>Corolla $12000</p>"},
	}}}
	deps := newTestDeps(wh, oracle, crawl)

	rec := doJSON(t, deps, http.MethodPost, "/crawl-web",
		`{"url":"https://cars.example.com","project_id":"p","dataset_id":"d","industry_type":"automotive","fields":["model","price","url_ref"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Records []map[string]any `json:"records"`
		TableID string           `json:"table_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Records) != 1 || body.Records[0]["model"] != "Corolla" {
		t.Fatalf("records = %v", body.Records)
	}
	if !strings.HasSuffix(body.TableID, "_cars") {
		t.Fatalf("table = %q, want a name synthesized from the record url", body.TableID)
	}
	if len(wh.tables) != 1 {
		t.Fatalf("tables created = %d, want 1", len(wh.tables))
	}
}

func TestCrawlWebUpstreamFailureIs502(t *testing.T) {
	deps := newTestDeps(newMemWarehouse(), &stubOracle{}, &stubCrawler{err: fmt.Errorf("quota exceeded")})
	rec := doJSON(t, deps, http.MethodPost, "/crawl-web",
		`{"url":"https://x.com","project_id":"p","dataset_id":"d","fields":["model"]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestChatWithDBRequiresAllFields(t *testing.T) {
	deps := newTestDeps(newMemWarehouse(), &stubOracle{}, &stubCrawler{})
	rec := doJSON(t, deps, http.MethodPost, "/chat_with_db", `{"message":"hola"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatWithDBAnswersThroughInventoryTool(t *testing.T) {
	wh := newMemWarehouse()
	ref := warehouse.TableRef{Project: "p", Dataset: "d", Table: "t"}
	wh.tables[ref.FQN()] = warehouse.Schema{}
	wh.rows[ref.FQN()] = []record.Record{
		record.FromPairs(record.Field{Name: "model", Value: "Hilux"}),
	}
	oracle := &stubOracle{chatTurns: []provider.Turn{
		{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "query_inventory"}}},
		{Content: "Tenemos una Hilux disponible."},
	}}
	deps := newTestDeps(wh, oracle, &stubCrawler{})

	rec := doJSON(t, deps, http.MethodPost, "/chat_with_db",
		`{"message":"que camionetas tienen?","system_prompt":"eres un asesor","project_id":"p","dataset_id":"d","table_id":"t"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Response != "Tenemos una Hilux disponible." {
		t.Fatalf("response = %q", body.Response)
	}
	if ok, _ := regexp.MatchString(`^\d{2}:\d{2}:\d{2}$`, body.Timestamp); !ok {
		t.Fatalf("timestamp = %q, want HH:MM:SS", body.Timestamp)
	}
	if body.SessionID == "" {
		t.Fatalf("missing session id")
	}
}

func TestChatWithDBSessionAccumulatesHistory(t *testing.T) {
	wh := newMemWarehouse()
	oracle := &stubOracle{chatTurns: []provider.Turn{{Content: "primera"}, {Content: "segunda"}}}
	deps := newTestDeps(wh, oracle, &stubCrawler{})

	first := doJSON(t, deps, http.MethodPost, "/chat_with_db",
		`{"message":"hola","system_prompt":"sp","project_id":"p","dataset_id":"d","table_id":"t"}`)
	var resp1 chatResponse
	if err := json.Unmarshal(first.Body.Bytes(), &resp1); err != nil {
		t.Fatalf("decode: %v", err)
	}

	second := doJSON(t, deps, http.MethodPost, "/chat_with_db",
		fmt.Sprintf(`{"message":"sigo","system_prompt":"sp","project_id":"p","dataset_id":"d","table_id":"t","session_id":%q}`, resp1.SessionID))
	var resp2 chatResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp2.SessionID != resp1.SessionID {
		t.Fatalf("session id changed between turns")
	}

	sess, err := deps.Sessions.GetSession(context.Background(), resp1.SessionID)
	if err != nil || sess == nil {
		t.Fatalf("session lost: %v", err)
	}
	history, _ := sess.History(context.Background())
	// Two user messages and two assistant replies.
	if len(history) != 4 {
		t.Fatalf("history = %d messages, want 4", len(history))
	}
}

func TestAutolandSyncUsesFixedTable(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"autos":[{"vehicle_id":1,"title":"Mazda 3","price":65000000}]}`)
	}))
	defer feed.Close()

	wh := newMemWarehouse()
	deps := newTestDeps(wh, &stubOracle{}, &stubCrawler{})
	deps.Autoland.Endpoint = feed.URL

	rec := doJSON(t, deps, http.MethodPost, "/autoland-to-bigquery", `{"project_id":"p","dataset_id":"d"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body syncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TableID != catalog.AutolandTable {
		t.Fatalf("table = %q, want the fixed feed table", body.TableID)
	}
	if len(wh.rows["p.d."+catalog.AutolandTable]) != 1 {
		t.Fatalf("rows not stored under the fixed table")
	}
}

func TestShopifySyncSavesFlattenedVariants(t *testing.T) {
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"products":[{"id":1,"title":"Wheel","handle":"wheel",
		  "variants":[{"id":2,"title":"16in","sku":"W","price":"9.90","inventory_quantity":1}]}]}`)
	}))
	defer store.Close()

	wh := newMemWarehouse()
	deps := newTestDeps(wh, &stubOracle{}, &stubCrawler{})
	deps.Shopify = catalog.NewShopifyClient("shop.example.com", "tok", "", time.Second)
	deps.Shopify.BaseURL = store.URL

	rec := doJSON(t, deps, http.MethodPost, "/shopify-to-bigquery",
		`{"shopify_domain":"shop.example.com","access_token":"tok","project_id":"p","dataset_id":"d"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body syncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The variant rows carry url_ref, so the synthesized name derives from it.
	if !strings.HasSuffix(body.TableID, "_shop") {
		t.Fatalf("table = %q, want a name derived from the store domain", body.TableID)
	}
}
