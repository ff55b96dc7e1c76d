package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/atom-ai-labs/cataloger/config"
	"github.com/atom-ai-labs/cataloger/internal/catalog"
	"github.com/atom-ai-labs/cataloger/internal/crawler"
	"github.com/atom-ai-labs/cataloger/internal/crawler/local"
	"github.com/atom-ai-labs/cataloger/internal/crawler/tavily"
	"github.com/atom-ai-labs/cataloger/internal/extract"
	"github.com/atom-ai-labs/cataloger/internal/normalize"
	"github.com/atom-ai-labs/cataloger/internal/record"
	srv "github.com/atom-ai-labs/cataloger/internal/server"
	"github.com/atom-ai-labs/cataloger/internal/warehouse"
	"github.com/atom-ai-labs/cataloger/provider/openai"
)

func main() {
	var configPath string
	root := &cobra.Command{Use: "cataloger"}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file directory")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			return srv.Run(cfg)
		},
	}

	var crawlURL, crawlProject, crawlDataset, crawlIndustry string
	var crawlFields []string
	crawl := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a listing site and load the extracted records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if crawlURL == "" {
				return fmt.Errorf("--url is required")
			}
			if len(crawlFields) == 0 {
				return fmt.Errorf("--field is required at least once")
			}
			cfg := config.LoadConfig(configPath)
			return runCrawl(cmd.Context(), cfg, crawlURL, crawlProject, crawlDataset, crawlIndustry, crawlFields)
		},
	}
	crawl.Flags().StringVar(&crawlURL, "url", "", "site to crawl")
	crawl.Flags().StringVar(&crawlProject, "project", "", "warehouse project label")
	crawl.Flags().StringVar(&crawlDataset, "dataset", "", "warehouse dataset")
	crawl.Flags().StringVar(&crawlIndustry, "industry", "", "industry template (automotive, education, retail)")
	crawl.Flags().StringSliceVar(&crawlFields, "field", nil, "field to extract (repeatable)")

	var syncProject, syncDataset string
	sync := &cobra.Command{
		Use:   "sync-autoland",
		Short: "Pull the dealer feed into its fixed warehouse table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			return runAutolandSync(cmd.Context(), cfg, syncProject, syncDataset)
		},
	}
	sync.Flags().StringVar(&syncProject, "project", "", "warehouse project label")
	sync.Flags().StringVar(&syncDataset, "dataset", "", "warehouse dataset")

	root.AddCommand(serve, crawl, sync)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCrawl(ctx context.Context, cfg *config.Config, rawURL, project, dataset, industry string, fields []string) error {
	logger := log.New(os.Stdout, "[CRAWL] ", log.LstdFlags)

	var crawl crawler.Provider
	if cfg.Crawler.Provider == "local" {
		crawl = &local.Fetcher{Timeout: cfg.Crawler.Timeout, MaxChars: cfg.Crawler.MaxChars}
	} else {
		crawl = tavily.NewClient(cfg.Crawler.APIKey, cfg.Crawler.Timeout)
	}

	resp, err := crawl.Crawl(ctx, crawler.Request{
		URL:          rawURL,
		Instructions: crawler.InstructionsFor(industry),
		Limit:        cfg.Crawler.Limit,
		MaxDepth:     cfg.Crawler.MaxDepth,
		SelectPaths:  cfg.Crawler.SelectPaths,
	})
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	blocks := normalize.CollectBlocks(resp.Results, logger)
	logger.Printf("%d clean blocks", len(blocks))

	oracle := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.Timeout)
	ext := extract.New(oracle, cfg.Telemetry.TokenReportPath)
	records := ext.Run(ctx, blocks, record.NewFieldSchema(fields, ""), rawURL)
	logger.Printf("%d records extracted", len(records))

	wh, err := warehouse.OpenPostgres(ctx, cfg.Warehouse.Postgres.DSN())
	if err != nil {
		return err
	}
	defer wh.Close()

	ref, err := warehouse.NewWriter(wh).Save(ctx, records, project, dataset, "")
	if err != nil {
		return err
	}
	logger.Printf("saved into %s", ref.FQN())

	out, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runAutolandSync(ctx context.Context, cfg *config.Config, project, dataset string) error {
	logger := log.New(os.Stdout, "[SYNC] ", log.LstdFlags)

	client := catalog.NewAutolandClient(cfg.Sync.Autoland.Timeout)
	records, err := client.FetchVehicles(ctx)
	if err != nil {
		return fmt.Errorf("autoland fetch: %w", err)
	}

	wh, err := warehouse.OpenPostgres(ctx, cfg.Warehouse.Postgres.DSN())
	if err != nil {
		return err
	}
	defer wh.Close()

	ref, err := warehouse.NewWriter(wh).Save(ctx, records, project, dataset, catalog.AutolandTable)
	if err != nil {
		return err
	}
	logger.Printf("synced %d vehicles into %s", len(records), ref.FQN())
	return nil
}
