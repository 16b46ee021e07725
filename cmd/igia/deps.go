package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bens368/IGIA/internal/cache"
	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/llm"
	"github.com/Bens368/IGIA/internal/pdf"
	"github.com/Bens368/IGIA/internal/storage"
)

// ensureAPIKey prompts once for the model credential when none is configured.
func ensureAPIKey() error {
	if cfg.LLM.APIKey != "" {
		return nil
	}
	key, err := ui.Prompt("OpenAI API key")
	if err != nil {
		return fmt.Errorf("read API key: %w", err)
	}
	if key == "" {
		return domain.ConfigError("an API key is required (set LLM_API_KEY or OPENAI_API_KEY)", nil)
	}
	cfg.LLM.APIKey = key
	return nil
}

// newLLMClient builds a model client for apiKey from the loaded config.
func newLLMClient(apiKey string) (*llm.Client, error) {
	return llm.NewClient(llm.Options{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      apiKey,
		VisionModel: cfg.LLM.VisionModel,
		TextModel:   cfg.LLM.TextModel,
		ChatModel:   cfg.LLM.ChatModel,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Referer:     cfg.LLM.Referer,
		Title:       cfg.LLM.Title,
		Logger:      logger,
	})
}

func newRasterizer(outputDir string) (*pdf.Rasterizer, error) {
	return pdf.NewRasterizer(pdf.Options{
		OutputDir: outputDir,
		Quality:   cfg.Raster.JPEGQuality,
		DPI:       cfg.Raster.DPI,
	}, logger)
}

// openCache returns the extraction cache and a function releasing it. A
// failing backend is logged and extraction continues uncached.
func openCache() (*cache.TableCache, func()) {
	client, err := cache.New(cache.Options{
		Driver:     cfg.Cache.Driver,
		MaxEntries: cfg.Cache.MaxEntries,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		},
	})
	if err != nil {
		logger.Warn().Err(err).Str("driver", cfg.Cache.Driver).Msg("Extraction cache unavailable, continuing without it")
		return cache.NewTableCache(nil, 0), func() {}
	}
	if client == nil {
		return cache.NewTableCache(nil, 0), func() {}
	}
	return cache.NewTableCache(client, cfg.Cache.TTL), func() { client.Close() }
}

// openRuns returns the run repository, or nil when history is disabled.
func openRuns(ctx context.Context) (*storage.RunRepository, func(), error) {
	if !cfg.Storage.Enabled {
		return nil, func() {}, nil
	}
	db, err := storage.Open(ctx, cfg.Storage.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return storage.NewRunRepository(db), func() { db.Close() }, nil
}

// saveRun stores run when history is enabled. Failures are only logged.
func saveRun(ctx context.Context, run *domain.Run) {
	repo, closeDB, err := openRuns(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Run history unavailable")
		return
	}
	defer closeDB()
	if repo == nil {
		return
	}
	if err := repo.Save(ctx, run); err != nil {
		logger.Warn().Err(err).Str("run_id", run.ID.String()).Msg("Failed to store run")
	}
}

// documentsFromArgs turns paths, or directories of flyers, into documents.
func documentsFromArgs(args []string) ([]domain.Document, error) {
	var docs []domain.Document
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, domain.InputError(fmt.Sprintf("cannot read %s", arg), err)
		}
		if !info.IsDir() {
			docs = append(docs, domain.Document{Name: filepath.Base(arg), Path: arg})
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, domain.InputError(fmt.Sprintf("cannot list %s", arg), err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			docs = append(docs, domain.Document{Name: e.Name(), Path: filepath.Join(arg, e.Name())})
		}
	}
	return docs, nil
}
