package app

import (
	"fmt"
	"log/slog"

	"github.com/utafrali/catalogue-search/internal/config"
	"github.com/utafrali/catalogue-search/internal/engine"
	"github.com/utafrali/catalogue-search/internal/engine/bleve"
	esengine "github.com/utafrali/catalogue-search/internal/engine/elasticsearch"
	"github.com/utafrali/catalogue-search/internal/engine/memory"
)

// newEngine builds the index engine selected by SEARCH_ENGINE.
func newEngine(cfg *config.Config, logger *slog.Logger) (engine.IndexEngine, error) {
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		eng, err := esengine.New(esengine.Config{
			Addresses: cfg.ElasticsearchURLs,
			Username:  cfg.ElasticsearchUsername,
			Password:  cfg.ElasticsearchPassword,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		logger.Info("elasticsearch index engine initialized",
			slog.Any("addresses", cfg.ElasticsearchURLs),
			slog.String("index", cfg.Index),
		)
		return eng, nil
	case config.EngineBleve:
		logger.Info("bleve index engine initialized", slog.String("index", cfg.Index))
		return bleve.New(logger), nil
	case config.EngineMemory:
		logger.Info("in-memory index engine initialized", slog.String("index", cfg.Index))
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown search engine %q", cfg.SearchEngine)
	}
}
