package threeprof

import (
	"errors"
	"log/slog"

	"github.com/3jsLive/tasks/threeprof/internal/worklist"
	"github.com/3jsLive/tasks/threeprof/result"
)

// DiscoverAll is the worklist argument that expands to every example
// listed by the repository.
const DiscoverAll = "-"

// Worklist turns command-line URLs into work items. A lone DiscoverAll
// reads the repository's examples list and applies the configured banned
// and prefix filters and limit. Explicit URLs are kept as given.
func Worklist(cfg *Config, args []string, logger *slog.Logger) ([]result.WorkItem, error) {
	if len(args) == 0 {
		return nil, errors.New("threeprof: empty worklist")
	}
	if len(args) > 1 || args[0] != DiscoverAll {
		return worklist.Items(args), nil
	}

	urls, err := worklist.Discover(worklist.DiscoverOptions{
		Repo:           cfg.Repo.Path,
		List:           cfg.Repo.ExamplesList,
		BaseURL:        cfg.Repo.BaseURL,
		CheckExistence: true,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	urls = worklist.NewFilter(cfg.Worklist.Banned, cfg.Worklist.Prefixes).Apply(urls)
	if n := cfg.Worklist.Limit; n > 0 && len(urls) > n {
		urls = urls[:n]
	}
	if logger != nil {
		logger.Info("threeprof: worklist discovered", "urls", len(urls))
	}
	return worklist.Items(urls), nil
}
