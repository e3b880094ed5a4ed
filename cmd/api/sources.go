package main

import (
	"fmt"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/config"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/pipeline"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/scraper"
)

// cronSources maps configured sources onto pipeline sources. Unknown types
// and types with no registered fetcher are returned as errors so a typo in
// JOB_SOURCES is visible at startup.
func cronSources(cfgs []config.SourceConfig, reg *scraper.Registry) ([]pipeline.CronSource, []error) {
	var (
		sources []pipeline.CronSource
		errs    []error
	)
	for i, c := range cfgs {
		src, ok := domain.ParseJobSource(c.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("source %d: unknown type %q", i, c.Type))
			continue
		}
		if _, ok := reg.Get(src); !ok {
			errs = append(errs, fmt.Errorf("source %d: no fetcher for %q", i, src))
			continue
		}
		sources = append(sources, pipeline.CronSource{
			Source: src,
			Query: scraper.Query{
				Text:     c.Query,
				Location: c.Location,
				Limit:    c.Limit,
				TBS:      c.TBS,
				Domains:  c.Domains,
				Params:   c.Params,
			},
		})
	}
	return sources, errs
}
