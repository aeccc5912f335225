// Package page serves the HTML shown instead of a missing download.
package page

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const (
	serviceName = "page"

	maxCached = 256

	fallbackPage = "<!DOCTYPE html><html><head><title>Not found</title></head><body><h1>Not found</h1></body></html>"
)

type PageRenderer interface {
	NotFoundPage(name string) (string, error)
}

type pageService struct {
	renderer PageRenderer
	mu       sync.Mutex
	cache    map[string]string
	log      *slog.Logger
}

func NewPageService(renderer PageRenderer, log *slog.Logger) *pageService {
	return &pageService{
		renderer: renderer,
		cache:    make(map[string]string),
		log:      log.With(slog.String("service", serviceName)),
	}
}

// GetPage returns the not-found page for name. A render failure yields a
// static fallback together with the error.
func (p *pageService) GetPage(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	content, ok := p.cache[name]
	p.mu.Unlock()

	if ok {
		return content, nil
	}

	content, err := p.renderer.NotFoundPage(name)
	if err != nil {
		p.log.Error("Cannot render page", slog.String("name", name), slog.Any("error", err))

		return fallbackPage, fmt.Errorf("cannot render page for %s: %w", name, err)
	}

	p.mu.Lock()
	if len(p.cache) >= maxCached {
		clear(p.cache)
	}
	p.cache[name] = content
	p.mu.Unlock()

	return content, nil
}
