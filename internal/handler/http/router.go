package httphandler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

const rateWindow = time.Minute

// NewRouter exposes the download route only. rateLimit is requests per
// minute per client address; zero disables limiting.
func NewRouter(download http.HandlerFunc, rateLimit int, log *slog.Logger) http.Handler {
	log = log.With(slog.String("handler", "Router"))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if rateLimit > 0 {
		r.Use(httprate.Limit(
			rateLimit,
			rateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				log.Warn("Rate limit exceeded", slog.String("remote_addr", r.RemoteAddr))

				w.Header().Set("Retry-After", strconv.Itoa(int(rateWindow.Seconds())))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
			}),
		))
	}

	r.Get("/download/{"+ParamName+"}", download)
	r.Head("/download/{"+ParamName+"}", download)

	return r
}
