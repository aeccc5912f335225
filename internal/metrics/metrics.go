// Package metrics exposes Prometheus collectors for the bot and the range server.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Labels carry no user or session ids.

var (
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchbot_downloads_total",
		Help: "Total number of finished downloads, by result (ok, transient, fatal, missing).",
	}, []string{"result"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchbot_deliveries_total",
		Help: "Total number of delivered files, by method (audio, video, document, link).",
	}, []string{"method"})

	NotifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchbot_notify_failures_total",
		Help: "Total number of best-effort message edits that failed.",
	})

	SweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchbot_swept_total",
		Help: "Total number of items reclaimed by the janitor, by kind (session, webfile, orphan).",
	}, []string{"kind"})

	TransferredBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchbot_transferred_bytes_total",
		Help: "Total number of bytes served over the download link endpoint.",
	})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchbot_transfers_total",
		Help: "Total number of download link requests, by status code.",
	}, []string{"code"})

	DownloadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetchbot_downloads_in_flight",
		Help: "Current number of running downloads across all users.",
	})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetchbot_sessions",
		Help: "Current number of live sessions.",
	})

	ActiveTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetchbot_active_transfers",
		Help: "Current number of download link responses being streamed.",
	})
)

func RecordDownload(result string) {
	DownloadsTotal.WithLabelValues(result).Inc()
}

func RecordDelivery(method string) {
	DeliveriesTotal.WithLabelValues(method).Inc()
}

func RecordNotifyFailure() {
	NotifyFailuresTotal.Inc()
}

func RecordSwept(kind string, n int) {
	SweptTotal.WithLabelValues(kind).Add(float64(n))
}

func RecordTransfer(code int, bytes int64) {
	TransfersTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	TransferredBytesTotal.Add(float64(bytes))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
