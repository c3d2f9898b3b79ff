package plugins

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ReportHandler serves the analyzer's stats from dir: the HTML report at "/"
// and the raw stats at "/stats.json". Stats are re-read on every request so a
// rebuild in watch mode shows up without a restart.
func ReportHandler(dir, statsFilename, title string) http.Handler {
	statsPath := filepath.Join(dir, statsFilename)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats.json", func(w http.ResponseWriter, r *http.Request) {
		report, ok := loadReport(w, statsPath)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.Error().Err(err).Msg("Failed to encode stats")
		}
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		report, ok := loadReport(w, statsPath)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := RenderReport(w, title, report); err != nil {
			log.Error().Err(err).Msg("Failed to render report")
		}
	})
	return mux
}

func loadReport(w http.ResponseWriter, path string) (*Report, bool) {
	report, err := ReadStats(path)
	if err != nil {
		if errors.Is(err, ErrNoReport) {
			http.Error(w, "No bundle report, run a build first", http.StatusNotFound)
			return nil, false
		}
		log.Error().Err(err).Msg("Failed to load stats")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	return report, true
}
