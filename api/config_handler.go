package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/seenimoa/jpxetf/internal/config"
	"github.com/seenimoa/jpxetf/internal/datasource"
)

// cacheMu serialises refresh and clear requests.
var cacheMu sync.Mutex

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config  *config.Config        `json:"config"`
	Sources []config.SourceStatus `json:"sources"`
}

// CacheEntry is one row of GET /api/v1/cache.
type CacheEntry struct {
	Name       string     `json:"name"`
	TTL        string     `json:"ttl"`
	SnapshotAt *time.Time `json:"snapshot_at,omitempty"`
	Fresh      bool       `json:"fresh"`
}

// handleGetConfig returns the running configuration and where each upstream endpoint came from.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:  s.cfg,
			Sources: config.CheckSources(s.cfg),
		},
	})
}

// handleGetSources returns the status of every upstream endpoint.
func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckSources(s.cfg),
	})
}

// handleCacheStatus reports snapshot age and freshness per source.
func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    cacheEntries(s.agg.CacheStatus(s.now())),
	})
}

// handleCacheRefresh force-refreshes every cached source. Degraded sources
// are reported in the payload; the request itself still succeeds.
func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.agg.RefreshAll(r.Context()),
	})
}

// handleCacheClear drops memory and snapshot state for every source.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if err := s.agg.ClearCache(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear cache: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    cacheEntries(s.agg.CacheStatus(s.now())),
	})
}

func cacheEntries(status []datasource.CacheStatus) []CacheEntry {
	out := make([]CacheEntry, len(status))
	for i, st := range status {
		out[i] = CacheEntry{Name: st.Name, TTL: st.TTL.String(), SnapshotAt: st.SnapshotAt, Fresh: st.Fresh}
	}
	return out
}
