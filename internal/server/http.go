package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rizkyandriawan/polylog/internal/config"
	"github.com/rizkyandriawan/polylog/internal/engine"
	"github.com/rizkyandriawan/polylog/internal/group"
	"github.com/rizkyandriawan/polylog/internal/protocol"
)

// HTTPServer handles the admin HTTP API and metrics endpoint
type HTTPServer struct {
	config *config.Config
	engine *engine.Engine
	router *group.Router
	logger log.Logger
	server *http.Server
}

// NewHTTPServer creates a new HTTPServer
func NewHTTPServer(cfg *config.Config, eng *engine.Engine, router *group.Router, logger log.Logger, gatherer prometheus.Gatherer) *HTTPServer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &HTTPServer{
		config: cfg,
		engine: eng,
		router: router,
		logger: log.With(logger, "component", "http-server"),
	}

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/topics", s.authMiddleware(s.handleTopics))
	mux.HandleFunc("/api/topics/", s.authMiddleware(s.handleTopic))
	mux.HandleFunc("/api/groups", s.authMiddleware(s.handleGroups))
	mux.HandleFunc("/api/groups/", s.authMiddleware(s.handleGroup))
	mux.HandleFunc("/api/pending", s.authMiddleware(s.handlePending))
	mux.HandleFunc("/api/stats", s.authMiddleware(s.handleStats))

	// Health check and metrics (no auth)
	mux.HandleFunc("/health", s.handleHealth)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	return s
}

// ListenAndServe starts the HTTP server
func (s *HTTPServer) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Close closes the HTTP server
func (s *HTTPServer) Close() error {
	return s.server.Close()
}

func (s *HTTPServer) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.Security.Enabled {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(auth, "Bearer ")
			if token != s.config.Security.Token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleTopics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		topics := s.engine.ListTopics()
		result := make([]map[string]interface{}, 0)
		for _, name := range topics {
			meta, _ := s.engine.GetTopicMeta(name)
			latest, _ := s.engine.LatestOffset(name)
			result = append(result, map[string]interface{}{
				"name":          name,
				"latest_offset": latest,
				"created_at":    meta.CreatedAt,
			})
		}
		json.NewEncoder(w).Encode(result)

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.engine.CreateTopic(req.Name); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"name": req.Name})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *HTTPServer) handleTopic(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Parse path: /api/topics/{name} or /api/topics/{name}/messages
	path := strings.TrimPrefix(r.URL.Path, "/api/topics/")
	parts := strings.Split(path, "/")
	topicName := parts[0]

	if len(parts) > 1 && parts[1] == "messages" {
		s.handleMessages(w, r, topicName)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !s.engine.TopicExists(topicName) {
			http.Error(w, "Topic not found", http.StatusNotFound)
			return
		}
		meta, _ := s.engine.GetTopicMeta(topicName)
		latest, _ := s.engine.LatestOffset(topicName)
		earliest, _ := s.engine.EarliestOffset(topicName)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":            topicName,
			"latest_offset":   latest,
			"earliest_offset": earliest,
			"created_at":      meta.CreatedAt,
		})

	case http.MethodDelete:
		if err := s.engine.DeleteTopic(topicName); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, topicName string) {
	switch r.Method {
	case http.MethodGet:
		offset := int64(0)
		limit := 100
		if v := r.URL.Query().Get("offset"); v != "" {
			offset, _ = strconv.ParseInt(v, 10, 64)
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}

		records, err := s.engine.Fetch(topicName, offset, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		result := make([]map[string]interface{}, 0)
		for _, rec := range records {
			value := rec.Value
			if rec.Codec != protocol.CompressionNone {
				if expanded, err := protocol.Decompress(rec.Codec, rec.Value); err == nil {
					value = expanded
				}
			}
			result = append(result, map[string]interface{}{
				"offset":    rec.Offset,
				"timestamp": rec.Timestamp,
				"key":       string(rec.Key),
				"value":     string(value),
				"codec":     rec.Codec,
			})
		}
		json.NewEncoder(w).Encode(result)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *HTTPServer) handleGroups(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		listed, err := s.router.ListGroups().Wait()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		result := map[string]interface{}{
			"error_code": listed.ErrorCode,
			"groups":     listed.Groups,
		}
		json.NewEncoder(w).Encode(result)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *HTTPServer) handleGroup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	groupID := strings.TrimPrefix(r.URL.Path, "/api/groups/")

	switch r.Method {
	case http.MethodGet:
		described, err := s.router.DescribeGroup(groupID).Wait()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if described.ErrorCode != protocol.ErrNone {
			http.Error(w, "Group not available", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(described)

	case http.MethodDelete:
		results, err := s.router.DeleteGroups([]string{groupID}).Wait()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(results) != 1 || results[0].ErrorCode != protocol.ErrNone {
			http.Error(w, "Group not deletable", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *HTTPServer) handlePending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	pending := s.engine.GetPendingQueue().GetAll()
	result := make([]map[string]interface{}, 0)
	for _, p := range pending {
		result = append(result, map[string]interface{}{
			"topic":          p.Topic,
			"partition":      p.Partition,
			"offset":         p.Offset,
			"deadline":       p.Deadline,
			"correlation_id": p.CorrelationID,
		})
	}
	json.NewEncoder(w).Encode(result)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	topics := s.engine.ListTopics()
	pending := s.engine.GetPendingQueue().Len()

	stats := map[string]interface{}{
		"topics":  len(topics),
		"pending": pending,
	}
	if listed, err := s.router.ListGroups().Wait(); err == nil {
		stats["groups"] = len(listed.Groups)
	}
	json.NewEncoder(w).Encode(stats)
}
