package server

import "net/http"

// routes configures all admin HTTP handlers on a dedicated mux
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/jobs", s.corsMiddleware(s.HandleJobs))                             // List (GET) / register (POST)
	mux.HandleFunc("/api/jobs/", s.corsMiddleware(s.HandleJob))                             // Single job and sub-resources
	mux.HandleFunc("/api/executions/", s.corsMiddleware(s.HandleExecution))                 // Single execution (GET)
	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))

	return mux
}

// corsMiddleware sets CORS headers for origins allowed by config and
// answers preflight requests
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
