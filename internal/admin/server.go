package admin

import "net/http"

// Config is the admin listener's own address/timeouts, mirroring
// config.AdminConfig.
type Config struct {
	Host string
	Port string
}

// NewHTTPServer wraps NewRouter(deps) behind a *http.Server on cfg's
// address, the same bare http.Server shape the teacher's main.go builds
// for its own listener.
func NewHTTPServer(cfg Config, deps Deps) *http.Server {
	return &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: NewRouter(deps),
	}
}
