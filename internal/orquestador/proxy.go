package orquestador

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

// Headers hop-by-hop que no deben cruzar el proxy (RFC 7230 §6.1).
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// NewRedProxy devuelve un reverse proxy transparente hacia el servicio red.
// Los headers de idempotencia y correlación pasan intactos; los hop-by-hop
// se filtran en ambas direcciones.
func NewRedProxy(redURL string) (http.Handler, error) {
	target, err := url.Parse(redURL)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
		stripHopByHop(req.Header)
	}
	proxy.ModifyResponse = func(resp *http.Response) error {
		stripHopByHop(resp.Header)
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.From(r.Context()).Warn("proxy hacia red falló",
			logger.Path(r.URL.Path), logger.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream_unavailable","error_description":"servicio red no disponible"}`))
	}
	return proxy, nil
}

func stripHopByHop(h http.Header) {
	// Primero lo que el propio header Connection enumere.
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}
