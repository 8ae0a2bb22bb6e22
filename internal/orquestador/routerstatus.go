package orquestador

import (
	"encoding/json"
	"time"

	"github.com/dropDatabas3/wispcore/internal/cache"
)

const statusPrefix = "router-status:"

// RouterStatus es el heartbeat que reportan los routers de campo. Vive en el
// cache con TTL: un router que deja de reportar desaparece solo.
type RouterStatus struct {
	RouterID  string    `json:"routerId"`
	Online    bool      `json:"online"`
	Zona      string    `json:"zona,omitempty"`
	LatencyMs int       `json:"latencyMs,omitempty"`
	// Accion es la sugerencia operativa derivada del reporte. Hoy solo
	// "reset" cuando el router está offline.
	Accion    string    `json:"accion,omitempty"`
	VistoEn   time.Time `json:"vistoEn"`
}

// StatusBoard guarda y consulta el estatus de routers sobre el cache
// swappable (memoria o redis).
type StatusBoard struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewStatusBoard(c cache.Cache, ttl time.Duration) *StatusBoard {
	return &StatusBoard{cache: c, ttl: ttl}
}

// Report registra el heartbeat y devuelve el estatus enriquecido.
func (b *StatusBoard) Report(st RouterStatus) RouterStatus {
	st.VistoEn = time.Now().UTC()
	if !st.Online {
		st.Accion = "reset"
	} else {
		st.Accion = ""
	}
	if raw, err := json.Marshal(st); err == nil {
		b.cache.Set(statusPrefix+st.RouterID, raw, b.ttl)
	}
	return st
}

// Get devuelve el último estatus reportado, o nil si el router no ha
// reportado dentro del TTL.
func (b *StatusBoard) Get(routerID string) *RouterStatus {
	raw, ok := b.cache.Get(statusPrefix + routerID)
	if !ok {
		return nil
	}
	var st RouterStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil
	}
	return &st
}

// List devuelve todos los estatus vigentes.
func (b *StatusBoard) List() []RouterStatus {
	keys := b.cache.Keys(statusPrefix)
	out := make([]RouterStatus, 0, len(keys))
	for _, k := range keys {
		raw, ok := b.cache.Get(k)
		if !ok {
			continue
		}
		var st RouterStatus
		if err := json.Unmarshal(raw, &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}
