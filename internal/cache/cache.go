// Package cache provee un store con TTL swappable por backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
//
// El cache de estatus de routers del orquestador vive detrás de esta
// interfaz: no dependemos de memoria implícita de un solo proceso.
package cache

import "time"

// Cache define las operaciones mínimas de un cache con TTL.
type Cache interface {
	Get(k string) ([]byte, bool)
	Set(k string, v []byte, ttl time.Duration)
	Delete(k string)
	// Keys lista las keys con el prefijo dado (vacío = todas).
	Keys(prefix string) []string
}
