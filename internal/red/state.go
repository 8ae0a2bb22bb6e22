// Package red implementa la máquina de estado de red por cliente y sus
// acciones de control idempotentes (simulador de router del back office).
package red

import (
	"crypto/sha1"
	"fmt"
	"strconv"
	"time"
)

// Estado es el snapshot de conectividad de un cliente.
// Exactamente una fila por cliente_id; solo las acciones de esta máquina la
// mutan y nunca se borra.
type Estado struct {
	ClienteID int64     `json:"cliente_id"`
	Connected bool      `json:"connected"`
	Mode      string    `json:"mode"` // emulated | real
	LatencyMs int       `json:"latency_ms"`
	FakeIP    string    `json:"fake_ip"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FakeIP deriva la IP simulada de un cliente. Es función pura del cliente_id:
// la misma entrada produce siempre la misma IP, sin secuencias ni estado.
func FakeIP(clienteID int64) string {
	digest := sha1.Sum([]byte(strconv.FormatInt(clienteID, 10)))
	high := int(digest[0])%254 + 1
	low := int(digest[1])%254 + 1
	return fmt.Sprintf("10.10.%d.%d", high, low)
}
