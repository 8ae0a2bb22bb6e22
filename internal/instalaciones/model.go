// Package instalaciones implementa el ciclo de vida de una instalación física
// y el ejecutor de provisionamiento con reintentos que lo cierra.
package instalaciones

import "time"

// Estados del ciclo de vida. NoCompletada es terminal recuperable: un nuevo
// cierre con evidencias puede llevarla a Completada.
const (
	EstadoProgramada   = "Programada"
	EstadoEnRuta       = "EnRuta"
	EstadoEnSitio      = "EnSitio"
	EstadoCompletada   = "Completada"
	EstadoNoCompletada = "NoCompletada"
)

// Instalacion es el ticket de una instalación física.
// Invariante: Estado == Completada implica Evidencias no vacías.
type Instalacion struct {
	ID         int64     `json:"id"`
	ClienteID  int64     `json:"clienteId"`
	Ventana    string    `json:"ventana"`
	Zona       string    `json:"zona"`
	Estado     string    `json:"estado"`
	Evidencias []string  `json:"evidencias"`
	Notas      string    `json:"notas"`
	CreadoEn   time.Time `json:"creadoEn"`
}
