package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// ClienteID crea un campo para el ID del cliente (abonado).
func ClienteID(v int64) zap.Field {
	return zap.Int64("cliente_id", v)
}

// InstalacionID crea un campo para el ID de una instalación.
func InstalacionID(v int64) zap.Field {
	return zap.Int64("instalacion_id", v)
}

// Accion crea un campo para una acción de router (cortar, reconectar...).
func Accion(v string) zap.Field {
	return zap.String("accion", v)
}

// Saga crea un campo para el nombre de una saga.
func Saga(v string) zap.Field {
	return zap.String("saga", v)
}

// Paso crea un campo para el paso de una saga.
func Paso(v string) zap.Field {
	return zap.String("paso", v)
}

// Referencia crea un campo para la referencia de un pago.
func Referencia(v string) zap.Field {
	return zap.String("referencia", v)
}

// Replay crea un campo para marcar una respuesta idempotente repetida.
func Replay(v bool) zap.Field {
	return zap.Bool("replay", v)
}

// Intento crea un campo para el número de intento (0-indexed).
func Intento(v int) zap.Field {
	return zap.Int("intento", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}
