package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda "dev".
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
		// debug | info | warn | error
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	// URLs de los servicios colaboradores. Cada servicio solo usa las que
	// necesita; los timeouts de salida son fijos (5s, saga 10s).
	Services struct {
		Clientes    string `yaml:"clientes"`
		Facturacion string `yaml:"facturacion"`
		Pagos       string `yaml:"pagos"`
		Red         string `yaml:"red"`
		Whatsapp    string `yaml:"whatsapp"`
		Inventario  string `yaml:"inventario"`
	} `yaml:"services"`

	Red struct {
		// emulated | real. Informativo: con "real" el simulador sigue
		// respondiendo pero marca el modo en cada snapshot.
		RouterMode string `yaml:"router_mode"`
		AuditPath  string `yaml:"audit_path"`
	} `yaml:"red"`

	Instalaciones struct {
		// "zona:tecnico,zona:tecnico" igual que INSTALACIONES_TECNICOS
		Tecnicos     string `yaml:"tecnicos"`
		RequiredSKUs string `yaml:"required_skus"`
	} `yaml:"instalaciones"`

	Pagos struct {
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"pagos"`

	Notificaciones struct {
		SMTP struct {
			Host string `yaml:"host"`
			Port int    `yaml:"port"`
			User string `yaml:"user"`
			Pass string `yaml:"pass"`
			From string `yaml:"from"`
		} `yaml:"smtp"`
	} `yaml:"notificaciones"`
}

// Load lee el YAML (opcional) y aplica overrides de entorno.
// Un path vacío o inexistente no es error: todo puede venir de env.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	c.applyEnvOverrides()

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "10m"
	}
	if c.Services.Clientes == "" {
		c.Services.Clientes = "http://clientes:8000"
	}
	if c.Services.Facturacion == "" {
		c.Services.Facturacion = "http://facturacion:8002"
	}
	if c.Services.Pagos == "" {
		c.Services.Pagos = "http://pagos:8003"
	}
	if c.Services.Whatsapp == "" {
		c.Services.Whatsapp = "http://whatsapp:8011"
	}
	if c.Services.Red == "" {
		c.Services.Red = "http://red:8020"
	}
	if c.Red.RouterMode == "" {
		c.Red.RouterMode = "emulated"
	}
	if c.Red.AuditPath == "" {
		c.Red.AuditPath = "red-audit.log"
	}
	if c.Instalaciones.Tecnicos == "" {
		c.Instalaciones.Tecnicos = "Norte:tec-norte-01,Centro:tec-centro-01,Sur:tec-sur-01"
	}
	if c.Instalaciones.RequiredSKUs == "" {
		c.Instalaciones.RequiredSKUs = "ONT,ROUTER"
	}
	if c.Pagos.WebhookSecret == "" {
		c.Pagos.WebhookSecret = "devsecret"
	}

	return &c, nil
}

// MemoryTTL devuelve el TTL default del cache en memoria ya parseado.
func (c *Config) MemoryTTL() time.Duration {
	if d, err := time.ParseDuration(c.Cache.Memory.DefaultTTL); err == nil {
		return d
	}
	return 10 * time.Minute
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
// Los nombres siguen a los del sistema original (RED_URL, ROUTER_MODE...).
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("DATABASE_URL"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("CLIENTES_URL"); ok {
		c.Services.Clientes = v
	}
	if v, ok := getEnvStr("FACTURACION_URL"); ok {
		c.Services.Facturacion = v
	}
	if v, ok := getEnvStr("PAGOS_URL"); ok {
		c.Services.Pagos = v
	}
	if v, ok := getEnvStr("RED_URL"); ok {
		c.Services.Red = v
	}
	if v, ok := getEnvStr("WHATSAPP_URL"); ok {
		c.Services.Whatsapp = v
	}
	if v, ok := getEnvStr("INVENTARIO_URL"); ok {
		c.Services.Inventario = v
	}
	if v, ok := getEnvStr("ROUTER_MODE"); ok {
		c.Red.RouterMode = v
	}
	if v, ok := getEnvStr("RED_AUDIT_PATH"); ok {
		c.Red.AuditPath = v
	}
	if v, ok := getEnvStr("INSTALACIONES_TECNICOS"); ok {
		c.Instalaciones.Tecnicos = v
	}
	if v, ok := getEnvStr("REQUIRED_SKUS"); ok {
		c.Instalaciones.RequiredSKUs = v
	}
	if v, ok := getEnvStr("WEBHOOK_SECRET"); ok {
		c.Pagos.WebhookSecret = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.Notificaciones.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.Notificaciones.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USER"); ok {
		c.Notificaciones.SMTP.User = v
	}
	if v, ok := getEnvStr("SMTP_PASS"); ok {
		c.Notificaciones.SMTP.Pass = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.Notificaciones.SMTP.From = v
	}
}
