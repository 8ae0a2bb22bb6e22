package orquestador

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Timeouts de salida: las llamadas dentro de una saga toleran el backoff de
// los colaboradores, el resto usa el timeout corto estándar.
const (
	sagaTimeout  = 10 * time.Second
	shortTimeout = 5 * time.Second
)

// Client habla JSON con un servicio colaborador.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

// PostJSON manda body como JSON y devuelve el status y el cuerpo crudo.
// Un error de transporte devuelve status 0.
func (c *Client) PostJSON(ctx context.Context, path string, headers map[string]string, body any) (int, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// postOK es PostJSON pero trata cualquier status fuera de 2xx como error.
func (c *Client) postOK(ctx context.Context, path string, headers map[string]string, body any) ([]byte, error) {
	status, raw, err := c.PostJSON(ctx, path, headers, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return raw, fmt.Errorf("%s%s respondió %d: %s", c.base, path, status, truncate(raw, 256))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// Clients agrupa los colaboradores que usa el orquestador.
type Clients struct {
	Clientes    *Client
	Facturacion *Client
	Pagos       *Client
	Red         *Client
	Whatsapp    *Client
}

// NewClients arma el set con los timeouts estándar a partir de las URLs base.
func NewClients(clientes, facturacion, pagos, red, whatsapp string) *Clients {
	return &Clients{
		Clientes:    NewClient(clientes, sagaTimeout),
		Facturacion: NewClient(facturacion, sagaTimeout),
		Pagos:       NewClient(pagos, sagaTimeout),
		Red:         NewClient(red, shortTimeout),
		Whatsapp:    NewClient(whatsapp, shortTimeout),
	}
}
