package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestTrail_AppendYClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	trail, err := NewTrail(path)
	if err != nil {
		t.Fatal(err)
	}

	trail.Append("cortar", map[string]any{"cliente_id": 7, "connected": false})
	trail.Append("reconectar", map[string]any{"cliente_id": 7, "connected": true})
	trail.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("línea de audit no es JSON: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("esperaba 2 líneas, hay %d", len(lines))
	}
	if lines[0]["event"] != "cortar" || lines[1]["event"] != "reconectar" {
		t.Fatalf("orden de eventos incorrecto: %v", lines)
	}
	if _, ok := lines[0]["ts"]; !ok {
		t.Fatal("cada evento debe llevar timestamp")
	}
}

func TestTrail_AppendTrasCloseNoEscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	trail, err := NewTrail(path)
	if err != nil {
		t.Fatal(err)
	}
	trail.Close()
	trail.Append("cortar", nil) // no debe entrar en pánico

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 0 {
		t.Fatalf("no debería haber eventos tras Close: %q", b)
	}
}
