// Package dashboard renders Grafana dashboards over the GreptimeDB tables the
// recorder writes.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"droneswarm/internal/telemetry"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Params names the database and tables a dashboard queries.
type Params struct {
	Database     string
	EventTable   string
	SwarmTable   string
	CommandTable string
}

// DefaultParams queries the tables the recorder writes in database.
func DefaultParams(database string) Params {
	if database == "" {
		database = "public"
	}
	return Params{
		Database:     database,
		EventTable:   telemetry.VehicleEventRow{}.TableName(),
		SwarmTable:   telemetry.SwarmEventRow{}.TableName(),
		CommandTable: telemetry.CommandRow{}.TableName(),
	}
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
// Templates read the datasource UID from GREPTIMEDB_DATASOURCE_UID.
func Render(outDir string, p Params) ([]string, error) {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	t, err := template.New("dashboards").Funcs(funcMap).ParseFS(templates, "templates/*.json.tmpl")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, tpl := range t.Templates() {
		if !strings.HasSuffix(tpl.Name(), ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(tpl.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return written, err
		}
		if err := tpl.Execute(f, p); err != nil {
			f.Close()
			return written, fmt.Errorf("render %s: %w", tpl.Name(), err)
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
