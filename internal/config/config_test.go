package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFromCLI(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error when both flags are empty")
	}
	if _, err := FromCLI("a.toml", "conf.d"); err == nil {
		t.Fatalf("expected mutual exclusion error")
	}
	source, err := FromCLI(" a.toml ", "")
	if err != nil {
		t.Fatalf("file source: %v", err)
	}
	if source.File != "a.toml" || source.Dir != "" {
		t.Fatalf("unexpected source: %+v", source)
	}
}

func TestLoadSnapshotDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "minimal.toml", "")
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Service.Mode != ServiceModeSingle {
		t.Fatalf("expected single mode default, got %q", cfg.Service.Mode)
	}
	if cfg.Service.DefaultTenant != "default" {
		t.Fatalf("unexpected default tenant %q", cfg.Service.DefaultTenant)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console logging enabled by default")
	}
	if cfg.Admin.Listen != ":8080" || cfg.Admin.MetricsPath != "/metrics" {
		t.Fatalf("unexpected admin defaults: %+v", cfg.Admin)
	}
	if cfg.Dedup.WindowMS != 300_000 || cfg.Dedup.MaxCount != 1000 {
		t.Fatalf("unexpected dedup defaults: %+v", cfg.Dedup)
	}
	if cfg.Consumer.Workers != 4 || cfg.Consumer.MaxRetryCount != 3 {
		t.Fatalf("unexpected consumer defaults: %+v", cfg.Consumer)
	}
	if cfg.Escalator.IntervalSec != 60 || cfg.Escalator.LockName != "escalator" {
		t.Fatalf("unexpected escalator defaults: %+v", cfg.Escalator)
	}
	if cfg.NATS.QueueStream != "ALARM_EVENTS" {
		t.Fatalf("unexpected queue stream default %q", cfg.NATS.QueueStream)
	}
}

func TestLoadSnapshotNATSModeRequiresDSN(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "cluster.toml", `
[service]
mode = "nats"
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil || !strings.Contains(err.Error(), "postgres.dsn") {
		t.Fatalf("expected dsn validation error, got %v", err)
	}

	path = writeFile(t, dir, "cluster-ok.toml", `
[service]
mode = "NATS"

[postgres]
dsn = "postgres://alarming@localhost/alarming"
`)
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if NormalizeServiceMode(cfg.Service.Mode) != ServiceModeNATS {
		t.Fatalf("expected nats mode, got %q", cfg.Service.Mode)
	}
}

func TestLoadSnapshotRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "bad.toml", `
[service]
mode = "duplex"
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil || !strings.Contains(err.Error(), "service.mode") {
		t.Fatalf("expected mode validation error, got %v", err)
	}
}

func TestLoadSnapshotDirMergesFragments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Fragments merge in lexical order; later fragments extend the snapshot.
	writeFile(t, dir, "10-service.toml", `
[service]
name = "alarming-test"
default_tenant = "acme"
`)
	writeFile(t, dir, "20-sources.toml", `
[source.zbx]
online = true

[source.hook]
online = false
tenant = "beta"
mapper = "webhook"
`)
	writeFile(t, dir, "ignored.txt", "not toml")

	cfg, err := LoadSnapshot(ConfigSource{Dir: dir})
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if cfg.Service.Name != "alarming-test" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}

	zbx := cfg.Sources["zbx"]
	if !zbx.Online || zbx.Tenant != "acme" || zbx.Mapper != "json" {
		t.Fatalf("expected source defaults applied, got %+v", zbx)
	}
	hook := cfg.Sources["hook"]
	if hook.Online || hook.Tenant != "beta" || hook.Mapper != "webhook" {
		t.Fatalf("unexpected hook source: %+v", hook)
	}
}

func TestLoadSnapshotEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := LoadSnapshot(ConfigSource{Dir: t.TempDir()}); err == nil {
		t.Fatalf("expected error for dir without fragments")
	}
}

func TestLoadSnapshotMappingValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "mapping.toml", `
[[mapping.zbx]]
label = "host"
path = "host.name"

[[mapping.zbx]]
label = ""
path = "x"
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil || !strings.Contains(err.Error(), "label is required") {
		t.Fatalf("expected mapping validation error, got %v", err)
	}

	path = writeFile(t, dir, "mapping-ok.toml", `
[[mapping.zbx]]
label = "host"
path = "host.name"

[[mapping.zbx]]
label = "trigger"
path = "trigger.id"
`)
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rows := cfg.Mappings["zbx"]
	if len(rows) != 2 || rows[0].Label != "host" || rows[1].Path != "trigger.id" {
		t.Fatalf("unexpected mapping rows: %+v", rows)
	}
}
