package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		Redis struct {
			Addr        string        `koanf:"addr"`
			ReadTimeout time.Duration `koanf:"read_timeout"`
		} `koanf:"redis"`
	} `koanf:"server"`
	Storage struct {
		DataDir      string `koanf:"data_dir"`
		SnapshotKeep int    `koanf:"snapshot_keep"`
	} `koanf:"storage"`
	Engine struct {
		ReadOnly bool `koanf:"read_only"`
	} `koanf:"engine"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
	if l.IsLoaded() {
		t.Error("IsLoaded() = true before Load()")
	}

	l = NewLoader(WithEnvPrefix("X_"), WithConfigFile("/etc/kvgate.yaml"))
	if l.envPrefix != "X_" || l.filePath != "/etc/kvgate.yaml" {
		t.Errorf("options not applied: %q %q", l.envPrefix, l.filePath)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"KVGATE_LOG__LEVEL", "log.level"},
		{"KVGATE_STORAGE__DATA_DIR", "storage.data_dir"},
		{"KVGATE_SERVER__REDIS__MAX_OUTPUT_BUFFER", "server.redis.max_output_buffer"},
		{"KVGATE_ENGINE", "engine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnvKey(DefaultEnvPrefix, tt.name); got != tt.want {
				t.Errorf("EnvKey(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

// ============================================================
// Sources
// ============================================================

func TestLoader_LoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  redis:
    addr: 0.0.0.0:6380
    read_timeout: 10s
storage:
  data_dir: /var/lib/kvgate
`)
	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := l.GetString("server.redis.addr"); got != "0.0.0.0:6380" {
		t.Errorf("server.redis.addr = %q", got)
	}

	var cfg testConfig
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Server.Redis.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", cfg.Server.Redis.ReadTimeout)
	}
	if cfg.Storage.DataDir != "/var/lib/kvgate" {
		t.Errorf("DataDir = %q", cfg.Storage.DataDir)
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") error = %v, want nil", err)
	}
	if err := l.LoadFile("/nonexistent/kvgate.yaml"); err == nil {
		t.Error("LoadFile() expected error for missing file")
	}
	bad := writeFile(t, "server: [unclosed")
	if err := l.LoadFile(bad); err == nil {
		t.Error("LoadFile() expected error for malformed YAML")
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("KVGATE_STORAGE__DATA_DIR", "/data")
	t.Setenv("KVGATE_ENGINE__READ_ONLY", "true")
	t.Setenv("OTHER_STORAGE__DATA_DIR", "/ignored")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := l.GetString("storage.data_dir"); got != "/data" {
		t.Errorf("storage.data_dir = %q, want /data", got)
	}
	if !l.GetBool("engine.read_only") {
		t.Error("engine.read_only = false, want true")
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	err := l.LoadMap(map[string]any{
		"server.redis.addr":     ":7000",
		"storage.snapshot_keep": 5,
	})
	if err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if got := l.GetInt("storage.snapshot_keep"); got != 5 {
		t.Errorf("storage.snapshot_keep = %d, want 5", got)
	}
	if len(l.Keys()) != 2 {
		t.Errorf("Keys() = %v", l.Keys())
	}
}

// ============================================================
// Layering
// ============================================================

func TestLoader_Load_Priority(t *testing.T) {
	path := writeFile(t, `
server:
  redis:
    addr: from-file:6380
storage:
  data_dir: /from-file
`)
	t.Setenv("KVGATE_SERVER__REDIS__ADDR", "from-env:6381")

	var cfg testConfig
	cfg.Storage.SnapshotKeep = 3
	cfg.Server.Redis.ReadTimeout = 30 * time.Second

	l := NewLoader(WithConfigFile(path))
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() = false after Load()")
	}

	if cfg.Server.Redis.Addr != "from-env:6381" {
		t.Errorf("Addr = %q, env should override file", cfg.Server.Redis.Addr)
	}
	if cfg.Storage.DataDir != "/from-file" {
		t.Errorf("DataDir = %q, want file value", cfg.Storage.DataDir)
	}
	if cfg.Storage.SnapshotKeep != 3 {
		t.Errorf("SnapshotKeep = %d, default should survive", cfg.Storage.SnapshotKeep)
	}
	if cfg.Server.Redis.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, default should survive", cfg.Server.Redis.ReadTimeout)
	}
}

func TestLoader_Load_MissingFile(t *testing.T) {
	var cfg testConfig
	l := NewLoader(WithConfigFile("/nonexistent/kvgate.yaml"))
	if err := l.Load(&cfg); err == nil {
		t.Error("Load() expected error for missing file")
	}
	if l.IsLoaded() {
		t.Error("IsLoaded() = true after failed Load()")
	}
}

func TestMapProvider_ReadBytes(t *testing.T) {
	if _, err := mapProvider(nil).ReadBytes(); err != ErrReadBytesNotSupported {
		t.Errorf("ReadBytes() error = %v, want %v", err, ErrReadBytesNotSupported)
	}
}
