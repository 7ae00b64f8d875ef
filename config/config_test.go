package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HIDROWEB_BASE_DIR", base)
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_STATEMENT_TIMEOUT", "90")
	t.Setenv("HIDROWEB_MAX_PASSES", "not-a-number")
	t.Setenv("HIDROWEB_HEADLESS", "false")

	cfg := Load()

	assert.Equal(t, "db.internal", cfg.PostgresHost)
	assert.Equal(t, "5432", cfg.PostgresPort)
	assert.Equal(t, 90*time.Second, cfg.StatementTimeout)
	assert.Equal(t, 3, cfg.MaxPasses)
	assert.False(t, cfg.Headless)
	assert.Equal(t, filepath.Join(base, ".tmp"), cfg.ScratchDir)
	assert.Equal(t, filepath.Join(base, "Consultadas"), cfg.ConsultadasDir())
	assert.Equal(t, DefaultPortalURL, cfg.PortalURL)
}

func TestLoadUsesProfileBelowEnv(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HIDROWEB_BASE_DIR", base)
	t.Setenv("POSTGRES_HOST", "")
	t.Setenv("POSTGRES_USER", "from-env")

	require.NoError(t, SaveProfile(ProfilePath(base), &Profile{
		Host: "profile-host", Port: "5433", Database: "hidro", User: "profile-user", Table: "ana.ana_cota_diaria",
	}))

	cfg := Load()
	assert.Equal(t, "profile-host", cfg.PostgresHost)
	assert.Equal(t, "5433", cfg.PostgresPort)
	assert.Equal(t, "from-env", cfg.PostgresUser)
	assert.Equal(t, "ana.ana_cota_diaria", cfg.PostgresTable)
}

func TestDSNQuotesPassword(t *testing.T) {
	cfg := &Config{
		PostgresHost: "localhost", PostgresPort: "5432", PostgresUser: "postgres",
		PostgresDB: "sipam_hidro", PostgresSSLMode: "disable", PostgresPassword: "it's secret",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "dbname=sipam_hidro")
	assert.Contains(t, dsn, `password='it\'s secret'`)

	cfg.PostgresPassword = ""
	assert.NotContains(t, cfg.DSN(), "password=")
}

func TestProfileNeverStoresPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.yaml")
	cfg := &Config{PostgresHost: "h", PostgresPort: "5432", PostgresDB: "d", PostgresUser: "u", PostgresPassword: "pw"}

	require.NoError(t, SaveProfile(path, ProfileFrom(cfg)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "pw"), "profile leaked the password")

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "h", p.Host)
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr string
	}{
		{"ok", Profile{Host: "h", Port: "5432", Database: "d", User: "u"}, ""},
		{"missing host", Profile{Port: "5432", Database: "d", User: "u"}, "host is required"},
		{"bad port", Profile{Host: "h", Port: "abc", Database: "d", User: "u"}, "port"},
		{"port out of range", Profile{Host: "h", Port: "70000", Database: "d", User: "u"}, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &Profile{}, p)
}
