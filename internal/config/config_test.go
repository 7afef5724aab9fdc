package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/multihop-creator/internal/core/faults"
)

const (
	addr1 = "0xC6b4ED732C6919C4318AEF7720c872F0677f268E"
	addr2 = "0x06eF3AE95A9021E2198A1498884C75A480178e17"
	addr3 = "0xc2EbCdBa2714Dd9E30872e3A2B19d25c36beCd97"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test-123456")
	t.Setenv("PRIVATE_KEY", "0xabc")
	t.Setenv("PROVIDER_1", addr1)
	t.Setenv("PROVIDER_2", addr2)
	t.Setenv("PROVIDER_3", addr3)
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, DecomposerLLM, cfg.Decomposer)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	require.Equal(t, int64(412346), cfg.Ledger.ChainID)
	require.Equal(t, "http://127.0.0.1:8547", cfg.Ledger.RPCURL)
	require.Equal(t, "100000000000000000", cfg.StepBudget.String())
	require.Equal(t, time.Hour, cfg.AcceptWindow)
	require.Equal(t, 24*time.Hour, cfg.CompleteWindow)
	require.Equal(t, 60*time.Second, cfg.Ledger.ConfirmTimeout)
	require.Equal(t, uint64(64), cfg.Ledger.BlockLookback)
	require.Equal(t, 5*time.Second, cfg.GraceDelay)
	require.Equal(t, []string{addr1, addr2, addr3}, cfg.Providers)
	require.True(t, cfg.MetricsEnabled)
	require.Empty(t, cfg.RedisAddr)
}

func TestLoadProvidersList(t *testing.T) {
	setRequired(t)
	t.Setenv("PROVIDERS", addr3+", "+addr2+","+addr1)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{addr3, addr2, addr1}, cfg.Providers)
}

func TestLoadEnvFile(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9999\nGRACE_DELAY=1s\nDECOMPOSER=static\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port, "environment wins over the file")
	require.Equal(t, time.Second, cfg.GraceDelay)
	require.Equal(t, DecomposerStatic, cfg.Decomposer)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	setRequired(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing private key", map[string]string{"PRIVATE_KEY": ""}},
		{"missing api key in llm mode", map[string]string{"OPENAI_API_KEY": ""}},
		{"too few providers", map[string]string{"PROVIDER_3": ""}},
		{"malformed provider", map[string]string{"PROVIDER_2": "not-an-address"}},
		{"unknown decomposer", map[string]string{"DECOMPOSER": "oracle"}},
		{"zero window", map[string]string{"ACCEPT_WINDOW": "0s"}},
		{"bad budget", map[string]string{"STEP_BUDGET_WEI": "0.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.ErrorIs(t, err, faults.ErrConfiguration)
		})
	}
}

func TestStaticModeNeedsNoAPIKey(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DECOMPOSER", "static")

	_, err := Load("")
	require.NoError(t, err)
}

func TestMask(t *testing.T) {
	require.Equal(t, "sk-tes...", Mask("sk-test-123456"))
	require.Equal(t, "***", Mask("abc"))
}
