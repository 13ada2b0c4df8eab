package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GPTx-global/gora/oracle/config"
	"github.com/GPTx-global/gora/x/gora/types"
)

var envKeys = []string{
	config.EnvMainAppID,
	config.EnvTokenAssetID,
	config.EnvTokenDepositAmount,
	config.EnvAlgoDepositAmount,
	config.EnvHashAlgorithm,
	config.EnvAppID,
	config.EnvDestAppID,
	config.EnvListenAddr,
}

// clearEnv unsets every override for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { os.Setenv(key, v) })
		}
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()

	cfg, err := config.Load(home)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(home, config.FileName))

	require.Equal(t, home, cfg.Home)
	require.Equal(t, string(types.DefaultHashAlgorithm), cfg.Dispatcher.HashAlgorithm)
	require.Equal(t, uint64(10_000_000_000), cfg.Dispatcher.TokenDepositAmount)
	require.Equal(t, uint64(10_000_000_000), cfg.Dispatcher.AlgoDepositAmount)
	require.True(t, cfg.Client.StoreFailedResponses)

	// no dispatcher pinned yet
	_, err = cfg.Params()
	require.ErrorIs(t, err, types.ErrInvalidParams)

	rc, err := cfg.RetryConfig()
	require.NoError(t, err)
	require.Equal(t, 1, rc.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, rc.BaseDelay)
	require.Equal(t, 10*time.Second, cfg.PreviewTimeout())
}

func TestLoadFileAndOverrides(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()

	file := `
[dispatcher]
main_app_id = 1
hash_algorithm = "sha3_256"
token_asset_id = 7

[client]
app_id = 100
store_failed_responses = false

[submit]
retry_attempts = 3
retry_base_delay = "1s"
retry_max_delay = "4s"
`
	require.NoError(t, os.WriteFile(filepath.Join(home, config.FileName), []byte(file), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(home, config.EnvFileName),
		[]byte("GORA_TOKEN_ASSET_ID=9\nGORA_DEST_APP_ID=200\nGORA_HASH_ALGORITHM=blake2b_256\n"), 0o600))
	t.Setenv(config.EnvHashAlgorithm, "sha512_256")

	cfg, err := config.Load(home)
	require.NoError(t, err)

	// .env beats the file
	require.Equal(t, uint64(9), cfg.Dispatcher.TokenAssetID)
	require.Equal(t, uint64(200), cfg.Client.DestAppID)
	// the process environment beats .env
	require.Equal(t, "sha512_256", cfg.Dispatcher.HashAlgorithm)
	// untouched defaults survive a partial file
	require.Equal(t, 4, cfg.Preview.Workers)

	params, err := cfg.Params()
	require.NoError(t, err)
	require.Equal(t, uint64(1), params.DispatcherAppID)
	require.Equal(t, types.ApplicationAddress(1), params.DispatcherIdentity)
	require.Equal(t, "WCS6TVPJRBSARHLN2326LRU5BYVJZUKI2VJ53CAWKYYHDE455ZGKANWMGM", params.DispatcherIdentity.String())
	require.Equal(t, uint64(9), params.TokenAssetID)
	require.False(t, params.StoreFailedResponses)

	rc, err := cfg.RetryConfig()
	require.NoError(t, err)
	require.Equal(t, 3, rc.MaxAttempts)
	require.Equal(t, 4*time.Second, rc.MaxDelay)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name string
		file string
		env  map[string]string
	}{
		{"unknown hash", "[dispatcher]\nhash_algorithm = \"md5\"\n", nil},
		{"bad retry delay", "[submit]\nretry_base_delay = \"soon\"\n", nil},
		{"zero retry attempts", "[submit]\nretry_attempts = 0\n", nil},
		{"bad db backend", "[daemon]\ndb_backend = \"rocksdb\"\n", nil},
		{"not toml", "[dispatcher\n", nil},
		{"bad env number", "", map[string]string{config.EnvMainAppID: "one"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			home := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(home, config.FileName), []byte(tc.file), 0o600))

			_, err := config.Load(home)
			require.Error(t, err)
		})
	}
}
