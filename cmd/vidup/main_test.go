package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"vidshare/internal/config"
)

func newFlags(t *testing.T) (*viper.Viper, *pflag.FlagSet) {
	t.Helper()
	v := viper.New()
	fs := pflag.NewFlagSet("vidup", pflag.ContinueOnError)
	bindFlags(v, fs)
	return v, fs
}

func TestClientPolicy_Defaults(t *testing.T) {
	v, _ := newFlags(t)
	p := config.PolicyFrom(v, clientPolicyKeys)
	require.Equal(t, int64(10<<20), p.MinBytes)
	require.Equal(t, int64(200<<20), p.MaxBytes)
	require.Equal(t, []string{"video/mp4"}, p.AllowedTypes)
	require.Equal(t, []string{".mp4"}, p.AllowedExtensions)
	require.Error(t, p.CheckType("clip.webm", "video/webm"))
}

func TestClientPolicy_FlagsMirrorServer(t *testing.T) {
	v, fs := newFlags(t)
	require.NoError(t, fs.Parse([]string{
		"--allowed-extensions", "webm,.MKV",
		"--allowed-types", "video/webm",
		"--min-bytes", "1",
	}))

	p := config.PolicyFrom(v, clientPolicyKeys)
	require.Equal(t, int64(1), p.MinBytes)
	require.Equal(t, []string{".webm", ".mkv"}, p.AllowedExtensions)
	require.NoError(t, p.CheckType("clip.webm", ""))
	require.Error(t, p.CheckType("clip.mp4", "video/mp4"))
}

func TestClientPolicy_Environment(t *testing.T) {
	t.Setenv("VIDUP_ALLOWED_EXTENSIONS", ".mov")
	t.Setenv("VIDUP_ALLOWED_TYPES", "video/quicktime")
	t.Setenv("VIDUP_MAX_BYTES", "0")
	v, _ := newFlags(t)

	p := config.PolicyFrom(v, clientPolicyKeys)
	require.Equal(t, []string{".mov"}, p.AllowedExtensions)
	require.Zero(t, p.MaxBytes)
	require.NoError(t, p.CheckSize(1<<40))
}
