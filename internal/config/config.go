// Package config resolves server settings from defaults, an optional config
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"vidshare/internal/admission"
	"vidshare/internal/notify"
)

var (
	ErrInvalidPort      = errors.New("port must be between 1 and 65535")
	ErrInvalidUploadDir = errors.New("upload dir must be set")
)

// Keys, as used in a config file or with viper.BindPFlag.
const (
	KeyPort              = "port"
	KeyUploadDir         = "upload_dir"
	KeyMinUploadBytes    = "min_upload_bytes"
	KeyMaxUploadBytes    = "max_upload_bytes"
	KeyAllowedTypes      = "allowed_types"
	KeyAllowedExtensions = "allowed_extensions"
	KeyDatabaseURL       = "database_url"
	KeyClientOrigin      = "client_origin"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeySMTPHost          = "smtp_host"
	KeySMTPPort          = "smtp_port"
	KeySMTPFrom          = "smtp_from"
	KeySMTPPass          = "smtp_pass"
	KeyNotifyEmail       = "notify_email"
)

var envKeys = map[string]string{
	KeyPort:              "PORT",
	KeyUploadDir:         "UPLOAD_DIR",
	KeyMinUploadBytes:    "MIN_UPLOAD_BYTES",
	KeyMaxUploadBytes:    "MAX_UPLOAD_BYTES",
	KeyAllowedTypes:      "ALLOWED_TYPES",
	KeyAllowedExtensions: "ALLOWED_EXTENSIONS",
	KeyDatabaseURL:       "DATABASE_URL",
	KeyClientOrigin:      "CLIENT_ORIGIN",
	KeyLogLevel:          "LOG_LEVEL",
	KeyLogFormat:         "LOG_FORMAT",
	KeySMTPHost:          "SMTP_HOST",
	KeySMTPPort:          "SMTP_PORT",
	KeySMTPFrom:          "SMTP_FROM",
	KeySMTPPass:          "SMTP_PASS",
	KeyNotifyEmail:       "NOTIFY_EMAIL",
}

type Config struct {
	ServerPort        int
	UploadDir         string
	MinUploadBytes    int64
	MaxUploadBytes    int64
	AllowedTypes      []string
	AllowedExtensions []string
	DatabaseURL       string
	ClientOrigin      string
	LogLevel          string
	LogFormat         string

	SMTPHost    string
	SMTPPort    int
	SMTPFrom    string
	SMTPPass    string
	NotifyEmail string
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	def := admission.DefaultPolicy()
	v.SetDefault(KeyPort, 5000)
	v.SetDefault(KeyUploadDir, "./uploads")
	v.SetDefault(KeyMinUploadBytes, def.MinBytes)
	v.SetDefault(KeyMaxUploadBytes, def.MaxBytes)
	v.SetDefault(KeyAllowedTypes, strings.Join(def.AllowedTypes, ","))
	v.SetDefault(KeyAllowedExtensions, strings.Join(def.AllowedExtensions, ","))
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyClientOrigin, "*")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeySMTPPort, 587)

	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}
}

// Load reads the optional config file and returns the resolved settings.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	policy := PolicyFrom(v, ServerPolicyKeys)
	cfg := Config{
		ServerPort:        v.GetInt(KeyPort),
		UploadDir:         v.GetString(KeyUploadDir),
		MinUploadBytes:    policy.MinBytes,
		MaxUploadBytes:    policy.MaxBytes,
		AllowedTypes:      policy.AllowedTypes,
		AllowedExtensions: policy.AllowedExtensions,
		DatabaseURL:       v.GetString(KeyDatabaseURL),
		ClientOrigin:      v.GetString(KeyClientOrigin),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
		SMTPHost:          v.GetString(KeySMTPHost),
		SMTPPort:          v.GetInt(KeySMTPPort),
		SMTPFrom:          v.GetString(KeySMTPFrom),
		SMTPPass:          v.GetString(KeySMTPPass),
		NotifyEmail:       v.GetString(KeyNotifyEmail),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return ErrInvalidPort
	}
	if c.UploadDir == "" {
		return ErrInvalidUploadDir
	}
	return c.Policy().Validate()
}

// Policy is the admission policy shared by the server and the upload client.
func (c Config) Policy() admission.Policy {
	return admission.Policy{
		MinBytes:          c.MinUploadBytes,
		MaxBytes:          c.MaxUploadBytes,
		AllowedTypes:      c.AllowedTypes,
		AllowedExtensions: c.AllowedExtensions,
	}
}

// PolicyKeys names the viper keys holding an admission policy.
type PolicyKeys struct {
	MinBytes, MaxBytes, Types, Extensions string
}

// ServerPolicyKeys are the keys read by Load.
var ServerPolicyKeys = PolicyKeys{
	MinBytes:   KeyMinUploadBytes,
	MaxBytes:   KeyMaxUploadBytes,
	Types:      KeyAllowedTypes,
	Extensions: KeyAllowedExtensions,
}

// PolicyFrom reads a policy from v. Allow-lists may be comma separated
// strings or lists.
func PolicyFrom(v *viper.Viper, keys PolicyKeys) admission.Policy {
	return admission.Policy{
		MinBytes:          v.GetInt64(keys.MinBytes),
		MaxBytes:          v.GetInt64(keys.MaxBytes),
		AllowedTypes:      list(v.Get(keys.Types)),
		AllowedExtensions: extensions(list(v.Get(keys.Extensions))),
	}
}

func (c Config) Mail() notify.MailConfig {
	return notify.MailConfig{
		Host: c.SMTPHost,
		Port: c.SMTPPort,
		From: c.SMTPFrom,
		Pass: c.SMTPPass,
		To:   c.NotifyEmail,
	}
}

// list accepts a comma separated string from the environment or a list from
// a config file.
func list(raw any) []string {
	var items []string
	switch val := raw.(type) {
	case string:
		items = strings.Split(val, ",")
	case []string:
		items = val
	case []any:
		for _, it := range val {
			items = append(items, fmt.Sprint(it))
		}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func extensions(in []string) []string {
	for i, e := range in {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		in[i] = e
	}
	return in
}
