package config

import "time"

// BuildVersion is set via ldflags at build time
var BuildVersion = "development"

// Validation tags described here: https://pkg.go.dev/github.com/go-playground/validator/v10
type Config struct {
	Environment string `env:"ENVIRONMENT" flag:"environment"`
	Escrow      struct {
		LockTimeout time.Duration `env:"ESCROW_LOCK_TIMEOUT" flag:"escrow-lock-timeout" validate:"omitempty" desc:"max time an operation waits for the per-project lock before giving up"`
	}
	Log struct {
		Color      bool   `env:"LOG_COLOR"       flag:"log-color"`
		FolderPath string `env:"LOG_FOLDER_PATH" flag:"log-folder-path" validate:"omitempty,dirpath" desc:"enables file logging and sets the folder path"`
		IsProd     bool   `env:"LOG_IS_PROD"     flag:"log-is-prod"     validate:""                  desc:"affects the format of the log output"`
		JSON       bool   `env:"LOG_JSON"        flag:"log-json"`
		LevelApp   string `env:"LOG_LEVEL_APP"    flag:"log-level-app"    validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelBus   string `env:"LOG_LEVEL_BUS"    flag:"log-level-bus"    validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelEscrow string `env:"LOG_LEVEL_ESCROW" flag:"log-level-escrow" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelHTTP  string `env:"LOG_LEVEL_HTTP"   flag:"log-level-http"   validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	}
	Web struct {
		Address   string `env:"WEB_ADDRESS"    flag:"web-address"    validate:"required,hostname_port" desc:"http server address host:port"`
		PublicUrl string `env:"WEB_PUBLIC_URL" flag:"web-public-url" validate:"omitempty,url"          desc:"public url of the escrow service, falls back to web-address if empty"`
	}
}

func (cfg *Config) SetDefaults() {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Escrow

	if cfg.Escrow.LockTimeout == 0 {
		cfg.Escrow.LockTimeout = 30 * time.Second
	}

	// Log

	if cfg.Log.LevelApp == "" {
		cfg.Log.LevelApp = "debug"
	}
	if cfg.Log.LevelBus == "" {
		cfg.Log.LevelBus = "info"
	}
	if cfg.Log.LevelEscrow == "" {
		cfg.Log.LevelEscrow = "debug"
	}
	if cfg.Log.LevelHTTP == "" {
		cfg.Log.LevelHTTP = "info"
	}

	// Web

	if cfg.Web.Address == "" {
		cfg.Web.Address = "0.0.0.0:8080"
	}
	if cfg.Web.PublicUrl == "" {
		cfg.Web.PublicUrl = "http://localhost:8080"
	}
}

// GetSanitized returns a copy of the config with sensitive data removed
// explicitly adding each field here to avoid accidentally leaking sensitive data
func (cfg *Config) GetSanitized() interface{} {
	publicCfg := Config{}

	publicCfg.Environment = cfg.Environment

	publicCfg.Escrow.LockTimeout = cfg.Escrow.LockTimeout

	publicCfg.Log.Color = cfg.Log.Color
	publicCfg.Log.FolderPath = cfg.Log.FolderPath
	publicCfg.Log.IsProd = cfg.Log.IsProd
	publicCfg.Log.JSON = cfg.Log.JSON
	publicCfg.Log.LevelApp = cfg.Log.LevelApp
	publicCfg.Log.LevelBus = cfg.Log.LevelBus
	publicCfg.Log.LevelEscrow = cfg.Log.LevelEscrow
	publicCfg.Log.LevelHTTP = cfg.Log.LevelHTTP

	publicCfg.Web.Address = cfg.Web.Address
	publicCfg.Web.PublicUrl = cfg.Web.PublicUrl

	return publicCfg
}
