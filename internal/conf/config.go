// Package conf holds application configuration loaded from config file,
// environment variables and command line flags.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings is the root configuration structure.
type Settings struct {
	Debug bool `mapstructure:"debug"` // true to enable debug log output

	Main struct {
		Name string    `mapstructure:"name"` // instance name, used in logs
		Log  LogConfig `mapstructure:"log"`  // application log file settings
	} `mapstructure:"main"`

	Model struct {
		CheckpointPath   string        `mapstructure:"checkpointpath"`   // path to trained checkpoint
		TopK             int           `mapstructure:"topk"`             // number of ranked predictions to return
		InferenceTimeout time.Duration `mapstructure:"inferencetimeout"` // per request forward pass budget
	} `mapstructure:"model"`

	Server struct {
		Host         string        `mapstructure:"host"`         // listen address
		Port         int           `mapstructure:"port"`         // listen port
		BodyLimit    string        `mapstructure:"bodylimit"`    // max request body, echo format e.g. "32M"
		ReadTimeout  time.Duration `mapstructure:"readtimeout"`  // http read timeout
		WriteTimeout time.Duration `mapstructure:"writetimeout"` // http write timeout
		CacheTTL     time.Duration `mapstructure:"cachettl"`     // evaluation response cache TTL, 0 disables
	} `mapstructure:"server"`

	Training struct {
		DatasetDir   string  `mapstructure:"datasetdir"`   // ESC-50 style dataset root
		OutputDir    string  `mapstructure:"outputdir"`    // checkpoint output directory
		Epochs       int     `mapstructure:"epochs"`       // number of training epochs
		BatchSize    int     `mapstructure:"batchsize"`    // minibatch size
		LearningRate float64 `mapstructure:"learningrate"` // Adam learning rate
		HoldoutFold  int     `mapstructure:"holdoutfold"`  // dataset fold reserved for validation
	} `mapstructure:"training"`
}

// LogConfig describes a rotating log file.
type LogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`    // true to write a log file
	Path       string `mapstructure:"path"`       // log file path
	MaxSizeMB  int    `mapstructure:"maxsizemb"`  // rotate after this size
	MaxBackups int    `mapstructure:"maxbackups"` // rotated files to keep
	MaxAgeDays int    `mapstructure:"maxagedays"` // days to keep rotated files
}

// Load reads the configuration file and environment into a Settings struct.
// Missing config file is not an error, defaults apply.
func Load() (*Settings, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(dir, "audioclassifier"))
	}
	viper.SetEnvPrefix("audioclassifier")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// First run: persist the defaults so the user has a file to edit.
		// Failure to write is not fatal, the defaults still apply.
		_ = createDefaultConfig()
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &settings, nil
}

// createDefaultConfig writes a default config file to the user config
// directory and re-reads it.
func createDefaultConfig() error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("error resolving user config directory: %w", err)
	}
	path := filepath.Join(dir, "audioclassifier", "config.yaml")
	if err := SaveDefault(path); err != nil {
		return err
	}
	return viper.ReadInConfig()
}

// SyncViper copies viper values into settings after flag parsing so that
// command line arguments take precedence over the config file.
func SyncViper(settings *Settings) error {
	return viper.Unmarshal(settings)
}

// SaveDefault writes a default config.yaml to the given path. Existing
// files are not overwritten.
func SaveDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	setDefaults()
	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return err
	}

	out, err := yaml.Marshal(&settings)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, out, 0o644)
}

// Addr returns the server listen address in host:port form.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}
