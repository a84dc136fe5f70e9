package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultQuotaBytes is the flat store ceiling used when nothing else is configured.
const DefaultQuotaBytes = 5 * 1024 * 1024

type Config struct {
	Profile   ProfileConfig   `mapstructure:"profile"`
	FlatStore FlatStoreConfig `mapstructure:"flat_store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
	Practice  PracticeConfig  `mapstructure:"practice"`
}

type ProfileConfig struct {
	Directory string `mapstructure:"directory" validate:"required"`
}

type FlatStoreConfig struct {
	FileName   string `mapstructure:"file_name" validate:"required,basename"`
	QuotaBytes int64  `mapstructure:"quota_bytes" validate:"gt=0"`
}

type DatabaseConfig struct {
	NotesFile          string        `mapstructure:"notes_file" validate:"required,basename"`
	AudioFile          string        `mapstructure:"audio_file" validate:"required,basename,nefield=NotesFile"`
	BusyTimeoutMS      int           `mapstructure:"busy_timeout_ms" validate:"gte=0"`
	RecreateAttempts   uint          `mapstructure:"recreate_attempts" validate:"gte=1"`
	RecreateRetryDelay time.Duration `mapstructure:"recreate_retry_delay" validate:"gte=0"`
}

type RecoveryConfig struct {
	PruneAgeDays int `mapstructure:"prune_age_days" validate:"gte=1"`
}

type PracticeConfig struct {
	SentencesPerSession int `mapstructure:"sentences_per_session" validate:"gte=1"`
	MinSentenceLength   int `mapstructure:"min_sentence_length" validate:"gte=0"`
	RecentSessions      int `mapstructure:"recent_sessions" validate:"gte=0"`
}

// FlatStorePath returns the location of the flat key-value store file.
func (c *Config) FlatStorePath() string {
	return filepath.Join(c.Profile.Directory, c.FlatStore.FileName)
}

func (c *Config) NotesDBPath() string {
	return filepath.Join(c.Profile.Directory, c.Database.NotesFile)
}

func (c *Config) AudioDBPath() string {
	return filepath.Join(c.Profile.Directory, c.Database.AudioFile)
}

// PruneAge is the age after which notes become candidates for quota pruning.
func (c *Config) PruneAge() time.Duration {
	return time.Duration(c.Recovery.PruneAgeDays) * 24 * time.Hour
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ieltsnotes")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("profile.directory", "ieltsnotes-data")
	v.SetDefault("flat_store.file_name", "flatstore.json")
	v.SetDefault("flat_store.quota_bytes", DefaultQuotaBytes)
	v.SetDefault("database.notes_file", "notes.db")
	v.SetDefault("database.audio_file", "audio.db")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.recreate_attempts", 3)
	v.SetDefault("database.recreate_retry_delay", time.Second)
	v.SetDefault("recovery.prune_age_days", 30)
	v.SetDefault("practice.sentences_per_session", 15)
	v.SetDefault("practice.min_sentence_length", 5)
	v.SetDefault("practice.recent_sessions", 3)

	// The quota is environment dependent, so it can be overridden per run
	if err := v.BindEnv("flat_store.quota_bytes", "IELTSNOTES_QUOTA_BYTES"); err != nil {
		return nil, fmt.Errorf("failed to bind IELTSNOTES_QUOTA_BYTES environment variable: %w", err)
	}
	if err := v.BindEnv("profile.directory", "IELTSNOTES_PROFILE_DIR"); err != nil {
		return nil, fmt.Errorf("failed to bind IELTSNOTES_PROFILE_DIR environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}

// Load is a shortcut for NewConfigLoader(configFile) followed by Load.
func Load(configFile string) (*Config, error) {
	loader, err := NewConfigLoader(configFile)
	if err != nil {
		return nil, err
	}
	return loader.Load()
}
