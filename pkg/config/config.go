package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/routerconfig/pkg/config/configstore"
	"github.com/andrej220/routerconfig/pkg/config/filestore"
	"github.com/andrej220/routerconfig/pkg/config/mongostore"
	"github.com/go-playground/validator/v10"
)

type StoreType int

const (
	FileStore StoreType = iota
	MongoStore
)

var (
	ErrInvalidStoreType = errors.New("invalid store type")
)

type FileConfig struct {
	Path string `yaml:"path" json:"path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri" bson:"uri"`
	DBName   string `yaml:"dbName" json:"dbName" bson:"dbName"`
	CollName string `yaml:"collName" json:"collName" bson:"collName"`
	ID       string `yaml:"id" json:"id" bson:"id"` // Document ID
}

// ParseStoreType maps the -config-store flag value to a StoreType.
func ParseStoreType(s string) (StoreType, error) {
	switch s {
	case "", "file":
		return FileStore, nil
	case "mongo":
		return MongoStore, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStoreType, s)
	}
}

func NewStore(storeType StoreType, cfg any) (configstore.ConfigStore, error) {
	switch storeType {
	case FileStore:
		fileCfg, ok := cfg.(*FileConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for file store, expected *FileConfig")
		}
		return filestore.New(fileCfg.Path), nil
	case MongoStore:
		mongoCfg, ok := cfg.(*MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for mongo store, expected *MongoConfig")
		}
		return mongostore.New(mongoCfg.URI, mongoCfg.DBName, mongoCfg.CollName, mongoCfg.ID)
	default:
		return nil, ErrInvalidStoreType
	}
}

const (
	DefaultWorkers          = 4
	DefaultPort             = 22
	DefaultDeviceTimeout    = 5 * time.Minute
	DefaultCommandTimeout   = 60 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultConnectAttempts  = 3
	DefaultPacingDelay      = 1 * time.Second
	DefaultPagingCommand    = "terminal length 0\n"
	DefaultLegacyPrefix     = "fl"
	DefaultLegacySuffix     = ".stores.foodlion.ad.delhaize.com"
	DefaultProbeCommand     = "ping -c 1"
	DefaultBreakerThreshold = 20
	DefaultMongoDatabase    = "routerconfig"
	DefaultMongoCollection  = "facts"
)

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers" bson:"brokers"`
	Topic   string   `yaml:"topic" json:"topic" bson:"topic" validate:"required_with=Brokers"`
}

type FactsConfig struct {
	Backend string `yaml:"backend" json:"backend" bson:"backend" validate:"oneof=none json mongo sqlite"`
	Path    string `yaml:"path" json:"path" bson:"path" validate:"required_if=Backend json,required_if=Backend sqlite"`
}

type DatabaseConfig struct {
	URI        string `yaml:"uri" json:"uri" bson:"uri"`
	Database   string `yaml:"database" json:"database" bson:"database"`
	Collection string `yaml:"collection" json:"collection" bson:"collection"`
}

// RunConfig is everything one batch run needs.
type RunConfig struct {
	Devices  string `yaml:"devices" json:"devices" bson:"devices" validate:"required"`
	Commands string `yaml:"commands" json:"commands" bson:"commands" validate:"required"`
	Output   string `yaml:"output" json:"output" bson:"output" validate:"required"`

	Username string `yaml:"username" json:"username" bson:"username" validate:"required"`
	Password string `yaml:"password" json:"password" bson:"password"`

	Workers          int           `yaml:"workers" json:"workers" bson:"workers" validate:"min=1,max=64"`
	Port             int           `yaml:"port" json:"port" bson:"port" validate:"min=1,max=65535"`
	DeviceTimeout    time.Duration `yaml:"device_timeout" json:"device_timeout" bson:"device_timeout" validate:"gt=0"`
	CommandTimeout   time.Duration `yaml:"command_timeout" json:"command_timeout" bson:"command_timeout" validate:"gt=0"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" json:"connect_timeout" bson:"connect_timeout" validate:"gt=0"`
	ConnectAttempts  int           `yaml:"connect_attempts" json:"connect_attempts" bson:"connect_attempts" validate:"min=1,max=10"`
	PacingDelay      time.Duration `yaml:"pacing_delay" json:"pacing_delay" bson:"pacing_delay" validate:"min=0"`
	PagingCommand    string        `yaml:"paging_command" json:"paging_command" bson:"paging_command"`
	LegacyPrefix     string        `yaml:"legacy_prefix" json:"legacy_prefix" bson:"legacy_prefix"`
	LegacySuffix     string        `yaml:"legacy_suffix" json:"legacy_suffix" bson:"legacy_suffix"`
	ProbeCommand     string        `yaml:"probe_command" json:"probe_command" bson:"probe_command" validate:"required"`
	BreakerThreshold uint32        `yaml:"breaker_threshold" json:"breaker_threshold" bson:"breaker_threshold"`

	Kafka KafkaConfig    `yaml:"kafka" json:"kafka" bson:"kafka"`
	Facts FactsConfig    `yaml:"facts" json:"facts" bson:"facts"`
	Mongo DatabaseConfig `yaml:"mongo" json:"mongo" bson:"mongo"`
}

// Default returns a RunConfig populated with the built-in defaults.
func Default() *RunConfig {
	return &RunConfig{
		Workers:          DefaultWorkers,
		Port:             DefaultPort,
		DeviceTimeout:    DefaultDeviceTimeout,
		CommandTimeout:   DefaultCommandTimeout,
		ConnectTimeout:   DefaultConnectTimeout,
		ConnectAttempts:  DefaultConnectAttempts,
		PacingDelay:      DefaultPacingDelay,
		PagingCommand:    DefaultPagingCommand,
		LegacyPrefix:     DefaultLegacyPrefix,
		LegacySuffix:     DefaultLegacySuffix,
		ProbeCommand:     DefaultProbeCommand,
		BreakerThreshold: DefaultBreakerThreshold,
		Facts:            FactsConfig{Backend: "none"},
		Mongo:            DatabaseConfig{Database: DefaultMongoDatabase, Collection: DefaultMongoCollection},
	}
}

var validate = validator.New()

func init() {
	validate.RegisterStructValidation(runConfigStructLevel, RunConfig{})
}

// the mongo fact store needs a complete connection section
func runConfigStructLevel(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(RunConfig)
	if cfg.Facts.Backend != "mongo" {
		return
	}
	db := cfg.Mongo
	if db.URI == "" || db.Database == "" || db.Collection == "" {
		sl.ReportError(cfg.Mongo, "Mongo", "mongo", "mongo_ready", "")
	}
}

// Validate checks the configuration is complete and within bounds.
func (c *RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to log or persist.
func (c RunConfig) Redacted() RunConfig {
	if c.Password != "" {
		c.Password = "********"
	}
	return c
}
