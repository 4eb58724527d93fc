package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/andrej220/routerconfig/pkg/config/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *RunConfig {
	cfg := Default()
	cfg.Devices = "routers.txt"
	cfg.Commands = "routerconfig.txt"
	cfg.Output = "router_config_out.txt"
	cfg.Username = "admin"
	cfg.Password = "secret"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RunConfig)
		wantErr bool
	}{
		{name: "defaults plus paths", mutate: func(c *RunConfig) {}},
		{name: "missing devices", mutate: func(c *RunConfig) { c.Devices = "" }, wantErr: true},
		{name: "missing username", mutate: func(c *RunConfig) { c.Username = "" }, wantErr: true},
		{name: "zero workers", mutate: func(c *RunConfig) { c.Workers = 0 }, wantErr: true},
		{name: "zero command timeout", mutate: func(c *RunConfig) { c.CommandTimeout = 0 }, wantErr: true},
		{name: "unknown facts backend", mutate: func(c *RunConfig) { c.Facts.Backend = "redis" }, wantErr: true},
		{name: "json facts without path", mutate: func(c *RunConfig) { c.Facts.Backend = "json" }, wantErr: true},
		{name: "json facts with path", mutate: func(c *RunConfig) { c.Facts = FactsConfig{Backend: "json", Path: "facts.json"} }},
		{name: "mongo facts without connection", mutate: func(c *RunConfig) { c.Facts.Backend = "mongo" }, wantErr: true},
		{name: "mongo facts with connection", mutate: func(c *RunConfig) {
			c.Facts.Backend = "mongo"
			c.Mongo = DatabaseConfig{URI: "mongodb://localhost:27017", Database: "netops", Collection: "facts"}
		}},
		{name: "kafka brokers without topic", mutate: func(c *RunConfig) { c.Kafka.Brokers = []string{"localhost:9092"} }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routerconfig.yaml")
	store, err := NewStore(FileStore, &FileConfig{Path: path})
	require.NoError(t, err)

	in := validConfig()
	in.DeviceTimeout = 90 * time.Second
	in.Kafka = KafkaConfig{Brokers: []string{"kafka:9092"}, Topic: "router-config"}
	require.NoError(t, store.Save(in))

	out := Default()
	require.NoError(t, filestore.New(path).Load(out))
	assert.Equal(t, in, out)
}

func TestNewStoreRejectsWrongConfigType(t *testing.T) {
	_, err := NewStore(FileStore, &MongoConfig{})
	assert.Error(t, err)

	_, err = NewStore(StoreType(42), nil)
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}

func TestParseStoreType(t *testing.T) {
	st, err := ParseStoreType("mongo")
	require.NoError(t, err)
	assert.Equal(t, MongoStore, st)

	_, err = ParseStoreType("etcd")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "********", cfg.Redacted().Password)
	assert.Equal(t, "secret", cfg.Password)
}
