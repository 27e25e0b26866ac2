package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "postgres",
			cfg:  Config{Storage: StorageConfig{Driver: DriverPostgres, DatabaseURL: "postgres://localhost/pos"}},
		},
		{
			name:    "postgres without url",
			cfg:     Config{Storage: StorageConfig{Driver: DriverPostgres}},
			wantErr: "database URL is required",
		},
		{
			name: "sqlite",
			cfg:  Config{Storage: StorageConfig{Driver: DriverSQLite, SQLitePath: "till.db"}},
		},
		{
			name:    "unknown driver",
			cfg:     Config{Storage: StorageConfig{Driver: "mysql"}},
			wantErr: `unknown storage driver "mysql"`,
		},
		{
			name: "kafka without topic",
			cfg: Config{
				Storage: StorageConfig{Driver: DriverSQLite, SQLitePath: "till.db"},
				Kafka:   KafkaConfig{Brokers: []string{"localhost:9092"}},
			},
			wantErr: "kafka topic is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/pos")
	t.Setenv("PORT", "9000")

	cfg := Config{
		Addr:  "0.0.0.0:8080",
		Kafka: KafkaConfig{Brokers: []string{""}},
	}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/pos", cfg.Storage.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestConfig_ExplicitValuesWin(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/pos")
	t.Setenv("PORT", "9000")

	cfg := Config{
		Addr:    "127.0.0.1:7000",
		Storage: StorageConfig{DatabaseURL: "postgres://explicit/pos"},
		Kafka:   KafkaConfig{Brokers: []string{"a:9092", "b:9092"}},
	}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://explicit/pos", cfg.Storage.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestOpenStores_SQLite(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStores(ctx, StorageConfig{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "till.db")})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Ping(ctx))
	products, err := s.Products.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), StorageConfig{Driver: "mysql"})
	assert.EqualError(t, err, `unknown storage driver "mysql"`)
}
