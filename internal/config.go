package internal

import "time"

// Config is the full environment surface of the server. Required keys
// fail fast at startup instead of surfacing as zero values later.
type Config struct {
	LogLevel string `env:"LOG_LEVEL,required=true"`
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`

	// Store selection: "badger" (embedded, default) or "dynamodb".
	StoreBackend    string `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath  string `env:"BADGER_FILEPATH,required=true"`
	DynamoTable     string `env:"DYNAMO_TABLE,default=Messages"`
	DynamoEndpoint  string `env:"DYNAMO_ENDPOINT"`
	DynamoAutoTable bool   `env:"DYNAMO_AUTO_TABLE,default=false"`

	AuthTokenSecret   string        `env:"AUTH_TOKEN_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	// Per-connection event buffer. A slow reader drops events once it
	// fills, it never backpressures the router.
	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,default=64"`

	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	StorageGCInterval time.Duration `env:"STORAGE_GC_INTERVAL,default=5m"`

	// Debug inspect server; disabled when zero.
	DebugPort int `env:"DEBUG_PORT"`
}
