package types

import "time"

// Config is a struct to hold the configuration data
type Config struct {
	Logging struct {
		OutputLevel  string `yaml:"outputLevel" envconfig:"LOGGING_OUTPUT_LEVEL"`
		OutputStderr bool   `yaml:"outputStderr" envconfig:"LOGGING_OUTPUT_STDERR"`

		FilePath  string `yaml:"filePath" envconfig:"LOGGING_FILE_PATH"`
		FileLevel string `yaml:"fileLevel" envconfig:"LOGGING_FILE_LEVEL"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" envconfig:"METRICS_ENABLED"`
		Host    string `yaml:"host" envconfig:"METRICS_HOST"`
		Port    string `yaml:"port" envconfig:"METRICS_PORT"`
	} `yaml:"metrics"`

	BaseChain BaseChainConfig `yaml:"baseChain"`

	Committer CommitterConfig `yaml:"committer"`

	EthSender EthSenderConfig `yaml:"ethSender"`

	BlockCache struct {
		LocalCacheSize   int           `yaml:"localCacheSize" envconfig:"BLOCKCACHE_LOCAL_CACHE_SIZE"` // MB
		RedisCacheAddr   string        `yaml:"redisCacheAddr" envconfig:"BLOCKCACHE_REDIS_CACHE_ADDR"`
		RedisCachePrefix string        `yaml:"redisCachePrefix" envconfig:"BLOCKCACHE_REDIS_CACHE_PREFIX"`
		Expiration       time.Duration `yaml:"expiration" envconfig:"BLOCKCACHE_EXPIRATION"`
	} `yaml:"blockCache"`

	ProofStore ProofStoreConfig `yaml:"proofStore"`

	Database DatabaseConfig `yaml:"database"`
}

type BaseChainConfig struct {
	Endpoint          string             `yaml:"endpoint" envconfig:"BASECHAIN_ENDPOINT"`
	Headers           map[string]string  `yaml:"headers"`
	ChainID           uint64             `yaml:"chainId" envconfig:"BASECHAIN_CHAIN_ID"`
	ContractAddress   string             `yaml:"contractAddress" envconfig:"BASECHAIN_CONTRACT_ADDRESS"`
	OperatorKey       string             `yaml:"operatorKey" envconfig:"BASECHAIN_OPERATOR_KEY"`
	RequestsPerSecond float64            `yaml:"requestsPerSecond" envconfig:"BASECHAIN_REQUESTS_PER_SECOND"`
	RequestBurst      int                `yaml:"requestBurst" envconfig:"BASECHAIN_REQUEST_BURST"`
	CallTimeout       time.Duration      `yaml:"callTimeout" envconfig:"BASECHAIN_CALL_TIMEOUT"`
	Ssh               *EndpointSshConfig `yaml:"ssh"`
}

type EndpointSshConfig struct {
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Keyfile        string `yaml:"keyfile"`
	KnownHostsFile string `yaml:"knownHostsFile"`
}

type CommitterConfig struct {
	Disabled bool          `yaml:"disabled" envconfig:"COMMITTER_DISABLED"`
	Interval time.Duration `yaml:"interval" envconfig:"COMMITTER_INTERVAL"`

	MaxBlocksToCommit            int           `yaml:"maxBlocksToCommit" envconfig:"COMMITTER_MAX_BLOCKS_TO_COMMIT"`
	MaxBlocksToExecute           int           `yaml:"maxBlocksToExecute" envconfig:"COMMITTER_MAX_BLOCKS_TO_EXECUTE"`
	BlockCommitDeadline          time.Duration `yaml:"blockCommitDeadline" envconfig:"COMMITTER_BLOCK_COMMIT_DEADLINE"`
	BlockVerifyDeadline          time.Duration `yaml:"blockVerifyDeadline" envconfig:"COMMITTER_BLOCK_VERIFY_DEADLINE"`
	BlockExecuteDeadline         time.Duration `yaml:"blockExecuteDeadline" envconfig:"COMMITTER_BLOCK_EXECUTE_DEADLINE"`
	MaxGasForTx                  uint64        `yaml:"maxGasForTx" envconfig:"COMMITTER_MAX_GAS_FOR_TX"`
	AvailableAggregateProofSizes []int         `yaml:"availableAggregateProofSizes" envconfig:"COMMITTER_AVAILABLE_AGGREGATE_PROOF_SIZES"`
}

type EthSenderConfig struct {
	Disabled     bool          `yaml:"disabled" envconfig:"ETHSENDER_DISABLED"`
	PollInterval time.Duration `yaml:"pollInterval" envconfig:"ETHSENDER_POLL_INTERVAL"`
	PollJitter   time.Duration `yaml:"pollJitter" envconfig:"ETHSENDER_POLL_JITTER"`

	MaxInFlight          int    `yaml:"maxInFlight" envconfig:"ETHSENDER_MAX_IN_FLIGHT"`
	ExpectedWaitBlocks   uint64 `yaml:"expectedWaitBlocks" envconfig:"ETHSENDER_EXPECTED_WAIT_BLOCKS"`
	WaitConfirmations    uint64 `yaml:"waitConfirmations" envconfig:"ETHSENDER_WAIT_CONFIRMATIONS"`
	StrictOrdering       bool   `yaml:"strictOrdering" envconfig:"ETHSENDER_STRICT_ORDERING"`
	TxBaseGas            uint64 `yaml:"txBaseGas" envconfig:"ETHSENDER_TX_BASE_GAS"`
	ProofVerificationGas uint64 `yaml:"proofVerificationGas" envconfig:"ETHSENDER_PROOF_VERIFICATION_GAS"`

	GasPriceBumpPercent         uint64        `yaml:"gasPriceBumpPercent" envconfig:"ETHSENDER_GAS_PRICE_BUMP_PERCENT"`
	GasPriceLimitScalePercent   uint64        `yaml:"gasPriceLimitScalePercent" envconfig:"ETHSENDER_GAS_PRICE_LIMIT_SCALE_PERCENT"`
	GasPriceLimitUpdateInterval time.Duration `yaml:"gasPriceLimitUpdateInterval" envconfig:"ETHSENDER_GAS_PRICE_LIMIT_UPDATE_INTERVAL"`
	DefaultGasPriceLimit        string        `yaml:"defaultGasPriceLimit" envconfig:"ETHSENDER_DEFAULT_GAS_PRICE_LIMIT"` // wei
	MinGasPriceLimit            string        `yaml:"minGasPriceLimit" envconfig:"ETHSENDER_MIN_GAS_PRICE_LIMIT"`         // wei
}

type ProofStoreConfig struct {
	Engine string                 `yaml:"engine" envconfig:"PROOFSTORE_ENGINE"` // none, pebble, s3 or tiered
	Pebble PebbleProofStoreConfig `yaml:"pebble"`
	S3     S3ProofStoreConfig     `yaml:"s3"`
}

type PebbleProofStoreConfig struct {
	Path      string `yaml:"path" envconfig:"PROOFSTORE_PEBBLE_PATH"`
	CacheSize int    `yaml:"cacheSize" envconfig:"PROOFSTORE_PEBBLE_CACHE_SIZE"` // MB
}

type S3ProofStoreConfig struct {
	Endpoint  string `yaml:"endpoint" envconfig:"PROOFSTORE_S3_ENDPOINT"`
	Secure    bool   `yaml:"secure" envconfig:"PROOFSTORE_S3_SECURE"`
	Bucket    string `yaml:"bucket" envconfig:"PROOFSTORE_S3_BUCKET"`
	Region    string `yaml:"region" envconfig:"PROOFSTORE_S3_REGION"`
	AccessKey string `yaml:"accessKey" envconfig:"PROOFSTORE_S3_ACCESS_KEY"`
	SecretKey string `yaml:"secretKey" envconfig:"PROOFSTORE_S3_SECRET_KEY"`
	Path      string `yaml:"path" envconfig:"PROOFSTORE_S3_PATH"`
}

type DatabaseConfig struct {
	Engine      string                     `yaml:"engine" envconfig:"DATABASE_ENGINE"`
	Sqlite      *SqliteDatabaseConfig      `yaml:"sqlite"`
	Pgsql       *PgsqlDatabaseConfig       `yaml:"pgsql"`
	PgsqlWriter *PgsqlWriterDatabaseConfig `yaml:"pgsqlWriter"`
}

type SqliteDatabaseConfig struct {
	File         string `yaml:"file" envconfig:"DATABASE_SQLITE_FILE"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_SQLITE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_SQLITE_MAX_IDLE_CONNS"`
}

type PgsqlDatabaseConfig struct {
	Username     string `yaml:"user" envconfig:"DATABASE_PGSQL_USERNAME"`
	Password     string `yaml:"password" envconfig:"DATABASE_PGSQL_PASSWORD"`
	Name         string `yaml:"name" envconfig:"DATABASE_PGSQL_NAME"`
	Host         string `yaml:"host" envconfig:"DATABASE_PGSQL_HOST"`
	Port         string `yaml:"port" envconfig:"DATABASE_PGSQL_PORT"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_MAX_IDLE_CONNS"`
}

type PgsqlWriterDatabaseConfig struct {
	Username     string `yaml:"user" envconfig:"DATABASE_PGSQL_WRITER_USERNAME"`
	Password     string `yaml:"password" envconfig:"DATABASE_PGSQL_WRITER_PASSWORD"`
	Name         string `yaml:"name" envconfig:"DATABASE_PGSQL_WRITER_NAME"`
	Host         string `yaml:"host" envconfig:"DATABASE_PGSQL_WRITER_HOST"`
	Port         string `yaml:"port" envconfig:"DATABASE_PGSQL_WRITER_PORT"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_WRITER_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_WRITER_MAX_IDLE_CONNS"`
}
