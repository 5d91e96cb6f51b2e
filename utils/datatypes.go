package utils

//YamlConfig holds the data that a user supplies with a yaml config file
type YamlConfig struct {
	Lenient    bool              `yaml:"lenient"`
	MaxDepth   int               `yaml:"maxdepth"`
	ChunkSize  int               `yaml:"chunksize"`
	Store      StoreConfig       `yaml:"store"`
	Properties map[string]string `yaml:"properties"`
}

//StoreConfig selects and configures the synchronization state store
type StoreConfig struct {
	Backend   string `yaml:"backend"` //bolt, file or minio
	Path      string `yaml:"path"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accesskey"`
	SecretKey string `yaml:"secretkey"`
	Secure    bool   `yaml:"secure"`
}

//Default sizes used when nothing is configured
const (
	DefaultMaxDepth  = 64
	DefaultChunkSize = 0xBABE
)

//DefaultConfig returns the configuration used when no file is supplied
func DefaultConfig() YamlConfig {
	return YamlConfig{
		MaxDepth:  DefaultMaxDepth,
		ChunkSize: DefaultChunkSize,
		Store: StoreConfig{
			Backend: "bolt",
			Path:    "fxics.db",
			Bucket:  "fxics",
		},
	}
}
