package config

const (
	defaultBackendProvider = "fsdir"
	defaultBackendRoot     = "logs"

	defaultCacheProvider = "sqlite"

	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultHydrationBatchSize = 5

	defaultEventStreamProvider = "none"
	defaultEventStreamTopic    = "spool-hydration"

	defaultAnnotateProvider = "local"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Backend: BackendConfig{
			Provider: defaultBackendProvider,
			Root:     defaultBackendRoot,
		},
		Cache: CacheConfig{
			Provider: defaultCacheProvider,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Hydration: HydrationConfig{
			BatchSize: defaultHydrationBatchSize,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Annotate: AnnotateConfig{
			Provider: defaultAnnotateProvider,
			Enabled:  true,
		},
	}
}
