package config

const (
	DefaultDataRoot       = "/opt/metersphere/data/jmeter/"
	DefaultHeap           = "-Xms1g -Xmx1g -XX:MaxMetaspaceSize=256m"
	DefaultListenAddr     = ":8082"
	DefaultBackend        = BackendAuto
	DefaultMountPath      = "/test"
	DefaultPrecheckEnvKey = "BOOTSTRAP_SERVERS"
	DefaultPrecheckTime   = "1s"
	DefaultSnapshotWindow = "100ms"
	DefaultServiceName    = "loadnode"
	DefaultLogLevel       = "info"
)

// DefaultConfig returns a Config with all default values applied.
func DefaultConfig() *Config {
	return &Config{
		DataRoot:   DefaultDataRoot,
		Heap:       DefaultHeap,
		ListenAddr: DefaultListenAddr,
		Runtime: RuntimeConfig{
			Backend:   DefaultBackend,
			MountPath: DefaultMountPath,
		},
		Precheck: PrecheckConfig{
			EnvKey:  DefaultPrecheckEnvKey,
			Timeout: DefaultPrecheckTime,
		},
		Logs: LogsConfig{
			SnapshotWindow: DefaultSnapshotWindow,
		},
		Telemetry: TelemetryConfig{
			Metrics:     true,
			ServiceName: DefaultServiceName,
		},
		LogLevel: DefaultLogLevel,
	}
}
