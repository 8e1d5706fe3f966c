package mapper

import "github.com/mockpilot/mesh/shared/config"

type Config struct {
	ServiceName     string
	Host            string
	Port            int
	MappingsPath    string
	EnableHotReload bool
}

func LoadConfig() *Config {
	return &Config{
		ServiceName:     config.GetEnv("SERVICE_NAME", "design_mapper"),
		Host:            config.GetEnv("HOST", "0.0.0.0"),
		Port:            config.GetEnvInt("PORT", 8002),
		MappingsPath:    config.GetEnv("MAPPINGS_FILE_PATH", "data/mappings/mappings.json"),
		EnableHotReload: config.GetEnvBool("ENABLE_HOT_RELOAD", true),
	}
}
