package config

type MapsConfig struct {
	Provider     string `yaml:"provider"` // google, osrm
	GoogleAPIKey string `yaml:"google_api_key"`
	OSRMBaseURL  string `yaml:"osrm_base_url"`
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		Provider:     getEnv("MAPS_PROVIDER", "osrm"),
		GoogleAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		OSRMBaseURL:  getEnv("OSRM_BASE_URL", ""),
	}
}
