package config

type PushConfig struct {
	Provider           string `yaml:"provider"` // fcm, disabled
	FCMCredentialsFile string `yaml:"fcm_credentials_file"`
}

func loadPushConfig() *PushConfig {
	return &PushConfig{
		Provider:           getEnv("PUSH_PROVIDER", "disabled"),
		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),
	}
}
