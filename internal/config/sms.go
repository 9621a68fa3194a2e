package config

type SMSConfig struct {
	Provider         string `yaml:"provider"` // twilio, aws_sns, disabled
	TwilioAccountSID string `yaml:"twilio_account_sid"`
	TwilioAuthToken  string `yaml:"twilio_auth_token"`
	TwilioFromNumber string `yaml:"twilio_from_number"`
	AWSRegion        string `yaml:"aws_region"`
}

func loadSMSConfig() *SMSConfig {
	return &SMSConfig{
		Provider:         getEnv("SMS_PROVIDER", "disabled"),
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
	}
}
