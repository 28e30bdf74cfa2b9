package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/travelplanner/internal/flagx"
	"github.com/dmitrijs2005/travelplanner/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKeyID                  string         `json:"secret_key_id"`
	SecretKey                    string         `json:"secret_key"`
	RetiredKeys                  []string       `json:"retired_keys"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	TokenIssuer                  string         `json:"token_issuer"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	ProviderTimeout              timex.Duration `json:"provider_timeout"`
	ProviderRetries              *int           `json:"provider_retries"`
	GoogleUserInfoURL            string         `json:"google_userinfo_url"`
	GitHubUserInfoURL            string         `json:"github_userinfo_url"`
	KakaoUserInfoURL             string         `json:"kakao_userinfo_url"`
	NaverUserInfoURL             string         `json:"naver_userinfo_url"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c/-config in args.
// Without the flag nothing is loaded. Keys absent from the file keep their
// current value.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigFilePath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKeyID, c.SecretKeyID)
	setString(&config.SecretKey, c.SecretKey)
	if c.RetiredKeys != nil {
		config.RetiredKeys = c.RetiredKeys
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setString(&config.TokenIssuer, c.TokenIssuer)
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.ProviderTimeout.Duration != 0 {
		config.ProviderTimeout = c.ProviderTimeout.Duration
	}
	if c.ProviderRetries != nil {
		config.ProviderRetries = *c.ProviderRetries
	}
	setString(&config.GoogleUserInfoURL, c.GoogleUserInfoURL)
	setString(&config.GitHubUserInfoURL, c.GitHubUserInfoURL)
	setString(&config.KakaoUserInfoURL, c.KakaoUserInfoURL)
	setString(&config.NaverUserInfoURL, c.NaverUserInfoURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
