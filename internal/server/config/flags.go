package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string       HTTP bind address (e.g., ":8080")
//	-g string       gRPC bind address (e.g., ":50051")
//	-d string       PostgreSQL DSN, or "memory"
//	-k string       current signing key id
//	-s string       current signing key secret
//	-t int          access token validity, minutes
//	-r int          refresh token validity, minutes
//	-l string       log level
//	-u string       S3 root user
//	-p string       S3 root password
//	-b string       S3 bucket name
//	-region string  S3 region
//	-e string       S3 base endpoint
//
// Flags not in the list are filtered out first so other components can
// share the command line. Durations are whole minutes.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-k", "-s", "-t", "-r", "-l", "-u", "-p", "-b", "-region", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKeyID, "k", config.SecretKeyID, "signing key id")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "signing key secret")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// only touch durations when given, so sub-minute values from JSON survive
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
		}
	})
	return nil
}
