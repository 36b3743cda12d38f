package extraction

import (
	"database/sql"
	"net"
	"net/url"
	"slices"

	"github.com/clinicsync/admissions/pkg/common/config"
)

// Source addresses the external database.
type Source struct {
	Driver string
	DSN    string
}

// SourceResolver produces the Source for one extraction call.
type SourceResolver func() (Source, error)

func StaticSource(src Source) SourceResolver {
	return func() (Source, error) {
		return src, nil
	}
}

// ConfigSource resolves the source from configuration on every call.
func ConfigSource(cfg *config.Config) SourceResolver {
	return func() (Source, error) {
		return SourceFromConfig(cfg)
	}
}

func SourceFromConfig(cfg *config.Config) (Source, error) {
	if cfg == nil {
		return Source{}, ConfigurationError{Missing: []string{"configuration"}}
	}
	if cfg.ExternalDBURL != "" {
		return Source{Driver: cfg.ExternalDBDriver, DSN: cfg.ExternalDBURL}, nil
	}

	var missing []string
	if cfg.ExternalDBHost == "" {
		missing = append(missing, "EXTERNAL_DB_HOST")
	}
	if cfg.ExternalDBName == "" {
		missing = append(missing, "EXTERNAL_DB_NAME")
	}
	if cfg.ExternalDBUser == "" {
		missing = append(missing, "EXTERNAL_DB_USER")
	}
	if cfg.ExternalDBPassword == "" {
		missing = append(missing, "EXTERNAL_DB_PASSWORD")
	}
	if len(missing) > 0 {
		return Source{}, ConfigurationError{Missing: missing}
	}

	host := cfg.ExternalDBHost
	if cfg.ExternalDBPort != "" {
		host = net.JoinHostPort(cfg.ExternalDBHost, cfg.ExternalDBPort)
	}
	query := url.Values{}
	query.Set("database", cfg.ExternalDBName)
	query.Set("app name", "admissions-sync")

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.ExternalDBUser, cfg.ExternalDBPassword),
		Host:     host,
		Path:     cfg.ExternalDBInstance,
		RawQuery: query.Encode(),
	}
	return Source{Driver: cfg.ExternalDBDriver, DSN: u.String()}, nil
}

func (s Source) Validate() error {
	var missing []string
	if s.Driver == "" {
		missing = append(missing, "driver")
	}
	if s.DSN == "" {
		missing = append(missing, "connection string")
	}
	if len(missing) > 0 {
		return ConfigurationError{Missing: missing}
	}
	if !slices.Contains(sql.Drivers(), s.Driver) {
		return ConfigurationError{Missing: []string{"registered driver " + s.Driver}}
	}
	return nil
}

// Redacted hides credentials so the target can be logged.
func (s Source) Redacted() string {
	u, err := url.Parse(s.DSN)
	if err != nil || u.Scheme == "" {
		return s.Driver
	}
	return u.Redacted()
}
