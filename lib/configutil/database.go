package configutil

import (
	"database/sql"
	"fmt"
	"net/url"
)

// Database points at either a local sqlite file or a remote libsql
// instance. Url wins when both are set.
type Database struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// Open opens the configured database. The caller is responsible for
// importing the matching driver.
func (config Database) Open() (*sql.DB, error) {
	if config.Url != "" {
		dsn := config.Url
		if config.AuthToken != "" {
			dsn = fmt.Sprintf("%s?authToken=%s", config.Url, url.QueryEscape(config.AuthToken))
		}
		return sql.Open("libsql", dsn)
	}

	file := config.File
	if file == "" {
		file = "certassist.db"
	}
	return sql.Open("sqlite", file)
}
