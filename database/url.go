package database

import (
	"fmt"
	"strings"
)

// ConstructDatabaseURL joins a server URL and a database name. Existing query
// parameters are preserved and sslmode=disable is added when no sslmode is set.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	baseURL = strings.TrimRight(baseURL, "/")

	server, query, hasQuery := strings.Cut(baseURL, "?")
	server = strings.TrimRight(server, "/")

	databaseURL := fmt.Sprintf("%s/%s", server, databaseName)
	if hasQuery {
		databaseURL = fmt.Sprintf("%s?%s", databaseURL, query)
	}

	if !strings.Contains(databaseURL, "sslmode=") {
		separator := "&"
		if !hasQuery {
			separator = "?"
		}
		databaseURL = databaseURL + separator + "sslmode=disable"
	}

	return databaseURL
}
