package mssql

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fsayahmob/DataTalk-sub001/pkg/adapters/datasource"
)

// buildConnectionURL renders a go-mssqldb connection URL.
func buildConnectionURL(cfg *datasource.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}

	query := url.Values{}
	query.Set("database", cfg.Database)
	query.Set("app name", "catalog-engine")

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// quoteName brackets a SQL Server identifier, escaping closing brackets.
// This is the equivalent of the QUOTENAME() function.
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// qualifiedTableName returns [schema].[table], or just [table] when the
// schema is empty.
func qualifiedTableName(schemaName, tableName string) string {
	if schemaName == "" {
		return quoteName(tableName)
	}
	return quoteName(schemaName) + "." + quoteName(tableName)
}
