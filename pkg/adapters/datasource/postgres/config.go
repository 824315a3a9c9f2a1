package postgres

import (
	"fmt"

	"github.com/fsayahmob/DataTalk-sub001/pkg/adapters/datasource"
)

// buildConnectionString renders a pgx-compatible connection string.
func buildConnectionString(cfg *datasource.Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode,
	)
}
