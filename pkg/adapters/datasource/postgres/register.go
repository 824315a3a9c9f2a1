package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/adapters/datasource"
)

func init() {
	datasource.Register("postgres", func(ctx context.Context, cfg *datasource.Config, logger *zap.Logger) (datasource.SchemaDiscoverer, error) {
		return NewSchemaDiscoverer(ctx, cfg, logger)
	})
}
