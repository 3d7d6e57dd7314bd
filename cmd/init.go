package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-dedupe/internal/normalize"
	"github.com/sells-group/crm-dedupe/internal/pipeline"
	"github.com/sells-group/crm-dedupe/internal/store"
	sfpkg "github.com/sells-group/crm-dedupe/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver == "sqlite" {
		dsn = cfg.Store.SQLitePath
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

func initPipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	mapping, err := normalize.LoadMapping(cfg.Dedupe.MappingFile)
	if err != nil {
		return nil, eris.Wrap(err, "load column mapping")
	}
	return pipeline.FromConfig(cfg.Dedupe, mapping, opts...), nil
}

func initSalesforce() (sfpkg.Client, error) {
	if err := cfg.Validate("salesforce"); err != nil {
		return nil, err
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	return sfpkg.Connect(sfpkg.Creds{
		LoginURL:   cfg.Salesforce.LoginURL,
		Username:   cfg.Salesforce.Username,
		ClientID:   cfg.Salesforce.ClientID,
		PrivateKey: string(pemData),
	}, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit))
}
