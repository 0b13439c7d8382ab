package main

import (
	"context"
	"time"

	"github.com/natours-dev/natours/internal/assets"
	"github.com/natours-dev/natours/internal/cfg"
	"github.com/natours-dev/natours/internal/log"
	"github.com/natours-dev/natours/internal/metrics"
	"github.com/natours-dev/natours/internal/reviews"
	"github.com/natours-dev/natours/internal/tours"
	"github.com/natours-dev/natours/internal/users"
	"github.com/natours-dev/natours/internal/webassets"
	"github.com/natours-dev/natours/internal/xerrors"
)

// seedStores fills the in-memory collections from the embedded dev data.
// Seeded tour ratings are kept as they are; review writes recompute them.
// Document counts are exported as they change.
func seedStores(ctx context.Context, m *metrics.ServerMetrics, now time.Time) (*tours.Store, *users.Store, *reviews.Store, error) {
	ts, us, rs := tours.NewStore(), users.NewStore(), reviews.NewStore()
	ts.OnChange(m.SetDocuments)
	us.OnChange(m.SetDocuments)
	rs.OnChange(m.SetDocuments)

	seeds := []struct {
		name string
		load func([]byte) error
	}{
		{"tours", func(b []byte) error { return ts.Seed(b, now) }},
		{"users", us.Seed},
		{"reviews", func(b []byte) error { return rs.Seed(b, now) }},
	}
	for _, s := range seeds {
		data, err := webassets.SeedData(s.name)
		if err != nil {
			return nil, nil, nil, xerrors.Wrapf(err, "read %s seed", s.name)
		}
		if err := s.load(data); err != nil {
			return nil, nil, nil, err
		}
	}

	log.FromContext(ctx).Info(ctx, "collections seeded",
		"tours", ts.Len(), "users", us.Len(), "reviews", rs.Len())
	return ts, us, rs, nil
}

// loadAssets installs the public directory the static stage serves: a local
// directory, an S3 bundle kept fresh by a watcher, or the embedded copy.
func loadAssets(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics, mgr *assets.Manager) error {
	defer func() {
		m.SetAssetsSource(string(mgr.Source()))
		m.SetAssetsBundle(mgr.AssetsHash())
		if t := mgr.LoadedAt(); !t.IsZero() {
			m.SetAssetsLoadedTimestamp(t)
		}
	}()

	if conf.PublicDir != "" {
		snap, err := assets.FromDir(conf.PublicDir)
		if err != nil {
			return xerrors.Wrapf(err, "public dir %s", conf.PublicDir)
		}
		mgr.Set(snap)
		L.Info(ctx, "serving public assets from disk", "dir", conf.PublicDir, "assets_version", mgr.AssetsVersion())
		return nil
	}

	mgr.Set(assets.FromFS(webassets.PublicFS(), assets.SourceEmbedded))
	if !conf.EnableAssetUpdates {
		L.Info(ctx, "serving embedded public assets", "assets_version", mgr.AssetsVersion())
		return nil
	}

	loader, err := assets.NewLoader(ctx, assets.LoaderOptions{
		Logger:   L,
		SSMParam: conf.AssetsSSMParam,
		S3Bucket: conf.AssetsS3Bucket,
		S3Prefix: conf.AssetsS3Prefix,
		KMSKeyID: conf.AssetsSigningKeyARN,
	})
	if err != nil {
		// the embedded copy keeps serving
		L.Error(ctx, err, "asset loader unavailable, asset updates disabled")
		return nil
	}

	start := time.Now()
	if snap, err := loader.Load(ctx); err != nil {
		L.Error(ctx, err, "failed to load asset bundle, serving embedded assets")
	} else {
		mgr.Set(*snap)
		m.ObserveBundleLoadDuration(time.Since(start).Seconds())
		L.Info(ctx, "loaded asset bundle",
			"assets_version", mgr.AssetsVersion(),
			"assets_hash", mgr.AssetsHash(),
		)
	}

	w := assets.NewWatcher(assets.WatcherOptions{
		Logger:       L,
		Fetcher:      loader,
		Manager:      mgr,
		PollInterval: conf.AssetsPollInterval,
		Metrics:      m,
		OnSwap: func(snap *assets.Snapshot) {
			m.SetAssetsSource(string(snap.Meta.Source))
			m.SetAssetsBundle(snap.Meta.SHA256)
			m.SetAssetsLoadedTimestamp(snap.LoadedAt)
		},
	})
	go func() { _ = w.Run(ctx) }()
	return nil
}
