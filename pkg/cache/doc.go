// Package cache inspects the caching headers of preloaded responses.
//
// The preloader does not keep a cache of its own. It warms the caches in
// front of the frontend (CDN, reverse proxy, application cache) and uses
// this package to report what those caches answered:
//
//   - CDN hit indicators (X-Cache, CF-Cache-Status, X-Fastly-Cache, ...)
//   - Age of the cached object
//   - Freshness from Cache-Control max-age / s-maxage or Expires
//   - Validators (ETag, Last-Modified)
//
// # Basic Usage
//
//	resp, err := c.Get(ctx, url, h)
//	if err != nil {
//		return err
//	}
//	status := cache.Inspect(resp, time.Now())
//	cache.Observe(status)
//
// # Metrics
//
//   - preload_cache_responses_total{status} - hit, miss or unknown
//   - preload_cache_age_seconds - Age reported on hits
package cache
