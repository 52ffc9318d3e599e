// Package pagination walks a paginated URL-list API and collects the target
// URLs of every page.
//
// The API is queried with a page query parameter starting at 1 and answers
// with a JSON document:
//
//	{"total_pages": 3, "items": [{"url": "https://example.com/a"}, ...]}
//
// Both fields are optional: a missing total_pages means a single page and a
// missing items list means no URLs. total_pages is re-read from every
// response, so a list that grows or shrinks while it is being walked is
// followed as it changes.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(httpClient, apiHeaders, pagination.DefaultConfig(), logger)
//	urls := fetcher.FetchURLs(ctx, "https://api.example.com/urls?type=page")
//
// The fetcher:
//   - Fetches pages sequentially, in order
//   - Keeps page order, then in-page item order, without deduplication
//   - Stops at the first failed page and returns the URLs collected so far
//   - Logs one error line for the failure that stopped it
package pagination
