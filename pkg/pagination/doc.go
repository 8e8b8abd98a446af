// Package pagination walks a paginated content listing with a worker pool.
//
// The first page reports the page count; the remaining pages are fetched
// in parallel and reassembled in page order:
//
//	fetcher := pagination.RepositoryFetcher{Repository: repo, Type: "post", Status: content.StatusPublish}
//	bf := pagination.NewBatchFetcher(fetcher, pagination.DefaultConfig(), logger)
//	items, err := bf.FetchAll(ctx)
//
// mdctl uses it to collect every item of a type before batch generation.
package pagination
