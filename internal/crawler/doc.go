// Package crawler crawls one site with a fixed pool of workers and builds
// its link graph.
//
// # Architecture
//
// All workers share one State: a LIFO frontier of pending (parent, child)
// edges, the link graph, and an atomic counter of admitted pages. The
// frontier and the graph each sit behind a sync.RWMutex. Each worker runs
// the same loop independently:
//
//  1. stop if the page budget is used up
//  2. pop an edge; on an empty frontier wait IdleWait, look once more, stop
//  3. normalize the URL and drop it if it is not http(s), out of scope or
//     already in the graph
//  4. count it against the budget and fetch it
//  5. pause for the politeness delay
//  6. with both write locks held, push the page's new in-scope links and
//     record the page in the graph
//
// The budget check and the increment are not one atomic step, so the
// counter can end up to Workers-1 above the budget. A worker that sees an
// empty frontier twice exits even if another worker is about to push new
// edges. Both are accepted: the crawl is best effort and bounded.
//
// # Scope
//
// A URL is in scope when its host equals the base domain (the seed's host)
// or is a subdomain of it, and its path passes the optional ignore/follow
// glob patterns.
//
// # Usage
//
//	c := crawler.New(fetcher.NewHTTPFetcher(client), crawler.WithWorkers(4), crawler.WithMaxLinks(100))
//	result, err := c.Run(ctx, "https://example.com")
package crawler
