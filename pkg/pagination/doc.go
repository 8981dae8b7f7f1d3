// Package pagination aggregates multi-page GitLab list results into one
// ordered sequence.
//
// GitLab signals continuation either through the X-Next-Page header, an
// RFC 5988 Link header, or the X-Page/X-Total-Pages counter pair; the form
// varies by version and endpoint, so the cursor extraction handles all of
// them. Pages are fetched strictly sequentially, in server order, with no
// prefetch.
//
// Example usage:
//
//	items, err := pagination.FetchAllAs[MergeRequest](ctx, apiClient, call)
//
// Aggregation is all or nothing: a failure on any page discards everything
// collected so far and surfaces the typed failure, so callers never mistake
// a partial list for a complete one.
//
// Termination is bounded by the pages the server reports. A server that
// emits a never-ending cursor chain (a protocol violation) is not detected
// here; callers needing a hard bound should cancel the context.
package pagination
