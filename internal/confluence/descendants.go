package confluence

import (
	"context"

	"go.uber.org/zap"
)

// Descendants returns the ids of every page below root in the hierarchy, in
// no particular order. Child enumeration is the dominant latency source on
// large trees, so a fixed pool of workers drains a shared queue of page ids;
// the dedup set and pending counter are owned by the coordinator loop alone,
// workers only fetch children and report back.
func (c *Client) Descendants(ctx context.Context, rootID string) []string {
	workers := c.cfg.DiscoveryWorkers
	if workers <= 0 {
		workers = 10
	}

	type childSet struct {
		parent string
		ids    []string
	}
	jobs := make(chan string)
	results := make(chan childSet)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-workerCtx.Done():
					return
				case id, open := <-jobs:
					if !open {
						return
					}
					set := childSet{parent: id, ids: c.ChildPageIDs(workerCtx, id)}
					select {
					case results <- set:
					case <-workerCtx.Done():
						return
					}
				}
			}
		}()
	}

	seen := map[string]bool{rootID: true}
	var descendants []string
	var queue []string

	pending := 0
	enqueue := func(id string) {
		queue = append(queue, id)
	}
	enqueue(rootID)

	for pending > 0 || len(queue) > 0 {
		var send chan string
		var next string
		if len(queue) > 0 {
			send = jobs
			next = queue[0]
		}
		select {
		case send <- next:
			queue = queue[1:]
			pending++
		case set := <-results:
			pending--
			for _, id := range set.ids {
				if seen[id] {
					continue
				}
				seen[id] = true
				descendants = append(descendants, id)
				enqueue(id)
			}
		case <-ctx.Done():
			c.logger.Warn("descendant discovery cancelled",
				zap.String("root_id", rootID),
				zap.Error(ctx.Err()),
			)
			close(jobs)
			return descendants
		}
	}
	close(jobs)
	return descendants
}
