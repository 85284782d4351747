package nebula

import "sync"

// forLanes runs fn for every index in [0, n) across a fixed worker fan-out.
// Lanes within a dispatch execute concurrently with no ordering guarantee
// among themselves, matching the GPU execution model; fn must only
// synchronize through the store's atomic counter.
func forLanes(workers, n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if workers <= 1 || n < workers*4 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= n {
			break
		}
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
