package tokenizer

import "container/heap"

// mergeCand is a queued merge of the symbols in slot pos and its right
// neighbour. verL and verR snapshot both slots' versions at push time; a
// mismatch at pop time means one side has changed and the entry is stale.
type mergeCand struct {
	rank int
	pos  int
	verL int
	verR int
}

type mergeHeap []mergeCand

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].pos < h[j].pos // leftmost
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(mergeCand)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// mergeQueue produces the same result as mergeNaive. Symbols live in fixed
// slots linked as a list; a merge always collapses into the left slot, so
// slot order is sequence order and (rank, slot) ordering matches the
// lowest-rank, leftmost choice of the re-scan.
func mergeQueue(symbols []string, ranks map[Pair]int) []string {
	n := len(symbols)
	if n < 2 {
		return symbols
	}

	prev := make([]int, n)
	next := make([]int, n)
	for i := range n {
		prev[i] = i - 1
		next[i] = i + 1
	}
	next[n-1] = -1

	version := make([]int, n)
	h := &mergeHeap{}

	push := func(i int) {
		if i < 0 {
			return
		}
		j := next[i]
		if j < 0 {
			return
		}
		if r, ok := ranks[Pair{Left: symbols[i], Right: symbols[j]}]; ok {
			heap.Push(h, mergeCand{rank: r, pos: i, verL: version[i], verR: version[j]})
		}
	}

	for i := 0; i >= 0; i = next[i] {
		push(i)
	}

	for h.Len() > 0 {
		c := heap.Pop(h).(mergeCand)
		i := c.pos

		j := next[i]
		if j < 0 || version[i] != c.verL || version[j] != c.verR {
			continue
		}

		symbols[i] += symbols[j]

		nj := next[j]
		next[i] = nj
		if nj >= 0 {
			prev[nj] = i
		}
		prev[j], next[j] = -1, -1

		version[i]++
		version[j]++

		push(prev[i])
		push(i)
	}

	out := make([]string, 0, n)
	for i := 0; i >= 0; i = next[i] {
		out = append(out, symbols[i])
	}

	return out
}
