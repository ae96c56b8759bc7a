package align

import "sort"

// Token-level sequence diff producing the classic four-way edit script:
// equal, replace, insert, delete. The algorithm repeatedly takes the longest
// matching contiguous run (earliest on ties) and recurses on both sides, with
// exact token equality and no junk heuristics, so deliberately repeated words
// still anchor the alignment.

type opTag uint8

const (
	opEqual opTag = iota
	opReplace
	opInsert
	opDelete
)

func (t opTag) String() string {
	switch t {
	case opEqual:
		return "equal"
	case opReplace:
		return "replace"
	case opInsert:
		return "insert"
	default:
		return "delete"
	}
}

// op covers a[i1:i2] and b[j1:j2].
type op struct {
	tag            opTag
	i1, i2, j1, j2 int
}

type matchBlock struct {
	a, b, size int
}

// opcodes describes how to turn a into b as an ordered, gap-free list of
// edit operations.
func opcodes(a, b []string) []op {
	var ops []op
	i, j := 0, 0
	for _, m := range matchingBlocks(a, b) {
		tag := opEqual
		tagged := false
		switch {
		case i < m.a && j < m.b:
			tag, tagged = opReplace, true
		case i < m.a:
			tag, tagged = opDelete, true
		case j < m.b:
			tag, tagged = opInsert, true
		}
		if tagged {
			ops = append(ops, op{tag, i, m.a, j, m.b})
		}
		i, j = m.a+m.size, m.b+m.size
		if m.size > 0 {
			ops = append(ops, op{opEqual, m.a, i, m.b, j})
		}
	}
	return ops
}

// matchingBlocks returns the maximal matching runs in both-ascending order,
// terminated by a zero-length sentinel at (len(a), len(b)).
func matchingBlocks(a, b []string) []matchBlock {
	b2j := make(map[string][]int, len(b))
	for j, tok := range b {
		b2j[tok] = append(b2j[tok], j)
	}

	type span struct {
		alo, ahi, blo, bhi int
	}
	queue := []span{{0, len(a), 0, len(b)}}

	var matched []matchBlock
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		m := longestMatch(a, b2j, s.alo, s.ahi, s.blo, s.bhi)
		if m.size == 0 {
			continue
		}
		matched = append(matched, m)
		if s.alo < m.a && s.blo < m.b {
			queue = append(queue, span{s.alo, m.a, s.blo, m.b})
		}
		if m.a+m.size < s.ahi && m.b+m.size < s.bhi {
			queue = append(queue, span{m.a + m.size, s.ahi, m.b + m.size, s.bhi})
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].a != matched[j].a {
			return matched[i].a < matched[j].a
		}
		return matched[i].b < matched[j].b
	})

	// Merge runs that ended up adjacent after the recursion split them.
	var blocks []matchBlock
	for _, m := range matched {
		if n := len(blocks); n > 0 {
			prev := &blocks[n-1]
			if prev.a+prev.size == m.a && prev.b+prev.size == m.b {
				prev.size += m.size
				continue
			}
		}
		blocks = append(blocks, m)
	}

	return append(blocks, matchBlock{len(a), len(b), 0})
}

// longestMatch finds the longest run of tokens equal between a[alo:ahi] and
// b[blo:bhi], preferring the earliest in a, then in b, on ties.
func longestMatch(a []string, b2j map[string][]int, alo, ahi, blo, bhi int) matchBlock {
	best := matchBlock{a: alo, b: blo}

	// j2len[j] is the length of the longest match ending at a[i-1], b[j].
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		newj2len := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > best.size {
				best = matchBlock{a: i - k + 1, b: j - k + 1, size: k}
			}
		}
		j2len = newj2len
	}

	return best
}
