package chunk

import "unicode"

// span is a half-open rune range [start, end) within a document.
type span struct {
	start int
	end   int
}

func (s span) len() int { return s.end - s.start }

// splitSentences scans runes and returns sentence spans. A sentence ends
// at terminal punctuation (. ! ?) followed by whitespace, or at a newline.
// Leading and trailing whitespace is excluded from each span.
func splitSentences(runes []rune) []span {
	var spans []span
	n := len(runes)
	start := 0

	flush := func(end int) {
		s, e := trimSpan(runes, start, end)
		if e > s {
			spans = append(spans, span{start: s, end: e})
		}
		start = end
	}

	for i := 0; i < n; i++ {
		r := runes[i]
		if r == '\n' {
			flush(i + 1)
			continue
		}
		if r == '.' || r == '!' || r == '?' {
			// Consume runs of terminal punctuation and closing quotes.
			j := i + 1
			for j < n && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?' || runes[j] == '"' || runes[j] == '\'' || runes[j] == ')') {
				j++
			}
			if j >= n || unicode.IsSpace(runes[j]) {
				flush(j)
				i = j - 1
			}
		}
	}
	flush(n)

	return spans
}

// splitWords returns word spans separated by whitespace.
func splitWords(runes []rune) []span {
	var spans []span
	n := len(runes)
	i := 0
	for i < n {
		for i < n && unicode.IsSpace(runes[i]) {
			i++
		}
		start := i
		for i < n && !unicode.IsSpace(runes[i]) {
			i++
		}
		if i > start {
			spans = append(spans, span{start: start, end: i})
		}
	}
	return spans
}

// trimSpan shrinks [start, end) to exclude surrounding whitespace.
func trimSpan(runes []rune, start, end int) (int, int) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return start, end
}

// hardSplit slices an oversized span into fixed windows of at most size
// runes with the given overlap.
func hardSplit(s span, size, overlap int) []span {
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var out []span
	for start := s.start; start < s.end; start += step {
		end := start + size
		if end > s.end {
			end = s.end
		}
		out = append(out, span{start: start, end: end})
		if end == s.end {
			break
		}
	}
	return out
}

// packSpans merges consecutive spans into chunk spans of at most size
// runes. Adjacent chunks overlap: each chunk after the first re-includes
// the trailing spans of its predecessor up to overlap runes. Spans longer
// than size are hard-split first.
func packSpans(spans []span, size, overlap int) []span {
	var atoms []span
	for _, s := range spans {
		if s.len() > size {
			atoms = append(atoms, hardSplit(s, size, overlap)...)
		} else {
			atoms = append(atoms, s)
		}
	}
	if len(atoms) == 0 {
		return nil
	}

	var chunks []span
	i := 0
	for i < len(atoms) {
		start := atoms[i].start
		end := atoms[i].end
		j := i + 1
		for j < len(atoms) && atoms[j].end-start <= size {
			end = atoms[j].end
			j++
		}
		chunks = append(chunks, span{start: start, end: end})
		if j >= len(atoms) {
			break
		}

		// Walk back to re-include trailing spans within the overlap
		// budget, keeping forward progress over the previous chunk.
		next := j
		for next-1 > i && end-atoms[next-1].start <= overlap {
			next--
		}
		i = next
	}

	return chunks
}
