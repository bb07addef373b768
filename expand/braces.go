// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"strconv"
	"strings"

	"github.com/bashkit/bashkit/syntax"
)

// Braces performs Bash brace expansion on a word. For example, passing it a
// single-literal word "foo{bar,baz}" will return two single-literal words,
// "foobar" and "foobaz".
//
// It does not return an error; malformed brace expansions are simply skipped.
// For example, "a{b{c,d}" results in the words "a{bc" and "a{bd".
//
// Note that the resulting words may have more word parts than necessary, such
// as contiguous *syntax.Lit nodes, and that these parts may be shared between
// words.
func Braces(word *syntax.Word) []*syntax.Word {
	split, any := syntax.SplitBraces(word)
	if !any {
		return []*syntax.Word{word}
	}
	return expandBraceWord(split)
}

// expandBraceWord walks a word that may contain *syntax.BraceExp parts,
// producing the cartesian product of every brace's alternatives.
func expandBraceWord(word *syntax.Word) []*syntax.Word {
	results := []*syntax.Word{{}}
	for _, part := range word.Parts {
		br, ok := part.(*syntax.BraceExp)
		if !ok {
			for _, r := range results {
				r.Parts = append(r.Parts, part)
			}
			continue
		}
		alts := braceAlternatives(br)
		next := make([]*syntax.Word, 0, len(results)*len(alts))
		for _, r := range results {
			for _, alt := range alts {
				w := &syntax.Word{Parts: append(append([]syntax.WordPart{}, r.Parts...), alt.Parts...)}
				next = append(next, w)
			}
		}
		results = next
	}
	return results
}

// braceAlternatives returns the expanded word alternatives for a single
// brace expression, handling both comma lists and {x..y[..incr]} sequences.
func braceAlternatives(br *syntax.BraceExp) []*syntax.Word {
	if !br.Sequence {
		var out []*syntax.Word
		for _, elem := range br.Elems {
			out = append(out, expandBraceWord(elem)...)
		}
		return out
	}
	start := br.Elems[0].Lit()
	end := br.Elems[1].Lit()
	incr := 1
	if len(br.Elems) == 3 {
		if n, err := strconv.Atoi(br.Elems[2].Lit()); err == nil && n != 0 {
			incr = n
		}
	}
	if br.Chars {
		return charSequence(start[0], end[0], incr)
	}
	return numberSequence(start, end, incr)
}

func litWord(s string) *syntax.Word {
	return &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: s}}}
}

func numberSequence(startS, endS string, incr int) []*syntax.Word {
	start, _ := strconv.Atoi(strings.TrimPrefix(startS, "+"))
	end, _ := strconv.Atoi(strings.TrimPrefix(endS, "+"))
	width := 0
	if strings.HasPrefix(startS, "0") && len(startS) > 1 {
		width = len(startS)
	}
	if incr == 0 {
		incr = 1
	}
	if start > end {
		incr = -absInt(incr)
	} else {
		incr = absInt(incr)
	}
	var out []*syntax.Word
	for n := start; (incr > 0 && n <= end) || (incr < 0 && n >= end); n += incr {
		s := strconv.Itoa(n)
		if width > 0 {
			neg := strings.HasPrefix(s, "-")
			if neg {
				s = s[1:]
			}
			for len(s) < width {
				s = "0" + s
			}
			if neg {
				s = "-" + s
			}
		}
		out = append(out, litWord(s))
		if n > 0 && incr > 0 && n > end-incr && n+incr < n {
			break // overflow guard
		}
	}
	return out
}

func charSequence(start, end byte, incr int) []*syntax.Word {
	if incr == 0 {
		incr = 1
	}
	if start > end {
		incr = -absInt(incr)
	} else {
		incr = absInt(incr)
	}
	var out []*syntax.Word
	for c := int(start); (incr > 0 && c <= int(end)) || (incr < 0 && c >= int(end)); c += incr {
		out = append(out, litWord(string(rune(c))))
	}
	return out
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
