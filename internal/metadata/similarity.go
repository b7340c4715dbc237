package metadata

import "strings"

// StringSimilarity returns the Sørensen–Dice coefficient of the two
// strings' rune bigram multisets, bounded to [0,1]. Equal strings score 1;
// strings shorter than one bigram only match exactly.
func StringSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[string]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[string(ra[i:i+2])]++
	}

	overlap := 0
	for i := 0; i < len(rb)-1; i++ {
		key := string(rb[i : i+2])
		if bigrams[key] > 0 {
			bigrams[key]--
			overlap++
		}
	}

	return 2 * float64(overlap) / float64(len(ra)-1+len(rb)-1)
}

// Score computes the similarity of a snippet against the query. titleWeight
// is a fraction in [0,1]; values outside the range are clamped. When the
// caller supplies an author and the snippet has author data, the score is a
// weighted blend of title and best-author similarity, otherwise title
// similarity alone. Malformed or absent author data degrades to title-only
// scoring, never an error.
func Score(sn Snippet, query, author string, titleWeight float64) float64 {
	if titleWeight < 0 {
		titleWeight = 0
	} else if titleWeight > 1 {
		titleWeight = 1
	}

	titleSim := StringSimilarity(fold(sn.Title), fold(query))

	if author == "" || len(sn.Authors) == 0 {
		return titleSim
	}

	authorSim := 0.0
	target := fold(author)
	for _, a := range sn.Authors {
		if s := StringSimilarity(fold(a), target); s > authorSim {
			authorSim = s
		}
	}

	return titleWeight*titleSim + (1-titleWeight)*authorSim
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
