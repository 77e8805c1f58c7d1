// Package prf implements pseudo-relevance feedback: TF-IDF term scoring
// over a small pseudo-relevant corpus and RM3-style query expansion.
package prf

import (
	"math"
	"strings"
)

// Corpus is a TF-IDF scorer over one set of documents. It is built per
// query and discarded; nothing is shared between queries.
type Corpus struct {
	docs [][]string
	df   map[string]int
	n    int
}

// NewCorpus tokenizes the documents (whitespace split, lowercased) and
// precomputes document frequencies.
func NewCorpus(docs []string) *Corpus {
	c := &Corpus{
		docs: make([][]string, len(docs)),
		df:   make(map[string]int),
		n:    len(docs),
	}
	for i, doc := range docs {
		tokens := strings.Fields(strings.ToLower(doc))
		c.docs[i] = tokens
		seen := map[string]bool{}
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				c.df[t]++
			}
		}
	}
	return c
}

// Docs returns the tokenized documents.
func (c *Corpus) Docs() [][]string { return c.docs }

// TF is occurrences / (len(doc) + 1). The +1 avoids division by zero on
// empty documents and damps very short ones.
func (c *Corpus) TF(term string, docTokens []string) float64 {
	term = strings.ToLower(term)
	count := 0
	for _, t := range docTokens {
		if t == term {
			count++
		}
	}
	return float64(count) / float64(len(docTokens)+1)
}

// IDF is log(N / (df + 1)) + 1. The +1 terms keep unseen and ubiquitous
// terms finite and non-zero.
func (c *Corpus) IDF(term string) float64 {
	df := c.df[strings.ToLower(term)]
	return math.Log(float64(c.n)/float64(df+1)) + 1
}

// TFIDF is the product of TF and IDF.
func (c *Corpus) TFIDF(term string, docTokens []string) float64 {
	return c.TF(term, docTokens) * c.IDF(term)
}
