// Package storageserver implements the sentence-granular storage engine:
// parsing text into sentences, per-sentence locking, word mutation,
// undo/checkpoint, and atomic persistence. Per-resource mutexes provide
// per-sentence mutual exclusion; one coarse registry lock guards the
// session bookkeeping.
package storageserver

import (
	"strings"
	"sync"
)

// A sentence ends at '.', '?' or '!'.
func isDelimiter(b byte) bool { return b == '.' || b == '?' || b == '!' }

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// SentenceNode is one sentence of a file's text.
// Text runs through and including the delimiter; TrailingWS preserves
// the whitespace that followed so Text+TrailingWS round-trips exactly.
type SentenceNode struct {
	mu sync.Mutex

	Text       string
	TrailingWS string
	LockedBy   string
	IsLocked   bool
}

// Render returns the exact on-disk bytes this node contributes.
func (n *SentenceNode) Render() string { return n.Text + n.TrailingWS }

// ParseSentences splits text into sentence nodes. Empty input yields a
// single empty sentence.
func ParseSentences(text string) []*SentenceNode {
	if text == "" {
		return []*SentenceNode{{}}
	}
	var nodes []*SentenceNode
	start := 0
	i := 0
	for i < len(text) {
		if isDelimiter(text[i]) {
			sentence := text[start : i+1]
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			nodes = append(nodes, &SentenceNode{Text: sentence, TrailingWS: text[i+1 : j]})
			start = j
			i = j
			continue
		}
		i++
	}
	if start < len(text) {
		nodes = append(nodes, &SentenceNode{Text: text[start:]})
	}
	if len(nodes) == 0 {
		nodes = append(nodes, &SentenceNode{})
	}
	return nodes
}

// Serialize implements the inverse of ParseSentences: concatenating every
// node's Render() reproduces the original file bytes.
func Serialize(nodes []*SentenceNode) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(n.Render())
	}
	return b.String()
}

// WordCount returns the number of whitespace-delimited words across all
// sentences, used for the cached word count.
func WordCount(nodes []*SentenceNode) int {
	count := 0
	for _, n := range nodes {
		count += len(strings.Fields(n.Text))
	}
	return count
}

// CharCount returns the total byte length across all sentences.
func CharCount(nodes []*SentenceNode) int {
	count := 0
	for _, n := range nodes {
		count += len(n.Render())
	}
	return count
}

// splitWords splits a sentence's Text on whitespace while preserving
// enough information to reassemble it after replacing one word: the
// words themselves and the whitespace runs between them.
type wordSplit struct {
	words []string
	gaps  []string // gaps[i] is the whitespace after words[i]; len(gaps) == len(words)
	lead  string   // whitespace before the first word
}

func splitWords(s string) wordSplit {
	var ws wordSplit
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	ws.lead = s[:i]
	for i < len(s) {
		start := i
		for i < len(s) && !isSpace(s[i]) {
			i++
		}
		ws.words = append(ws.words, s[start:i])
		gapStart := i
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		ws.gaps = append(ws.gaps, s[gapStart:i])
	}
	return ws
}

// setOrAppend replaces the word at idx, or appends a new trailing word when
// idx equals len(words); appending is the only way to grow a sentence
// that had no words yet, since word replacement is the sole mutation
// primitive. Any idx beyond that returns false, leaving ws unchanged.
func (ws *wordSplit) setOrAppend(idx int, word string) bool {
	if idx < 0 || idx > len(ws.words) {
		return false
	}
	if idx < len(ws.words) {
		ws.words[idx] = word
		return true
	}
	if len(ws.words) > 0 && ws.gaps[len(ws.gaps)-1] == "" {
		ws.gaps[len(ws.gaps)-1] = " "
	}
	ws.words = append(ws.words, word)
	ws.gaps = append(ws.gaps, "")
	return true
}

func (ws wordSplit) render() string {
	var b strings.Builder
	b.WriteString(ws.lead)
	for i, w := range ws.words {
		b.WriteString(w)
		if i < len(ws.gaps) {
			b.WriteString(ws.gaps[i])
		}
	}
	return b.String()
}
