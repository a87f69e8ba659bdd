package storageserver

import "testing"

func TestParseSentencesRoundTrip(t *testing.T) {
	texts := []string{
		"",
		"Hello.",
		"Hello. World.",
		"A. B. C.",
		"One?  Two!\tThree.",
		"Ends without delimiter",
		"Mixed. Then an unterminated tail",
		"Leading spaces.   \n\nNext line starts here. ",
		"Just whitespace after!   ",
		"...",
		"A sentence with  uneven   spacing. Another\tone.",
		"\n\nStarts with newlines. Then text.",
	}
	for _, text := range texts {
		nodes := ParseSentences(text)
		if got := Serialize(nodes); got != text {
			t.Errorf("Serialize(ParseSentences(%q)) = %q, want identity", text, got)
		}
	}
}

func TestParseSentencesEmptyInput(t *testing.T) {
	nodes := ParseSentences("")
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(nodes))
	}
	if nodes[0].Text != "" || nodes[0].TrailingWS != "" {
		t.Errorf("empty input should yield one empty sentence, got %+v", nodes[0])
	}
}

func TestParseSentencesSplitsOnDelimiters(t *testing.T) {
	nodes := ParseSentences("A. B? C! tail")
	if len(nodes) != 4 {
		t.Fatalf("len(nodes) = %d, want 4", len(nodes))
	}
	wantText := []string{"A.", "B?", "C!", "tail"}
	wantWS := []string{" ", " ", " ", ""}
	for i, n := range nodes {
		if n.Text != wantText[i] {
			t.Errorf("nodes[%d].Text = %q, want %q", i, n.Text, wantText[i])
		}
		if n.TrailingWS != wantWS[i] {
			t.Errorf("nodes[%d].TrailingWS = %q, want %q", i, n.TrailingWS, wantWS[i])
		}
	}
}

func TestParseSentencesPreservesWhitespaceRuns(t *testing.T) {
	nodes := ParseSentences("One.  \t\nTwo.")
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}
	if nodes[0].TrailingWS != "  \t\n" {
		t.Errorf("TrailingWS = %q, want %q", nodes[0].TrailingWS, "  \t\n")
	}
}

func TestWordAndCharCounts(t *testing.T) {
	nodes := ParseSentences("One two. Three.")
	if got := WordCount(nodes); got != 3 {
		t.Errorf("WordCount = %d, want 3", got)
	}
	if got := CharCount(nodes); got != len("One two. Three.") {
		t.Errorf("CharCount = %d, want %d", got, len("One two. Three."))
	}
}

func TestSplitWordsRenderIsIdentity(t *testing.T) {
	for _, s := range []string{
		"",
		"word",
		"two words.",
		"  leading and   internal\tgaps. ",
	} {
		ws := splitWords(s)
		if got := ws.render(); got != s {
			t.Errorf("render(splitWords(%q)) = %q, want identity", s, got)
		}
	}
}

func TestSetOrAppendReplacesInPlace(t *testing.T) {
	ws := splitWords("The quick  fox.")
	if !ws.setOrAppend(1, "slow") {
		t.Fatal("replace at index 1 should succeed")
	}
	if got := ws.render(); got != "The slow  fox." {
		t.Errorf("render = %q, want %q", got, "The slow  fox.")
	}
}

func TestSetOrAppendGrowsByOne(t *testing.T) {
	ws := splitWords("")
	if !ws.setOrAppend(0, "Hello") {
		t.Fatal("append at index 0 of an empty sentence should succeed")
	}
	if got := ws.render(); got != "Hello" {
		t.Errorf("render = %q, want %q", got, "Hello")
	}
	if !ws.setOrAppend(1, "there") {
		t.Fatal("append at the end should succeed")
	}
	if got := ws.render(); got != "Hello there" {
		t.Errorf("render = %q, want %q", got, "Hello there")
	}
	if ws.setOrAppend(5, "nope") {
		t.Error("index past the append position should be rejected")
	}
}
