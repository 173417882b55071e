package wml

import (
	"errors"
	"strings"
	"testing"
)

func parseStrict(t *testing.T, doc string) (*Node, error) {
	t.Helper()
	return Parse([]byte(doc), ParseOptions{
		MaxDecodedBytes: 1 << 20,
		Limits:          Limits{MaxDepth: 16, MaxNodes: 100},
	})
}

func TestTokenizerSyntaxErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		kind SyntaxErrorKind
		line int
		col  int
	}{
		{"mismatched", "[a]\n  [/b]\n", SyntaxMismatchedClose, 2, 3},
		{"unmatched", "[/a]\n", SyntaxUnmatchedClose, 1, 1},
		{"unterminated tag", "[a]\n[b]\n[/b]\n", SyntaxUnterminatedTag, 4, 1},
		{"unterminated quote", "[a]\nk=\"abc\n", SyntaxUnterminatedQuote, 2, 3},
		{"attribute outside tag", "k=1\n", SyntaxAttributeOutsideTag, 1, 1},
		{"unexpected character", "[a]\n@\n[/a]\n", SyntaxUnexpectedChar, 2, 1},
		{"space in tag", "[a b]\n", SyntaxInvalidTag, 1, 1},
		{"amendment tag", "[+a]\n[/a]\n", SyntaxInvalidTag, 1, 1},
		{"empty tag", "[]\n", SyntaxInvalidTag, 1, 1},
		{"missing equals", "[a]\n\tkey value\n[/a]\n", SyntaxInvalidKey, 2, 2},
		{"junk after quote", "[a]\nk=\"x\" y\n[/a]\n", SyntaxUnexpectedChar, 2, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseStrict(t, tc.doc)
			var serr *SyntaxError
			if !errors.As(err, &serr) { t.Fatalf("expected SyntaxError, got %v", err) }
			if serr.Kind != tc.kind { t.Fatalf("kind = %s, want %s (%v)", serr.Kind, tc.kind, err) }
			if serr.Line != tc.line || serr.Col != tc.col { t.Fatalf("position = %d:%d, want %d:%d", serr.Line, serr.Col, tc.line, tc.col) }
		})
	}
}

func TestTokenizerValueForms(t *testing.T) {
	doc := "[a]\n" +
		"quote=\"he said \"\"hi\"\"\"\n" +
		"tr=_ \"Translated\"\n" +
		"joined=\"foo\" + # comment\n" +
		"   \"bar\"\n" +
		"multi=\"line1\nline2\"\n" +
		"raw=<<x\"y>>\n" +
		"bare=some text # trailing comment\n" +
		"blank=\n" +
		"num=  12  \n" +
		"under=_plain\n" +
		"[/a]\n"
	root, err := parseStrict(t, doc)
	if err != nil { t.Fatalf("Parse: %v", err) }
	a := root.Child("a")

	want := map[string]string{
		"quote":  `he said "hi"`,
		"tr":     "Translated",
		"joined": "foobar",
		"multi":  "line1\nline2",
		"raw":    `x"y`,
		"bare":   "some text",
		"blank":  "",
		"num":    "12",
		"under":  "_plain",
	}
	for k, v := range want {
		got, err := a.String(k)
		if err != nil { t.Fatalf("%s: %v", k, err) }
		if got != v { t.Fatalf("%s = %q, want %q", k, got, v) }
	}
	if at, _ := a.Attr("tr"); !at.Translatable { t.Fatalf("tr not translatable") }
	if at, _ := a.Attr("num"); at.Kind != KindInt { t.Fatalf("num kind = %v", at.Kind) }
	if at, _ := a.Attr("raw"); at.Kind != KindString { t.Fatalf("raw kind = %v", at.Kind) }
}

func TestTokenizerLineEndings(t *testing.T) {
	root, err := parseStrict(t, "# header\r\n[a]\r\n\tx=1\r\n\ty=\"a\r\nb\"\r\n[/a]\r\n")
	if err != nil { t.Fatalf("Parse: %v", err) }
	a := root.Child("a")
	if n, err := a.Int("x"); err != nil || n != 1 { t.Fatalf("x = %d, %v", n, err) }
	if s, _ := a.String("y"); s != "a\nb" { t.Fatalf("y = %q", s) }

	_, err = parseStrict(t, "[a]\r\n\r\n[/b]\r\n")
	var serr *SyntaxError
	if !errors.As(err, &serr) || serr.Line != 3 { t.Fatalf("CRLF line count: %v", err) }
}

func TestTokenizerTokenTooLong(t *testing.T) {
	doc := "[a]\nk=\"" + strings.Repeat("x", 100) + "\"\n[/a]\n"
	_, err := Parse([]byte(doc), ParseOptions{
		MaxDecodedBytes: 1 << 20,
		Limits:          Limits{MaxDepth: 4, MaxNodes: 4},
		MaxTokenBytes:   32,
	})
	var serr *SyntaxError
	if !errors.As(err, &serr) || serr.Kind != SyntaxTokenTooLong { t.Fatalf("expected token-too-long, got %v", err) }
}

func TestTokenizerStream(t *testing.T) {
	tz := NewTokenizer(strings.NewReader("[a]\nk=v\n[/a]\n"), TokenizerOptions{})
	var types []TokenType
	for {
		tok, err := tz.Next()
		if err != nil { t.Fatalf("Next: %v", err) }
		types = append(types, tok.Type)
		if tok.Type == TokenEOF { break }
	}
	want := []TokenType{TokenOpenTag, TokenAttribute, TokenCloseTag, TokenEOF}
	if len(types) != len(want) { t.Fatalf("tokens = %v", types) }
	for i := range want {
		if types[i] != want[i] { t.Fatalf("token %d = %s, want %s", i, types[i], want[i]) }
	}
	// EOF is sticky
	if tok, err := tz.Next(); err != nil || tok.Type != TokenEOF { t.Fatalf("after EOF: %v %v", tok.Type, err) }
}

func TestAttrAccessors(t *testing.T) {
	n := NewNode("side")
	n.SetInt("side", 2).SetBool("ai", true).Set("name", "bob").Set("gold", "1OO")

	if _, err := n.Int("ai"); !isAttrErr(err, AttrWrongKind) { t.Fatalf("Int(bool): %v", err) }
	if _, err := n.Bool("side"); !isAttrErr(err, AttrWrongKind) { t.Fatalf("Bool(int): %v", err) }
	if _, err := n.Int("gold"); !isAttrErr(err, AttrMalformed) { t.Fatalf("Int(malformed): %v", err) }
	if _, err := n.Bool("name"); !isAttrErr(err, AttrMalformed) { t.Fatalf("Bool(malformed): %v", err) }
	if _, err := n.String("nope"); !isAttrErr(err, AttrMissing) { t.Fatalf("String(missing): %v", err) }
	if got := n.StringOr("nope", "dflt"); got != "dflt" { t.Fatalf("StringOr = %q", got) }
	if v, err := n.Int("side"); err != nil || v != 2 { t.Fatalf("Int = %d, %v", v, err) }
	if s, _ := n.String("side"); s != "2" { t.Fatalf("String(int) = %q", s) }
}

func isAttrErr(err error, kind AttrErrorKind) bool {
	var aerr *AttrError
	return errors.As(err, &aerr) && aerr.Kind == kind
}
