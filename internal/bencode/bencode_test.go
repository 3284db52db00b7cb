package bencode

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestDecode_Scalars(t *testing.T) {
	v, err := Decode([]byte("i42e"))
	if err != nil {
		t.Fatalf("decode integer: %v", err)
	}
	if v.Kind != KindInteger || v.Int != 42 {
		t.Errorf("expected integer 42, got %+v", v)
	}

	v, err = Decode([]byte("i-7e"))
	if err != nil {
		t.Fatalf("decode negative integer: %v", err)
	}
	if v.Int != -7 {
		t.Errorf("expected -7, got %d", v.Int)
	}

	v, err = Decode([]byte("4:spam"))
	if err != nil {
		t.Fatalf("decode string: %v", err)
	}
	if v.Kind != KindBytes || string(v.Bytes) != "spam" {
		t.Errorf("expected byte-string spam, got %+v", v)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []string{
		"",
		"i42",           // unterminated integer
		"5:spam",        // string shorter than declared
		"l",             // unterminated list
		"d3:key",        // dict key without value
		"x",             // unknown type byte
		"i42ei1e",       // trailing data
		"i" + strings.Repeat("9", 30) + "e", // over digit ceiling
	}
	for _, in := range cases {
		if _, err := Decode([]byte(in)); err == nil {
			t.Errorf("Decode(%q) should fail", in)
		}
	}
}

func TestDecode_DepthLimit(t *testing.T) {
	deep := strings.Repeat("l", 100) + strings.Repeat("e", 100)
	_, err := Decode([]byte(deep))
	if !errors.Is(err, ErrDepthLimit) {
		t.Errorf("expected depth limit error, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	values := []Value{
		Integer(0),
		Integer(-123456),
		String(""),
		String("hello world"),
		{Kind: KindList, List: []Value{Integer(1), String("two"), {Kind: KindList, List: []Value{Integer(3)}}}},
		{Kind: KindDict, Dict: map[string]Value{
			"b": Integer(2),
			"a": String("one"),
			"c": {Kind: KindList, List: []Value{String("x"), String("y")}},
		}},
	}

	for _, v := range values {
		encoded := Encode(v)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("round trip decode failed for %+v: %v", v, err)
		}
		if !bytes.Equal(Encode(decoded), encoded) {
			t.Errorf("round trip not stable for %+v", v)
		}
	}
}

func TestEncode_SortsDictKeys(t *testing.T) {
	v := Value{Kind: KindDict, Dict: map[string]Value{
		"zebra": Integer(1),
		"apple": Integer(2),
		"mango": Integer(3),
	}}
	got := string(Encode(v))
	want := "d5:applei2e5:mangoi3e5:zebrai1ee"
	if got != want {
		t.Errorf("expected sorted keys %q, got %q", want, got)
	}
}

// buildTorrent constructs a minimal multi-file metainfo buffer with keys
// deliberately emitted out of order, to prove canonical re-encoding fixes
// the ordering before hashing.
func buildTorrent(t *testing.T) ([]byte, string) {
	t.Helper()

	info := Value{Kind: KindDict, Dict: map[string]Value{
		"name":         String("Some.Release.1080p"),
		"piece length": Integer(262144),
		"pieces":       String("0123456789abcdefghij"),
		"files": {Kind: KindList, List: []Value{
			{Kind: KindDict, Dict: map[string]Value{
				"length": Integer(1000),
				"path":   {Kind: KindList, List: []Value{String("a.mkv")}},
			}},
			{Kind: KindDict, Dict: map[string]Value{
				"length": Integer(500),
				"path":   {Kind: KindList, List: []Value{String("extras"), String("b.nfo")}},
			}},
		}},
	}}
	root := Value{Kind: KindDict, Dict: map[string]Value{
		"announce": String("http://tracker.example/announce"),
		"info":     info,
	}}

	sum := sha1.Sum(Encode(info))
	return Encode(root), hex.EncodeToString(sum[:])
}

func TestInfoHash(t *testing.T) {
	raw, want := buildTorrent(t)

	got, err := InfoHash(raw)
	if err != nil {
		t.Fatalf("InfoHash: %v", err)
	}
	if got != want {
		t.Errorf("expected info hash %s, got %s", want, got)
	}
}

func TestInfoHash_MissingInfo(t *testing.T) {
	raw := Encode(Value{Kind: KindDict, Dict: map[string]Value{"announce": String("x")}})
	if _, err := InfoHash(raw); !errors.Is(err, ErrMissingInfo) {
		t.Errorf("expected ErrMissingInfo, got %v", err)
	}
}

func TestParseMeta_MultiFile(t *testing.T) {
	raw, wantHash := buildTorrent(t)

	meta, err := ParseMeta(raw)
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	if meta.InfoHash != wantHash {
		t.Errorf("hash mismatch: %s vs %s", meta.InfoHash, wantHash)
	}
	if meta.Name != "Some.Release.1080p" {
		t.Errorf("unexpected name %q", meta.Name)
	}
	if len(meta.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(meta.Files))
	}
	if meta.Files[0].Path != "Some.Release.1080p/a.mkv" || meta.Files[0].Size != 1000 {
		t.Errorf("unexpected first file %+v", meta.Files[0])
	}
	if meta.Files[1].Path != "Some.Release.1080p/extras/b.nfo" {
		t.Errorf("unexpected second file path %q", meta.Files[1].Path)
	}
	if meta.TotalSize != 1500 {
		t.Errorf("expected total 1500, got %d", meta.TotalSize)
	}
}

func TestParseMeta_SingleFile(t *testing.T) {
	info := Value{Kind: KindDict, Dict: map[string]Value{
		"name":         String("single.mkv"),
		"length":       Integer(4096),
		"piece length": Integer(262144),
		"pieces":       String("0123456789abcdefghij"),
	}}
	raw := Encode(Value{Kind: KindDict, Dict: map[string]Value{"info": info}})

	meta, err := ParseMeta(raw)
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	if len(meta.Files) != 1 || meta.Files[0].Path != "single.mkv" || meta.Files[0].Size != 4096 {
		t.Errorf("unexpected files %+v", meta.Files)
	}
}
