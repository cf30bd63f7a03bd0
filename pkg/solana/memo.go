package solana

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"
)

const (
	MemoProgramV1 = "Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo"
	MemoProgramV2 = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcQb"
)

var memoLogExp = regexp.MustCompile(`Memo \(len \d+\): "(.+)"`)

func isMemoProgram(id string) bool {
	return id == MemoProgramV1 || id == MemoProgramV2
}

// DecodeMemo returns the text of the first memo instruction of tx. When no instruction yields a memo, the program
// logs are searched instead.
func DecodeMemo(tx *Transaction) (string, bool) {
	if tx == nil {
		return "", false
	}
	if memo, ok := memoFromInstructions(tx.raw); ok {
		return memo, true
	}
	return memoFromLogs(tx.LogMessages)
}

// DecodeMemoJSON is DecodeMemo over a raw getTransaction body. Bodies that cannot be parsed have no memo.
func DecodeMemoJSON(raw []byte) (string, bool) {
	tx, err := ParseTransaction(raw)
	if err != nil {
		return "", false
	}
	return DecodeMemo(tx)
}

func memoFromInstructions(doc gjson.Result) (string, bool) {
	msg := doc.Get("transaction.message")
	keys := accountKeys(doc, msg)

	instructions := msg.Get("instructions")
	if !instructions.Exists() {
		instructions = msg.Get("compiledInstructions")
	}

	for _, ix := range instructions.Array() {
		if !isMemoProgram(programID(ix, keys)) {
			continue
		}

		// jsonParsed renders spl-memo instructions as the memo string itself.
		if p := ix.Get("parsed"); p.Type == gjson.String {
			if memo := cleanMemo(p.String()); memo != "" {
				return memo, true
			}
			continue
		}

		data, ok := instructionData(ix.Get("data"))
		if !ok || !utf8.Valid(data) {
			continue
		}
		if memo := cleanMemo(string(data)); memo != "" {
			return memo, true
		}
	}
	return "", false
}

// accountKeys resolves the full account list an instruction's programIdIndex refers to.
func accountKeys(doc gjson.Result, msg gjson.Result) []string {
	list := msg.Get("accountKeys")
	if !list.Exists() {
		list = msg.Get("staticAccountKeys")
	}

	var keys []string
	for _, k := range list.Array() {
		if k.IsObject() {
			keys = append(keys, k.Get("pubkey").String())
		} else {
			keys = append(keys, k.String())
		}
	}

	// Versioned transactions address lookup table entries after the static keys, writable first.
	loaded := doc.Get("meta.loadedAddresses")
	for _, k := range loaded.Get("writable").Array() {
		keys = append(keys, k.String())
	}
	for _, k := range loaded.Get("readonly").Array() {
		keys = append(keys, k.String())
	}
	return keys
}

func programID(ix gjson.Result, keys []string) string {
	if p := ix.Get("programId"); p.Type == gjson.String {
		return p.String()
	}
	idx := ix.Get("programIdIndex")
	if idx.Type != gjson.Number {
		return ""
	}
	i := idx.Int()
	if i < 0 || i >= int64(len(keys)) {
		return ""
	}
	return keys[i]
}

// instructionData accepts base58 strings, plain byte arrays and {"data": [...]} buffer objects.
func instructionData(v gjson.Result) ([]byte, bool) {
	switch {
	case v.Type == gjson.String:
		b, err := base58.Decode(v.String())
		if err != nil {
			return nil, false
		}
		return b, true
	case v.IsArray():
		return byteArray(v)
	case v.IsObject():
		return byteArray(v.Get("data"))
	}
	return nil, false
}

func byteArray(v gjson.Result) ([]byte, bool) {
	if !v.IsArray() {
		return nil, false
	}
	items := v.Array()
	out := make([]byte, 0, len(items))
	for _, it := range items {
		if it.Type != gjson.Number {
			return nil, false
		}
		n := it.Int()
		if n < 0 || n > 255 || float64(n) != it.Float() {
			return nil, false
		}
		out = append(out, byte(n))
	}
	return out, true
}

func memoFromLogs(lines []string) (string, bool) {
	for _, l := range lines {
		m := memoLogExp.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if memo := cleanMemo(m[1]); memo != "" {
			return memo, true
		}
	}
	return "", false
}

func cleanMemo(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return r == 0 || unicode.IsSpace(r)
	})
}
