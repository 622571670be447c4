package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"
)

// HashRequest sha256(method:path:query:canonicalBody:userId)
func HashRequest(method, path, query string, body []byte, userID string) string {
	content := strings.Join([]string{method, path, query, canonicalBody(body), userID}, ":")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// canonicalBody 对象键排序、去掉空白；不是合法 JSON 时退回去空白的原文
func canonicalBody(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err == nil && !dec.More() {
		// encoding/json 序列化 map 时按键排序
		if out, err := json.Marshal(tree); err == nil {
			return string(out)
		}
	}

	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, string(body))
}
