package partitionkey

import (
	"encoding/hex"
	"reflect"
	"unicode/utf16"

	"golang.org/x/crypto/sha3"
)

const (
	TrivialPartitionKey   = "0" // 未提供事件时使用的平凡 key
	MaxPartitionKeyLength = 256 // key 最大长度（按 UTF-16 码元计）

	partitionKeyField = "partitionKey"
)

// Deterministic 为任意事件计算确定性的 partition key：
//   - 事件为空（nil / false / 0 / ""）时返回 "0"
//   - 事件带有 truthy 的 partitionKey 字段时，直接使用该字段
//   - 否则对事件的 JSON 序列化结果做 SHA3-512，取小写 hex
//
// 非字符串的候选值会被 JSON 序列化；长度超过 256 时再做一次 SHA3-512（128 个 hex 字符）。
// 仅在事件无法序列化时返回错误（错误包装 ErrSerialization）。
func Deterministic(event any) (string, error) {
	var candidate any = TrivialPartitionKey

	if truthy(event) {
		if pk, ok := lookupField(event, partitionKeyField); ok && truthy(pk) {
			candidate = pk
		} else {
			data, err := marshal(event)
			if err != nil {
				return "", err
			}
			candidate = digestHex(data)
		}
	}

	key, ok := asString(candidate)
	if !ok {
		data, err := marshal(candidate)
		if err != nil {
			return "", err
		}
		key = string(data)
	}

	if keyLength(key) > MaxPartitionKeyLength {
		key = digestHex([]byte(key))
	}
	return key, nil
}

// MustDeterministic 同 Deterministic，序列化失败时 panic。
func MustDeterministic(event any) string {
	key, err := Deterministic(event)
	if err != nil {
		panic(err)
	}
	return key
}

// digestHex 计算 SHA3-512 并编码为 128 位小写 hex
func digestHex(data []byte) string {
	sum := sha3.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// keyLength 按 UTF-16 码元计数，保证含非 BMP 字符的 key 与其它语言实现的截断边界一致
func keyLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// asString 判断候选值是否本身就是字符串（含以 string 为底层类型的自定义类型）
func asString(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String && rv.Type() != jsonNumberType {
		return rv.String(), true
	}
	return "", false
}
