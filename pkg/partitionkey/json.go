package partitionkey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"reflect"
	"runtime"
	"slices"
)

var (
	// ErrSerialization 事件无法序列化（循环引用、func / chan、NaN 等）
	ErrSerialization = errors.New("partitionkey: serialization failed")
	// ErrInvalidEvent 输入不是合法的 JSON 事件
	ErrInvalidEvent = errors.New("partitionkey: invalid event")

	jsonNumberType = reflect.TypeOf(json.Number(""))
	objectType     = reflect.TypeOf(Object(nil))
)

// Field 是 Object 中的一个键值对
type Field struct {
	Key   string
	Value any
}

// Object 是保持插入顺序的 JSON 对象。
// Go 的 map 序列化时会对 key 排序，需要按构造顺序参与哈希的事件应使用 Object。
type Object []Field

// Get 返回 key 对应的值
func (o Object) Get(key string) (any, bool) {
	for i := range o {
		if o[i].Key == key {
			return o[i].Value, true
		}
	}
	return nil, false
}

// Set 已存在的 key 原位更新，否则追加到末尾
func (o *Object) Set(key string, value any) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, Field{Key: key, Value: value})
}

// maxMarshalFrames 是 MarshalJSON 允许的最大调用栈深度。
// 经由指针回到 Object 的环每次都会从 encoding/json 重新进入 MarshalJSON，
// 递归路径无法跨越这次重入，只能按栈深度判定。
const maxMarshalFrames = 16 * 1024

// MarshalJSON 按字段顺序输出，不做 HTML 转义
func (o Object) MarshalJSON() ([]byte, error) {
	var pc [1]uintptr
	if runtime.Callers(maxMarshalFrames, pc[:]) > 0 {
		return nil, &json.UnsupportedValueError{
			Value: reflect.ValueOf(o),
			Str:   "encountered a cycle via partitionkey.Object",
		}
	}

	e := newEncoder()
	if err := e.encode(o); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// marshal 输出事件的规范 JSON 表示：
// Object 保持插入顺序，map 按 key 排序，struct 按声明顺序，<、>、& 不转义。
func marshal(v any) ([]byte, error) {
	e := newEncoder()
	if err := e.encode(v); err != nil {
		return nil, fmt.Errorf("%w: marshal %T: %w", ErrSerialization, v, err)
	}
	return e.buf.Bytes(), nil
}

type visit struct {
	ptr uintptr
	len int
}

type encoder struct {
	buf  bytes.Buffer
	enc  *json.Encoder
	path map[visit]struct{} // 当前递归路径上的容器，用于发现环
}

func newEncoder() *encoder {
	e := &encoder{path: make(map[visit]struct{})}
	e.enc = json.NewEncoder(&e.buf)
	e.enc.SetEscapeHTML(false)
	return e
}

func (e *encoder) encode(v any) error {
	switch x := v.(type) {
	case *Object:
		if x == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.encode(*x)
	case Object:
		if x == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.enter(reflect.ValueOf(x), func() error {
			e.buf.WriteByte('{')
			for i, f := range x {
				if i > 0 {
					e.buf.WriteByte(',')
				}
				if err := e.leaf(f.Key); err != nil {
					return err
				}
				e.buf.WriteByte(':')
				if err := e.encode(f.Value); err != nil {
					return err
				}
			}
			e.buf.WriteByte('}')
			return nil
		})
	case []any:
		if x == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.enter(reflect.ValueOf(x), func() error {
			e.buf.WriteByte('[')
			for i, item := range x {
				if i > 0 {
					e.buf.WriteByte(',')
				}
				if err := e.encode(item); err != nil {
					return err
				}
			}
			e.buf.WriteByte(']')
			return nil
		})
	case map[string]any:
		if x == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.enter(reflect.ValueOf(x), func() error {
			e.buf.WriteByte('{')
			for i, k := range slices.Sorted(maps.Keys(x)) {
				if i > 0 {
					e.buf.WriteByte(',')
				}
				if err := e.leaf(k); err != nil {
					return err
				}
				e.buf.WriteByte(':')
				if err := e.encode(x[k]); err != nil {
					return err
				}
			}
			e.buf.WriteByte('}')
			return nil
		})
	default:
		return e.leaf(v)
	}
}

// enter 把容器压入递归路径，同一容器再次出现即为环
func (e *encoder) enter(rv reflect.Value, fn func() error) error {
	k := visit{ptr: rv.Pointer(), len: rv.Len()}
	if _, ok := e.path[k]; ok {
		return &json.UnsupportedValueError{Value: rv, Str: fmt.Sprintf("encountered a cycle via %s", rv.Type())}
	}
	e.path[k] = struct{}{}
	defer delete(e.path, k)
	return fn()
}

// leaf 交给 encoding/json 编码，并去掉 Encoder 追加的换行
func (e *encoder) leaf(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return err
	}
	e.buf.Truncate(e.buf.Len() - 1)
	return nil
}

// Decoder 从输入流中逐个解码 JSON 事件，对象解码为 Object 以保留 key 顺序，
// 数字解码为 float64，数组为 []any。
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Decode 解码下一个事件，输入结束时返回 io.EOF
func (d *Decoder) Decode() (any, error) {
	v, err := d.value()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return v, nil
}

func (d *Decoder) value() (any, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := Object{}
		for d.dec.More() {
			keyTok, err := d.dec.Token()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T, not string", keyTok)
			}
			val, err := d.value()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			// 重复 key：保留首次出现的位置，取最后一次的值
			obj.Set(key, val)
		}
		if _, err := d.dec.Token(); err != nil {
			return nil, unexpectedEOF(err)
		}
		return obj, nil
	case '[':
		arr := []any{}
		for d.dec.More() {
			val, err := d.value()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			arr = append(arr, val)
		}
		if _, err := d.dec.Token(); err != nil {
			return nil, unexpectedEOF(err)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// unexpectedEOF 值内部遇到的 EOF 不能当作流结束
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// DecodeEvent 解码单个 JSON 事件，之后不允许再有其它内容
func DecodeEvent(data []byte) (any, error) {
	d := NewDecoder(bytes.NewReader(data))
	v, err := d.Decode()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidEvent)
	}
	if err != nil {
		return nil, err
	}
	if _, err := d.dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after event", ErrInvalidEvent)
	}
	return v, nil
}
