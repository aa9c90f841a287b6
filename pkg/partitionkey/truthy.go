package partitionkey

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
)

// truthy 按 JSON 值语义判断真假：
// nil、false、0、NaN、"" 以及 nil 的指针 / map / slice 为假，其它（包括空 map、空 slice、struct）为真。
func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0 && !math.IsNaN(f)
	case Object:
		return x != nil
	}
	return truthyValue(reflect.ValueOf(v))
}

func truthyValue(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Invalid:
		return false
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.String:
		if rv.Type() == jsonNumberType {
			return truthy(json.Number(rv.String()))
		}
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return truthyValue(rv.Elem())
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

// lookupField 查找事件上名为 name 的字段：
// 支持 Object、以 string 为 key 的 map，以及按 JSON 字段名匹配的 struct（含匿名嵌入）。
func lookupField(event any, name string) (any, bool) {
	switch e := event.(type) {
	case Object:
		return e.Get(name)
	case map[string]any:
		v, ok := e[name]
		return v, ok
	}
	return lookupValue(reflect.ValueOf(event), name)
}

func lookupValue(rv reflect.Value, name string) (any, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	// *Object 解引用后是 slice，需要单独按有序对象查找
	if rv.Type() == objectType && rv.CanInterface() {
		return rv.Interface().(Object).Get(name)
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Struct:
		return lookupStructField(rv, name)
	default:
		return nil, false
	}
}

func lookupStructField(rv reflect.Value, name string) (any, bool) {
	t := rv.Type()
	var embedded []reflect.Value
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		tagName, _, _ := strings.Cut(tag, ",")

		if f.Anonymous && tagName == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			// 未导出的嵌入 struct 其导出字段同样会被 encoding/json 提升
			if ft.Kind() == reflect.Struct {
				embedded = append(embedded, rv.Field(i))
				continue
			}
		}
		if !f.IsExported() {
			continue
		}

		fieldName := tagName
		if fieldName == "" {
			fieldName = f.Name
		}
		if fieldName == name {
			return rv.Field(i).Interface(), true
		}
	}

	// 外层字段优先于嵌入字段，与 encoding/json 的提升规则一致
	for _, ev := range embedded {
		if v, ok := lookupValue(ev, name); ok {
			return v, true
		}
	}
	return nil, false
}
