package endpoint

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit bounds the byte length of any decoded field value unless
// overridden with a maxLength tag.
var defaultFieldLimit = 16 * 1024 // 16KB

// Unmarshal populates dst (a non-nil pointer to a struct) from the request.
//
// Sources and their struct tags:
//   - `path:"name"`   reads r.PathValue
//   - `query:"name"`  reads r.URL.Query
//   - `form:"name"`   reads r.Form (ParseForm is called as needed)
//   - `cookie:"name"` reads r.Cookie values
//
// Tag grammar: `source:"name[,flag]"`. The name defaults to the lowercased
// field name; "-" skips the field. The only flag is "base64url", valid for
// []byte fields. `maxLength:"n"` caps the raw value size (default 16KB,
// "0" for unlimited). When several source tags are present, precedence is
// path, query, form, cookie; the first source that yields a value wins.
// Untagged non-struct fields default to path-then-query under the lowercased
// field name. Untagged struct fields are recursed into, which supports
// embedding shared parameter structs.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}

	query := url.Values{}
	if r.URL != nil {
		query = r.URL.Query()
	}
	if err := r.ParseForm(); err != nil {
		return Error(http.StatusBadRequest, "", fmt.Errorf("parse form: %w", err))
	}

	return unmarshalStruct(r, root, query, r.PostForm)
}

type sourceTag struct {
	Source    string
	Name      string
	Base64URL bool
	MaxLength int
}

func unmarshalStruct(r *http.Request, structVal reflect.Value, query, form url.Values) error {
	t := structVal.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" { // unexported
			continue
		}
		fv := structVal.Field(i)
		defaultName := strings.ToLower(sf.Name)

		tags, skip, err := parseTags(sf, defaultName)
		if err != nil {
			return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}
		if skip {
			continue
		}

		// Untagged struct fields (embedded or named) are containers; recurse.
		if len(tags) == 0 {
			target := fv
			if target.Kind() == reflect.Pointer {
				if target.IsNil() && target.Type().Elem().Kind() == reflect.Struct {
					target.Set(reflect.New(target.Type().Elem()))
				}
				if !target.IsNil() {
					target = target.Elem()
				}
			}
			if target.IsValid() && target.Kind() == reflect.Struct && !implementsTextUnmarshaler(target) {
				if err := unmarshalStruct(r, target, query, form); err != nil {
					return err
				}
				continue
			}
			// Plain untagged field: try path then query.
			tags = []sourceTag{
				{Source: "path", Name: defaultName, MaxLength: defaultFieldLimit},
				{Source: "query", Name: defaultName, MaxLength: defaultFieldLimit},
			}
		}

		for _, tag := range tags {
			raw, ok := fetchValues(r, tag, query, form)
			if !ok {
				continue
			}
			for _, val := range raw {
				if tag.MaxLength > 0 && len(val) > tag.MaxLength {
					return Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: value exceeds max length %d", tag.Source, tag.Name, sf.Name, tag.MaxLength))
				}
			}
			if err := setField(fv, raw, tag.Base64URL); err != nil {
				return Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: %w", tag.Source, tag.Name, sf.Name, err))
			}
			break
		}
	}
	return nil
}

// parseTags returns the source tags on sf in precedence order.
// skip is true when any source is tagged "-".
func parseTags(sf reflect.StructField, defaultName string) (tags []sourceTag, skip bool, err error) {
	limit := defaultFieldLimit
	if val, has := sf.Tag.Lookup("maxLength"); has {
		val = strings.TrimSpace(val)
		if val == "" {
			limit = 0
		} else {
			n, perr := strconv.Atoi(val)
			if perr != nil || n < 0 {
				return nil, false, fmt.Errorf("maxLength: invalid value %q", val)
			}
			limit = n
		}
	}

	for _, source := range []string{"path", "query", "form", "cookie"} {
		val, has := sf.Tag.Lookup(source)
		if !has {
			continue
		}
		parts := strings.Split(val, ",")
		name := strings.TrimSpace(parts[0])
		if name == "-" {
			return nil, true, nil
		}
		if name == "" {
			name = defaultName
		}
		tag := sourceTag{Source: source, Name: name, MaxLength: limit}
		for _, p := range parts[1:] {
			switch flag := strings.ToLower(strings.TrimSpace(p)); flag {
			case "":
			case "base64url":
				tag.Base64URL = true
			default:
				return nil, false, fmt.Errorf("unknown %s tag flag %q", source, flag)
			}
		}
		tags = append(tags, tag)
	}
	return tags, false, nil
}

func fetchValues(r *http.Request, tag sourceTag, query, form url.Values) ([][]byte, bool) {
	switch tag.Source {
	case "path":
		v := r.PathValue(tag.Name)
		if v == "" {
			return nil, false
		}
		return [][]byte{[]byte(v)}, true
	case "query":
		vs, present := query[tag.Name]
		if !present || len(vs) == 0 {
			return nil, false
		}
		return toBytes(vs), true
	case "form":
		vs, present := form[tag.Name]
		if !present || len(vs) == 0 {
			return nil, false
		}
		return toBytes(vs), true
	case "cookie":
		var out [][]byte
		for _, ck := range r.Cookies() {
			if ck.Name == tag.Name {
				out = append(out, []byte(ck.Value))
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}

func toBytes(vs []string) [][]byte {
	out := make([][]byte, len(vs))
	for i, s := range vs {
		out[i] = []byte(s)
	}
	return out
}

func implementsTextUnmarshaler(v reflect.Value) bool {
	tu := reflect.TypeFor[encoding.TextUnmarshaler]()
	if !v.IsValid() {
		return false
	}
	if v.CanAddr() && v.Addr().Type().Implements(tu) {
		return true
	}
	return v.Type().Implements(tu)
}

func setField(v reflect.Value, values [][]byte, b64url bool) error {
	if len(values) == 0 {
		return nil
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}

	isByteSlice := v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
	if v.Kind() == reflect.Slice && !isByteSlice {
		// Multi-value field: one element per matching value.
		slice := reflect.MakeSlice(v.Type(), 0, len(values))
		for _, val := range values {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := setScalar(elem, val, b64url); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		v.Set(slice)
		return nil
	}
	return setScalar(v, values[0], b64url)
}

func setScalar(v reflect.Value, b []byte, b64url bool) error {
	if !v.CanSet() || !v.CanAddr() {
		return errors.New("field is not settable")
	}

	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		if !b64url {
			v.SetBytes(b)
			return nil
		}
		src := bytes.TrimSpace(b)
		out := make([]byte, base64.RawURLEncoding.DecodedLen(len(src)))
		n, err := base64.RawURLEncoding.Decode(out, src)
		if err != nil {
			return err
		}
		v.SetBytes(out[:n])
		return nil
	}
	if b64url {
		return fmt.Errorf("base64url decoding requires a []byte field, got %s", v.Type())
	}

	if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText(b)
	}

	s := string(b)
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		bb, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(bb)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
