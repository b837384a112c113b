package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/go-ini/ini"
)

var (
	durationType    = reflect.TypeOf(time.Duration(0))
	addressType     = reflect.TypeOf((*mail.Address)(nil))
	addressListType = reflect.TypeOf([]*mail.Address(nil))
	sectionType     = reflect.TypeOf((*ini.Section)(nil))
	keyType         = reflect.TypeOf((*ini.Key)(nil))
)

// mapSection fills the fields of the struct pointed to by v with the keys of
// s named by their ini tag. Missing keys take the value of the default tag,
// if any. A parse tag names a method of v with the signature
// func(*ini.Section, *ini.Key) (T, error) which converts the key instead of
// the field type.
func mapSection(s *ini.Section, v any) error {
	ptr := reflect.ValueOf(v)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("mapSection: %T is not a pointer to a struct", v))
	}
	val := ptr.Elem()
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name := field.Tag.Get("ini")
		if name == "" || name == "-" {
			continue
		}
		key, err := s.GetKey(name)
		if err != nil {
			def, ok := field.Tag.Lookup("default")
			if !ok {
				continue
			}
			key, _ = s.NewKey(name, def)
		}
		var value reflect.Value
		if method := field.Tag.Get("parse"); method != "" {
			value, err = callParser(ptr, method, s, key)
		} else {
			value, err = convertKey(key, field.Type)
		}
		if err != nil {
			return fmt.Errorf("[%s].%s: %w", s.Name(), name, err)
		}
		val.Field(i).Set(value.Convert(field.Type))
	}
	return nil
}

func callParser(ptr reflect.Value, name string, s *ini.Section, key *ini.Key) (reflect.Value, error) {
	method := ptr.MethodByName(name)
	if !method.IsValid() {
		panic(fmt.Sprintf("%s.%s: no such method", ptr.Type(), name))
	}
	mt := method.Type()
	if mt.NumIn() != 2 || mt.In(0) != sectionType || mt.In(1) != keyType ||
		mt.NumOut() != 2 {
		panic(fmt.Sprintf("%s.%s: expected func(*ini.Section, *ini.Key) (T, error)",
			ptr.Type(), name))
	}
	out := method.Call([]reflect.Value{reflect.ValueOf(s), reflect.ValueOf(key)})
	if err, _ := out[1].Interface().(error); err != nil {
		return reflect.Value{}, err
	}
	return out[0], nil
}

func convertKey(key *ini.Key, t reflect.Type) (reflect.Value, error) {
	var (
		res any
		err error
	)
	switch {
	case t == durationType:
		// key.Int64 would accept a bare number of nanoseconds
		res, err = key.Duration()
	case t == addressType:
		res, err = mail.ParseAddress(key.String())
	case t == addressListType:
		if key.String() == "" {
			return reflect.Zero(t), nil
		}
		res, err = mail.ParseAddressList(key.String())
	case t.Kind() == reflect.String:
		res = key.String()
	case t.Kind() == reflect.Bool:
		res, err = key.Bool()
	case t.Kind() == reflect.Int:
		res, err = key.Int()
	default:
		panic(fmt.Sprintf("unsupported config type %s", t))
	}
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(res), nil
}
