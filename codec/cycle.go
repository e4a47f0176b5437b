package codec

import (
	"fmt"
	"reflect"
	"unsafe"
)

type visit struct {
	ptr unsafe.Pointer
	typ reflect.Type
	len int
}

// checkAcyclic walks v and fails with ErrCycle when a pointer, map or slice
// is reached again while still being visited.
func checkAcyclic(v any) error {
	return walk(reflect.ValueOf(v), make(map[visit]struct{}))
}

func walk(v reflect.Value, onPath map[visit]struct{}) error {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
		k := visit{ptr: v.UnsafePointer(), typ: v.Type()}
		if v.Kind() == reflect.Slice {
			k.len = v.Len()
		}
		if _, seen := onPath[k]; seen {
			return fmt.Errorf("%w through %s", ErrCycle, v.Type())
		}
		onPath[k] = struct{}{}
		defer delete(onPath, k)
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return walk(v.Elem(), onPath)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := walk(v.Field(i), onPath); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := walk(iter.Value(), onPath); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i), onPath); err != nil {
				return err
			}
		}
	}
	return nil
}
