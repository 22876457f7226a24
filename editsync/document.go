package editsync

import (
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// the editable entity synchronized with the remote store.
// `Data` is the arbitrarily nested payload (resources, entities, screens,
// milestones). `Version` is assigned by the store on each replace.
type Document struct {
	DocumentId Id            `json:"document_id"`
	Version    int64         `json:"version"`
	Data       *DocumentData `json:"data"`
}

// deep copy. a snapshot must never change after it is queued.
func (self *Document) Snapshot() *Document {
	return &Document{
		DocumentId: self.DocumentId,
		Version:    self.Version,
		Data:       self.Data.Copy(),
	}
}

// DocumentData wraps `structpb.Struct` so that the nested payload
// round-trips as plain json on the wire (via protojson) and deep-copies
// via `proto.Clone`.
type DocumentData struct {
	*structpb.Struct
}

func NewDocumentData(values map[string]any) (*DocumentData, error) {
	s, err := structpb.NewStruct(values)
	if err != nil {
		return nil, err
	}
	return &DocumentData{s}, nil
}

func RequireDocumentData(values map[string]any) *DocumentData {
	data, err := NewDocumentData(values)
	if err != nil {
		panic(err)
	}
	return data
}

func (self *DocumentData) Copy() *DocumentData {
	return &DocumentData{proto.Clone(self.Struct).(*structpb.Struct)}
}

func (self *DocumentData) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(self.Struct)
}

func (self *DocumentData) UnmarshalJSON(src []byte) error {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(src, s); err != nil {
		return err
	}
	self.Struct = s
	return nil
}

// field paths are dot separated. a segment that parses as an int indexes
// into a list, e.g. "resources.2.base_url"

func (self *DocumentData) GetField(path string) (*structpb.Value, bool) {
	current := structpb.NewStructValue(self.Struct)
	for _, segment := range strings.Split(path, ".") {
		if s := current.GetStructValue(); s != nil {
			v, ok := s.Fields[segment]
			if !ok {
				return nil, false
			}
			current = v
		} else if l := current.GetListValue(); l != nil {
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || len(l.Values) <= i {
				return nil, false
			}
			current = l.Values[i]
		} else {
			return nil, false
		}
	}
	return current, true
}

func (self *DocumentData) SetField(path string, value *structpb.Value) error {
	container, last, err := self.resolveParent(path, true)
	if err != nil {
		return err
	}
	switch c := container.(type) {
	case *structpb.Struct:
		if c.Fields == nil {
			c.Fields = map[string]*structpb.Value{}
		}
		c.Fields[last] = value
		return nil
	case *structpb.ListValue:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || len(c.Values) <= i {
			return fmt.Errorf("invalid list index %s in path %s", last, path)
		}
		c.Values[i] = value
		return nil
	default:
		return fmt.Errorf("path %s does not resolve to a container", path)
	}
}

func (self *DocumentData) DeleteField(path string) error {
	container, last, err := self.resolveParent(path, false)
	if err != nil {
		return err
	}
	switch c := container.(type) {
	case *structpb.Struct:
		if _, ok := c.Fields[last]; !ok {
			return fmt.Errorf("path %s not present", path)
		}
		delete(c.Fields, last)
		return nil
	case *structpb.ListValue:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || len(c.Values) <= i {
			return fmt.Errorf("invalid list index %s in path %s", last, path)
		}
		c.Values = append(c.Values[:i], c.Values[i+1:]...)
		return nil
	default:
		return fmt.Errorf("path %s does not resolve to a container", path)
	}
}

// appends to the list at `path`, creating the list if not present
func (self *DocumentData) AppendField(path string, value *structpb.Value) error {
	if existing, ok := self.GetField(path); ok {
		l := existing.GetListValue()
		if l == nil {
			return fmt.Errorf("path %s is not a list", path)
		}
		l.Values = append(l.Values, value)
		return nil
	}
	l := &structpb.ListValue{Values: []*structpb.Value{value}}
	return self.SetField(path, structpb.NewListValue(l))
}

// walks all but the last segment, returning the parent container and the
// last segment. missing intermediate struct fields are created when
// `create` is set.
func (self *DocumentData) resolveParent(path string, create bool) (any, string, error) {
	segments := strings.Split(path, ".")
	last := segments[len(segments)-1]

	var container any = self.Struct
	for _, segment := range segments[:len(segments)-1] {
		switch c := container.(type) {
		case *structpb.Struct:
			if c.Fields == nil {
				c.Fields = map[string]*structpb.Value{}
			}
			v, ok := c.Fields[segment]
			if !ok {
				if !create {
					return nil, "", fmt.Errorf("path %s not present", path)
				}
				v = structpb.NewStructValue(&structpb.Struct{
					Fields: map[string]*structpb.Value{},
				})
				c.Fields[segment] = v
			}
			if s := v.GetStructValue(); s != nil {
				container = s
			} else if l := v.GetListValue(); l != nil {
				container = l
			} else {
				return nil, "", fmt.Errorf("path %s blocked by scalar at %s", path, segment)
			}
		case *structpb.ListValue:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || len(c.Values) <= i {
				return nil, "", fmt.Errorf("invalid list index %s in path %s", segment, path)
			}
			v := c.Values[i]
			if s := v.GetStructValue(); s != nil {
				container = s
			} else if l := v.GetListValue(); l != nil {
				container = l
			} else {
				return nil, "", fmt.Errorf("path %s blocked by scalar at %s", path, segment)
			}
		}
	}
	return container, last, nil
}

func FieldValue(value any) (*structpb.Value, error) {
	return structpb.NewValue(value)
}

func RequireFieldValue(value any) *structpb.Value {
	v, err := FieldValue(value)
	if err != nil {
		panic(err)
	}
	return v
}

type EditOp = string

const (
	EditOpSet    EditOp = "set"
	EditOpDelete EditOp = "delete"
	EditOpAppend EditOp = "append"
)

// edit metadata carried with each queued mutation.
// user and session ids are stamped by the sync when the session auth
// is known.
type EditDescription struct {
	MutationId Id     `json:"mutation_id"`
	Op         EditOp `json:"op"`
	Path       string `json:"path"`
	Operand    string `json:"operand,omitempty"`
	UserId     Id     `json:"user_id,omitempty"`
	SessionId  Id     `json:"session_id,omitempty"`
}

// a pure transformation of the display payload. the mutator may modify
// `display` in place and return it, or return a replacement. queued
// snapshots are deep copies, so in-place edits never reach the queue
// retroactively.
type EditFunction func(display *DocumentData) (*DocumentData, error)

func SetFieldEdit(path string, value any) (EditFunction, *EditDescription, error) {
	v, err := FieldValue(value)
	if err != nil {
		return nil, nil, err
	}
	edit := func(display *DocumentData) (*DocumentData, error) {
		if err := display.SetField(path, v); err != nil {
			return nil, err
		}
		return display, nil
	}
	description := &EditDescription{
		MutationId: NewId(),
		Op:         EditOpSet,
		Path:       path,
		Operand:    fmt.Sprintf("%v", value),
	}
	return edit, description, nil
}

func DeleteFieldEdit(path string) (EditFunction, *EditDescription) {
	edit := func(display *DocumentData) (*DocumentData, error) {
		if err := display.DeleteField(path); err != nil {
			return nil, err
		}
		return display, nil
	}
	description := &EditDescription{
		MutationId: NewId(),
		Op:         EditOpDelete,
		Path:       path,
	}
	return edit, description
}

func AppendFieldEdit(path string, value any) (EditFunction, *EditDescription, error) {
	v, err := FieldValue(value)
	if err != nil {
		return nil, nil, err
	}
	edit := func(display *DocumentData) (*DocumentData, error) {
		if err := display.AppendField(path, v); err != nil {
			return nil, err
		}
		return display, nil
	}
	description := &EditDescription{
		MutationId: NewId(),
		Op:         EditOpAppend,
		Path:       path,
		Operand:    fmt.Sprintf("%v", value),
	}
	return edit, description, nil
}
