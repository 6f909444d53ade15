package messagev1

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var marshalOptions = proto.MarshalOptions{Deterministic: true}

// Marshal encodes m with the protobuf runtime.
func Marshal(m Message) ([]byte, error) {
	dm := dynamicpb.NewMessage(descriptorOf(m.messageName()))
	m.fill(fields{dm})
	return marshalOptions.Marshal(dm)
}

// Unmarshal decodes b into m. Unknown fields are ignored.
func Unmarshal(b []byte, m Message) error {
	dm := dynamicpb.NewMessage(descriptorOf(m.messageName()))
	if err := proto.Unmarshal(b, dm); err != nil {
		return fmt.Errorf("messagev1: %s: %w", m.messageName(), err)
	}
	m.load(fields{dm})
	return nil
}

// Codec is a gRPC codec for MessageApi types. Anything else that is a
// proto.Message, such as the standard health service, goes through proto.
// It keeps the "proto" name so the content type stays application/grpc+proto.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case Message:
		return Marshal(m)
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("messagev1: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case Message:
		return Unmarshal(data, m)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("messagev1: cannot unmarshal into %T", v)
	}
}

func (Codec) Name() string { return "proto" }

// fields reads and writes one dynamic message by field name. Zero scalars
// are left unset, which is how proto3 encodes them anyway.
type fields struct {
	m protoreflect.Message
}

func (f fields) fd(name protoreflect.Name) protoreflect.FieldDescriptor {
	fd := f.m.Descriptor().Fields().ByName(name)
	if fd == nil {
		panic(fmt.Sprintf("messagev1: %s has no field %s", f.m.Descriptor().Name(), name))
	}
	return fd
}

func (f fields) has(name protoreflect.Name) bool { return f.m.Has(f.fd(name)) }

func (f fields) setString(name protoreflect.Name, v string) {
	if v != "" {
		f.m.Set(f.fd(name), protoreflect.ValueOfString(v))
	}
}

func (f fields) setUint(name protoreflect.Name, v uint64) {
	if v == 0 {
		return
	}
	fd := f.fd(name)
	if fd.Kind() == protoreflect.Uint32Kind {
		f.m.Set(fd, protoreflect.ValueOfUint32(uint32(v)))
		return
	}
	f.m.Set(fd, protoreflect.ValueOfUint64(v))
}

func (f fields) setBytes(name protoreflect.Name, v []byte) {
	if len(v) > 0 {
		f.m.Set(f.fd(name), protoreflect.ValueOfBytes(v))
	}
}

func (f fields) setEnum(name protoreflect.Name, v int32) {
	if v != 0 {
		f.m.Set(f.fd(name), protoreflect.ValueOfEnum(protoreflect.EnumNumber(v)))
	}
}

func (f fields) setMessage(name protoreflect.Name, v Message) {
	fd := f.fd(name)
	child := f.m.NewField(fd).Message()
	v.fill(fields{child})
	f.m.Set(fd, protoreflect.ValueOfMessage(child))
}

func (f fields) appendString(name protoreflect.Name, v string) {
	f.m.Mutable(f.fd(name)).List().Append(protoreflect.ValueOfString(v))
}

func (f fields) appendMessage(name protoreflect.Name, v Message) {
	l := f.m.Mutable(f.fd(name)).List()
	el := l.NewElement()
	v.fill(fields{el.Message()})
	l.Append(el)
}

func (f fields) getString(name protoreflect.Name) string { return f.m.Get(f.fd(name)).String() }
func (f fields) getUint(name protoreflect.Name) uint64   { return f.m.Get(f.fd(name)).Uint() }
func (f fields) getEnum(name protoreflect.Name) int32    { return int32(f.m.Get(f.fd(name)).Enum()) }

func (f fields) getBytes(name protoreflect.Name) []byte {
	b := f.m.Get(f.fd(name)).Bytes()
	if len(b) == 0 {
		return nil
	}
	return b
}

func (f fields) getStrings(name protoreflect.Name) []string {
	l := f.m.Get(f.fd(name)).List()
	if l.Len() == 0 {
		return nil
	}
	out := make([]string, l.Len())
	for i := range out {
		out[i] = l.Get(i).String()
	}
	return out
}

func (f fields) loadMessage(name protoreflect.Name, v Message) {
	v.load(fields{f.m.Get(f.fd(name)).Message()})
}

func (f fields) eachMessage(name protoreflect.Name, fn func(fields)) {
	l := f.m.Get(f.fd(name)).List()
	for i := 0; i < l.Len(); i++ {
		fn(fields{l.Get(i).Message()})
	}
}
