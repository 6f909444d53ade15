package messagev1

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/emicklei/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

//go:embed message_api.proto
var schemaSource []byte

// File is the compiled MessageApi schema.
var File = mustCompile("message_api/v1/message_api.proto", schemaSource)

var scalarTypes = map[string]descriptorpb.FieldDescriptorProto_Type{
	"string": descriptorpb.FieldDescriptorProto_TYPE_STRING,
	"bytes":  descriptorpb.FieldDescriptorProto_TYPE_BYTES,
	"uint64": descriptorpb.FieldDescriptorProto_TYPE_UINT64,
	"uint32": descriptorpb.FieldDescriptorProto_TYPE_UINT32,
	"int64":  descriptorpb.FieldDescriptorProto_TYPE_INT64,
	"int32":  descriptorpb.FieldDescriptorProto_TYPE_INT32,
	"bool":   descriptorpb.FieldDescriptorProto_TYPE_BOOL,
}

func mustCompile(path string, src []byte) protoreflect.FileDescriptor {
	fd, err := compile(path, src)
	if err != nil {
		panic(fmt.Sprintf("messagev1: %v", err))
	}
	return fd
}

// compile parses a single self-contained proto3 file and builds its
// descriptor. Imports, options, maps and nested declarations are not used
// by the schema and are rejected.
func compile(path string, src []byte) (protoreflect.FileDescriptor, error) {
	def, err := proto.NewParser(bytes.NewReader(src)).Parse()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	fdp := &descriptorpb.FileDescriptorProto{Name: &path, Syntax: strptr("proto3")}

	enums := map[string]bool{}
	var msgs []*proto.Message
	var unsupported error
	proto.Walk(def,
		proto.WithPackage(func(p *proto.Package) { fdp.Package = strptr(p.Name) }),
		proto.WithImport(func(i *proto.Import) { unsupported = fmt.Errorf("import %q", i.Filename) }),
		proto.WithEnum(func(e *proto.Enum) {
			if _, top := e.Parent.(*proto.Proto); !top {
				unsupported = fmt.Errorf("nested enum %s", e.Name)
				return
			}
			enums[e.Name] = true
			ed := &descriptorpb.EnumDescriptorProto{Name: strptr(e.Name)}
			for _, el := range e.Elements {
				if v, ok := el.(*proto.EnumField); ok {
					ed.Value = append(ed.Value, &descriptorpb.EnumValueDescriptorProto{Name: strptr(v.Name), Number: int32ptr(int32(v.Integer))})
				}
			}
			fdp.EnumType = append(fdp.EnumType, ed)
		}),
		proto.WithMessage(func(m *proto.Message) {
			if _, top := m.Parent.(*proto.Proto); !top || m.IsExtend {
				unsupported = fmt.Errorf("nested or extend declaration %s", m.Name)
				return
			}
			msgs = append(msgs, m)
		}),
	)
	if unsupported != nil {
		return nil, fmt.Errorf("%s: unsupported %w", path, unsupported)
	}
	if fdp.Package == nil {
		return nil, fmt.Errorf("%s: missing package", path)
	}

	typeRef := func(name string) (descriptorpb.FieldDescriptorProto_Type, *string) {
		if t, ok := scalarTypes[name]; ok {
			return t, nil
		}
		ref := strptr("." + fdp.GetPackage() + "." + name)
		if enums[name] {
			return descriptorpb.FieldDescriptorProto_TYPE_ENUM, ref
		}
		return descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ref
	}
	field := func(f *proto.Field, repeated bool, oneof *int32) *descriptorpb.FieldDescriptorProto {
		typ, ref := typeRef(f.Type)
		label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
		if repeated {
			label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
		}
		return &descriptorpb.FieldDescriptorProto{
			Name:       strptr(f.Name),
			Number:     int32ptr(int32(f.Sequence)),
			Label:      &label,
			Type:       &typ,
			TypeName:   ref,
			OneofIndex: oneof,
		}
	}

	for _, m := range msgs {
		md := &descriptorpb.DescriptorProto{Name: strptr(m.Name)}
		for _, el := range m.Elements {
			switch v := el.(type) {
			case *proto.NormalField:
				md.Field = append(md.Field, field(v.Field, v.Repeated, nil))
			case *proto.Oneof:
				idx := int32ptr(int32(len(md.OneofDecl)))
				md.OneofDecl = append(md.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: strptr(v.Name)})
				for _, oel := range v.Elements {
					if of, ok := oel.(*proto.OneOfField); ok {
						md.Field = append(md.Field, field(of.Field, false, idx))
					}
				}
			case *proto.MapField:
				return nil, fmt.Errorf("%s: unsupported map field %s.%s", path, m.Name, v.Name)
			}
		}
		fdp.MessageType = append(fdp.MessageType, md)
	}

	proto.Walk(def, proto.WithService(func(s *proto.Service) {
		sd := &descriptorpb.ServiceDescriptorProto{Name: strptr(s.Name)}
		for _, el := range s.Elements {
			if r, ok := el.(*proto.RPC); ok {
				_, in := typeRef(r.RequestType)
				_, out := typeRef(r.ReturnsType)
				sd.Method = append(sd.Method, &descriptorpb.MethodDescriptorProto{
					Name:            strptr(r.Name),
					InputType:       in,
					OutputType:      out,
					ClientStreaming: boolptr(r.StreamsRequest),
					ServerStreaming: boolptr(r.StreamsReturns),
				})
			}
		}
		fdp.Service = append(fdp.Service, sd)
	}))

	return protodesc.NewFile(fdp, nil)
}

func descriptorOf(name protoreflect.Name) protoreflect.MessageDescriptor {
	md := File.Messages().ByName(name)
	if md == nil {
		panic(fmt.Sprintf("messagev1: no message %s in schema", name))
	}
	return md
}

func strptr(s string) *string { return &s }
func int32ptr(v int32) *int32 { return &v }
func boolptr(v bool) *bool    { return &v }
