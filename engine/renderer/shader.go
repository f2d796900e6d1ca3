package renderer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/draw"
	"github.com/cogentcore/webgpu/wgpu"
)

// annotationPrefix marks a preprocessor directive inside a WGSL line comment.
const annotationPrefix = "//@oxy:"

var ErrBadAnnotation = errors.New("renderer: malformed shader annotation")

// Binding is one @group/@binding declaration generated by ProcessShader.
type Binding struct {
	Group   int
	Binding int
	Name    string
	// Target is the buffer of Targets the binding reads, by type key.
	Target string
}

type structEntry struct {
	source   string
	typeName string
}

// Type keys usable in annotations.
const (
	TypeCamera    = "camera"
	TypeInstance  = "instance"
	TypeDrawEntry = "draw_entry"
)

var structRegistry = map[string]structEntry{
	TypeCamera:    {source: camera.GPUCameraUniformSource, typeName: "CameraUniform"},
	TypeInstance:  {source: draw.PerInstanceDataSource, typeName: "PerInstanceData"},
	TypeDrawEntry: {source: draw.SceneDrawListEntrySource, typeName: "SceneDrawListEntry"},
}

var addressSpaces = map[string]string{
	"read":       "var<storage, read>",
	"read_write": "var<storage, read_write>",
}

// VertexPrelude declares the camera and per-instance buffers in the layout
// Targets uploads them. Vertex shaders index instances with instance_index, which
// the indirect command's first_instance already offsets.
const VertexPrelude = `//@oxy:include camera
//@oxy:include instance
//@oxy:group 0 0 read cameras array<camera>
//@oxy:group 0 1 read instances array<instance>
`

// ProcessShader expands annotations in WGSL source.
//
//	//@oxy:include <type>                          injects the struct declaration
//	//@oxy:group <group> <binding> <space> <name> <type>  declares a storage binding
//
// <type> may be wrapped in array<...>.
//
// Parameters:
//   - source: WGSL source with annotations
//
// Returns:
//   - string: the expanded source
//   - []Binding: the generated bindings in source order
//   - error: ErrBadAnnotation for unknown directives, types or address spaces
func ProcessShader(source string) (string, []Binding, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	var bindings []Binding

	for i, line := range lines {
		directive, ok := strings.CutPrefix(strings.TrimSpace(line), annotationPrefix)
		if !ok {
			out = append(out, line)
			continue
		}
		fields := strings.Fields(directive)
		if len(fields) == 0 {
			return "", nil, fmt.Errorf("line %d: empty directive: %w", i+1, ErrBadAnnotation)
		}

		switch fields[0] {
		case "include":
			if len(fields) != 2 {
				return "", nil, fmt.Errorf("line %d: include takes one type: %w", i+1, ErrBadAnnotation)
			}
			entry, ok := structRegistry[fields[1]]
			if !ok {
				return "", nil, fmt.Errorf("line %d: unknown type %q: %w", i+1, fields[1], ErrBadAnnotation)
			}
			out = append(out, entry.source)
		case "group":
			if len(fields) != 6 {
				return "", nil, fmt.Errorf("line %d: group takes five arguments: %w", i+1, ErrBadAnnotation)
			}
			group, errG := strconv.Atoi(fields[1])
			binding, errB := strconv.Atoi(fields[2])
			if errG != nil || errB != nil {
				return "", nil, fmt.Errorf("line %d: group and binding must be integers: %w", i+1, ErrBadAnnotation)
			}
			space, ok := addressSpaces[fields[3]]
			if !ok {
				return "", nil, fmt.Errorf("line %d: unknown address space %q: %w", i+1, fields[3], ErrBadAnnotation)
			}
			key := fields[5]
			inner, isArray := strings.CutPrefix(key, "array<")
			if isArray {
				key = strings.TrimSuffix(inner, ">")
			}
			entry, ok := structRegistry[key]
			if !ok {
				return "", nil, fmt.Errorf("line %d: unknown type %q: %w", i+1, key, ErrBadAnnotation)
			}
			wgslType := entry.typeName
			if isArray {
				wgslType = "array<" + wgslType + ">"
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", group, binding, space, fields[4], wgslType))
			bindings = append(bindings, Binding{Group: group, Binding: binding, Name: fields[4], Target: key})
		default:
			return "", nil, fmt.Errorf("line %d: unknown directive %q: %w", i+1, fields[0], ErrBadAnnotation)
		}
	}
	return strings.Join(out, "\n"), bindings, nil
}

// Buffer returns the target buffer bound for a type key, or nil.
func (t *Targets) Buffer(key string) *wgpu.Buffer {
	switch key {
	case TypeCamera:
		return t.Cameras
	case TypeInstance:
		return t.Instances
	case TypeDrawEntry:
		return t.DrawList
	}
	return nil
}
