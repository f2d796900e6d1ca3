package draw

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// DrawType tags a draw-list entry with the command array it came from.
type DrawType uint32

const (
	DrawTypeIndexed DrawType = iota
	DrawTypeNonIndexed
)

// NoJointBuffer is the JointBufferID of a draw without a per-object joint buffer.
const NoJointBuffer = math.MaxUint32

// DrawIndexedIndirect is the GPU layout of an indexed indirect draw command.
// Only InstanceCount and FirstInstance change per frame.
// Size: 20 bytes (5 × u32).
type DrawIndexedIndirect struct {
	IndexCount    uint32 // offset 0: number of indices per instance
	InstanceCount uint32 // offset 4: 1 when the draw survived culling, else 0
	FirstIndex    uint32 // offset 8: offset into the index buffer
	BaseVertex    int32  // offset 12: added to each index value (signed)
	FirstInstance uint32 // offset 16: index into the per-instance array
}

// Size returns the size of the DrawIndexedIndirect struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (20)
func (g *DrawIndexedIndirect) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the command into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 20-byte buffer
func (g *DrawIndexedIndirect) Marshal() []byte {
	buf := make([]byte, 20)
	g.put(buf)
	return buf
}

func (g *DrawIndexedIndirect) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], g.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.FirstIndex)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(g.BaseVertex))
	binary.LittleEndian.PutUint32(buf[16:20], g.FirstInstance)
}

// DrawIndirect is the GPU layout of a non-indexed indirect draw command.
// Size: 16 bytes (4 × u32).
type DrawIndirect struct {
	VertexCount   uint32 // offset 0
	InstanceCount uint32 // offset 4
	FirstVertex   uint32 // offset 8
	FirstInstance uint32 // offset 12
}

// Size returns the size of the DrawIndirect struct in bytes.
func (g *DrawIndirect) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the command into a byte buffer suitable for GPU upload.
func (g *DrawIndirect) Marshal() []byte {
	buf := make([]byte, 16)
	g.put(buf)
	return buf
}

func (g *DrawIndirect) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], g.VertexCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.FirstVertex)
	binary.LittleEndian.PutUint32(buf[12:16], g.FirstInstance)
}

// PerInstanceDataSource is the WGSL declaration matching PerInstanceData.
const PerInstanceDataSource = `struct PerInstanceData {
    transform: mat4x4<f32>,
    transformation_slot: u32,
    material_id: u32,
    camera_id: u32,
    skeleton_id: u32,
    animation_state_id: u32,
    joint_buffer_id: u32,
    _pad0: u32,
    _pad1: u32,
};
`

// PerInstanceData is the per-(view, draw) record read by the vertex stage, stored
// at the command's FirstInstance.
// Size: 96 bytes (std430 aligned).
type PerInstanceData struct {
	Transform          [16]float32 // offset 0, size 64 (mat4x4<f32>)
	TransformationSlot uint32      // offset 64
	MaterialID         uint32      // offset 68
	CameraID           uint32      // offset 72
	SkeletonID         uint32      // offset 76
	AnimationStateID   uint32      // offset 80
	JointBufferID      uint32      // offset 84
	_pad               [2]uint32   // offset 88, pad to 96
}

// Size returns the size of the PerInstanceData struct in bytes.
func (g *PerInstanceData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the record into a byte buffer suitable for GPU upload.
func (g *PerInstanceData) Marshal() []byte {
	buf := make([]byte, 96)
	g.put(buf)
	return buf
}

func (g *PerInstanceData) put(buf []byte) {
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Transform[i]))
	}
	binary.LittleEndian.PutUint32(buf[64:68], g.TransformationSlot)
	binary.LittleEndian.PutUint32(buf[68:72], g.MaterialID)
	binary.LittleEndian.PutUint32(buf[72:76], g.CameraID)
	binary.LittleEndian.PutUint32(buf[76:80], g.SkeletonID)
	binary.LittleEndian.PutUint32(buf[80:84], g.AnimationStateID)
	binary.LittleEndian.PutUint32(buf[84:88], g.JointBufferID)
	binary.LittleEndian.PutUint64(buf[88:96], 0) // _pad
}

// SceneDrawListEntrySource is the WGSL declaration of SceneDrawListEntry.
const SceneDrawListEntrySource = `struct SceneDrawListEntry {
    draw_index: u32,
    mesh_id: u32,
    material_id: u32,
    object_id: u32,
    draw_type: u32,
};
`

// SceneDrawListEntry is one diagnostic record of an emitted draw.
// Size: 20 bytes (5 × u32).
type SceneDrawListEntry struct {
	DrawIndex  uint32
	MeshID     uint32
	MaterialID uint32
	ObjectID   uint32
	DrawType   DrawType
}

// Size returns the size of the SceneDrawListEntry struct in bytes.
func (g *SceneDrawListEntry) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the entry into a byte buffer.
func (g *SceneDrawListEntry) Marshal() []byte {
	buf := make([]byte, 20)
	g.put(buf)
	return buf
}

func (g *SceneDrawListEntry) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], g.DrawIndex)
	binary.LittleEndian.PutUint32(buf[4:8], g.MeshID)
	binary.LittleEndian.PutUint32(buf[8:12], g.MaterialID)
	binary.LittleEndian.PutUint32(buf[12:16], g.ObjectID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(g.DrawType))
}

// MarshalIndexed serializes a command array into one contiguous upload buffer.
//
// Parameters:
//   - cmds: the commands
//
// Returns:
//   - []byte: len(cmds) * 20 bytes
func MarshalIndexed(cmds []DrawIndexedIndirect) []byte {
	buf := make([]byte, len(cmds)*20)
	for i := range cmds {
		cmds[i].put(buf[i*20:])
	}
	return buf
}

// MarshalNonIndexed serializes a command array into one contiguous upload buffer.
func MarshalNonIndexed(cmds []DrawIndirect) []byte {
	buf := make([]byte, len(cmds)*16)
	for i := range cmds {
		cmds[i].put(buf[i*16:])
	}
	return buf
}

// MarshalInstances serializes a per-instance array into one contiguous upload buffer.
func MarshalInstances(instances []PerInstanceData) []byte {
	buf := make([]byte, len(instances)*96)
	for i := range instances {
		instances[i].put(buf[i*96:])
	}
	return buf
}

// MarshalDrawList serializes draw-list entries into one contiguous buffer.
func MarshalDrawList(entries []SceneDrawListEntry) []byte {
	buf := make([]byte, len(entries)*20)
	for i := range entries {
		entries[i].put(buf[i*20:])
	}
	return buf
}
