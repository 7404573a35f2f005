package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-render/engine/math"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-render/engine/systems"
)

// objIndex is one corner of a face: position, texcoord and normal indices, -1 when absent.
type objIndex struct {
	v, vt, vn int
}

type objDecoder struct {
	name      string
	line      int
	positions []math.Vec3
	texcoords []math.Vec2
	normals   []math.Vec3

	vertices []metadata.Vertex3D
	indices  []uint32
	corners  map[objIndex]uint32

	missingNormals bool
}

// LoadMesh reads a Wavefront OBJ file. Only geometry is read; groups and materials are ignored.
func LoadMesh(path string) (*metadata.MeshData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return DecodeMesh(file, name)
}

/**
 * @brief Parses the OBJ subset made of v, vt, vn and f lines. Polygons are
 * fanned into triangles, identical corners share one vertex and missing
 * normals are generated from the faces.
 * @param r The OBJ text.
 * @param name The mesh name.
 */
func DecodeMesh(r io.Reader, name string) (*metadata.MeshData, error) {
	dec := &objDecoder{
		name:    name,
		corners: make(map[objIndex]uint32),
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		dec.line++
		if err := dec.parseLine(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(dec.indices) == 0 {
		return nil, fmt.Errorf("mesh '%s': no faces", name)
	}
	if dec.missingNormals {
		systems.GenerateNormals(dec.vertices, dec.indices)
	}

	extents := systems.GeometryExtents(dec.vertices)
	return &metadata.MeshData{
		Name:      name,
		Vertices:  metadata.AsBytes(dec.vertices),
		Indices:   dec.indices,
		Layout:    metadata.VertexLayoutStandard,
		Topology:  metadata.TopologyTriangleList,
		LocalAABB: &extents,
	}, nil
}

func (dec *objDecoder) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	switch fields[0] {
	case "v":
		v, err := dec.parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.positions = append(dec.positions, math.Vec3{X: v[0], Y: v[1], Z: v[2]})
	case "vt":
		v, err := dec.parseFloats(fields[1:], 2)
		if err != nil {
			return err
		}
		// OBJ puts the texture origin bottom-left, Vulkan samples top-left.
		dec.texcoords = append(dec.texcoords, math.Vec2{X: v[0], Y: 1 - v[1]})
	case "vn":
		v, err := dec.parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.normals = append(dec.normals, math.Vec3{X: v[0], Y: v[1], Z: v[2]})
	case "f":
		return dec.parseFace(fields[1:])
	}
	return nil
}

func (dec *objDecoder) parseFloats(fields []string, count int) ([]float32, error) {
	if len(fields) < count {
		return nil, dec.formatError("expected %d values, got %d", count, len(fields))
	}
	out := make([]float32, count)
	for i := 0; i < count; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, dec.formatError("invalid number %q", fields[i])
		}
		out[i] = float32(f)
	}
	return out, nil
}

func (dec *objDecoder) parseFace(fields []string) error {
	if len(fields) < 3 {
		return dec.formatError("face with less than 3 vertices")
	}
	corners := make([]uint32, len(fields))
	for i, field := range fields {
		idx, err := dec.parseCorner(field)
		if err != nil {
			return err
		}
		corners[i] = dec.vertex(idx)
	}
	for i := 1; i+1 < len(corners); i++ {
		dec.indices = append(dec.indices, corners[0], corners[i], corners[i+1])
	}
	return nil
}

func (dec *objDecoder) parseCorner(field string) (objIndex, error) {
	parts := strings.Split(field, "/")
	idx := objIndex{v: -1, vt: -1, vn: -1}

	var err error
	if idx.v, err = dec.resolve(parts[0], len(dec.positions)); err != nil {
		return idx, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if idx.vt, err = dec.resolve(parts[1], len(dec.texcoords)); err != nil {
			return idx, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if idx.vn, err = dec.resolve(parts[2], len(dec.normals)); err != nil {
			return idx, err
		}
	}
	return idx, nil
}

// resolve turns a 1-based or negative relative OBJ index into a 0-based one.
func (dec *objDecoder) resolve(field string, count int) (int, error) {
	val, err := strconv.Atoi(field)
	if err != nil {
		return -1, dec.formatError("invalid index %q", field)
	}
	switch {
	case val > 0:
		val--
	case val < 0:
		val += count
	default:
		return -1, dec.formatError("index 0 is not valid")
	}
	if val < 0 || val >= count {
		return -1, dec.formatError("index %s out of range", field)
	}
	return val, nil
}

func (dec *objDecoder) vertex(idx objIndex) uint32 {
	if i, ok := dec.corners[idx]; ok {
		return i
	}
	v := metadata.Vertex3D{Position: dec.positions[idx.v]}
	if idx.vt >= 0 {
		v.Texcoord = dec.texcoords[idx.vt]
	}
	if idx.vn >= 0 {
		v.Normal = dec.normals[idx.vn]
	} else {
		dec.missingNormals = true
	}
	i := uint32(len(dec.vertices))
	dec.vertices = append(dec.vertices, v)
	dec.corners[idx] = i
	return i
}

func (dec *objDecoder) formatError(format string, args ...interface{}) error {
	return fmt.Errorf("mesh '%s' line %d: %s", dec.name, dec.line, fmt.Sprintf(format, args...))
}
