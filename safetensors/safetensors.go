// Package safetensors reads and writes model weights in the safetensors file
// format, converting to and from GoMLX tensors.
//
// File layout:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// maxHeaderSize is a sanity bound on the JSON header.
const maxHeaderSize = 100 * 1024 * 1024

// TensorMetadata describes a single tensor in a safetensors file.
type TensorMetadata struct {
	Dtype       string   `json:"dtype"`        // F32, F64, I32, I64
	Shape       []int    `json:"shape"`        // tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) byte offsets relative to the data section
}

// SizeBytes returns the size of the tensor data in bytes.
func (tm *TensorMetadata) SizeBytes() int64 {
	return tm.DataOffsets[1] - tm.DataOffsets[0]
}

// NumElements returns the total number of elements described by the shape.
func (tm *TensorMetadata) NumElements() int64 {
	prod := int64(1)
	for _, dim := range tm.Shape {
		prod *= int64(dim)
	}
	return prod
}

// Header is the parsed JSON header of a safetensors file.
type Header struct {
	Tensors  map[string]*TensorMetadata
	Metadata map[string]string // optional __metadata__ field
}

// ReadHeader parses the header of a safetensors file and returns it together
// with the byte offset where the data section starts.
func ReadHeader(path string) (*Header, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	var headerSize uint64
	if err := binary.Read(f, binary.LittleEndian, &headerSize); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to read header size of %q", path)
	}
	if headerSize > maxHeaderSize {
		return nil, 0, errors.Errorf("header of %q too large: %d bytes", path, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to read header JSON of %q", path)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, 0, errors.Wrapf(err, "failed to parse header JSON of %q", path)
	}

	header := &Header{Tensors: make(map[string]*TensorMetadata)}
	for key, value := range raw {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, 0, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		var tm TensorMetadata
		if err := json.Unmarshal(value, &tm); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse metadata of tensor %q", key)
		}
		header.Tensors[key] = &tm
	}
	return header, int64(8 + headerSize), nil
}

// Load reads every tensor of a safetensors file into GoMLX tensors, keyed by
// tensor name. The file is memory-mapped while reading.
func Load(path string) (map[string]*tensors.Tensor, error) {
	header, dataOffset, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}

	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %q", path)
	}
	defer reader.Close()

	loaded := make(map[string]*tensors.Tensor, len(header.Tensors))
	for name, meta := range header.Tensors {
		data := make([]byte, meta.SizeBytes())
		if _, err := reader.ReadAt(data, dataOffset+meta.DataOffsets[0]); err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "failed to read data of tensor %q", name)
		}
		tensor, err := decodeTensor(data, meta)
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q in %q", name, path)
		}
		loaded[name] = tensor
	}
	return loaded, nil
}

// Save writes the named tensors to a safetensors file, replacing any previous
// content. Tensors are laid out in lexicographic name order.
func Save(path string, named map[string]*tensors.Tensor) error {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]*TensorMetadata, len(named))
	var data []byte
	for _, name := range names {
		t := named[name]
		raw, dtype, err := encodeTensor(t)
		if err != nil {
			return errors.Wrapf(err, "tensor %q", name)
		}
		header[name] = &TensorMetadata{
			Dtype:       dtype,
			Shape:       t.Shape().Dimensions,
			DataOffsets: [2]int64{int64(len(data)), int64(len(data) + len(raw))},
		}
		data = append(data, raw...)
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal safetensors header")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	if err := binary.Write(f, binary.LittleEndian, uint64(len(headerBytes))); err == nil {
		if _, err = f.Write(headerBytes); err == nil {
			_, err = f.Write(data)
		}
	}
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %q", path)
}

func decodeTensor(data []byte, meta *TensorMetadata) (*tensors.Tensor, error) {
	n := meta.NumElements()
	dims := make([]int, len(meta.Shape))
	copy(dims, meta.Shape)

	switch meta.Dtype {
	case "F32":
		if int64(len(data)) != n*4 {
			return nil, errors.Errorf("F32 data size mismatch: got %d bytes, want %d", len(data), n*4)
		}
		flat := make([]float32, n)
		for i := range flat {
			flat[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return tensors.FromFlatDataAndDimensions(flat, dims...), nil
	case "F64":
		if int64(len(data)) != n*8 {
			return nil, errors.Errorf("F64 data size mismatch: got %d bytes, want %d", len(data), n*8)
		}
		flat := make([]float64, n)
		for i := range flat {
			flat[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return tensors.FromFlatDataAndDimensions(flat, dims...), nil
	case "I32":
		if int64(len(data)) != n*4 {
			return nil, errors.Errorf("I32 data size mismatch: got %d bytes, want %d", len(data), n*4)
		}
		flat := make([]int32, n)
		for i := range flat {
			flat[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return tensors.FromFlatDataAndDimensions(flat, dims...), nil
	case "I64":
		if int64(len(data)) != n*8 {
			return nil, errors.Errorf("I64 data size mismatch: got %d bytes, want %d", len(data), n*8)
		}
		flat := make([]int64, n)
		for i := range flat {
			flat[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return tensors.FromFlatDataAndDimensions(flat, dims...), nil
	default:
		return nil, errors.Errorf("unsupported safetensors dtype %q", meta.Dtype)
	}
}

func encodeTensor(t *tensors.Tensor) (raw []byte, dtype string, err error) {
	switch t.DType() {
	case dtypes.Float32:
		flat, err := tensors.CopyFlatData[float32](t)
		if err != nil {
			return nil, "", err
		}
		raw = make([]byte, 4*len(flat))
		for i, v := range flat {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
		}
		return raw, "F32", nil
	case dtypes.Float64:
		flat, err := tensors.CopyFlatData[float64](t)
		if err != nil {
			return nil, "", err
		}
		raw = make([]byte, 8*len(flat))
		for i, v := range flat {
			binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
		}
		return raw, "F64", nil
	case dtypes.Int32:
		flat, err := tensors.CopyFlatData[int32](t)
		if err != nil {
			return nil, "", err
		}
		raw = make([]byte, 4*len(flat))
		for i, v := range flat {
			binary.LittleEndian.PutUint32(raw[i*4:], uint32(v))
		}
		return raw, "I32", nil
	case dtypes.Int64:
		flat, err := tensors.CopyFlatData[int64](t)
		if err != nil {
			return nil, "", err
		}
		raw = make([]byte, 8*len(flat))
		for i, v := range flat {
			binary.LittleEndian.PutUint64(raw[i*8:], uint64(v))
		}
		return raw, "I64", nil
	default:
		return nil, "", errors.Errorf("unsupported dtype %s for safetensors serialization", t.DType())
	}
}
