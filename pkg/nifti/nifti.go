// Package nifti provides a minimal reader for single-file NIfTI-1 volumes
// (.nii and .nii.gz) sufficient for quantitative volumetric analysis: it
// decodes the fixed 348-byte header, applies the stored intensity scaling and
// materializes the voxel data as a flat float64 array in row-major order.
package nifti

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"roistats/internal/models"
)

// NIfTI-1 datatype codes for the voxel formats supported by this reader.
const (
	typeUint8   = 2
	typeInt16   = 4
	typeInt32   = 8
	typeFloat32 = 16
	typeFloat64 = 64
	typeUint16  = 512
)

// header mirrors the fixed NIfTI-1 header layout so it can be decoded with a
// single binary read. Field names follow the standard.
type header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte
	Dim          [8]int16
	IntentP1     float32
	IntentP2     float32
	IntentP3     float32
	IntentCode   int16
	Datatype     int16
	Bitpix       int16
	SliceStart   int16
	Pixdim       [8]float32
	VoxOffset    float32
	SclSlope     float32
	SclInter     float32
	SliceEnd     int16
	SliceCode    byte
	XyztUnits    byte
	CalMax       float32
	CalMin       float32
	SliceDur     float32
	Toffset      float32
	Glmax        int32
	Glmin        int32
	Descrip      [80]byte
	AuxFile      [24]byte
	QformCode    int16
	SformCode    int16
	QuaternB     float32
	QuaternC     float32
	QuaternD     float32
	QoffsetX     float32
	QoffsetY     float32
	QoffsetZ     float32
	SrowX        [4]float32
	SrowY        [4]float32
	SrowZ        [4]float32
	IntentName   [16]byte
	Magic        [4]byte
}

// LoadScalarVolume reads a NIfTI-1 file as a scalar measurement volume. The
// header's scl_slope/scl_inter intensity scaling is applied to every voxel.
func LoadScalarVolume(path string) (*models.ScalarVolume, error) {
	data, hdr, err := loadVoxels(path)
	if err != nil {
		return nil, err
	}

	vol := &models.ScalarVolume{
		Data:   data,
		Width:  int(hdr.Dim[1]),
		Height: int(hdr.Dim[2]),
		Depth:  int(hdr.Dim[3]),
	}
	vol.VoxelSize.X = float64(hdr.Pixdim[1])
	vol.VoxelSize.Y = float64(hdr.Pixdim[2])
	vol.VoxelSize.Z = float64(hdr.Pixdim[3])
	return vol, nil
}

// LoadLabelVolume reads a NIfTI-1 file as an integer label volume. Voxel
// values are rounded to the nearest integer, matching the usual treatment of
// atlas files stored in floating-point formats.
func LoadLabelVolume(path string) (*models.LabelVolume, error) {
	data, hdr, err := loadVoxels(path)
	if err != nil {
		return nil, err
	}

	labels := make([]int32, len(data))
	for i, v := range data {
		labels[i] = int32(math.Round(v))
	}

	return &models.LabelVolume{
		Data:   labels,
		Width:  int(hdr.Dim[1]),
		Height: int(hdr.Dim[2]),
		Depth:  int(hdr.Dim[3]),
	}, nil
}

// loadVoxels opens the file, transparently decompresses gzip, decodes the
// header and returns the intensity-scaled voxel data.
func loadVoxels(path string) ([]float64, *header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)

	// Sniff for gzip rather than trusting the file extension
	magic, err := br.Peek(2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var r io.Reader = br
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decompress %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	hdr, order, err := readHeader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse NIfTI header of %s: %w", path, err)
	}

	data, err := readData(r, hdr, order)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read voxel data of %s: %w", path, err)
	}

	return data, hdr, nil
}

// readHeader decodes the 348-byte NIfTI-1 header and determines the byte
// order. NIfTI files carry no explicit endianness flag; by convention the
// sizeof_hdr field is checked in both orders.
func readHeader(r io.Reader) (*header, binary.ByteOrder, error) {
	raw := make([]byte, 348)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(raw[0:4]) != 348 {
		if binary.BigEndian.Uint32(raw[0:4]) != 348 {
			return nil, nil, fmt.Errorf("not a NIfTI-1 file (sizeof_hdr != 348)")
		}
		order = binary.BigEndian
	}

	hdr := &header{}
	if err := binary.Read(bytes.NewReader(raw), order, hdr); err != nil {
		return nil, nil, err
	}

	if string(hdr.Magic[:3]) != "n+1" && string(hdr.Magic[:3]) != "ni1" {
		return nil, nil, fmt.Errorf("bad NIfTI magic %q", hdr.Magic[:3])
	}
	if hdr.Dim[0] < 3 || hdr.Dim[0] > 7 {
		return nil, nil, fmt.Errorf("unsupported dimensionality %d", hdr.Dim[0])
	}
	for d := int16(4); d <= hdr.Dim[0]; d++ {
		if hdr.Dim[d] > 1 {
			return nil, nil, fmt.Errorf("volume has %d points along dimension %d, only 3D volumes are supported",
				hdr.Dim[d], d)
		}
	}
	if hdr.Dim[1] < 1 || hdr.Dim[2] < 1 || hdr.Dim[3] < 1 {
		return nil, nil, fmt.Errorf("invalid dimensions %dx%dx%d", hdr.Dim[1], hdr.Dim[2], hdr.Dim[3])
	}

	return hdr, order, nil
}

// readData reads and converts the voxel payload. The reader is positioned
// just past the header, so only the gap up to vox_offset is skipped.
func readData(r io.Reader, hdr *header, order binary.ByteOrder) ([]float64, error) {
	offset := int64(hdr.VoxOffset)
	if offset < 348 {
		offset = 348
	}
	if skip := offset - 348; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, err
		}
	}

	numVoxels := int(hdr.Dim[1]) * int(hdr.Dim[2]) * int(hdr.Dim[3])
	bytesPerVoxel := int(hdr.Bitpix) / 8
	raw := make([]byte, numVoxels*bytesPerVoxel)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	data := make([]float64, numVoxels)
	switch hdr.Datatype {
	case typeUint8:
		for i := range data {
			data[i] = float64(raw[i])
		}
	case typeInt16:
		for i := range data {
			data[i] = float64(int16(order.Uint16(raw[i*2:])))
		}
	case typeUint16:
		for i := range data {
			data[i] = float64(order.Uint16(raw[i*2:]))
		}
	case typeInt32:
		for i := range data {
			data[i] = float64(int32(order.Uint32(raw[i*4:])))
		}
	case typeFloat32:
		for i := range data {
			data[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
	case typeFloat64:
		for i := range data {
			data[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
	default:
		return nil, fmt.Errorf("unsupported NIfTI datatype %d", hdr.Datatype)
	}

	// Apply the stored intensity scaling; slope 0 means "no scaling stored"
	slope := float64(hdr.SclSlope)
	inter := float64(hdr.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return data, nil
}
