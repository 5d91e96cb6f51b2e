package utils

import (
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

//ErrShortBuffer is returned by the cursor readers when fewer bytes remain than requested
var ErrShortBuffer = errors.New("buffer too short")

var (
	//PutUint16 little endian writer
	PutUint16 = binary.LittleEndian.PutUint16
	//PutUint32 little endian writer
	PutUint32 = binary.LittleEndian.PutUint32
	//PutUint64 little endian writer
	PutUint64 = binary.LittleEndian.PutUint64
)

// ReadFile returns the contents of a file at 'path'
func ReadFile(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// ReadUint64 read 8 bytes and return as uint64
func ReadUint64(pos int, buff []byte) (uint64, int, error) {
	if pos < 0 || len(buff)-pos < 8 {
		return 0, pos, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(buff[pos:]), pos + 8, nil
}

// ReadUint32 read 4 bytes and return as uint32
func ReadUint32(pos int, buff []byte) (uint32, int, error) {
	if pos < 0 || len(buff)-pos < 4 {
		return 0, pos, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(buff[pos:]), pos + 4, nil
}

// ReadUint16 read 2 bytes and return as uint16
func ReadUint16(pos int, buff []byte) (uint16, int, error) {
	if pos < 0 || len(buff)-pos < 2 {
		return 0, pos, ErrShortBuffer
	}
	return binary.LittleEndian.Uint16(buff[pos:]), pos + 2, nil
}

// ReadByte read and return a single byte
func ReadByte(pos int, buff []byte) (byte, int, error) {
	if pos < 0 || pos >= len(buff) {
		return 0, pos, ErrShortBuffer
	}
	return buff[pos], pos + 1, nil
}

// ReadBytes read and return a copy of count number of bytes
func ReadBytes(pos, count int, buff []byte) ([]byte, int, error) {
	if pos < 0 || count < 0 || len(buff)-pos < count {
		return nil, pos, ErrShortBuffer
	}
	out := make([]byte, count)
	copy(out, buff[pos:pos+count])
	return out, pos + count, nil
}

// PeekUint32 returns the next 4 bytes as uint32 without advancing
func PeekUint32(pos int, buff []byte) (uint32, error) {
	v, _, err := ReadUint32(pos, buff)
	return v, err
}

// ReadYml reads the supplied config file, Unmarshals the data into the config struct.
func ReadYml(fs afero.Fs, yml string) (YamlConfig, error) {
	config := DefaultConfig()
	data, err := ReadFile(fs, yml)
	if err != nil {
		return YamlConfig{}, err
	}
	if err = yaml.UnmarshalStrict(data, &config); err != nil {
		return YamlConfig{}, errors.Wrapf(err, "parse %s", yml)
	}
	return config, nil
}

// GUIDToByteArray mimics Guid.ToByteArray Method () from .NET
// The example displays the following output:
//
//	Guid: 35918bc9-196d-40ea-9779-889d79b753f0
//	C9 8B 91 35 6D 19 EA 40 97 79 88 9D 79 B7 53 F0
func GUIDToByteArray(guid string) ([]byte, error) {
	guid = strings.Trim(guid, "{}")
	u, err := uuid.Parse(guid)
	if err != nil {
		return nil, errors.Wrap(err, "invalid GUID")
	}
	return UUIDToByteArray(u), nil
}

// UUIDToByteArray reorders an RFC 4122 UUID into the .NET mixed-endian layout
func UUIDToByteArray(u uuid.UUID) []byte {
	array := make([]byte, 16)
	array[0], array[1], array[2], array[3] = u[3], u[2], u[1], u[0]
	array[4], array[5] = u[5], u[4]
	array[6], array[7] = u[7], u[6]
	copy(array[8:], u[8:])
	return array
}

// ByteArrayToUUID is the inverse of UUIDToByteArray
func ByteArrayToUUID(array []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = array[3], array[2], array[1], array[0]
	u[4], u[5] = array[5], array[4]
	u[6], u[7] = array[7], array[6]
	copy(u[8:], array[8:16])
	return u
}
