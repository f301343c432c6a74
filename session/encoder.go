package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sort"
)

const sessionFormatVersionCurrent = 1

const maxDeviceInfoEntries = 32

// Encode serializes a session record into the versioned binary wire format
// stored in Redis. Field order: version, userID, deviceID, token hash,
// created/last-used/expires timestamps, device-info map.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if err := writeString8(&buf, s.UserID, "userID"); err != nil {
		return nil, err
	}
	if err := writeString8(&buf, s.DeviceID, "deviceID"); err != nil {
		return nil, err
	}

	buf.Write(s.TokenHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastUsedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	if len(s.DeviceInfo) > maxDeviceInfoEntries {
		return nil, errors.New("device info too large")
	}
	buf.WriteByte(byte(len(s.DeviceInfo)))

	// Deterministic order keeps encodings byte-stable for identical records.
	keys := make([]string, 0, len(s.DeviceInfo))
	for k := range s.DeviceInfo {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeString8(&buf, k, "device info key"); err != nil {
			return nil, err
		}
		if err := writeString8(&buf, s.DeviceInfo[k], "device info value"); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses the binary wire format produced by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	if s.UserID, err = readString8(reader); err != nil {
		return nil, err
	}
	if s.DeviceID, err = readString8(reader); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, s.TokenHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.LastUsedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if count > maxDeviceInfoEntries {
		return nil, errors.New("device info too large")
	}
	if count > 0 {
		s.DeviceInfo = make(map[string]string, count)
		prev := ""
		for i := 0; i < int(count); i++ {
			k, err := readString8(reader)
			if err != nil {
				return nil, err
			}
			// Keys must be strictly ascending: encodings are canonical.
			if i > 0 && k <= prev {
				return nil, errors.New("device info keys out of order")
			}
			prev = k
			v, err := readString8(reader)
			if err != nil {
				return nil, err
			}
			s.DeviceInfo[k] = v
		}
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func writeString8(buf *bytes.Buffer, s, field string) error {
	if len(s) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString8(reader *bytes.Reader) (string, error) {
	length, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
