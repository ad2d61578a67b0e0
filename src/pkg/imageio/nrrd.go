package imageio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var nrrdTypes = map[string]sampleType{
	"signed char": sampleInt8, "int8": sampleInt8, "int8_t": sampleInt8,
	"uchar": sampleUint8, "unsigned char": sampleUint8, "uint8": sampleUint8, "uint8_t": sampleUint8,
	"short": sampleInt16, "short int": sampleInt16, "signed short": sampleInt16, "signed short int": sampleInt16,
	"int16": sampleInt16, "int16_t": sampleInt16,
	"ushort": sampleUint16, "unsigned short": sampleUint16, "unsigned short int": sampleUint16,
	"uint16": sampleUint16, "uint16_t": sampleUint16,
	"int": sampleInt32, "signed int": sampleInt32, "int32": sampleInt32, "int32_t": sampleInt32,
	"uint": sampleUint32, "unsigned int": sampleUint32, "uint32": sampleUint32, "uint32_t": sampleUint32,
	"longlong": sampleInt64, "long long": sampleInt64, "int64": sampleInt64, "int64_t": sampleInt64,
	"ulonglong": sampleUint64, "unsigned long long": sampleUint64, "uint64": sampleUint64, "uint64_t": sampleUint64,
	"float": sampleFloat32,
	"double": sampleFloat64,
}

// LoadNrrd reads a NRRD file with attached data in raw, gzip or ascii encoding
func LoadNrrd(path string) (*Volume, error) {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	br := bufio.NewReader(rc)

	fields, err := readNrrdHeader(br)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, ok := fields["data file"]; ok {
		return nil, fmt.Errorf("%w: %s: detached NRRD data", ErrUnsupportedFormat, path)
	}

	st, ok := nrrdTypes[fields["type"]]
	if !ok {
		return nil, fmt.Errorf("%w: %s: NRRD type %q", ErrUnsupportedFormat, path, fields["type"])
	}

	dims, err := parseNrrdSizes(fields["sizes"], fields["dimension"])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	n := 1
	for _, d := range dims {
		n *= d
	}

	var order binary.ByteOrder = binary.LittleEndian
	if fields["endian"] == "big" {
		order = binary.BigEndian
	}

	var labels []int32
	switch fields["encoding"] {
	case "raw":
		labels, err = decodeLabels(br, st, order, n, 1, 0)
	case "gzip", "gz":
		zr, zerr := gzip.NewReader(br)
		if zerr != nil {
			return nil, fmt.Errorf("%s: failed to open gzip data: %w", path, zerr)
		}
		labels, err = decodeLabels(zr, st, order, n, 1, 0)
		_ = zr.Close()
	case "ascii", "text", "txt":
		labels, err = decodeAsciiLabels(br, n)
	default:
		return nil, fmt.Errorf("%w: %s: NRRD encoding %q", ErrUnsupportedFormat, path, fields["encoding"])
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logger.WithField("path", path).WithField("dims", dims).Debug("Loaded NRRD volume")
	return volumeFromSamples(dims, labels)
}

// readNrrdHeader consumes the magic line and fields up to the blank separator line.
// Field names are lowercased, "datafile" is normalized to "data file".
func readNrrdHeader(br *bufio.Reader) (map[string]string, error) {
	magic, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read NRRD magic: %w", err)
	}
	if !strings.HasPrefix(magic, "NRRD000") {
		return nil, fmt.Errorf("%w: missing NRRD magic", ErrUnsupportedFormat)
	}

	fields := make(map[string]string)
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read NRRD header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if !strings.HasPrefix(line, "#") && !strings.Contains(line, ":=") {
			if key, value, ok := strings.Cut(line, ": "); ok {
				key = strings.ToLower(strings.TrimSpace(key))
				if key == "datafile" {
					key = "data file"
				}
				fields[key] = strings.TrimSpace(value)
			}
		}
		if err == io.EOF {
			return nil, fmt.Errorf("NRRD header without data")
		}
	}

	if fields["encoding"] == "" {
		return nil, fmt.Errorf("NRRD header missing encoding")
	}
	return fields, nil
}

func parseNrrdSizes(sizes, dimension string) ([]int, error) {
	parts := strings.Fields(sizes)
	if len(parts) == 0 {
		return nil, fmt.Errorf("NRRD header missing sizes")
	}
	if dimension != "" {
		if d, err := strconv.Atoi(dimension); err != nil || d != len(parts) {
			return nil, fmt.Errorf("NRRD dimension %q does not match sizes %q", dimension, sizes)
		}
	}
	dims := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid NRRD size %q", p)
		}
		dims[i] = d
	}
	return dims, nil
}

func decodeAsciiLabels(r io.Reader, n int) ([]int32, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	labels := make([]int32, 0, n)
	for sc.Scan() && len(labels) < n {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ascii voxel %q", sc.Text())
		}
		labels = append(labels, int32(math.Round(v)))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(labels) != n {
		return nil, fmt.Errorf("expected %d ascii voxels, got %d", n, len(labels))
	}
	return labels, nil
}
