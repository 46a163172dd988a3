package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/odometry/spatialmath"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

type pcdFieldType int

const (
	pcdPointOnly   pcdFieldType = 3
	pcdPointNormal pcdFieldType = 6
)

const (
	pcdCommentChar    = "#"
	pcdFieldsPoint    = "x y z"
	pcdFieldsNormals  = "x y z normal_x normal_y normal_z"
	pcdValFloat       = "F"
	pcdFloat32Size    = 4
	pcdFloat64Size    = 8
	pcdViewpointCount = 7
)

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

type pcdHeader struct {
	fields    pcdFieldType
	size      []uint64
	count     []uint64
	width     uint64
	height    uint64
	viewpoint spatialmath.Transform
	points    uint64
	data      PCDType
}

// WritePCD writes the cloud, with normals when it has them, in the given pcd format.
func WritePCD(cloud *PointCloud, out io.Writer, outputType PCDType) error {
	if err := cloud.Validate(); err != nil {
		return err
	}
	var dataLine string
	switch outputType {
	case PCDAscii:
		dataLine = "ascii"
	case PCDBinary:
		dataLine = "binary"
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown pcd output type %d", outputType)
	}

	fields, numFields := pcdFieldsPoint, int(pcdPointOnly)
	if cloud.HasNormals() {
		fields, numFields = pcdFieldsNormals, int(pcdPointNormal)
	}
	repeat := func(s string) string {
		return strings.TrimSpace(strings.Repeat(s+" ", numFields))
	}

	viewpoint := spatialmath.NewIdentityTransform()
	if cloud.Viewpoint != nil {
		viewpoint = *cloud.Viewpoint
	}
	q := viewpoint.Quaternion()
	t := viewpoint.Translation

	if _, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT %g %g %g %g %g %g %g\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		fields, repeat(strconv.Itoa(pcdFloat32Size)), repeat(pcdValFloat), repeat("1"),
		cloud.Size(),
		t.X, t.Y, t.Z, q.Real, q.Imag, q.Jmag, q.Kmag,
		cloud.Size(),
		dataLine,
	); err != nil {
		return err
	}
	return writePCDData(cloud, out, outputType)
}

func writePCDData(cloud *PointCloud, out io.Writer, pcdtype PCDType) error {
	withNormals := cloud.HasNormals()
	w := bufio.NewWriter(out)
	buf := make([]byte, 0, pcdFloat32Size*int(pcdPointNormal))
	for i, p := range cloud.Points {
		values := []float64{p.X, p.Y, p.Z}
		if withNormals {
			n := cloud.Normals[i]
			values = append(values, n.X, n.Y, n.Z)
		}
		var err error
		switch pcdtype {
		case PCDBinary:
			buf = buf[:0]
			for _, v := range values {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			}
			_, err = w.Write(buf)
		default:
			tokens := make([]string, len(values))
			for j, v := range values {
				tokens[j] = strconv.FormatFloat(v, 'f', -1, 32)
			}
			_, err = fmt.Fprintln(w, strings.Join(tokens, " "))
		}
		if err != nil {
			return err
		}
	}
	return w.Flush()
}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch strings.Join(tokens, " ") {
		case pcdFieldsPoint:
			header.fields = pcdPointOnly
		case pcdFieldsNormals:
			header.fields = pcdPointNormal
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid SIZE field %s", token)
			}
			if header.size[i] != pcdFloat32Size && header.size[i] != pcdFloat64Size {
				return errors.Errorf("unsupported SIZE %d, only 4 and 8 byte floats are read", header.size[i])
			}
		}
	case "TYPE":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
		for _, token := range tokens {
			if token != pcdValFloat {
				return errors.Errorf("unsupported TYPE %s, only floating point fields are read", token)
			}
		}
	case "COUNT":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in COUNT line")
		}
		header.count = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid COUNT field %s", token)
			}
			if header.count[i] != 1 {
				return errors.Errorf("unsupported COUNT %d", header.count[i])
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != pcdViewpointCount {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		viewpoint := [pcdViewpointCount]float64{}
		for i, token := range tokens {
			viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
		q := quat.Number{Real: viewpoint[3], Imag: viewpoint[4], Jmag: viewpoint[5], Kmag: viewpoint[6]}
		if quat.Abs(q) == 0 {
			return errors.New("VIEWPOINT rotation is not a valid quaternion")
		}
		header.viewpoint = spatialmath.NewTransformFromQuat(q,
			r3.Vector{X: viewpoint[0], Y: viewpoint[1], Z: viewpoint[2]})
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data type %s", value)
		}
	}

	return nil
}

// ReadPCD reads an ascii or binary pcd holding x y z fields, optionally followed by normals.
func ReadPCD(inRaw io.Reader) (*PointCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}

	var pc *PointCloud
	var err error
	switch header.data {
	case PCDAscii:
		pc, err = readPCDAscii(in, header)
	case PCDBinary:
		pc, err = readPCDBinary(in, header)
	case PCDCompressed:
		return nil, errors.New("compressed pcd not yet supported")
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
	if err != nil {
		return nil, err
	}
	viewpoint := header.viewpoint
	pc.Viewpoint = &viewpoint
	return pc, nil
}

func newPCDCloud(header pcdHeader) *PointCloud {
	pc := &PointCloud{Points: make([]r3.Vector, 0, header.points)}
	if header.fields == pcdPointNormal {
		pc.Normals = make([]r3.Vector, 0, header.points)
	}
	return pc
}

func appendPCDPoint(pc *PointCloud, values []float64) {
	pc.Points = append(pc.Points, r3.Vector{X: values[0], Y: values[1], Z: values[2]})
	if len(values) == int(pcdPointNormal) {
		pc.Normals = append(pc.Normals, r3.Vector{X: values[3], Y: values[4], Z: values[5]})
	}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (*PointCloud, error) {
	pc := newPCDCloud(header)
	values := make([]float64, int(header.fields))
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "error reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != int(header.fields) {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		for j, token := range tokens {
			values[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		appendPCDPoint(pc, values)
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (*PointCloud, error) {
	pc := newPCDCloud(header)
	values := make([]float64, int(header.fields))
	buf := make([]byte, pcdFloat64Size)
	for i := 0; i < int(header.points); i++ {
		for j := 0; j < int(header.fields); j++ {
			size := int(header.size[j])
			if _, err := io.ReadFull(in, buf[:size]); err != nil {
				return nil, errors.Wrapf(err, "error reading point %d", i)
			}
			if size == pcdFloat32Size {
				values[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
			} else {
				values[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
			}
		}
		appendPCDPoint(pc, values)
	}
	return pc, nil
}
