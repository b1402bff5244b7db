package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"robust-geometry/pkg/geometry"
)

// familyColumns is the number of values per CSV record. One extra
// trailing column, when present, holds the quality score.
var familyColumns = map[string]int{
	"line2d":     2, // x,y
	"point2d":    3, // a,b,c
	"plane":      3, // x,y,z
	"point3d":    4, // a,b,c,d
	"conic":      2, // x,y
	"quadric":    3, // x,y,z
	"affine":     4, // x,y,u,v
	"homography": 4, // x,y,u,v
	"camera":     5, // X,Y,Z,u,v
	"pose":       5, // X,Y,Z,u,v
	"line3d":     3, // x,y,z
	"linecamera": 9, // X1,Y1,Z1,X2,Y2,Z2,a,b,c
}

// readCSV reads one correspondence per record. Lines starting with # are
// comments. Either every record has a quality column or none does.
func readCSV(path string, columns int) ([][]float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open input")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var rows [][]float64
	var quality []float64
	width := -1
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "record %d", line)
		}
		if width < 0 {
			width = len(rec)
			if width != columns && width != columns+1 {
				return nil, nil, errors.Errorf("record %d has %d fields, want %d or %d", line, width, columns, columns+1)
			}
		} else if len(rec) != width {
			return nil, nil, errors.Errorf("record %d has %d fields, want %d", line, len(rec), width)
		}

		values := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "record %d field %d", line, i+1)
			}
			values[i] = v
		}
		rows = append(rows, values[:columns])
		if width > columns {
			quality = append(quality, values[columns])
		}
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("input has no records")
	}
	return rows, quality, nil
}

func points2D(rows [][]float64, col int) []geometry.Point2D {
	out := make([]geometry.Point2D, len(rows))
	for i, r := range rows {
		out[i] = geometry.NewPoint2D(r[col], r[col+1])
	}
	return out
}

func points3D(rows [][]float64, col int) []geometry.Point3D {
	out := make([]geometry.Point3D, len(rows))
	for i, r := range rows {
		out[i] = geometry.NewPoint3D(r[col], r[col+1], r[col+2])
	}
	return out
}

// lines keeps the coefficients as given; the estimator normalizes them.
func lines(rows [][]float64, col int) []geometry.Line2D {
	out := make([]geometry.Line2D, len(rows))
	for i, r := range rows {
		out[i] = geometry.Line2D{A: r[col], B: r[col+1], C: r[col+2]}
	}
	return out
}

// lines3D reads each world line as two of its points.
func lines3D(rows [][]float64, col int) ([]geometry.Line3D, error) {
	out := make([]geometry.Line3D, len(rows))
	for i, r := range rows {
		p := geometry.NewPoint3D(r[col], r[col+1], r[col+2])
		q := geometry.NewPoint3D(r[col+3], r[col+4], r[col+5])
		l, ok := geometry.Line3DThrough(p, q)
		if !ok {
			return nil, errors.Errorf("record %d: world line points coincide", i+1)
		}
		out[i] = l
	}
	return out, nil
}

func planes(rows [][]float64) []geometry.Plane {
	out := make([]geometry.Plane, len(rows))
	for i, r := range rows {
		out[i] = geometry.Plane{A: r[0], B: r[1], C: r[2], D: r[3]}
	}
	return out
}
