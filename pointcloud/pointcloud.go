// Package pointcloud defines point clouds with optional normals and the spatial utilities
// used to search, downsample, and persist them.
package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/odometry/spatialmath"
)

// PointCloud is an ordered set of points. When Normals is non empty it holds one normal per
// point. The zero vector marks an absent point.
type PointCloud struct {
	Points  []r3.Vector
	Normals []r3.Vector
	// Viewpoint is the acquisition pose of the sensor. nil means identity.
	Viewpoint *spatialmath.Transform
}

// New returns a point cloud over the given points and normals, which may be nil.
func New(points, normals []r3.Vector) (*PointCloud, error) {
	pc := &PointCloud{Points: points, Normals: normals}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	return pc, nil
}

// Validate checks that normals, when present, match the points one to one.
func (pc *PointCloud) Validate() error {
	if len(pc.Normals) != 0 && len(pc.Normals) != len(pc.Points) {
		return errors.Errorf("point cloud has %d points but %d normals", len(pc.Points), len(pc.Normals))
	}
	return nil
}

// Size returns the number of points.
func (pc *PointCloud) Size() int {
	return len(pc.Points)
}

// HasNormals reports whether the cloud carries normals.
func (pc *PointCloud) HasNormals() bool {
	return len(pc.Normals) != 0 && len(pc.Normals) == len(pc.Points)
}

// NonNull returns a copy without the absent points.
func (pc *PointCloud) NonNull() *PointCloud {
	keep := lo.FilterMap(pc.Points, func(p r3.Vector, i int) (int, bool) {
		return i, p.X != 0 || p.Y != 0 || p.Z != 0
	})
	return pc.Subset(keep)
}

// Subset returns a copy holding the points at the given indices, in that order.
func (pc *PointCloud) Subset(indices []int) *PointCloud {
	out := &PointCloud{
		Points:    make([]r3.Vector, len(indices)),
		Viewpoint: pc.Viewpoint,
	}
	for i, idx := range indices {
		out.Points[i] = pc.Points[idx]
	}
	if pc.HasNormals() {
		out.Normals = make([]r3.Vector, len(indices))
		for i, idx := range indices {
			out.Normals[i] = pc.Normals[idx]
		}
	}
	return out
}

// Transform returns a copy of the cloud moved by tf. Normals are only rotated.
func (pc *PointCloud) Transform(tf spatialmath.Transform) *PointCloud {
	out := &PointCloud{
		Points:    spatialmath.ApplyTransformation(pc.Points, tf),
		Viewpoint: pc.Viewpoint,
	}
	if pc.HasNormals() {
		out.Normals = make([]r3.Vector, len(pc.Normals))
		for i, n := range pc.Normals {
			out.Normals[i] = tf.Rotation.Apply(n)
		}
	}
	return out
}

// Append adds the points of other at the end of the cloud. Normals are kept only when both
// clouds carry them.
func (pc *PointCloud) Append(other *PointCloud) {
	withNormals := (pc.HasNormals() || pc.Size() == 0) && other.HasNormals()
	pc.Points = append(pc.Points, other.Points...)
	if withNormals {
		pc.Normals = append(pc.Normals, other.Normals...)
	} else {
		pc.Normals = nil
	}
}
