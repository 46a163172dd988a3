package pointcloud

import (
	"context"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/odometry/utils"
)

// minNormalNeighbors is the smallest neighborhood that spans a plane.
const minNormalNeighbors = 3

// EstimateNormals fits a plane to the k nearest neighbors of every point and returns its
// normal, oriented towards the viewpoint. Points whose neighborhood is too small or
// degenerate get the zero vector.
func EstimateNormals(ctx context.Context, points []r3.Vector, k int, viewpoint r3.Vector) ([]r3.Vector, error) {
	normals := make([]r3.Vector, len(points))
	if len(points) < minNormalNeighbors || k < minNormalNeighbors {
		return normals, nil
	}
	kd := NewKDTree(points)
	err := utils.GroupWorkParallel(
		ctx,
		len(points),
		nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			neighborhood := make([]r3.Vector, 0, k)
			return func(memberNum, workNum int) {
				neighborhood = neighborhood[:0]
				for _, nb := range kd.KNearest(points[workNum], k) {
					neighborhood = append(neighborhood, points[nb.Index])
				}
				n, ok := PlaneNormal(neighborhood)
				if !ok {
					return
				}
				if n.Dot(viewpoint.Sub(points[workNum])) < 0 {
					n = n.Mul(-1)
				}
				normals[workNum] = n
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return normals, nil
}

// PlaneNormal returns the unit normal of the plane best fitting the points, that is the
// eigenvector of their covariance with the smallest eigenvalue. ok is false when fewer than
// three points are given or they do not span a plane.
func PlaneNormal(points []r3.Vector) (r3.Vector, bool) {
	if len(points) < minNormalNeighbors {
		return r3.Vector{}, false
	}
	var centroid r3.Vector
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(points)))

	var xx, xy, xz, yy, yz, zz float64
	for _, p := range points {
		d := p.Sub(centroid)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	cov := mat.NewSymDense(3, []float64{
		xx, xy, xz,
		xy, yy, yz,
		xz, yz, zz,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return r3.Vector{}, false
	}
	values := eig.Values(nil)
	// A line or a single repeated point leaves two vanishing eigenvalues.
	if values[1] <= 1e-12*values[2] || values[2] == 0 {
		return r3.Vector{}, false
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	n := r3.Vector{X: vectors.At(0, 0), Y: vectors.At(1, 0), Z: vectors.At(2, 0)}
	norm := n.Norm()
	if norm == 0 {
		return r3.Vector{}, false
	}
	return n.Mul(1 / norm), true
}
