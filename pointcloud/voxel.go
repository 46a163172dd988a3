package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// VoxelCoords stores voxel coordinates in grid axes. The grid is anchored at the origin.
type VoxelCoords struct {
	I, J, K int64
}

// GetVoxelCoordinates returns the voxel a point falls in.
func GetVoxelCoordinates(pt r3.Vector, voxelSize float64) VoxelCoords {
	return VoxelCoords{
		I: int64(math.Floor(pt.X / voxelSize)),
		J: int64(math.Floor(pt.Y / voxelSize)),
		K: int64(math.Floor(pt.Z / voxelSize)),
	}
}

// VoxelDownsample keeps one point per occupied voxel: the one closest to the centroid of the
// voxel's points, the earliest on ties. Voxels are emitted in the order they are first hit,
// so the output only depends on the input order. A non positive voxel size returns a copy.
func VoxelDownsample(pc *PointCloud, voxelSize float64) *PointCloud {
	if voxelSize <= 0 {
		all := make([]int, len(pc.Points))
		for i := range all {
			all[i] = i
		}
		return pc.Subset(all)
	}

	type voxel struct {
		members []int
		sum     r3.Vector
	}
	voxels := map[VoxelCoords]*voxel{}
	var order []VoxelCoords
	for i, p := range pc.Points {
		key := GetVoxelCoordinates(p, voxelSize)
		vox, ok := voxels[key]
		if !ok {
			vox = &voxel{}
			voxels[key] = vox
			order = append(order, key)
		}
		vox.members = append(vox.members, i)
		vox.sum = vox.sum.Add(p)
	}

	kept := make([]int, 0, len(order))
	for _, key := range order {
		vox := voxels[key]
		centroid := vox.sum.Mul(1 / float64(len(vox.members)))
		best := vox.members[0]
		bestDist := pc.Points[best].Sub(centroid).Norm2()
		for _, idx := range vox.members[1:] {
			if d := pc.Points[idx].Sub(centroid).Norm2(); d < bestDist {
				best, bestDist = idx, d
			}
		}
		kept = append(kept, best)
	}
	return pc.Subset(kept)
}
