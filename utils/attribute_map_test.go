package utils

import (
	"testing"

	"go.viam.com/test"
)

type windowConfig struct {
	NumFrames int     `json:"num_frames"`
	VoxelSize float64 `json:"voxel_size"`
	Scheme    string  `json:"scheme"`
}

func TestDecodeAttributes(t *testing.T) {
	conf := windowConfig{NumFrames: 10, VoxelSize: 0.1, Scheme: "huber"}

	test.That(t, DecodeAttributes(nil, &conf), test.ShouldBeNil)
	test.That(t, conf, test.ShouldResemble, windowConfig{NumFrames: 10, VoxelSize: 0.1, Scheme: "huber"})

	attrs := AttributeMap{"num_frames": 4.0, "voxel_size": "0.25"}
	test.That(t, attrs.Has("num_frames"), test.ShouldBeTrue)
	test.That(t, attrs.Has("scheme"), test.ShouldBeFalse)
	test.That(t, attrs.Keys(), test.ShouldHaveLength, 2)

	test.That(t, DecodeAttributes(attrs, &conf), test.ShouldBeNil)
	test.That(t, conf.NumFrames, test.ShouldEqual, 4)
	test.That(t, conf.VoxelSize, test.ShouldEqual, 0.25)
	test.That(t, conf.Scheme, test.ShouldEqual, "huber")

	err := DecodeAttributes(AttributeMap{"num_frame": 3}, &conf)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "num_frame")
}
