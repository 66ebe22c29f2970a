/*
go-stereotrack is a feature tracking and online stereo extrinsic calibration
front-end for visual-inertial estimation pipelines.

Frames from a mono, stereo or fisheye camera rig are fed to a tracker from
the tracker subdirectory which propagates existing features with optical flow,
redetects new ones where tracks were lost and outputs per feature id
observations (pixel, undistorted ray, ray velocity) for every view the
feature is visible in.

The calib subdirectory accumulates left/right correspondences and refines the
rotation and translation between two cameras from the essential matrix,
accepting an update only when it stays close to the previously accepted
estimate.

Image processing primitives are provided by a backend from the vision
subdirectory, either OpenCV through gocv or a pure Go implementation.

See example code and usage in the example subdirectory.
*/
package stereotrack
