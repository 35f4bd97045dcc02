/*
Package frame decodes planar camera frames into RGB images for the pose model.

Camera frames arrive as three YUV 4:2:0 planes.  They are repacked into NV21
order (Y, then V, then U) and converted with OpenCV's NV21 colorspace
conversion before being rotated to the device's natural orientation.
*/
package frame
