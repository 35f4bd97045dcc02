package rknn

/*
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"strings"
	"unsafe"
)

// TensorFormat wraps C.rknn_tensor_format
type TensorFormat int

const (
	TensorNCHW      TensorFormat = C.RKNN_TENSOR_NCHW
	TensorNHWC      TensorFormat = C.RKNN_TENSOR_NHWC
	TensorNC1HWC2   TensorFormat = C.RKNN_TENSOR_NC1HWC2
	TensorUndefined TensorFormat = C.RKNN_TENSOR_UNDEFINED
)

// TensorType wraps C.rknn_tensor_type
type TensorType int

const (
	TensorFloat32 TensorType = C.RKNN_TENSOR_FLOAT32
	TensorFloat16 TensorType = C.RKNN_TENSOR_FLOAT16
	TensorInt8    TensorType = C.RKNN_TENSOR_INT8
	TensorUint8   TensorType = C.RKNN_TENSOR_UINT8
	TensorInt32   TensorType = C.RKNN_TENSOR_INT32
)

// AttrMaxDimension is the maximum number of dimensions of a tensor
const AttrMaxDimension = C.RKNN_MAX_DIMS

// attrMaxNameLength is the size of the C tensor name field
const attrMaxNameLength = C.RKNN_MAX_NAME_LEN

// TensorAttr represents the subset of the C.rknn_tensor_attr structure used
// to validate the pose model
type TensorAttr struct {
	Index  uint32
	NDims  uint32
	Dims   [AttrMaxDimension]uint32
	Name   string
	NElems uint32
	Size   uint32
	Fmt    TensorFormat
	Type   TensorType
}

// HWC returns the height, width and channels of a 4 dimensional image tensor
// taking the tensor format into account
func (a TensorAttr) HWC() (height, width, channels int) {

	if a.Fmt == TensorNCHW {
		return int(a.Dims[2]), int(a.Dims[3]), int(a.Dims[1])
	}

	return int(a.Dims[1]), int(a.Dims[2]), int(a.Dims[3])
}

// convertTensorAttr converts a C.rknn_tensor_attr to a Go TensorAttr
func convertTensorAttr(cAttr *C.rknn_tensor_attr) TensorAttr {

	name := C.GoStringN(&cAttr.name[0], C.int(attrMaxNameLength))

	// trim the string at the first null character
	if idx := strings.IndexByte(name, 0); idx != -1 {
		name = name[:idx]
	}

	return TensorAttr{
		Index:  uint32(cAttr.index),
		NDims:  uint32(cAttr.n_dims),
		Dims:   *(*[AttrMaxDimension]uint32)(unsafe.Pointer(&cAttr.dims)),
		Name:   name,
		NElems: uint32(cAttr.n_elems),
		Size:   uint32(cAttr.size),
		Fmt:    TensorFormat(cAttr.fmt),
		Type:   TensorType(cAttr._type),
	}
}

// queryTensors gets the tensor attributes for the given query command
func (r *Runtime) queryTensors(cmd C.rknn_query_cmd, num uint32, kind string) ([]TensorAttr, error) {

	attrs := make([]TensorAttr, num)

	for i := uint32(0); i < num; i++ {
		var cAttr C.rknn_tensor_attr
		cAttr.index = C.uint32_t(i)

		ret := C.rknn_query(r.ctx, cmd, unsafe.Pointer(&cAttr), C.uint(unsafe.Sizeof(cAttr)))

		if err := check("rknn_query", ret); err != nil {
			return nil, fmt.Errorf("error querying %s attributes: %w", kind, err)
		}

		attrs[i] = convertTensorAttr(&cAttr)
	}

	return attrs, nil
}

// QueryInputTensors gets the model Input Tensor attributes
func (r *Runtime) QueryInputTensors() ([]TensorAttr, error) {
	return r.queryTensors(C.RKNN_QUERY_INPUT_ATTR, r.ioNum.NumberInput, "input")
}

// QueryOutputTensors gets the model Output Tensor attributes
func (r *Runtime) QueryOutputTensors() ([]TensorAttr, error) {
	return r.queryTensors(C.RKNN_QUERY_OUTPUT_ATTR, r.ioNum.NumberOutput, "output")
}

// String returns the TensorAttr's attributes formatted as a string
func (a TensorAttr) String() string {

	dims := make([]string, 0, a.NDims)

	for i := uint32(0); i < a.NDims && i < AttrMaxDimension; i++ {
		dims = append(dims, fmt.Sprintf("%d", a.Dims[i]))
	}

	return fmt.Sprintf("index=%d, name=%s, n_dims=%d, dims=[%s], n_elems=%d, size=%d, fmt=%s, type=%s",
		a.Index, a.Name, a.NDims, strings.Join(dims, ", "), a.NElems, a.Size,
		a.Fmt.String(), a.Type.String())
}

// String returns a readable description of the TensorType
func (t TensorType) String() string {
	switch t {
	case TensorFloat32:
		return "FP32"
	case TensorFloat16:
		return "FP16"
	case TensorInt8:
		return "INT8"
	case TensorUint8:
		return "UINT8"
	case TensorInt32:
		return "INT32"
	default:
		return "UNKNOW"
	}
}

// String returns a readable description of the TensorFormat
func (t TensorFormat) String() string {
	switch t {
	case TensorNCHW:
		return "NCHW"
	case TensorNHWC:
		return "NHWC"
	case TensorNC1HWC2:
		return "NC1HWC2"
	case TensorUndefined:
		return "UNDEFINED"
	default:
		return "UNKNOW"
	}
}
