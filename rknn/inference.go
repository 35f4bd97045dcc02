package rknn

/*
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"unsafe"

	"gocv.io/x/gocv"
)

// Infer runs the model on a single float32 NHWC tensor and returns a copy of
// the first output tensor converted to float32.  The C output buffers are
// released before returning on every path.
func (r *Runtime) Infer(tensor gocv.Mat) ([]float32, error) {

	// make mat continuous
	if !tensor.IsContinuous() {
		tensor = tensor.Clone()
		defer tensor.Close()
	}

	data, err := tensor.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error getting data pointer to Mat: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("input tensor is empty")
	}

	input := C.rknn_input{
		index:        0,
		buf:          unsafe.Pointer(&data[0]),
		size:         C.uint32_t(len(data) * 4),
		pass_through: 0,
		_type:        C.RKNN_TENSOR_FLOAT32,
		fmt:          C.RKNN_TENSOR_NHWC,
	}

	ret := C.rknn_inputs_set(r.ctx, 1, &input)

	if err := check("rknn_inputs_set", ret); err != nil {
		return nil, err
	}

	ret = C.rknn_run(r.ctx, nil)

	if err := check("rknn_run", ret); err != nil {
		return nil, err
	}

	return r.firstOutput()
}

// firstOutput wraps C.rknn_outputs_get for output index 0, copies the
// buffer into Go memory and releases the C output
func (r *Runtime) firstOutput() ([]float32, error) {

	// the runtime dequantizes to float32 for us, unless the output is fp16
	// in which case we convert it ourselves
	wantFloat := C.uint8_t(1)
	isFloat16 := r.outputAttrs[0].Type == TensorFloat16

	if isFloat16 {
		wantFloat = 0
	}

	cOutput := C.rknn_output{
		index:      0,
		want_float: wantFloat,
	}

	ret := C.rknn_outputs_get(r.ctx, 1, &cOutput, nil)

	if err := check("rknn_outputs_get", ret); err != nil {
		return nil, err
	}

	var out []float32

	if isFloat16 {
		buf := unsafe.Slice((*uint16)(cOutput.buf), int(cOutput.size)/2)
		out = convertFloat16BufferToFloat32(buf)

	} else {
		buf := unsafe.Slice((*float32)(cOutput.buf), int(cOutput.size)/4)
		out = make([]float32, len(buf))
		copy(out, buf)
	}

	ret = C.rknn_outputs_release(r.ctx, 1, &cOutput)

	if err := check("rknn_outputs_release", ret); err != nil {
		return nil, err
	}

	return out, nil
}
