// Package tflite runs the pose model on the CPU with TensorFlow Lite, used on
// hosts without a Rockchip NPU.
package tflite

import (
	"fmt"
	"io"

	"github.com/mattn/go-tflite"
	"gocv.io/x/gocv"
)

// Runtime holds a single TensorFlow Lite interpreter for the pose model.  A
// Runtime is not safe for concurrent inference calls.
type Runtime struct {
	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
	input   *tflite.Tensor
}

// NewRuntime builds an interpreter for the serialized model held in modelData
// using the given number of CPU threads and allocates its tensors
func NewRuntime(modelData []byte, threads int) (*Runtime, error) {

	if len(modelData) == 0 {
		return nil, fmt.Errorf("model data is empty")
	}

	r := &Runtime{}

	r.model = tflite.NewModel(modelData)

	if r.model == nil {
		return nil, fmt.Errorf("failed to load tflite model")
	}

	r.options = tflite.NewInterpreterOptions()

	if threads > 0 {
		r.options.SetNumThread(threads)
	}

	r.interp = tflite.NewInterpreter(r.model, r.options)

	if r.interp == nil {
		r.Close()
		return nil, fmt.Errorf("failed to create tflite interpreter")
	}

	if status := r.interp.AllocateTensors(); status != tflite.OK {
		r.Close()
		return nil, fmt.Errorf("tflite tensor allocation failed with status %v", status)
	}

	if n := r.interp.GetInputTensorCount(); n != 1 {
		r.Close()
		return nil, fmt.Errorf("model has %d inputs, expected a single input", n)
	}

	r.input = r.interp.GetInputTensor(0)

	if r.input.NumDims() != 4 {
		r.Close()
		return nil, fmt.Errorf("model input has %d dimensions, expected 4", r.input.NumDims())
	}

	return r, nil
}

// InputHWC returns the height, width and channels of the NHWC model input
func (r *Runtime) InputHWC() (height, width, channels int) {
	return r.input.Dim(1), r.input.Dim(2), r.input.Dim(3)
}

// Infer copies the float32 HWC tensor into the model input, invokes the
// interpreter and returns a copy of the first output tensor
func (r *Runtime) Infer(tensor gocv.Mat) ([]float32, error) {

	if !tensor.IsContinuous() {
		tensor = tensor.Clone()
		defer tensor.Close()
	}

	data, err := tensor.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error getting data pointer to Mat: %w", err)
	}

	if r.input.Type() != tflite.Float32 {
		return nil, fmt.Errorf("model input type %v is not float32", r.input.Type())
	}

	if uint(len(data)*4) != r.input.ByteSize() {
		return nil, fmt.Errorf("input tensor has %d bytes, model expects %d",
			len(data)*4, r.input.ByteSize())
	}

	if status := r.input.CopyFromBuffer(data); status != tflite.OK {
		return nil, fmt.Errorf("copy to input tensor failed with status %v", status)
	}

	if status := r.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tflite invoke failed with status %v", status)
	}

	output := r.interp.GetOutputTensor(0)

	if output == nil {
		return nil, fmt.Errorf("model has no output tensor")
	}

	if output.Type() != tflite.Float32 {
		return nil, fmt.Errorf("model output type %v is not float32", output.Type())
	}

	buf := output.Float32s()
	out := make([]float32, len(buf))
	copy(out, buf)

	return out, nil
}

// Query writes the model input and output tensor shapes in human readable
// format
func (r *Runtime) Query(w io.Writer) error {

	fmt.Fprintf(w, "Model Input Number: %d, Output Number: %d\n",
		r.interp.GetInputTensorCount(), r.interp.GetOutputTensorCount())

	fmt.Fprintf(w, "Input tensors:\n")

	for i := 0; i < r.interp.GetInputTensorCount(); i++ {
		writeTensor(w, i, r.interp.GetInputTensor(i))
	}

	fmt.Fprintf(w, "Output tensors:\n")

	for i := 0; i < r.interp.GetOutputTensorCount(); i++ {
		writeTensor(w, i, r.interp.GetOutputTensor(i))
	}

	return nil
}

func writeTensor(w io.Writer, index int, t *tflite.Tensor) {

	dims := make([]int, t.NumDims())

	for i := range dims {
		dims[i] = t.Dim(i)
	}

	fmt.Fprintf(w, "  index=%d, name=%s, dims=%v, size=%d, type=%v\n",
		index, t.Name(), dims, t.ByteSize(), t.Type())
}

// Close deletes the interpreter, its options and the model
func (r *Runtime) Close() error {

	if r.interp != nil {
		r.interp.Delete()
		r.interp = nil
	}

	if r.options != nil {
		r.options.Delete()
		r.options = nil
	}

	if r.model != nil {
		r.model.Delete()
		r.model = nil
	}

	return nil
}
