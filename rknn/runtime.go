package rknn

/*
#cgo LDFLAGS: -lrknnrt
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"strings"
	"unsafe"
)

// CoreMask wraps C.rknn_core_mask
type CoreMask int

// rknn_core_mask values used to target which cores on the NPU the model is run
// on.  Auto will pick an idle core, the pose model is small enough to run on
// a single core so the combined core masks are not exposed.
const (
	NPUCoreAuto    CoreMask = C.RKNN_NPU_CORE_AUTO
	NPUCore0       CoreMask = C.RKNN_NPU_CORE_0
	NPUCore1       CoreMask = C.RKNN_NPU_CORE_1
	NPUCore2       CoreMask = C.RKNN_NPU_CORE_2
	NPUSkipSetCore CoreMask = 9999
)

// ParseCoreMask converts a configuration value of auto|0|1|2|skip into a
// CoreMask
func ParseCoreMask(val string) (CoreMask, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "", "auto":
		return NPUCoreAuto, nil
	case "0":
		return NPUCore0, nil
	case "1":
		return NPUCore1, nil
	case "2":
		return NPUCore2, nil
	case "skip":
		return NPUSkipSetCore, nil
	default:
		return NPUCoreAuto, fmt.Errorf("unknown NPU core %q", val)
	}
}

// ErrorCodes
type ErrorCodes int

// error code values returned by the C API
const (
	Success              ErrorCodes = C.RKNN_SUCC
	ErrFail              ErrorCodes = C.RKNN_ERR_FAIL
	ErrTimeout           ErrorCodes = C.RKNN_ERR_TIMEOUT
	ErrDeviceUnavailable ErrorCodes = C.RKNN_ERR_DEVICE_UNAVAILABLE
	ErrMallocFail        ErrorCodes = C.RKNN_ERR_MALLOC_FAIL
	ErrParamInvalid      ErrorCodes = C.RKNN_ERR_PARAM_INVALID
	ErrModelInvalid      ErrorCodes = C.RKNN_ERR_MODEL_INVALID
	ErrCtxInvalid        ErrorCodes = C.RKNN_ERR_CTX_INVALID
	ErrInputInvalid      ErrorCodes = C.RKNN_ERR_INPUT_INVALID
	ErrOutputInvalid     ErrorCodes = C.RKNN_ERR_OUTPUT_INVALID
	ErrDeviceMismatch    ErrorCodes = C.RKNN_ERR_DEVICE_UNMATCH
	ErrPlatformMismatch  ErrorCodes = C.RKNN_ERR_TARGET_PLATFORM_UNMATCH
)

// errorText describes each error code
var errorText = map[ErrorCodes]string{
	Success:              "execution successful",
	ErrFail:              "execution failed",
	ErrTimeout:           "execution timed out",
	ErrDeviceUnavailable: "device is unavailable",
	ErrMallocFail:        "C memory allocation failed",
	ErrParamInvalid:      "parameter is invalid",
	ErrModelInvalid:      "model file is invalid",
	ErrCtxInvalid:        "context is invalid",
	ErrInputInvalid:      "input is invalid",
	ErrOutputInvalid:     "output is invalid",
	ErrDeviceMismatch:    "device mismatch, please update rknn sdk and npu driver/firmware",
	ErrPlatformMismatch:  "the RKNN model target platform is not compatible with the current platform",
}

// String returns a readable description of the error code
func (e ErrorCodes) String() string {
	if text, ok := errorText[e]; ok {
		return text
	}
	return fmt.Sprintf("unknown error code %d", int(e))
}

// CallError is returned when a C API call fails
type CallError struct {
	// Call is the name of the C function
	Call string
	Code ErrorCodes
}

func (e *CallError) Error() string {
	return fmt.Sprintf("C.%s failed with code %d, error: %s", e.Call, int(e.Code), e.Code)
}

// check converts the return value of a C API call into an error, negative
// values are failures
func check(call string, ret C.int) error {
	if ret >= 0 {
		return nil
	}
	return &CallError{Call: call, Code: ErrorCodes(ret)}
}

// Runtime defines the RKNN run time instance holding a single loaded pose
// model.  A Runtime is not safe for concurrent inference calls.
type Runtime struct {
	// ctx is the C runtime context
	ctx C.rknn_context
	// ioNum caches the IONumber of Model Input/Output tensors
	ioNum IONumber
	// inputAttrs caches the Input Tensor Attributes of the Model
	inputAttrs []TensorAttr
	// outputAttrs caches the Output Tensor Attributes of the Model
	outputAttrs []TensorAttr
	// model is the serialized model which the C context references
	model []byte
}

// NewRuntime returns a RKNN run time instance for the serialized model held
// in modelData.  The model bytes must remain valid and unmodified until the
// Runtime is closed, typically they are a read-only memory mapping of the
// model asset.
func NewRuntime(modelData []byte, core CoreMask) (*Runtime, error) {

	if len(modelData) == 0 {
		return nil, fmt.Errorf("model data is empty")
	}

	r := &Runtime{
		model: modelData,
	}

	ret := C.rknn_init(&r.ctx, unsafe.Pointer(&modelData[0]),
		C.uint32_t(len(modelData)), 0, nil)

	if err := check("rknn_init", ret); err != nil {
		return nil, err
	}

	// setCoreMask is only supported on RK3588, allow skipping for other
	// Rockchip models like RK3566
	if core != NPUSkipSetCore {
		if err := r.setCoreMask(core); err != nil {
			r.Close()
			return nil, err
		}
	}

	if err := r.cacheAttributes(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

// cacheAttributes queries the model tensor layout once so inference calls
// do not need to
func (r *Runtime) cacheAttributes() error {

	var err error

	r.ioNum, err = r.QueryModelIONumber()

	if err != nil {
		return err
	}

	if r.ioNum.NumberInput != 1 || r.ioNum.NumberOutput < 1 {
		return fmt.Errorf("model has %d inputs and %d outputs, expected a single input",
			r.ioNum.NumberInput, r.ioNum.NumberOutput)
	}

	r.inputAttrs, err = r.QueryInputTensors()

	if err != nil {
		return err
	}

	r.outputAttrs, err = r.QueryOutputTensors()

	return err
}

// setCoreMask wraps C.rknn_set_core_mask and specifies the NPU core
// configuration to run the model on
func (r *Runtime) setCoreMask(mask CoreMask) error {

	return check("rknn_set_core_mask", C.rknn_set_core_mask(r.ctx, C.rknn_core_mask(mask)))
}

// Close wraps C.rknn_destroy which unloads the RKNN model from the runtime
// and destroys the context releasing all C resources.  The model bytes may be
// unmapped afterwards.
func (r *Runtime) Close() error {

	ret := C.rknn_destroy(r.ctx)
	r.model = nil

	return check("rknn_destroy", ret)
}

// SDKVersion represents the C.rknn_sdk_version struct
type SDKVersion struct {
	DriverVersion string
	APIVersion    string
}

// SDKVersion returns the RKNN API and Driver versions
func (r *Runtime) SDKVersion() (SDKVersion, error) {

	var cSdkVer C.rknn_sdk_version

	ret := C.rknn_query(
		r.ctx,
		C.RKNN_QUERY_SDK_VERSION,
		unsafe.Pointer(&cSdkVer),
		C.uint(C.sizeof_rknn_sdk_version),
	)

	if err := check("rknn_query", ret); err != nil {
		return SDKVersion{}, err
	}

	return SDKVersion{
		DriverVersion: C.GoString(&(cSdkVer.drv_version[0])),
		APIVersion:    C.GoString(&(cSdkVer.api_version[0])),
	}, nil
}

// InputAttrs returns the loaded model's input tensor attributes
func (r *Runtime) InputAttrs() []TensorAttr {
	return r.inputAttrs
}

// OutputAttrs returns the loaded model's output tensor attributes
func (r *Runtime) OutputAttrs() []TensorAttr {
	return r.outputAttrs
}
