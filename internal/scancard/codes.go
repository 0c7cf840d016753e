package scancard

// errorDescriptions maps scancard ret codes to their documented meaning.
var errorDescriptions = map[int]string{
	-1: "Dongle not found",
	0:  "Success",
	1:  "Failed to open board",
	2:  "The USB interface is not a 2.0 interface",
	3:  "Failed to open cache area",
	4:  "The time in the board is greater than the current computer time",
	5:  "Authorization expires",
	6:  "Failed to load authorization (the ID.txt authorization file in the License folder in the current directory needs to be updated)",
	7:  "Failed to load FPGA driver",
	8:  "Failed to set system Parameter",
	9:  "Setting calibration failed",
	10: "Setting up stepper motor failed",
	11: "Failed to set up laser",
	12: "Failed to download marking Parameter",
	13: "Marking object does not exist",
	14: "Marking Parameter is invalid",
	15: "Laser status error",
	16: "Scanhead status error",
	17: "Failed to obtain scanhead or laser status",
	18: "Initialization failed before starting marking",
	19: "Failed to start the number sending thread",
	20: "Object content update failed before decomposing data (automatic variable update failed)",
	21: "The object exceeds the marking range",
	22: "Failed to update the content of the data decomposition end object",
	23: "File read error",
	24: "File save error",
	25: "The object does not exist and the move and rotate command cannot be executed",
	26: "The object is not text or barcode, and the content replacement operation cannot be performed",
	27: "Object with specified name not found",
	28: "Marking cannot be started while marking is in progress",
	29: "Invalid scope of work",
	30: "No control card connected",
	31: "Object content update failed",
	32: "File does not exist",
	33: "Index Parameter is out of range",
	34: "Object does not exist",
	35: "The input Parameter pointer is null",
	36: "Failed to modify object name",
	37: "The layer number where the object is located does not exist",
	38: "Preview cannot be started while marking is in progress",
	39: "While marking is in progress, the preview cannot be started repeatedly",
	40: "Preview cannot be stopped while marking",
	41: "No preview object exists",
	42: "Preparing for preview failed",
	43: "Hardware stop signal, external emergency stop",
	44: "Failed to enable the visual positioning module (the dongle does not contain its Function)",
}

// UnknownError is the description used for codes missing from the table.
const UnknownError = "Unknown error"

// ErrorDescription returns the description of a scancard ret code.
func ErrorDescription(code int) string {
	if desc, ok := errorDescriptions[code]; ok {
		return desc
	}
	return UnknownError
}

// WorkingStatus is the ret value of get_working_status.
type WorkingStatus int

const (
	StatusWaiting        WorkingStatus = 0
	StatusMarking        WorkingStatus = 1
	StatusPreviewing     WorkingStatus = 2
	StatusAlreadyWorking WorkingStatus = 3
)

var statusNames = map[WorkingStatus]string{
	StatusWaiting:        "Waiting",
	StatusMarking:        "Marking",
	StatusPreviewing:     "Previewing",
	StatusAlreadyWorking: "Already working",
}

func (s WorkingStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Idle reports whether the device is waiting for work.
func (s WorkingStatus) Idle() bool {
	return s == StatusWaiting
}
