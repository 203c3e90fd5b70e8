package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/meshtiler/internal/partition"
)

// Error kinds. Match them with errors.Is.
var (
	ErrInput         = errors.New("input error")
	ErrGeometry      = errors.New("geometry error")
	ErrResourceLimit = errors.New("resource limit error")
	ErrEncoding      = errors.New("encoding error")
	ErrIO            = errors.New("io error")
)

// Stage names used in errors and progress reports.
const (
	StageLimits    = "limits"
	StageLoad      = "load"
	StageValidate  = "validate"
	StageDecimate  = "decimate"
	StagePartition = "partition"
	StagePack      = "pack"
	StageEncode    = "encode"
	StageWrite     = "write"
	StageAssemble  = "assemble"
	StageDone      = "done"
)

// Error is a failure of one task, optionally pinned to a leaf tile.
type Error struct {
	Kind    error
	TaskID  string
	Stage   string
	Address *partition.Address
	LOD     int
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "task %s: %s", e.TaskID, e.Stage)
	if e.Address != nil {
		fmt.Fprintf(&b, " lod %d tile %s", e.LOD, e.Address.Name())
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func taskError(kind error, taskID, stage string, err error) *Error {
	return &Error{Kind: kind, TaskID: taskID, Stage: stage, LOD: -1, Err: err}
}

func leafError(kind error, taskID, stage string, lod int, addr partition.Address, err error) *Error {
	return &Error{Kind: kind, TaskID: taskID, Stage: stage, Address: &addr, LOD: lod, Err: err}
}
