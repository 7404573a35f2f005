package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error the renderer reports.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInitializationFailure
	KindSwapchainOutOfDate
	KindSwapchainSuboptimal
	KindDeviceLost
	KindOutOfDeviceMemory
	KindInvalidLayout
	KindStaleHandle
	KindAcquireTimeout
	KindFrameDropped
	KindShuttingDown
)

func (k ErrorKind) String() string {
	switch k {
	case KindInitializationFailure:
		return "initialization failure"
	case KindSwapchainOutOfDate:
		return "swapchain out of date"
	case KindSwapchainSuboptimal:
		return "swapchain suboptimal"
	case KindDeviceLost:
		return "device lost"
	case KindOutOfDeviceMemory:
		return "out of device memory"
	case KindInvalidLayout:
		return "invalid layout"
	case KindStaleHandle:
		return "stale handle"
	case KindAcquireTimeout:
		return "acquire timeout"
	case KindFrameDropped:
		return "frame dropped"
	case KindShuttingDown:
		return "shutting down"
	}
	return "unknown"
}

// Stage tags where an error originated.
type Stage string

const (
	StageConfig     Stage = "config"
	StagePlatform   Stage = "platform"
	StageInstance   Stage = "instance"
	StageDevice     Stage = "device"
	StageSwapchain  Stage = "swapchain"
	StageRenderpass Stage = "renderpass"
	StagePipeline   Stage = "pipeline"
	StageRegistry   Stage = "registry"
	StageUpload     Stage = "upload"
	StageExtract    Stage = "extract"
	StageQueue      Stage = "queue"
	StageAcquire    Stage = "acquire"
	StageRecord     Stage = "record"
	StageSubmit     Stage = "submit"
	StagePresent    Stage = "present"
	StageShutdown   Stage = "shutdown"
	StageAssets     Stage = "assets"
)

// EngineError is the error type returned across the engine boundary.
type EngineError struct {
	Kind   ErrorKind
	Stage  Stage
	Reason string
	Err    error
}

func (e *EngineError) Error() string {
	msg := e.Kind.String()
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches any EngineError of the same kind, so sentinels work with errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInitializationFailure = &EngineError{Kind: KindInitializationFailure}
	ErrSwapchainOutOfDate    = &EngineError{Kind: KindSwapchainOutOfDate}
	ErrSwapchainSuboptimal   = &EngineError{Kind: KindSwapchainSuboptimal}
	ErrDeviceLost            = &EngineError{Kind: KindDeviceLost}
	ErrOutOfDeviceMemory     = &EngineError{Kind: KindOutOfDeviceMemory}
	ErrInvalidLayout         = &EngineError{Kind: KindInvalidLayout}
	ErrStaleHandle           = &EngineError{Kind: KindStaleHandle}
	ErrAcquireTimeout        = &EngineError{Kind: KindAcquireTimeout}
	ErrFrameDropped          = &EngineError{Kind: KindFrameDropped}
	ErrShuttingDown          = &EngineError{Kind: KindShuttingDown}

	ErrFrameInProgress = errors.New("a frame is already being recorded")
	ErrInvalidToken    = errors.New("frame token does not match the frame in flight")
	ErrNoWorkers       = errors.New("job system has no workers")
)

// NewError builds an EngineError of the given kind.
func NewError(kind ErrorKind, stage Stage, err error) *EngineError {
	return &EngineError{Kind: kind, Stage: stage, Err: err}
}

func NewInitializationFailure(stage Stage, err error) *EngineError {
	return &EngineError{Kind: KindInitializationFailure, Stage: stage, Err: err}
}

func NewFrameDropped(stage Stage, reason string, err error) *EngineError {
	return &EngineError{Kind: KindFrameDropped, Stage: stage, Reason: reason, Err: err}
}

func NewStaleHandle(stage Stage, reason string) *EngineError {
	return &EngineError{Kind: KindStaleHandle, Stage: stage, Reason: reason}
}

func NewInvalidLayout(stage Stage, reason string) *EngineError {
	return &EngineError{Kind: KindInvalidLayout, Stage: stage, Reason: reason}
}

// KindOf reports the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err ends the engine rather than a single frame.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindInitializationFailure, KindDeviceLost, KindShuttingDown:
		return true
	}
	return false
}
