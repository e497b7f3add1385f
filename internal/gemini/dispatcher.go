// Package gemini dispatches video generation prompts to the upstream generative API,
// or to a local simulator in demo deployments.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/veocreator/internal/models"
)

// Video is a finished generation.
type Video struct {
	URL             string          `json:"url"`
	DurationSeconds int             `json:"durationSeconds"`
	Raw             json.RawMessage `json:"-"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, tier models.ModelTier) (*Video, error)
}

type ErrorKind int

const (
	// Transient failures may succeed if the caller tries again later.
	Transient ErrorKind = iota
	// Permanent failures will not succeed for the same request.
	Permanent
)

func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// DispatchError is returned for every failed dispatch. Nothing is charged for it.
type DispatchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("dispatch failed (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dispatch failed (%s): %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func transient(err error) *DispatchError {
	return &DispatchError{Kind: Transient, Err: err}
}

func permanent(err error) *DispatchError {
	return &DispatchError{Kind: Permanent, Err: err}
}

// AsDispatchError unwraps err into a *DispatchError.
func AsDispatchError(err error) (*DispatchError, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// DefaultDuration is the clip length reported for tier when the upstream does not
// say otherwise.
func DefaultDuration(tier models.ModelTier) int {
	if tier == models.TierQuality {
		return 30
	}
	return 15
}
