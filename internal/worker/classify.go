package worker

import (
	"errors"
	"strings"

	"github.com/joeflack4/genonaut/internal/engine"
)

// FailureClass buckets terminal failures for recovery suggestions.
type FailureClass string

const (
	ClassModelNotFound      FailureClass = "model-not-found"
	ClassResourceExhaustion FailureClass = "resource-exhaustion"
	ClassTimeout            FailureClass = "timeout"
	ClassConnectivity       FailureClass = "connectivity"
	ClassFileSystem         FailureClass = "filesystem"
	ClassUnknown            FailureClass = "unknown"
)

// Classify derives the failure class and a small set of recovery suggestions
// from a terminal error. The message is surfaced on the job row as-is. Also
// used by the pool janitor when it fails jobs abandoned by a dead worker.
func Classify(err error) (FailureClass, []string) {
	msg := strings.ToLower(err.Error())

	var engErr *engine.Error
	isEngine := errors.As(err, &engErr)

	switch {
	case isEngine && engErr.Kind == engine.KindTimeout:
		return ClassTimeout, []string{
			"retry the job; the engine may be under heavy load",
			"increase ENGINE_POLL_TIMEOUT if generations routinely run long",
		}
	case strings.Contains(msg, "files:"):
		return ClassFileSystem, []string{
			"check free disk space on the output volume",
			"check directory permissions for the output path",
		}
	case strings.Contains(msg, "model") && (strings.Contains(msg, "not found") || strings.Contains(msg, "unknown") || strings.Contains(msg, "missing")):
		return ClassModelNotFound, []string{
			"verify the checkpoint and lora model names",
			"confirm the models are installed on the engine",
		}
	case strings.Contains(msg, "memory") || strings.Contains(msg, "cuda") ||
		strings.Contains(msg, "resource") || strings.Contains(msg, "exhaust"):
		return ClassResourceExhaustion, []string{
			"reduce the requested width and height",
			"reduce the batch size",
			"retry once the engine has free capacity",
		}
	case isEngine && engErr.Kind == engine.KindTransient:
		return ClassConnectivity, []string{
			"check that the generation engine is running and reachable",
			"retry the job once connectivity is restored",
		}
	default:
		return ClassUnknown, []string{
			"retry the job",
			"inspect the engine logs if the failure repeats",
		}
	}
}
