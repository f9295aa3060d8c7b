package tasks

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cuongbtq/image-tasks/internal/domain"
)

const (
	opScale       = "scale"
	opRotate      = "rotate"
	opAngleRotate = "angle_rotate"

	minScale  = 1
	maxScale  = 1000
	maxRotate = 360
)

// ParseOperation turns a request operation map into a task type and
// parameter. Exactly one of scale, rotate or angle_rotate must be set.
func ParseOperation(operation map[string]any) (domain.TaskType, int, error) {
	scale, hasScale := operation[opScale]
	rotate, hasRotate := operation[opRotate]
	angle, hasAngle := operation[opAngleRotate]
	if hasRotate && hasAngle {
		return "", 0, domain.NewValidationError("operation", "only one of rotate or angle_rotate may be set")
	}
	if hasAngle {
		rotate, hasRotate = angle, true
	}

	switch {
	case hasScale && hasRotate:
		return "", 0, domain.NewValidationError("operation", "only one of scale or rotate may be set")
	case hasScale:
		v, err := intValue(opScale, scale)
		if err != nil {
			return "", 0, err
		}
		if v < minScale || v > maxScale {
			return "", 0, domain.NewValidationError(opScale, fmt.Sprintf("must be between %d and %d", minScale, maxScale))
		}
		return domain.TaskTypeScale, v, nil
	case hasRotate:
		v, err := intValue(opRotate, rotate)
		if err != nil {
			return "", 0, err
		}
		if v < -maxRotate || v > maxRotate {
			return "", 0, domain.NewValidationError(opRotate, fmt.Sprintf("must be between %d and %d", -maxRotate, maxRotate))
		}
		return domain.TaskTypeRotate, v, nil
	default:
		return "", 0, domain.NewValidationError("operation", "scale or rotate is required")
	}
}

func intValue(field string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, domain.NewValidationError(field, "must be an integer")
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, domain.NewValidationError(field, "must be an integer")
		}
		return int(n), nil
	case nil:
		return 0, domain.NewValidationError(field, "value is required")
	default:
		return 0, domain.NewValidationError(field, "must be an integer")
	}
}
