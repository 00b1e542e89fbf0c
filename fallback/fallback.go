// Package fallback implements the primary-then-fallback execution pair
// used wherever a dedicated service endpoint is preferred but a direct
// store operation must keep working when the service is unreachable.
// Both executors are expected to produce the same logical result; the
// fallback path is invisible to callers unless both fail.
package fallback

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var DoFunc = Do

func Do(op string, primary, secondary func() error) error {
	primaryErr := primary()
	if primaryErr == nil {
		return nil
	}
	logrus.Warnf("%s: primary path failed, falling back: %v", op, primaryErr)

	if secondaryErr := secondary(); secondaryErr != nil {
		return fmt.Errorf("%s failed: primary: %v, fallback: %v", op, primaryErr, secondaryErr)
	}
	return nil
}
