// Package model defines the typed entities ingested and queried by this
// system -- Trace, Span, Event, Metric, MetricDataPoint and LogRecord --
// along with their constructors, derived-field helpers and validate()
// contracts.
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the single shared validator instance every entity's
// Validate() method delegates to, matching the teacher's convention of one
// process-wide validator.v10 instance rather than one per call site.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("hexid", validateHexID); err != nil {
		panic(fmt.Sprintf("model: registering hexid validator: %v", err))
	}
	return v
}

// validateHexID implements the "hexid=N" tag: the field must be a
// lowercase hex string of exactly N characters.
func validateHexID(fl validator.FieldLevel) bool {
	length, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	s := fl.Field().String()
	if len(s) != length {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f')
	}) == -1
}

// IsFinite reports whether f is neither NaN nor +/-Inf, the invariant the
// specification requires of every stored float (duration, cost, metric
// value, quantile, histogram boundary).
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
