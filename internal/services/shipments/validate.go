package shipments

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	errNoGeocoder     = errors.New("geocoding is not configured")
	errInvalidGeocode = errors.New("geocoder returned out-of-range coordinates")
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct: единственная граница валидации входа: любые нарушения
// превращаются в ValidationError с описанием по полям.
func (s *Service) validateStruct(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperrors.Validation(err.Error())
	}
	fields := make(map[string]string, len(ves))
	for _, fe := range ves {
		name := fieldPath(fe)
		fields[name] = fieldMessage(name, fe)
	}
	return apperrors.ValidationFields("validation failed", fields)
}

// fieldPath: "CreateShipmentInput.origin.coordinates.lat" -> "origin.coordinates.lat"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", name)
	case "e164":
		return fmt.Sprintf("%s must be a phone number in E.164 format", name)
	default:
		return fmt.Sprintf("%s is invalid (%s)", name, fe.Tag())
	}
}

func checkExactlyOne(name string, loc LocationInput, fields map[string]string) {
	switch {
	case loc.Coordinates == nil && loc.Address == "":
		fields[name] = name + " requires coordinates or address"
	case loc.Coordinates != nil && loc.Address != "":
		fields[name] = name + " accepts either coordinates or address, not both"
	}
}
