package runtime

import (
	"k8s.io/apimachinery/pkg/util/validation/field"
)

type ValidateNameFunc func(name string) error

func ValidateObjectMeta(path *field.Path, name string, nameFn ValidateNameFunc) field.ErrorList {
	var allErrs field.ErrorList
	if len(name) == 0 {
		allErrs = append(allErrs, field.Required(path, ""))
	} else if err := nameFn(name); err != nil {
		allErrs = append(allErrs, field.Invalid(path, name, err.Error()))
	}
	return allErrs
}
