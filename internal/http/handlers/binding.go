package handlers

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator and
// reports fields by their json names.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("enrollment_kind", func(fl validator.FieldLevel) bool {
			return enrollment.Kind(fl.Field().String()).Valid()
		})
	})
}
