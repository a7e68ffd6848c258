package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns the result of a struct validation into a
// KindValidation error naming every failing field.
func validationError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrValidation("invalid input")
	}

	problems := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", fe.Field())
		case "gt":
			return fmt.Sprintf("%s must be a positive id", fe.Field())
		case "max":
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		default:
			return fmt.Sprintf("%s is invalid", fe.Field())
		}
	})

	return ErrValidation("invalid input: %s", strings.Join(problems, ", "))
}

type CreateRoomParams struct {
	Name    string `json:"name" validate:"required,max=100"`
	OwnerId int    `json:"ownerId" validate:"gt=0"`
	Secret  string `json:"secret" validate:"required,max=64"`
}

type JoinRoomParams struct {
	RoomId int    `json:"roomId" validate:"gt=0"`
	Secret string `json:"secret" validate:"required"`
	UserId int    `json:"userId" validate:"gt=0"`
}

type roomUser struct {
	RoomId int `json:"roomId" validate:"gt=0"`
	UserId int `json:"userId" validate:"gt=0"`
}

type letterChoice struct {
	RoomId   int `json:"roomId" validate:"gt=0"`
	UserId   int `json:"userId" validate:"gt=0"`
	LetterId int `json:"letterId" validate:"gt=0"`
}

type user struct {
	UserId int `json:"userId" validate:"gt=0"`
}
