package dto

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"academic-portal/backend/internal/model"
	"academic-portal/backend/internal/scheduling"
)

// 自定义校验标签
const (
	hhmmTag        = "hhmm"
	weekdayTag     = "weekday"
	lectureTypeTag = "lecture_type"
)

var registerOnce sync.Once

// RegisterValidators 向 gin 的 validator 引擎注册排课相关的校验规则
// 错误中的字段名使用 json/form 标签名
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
		_ = v.RegisterValidation(hhmmTag, func(fl validator.FieldLevel) bool {
			return scheduling.ValidClock(fl.Field().String())
		})
		_ = v.RegisterValidation(weekdayTag, func(fl validator.FieldLevel) bool {
			_, err := model.ParseWeekday(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation(lectureTypeTag, func(fl validator.FieldLevel) bool {
			_, err := model.ParseLectureType(fl.Field().String())
			return err == nil
		})
	})
}

// BindingDetail 将 gin 绑定错误转换为前端可读的字段详情
func BindingDetail(err error) ValidationDetail {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return ValidationDetail{Field: fe.Field(), Reason: reasonOf(fe)}
	}
	return ValidationDetail{Reason: err.Error()}
}

func reasonOf(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "不能为空"
	case "uuid":
		return "必须是合法的 UUID"
	case hhmmTag:
		return "必须是零填充的 HH:MM 时间"
	case weekdayTag:
		return "必须是 Monday 至 Saturday"
	case lectureTypeTag:
		return "必须是 theory/practical/tutorial/lab 之一"
	case "oneof":
		return "必须是以下之一: " + fe.Param()
	case "max":
		return "长度不能超过 " + fe.Param()
	case "min":
		return "不能小于 " + fe.Param()
	}
	return "校验失败: " + fe.Tag()
}
