package payment

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/rate"
)

var (
	instrumentTag  = "instrument"
	instrumentText = "must be one of: " + strings.Join(CashInstruments, ", ")

	commodityTag  = "commodity"
	commodityText = "invalid commodity name"
)

// RegisterValidators registers the payment validation tags on v.
func RegisterValidators(v *core.Validator) {
	v.RegisterValidation(instrumentTag, instrumentText, instrumentValidation)
	v.RegisterValidation(commodityTag, commodityText, commodityValidation)
}

func instrumentValidation(fl validator.FieldLevel) bool {
	if inst, ok := fl.Field().Interface().(string); ok {
		return IsCashInstrument(inst)
	}
	return false
}

func commodityValidation(fl validator.FieldLevel) bool {
	if commodity, ok := fl.Field().Interface().(string); ok {
		return rate.ValidateCommodity(rate.CleanCommodity(commodity)) == nil
	}
	return false
}
