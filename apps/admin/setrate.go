package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
)

func (cli *commandLine) setRate(commodity, value string) error {
	r, err := decimal.NewFromString(value)
	if err != nil {
		return core.NewFieldError("rate", "must be a number")
	}
	cr, err := cli.rates.SetRate(context.Background(), systemActor, commodity, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: %s per kg\n", cr.Commodity, core.FormatMoney(cr.RatePerUnit))
	return nil
}
