package service

import (
	"fmt"
	"strconv"
)

func onOff(v bool) string {
	if v {
		return "вкл"
	}
	return "выкл"
}

func f2(v float64) string { // для процентов
	return fmt.Sprintf("%.2f", v)
}

// num: цена/объём без лишних нулей.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func mustInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
