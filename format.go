package labtemplar

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Форматирование результатов вычислений: числовая часть плюс косметическое
// переписывание имён единиц (µ-префикс, градусные символы, надстрочные степени).

// defaultPrecision — значащие цифры по умолчанию; гасит двоичный шум,
// накопленный при приведении масштабов единиц.
const defaultPrecision = 12

// Rendered — отформатированный результат подстановки.
// Markup выставлен ровно тогда, когда текст содержит HTML-теги (<sup>/<sub>)
// и при вставке в DOM должен разбираться как разметка, а не как текст.
type Rendered struct {
	Text   string
	Markup bool
}

// outputUnitNames — таблица косметических имён единиц для вывода,
// обратная к входным псевдонимам системы единиц.
var outputUnitNames = map[string]string{
	"deg":   "°",
	"degC":  "°C",
	"degF":  "°F",
	"degR":  "°R",
	"sqch":  "ch<sup>2</sup>",
	"sqft":  "ft<sup>2</sup>",
	"cuft":  "ft<sup>3</sup>",
	"sqin":  "in<sup>2</sup>",
	"cuin":  "in<sup>3</sup>",
	"m2":    "m<sup>2</sup>",
	"m3":    "m<sup>3</sup>",
	"sqmil": "mil<sup>2</sup>",
	"sqrd":  "rd<sup>2</sup>",
	"sqmi":  "mi<sup>2</sup>",
	"sqyd":  "yd<sup>2</sup>",
	"cuyd":  "yd<sup>3</sup>",
	"mmH2O": "mmH<sub>2</sub>O",
	"cmH2O": "cmH<sub>2</sub>O",
}

func roundSig(x float64, n int) float64 {
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	d := math.Ceil(math.Log10(math.Abs(x)))
	p := math.Pow(10, float64(n)-d)
	return math.Round(x*p) / p
}

func formatNumber(x float64, prec int) string {
	if prec <= 0 {
		prec = defaultPrecision
	}
	x = roundSig(x, prec)
	a := math.Abs(x)
	if a < 1e15 && (a == 0 || a >= 1e-4) {
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// formatTerm выводит одну пару префикс+единица; степень — надстрочным тегом.
func formatTerm(t unitTerm, power int) string {
	name := t.display
	if out, ok := outputUnitNames[name]; ok {
		name = out
	}
	pfx := t.prefix.name
	if pfx == "u" {
		pfx = "µ"
	}
	s := pfx + name
	if power != 1 {
		s += "<sup>" + strconv.Itoa(power) + "</sup>"
	}
	return s
}

func formatValue(v value, prec int) Rendered {
	if len(v.terms) == 0 {
		return Rendered{Text: formatNumber(v.num, prec)}
	}

	// величина в единицах выражения, а не в базовых СИ
	mag := v.num
	if len(v.terms) == 1 && v.terms[0].power == 1 && v.terms[0].def.offset != 0 {
		t := v.terms[0]
		mag = v.num/(t.def.scale*t.prefix.scale) - t.def.offset
	} else {
		factor := 1.0
		for _, t := range v.terms {
			factor *= math.Pow(t.def.scale*t.prefix.scale, float64(t.power))
		}
		mag = v.num / factor
	}

	var num, den []string
	for _, t := range v.terms {
		if t.power > 0 {
			num = append(num, formatTerm(t, t.power))
		} else {
			den = append(den, formatTerm(t, -t.power))
		}
	}
	var unitStr string
	switch {
	case len(num) == 0:
		// только отрицательные степени: s^-1 и т.п.
		parts := make([]string, len(v.terms))
		for i, t := range v.terms {
			parts[i] = formatTerm(t, t.power)
		}
		unitStr = strings.Join(parts, " ")
	case len(den) == 0:
		unitStr = strings.Join(num, " ")
	default:
		unitStr = strings.Join(num, " ") + " / " + strings.Join(den, " ")
	}

	return Rendered{
		Text:   formatNumber(mag, prec) + " " + unitStr,
		Markup: strings.Contains(unitStr, "<su"),
	}
}

// renderFallback приводит результат expr-lang к строке в духе toString
// табличных движков: числа без хвостов, списки через запятую.
func renderFallback(out interface{}, prec int) Rendered {
	switch vv := out.(type) {
	case nil:
		return Rendered{}
	case bool:
		if vv {
			return Rendered{Text: "true"}
		}
		return Rendered{Text: "false"}
	case string:
		return Rendered{Text: vv}
	case int:
		return Rendered{Text: strconv.Itoa(vv)}
	case int64:
		return Rendered{Text: strconv.FormatInt(vv, 10)}
	case float64:
		return Rendered{Text: formatNumber(vv, prec)}
	case []interface{}:
		parts := make([]string, len(vv))
		for i, it := range vv {
			parts[i] = renderFallback(it, prec).Text
		}
		return Rendered{Text: strings.Join(parts, ", ")}
	default:
		return Rendered{Text: fmt.Sprintf("%v", vv)}
	}
}
