package labtemplar

import (
	"fmt"
	"math"
	"strings"
)

const pi180 = math.Pi / 180

// Система единиц измерения для выражений в лабораторных записях.
// Строится один раз через builder и после build() не изменяется,
// поэтому её можно безопасно разделять между конкурентными вычислениями.

// -----------------------------
// Размерности
// -----------------------------

// dimVector — вектор показателей базовых размерностей СИ (+ угол).
type dimVector [8]int

const (
	dimMass = iota
	dimLength
	dimTime
	dimCurrent
	dimTemperature
	dimLuminous
	dimAmount
	dimAngle
)

func (d dimVector) add(o dimVector) dimVector {
	var r dimVector
	for i := range d {
		r[i] = d[i] + o[i]
	}
	return r
}

func (d dimVector) sub(o dimVector) dimVector {
	var r dimVector
	for i := range d {
		r[i] = d[i] - o[i]
	}
	return r
}

func (d dimVector) scale(k int) dimVector {
	var r dimVector
	for i := range d {
		r[i] = d[i] * k
	}
	return r
}

func (d dimVector) isZero() bool {
	return d == dimVector{}
}

// isAngleOnly — безразмерная величина либо чистый угол (аргумент тригонометрии)
func (d dimVector) isAngleOnly() bool {
	for i, v := range d {
		if i != dimAngle && v != 0 {
			return false
		}
	}
	return true
}

// -----------------------------
// Префиксы
// -----------------------------

type prefix struct {
	name  string
	scale float64
}

// noPrefix — нейтральный префикс для единиц без приставки
var noPrefix = prefix{name: "", scale: 1}

type prefixTable map[string]prefix

func shortPrefixes() prefixTable {
	return prefixTable{
		"da": {"da", 1e1},
		"h":  {"h", 1e2},
		"k":  {"k", 1e3},
		"M":  {"M", 1e6},
		"G":  {"G", 1e9},
		"T":  {"T", 1e12},
		"P":  {"P", 1e15},
		"E":  {"E", 1e18},
		"d":  {"d", 1e-1},
		"c":  {"c", 1e-2},
		"m":  {"m", 1e-3},
		"u":  {"u", 1e-6},
		"n":  {"n", 1e-9},
		"p":  {"p", 1e-12},
		"f":  {"f", 1e-15},
		"a":  {"a", 1e-18},
	}
}

func longPrefixes() prefixTable {
	return prefixTable{
		"deca":  {"deca", 1e1},
		"hecto": {"hecto", 1e2},
		"kilo":  {"kilo", 1e3},
		"mega":  {"mega", 1e6},
		"giga":  {"giga", 1e9},
		"tera":  {"tera", 1e12},
		"peta":  {"peta", 1e15},
		"exa":   {"exa", 1e18},
		"deci":  {"deci", 1e-1},
		"centi": {"centi", 1e-2},
		"milli": {"milli", 1e-3},
		"u":     {"u", 1e-6},
		"micro": {"micro", 1e-6},
		"nano":  {"nano", 1e-9},
		"pico":  {"pico", 1e-12},
		"femto": {"femto", 1e-15},
		"atto":  {"atto", 1e-18},
	}
}

// -----------------------------
// Единицы
// -----------------------------

type unitDef struct {
	name     string
	dims     dimVector
	scale    float64 // множитель приведения к базовым единицам СИ
	offset   float64 // смещение шкалы (температуры), в единицах самой шкалы
	prefixes prefixTable
}

// unitEntry — запись реестра: определение плюс имя, используемое при выводе.
// Псевдонимы (Ω, Daltons, m²) разделяют определение, но выводятся по-своему.
type unitEntry struct {
	def     *unitDef
	display string
}

// UnitSystem — неизменяемый после построения реестр единиц и префиксов.
type UnitSystem struct {
	units        map[string]unitEntry
	prefixGroups map[string]prefixTable
	identExtra   func(r rune) bool // расширение предиката допустимых символов
}

// isIdentRune — предикат допустимого символа идентификатора/единицы.
// Базовый движок принимает только ASCII-буквы и подчёркивание;
// лабораторное расширение добавляет греческие буквы и спецсимволы.
func (us *UnitSystem) isIdentRune(r rune, first bool) bool {
	if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_' {
		return true
	}
	if !first && r >= '0' && r <= '9' {
		return true
	}
	if us.identExtra != nil && us.identExtra(r) {
		return true
	}
	return false
}

// findUnit ищет единицу по имени: сначала точное совпадение (включая псевдонимы),
// затем самое длинное имя-суффикс с допустимым префиксом из таблицы этой единицы.
func (us *UnitSystem) findUnit(name string) (unitEntry, prefix, bool) {
	if e, ok := us.units[name]; ok {
		return e, noPrefix, true
	}
	var (
		best    unitEntry
		bestPfx prefix
		bestLen = -1
	)
	for key, e := range us.units {
		if len(key) >= len(name) || !strings.HasSuffix(name, key) {
			continue
		}
		if e.def.prefixes == nil {
			continue
		}
		p, ok := e.def.prefixes[name[:len(name)-len(key)]]
		if !ok {
			continue
		}
		if len(key) > bestLen {
			best, bestPfx, bestLen = e, p, len(key)
		}
	}
	if bestLen < 0 {
		return unitEntry{}, noPrefix, false
	}
	return best, bestPfx, true
}

// -----------------------------
// Builder
// -----------------------------

type unitSystemBuilder struct {
	us *UnitSystem
}

func newUnitSystemBuilder() *unitSystemBuilder {
	return &unitSystemBuilder{us: &UnitSystem{
		units: map[string]unitEntry{},
		prefixGroups: map[string]prefixTable{
			"short": shortPrefixes(),
			"long":  longPrefixes(),
		},
	}}
}

// unit регистрирует единицу; первое имя — каноническое, остальные — псевдонимы.
func (b *unitSystemBuilder) unit(names []string, d dimVector, scale, offset float64, prefixes prefixTable) {
	if len(names) == 0 {
		panic("labtemplar: единица без имени")
	}
	def := &unitDef{name: names[0], dims: d, scale: scale, offset: offset, prefixes: prefixes}
	for _, n := range names {
		b.us.units[n] = unitEntry{def: def, display: names[0]}
	}
}

// alias регистрирует имя поверх уже существующей единицы.
// Семантика переопределения: числовая эквивалентность обязана сохраняться,
// меняется только то, как имя выглядит на входе и выходе.
func (b *unitSystemBuilder) alias(name, target, display string) {
	e, ok := b.us.units[target]
	if !ok {
		panic(fmt.Sprintf("labtemplar: псевдоним %q ссылается на неизвестную единицу %q", name, target))
	}
	b.us.units[name] = unitEntry{def: e.def, display: display}
}

// derived регистрирует единицу, определённую выражением над уже построенной
// частью системы (как createUnit у движков компьютерной алгебры).
// Ошибка разбора определения — фатальная ошибка конфигурации.
func (b *unitSystemBuilder) derived(names []string, def string, prefixes prefixTable) {
	v, err := (&Engine{us: b.us}).evalValue(def)
	if err != nil {
		panic(fmt.Sprintf("labtemplar: определение единицы %q (%q): %v", names[0], def, err))
	}
	if v.valueless {
		v = v.concrete()
	}
	if v.dims.isZero() && len(v.terms) == 0 {
		panic(fmt.Sprintf("labtemplar: определение единицы %q (%q) безразмерно", names[0], def))
	}
	b.unit(names, v.dims, v.num, 0, prefixes)
}

// cloneMicroPrefixes добавляет во все таблицы префиксов запись µ,
// эквивалентную префиксу u. Обходит все группы, а не только верхний уровень,
// чтобы uL и µL разрешались одинаково в любой записи.
func (b *unitSystemBuilder) cloneMicroPrefixes() {
	for _, tbl := range b.us.prefixGroups {
		if u, ok := tbl["u"]; ok {
			tbl["µ"] = prefix{name: "µ", scale: u.scale} // U+00B5 MICRO SIGN
			tbl["μ"] = prefix{name: "µ", scale: u.scale} // U+03BC GREEK SMALL LETTER MU
		}
	}
}

func (b *unitSystemBuilder) identExtra(pred func(r rune) bool) {
	b.us.identExtra = pred
}

func (b *unitSystemBuilder) build() *UnitSystem {
	return b.us
}

// -----------------------------
// Базовая система
// -----------------------------

func (b *unitSystemBuilder) applyBase() {
	sp := b.us.prefixGroups["short"]
	lp := b.us.prefixGroups["long"]

	// Базовые единицы СИ
	b.unit([]string{"m"}, dimVector{dimLength: 1}, 1, 0, sp)
	b.unit([]string{"g"}, dimVector{dimMass: 1}, 1e-3, 0, sp)
	b.unit([]string{"s"}, dimVector{dimTime: 1}, 1, 0, sp)
	b.unit([]string{"A"}, dimVector{dimCurrent: 1}, 1, 0, sp)
	b.unit([]string{"K"}, dimVector{dimTemperature: 1}, 1, 0, sp)
	b.unit([]string{"cd"}, dimVector{dimLuminous: 1}, 1, 0, sp)
	b.unit([]string{"mol"}, dimVector{dimAmount: 1}, 1, 0, sp)
	b.unit([]string{"rad"}, dimVector{dimAngle: 1}, 1, 0, sp)

	// Длинные имена с длинными префиксами (microliter, kilogram, ...)
	b.unit([]string{"meter", "meters"}, dimVector{dimLength: 1}, 1, 0, lp)
	b.unit([]string{"gram", "grams"}, dimVector{dimMass: 1}, 1e-3, 0, lp)
	b.unit([]string{"second", "seconds"}, dimVector{dimTime: 1}, 1, 0, lp)
	b.unit([]string{"liter", "liters", "litre", "litres"}, dimVector{dimLength: 3}, 1e-3, 0, lp)
	b.unit([]string{"mole", "moles"}, dimVector{dimAmount: 1}, 1, 0, lp)

	// Производные СИ
	b.unit([]string{"L", "l"}, dimVector{dimLength: 3}, 1e-3, 0, sp)
	b.unit([]string{"Hz"}, dimVector{dimTime: -1}, 1, 0, sp)
	b.unit([]string{"N"}, dimVector{dimMass: 1, dimLength: 1, dimTime: -2}, 1, 0, sp)
	b.unit([]string{"Pa"}, dimVector{dimMass: 1, dimLength: -1, dimTime: -2}, 1, 0, sp)
	b.unit([]string{"J"}, dimVector{dimMass: 1, dimLength: 2, dimTime: -2}, 1, 0, sp)
	b.unit([]string{"W"}, dimVector{dimMass: 1, dimLength: 2, dimTime: -3}, 1, 0, sp)
	b.unit([]string{"V"}, dimVector{dimMass: 1, dimLength: 2, dimTime: -3, dimCurrent: -1}, 1, 0, sp)
	b.unit([]string{"ohm"}, dimVector{dimMass: 1, dimLength: 2, dimTime: -3, dimCurrent: -2}, 1, 0, sp)

	// Время без префиксов
	b.unit([]string{"min"}, dimVector{dimTime: 1}, 60, 0, nil)
	b.unit([]string{"h"}, dimVector{dimTime: 1}, 3600, 0, nil)

	// Углы и температурные шкалы
	b.unit([]string{"deg"}, dimVector{dimAngle: 1}, pi180, 0, nil)
	b.unit([]string{"degC"}, dimVector{dimTemperature: 1}, 1, 273.15, nil)
	b.unit([]string{"degF"}, dimVector{dimTemperature: 1}, 5.0/9.0, 459.67, nil)
	b.unit([]string{"degR"}, dimVector{dimTemperature: 1}, 5.0/9.0, 0, nil)

	// Имперские длины
	b.unit([]string{"in"}, dimVector{dimLength: 1}, 0.0254, 0, nil)
	b.unit([]string{"ft"}, dimVector{dimLength: 1}, 0.3048, 0, nil)
	b.unit([]string{"yd"}, dimVector{dimLength: 1}, 0.9144, 0, nil)
	b.unit([]string{"mi"}, dimVector{dimLength: 1}, 1609.344, 0, nil)
	b.unit([]string{"rd"}, dimVector{dimLength: 1}, 5.0292, 0, nil)
	b.unit([]string{"ch"}, dimVector{dimLength: 1}, 20.1168, 0, nil)
	b.unit([]string{"mil"}, dimVector{dimLength: 1}, 2.54e-5, 0, nil)

	// Площади и объёмы как именованные единицы
	b.unit([]string{"m2"}, dimVector{dimLength: 2}, 1, 0, nil)
	b.unit([]string{"sqin"}, dimVector{dimLength: 2}, 0.0254*0.0254, 0, nil)
	b.unit([]string{"sqft"}, dimVector{dimLength: 2}, 0.3048*0.3048, 0, nil)
	b.unit([]string{"sqyd"}, dimVector{dimLength: 2}, 0.9144*0.9144, 0, nil)
	b.unit([]string{"sqmi"}, dimVector{dimLength: 2}, 1609.344*1609.344, 0, nil)
	b.unit([]string{"sqrd"}, dimVector{dimLength: 2}, 5.0292*5.0292, 0, nil)
	b.unit([]string{"sqch"}, dimVector{dimLength: 2}, 20.1168*20.1168, 0, nil)
	b.unit([]string{"sqmil"}, dimVector{dimLength: 2}, 2.54e-5*2.54e-5, 0, nil)
	b.unit([]string{"m3"}, dimVector{dimLength: 3}, 1, 0, nil)
	b.unit([]string{"cuin"}, dimVector{dimLength: 3}, 0.0254*0.0254*0.0254, 0, nil)
	b.unit([]string{"cuft"}, dimVector{dimLength: 3}, 0.3048*0.3048*0.3048, 0, nil)
	b.unit([]string{"cuyd"}, dimVector{dimLength: 3}, 0.9144*0.9144*0.9144, 0, nil)
}

// -----------------------------
// Лабораторное расширение
// -----------------------------

// labIdentRune — дополнительные символы, встречающиеся в обозначениях единиц
// и идентификаторах, которыми пользуются в лабораторных записях.
func labIdentRune(r rune) bool {
	switch {
	case r >= 0x0370 && r <= 0x03FF: // греческий алфавит
		return true
	case r >= 0x1F00 && r <= 0x1FFF: // греческий расширенный
		return true
	case r >= 0x2070 && r <= 0x209F: // над- и подстрочные цифры (m², H₂O)
		return true
	}
	switch r {
	case 0x00B0, // ° знак градуса
		0x00B2, // ² квадрат
		0x00B3, // ³ куб
		0x00B5, // µ знак микро
		0x00C5, // Å
		0x212B, // Å знак ангстрема
		0x2126, // Ω знак ома
		0x2013, // – en-dash в псевдонимах единиц
		0x2030, // ‰
		0x2032, // ′
		0x2033: // ″
		return true
	}
	return false
}

func (b *unitSystemBuilder) applyLabExtension() {
	sp := b.us.prefixGroups["short"]

	// Сначала предикат и префикс µ: определения ниже уже пользуются ими
	b.identExtra(labIdentRune)
	b.cloneMicroPrefixes()

	// Градусные обозначения поверх существующих шкал
	b.alias("°", "deg", "deg")
	b.alias("°C", "degC", "degC")
	b.alias("°F", "degF", "degF")
	b.alias("°R", "degR", "degR")

	// Давление водяного столба
	b.derived([]string{"mmH2O", "mmH₂O"}, "9.80665 Pa", nil)
	b.derived([]string{"cmH2O", "cmH₂O"}, "98.0665 Pa", nil)

	// Кухонно-лабораторные объёмы
	b.derived([]string{"tsp"}, "4.92892159375 mL", nil)
	b.derived([]string{"tbsp"}, "3 tsp", nil)

	// Время
	b.derived([]string{"d"}, "86400 s", nil)
	b.derived([]string{"yr"}, "365.25 d", nil)

	// Ангстрем
	b.derived([]string{"Å", "Å"}, "1e-10 m", nil)

	// Греческие обозначения поверх существующих единиц
	b.alias("θ", "rad", "rad")
	b.alias("Ω", "ohm", "Ω")
	b.alias("Ω", "ohm", "Ω")

	// Дальтон, катал, молярность, единица ферментативной активности
	b.derived([]string{"Da", "Dalton", "Daltons"}, "1.66053906660e-27 kg", sp)
	b.derived([]string{"kat"}, "1 mol/s", sp)
	b.derived([]string{"M"}, "1 mol/L", sp)
	b.derived([]string{"U"}, "1 µmol/min", sp)

	// Надстрочные записи площадей и объёмов — только для удобства ввода,
	// обратное отображение на выводе выполняет форматтер
	b.alias("m²", "m2", "m2")
	b.alias("in²", "sqin", "sqin")
	b.alias("ft²", "sqft", "sqft")
	b.alias("yd²", "sqyd", "sqyd")
	b.alias("mi²", "sqmi", "sqmi")
	b.alias("rd²", "sqrd", "sqrd")
	b.alias("ch²", "sqch", "sqch")
	b.alias("mil²", "sqmil", "sqmil")
	b.alias("m³", "m3", "m3")
	b.alias("in³", "cuin", "cuin")
	b.alias("ft³", "cuft", "cuft")
	b.alias("yd³", "cuyd", "cuyd")
}

// NewBaseUnitSystem возвращает систему единиц без лабораторного расширения:
// только ASCII-идентификаторы, стандартные единицы СИ и имперские меры.
func NewBaseUnitSystem() *UnitSystem {
	b := newUnitSystemBuilder()
	b.applyBase()
	return b.build()
}

// NewUnitSystem возвращает полную систему единиц лабораторных записей:
// базовая система плюс греческие идентификаторы, префикс µ и специальные единицы.
func NewUnitSystem() *UnitSystem {
	b := newUnitSystemBuilder()
	b.applyBase()
	b.applyLabExtension()
	return b.build()
}
