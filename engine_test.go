package labtemplar_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nikitaxru/labtemplar"
)

// EngineSuite — сьют тестов движка выражений и форматтера
type EngineSuite struct {
	suite.Suite
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) eval(expr string) labtemplar.Rendered {
	r, err := labtemplar.Evaluate(expr)
	s.Require().NoError(err, "выражение %q", expr)
	return r
}

// TestArithmetic — скалярная арифметика и приоритеты
func (s *EngineSuite) TestArithmetic() {
	s.Assert().Equal("5", s.eval("2 + 3").Text)
	s.Assert().Equal("14", s.eval("2 * (3 + 4)").Text)
	s.Assert().Equal("1024", s.eval("2^10").Text)
	s.Assert().Equal("-1", s.eval("-3 + 2").Text)
	s.Assert().Equal("0.5", s.eval("sin(30 deg)").Text)
}

// TestTemperaturePresentation — градусные шкалы выводятся символами
func (s *EngineSuite) TestTemperaturePresentation() {
	s.Assert().Equal("5 °C", s.eval("5 degC").Text)
	s.Assert().Equal("86 °F", s.eval("30 degC to degF").Text)
	s.Assert().Equal("90 °", s.eval("90 °").Text)
}

// TestAreaVolume — площади и объёмы с надстрочными степенями
func (s *EngineSuite) TestAreaVolume() {
	r := s.eval("1 m^2")
	s.Assert().Equal("1 m<sup>2</sup>", r.Text)
	s.Assert().True(r.Markup, "надстрочная степень — это разметка")

	s.Assert().Equal("2 ft<sup>2</sup>", s.eval("2 sqft").Text)
	s.Assert().Equal("3 in<sup>3</sup>", s.eval("3 cuin").Text)
	s.Assert().Equal("1 mmH<sub>2</sub>O", s.eval("1 mmH2O").Text)
}

// TestCompoundUnits — составные единицы: числитель и знаменатель
func (s *EngineSuite) TestCompoundUnits() {
	s.Assert().Equal("5 kg m / s<sup>2</sup>", s.eval("5 kg*m/s^2").Text)
}

// TestConversion — оператор to и сложение совместимых величин
func (s *EngineSuite) TestConversion() {
	s.Assert().Equal("0.3048 m", s.eval("1 ft to m").Text)
	s.Assert().Equal("5 µL", s.eval("2 uL + 3 uL").Text)
	s.Assert().Equal("1500 mL", s.eval("1.5 L to mL").Text)
}

// TestFallback — то, чего движок единиц не знает, уходит в expr-lang
func (s *EngineSuite) TestFallback() {
	s.Assert().Equal("10", s.eval("1 < 2 ? 10 : 20").Text)
	s.Assert().Equal("ab", s.eval(`"a" + "b"`).Text)
	s.Assert().False(s.eval("1 < 2 ? 10 : 20").Markup)
}

// TestErrors — ошибки вычисления возвращаются, а не заминаются
func (s *EngineSuite) TestErrors() {
	for _, expr := range []string{
		"2 +* 3",     // синтаксис
		"frob + 1",   // неизвестный идентификатор
		"1 m + 1 s",  // несовместимые размерности
		"1 / 0",      // бесконечность
		"(2 m)^..5",  // мусор в степени
	} {
		_, err := labtemplar.Evaluate(expr)
		s.Assert().Error(err, "выражение %q обязано падать", expr)
	}
}

// TestPrecision — округление до значащих цифр гасит двоичный шум
func (s *EngineSuite) TestPrecision() {
	s.Assert().Equal("0.3", s.eval("0.1 + 0.2").Text)
}
