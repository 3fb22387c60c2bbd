package labtemplar_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/net/html"

	"github.com/nikitaxru/labtemplar"
)

// TransformSuite — сьют тестов сканера плейсхолдеров и резолвера ссылок
type TransformSuite struct {
	suite.Suite
}

func TestTransformSuite(t *testing.T) {
	suite.Run(t, new(TransformSuite))
}

// TestIDSubstitution — #id подставляет текст элемента в выражение
func (s *TransformSuite) TestIDSubstitution() {
	doc := `<html><body><span id="x">5</span><p>{{ #x + 1 }}</p></body></html>`
	want := strings.Replace(doc, "{{ #x + 1 }}", "6", 1)
	s.Assert().Equal(want, labtemplar.Transform(doc))
}

// TestSelectorCountAndList — [sel] даёт число совпадений, ['sel'] — тексты
func (s *TransformSuite) TestSelectorCountAndList() {
	doc := `<div><i class="cls">a</i><i class="cls">b</i><i class="cls">c</i>` +
		`<p>{{ [.cls] }}</p><p>{{ ['.cls'] }}</p></div>`
	got := labtemplar.Transform(doc)
	s.Assert().Contains(got, "<p>3</p>")
	s.Assert().Contains(got, "<p>a, b, c</p>")
}

// TestFailOpen — невалидное выражение остаётся в документе как есть
func (s *TransformSuite) TestFailOpen() {
	for _, doc := range []string{
		"итог: {{ 2 +* 3 }}",
		"{{ frob(1) }}",
		"{{ #no.such.id }}",
		"{{ [=broken=] }}",
	} {
		s.Assert().Equal(doc, labtemplar.Transform(doc), "вход обязан сохраниться байт в байт")
	}
}

// TestMissingRef — отсутствующий id: по умолчанию отказ, опцией — пустая строка
func (s *TransformSuite) TestMissingRef() {
	doc := `<p>{{ #nope + 1 }}</p>`
	s.Assert().Equal(doc, labtemplar.Transform(doc))

	got := labtemplar.TransformWithOptions(doc, labtemplar.Options{EmptyMissingRef: true})
	s.Assert().Equal(`<p>1</p>`, got)
}

// TestBytesOutsidePlaceholders — разметка и пробелы вне плейсхолдеров
// не перенормализуются разбором документа
func (s *TransformSuite) TestBytesOutsidePlaceholders() {
	doc := "<P >  странный\n<br>HTML &amp; пробелы  {{ 1 + 1 }} <hr/>"
	want := "<P >  странный\n<br>HTML &amp; пробелы  2 <hr/>"
	s.Assert().Equal(want, labtemplar.Transform(doc))
}

// TestRecursiveReference — текст ссылки сам содержит плейсхолдер
// и вычисляется до подстановки во внешнее выражение
func (s *TransformSuite) TestRecursiveReference() {
	doc := `<span id="a" hidden>{{ 2 + 3 }}</span><p>{{ #a * 2 }}</p>`
	got := labtemplar.Transform(doc)
	s.Assert().Contains(got, "<p>10</p>")
}

// TestSelfReferenceBounded — ссылка элемента на самого себя
// останавливается на границе глубины, а не зацикливается
func (s *TransformSuite) TestSelfReferenceBounded() {
	doc := `<span id="s">{{ #s }}</span>`
	s.Assert().Equal(doc, labtemplar.Transform(doc))
}

// TestLoneReferenceText — одиночная ссылка показывает чужой текст,
// даже когда он не является выражением
func (s *TransformSuite) TestLoneReferenceText() {
	doc := `<span id="note">см. протокол №7</span><p>{{ #note }}</p>`
	got := labtemplar.Transform(doc)
	s.Assert().Contains(got, "<p>см. протокол №7</p>")
}

// TestUnitsInDocument — единицы с разметкой в строковом режиме
func (s *TransformSuite) TestUnitsInDocument() {
	got := labtemplar.Transform("S = {{ 2 m * 3 m to m^2 }}")
	s.Assert().Equal("S = 6 m<sup>2</sup>", got)
}

// TestPrecisionOption — точность форматирования настраивается
func (s *TransformSuite) TestPrecisionOption() {
	got := labtemplar.TransformWithOptions("{{ 1/3 }}", labtemplar.Options{Precision: 3})
	s.Assert().Equal("0.333", got)
}

// -----------------------------
// DOM-режим
// -----------------------------

func (s *TransformSuite) render(n *html.Node) string {
	var buf bytes.Buffer
	s.Require().NoError(html.Render(&buf, n))
	return buf.String()
}

// TestNodeMarkupResult — результат с <sup> вставляется как разметка
func (s *TransformSuite) TestNodeMarkupResult() {
	root, err := html.Parse(strings.NewReader(`<p>{{ 1 m^2 }}</p>`))
	s.Require().NoError(err)

	labtemplar.TransformNode(root)
	got := s.render(root)
	s.Assert().Contains(got, "1 m<sup>2</sup>")
	s.Assert().NotContains(got, "{{")
	s.Assert().NotContains(got, "&lt;sup&gt;", "разметка не должна экранироваться")
}

// TestNodePlainResult — обычный результат остаётся текстом,
// а текст с тегами из выражения не превращается в разметку
func (s *TransformSuite) TestNodePlainResult() {
	// сущности в исходнике декодируются парсером, так что выражение
	// видит настоящие угловые скобки
	root, err := html.Parse(strings.NewReader(
		`<span id="v">7</span><p>{{ #v + 1 }}</p><p>{{ "&lt;b&gt;x&lt;/b&gt;" }}</p>`))
	s.Require().NoError(err)

	labtemplar.TransformNode(root)
	got := s.render(root)
	s.Assert().Contains(got, "<p>8</p>")
	s.Assert().Contains(got, "&lt;b&gt;x&lt;/b&gt;", "строковый результат экранируется")
}

// TestNodeUntouched — узлы без плейсхолдеров не трогаются
func (s *TransformSuite) TestNodeUntouched() {
	src := `<p>обычный текст { не плейсхолдер }</p>`
	root, err := html.Parse(strings.NewReader(src))
	s.Require().NoError(err)

	before := s.render(root)
	labtemplar.TransformNode(root)
	s.Assert().Equal(before, s.render(root))
}
