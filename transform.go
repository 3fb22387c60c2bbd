package labtemplar

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Сканер плейсхолдеров {{ ... }} и управляющий цикл разбора:
// найти плейсхолдер → разрешить ссылки → вычислить → подставить результат.
// Любой сбой на отдельном плейсхолдере оставляет его исходный текст —
// одно неудачное выражение не должно портить остальной документ.

var rxPlaceholder = regexp.MustCompile(`\{\{([\s\S]+?)\}\}`)

// Options настраивает поведение разбора. Нулевое значение даёт поведение
// по умолчанию: один повторный проход по вложенным плейсхолдерам,
// ошибка при отсутствующем id, 12 значащих цифр.
type Options struct {
	// MaxDepth — сколько раз разрешённый текст ссылки может сам
	// перезапускать разбор, если содержит плейсхолдеры
	MaxDepth int
	// EmptyMissingRef — подставлять пустую строку вместо ошибки,
	// когда ссылка #id не находит элемента
	EmptyMissingRef bool
	// Precision — значащие цифры при форматировании чисел
	Precision int
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return 1
	}
	return o.MaxDepth
}

func (o Options) precision() int {
	if o.Precision <= 0 {
		return defaultPrecision
	}
	return o.Precision
}

// Transform заменяет все плейсхолдеры {{ ... }} во входной строке
// вычисленными значениями. Чистая функция: вход разбирается в документ
// только ради разрешения ссылок, подстановка выполняется по исходной
// строке, так что байты вне плейсхолдеров сохраняются как есть.
func Transform(input string) string {
	return TransformWithOptions(input, Options{})
}

func TransformWithOptions(input string, o Options) string {
	out, _ := transformString(input, nil, o, 0)
	return out
}

// transformString — общий проход для строкового и DOM-режимов.
// doc — контекст разрешения ссылок; nil означает «разобрать input».
// Второй результат: содержит ли хоть одна подстановка HTML-разметку.
func transformString(input string, doc *goquery.Document, o Options, depth int) (string, bool) {
	if !strings.Contains(input, "{{") {
		return input, false
	}
	if doc == nil {
		d, err := goquery.NewDocumentFromReader(strings.NewReader(input))
		if err != nil {
			return input, false
		}
		doc = d
	}
	ms := rxPlaceholder.FindAllStringSubmatchIndex(input, -1)
	if len(ms) == 0 {
		return input, false
	}
	var b strings.Builder
	last := 0
	markup := false
	for _, m := range ms {
		raw := input[m[0]:m[1]]
		inner := strings.TrimSpace(input[m[2]:m[3]])
		b.WriteString(input[last:m[0]])
		if r, ok := evalPlaceholder(inner, doc, o, depth); ok {
			b.WriteString(r.Text)
			markup = markup || r.Markup
		} else {
			b.WriteString(raw)
		}
		last = m[1]
	}
	b.WriteString(input[last:])
	return b.String(), markup
}

// evalPlaceholder обрабатывает один плейсхолдер; ok=false — оставить исходный текст
func evalPlaceholder(expr string, doc *goquery.Document, o Options, depth int) (Rendered, bool) {
	resolved, err := resolveRefs(expr, doc, o)
	if err != nil {
		return Rendered{}, false
	}
	// Ссылка может вытащить текст, который сам содержит плейсхолдеры:
	// перезапускаем разбор на нём, с ограничением глубины на случай
	// ссылки элемента на самого себя.
	if strings.Contains(resolved, "{{") {
		if depth >= o.maxDepth() {
			return Rendered{}, false
		}
		resolved, _ = transformString(resolved, doc, o, depth+1)
		if strings.Contains(resolved, "{{") {
			return Rendered{}, false
		}
		resolved = strings.TrimSpace(resolved)
	}
	r, err := evaluateAny(resolved, o)
	if err != nil {
		// одиночная ссылка показывает чужой текст и без вычисления
		if isLoneRef(expr) {
			return Rendered{Text: resolved}, true
		}
		return Rendered{}, false
	}
	return r, true
}

// -----------------------------
// DOM-режим
// -----------------------------

// TransformNode вычисляет плейсхолдеры во всех текстовых узлах поддерева.
// Результаты с разметкой (надстрочные единицы) вставляются разобранным
// фрагментом, обычный текст остаётся текстом — чтобы результат выражения
// не интерпретировался как HTML.
func TransformNode(root *html.Node) {
	TransformNodeWithOptions(root, Options{})
}

func TransformNodeWithOptions(root *html.Node, o Options) {
	doc := goquery.NewDocumentFromNode(root)

	// сначала собираем узлы, затем меняем: замена во время обхода ломает связи
	var texts []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode && strings.Contains(c.Data, "{{") && rxPlaceholder.MatchString(c.Data) {
				texts = append(texts, c)
				continue
			}
			if c.Type == html.ElementNode && (c.Data == "script" || c.Data == "style") {
				continue
			}
			walk(c)
		}
	}
	walk(root)

	for _, n := range texts {
		out, markup := transformString(n.Data, doc, o, 0)
		if out == n.Data {
			continue
		}
		if !markup || n.Parent == nil {
			n.Data = out
			continue
		}
		ctx := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
		frag, err := html.ParseFragment(strings.NewReader(out), ctx)
		if err != nil {
			n.Data = out
			continue
		}
		for _, f := range frag {
			n.Parent.InsertBefore(f, n)
		}
		n.Parent.RemoveChild(n)
	}
}
