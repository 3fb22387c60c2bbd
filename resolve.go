package labtemplar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Резолвер ссылок внутри плейсхолдеров: до вычисления выражения ссылки
// на элементы документа заменяются текстом. Два прохода — сначала
// селекторные ссылки [...], затем ссылки по идентификатору #id.

var (
	// [css-селектор] — число совпадений; ['css-селектор'] — тексты через запятую
	rxSelectorRef = regexp.MustCompile(`\[([^\[\]]+)\]`)
	rxQuotedSel   = regexp.MustCompile(`^\['(.+)'\]$`)
	// #id: буква, затем буквы/цифры/-/_/.
	rxIDRef = regexp.MustCompile(`#[A-Za-z][A-Za-z0-9_.-]*`)
)

// errMissingRef — в документе нет элемента с указанным id
var errMissingRef = fmt.Errorf("ссылка не разрешена")

// querySelector компилирует селектор заранее: goquery.Find паникует
// на некорректном селекторе, а ошибка резолвера должна оставаться ошибкой.
func querySelector(doc *goquery.Document, sel string) (*goquery.Selection, error) {
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("селектор %q: %w", sel, err)
	}
	return doc.FindMatcher(m), nil
}

// replaceAllSubmatch — ReplaceAllStringFunc с пробросом ошибки из подстановки
func replaceAllSubmatch(rx *regexp.Regexp, s string, repl func(match string) (string, error)) (string, error) {
	ms := rx.FindAllStringIndex(s, -1)
	if len(ms) == 0 {
		return s, nil
	}
	var b strings.Builder
	last := 0
	for _, m := range ms {
		sub, err := repl(s[m[0]:m[1]])
		if err != nil {
			return "", err
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(sub)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// resolveRefs заменяет ссылки в выражении текстом из документа.
// Чистая функция над doc: документ здесь никогда не изменяется.
func resolveRefs(expr string, doc *goquery.Document, o Options) (string, error) {
	// Проход 1: селекторные ссылки
	expr, err := replaceAllSubmatch(rxSelectorRef, expr, func(match string) (string, error) {
		if qm := rxQuotedSel.FindStringSubmatch(match); qm != nil {
			// форма-список: тексты всех совпавших элементов
			sel, err := querySelector(doc, strings.TrimSpace(qm[1]))
			if err != nil {
				return "", err
			}
			texts := sel.Map(func(_ int, s *goquery.Selection) string {
				return strings.TrimSpace(s.Text())
			})
			return strings.Join(texts, ", "), nil
		}
		// форма-счётчик: число совпавших элементов
		sel, err := querySelector(doc, strings.TrimSpace(match[1:len(match)-1]))
		if err != nil {
			return "", err
		}
		return strconv.Itoa(sel.Length()), nil
	})
	if err != nil {
		return "", err
	}

	// Проход 2: ссылки по id
	return replaceAllSubmatch(rxIDRef, expr, func(match string) (string, error) {
		id := match[1:]
		// поиск по атрибуту: id с точками недоступен синтаксису #id в CSS
		sel, err := querySelector(doc, fmt.Sprintf("[id=%q]", id))
		if err != nil {
			return "", err
		}
		if sel.Length() == 0 {
			if o.EmptyMissingRef {
				return "", nil
			}
			return "", fmt.Errorf("%w: элемент #%s не найден", errMissingRef, id)
		}
		return strings.TrimSpace(sel.First().Text()), nil
	})
}

// isLoneRef — всё выражение состоит из единственной ссылки. Такая подстановка
// показывает текст другого элемента как есть, даже если он не вычисляется.
func isLoneRef(expr string) bool {
	expr = strings.TrimSpace(expr)
	if rxIDRef.FindString(expr) == expr && expr != "" {
		return true
	}
	m := rxSelectorRef.FindStringIndex(expr)
	return m != nil && m[0] == 0 && m[1] == len(expr)
}
